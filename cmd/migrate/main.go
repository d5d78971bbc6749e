package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"crmflow/internal/config"
	"crmflow/internal/database"
)

func main() {
	dsn := flag.String("dsn", "", "postgres DSN (overrides database.* config)")
	flag.Parse()

	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	_ = viper.ReadInConfig()

	cfg := config.Load()
	logger, err := config.InitLogger(cfg)
	if err != nil {
		logrus.Warnf("init logger: %v", err)
	}

	db, err := database.Open(cfg, *dsn, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	logger.Info("Starting database migration...")
	if err := database.Migrate(db); err != nil {
		logger.Errorf("Failed to migrate database: %v", err)
		os.Exit(1)
	}
	logger.Info("Database migration completed successfully!")
}
