package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"crmflow/internal/app"
	"crmflow/internal/config"
	"crmflow/internal/database"
	"crmflow/internal/observability"
)

func main() {
	// 读取配置文件（默认 ./config.yml）并初始化日志
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	_ = viper.ReadInConfig()

	cfg := config.Load()
	logger, err := config.InitLogger(cfg)
	if err != nil {
		logrus.Warnf("init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// OpenTelemetry 初始化（可选）
	if shutdown, err := observability.SetupTracing(ctx, cfg); err == nil {
		defer func() { _ = shutdown(context.Background()) }()
	} else {
		logger.Warnf("init tracing: %v", err)
	}

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	// 根据需要迁移（此处默认迁移，生产可改为条件控制）
	if err := database.Migrate(a.DB); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	if err := a.Serve(ctx); err != nil {
		logger.Errorf("server: %v", err)
	}
}
