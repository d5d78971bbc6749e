package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crmflow/internal/config"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "crmflow",
	Short: "CRM automation engine for small businesses",
	Long: `crmflow keeps client records, billing status and follow-up work,
and runs owner-defined automation rules (trigger, conditions, actions)
whenever a client's lifecycle changes.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}
}

// loadConfig reads config and configures the shared logger.
func loadConfig() (*config.Config, *logrus.Logger) {
	cfg := config.Load()
	logger, err := config.InitLogger(cfg)
	if err != nil {
		logger.Warnf("init logger: %v", err)
	}
	return cfg, logger
}
