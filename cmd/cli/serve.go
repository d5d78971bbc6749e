package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"crmflow/internal/app"
	"crmflow/internal/database"
	"crmflow/internal/observability"
)

var flagAutoMigrate bool

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run"},
	Short:   "Run the HTTP API, the delayed-action worker and the trigger scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// OpenTelemetry 初始化（可选）
		shutdown, err := observability.SetupTracing(ctx, cfg)
		if err != nil {
			logger.Warnf("init tracing: %v", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}

		a, err := app.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if flagAutoMigrate {
			if err := database.Migrate(a.DB); err != nil {
				return err
			}
			logger.Info("database migrated")
		}
		return a.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&flagAutoMigrate, "migrate", false, "run database migrations before serving")
}
