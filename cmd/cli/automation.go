package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"crmflow/internal/app"
	"crmflow/internal/services"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one pass of the time-based trigger scanner (dias_atraso, dias_sem_contato)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()
		a, err := app.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		report, err := a.Scanner.Scan(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var (
	flagTriggerUser   uint
	flagTriggerDays   int
	flagTriggerFrom   string
	flagTriggerTo     string
	flagTriggerDryRun bool
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <evento> <cliente_id>[,<cliente_id>...]",
	Short: "Fire an event for clients by hand (same path as the batch-run API)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[1])
		if err != nil {
			return err
		}
		cfg, logger := loadConfig()
		a, err := app.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		resp, err := a.Automation.BatchRun(cmd.Context(), flagTriggerUser, &services.AutomationBatchRunRequest{
			Event:      args[0],
			ClientIDs:  ids,
			Days:       flagTriggerDays,
			FromStatus: flagTriggerFrom,
			ToStatus:   flagTriggerTo,
			DryRun:     flagTriggerDryRun,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

var workCmd = &cobra.Command{
	Use:   "process-pending",
	Short: "Run delayed actions that are due now and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()
		a, err := app.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		n, err := a.Worker.ProcessDue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d pending actions\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd, triggerCmd, workCmd)
	triggerCmd.Flags().UintVar(&flagTriggerUser, "user-id", 0, "tenant whose rules apply (0 = client owner)")
	triggerCmd.Flags().IntVar(&flagTriggerDays, "dias", 0, "elapsed days for dias_atraso / dias_sem_contato")
	triggerCmd.Flags().StringVar(&flagTriggerFrom, "status-de", "", "previous status for status_mudou")
	triggerCmd.Flags().StringVar(&flagTriggerTo, "status-para", "", "new status for status_mudou")
	triggerCmd.Flags().BoolVar(&flagTriggerDryRun, "dry-run", false, "only report which rules would fire")
}

func parseIDs(s string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid client id %q", part)
		}
		ids = append(ids, uint(n))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no client ids given")
	}
	return ids, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
