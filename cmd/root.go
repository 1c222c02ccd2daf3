package cmd

import (
	"fmt"
	"os"

	"idm-reconciler/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "idm-reconciler",
	Short: "Identity reconciliation and provisioning service",
	Long: `idm-reconciler keeps internal users, groups and any objects in line with the
accounts held by external resources. It computes reconciliation status, pushes
and pulls single entities, imports and exports CSV streams and reconciles whole
provisions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console format with debug level gives readable ISO8601 timestamps on failure.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
