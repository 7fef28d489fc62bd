package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerline/docaudit/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "docaudit",
	Short: "Financial document anomaly detection pipeline",
	Long:  "Ingests extracted invoices, contracts, and purchase orders, runs rule-based and semantic anomaly detection, cross-references contracts against invoices, and escalates low-confidence results for human review.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
