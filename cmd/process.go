package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerline/docaudit/internal/extract"
)

var processCmd = &cobra.Command{
	Use:   "process <envelope.json>",
	Short: "Run the anomaly-detection pipeline for a single document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open envelope")
		}
		doc, err := extract.ReadEnvelope(f)
		f.Close()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result := env.Orchestrator.Process(ctx, doc)

		zap.L().Info("processing complete",
			zap.String("document_id", result.DocumentID),
			zap.String("status", string(result.Status)),
			zap.Int("anomalies", len(result.Anomalies)),
			zap.Bool("requires_hitl", result.RequiresHitl),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
