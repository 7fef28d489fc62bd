package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerline/docaudit/internal/extract"
)

var ingestDocID string

var ingestCmd = &cobra.Command{
	Use:   "ingest <document>",
	Short: "Extract fields from a raw document via the extraction service and process it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Extraction.BaseURL == "" {
			return eris.New("extraction service not configured (DOCAUDIT_EXTRACTION_BASE_URL)")
		}

		content, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read document")
		}

		docID := ingestDocID
		if docID == "" {
			base := filepath.Base(args[0])
			docID = strings.TrimSuffix(base, filepath.Ext(base))
		}

		svc := extract.NewHTTP(cfg.Extraction.BaseURL, cfg.Extraction.Key)
		doc, err := svc.Extract(ctx, docID, content)
		if err != nil {
			return eris.Wrap(err, "extract fields")
		}

		zap.L().Info("extraction complete",
			zap.String("document_id", doc.ID),
			zap.String("document_type", string(doc.Type)),
			zap.Int("fields", len(doc.Fields)),
		)

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result := env.Orchestrator.Process(ctx, doc)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDocID, "id", "", "document ID (default: file name without extension)")
	rootCmd.AddCommand(ingestCmd)
}
