package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerline/docaudit/internal/extract"
	"github.com/ledgerline/docaudit/internal/model"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Process a directory of document envelopes concurrently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		docs, err := readEnvelopeDir(args[0], batchLimit)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			zap.L().Info("no envelopes found", zap.String("dir", args[0]))
			return nil
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result := env.Orchestrator.ProcessBatch(ctx, docs)

		zap.L().Info("batch complete",
			zap.Int("documents", len(docs)),
			zap.Int("completed", result.Completed),
			zap.Int("failed", result.Failed),
			zap.Int("escalated", result.Escalated),
			zap.Duration("duration", result.Duration),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// readEnvelopeDir loads up to limit *.json envelopes from dir in name order.
// Unparsable files abort the batch before any processing starts.
func readEnvelopeDir(dir string, limit int) ([]model.DocumentRecord, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, eris.Wrap(err, "glob envelopes")
	}
	sort.Strings(paths)
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	docs := make([]model.DocumentRecord, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "open envelope %s", path)
		}
		doc, err := extract.ReadEnvelope(f)
		f.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "envelope %s", path)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of envelopes to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}
