package workflow

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/docaudit/internal/model"
)

// BatchResult aggregates the outcomes of one batch run. One document failing
// never aborts the batch; its FAILED result is counted and carried alongside
// the successes.
type BatchResult struct {
	Results   []model.ProcessingResult `json:"results"`
	Completed int                      `json:"completed"`
	Failed    int                      `json:"failed"`
	Escalated int                      `json:"escalated"`
	Duration  time.Duration            `json:"duration"`
}

// ProcessBatch runs documents through the pipeline with a bounded worker
// pool. Results keep the input order.
func (o *Orchestrator) ProcessBatch(ctx context.Context, docs []model.DocumentRecord) BatchResult {
	start := o.now()
	workers := o.Rules().MaxWorkers
	log := zap.L().With(zap.Int("documents", len(docs)), zap.Int("workers", workers))
	log.Info("workflow: batch starting")

	var completed, failed, escalated atomic.Int64
	results := make([]model.ProcessingResult, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, doc := range docs {
		g.Go(func() error {
			result := o.Process(gctx, doc)
			results[i] = result
			switch {
			case result.Status == model.StatusFailed:
				failed.Add(1)
			case result.RequiresHitl:
				escalated.Add(1)
			default:
				completed.Add(1)
			}
			return nil
		})
	}
	// Workers never return errors; per-document failures live in results.
	_ = g.Wait()

	batch := BatchResult{
		Results:   results,
		Completed: int(completed.Load()),
		Failed:    int(failed.Load()),
		Escalated: int(escalated.Load()),
		Duration:  o.now().Sub(start),
	}
	log.Info("workflow: batch finished",
		zap.Int("completed", batch.Completed),
		zap.Int("failed", batch.Failed),
		zap.Int("escalated", batch.Escalated),
		zap.Duration("duration", batch.Duration),
	)
	return batch
}
