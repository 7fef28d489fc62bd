package workflow

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ledgerline/docaudit/internal/model"
)

// ErrAlreadyReviewed is returned when feedback arrives for a session that a
// reviewer already closed.
var ErrAlreadyReviewed = eris.New("workflow: queue item already reviewed")

// PendingReviews lists queue items awaiting a reviewer.
func (o *Orchestrator) PendingReviews(ctx context.Context) ([]model.HitlQueueItem, error) {
	items, err := o.store.ListQueue(ctx, model.QueuePending)
	if err != nil {
		return nil, eris.Wrap(err, "workflow: list pending reviews")
	}
	return items, nil
}

// SubmitDocumentFeedback records a reviewer's verdict against a document,
// resolving its pending queue item. When a document was escalated more than
// once, the most recently queued pending item receives the feedback.
func (o *Orchestrator) SubmitDocumentFeedback(ctx context.Context, documentID string, fb model.Feedback) (model.HitlQueueItem, error) {
	if !fb.Valid() {
		return model.HitlQueueItem{}, eris.Errorf("workflow: unknown feedback type %q", fb.Type)
	}

	pending, err := o.store.ListQueue(ctx, model.QueuePending)
	if err != nil {
		return model.HitlQueueItem{}, eris.Wrap(err, "workflow: load queue")
	}
	var item *model.HitlQueueItem
	for i := range pending {
		if pending[i].DocumentID != documentID {
			continue
		}
		if item == nil || pending[i].QueuedAt.After(item.QueuedAt) {
			item = &pending[i]
		}
	}
	if item == nil {
		return model.HitlQueueItem{}, eris.Errorf("workflow: no pending review for document %q", documentID)
	}
	return o.SubmitFeedback(ctx, item.SessionID, fb)
}

// SubmitFeedback records a reviewer's verdict for an escalated session,
// marks the item reviewed, and applies any threshold adjustments as a new
// business-rules version. The read-modify-write on the rule set is atomic:
// concurrent processing observes either the old version or the new one.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, sessionID string, fb model.Feedback) (model.HitlQueueItem, error) {
	if !fb.Valid() {
		return model.HitlQueueItem{}, eris.Errorf("workflow: unknown feedback type %q", fb.Type)
	}

	items, err := o.store.ListQueue(ctx, "")
	if err != nil {
		return model.HitlQueueItem{}, eris.Wrap(err, "workflow: load queue")
	}
	var item *model.HitlQueueItem
	for i := range items {
		if items[i].SessionID == sessionID {
			item = &items[i]
			break
		}
	}
	if item == nil {
		return model.HitlQueueItem{}, eris.Errorf("workflow: unknown session %q", sessionID)
	}
	if item.Status == model.QueueReviewed {
		return model.HitlQueueItem{}, ErrAlreadyReviewed
	}

	now := o.now()
	item.Status = model.QueueReviewed
	item.Feedback = &fb
	item.ReviewedAt = &now
	if err := o.store.UpdateQueueItem(ctx, *item); err != nil {
		return model.HitlQueueItem{}, eris.Wrap(err, "workflow: mark reviewed")
	}
	if err := o.store.SaveFeedback(ctx, item.DocumentID, fb); err != nil {
		return model.HitlQueueItem{}, eris.Wrap(err, "workflow: record feedback")
	}

	if len(fb.ThresholdAdjustments) > 0 {
		if err := o.adjustRules(ctx, fb.ThresholdAdjustments); err != nil {
			return model.HitlQueueItem{}, err
		}
	}

	zap.L().Info("workflow: feedback recorded",
		zap.String("session_id", sessionID),
		zap.String("document_id", item.DocumentID),
		zap.String("feedback_type", string(fb.Type)),
		zap.Int("threshold_adjustments", len(fb.ThresholdAdjustments)),
	)
	return *item, nil
}

// adjustRules merges adjustments into the current rule set under the lock so
// a concurrent adjustment cannot be lost, then persists the new thresholds.
func (o *Orchestrator) adjustRules(ctx context.Context, adjustments map[string]float64) error {
	o.mu.Lock()
	merged, err := o.rules.Merge(adjustments)
	if err != nil {
		o.mu.Unlock()
		return eris.Wrap(err, "workflow: apply threshold adjustments")
	}
	o.rules = merged
	o.mu.Unlock()

	if err := o.store.PutBusinessRules(ctx, merged.Map()); err != nil {
		return eris.Wrap(err, "workflow: persist business rules")
	}
	zap.L().Info("workflow: business rules updated", zap.Int("version", merged.Version))
	return nil
}
