// Package workflow drives a document through ingestion, detection,
// validation, and escalation. The orchestrator owns the state machine; the
// rule engines it delegates to are stateless.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ledgerline/docaudit/internal/compare"
	"github.com/ledgerline/docaudit/internal/detect"
	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/rules"
	"github.com/ledgerline/docaudit/internal/semantic"
	"github.com/ledgerline/docaudit/internal/store"
	"github.com/ledgerline/docaudit/internal/validate"
)

// hitlAnomalyCountLimit escalates any document with more anomalies than
// this, regardless of confidence.
const hitlAnomalyCountLimit = 5

// Orchestrator coordinates one document's pass through the decision
// pipeline. Safe for concurrent use; rule updates swap an immutable Rules
// value under the mutex.
type Orchestrator struct {
	store    store.Store
	analyzer semantic.Analyzer
	cache    *contractCache

	mu    sync.RWMutex
	rules rules.Rules

	now func() time.Time
}

// Options tunes orchestrator construction.
type Options struct {
	Rules         rules.Rules
	Analyzer      semantic.Analyzer
	CacheCapacity int
	CacheTTL      time.Duration
}

// New builds an orchestrator over the given store.
func New(st store.Store, opts Options) *Orchestrator {
	r := opts.Rules
	if r.Version == 0 {
		r = rules.Defaults()
	}
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = semantic.Noop{}
	}
	return &Orchestrator{
		store:    st,
		analyzer: analyzer,
		cache:    newContractCache(opts.CacheCapacity, opts.CacheTTL),
		rules:    r,
		now:      time.Now,
	}
}

// Rules returns the current business-rule version.
func (o *Orchestrator) Rules() rules.Rules {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.rules
}

// SetRules replaces the active rule set, e.g. after loading stored overrides.
func (o *Orchestrator) SetRules(r rules.Rules) {
	o.mu.Lock()
	o.rules = r
	o.mu.Unlock()
}

// LoadStoredRules merges persisted threshold overrides into the defaults.
func (o *Orchestrator) LoadStoredRules(ctx context.Context) error {
	overrides, err := o.store.GetBusinessRules(ctx)
	if err != nil {
		return eris.Wrap(err, "workflow: load business rules")
	}
	if len(overrides) == 0 {
		return nil
	}
	merged, err := rules.Defaults().Merge(overrides)
	if err != nil {
		return eris.Wrap(err, "workflow: merge business rules")
	}
	o.SetRules(merged)
	return nil
}

// Process runs the full pipeline for one document. It always returns a
// result; pipeline failures are reported through the result's status rather
// than an error so batch runs can account for them per document.
func (o *Orchestrator) Process(ctx context.Context, doc model.DocumentRecord) model.ProcessingResult {
	start := o.now()
	result := model.ProcessingResult{
		SessionID:    uuid.NewString(),
		DocumentID:   doc.ID,
		DocumentType: doc.Type,
		Status:       model.StatusStarted,
		StartedAt:    start,
	}
	log := zap.L().With(
		zap.String("session_id", result.SessionID),
		zap.String("document_id", doc.ID),
		zap.String("document_type", string(doc.Type)),
	)
	log.Info("workflow: processing document")

	fail := func(step string, err error) model.ProcessingResult {
		result.Status = model.StatusFailed
		result.FailedStep = step
		result.Error = err.Error()
		result.Duration = o.now().Sub(start)
		log.Error("workflow: step failed", zap.String("step", step), zap.Error(err))
		return result
	}

	// Ingest.
	if doc.ID == "" {
		return fail("ingest", eris.New("workflow: document id is empty"))
	}
	if doc.Type == model.DocTypeUnknown || doc.Type == "" {
		return fail("ingest", eris.Errorf("workflow: unsupported document type %q", doc.Type))
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = start
	}
	result.Status = model.StatusIngested

	// Persist the document. A dead store degrades the run instead of failing
	// it: detection still works, correlation and history do not.
	degraded := false
	if err := o.store.SaveDocument(ctx, doc); err != nil {
		degraded = true
		log.Warn("workflow: persistence unavailable, continuing degraded", zap.Error(err))
	}
	result.Status = model.StatusExtracted

	r := o.Rules()

	// Contracts publish their lease terms for later invoices.
	if doc.Type == model.DocTypeContract {
		cc := model.ContractContextFrom(doc, o.now())
		o.cache.Put(cc)
		if !degraded {
			if err := o.store.SaveContractContext(ctx, cc); err != nil {
				log.Warn("workflow: contract context write failed", zap.Error(err))
			}
		}
		result.Status = model.StatusContextStored
	}

	// Detection: per-document rules first, then cross-document checks.
	engine := detect.NewEngine(r)
	anomalies := engine.Detect(doc)

	if !degraded {
		related, err := o.store.ListRelated(ctx, doc.ID, doc.Field("po_number"), doc.Field("vendor_name"))
		if err != nil {
			log.Warn("workflow: related lookup failed", zap.Error(err))
		} else if len(related) > 0 {
			correlator := detect.NewCorrelator(r)
			anomalies = append(anomalies, correlator.Correlate(doc, related)...)
		}

		corpus, err := o.store.ListDocuments(ctx)
		if err != nil {
			log.Warn("workflow: corpus lookup failed", zap.Error(err))
		} else {
			detector := detect.NewDetector(r)
			anomalies = append(anomalies, detector.Scan(doc, corpus)...)
		}
	}

	// Invoices are checked against the contract they bill under.
	if doc.Type == model.DocTypeInvoice {
		if cc, ok := o.resolveContract(ctx, doc, degraded, log); ok {
			comparator := compare.New(r)
			contractAnomalies := comparator.Compare(cc, doc)
			anomalies = append(anomalies, contractAnomalies...)
			if !degraded {
				if err := o.store.SaveContractInvoiceMapping(ctx, cc.ContractID, doc.ID, len(contractAnomalies)); err != nil {
					log.Warn("workflow: contract invoice mapping write failed", zap.Error(err))
				}
			}
			result.Status = model.StatusCorrelated
		}
	}

	// Semantic findings supplement the rule engine and never block.
	if semanticAnomalies, err := o.analyzer.Analyze(ctx, doc); err != nil {
		log.Warn("workflow: semantic analysis failed", zap.Error(err))
	} else {
		anomalies = append(anomalies, semanticAnomalies...)
	}

	result.Status = model.StatusDetected
	result.Anomalies = anomalies
	if !degraded {
		if err := o.store.SaveAnomalies(ctx, doc.ID, anomalies); err != nil {
			log.Warn("workflow: anomaly write failed", zap.Error(err))
		}
	}

	// Validation.
	validator := validate.NewEngine(r)
	summary := validator.Validate(anomalies, doc)
	result.Validation = &summary
	result.Status = model.StatusValidated
	if !degraded {
		if err := o.store.SaveValidation(ctx, store.ValidationRecord{
			DocumentID:  doc.ID,
			RiskLevel:   summary.RiskLevel,
			Summary:     summary,
			ValidatedAt: o.now(),
		}); err != nil {
			log.Warn("workflow: validation write failed", zap.Error(err))
		}
	}

	// Escalation decision.
	if requiresReview(anomalies, r.AutoApproveThreshold) {
		result.RequiresHitl = true
		result.Status = model.StatusHitlPending
		item := model.HitlQueueItem{
			SessionID:  result.SessionID,
			DocumentID: doc.ID,
			QueuedAt:   o.now(),
			Status:     model.QueuePending,
			Priority:   priorityFor(summary.RiskLevel),
		}
		if degraded {
			log.Warn("workflow: queue item not persisted, store degraded")
		} else if err := o.store.SaveQueueItem(ctx, item); err != nil {
			log.Warn("workflow: queue write failed", zap.Error(err))
		}
		log.Info("workflow: escalated for human review",
			zap.String("priority", item.Priority),
			zap.Int("anomalies", len(anomalies)),
		)
	} else {
		result.Status = model.StatusCompleted
	}

	result.Duration = o.now().Sub(start)
	log.Info("workflow: document processed",
		zap.String("status", string(result.Status)),
		zap.String("risk_level", string(summary.RiskLevel)),
		zap.Int("anomalies", len(anomalies)),
		zap.Duration("duration", result.Duration),
	)
	return result
}

// resolveContract finds the contract an invoice bills under: cache first,
// then the store, matching by PO number before vendor name.
func (o *Orchestrator) resolveContract(ctx context.Context, doc model.DocumentRecord, degraded bool, log *zap.Logger) (model.ContractContext, bool) {
	poNumber := doc.Field("po_number")
	vendorName := doc.Field("vendor_name")

	if cc, ok := o.cache.Get(poNumber, vendorName); ok {
		return cc, true
	}
	if degraded {
		return model.ContractContext{}, false
	}
	cc, err := o.store.FindContractContext(ctx, poNumber, vendorName)
	if err != nil {
		log.Warn("workflow: contract context lookup failed", zap.Error(err))
		return model.ContractContext{}, false
	}
	if cc == nil {
		return model.ContractContext{}, false
	}
	o.cache.Put(*cc)
	return *cc, true
}

// requiresReview escalates when mean anomaly confidence falls below the
// auto-approve threshold or the anomaly count alone warrants a human look.
// A clean document counts as full confidence.
func requiresReview(anomalies []model.Anomaly, autoApprove float64) bool {
	if len(anomalies) > hitlAnomalyCountLimit {
		return true
	}
	if len(anomalies) == 0 {
		return 1.0 < autoApprove
	}
	var sum float64
	for _, a := range anomalies {
		sum += a.Confidence
	}
	return sum/float64(len(anomalies)) < autoApprove
}

func priorityFor(risk model.RiskLevel) string {
	switch risk {
	case model.RiskHigh:
		return "URGENT"
	case model.RiskMedium:
		return "HIGH"
	}
	return "NORMAL"
}
