// Package store defines the persistence interface the decision pipeline
// writes through and its SQLite, Postgres, and in-memory backends.
package store

import (
	"context"
	"time"

	"github.com/ledgerline/docaudit/internal/model"
)

// ValidationRecord is a stored validation outcome, keyed by document.
type ValidationRecord struct {
	DocumentID  string                  `json:"document_id"`
	RiskLevel   model.RiskLevel         `json:"risk_level"`
	Summary     model.ValidationSummary `json:"summary"`
	ValidatedAt time.Time               `json:"validated_at"`
}

// Store is the persistence contract for the decision pipeline. Anomaly,
// validation, and feedback writes are append-only; queue items are mutated
// only by feedback submission.
type Store interface {
	// Documents
	SaveDocument(ctx context.Context, doc model.DocumentRecord) error
	GetDocument(ctx context.Context, id string) (*model.DocumentRecord, error)
	ListDocuments(ctx context.Context) ([]model.DocumentRecord, error)
	// ListRelated returns documents sharing the PO number or vendor name,
	// excluding the document itself, ordered by document id for determinism.
	ListRelated(ctx context.Context, docID, poNumber, vendorName string) ([]model.DocumentRecord, error)

	// Anomalies and validation outcomes
	SaveAnomalies(ctx context.Context, docID string, anomalies []model.Anomaly) error
	ListAnomalies(ctx context.Context, docID string) ([]model.Anomaly, error)
	SaveValidation(ctx context.Context, record ValidationRecord) error
	ListValidations(ctx context.Context) ([]ValidationRecord, error)

	// Contract contexts and contract-invoice mappings
	SaveContractContext(ctx context.Context, cc model.ContractContext) error
	FindContractContext(ctx context.Context, poNumber, vendorName string) (*model.ContractContext, error)
	SaveContractInvoiceMapping(ctx context.Context, contractID, invoiceID string, anomalyCount int) error

	// HITL queue and feedback
	SaveQueueItem(ctx context.Context, item model.HitlQueueItem) error
	UpdateQueueItem(ctx context.Context, item model.HitlQueueItem) error
	ListQueue(ctx context.Context, status model.QueueStatus) ([]model.HitlQueueItem, error)
	SaveFeedback(ctx context.Context, docID string, fb model.Feedback) error

	// Business rules
	GetBusinessRules(ctx context.Context) (map[string]float64, error)
	PutBusinessRules(ctx context.Context, thresholds map[string]float64) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
