package model

import "time"

// Status is a workflow state. A document moves
// STARTED → INGESTED → EXTRACTED → [CONTEXT_STORED | CORRELATED] → DETECTED →
// VALIDATED → {HITL_PENDING | COMPLETED}, with any stage able to fail.
type Status string

const (
	StatusStarted       Status = "STARTED"
	StatusIngested      Status = "INGESTED"
	StatusExtracted     Status = "EXTRACTED"
	StatusContextStored Status = "CONTEXT_STORED"
	StatusCorrelated    Status = "CORRELATED"
	StatusDetected      Status = "DETECTED"
	StatusValidated     Status = "VALIDATED"
	StatusHitlPending   Status = "HITL_PENDING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidationSummary is the per-document outcome of the validation engine.
type ValidationSummary struct {
	Validated            []ValidatedAnomaly `json:"validated_anomalies"`
	RiskLevel            RiskLevel          `json:"risk_level"`
	Recommendations      []string           `json:"recommendations,omitempty"`
	ValidCount           int                `json:"valid_count"`
	InvalidCount         int                `json:"invalid_count"`
	UncertainCount       int                `json:"uncertain_count"`
	TypeBreakdown        map[string]int     `json:"type_breakdown,omitempty"`
	SeverityDistribution map[Severity]int   `json:"severity_distribution,omitempty"`
}

// ProcessingResult is the full outcome of one document's pipeline run.
type ProcessingResult struct {
	SessionID    string             `json:"session_id"`
	DocumentID   string             `json:"document_id"`
	DocumentType DocumentType       `json:"document_type"`
	Status       Status             `json:"workflow_status"`
	FailedStep   string             `json:"failed_step,omitempty"`
	Error        string             `json:"error,omitempty"`
	Anomalies    []Anomaly          `json:"anomalies"`
	Validation   *ValidationSummary `json:"validation,omitempty"`
	RequiresHitl bool               `json:"requires_hitl"`
	StartedAt    time.Time          `json:"started_at"`
	Duration     time.Duration      `json:"duration"`
}
