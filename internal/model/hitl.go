package model

import "time"

// QueueStatus is the review state of a HITL queue item.
type QueueStatus string

const (
	QueuePending  QueueStatus = "PENDING"
	QueueReviewed QueueStatus = "REVIEWED"
)

// HitlQueueItem is one document escalated for human review. Items are never
// deleted; feedback submission is the only mutation.
type HitlQueueItem struct {
	SessionID  string      `json:"session_id"`
	DocumentID string      `json:"document_id"`
	QueuedAt   time.Time   `json:"queued_at"`
	Status     QueueStatus `json:"status"`
	Priority   string      `json:"priority"`
	Feedback   *Feedback   `json:"feedback,omitempty"`
	ReviewedAt *time.Time  `json:"reviewed_at,omitempty"`
}

// FeedbackType classifies a reviewer's verdict on the pipeline's output.
type FeedbackType string

const (
	FeedbackCorrect   FeedbackType = "CORRECT"
	FeedbackIncorrect FeedbackType = "INCORRECT"
	FeedbackPartial   FeedbackType = "PARTIAL"
)

// Feedback is a human reviewer's response to an escalated document.
// ThresholdAdjustments, when present, feed a new business-rules version.
type Feedback struct {
	Type                 FeedbackType       `json:"feedback_type"`
	Detail               string             `json:"detailed_feedback,omitempty"`
	ThresholdAdjustments map[string]float64 `json:"threshold_adjustments,omitempty"`
}

// Valid reports whether the feedback type is one of the recognized verdicts.
func (f Feedback) Valid() bool {
	switch f.Type {
	case FeedbackCorrect, FeedbackIncorrect, FeedbackPartial:
		return true
	}
	return false
}
