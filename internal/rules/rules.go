// Package rules holds the business-rule thresholds the decision pipeline is
// tuned by. A Rules value is immutable; adjustments produce a new value with
// a bumped version so concurrent workers never observe a half-applied update.
package rules

import (
	"github.com/rotisserie/eris"
)

// Threshold keys recognized by the business-rules store.
const (
	KeyDateVarianceDays       = "date_variance_days"
	KeyAmountVariancePercent  = "amount_variance_percent"
	KeyDuplicateSimilarity    = "duplicate_similarity_threshold"
	KeyLeasePaymentVariance   = "lease_payment_variance_percent"
	KeyPOAmountVariance       = "po_amount_variance_percent"
	KeyScheduleMissTolerance  = "schedule_miss_tolerance_days"
	KeySurplusPaymentPercent  = "surplus_payment_threshold_percent"
	KeyMissedPaymentGraceDays = "missed_payment_grace_days"
	KeyAutoApproveThreshold   = "auto_approve_threshold"
	KeyMaxWorkers             = "max_workers"
)

// Rules is one immutable version of the business-rule configuration.
type Rules struct {
	Version int

	DateVarianceDays       float64
	AmountVariancePercent  float64
	DuplicateSimilarity    float64
	LeasePaymentVariance   float64
	POAmountVariance       float64
	ScheduleMissTolerance  float64
	SurplusPaymentPercent  float64
	MissedPaymentGraceDays float64
	AutoApproveThreshold   float64
	MaxWorkers             int
}

// Defaults returns version 1 of the rule set with the stock thresholds.
func Defaults() Rules {
	return Rules{
		Version:                1,
		DateVarianceDays:       30,
		AmountVariancePercent:  5,
		DuplicateSimilarity:    0.8,
		LeasePaymentVariance:   3,
		POAmountVariance:       15,
		ScheduleMissTolerance:  5,
		SurplusPaymentPercent:  10,
		MissedPaymentGraceDays: 10,
		AutoApproveThreshold:   0.85,
		MaxWorkers:             3,
	}
}

// Merge returns a copy of r with the given overrides applied and the version
// bumped. Unknown keys are rejected so typos in a rules store surface loudly.
func (r Rules) Merge(overrides map[string]float64) (Rules, error) {
	out := r
	for key, value := range overrides {
		switch key {
		case KeyDateVarianceDays:
			out.DateVarianceDays = value
		case KeyAmountVariancePercent:
			out.AmountVariancePercent = value
		case KeyDuplicateSimilarity:
			out.DuplicateSimilarity = value
		case KeyLeasePaymentVariance:
			out.LeasePaymentVariance = value
		case KeyPOAmountVariance:
			out.POAmountVariance = value
		case KeyScheduleMissTolerance:
			out.ScheduleMissTolerance = value
		case KeySurplusPaymentPercent:
			out.SurplusPaymentPercent = value
		case KeyMissedPaymentGraceDays:
			out.MissedPaymentGraceDays = value
		case KeyAutoApproveThreshold:
			out.AutoApproveThreshold = value
		case KeyMaxWorkers:
			if value < 1 {
				return Rules{}, eris.Errorf("rules: max_workers must be >= 1, got %v", value)
			}
			out.MaxWorkers = int(value)
		default:
			return Rules{}, eris.Errorf("rules: unknown threshold %q", key)
		}
	}
	out.Version = r.Version + 1
	return out, nil
}

// Map flattens the rule set into the store representation.
func (r Rules) Map() map[string]float64 {
	return map[string]float64{
		KeyDateVarianceDays:       r.DateVarianceDays,
		KeyAmountVariancePercent:  r.AmountVariancePercent,
		KeyDuplicateSimilarity:    r.DuplicateSimilarity,
		KeyLeasePaymentVariance:   r.LeasePaymentVariance,
		KeyPOAmountVariance:       r.POAmountVariance,
		KeyScheduleMissTolerance:  r.ScheduleMissTolerance,
		KeySurplusPaymentPercent:  r.SurplusPaymentPercent,
		KeyMissedPaymentGraceDays: r.MissedPaymentGraceDays,
		KeyAutoApproveThreshold:   r.AutoApproveThreshold,
		KeyMaxWorkers:             float64(r.MaxWorkers),
	}
}
