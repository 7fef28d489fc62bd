// Package validate re-evaluates detected anomalies against the configurable
// business thresholds, classifies them valid/invalid/uncertain, and computes
// the document risk level.
package validate

import (
	"fmt"
	"strings"

	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/rules"
)

// uncertainConfidence is the floor below which a verdict is withheld.
const uncertainConfidence = 0.5

// invalidCountHighRisk is the invalid-anomaly count that alone raises the
// document to HIGH risk.
const invalidCountHighRisk = 3

// Engine validates anomalies against one immutable rules version.
type Engine struct {
	rules rules.Rules
}

// NewEngine builds a validation Engine over the given rule thresholds.
func NewEngine(r rules.Rules) *Engine {
	return &Engine{rules: r}
}

// Validate wraps each anomaly with a verdict and aggregates the document's
// risk level, recommendations, and breakdowns. Input anomalies are never
// mutated.
func (e *Engine) Validate(anomalies []model.Anomaly, doc model.DocumentRecord) model.ValidationSummary {
	summary := model.ValidationSummary{
		Validated:            make([]model.ValidatedAnomaly, 0, len(anomalies)),
		TypeBreakdown:        map[string]int{},
		SeverityDistribution: map[model.Severity]int{},
	}

	anyHigh := false
	var recommendations []string

	for _, a := range anomalies {
		va := e.validateOne(a)
		summary.Validated = append(summary.Validated, va)

		summary.TypeBreakdown[a.Type]++
		summary.SeverityDistribution[a.Severity]++
		if a.Severity == model.SeverityHigh {
			anyHigh = true
		}

		switch {
		case va.IsValid == nil:
			summary.UncertainCount++
		case *va.IsValid:
			summary.ValidCount++
		default:
			summary.InvalidCount++
		}
		recommendations = append(recommendations, va.Recommendations...)
	}

	summary.Recommendations = dedupe(recommendations)
	summary.RiskLevel = riskLevel(len(anomalies), anyHigh, summary.InvalidCount)
	return summary
}

// validateOne applies the matching threshold family. Precedence: HIGH
// severity always fails; low confidence withholds the verdict; otherwise the
// anomaly's magnitude is compared against its threshold.
func (e *Engine) validateOne(a model.Anomaly) model.ValidatedAnomaly {
	va := model.ValidatedAnomaly{Anomaly: a}

	if a.Severity == model.SeverityHigh {
		va.IsValid = boolPtr(false)
		va.Recommendations = append(va.Recommendations,
			fmt.Sprintf("High severity anomaly requires immediate review: %s", a.Description))
		if threshold, used := e.thresholdFor(a); used {
			va.ThresholdUsed = threshold
		}
		return va
	}

	if a.Confidence < uncertainConfidence {
		va.Recommendations = append(va.Recommendations,
			fmt.Sprintf("Low confidence anomaly (%.0f%%) - verify manually", a.Confidence*100))
		return va
	}

	switch {
	case strings.Contains(a.Type, model.TypeDateMismatch):
		threshold := e.rules.DateVarianceDays
		va.ThresholdUsed = fmt.Sprintf("%.0f days", threshold)
		variance, ok := a.ExtraFloat("variance_days")
		if !ok || variance > threshold {
			va.IsValid = boolPtr(false)
			va.Recommendations = append(va.Recommendations,
				fmt.Sprintf("Review date mismatch: %s", a.Description))
		} else {
			va.IsValid = boolPtr(true)
		}

	case isAmountFamily(a.Type):
		threshold, label := e.amountThreshold(a)
		va.ThresholdUsed = label
		variance := amountMagnitude(a)
		if variance > threshold {
			va.IsValid = boolPtr(false)
			va.Recommendations = append(va.Recommendations,
				fmt.Sprintf("Amount variance %.1f%% exceeds threshold %.0f%%", variance, threshold))
		} else {
			va.IsValid = boolPtr(true)
		}

	case strings.Contains(a.Type, model.TypeScheduleMiss):
		threshold := e.rules.ScheduleMissTolerance
		va.ThresholdUsed = fmt.Sprintf("%.0f days", threshold)
		daysLate, _ := a.ExtraFloat("days_late")
		if daysLate > threshold {
			va.IsValid = boolPtr(false)
			va.Recommendations = append(va.Recommendations,
				fmt.Sprintf("Payment is %.0f days late - investigate", daysLate))
		} else {
			va.IsValid = boolPtr(true)
		}

	default:
		// No threshold family applies; the anomaly stands as within bounds.
		va.IsValid = boolPtr(true)
	}

	return va
}

func isAmountFamily(anomalyType string) bool {
	return strings.Contains(anomalyType, model.TypeAmountDiscrepancy) ||
		strings.Contains(anomalyType, model.TypeSurplusPayment) ||
		strings.Contains(anomalyType, model.TypeMissedPayment) ||
		strings.Contains(anomalyType, model.TypeAmountMismatch)
}

func (e *Engine) amountThreshold(a model.Anomaly) (float64, string) {
	switch {
	case strings.Contains(a.Type, model.TypeSurplusPayment):
		return e.rules.SurplusPaymentPercent, fmt.Sprintf("%.0f%%", e.rules.SurplusPaymentPercent)
	case strings.Contains(a.Subtype, "LEASE_AMOUNT"):
		return e.rules.LeasePaymentVariance, fmt.Sprintf("%.0f%%", e.rules.LeasePaymentVariance)
	default:
		return e.rules.AmountVariancePercent, fmt.Sprintf("%.0f%%", e.rules.AmountVariancePercent)
	}
}

// amountMagnitude pulls whichever percentage magnitude the anomaly carries.
func amountMagnitude(a model.Anomaly) float64 {
	for _, key := range []string{"variance_percent", "surplus_percent", "shortfall_percent"} {
		if v, ok := a.ExtraFloat(key); ok {
			return v
		}
	}
	return 0
}

func (e *Engine) thresholdFor(a model.Anomaly) (string, bool) {
	switch {
	case strings.Contains(a.Type, model.TypeDateMismatch):
		return fmt.Sprintf("%.0f days", e.rules.DateVarianceDays), true
	case isAmountFamily(a.Type):
		_, label := e.amountThreshold(a)
		return label, true
	case strings.Contains(a.Type, model.TypeScheduleMiss):
		return fmt.Sprintf("%.0f days", e.rules.ScheduleMissTolerance), true
	}
	return "", false
}

// riskLevel applies the ladder: NONE with no anomalies, HIGH on any
// high-severity anomaly or more than three invalid ones, MEDIUM on any
// invalid, LOW otherwise.
func riskLevel(total int, anyHigh bool, invalidCount int) model.RiskLevel {
	switch {
	case total == 0:
		return model.RiskNone
	case anyHigh || invalidCount > invalidCountHighRisk:
		return model.RiskHigh
	case invalidCount > 0:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func boolPtr(b bool) *bool { return &b }

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
