// Package compare implements the specialized lease contract vs invoice
// comparator: date-window violations, amount variance, schedule misses,
// over/under-payment, and schedule misalignment.
package compare

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ledgerline/docaudit/internal/detect"
	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/rules"
)

var amountPrinter = message.NewPrinter(language.AmericanEnglish)

const (
	leaseVarianceTriggerPercent = 5.0
	leaseVarianceHighPercent    = 15.0
	surplusTriggerPercent       = 10.0
	surplusHighPercent          = 20.0
	shortfallTriggerPercent     = 10.0
	paymentIntervalDays         = 30
	dayOfMonthSlack             = 5
)

// Comparator evaluates an invoice against the lease terms captured from its
// contract. Every emitted anomaly carries a subtype and the magnitudes the
// validation engine needs in Extra.
type Comparator struct {
	rules rules.Rules
}

// New builds a Comparator over the given rule thresholds.
func New(r rules.Rules) *Comparator {
	return &Comparator{rules: r}
}

// Compare runs every deterministic contract-invoice check. Checks whose
// inputs are missing or unparsable are skipped individually.
func (c *Comparator) Compare(contract model.ContractContext, invoice model.DocumentRecord) []model.Anomaly {
	var anomalies []model.Anomaly

	anomalies = append(anomalies, c.dateWindow(contract, invoice)...)
	if a := c.leaseAmountVariance(contract, invoice); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := c.scheduleMiss(contract, invoice); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := c.surplusPayment(contract, invoice); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := c.missedPayment(contract, invoice); a != nil {
		anomalies = append(anomalies, *a)
	}
	if a := c.scheduleMisalignment(contract, invoice); a != nil {
		anomalies = append(anomalies, *a)
	}
	return anomalies
}

// dateWindow flags invoices dated outside [effective_date, expiration_date].
func (c *Comparator) dateWindow(contract model.ContractContext, invoice model.DocumentRecord) []model.Anomaly {
	invoiceDate := invoice.Field("invoice_date")
	invDt, err := detect.ParseDate(invoiceDate)
	if err != nil {
		return nil
	}

	var anomalies []model.Anomaly
	if start, err := detect.ParseDate(contract.EffectiveDate); err == nil && invDt.Before(start) {
		anomalies = append(anomalies, model.Anomaly{
			Type:     model.TypeDateMismatch,
			Subtype:  model.SubInvoiceBeforeStart,
			Severity: model.SeverityHigh,
			Description: fmt.Sprintf("Invoice date %s is before contract effective date %s",
				invoiceDate, contract.EffectiveDate),
			Confidence: 0.95,
			Extra: map[string]any{
				"contract_date": contract.EffectiveDate,
				"invoice_date":  invoiceDate,
				"variance_days": start.Sub(invDt).Hours() / 24,
			},
		})
	}
	if end, err := detect.ParseDate(contract.ExpirationDate); err == nil && invDt.After(end) {
		anomalies = append(anomalies, model.Anomaly{
			Type:     model.TypeDateMismatch,
			Subtype:  model.SubInvoiceAfterEnd,
			Severity: model.SeverityHigh,
			Description: fmt.Sprintf("Invoice date %s is after contract expiration date %s",
				invoiceDate, contract.ExpirationDate),
			Confidence: 0.95,
			Extra: map[string]any{
				"contract_date": contract.ExpirationDate,
				"invoice_date":  invoiceDate,
				"variance_days": invDt.Sub(end).Hours() / 24,
			},
		})
	}
	return anomalies
}

func (c *Comparator) amounts(contract model.ContractContext, invoice model.DocumentRecord) (lease, inv float64, ok bool) {
	lease, err := detect.ParseAmount(contract.LeaseAmount)
	if err != nil || lease == 0 {
		return 0, 0, false
	}
	inv, err = detect.ParseAmount(invoice.Field("total_amount"))
	if err != nil {
		return 0, 0, false
	}
	return lease, inv, true
}

// leaseAmountVariance flags invoice totals off the lease amount by more than
// 5%, escalating to HIGH at 15%.
func (c *Comparator) leaseAmountVariance(contract model.ContractContext, invoice model.DocumentRecord) *model.Anomaly {
	lease, inv, ok := c.amounts(contract, invoice)
	if !ok {
		return nil
	}
	variance := math.Abs((inv - lease) / lease * 100)
	if variance <= leaseVarianceTriggerPercent {
		return nil
	}
	severity := model.SeverityMedium
	if variance >= leaseVarianceHighPercent {
		severity = model.SeverityHigh
	}
	return &model.Anomaly{
		Type:     model.TypeAmountDiscrepancy,
		Subtype:  model.SubLeaseAmountMismatch,
		Severity: severity,
		Description: amountPrinter.Sprintf("Invoice amount $%.2f differs from lease amount $%.2f by %.1f%%",
			inv, lease, variance),
		Confidence: math.Min(1, variance/(leaseVarianceTriggerPercent*2)),
		Extra: map[string]any{
			"contract_amount":  lease,
			"invoice_amount":   inv,
			"variance_percent": variance,
		},
	}
}

// scheduleMiss flags invoices landing further from the nearest expected
// 30-day payment interval than the grace window allows.
func (c *Comparator) scheduleMiss(contract model.ContractContext, invoice model.DocumentRecord) *model.Anomaly {
	if contract.LeaseTerm == "" {
		return nil
	}
	start, err := detect.ParseDate(contract.EffectiveDate)
	if err != nil {
		return nil
	}
	invDt, err := detect.ParseDate(invoice.Field("invoice_date"))
	if err != nil || invDt.Before(start) {
		return nil
	}

	daysDiff := int(invDt.Sub(start).Hours() / 24)
	offset := daysDiff % paymentIntervalDays
	if offset > paymentIntervalDays/2 {
		offset = paymentIntervalDays - offset
	}
	if float64(offset) <= c.rules.MissedPaymentGraceDays {
		return nil
	}
	return &model.Anomaly{
		Type:     model.TypeScheduleMiss,
		Subtype:  model.SubMissingPayment,
		Severity: model.SeverityHigh,
		Description: fmt.Sprintf("Invoice is %d days off the expected monthly payment schedule",
			offset),
		Confidence: 0.8,
		Extra:      map[string]any{"days_late": offset},
	}
}

// surplusPayment flags invoices exceeding the lease amount by more than 10%,
// escalating to HIGH at 20%.
func (c *Comparator) surplusPayment(contract model.ContractContext, invoice model.DocumentRecord) *model.Anomaly {
	lease, inv, ok := c.amounts(contract, invoice)
	if !ok || inv <= lease {
		return nil
	}
	surplus := inv - lease
	surplusPercent := surplus / lease * 100
	if surplusPercent <= surplusTriggerPercent {
		return nil
	}
	severity := model.SeverityMedium
	if surplusPercent >= surplusHighPercent {
		severity = model.SeverityHigh
	}
	return &model.Anomaly{
		Type:     model.TypeSurplusPayment,
		Subtype:  model.SubOverpayment,
		Severity: severity,
		Description: amountPrinter.Sprintf("Invoice amount $%.2f exceeds lease amount $%.2f by $%.2f (%.1f%%)",
			inv, lease, surplus, surplusPercent),
		Confidence: 0.9,
		Extra: map[string]any{
			"surplus_amount":  surplus,
			"surplus_percent": surplusPercent,
		},
	}
}

// missedPayment flags invoices short of the lease amount by more than 10%.
func (c *Comparator) missedPayment(contract model.ContractContext, invoice model.DocumentRecord) *model.Anomaly {
	lease, inv, ok := c.amounts(contract, invoice)
	if !ok || inv >= lease {
		return nil
	}
	shortfall := lease - inv
	shortfallPercent := shortfall / lease * 100
	if shortfallPercent <= shortfallTriggerPercent {
		return nil
	}
	return &model.Anomaly{
		Type:     model.TypeMissedPayment,
		Subtype:  model.SubUnderpayment,
		Severity: model.SeverityHigh,
		Description: amountPrinter.Sprintf("Invoice amount $%.2f is less than lease amount $%.2f by $%.2f (%.1f%%)",
			inv, lease, shortfall, shortfallPercent),
		Confidence: 0.9,
		Extra: map[string]any{
			"shortfall_amount":  shortfall,
			"shortfall_percent": shortfallPercent,
		},
	}
}

// scheduleMisalignment flags invoices whose day of month drifts more than
// five days from the contract start's day of month.
func (c *Comparator) scheduleMisalignment(contract model.ContractContext, invoice model.DocumentRecord) *model.Anomaly {
	start, err := detect.ParseDate(contract.EffectiveDate)
	if err != nil {
		return nil
	}
	invoiceDate := invoice.Field("invoice_date")
	invDt, err := detect.ParseDate(invoiceDate)
	if err != nil {
		return nil
	}

	expectedDay := start.Day()
	actualDay := invDt.Day()
	if int(math.Abs(float64(expectedDay-actualDay))) <= dayOfMonthSlack {
		return nil
	}
	return &model.Anomaly{
		Type:     model.TypeScheduleMisalignment,
		Subtype:  model.SubPaymentDateMismatch,
		Severity: model.SeverityMedium,
		Description: fmt.Sprintf("Invoice date %s does not align with expected monthly payment schedule (expected around day %d)",
			invoiceDate, expectedDay),
		Confidence: 0.7,
		Extra: map[string]any{
			"expected_day": expectedDay,
			"actual_day":   actualDay,
		},
	}
}
