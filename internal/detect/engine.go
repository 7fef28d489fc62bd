// Package detect implements the single-document anomaly rule engine and the
// cross-document correlation and duplicate scans.
package detect

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/rules"
)

var (
	poNumberRe      = regexp.MustCompile(`^[A-Z]{2,4}\d{4,8}$`)
	invoiceNumberRe = regexp.MustCompile(`^[A-Z0-9\-]{3,15}$`)
)

// amountPrinter renders amounts with thousands separators in descriptions.
var amountPrinter = message.NewPrinter(language.AmericanEnglish)

const (
	unusualAmountCeiling = 10_000_000
	leaseTermMinMonths   = 1
	leaseTermMaxMonths   = 600
	leaseTermSlackMonths = 2
	oldPODays            = 730
)

// Engine evaluates per-document-type anomaly rules against one document.
// It is a pure function of fields and thresholds: re-running it on an
// unchanged document yields an identical anomaly list.
type Engine struct {
	rules rules.Rules
	now   func() time.Time
}

// NewEngine builds an Engine over the given rule thresholds.
func NewEngine(r rules.Rules) *Engine {
	return &Engine{rules: r, now: time.Now}
}

// rule evaluates one check. A nil anomaly with nil error means the document
// passed; an error means the rule could not evaluate and is skipped.
type rule func() (*model.Anomaly, error)

// Detect runs the rule set keyed by the document's type. Rules that cannot
// evaluate (parse failure, missing field) are skipped, never fatal.
func (e *Engine) Detect(doc model.DocumentRecord) []model.Anomaly {
	var checks []rule
	switch doc.Type {
	case model.DocTypeInvoice:
		checks = e.invoiceRules(doc)
	case model.DocTypeContract:
		checks = e.contractRules(doc)
	case model.DocTypePurchaseOrder:
		checks = e.poRules(doc)
	default:
		return nil
	}

	var anomalies []model.Anomaly
	for _, check := range checks {
		a, err := check()
		if err != nil {
			if !eris.Is(err, ErrMissingField) {
				zap.L().Debug("detect: rule skipped",
					zap.String("document_id", doc.ID),
					zap.Error(err),
				)
			}
			continue
		}
		if a != nil {
			anomalies = append(anomalies, *a)
		}
	}
	return anomalies
}

func (e *Engine) invoiceRules(doc model.DocumentRecord) []rule {
	return []rule{
		func() (*model.Anomaly, error) {
			return e.checkDateVariance(doc.Field("invoice_date"), doc.Field("due_date"), "invoice to due date")
		},
		func() (*model.Anomaly, error) {
			return checkAmount(doc.Field("total_amount"), "invoice amount")
		},
		func() (*model.Anomaly, error) {
			return checkPOFormat(doc.Field("po_number"))
		},
		func() (*model.Anomaly, error) {
			return checkInvoiceNumberFormat(doc.Field("invoice_number"))
		},
	}
}

func (e *Engine) contractRules(doc model.DocumentRecord) []rule {
	return []rule{
		func() (*model.Anomaly, error) {
			return checkLeaseSchedule(doc.Field("effective_date"), doc.Field("expiration_date"), doc.Field("lease_term"))
		},
		func() (*model.Anomaly, error) {
			return checkAmount(doc.Field("lease_amount"), "lease amount")
		},
		func() (*model.Anomaly, error) {
			return checkLeaseTerm(doc.Field("lease_term"))
		},
	}
}

func (e *Engine) poRules(doc model.DocumentRecord) []rule {
	return []rule{
		func() (*model.Anomaly, error) {
			return checkPOFormat(doc.Field("po_number"))
		},
		func() (*model.Anomaly, error) {
			return e.checkPODate(doc.Field("po_date"))
		},
		func() (*model.Anomaly, error) {
			return checkAmount(doc.Field("total_amount"), "PO amount")
		},
	}
}

// checkDateVariance flags two dates further apart than the variance threshold.
// Confidence scales with how far past the threshold the gap is.
func (e *Engine) checkDateVariance(date1, date2, context string) (*model.Anomaly, error) {
	if date1 == "" || date2 == "" {
		return nil, ErrMissingField
	}
	d1, err := ParseDate(date1)
	if err != nil {
		return nil, err
	}
	d2, err := ParseDate(date2)
	if err != nil {
		return nil, err
	}

	threshold := e.rules.DateVarianceDays
	diffDays := math.Abs(d2.Sub(d1).Hours() / 24)
	if diffDays <= threshold {
		return nil, nil
	}
	return &model.Anomaly{
		Type:     model.TypeDateMismatch,
		Severity: model.SeverityMedium,
		Description: fmt.Sprintf("%s variance is %.0f days, exceeds threshold of %.0f days",
			context, diffDays, threshold),
		Confidence: math.Min(1, diffDays/(threshold*2)),
		Extra:      map[string]any{"variance_days": diffDays},
	}, nil
}

func checkAmount(amount, context string) (*model.Anomaly, error) {
	if amount == "" {
		return nil, ErrMissingField
	}
	v, err := ParseAmount(amount)
	if err != nil {
		return &model.Anomaly{
			Type:        model.TypeInvalidAmountFormat,
			Severity:    model.SeverityHigh,
			Description: fmt.Sprintf("%s format is invalid: %s", context, amount),
			Confidence:  1.0,
		}, nil
	}
	if v <= 0 {
		return &model.Anomaly{
			Type:        model.TypeInvalidAmount,
			Severity:    model.SeverityHigh,
			Description: fmt.Sprintf("%s is %s, which is invalid (zero or negative)", context, amount),
			Confidence:  1.0,
		}, nil
	}
	if v > unusualAmountCeiling {
		return &model.Anomaly{
			Type:        model.TypeUnusualAmount,
			Severity:    model.SeverityMedium,
			Description: amountPrinter.Sprintf("%s is $%.2f, which is unusually large", context, v),
			Confidence:  0.7,
			Extra:       map[string]any{"amount": v},
		}, nil
	}
	return nil, nil
}

func checkPOFormat(poNumber string) (*model.Anomaly, error) {
	if poNumber == "" {
		return nil, ErrMissingField
	}
	if poNumberRe.MatchString(poNumber) {
		return nil, nil
	}
	return &model.Anomaly{
		Type:        model.TypePOFormat,
		Severity:    model.SeverityMedium,
		Description: fmt.Sprintf("PO number format is non-standard: %s", poNumber),
		Confidence:  0.8,
	}, nil
}

func checkInvoiceNumberFormat(invoiceNumber string) (*model.Anomaly, error) {
	if invoiceNumber == "" {
		return nil, ErrMissingField
	}
	if invoiceNumberRe.MatchString(invoiceNumber) {
		return nil, nil
	}
	return &model.Anomaly{
		Type:        model.TypeInvoiceFormat,
		Severity:    model.SeverityLow,
		Description: fmt.Sprintf("Invoice number format is unusual: %s", invoiceNumber),
		Confidence:  0.6,
	}, nil
}

// checkLeaseSchedule compares the calendar span of the lease against the
// stated term, allowing two months of slack.
func checkLeaseSchedule(startDate, endDate, term string) (*model.Anomaly, error) {
	if startDate == "" || endDate == "" || term == "" {
		return nil, ErrMissingField
	}
	start, err := ParseDate(startDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return nil, err
	}
	stated, err := ParseTermMonths(term)
	if err != nil {
		return nil, err
	}

	calculated := MonthsBetween(start, end)
	if int(math.Abs(float64(calculated-stated))) <= leaseTermSlackMonths {
		return nil, nil
	}
	return &model.Anomaly{
		Type:     model.TypeLeaseScheduleGap,
		Severity: model.SeverityHigh,
		Description: fmt.Sprintf("Lease term mismatch: calculated %d months vs stated %d months",
			calculated, stated),
		Confidence: 0.9,
		Extra:      map[string]any{"calculated_months": calculated, "stated_months": stated},
	}, nil
}

func checkLeaseTerm(term string) (*model.Anomaly, error) {
	if term == "" {
		return nil, ErrMissingField
	}
	months, err := ParseTermMonths(term)
	if err != nil {
		return nil, err
	}
	if months >= leaseTermMinMonths && months <= leaseTermMaxMonths {
		return nil, nil
	}
	return &model.Anomaly{
		Type:        model.TypeUnusualLeaseTerm,
		Severity:    model.SeverityMedium,
		Description: fmt.Sprintf("Lease term is unusual: %s", term),
		Confidence:  0.8,
		Extra:       map[string]any{"term_months": months},
	}, nil
}

func (e *Engine) checkPODate(poDate string) (*model.Anomaly, error) {
	if poDate == "" {
		return nil, ErrMissingField
	}
	d, err := ParseDate(poDate)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if d.After(now) {
		return &model.Anomaly{
			Type:        model.TypeFuturePODate,
			Severity:    model.SeverityMedium,
			Description: fmt.Sprintf("PO date is in the future: %s", poDate),
			Confidence:  0.9,
		}, nil
	}
	if d.Before(now.AddDate(0, 0, -oldPODays)) {
		return &model.Anomaly{
			Type:        model.TypeOldPODate,
			Severity:    model.SeverityLow,
			Description: fmt.Sprintf("PO date is very old: %s", poDate),
			Confidence:  0.6,
		}, nil
	}
	return nil, nil
}
