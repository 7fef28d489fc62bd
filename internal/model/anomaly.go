package model

// Severity grades how serious an anomaly is.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Anomaly type constants emitted by the rule engine and correlators.
const (
	TypeDateMismatch         = "DATE_MISMATCH"
	TypeInvalidAmount        = "INVALID_AMOUNT"
	TypeInvalidAmountFormat  = "INVALID_AMOUNT_FORMAT"
	TypeUnusualAmount        = "UNUSUAL_AMOUNT"
	TypePOFormat             = "PO_FORMAT_ANOMALY"
	TypeInvoiceFormat        = "INVOICE_FORMAT_ANOMALY"
	TypeLeaseScheduleGap     = "LEASE_SCHEDULE_DISCREPANCY"
	TypeUnusualLeaseTerm     = "UNUSUAL_LEASE_TERM"
	TypeFuturePODate         = "FUTURE_PO_DATE"
	TypeOldPODate            = "OLD_PO_DATE"
	TypePOMismatch           = "PO_MISMATCH"
	TypeAmountMismatch       = "AMOUNT_MISMATCH"
	TypeDuplicateDocument    = "DUPLICATE_DOCUMENT"
	TypeAmountDiscrepancy    = "AMOUNT_DISCREPANCY"
	TypeScheduleMiss         = "SCHEDULE_MISS"
	TypeSurplusPayment       = "SURPLUS_PAYMENT"
	TypeMissedPayment        = "MISSED_PAYMENT"
	TypeScheduleMisalignment = "SCHEDULE_MISALIGNMENT"
	TypeSemanticFinding      = "SEMANTIC_FINDING"
)

// Subtypes used by the contract-invoice comparator.
const (
	SubInvoiceBeforeStart  = "INVOICE_BEFORE_CONTRACT_START"
	SubInvoiceAfterEnd     = "INVOICE_AFTER_CONTRACT_END"
	SubLeaseAmountMismatch = "LEASE_AMOUNT_MISMATCH"
	SubMissingPayment      = "MISSING_PAYMENT"
	SubOverpayment         = "OVERPAYMENT"
	SubUnderpayment        = "UNDERPAYMENT"
	SubPaymentDateMismatch = "PAYMENT_DATE_MISMATCH"
)

// Anomaly is one detected irregularity. Append-only per document; validation
// wraps an Anomaly, it never edits one.
type Anomaly struct {
	ID          string         `json:"id,omitempty"`
	Type        string         `json:"type"`
	Subtype     string         `json:"subtype,omitempty"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ExtraFloat reads a numeric magnitude from Extra, with ok=false when the key
// is missing or not numeric.
func (a Anomaly) ExtraFloat(key string) (float64, bool) {
	v, ok := a.Extra[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ValidatedAnomaly wraps an Anomaly with the validation verdict.
// IsValid is nil when the engine could not decide (low confidence).
type ValidatedAnomaly struct {
	Anomaly         `json:"anomaly"`
	IsValid         *bool    `json:"is_valid"`
	ThresholdUsed   string   `json:"threshold_used,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// RiskLevel is the aggregate classification for a document's anomaly set.
type RiskLevel string

const (
	RiskNone   RiskLevel = "NONE"
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)
