package model

import "time"

// DocumentType classifies an ingested document.
type DocumentType string

const (
	DocTypeInvoice       DocumentType = "INVOICE"
	DocTypeContract      DocumentType = "CONTRACT"
	DocTypePurchaseOrder DocumentType = "PURCHASE_ORDER"
	DocTypeReceipt       DocumentType = "RECEIPT"
	DocTypeUnknown       DocumentType = "UNKNOWN"
)

// ParseDocumentType maps a raw string to a known DocumentType, defaulting to UNKNOWN.
func ParseDocumentType(s string) DocumentType {
	switch DocumentType(s) {
	case DocTypeInvoice, DocTypeContract, DocTypePurchaseOrder, DocTypeReceipt:
		return DocumentType(s)
	default:
		return DocTypeUnknown
	}
}

// ExtractedField is a single field produced by the extraction service:
// a value (nil when extraction found nothing) plus a confidence in [0,1].
type ExtractedField struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
}

// NewField builds an ExtractedField from a non-nil value.
func NewField(value string, confidence float64) ExtractedField {
	return ExtractedField{Value: &value, Confidence: confidence}
}

// FieldMap is the extraction-service output for one document.
type FieldMap map[string]ExtractedField

// confidenceFloor is the suppression policy shared by every rule evaluator:
// a field only counts as present when extraction confidence exceeds it.
const confidenceFloor = 0.5

// Value returns the field's value, or "" if the field is absent, nil-valued,
// or extracted with confidence at or below the floor.
func (m FieldMap) Value(name string) string {
	f, ok := m[name]
	if !ok || f.Value == nil || f.Confidence <= confidenceFloor {
		return ""
	}
	return *f.Value
}

// Has reports whether the field is present and above the confidence floor.
func (m FieldMap) Has(name string) bool {
	return m.Value(name) != ""
}

// BestDate returns the first usable date field, preferring invoice_date,
// then effective_date, then po_date.
func (m FieldMap) BestDate() string {
	for _, name := range []string{"invoice_date", "effective_date", "po_date"} {
		if v := m.Value(name); v != "" {
			return v
		}
	}
	return ""
}

// DocumentRecord is one ingested document: identity, classified type, and the
// extracted field map. Immutable after extraction.
type DocumentRecord struct {
	ID         string       `json:"document_id"`
	Type       DocumentType `json:"document_type"`
	Fields     FieldMap     `json:"fields"`
	IngestedAt time.Time    `json:"ingested_at,omitempty"`
}

// Field is shorthand for d.Fields.Value(name).
func (d DocumentRecord) Field(name string) string {
	return d.Fields.Value(name)
}
