package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFieldMapValue_ConfidenceSuppression(t *testing.T) {
	m := FieldMap{
		"po_number":    NewField("AB1234", 0.9),
		"vendor_name":  NewField("Acme Leasing", 0.5),
		"total_amount": NewField("2500", 0.51),
		"nil_value":    {Value: nil, Confidence: 0.9},
	}

	assert.Equal(t, "AB1234", m.Value("po_number"))
	assert.Equal(t, "", m.Value("vendor_name"), "confidence at the floor is suppressed")
	assert.Equal(t, "2500", m.Value("total_amount"))
	assert.Equal(t, "", m.Value("nil_value"))
	assert.Equal(t, "", m.Value("missing"))

	assert.True(t, m.Has("po_number"))
	assert.False(t, m.Has("vendor_name"))
}

func TestFieldMapBestDate(t *testing.T) {
	m := FieldMap{
		"effective_date": NewField("2024-01-01", 0.9),
		"po_date":        NewField("2024-02-01", 0.9),
	}
	assert.Equal(t, "2024-01-01", m.BestDate())

	m["invoice_date"] = NewField("2024-03-01", 0.9)
	assert.Equal(t, "2024-03-01", m.BestDate())

	low := FieldMap{"invoice_date": NewField("2024-03-01", 0.2)}
	assert.Equal(t, "", low.BestDate())
}

func TestParseDocumentType(t *testing.T) {
	assert.Equal(t, DocTypeInvoice, ParseDocumentType("INVOICE"))
	assert.Equal(t, DocTypeContract, ParseDocumentType("CONTRACT"))
	assert.Equal(t, DocTypeUnknown, ParseDocumentType("MEMO"))
	assert.Equal(t, DocTypeUnknown, ParseDocumentType(""))
}

func TestContractContextFrom(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	doc := DocumentRecord{
		ID:   "doc-1",
		Type: DocTypeContract,
		Fields: FieldMap{
			"po_number":       NewField("AB1234", 0.9),
			"lease_amount":    NewField("2500", 0.9),
			"effective_date":  NewField("2024-01-01", 0.9),
			"expiration_date": NewField("2024-12-31", 0.3), // suppressed
			"lease_term":      NewField("12 months", 0.8),
		},
	}

	ctx := ContractContextFrom(doc, now)
	assert.Equal(t, "doc-1", ctx.ContractID)
	assert.Equal(t, "AB1234", ctx.PONumber)
	assert.Equal(t, "2500", ctx.LeaseAmount)
	assert.Equal(t, "", ctx.ExpirationDate)
	assert.Equal(t, now, ctx.ExtractedAt)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusHitlPending.Terminal())
	assert.False(t, StatusStarted.Terminal())
}

func TestFeedbackValid(t *testing.T) {
	assert.True(t, Feedback{Type: FeedbackCorrect}.Valid())
	assert.True(t, Feedback{Type: FeedbackPartial}.Valid())
	assert.False(t, Feedback{Type: "MAYBE"}.Valid())
}

func TestAnomalyExtraFloat(t *testing.T) {
	a := Anomaly{Extra: map[string]any{
		"variance_percent": 12.5,
		"days_late":        7,
		"note":             "text",
	}}

	v, ok := a.ExtraFloat("variance_percent")
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)

	v, ok = a.ExtraFloat("days_late")
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = a.ExtraFloat("note")
	assert.False(t, ok)
	_, ok = a.ExtraFloat("missing")
	assert.False(t, ok)
}
