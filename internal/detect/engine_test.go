package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/rules"
)

func testEngine() *Engine {
	e := NewEngine(rules.Defaults())
	e.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

func invoiceDoc(fields map[string]string) model.DocumentRecord {
	return docOf("inv-1", model.DocTypeInvoice, fields)
}

func docOf(id string, typ model.DocumentType, fields map[string]string) model.DocumentRecord {
	fm := model.FieldMap{}
	for k, v := range fields {
		fm[k] = model.NewField(v, 0.9)
	}
	return model.DocumentRecord{ID: id, Type: typ, Fields: fm}
}

func typesOf(anomalies []model.Anomaly) []string {
	var out []string
	for _, a := range anomalies {
		out = append(out, a.Type)
	}
	return out
}

func TestDetect_AmountRules(t *testing.T) {
	e := testEngine()

	cases := []struct {
		amount   string
		wantType string
		wantConf float64
		wantSev  model.Severity
	}{
		{"-50", model.TypeInvalidAmount, 1.0, model.SeverityHigh},
		{"0", model.TypeInvalidAmount, 1.0, model.SeverityHigh},
		{"not-a-number", model.TypeInvalidAmountFormat, 1.0, model.SeverityHigh},
		{"20,000,000", model.TypeUnusualAmount, 0.7, model.SeverityMedium},
	}
	for _, tc := range cases {
		got := e.Detect(invoiceDoc(map[string]string{"total_amount": tc.amount}))
		require.Len(t, got, 1, tc.amount)
		assert.Equal(t, tc.wantType, got[0].Type)
		assert.Equal(t, tc.wantConf, got[0].Confidence)
		assert.Equal(t, tc.wantSev, got[0].Severity)
	}

	// In-range amounts are clean.
	got := e.Detect(invoiceDoc(map[string]string{"total_amount": "$5,000.00"}))
	assert.Empty(t, got)
}

func TestDetect_DateVariance(t *testing.T) {
	e := testEngine()

	// Within threshold: no anomaly.
	got := e.Detect(invoiceDoc(map[string]string{
		"invoice_date": "2024-01-01",
		"due_date":     "2024-01-25",
	}))
	assert.Empty(t, got)

	// 45 days apart: threshold 30, confidence 45/60.
	got = e.Detect(invoiceDoc(map[string]string{
		"invoice_date": "2024-01-01",
		"due_date":     "2024-02-15",
	}))
	require.Len(t, got, 1)
	assert.Equal(t, model.TypeDateMismatch, got[0].Type)
	assert.InDelta(t, 0.75, got[0].Confidence, 1e-9)

	// Far past the threshold: confidence caps at 1.
	got = e.Detect(invoiceDoc(map[string]string{
		"invoice_date": "2024-01-01",
		"due_date":     "2024-12-01",
	}))
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Confidence)
}

func TestDetect_ParseFailureSuppressesRule(t *testing.T) {
	e := testEngine()

	got := e.Detect(invoiceDoc(map[string]string{
		"invoice_date": "someday",
		"due_date":     "2024-01-25",
	}))
	assert.Empty(t, got, "unparsable date must skip the rule, not crash or flag")
}

func TestDetect_POAndInvoiceNumberFormats(t *testing.T) {
	e := testEngine()

	got := e.Detect(invoiceDoc(map[string]string{
		"po_number":      "po-123",
		"invoice_number": "x",
	}))
	assert.ElementsMatch(t, []string{model.TypePOFormat, model.TypeInvoiceFormat}, typesOf(got))

	got = e.Detect(invoiceDoc(map[string]string{
		"po_number":      "AB123456",
		"invoice_number": "INV-2024-001",
	}))
	assert.Empty(t, got)
}

func TestDetect_ContractRules(t *testing.T) {
	e := testEngine()

	// 11 calendar months vs stated 24: discrepancy.
	got := e.Detect(docOf("con-1", model.DocTypeContract, map[string]string{
		"effective_date":  "2024-01-01",
		"expiration_date": "2024-12-31",
		"lease_term":      "24 months",
		"lease_amount":    "2500",
	}))
	require.Len(t, got, 1)
	assert.Equal(t, model.TypeLeaseScheduleGap, got[0].Type)
	assert.Equal(t, model.SeverityHigh, got[0].Severity)
	assert.Equal(t, 0.9, got[0].Confidence)

	// Matching term within two months of slack: clean.
	got = e.Detect(docOf("con-2", model.DocTypeContract, map[string]string{
		"effective_date":  "2024-01-01",
		"expiration_date": "2024-12-31",
		"lease_term":      "12 months",
		"lease_amount":    "2500",
	}))
	assert.Empty(t, got)

	// Term outside sanity range.
	got = e.Detect(docOf("con-3", model.DocTypeContract, map[string]string{
		"lease_term": "720 months",
	}))
	require.Len(t, got, 1)
	assert.Equal(t, model.TypeUnusualLeaseTerm, got[0].Type)
}

func TestDetect_PODateRules(t *testing.T) {
	e := testEngine()

	got := e.Detect(docOf("po-1", model.DocTypePurchaseOrder, map[string]string{
		"po_number": "AB123456",
		"po_date":   "2025-01-01",
	}))
	require.Len(t, got, 1)
	assert.Equal(t, model.TypeFuturePODate, got[0].Type)
	assert.Equal(t, 0.9, got[0].Confidence)

	got = e.Detect(docOf("po-2", model.DocTypePurchaseOrder, map[string]string{
		"po_number": "AB123456",
		"po_date":   "2021-01-01",
	}))
	require.Len(t, got, 1)
	assert.Equal(t, model.TypeOldPODate, got[0].Type)
	assert.Equal(t, model.SeverityLow, got[0].Severity)

	got = e.Detect(docOf("po-3", model.DocTypePurchaseOrder, map[string]string{
		"po_number": "AB123456",
		"po_date":   "2024-05-01",
	}))
	assert.Empty(t, got)
}

func TestDetect_UnknownTypeAndIdempotence(t *testing.T) {
	e := testEngine()

	assert.Empty(t, e.Detect(docOf("r-1", model.DocTypeReceipt, map[string]string{"total_amount": "-5"})))

	doc := invoiceDoc(map[string]string{
		"total_amount":   "-5",
		"po_number":      "bad",
		"invoice_number": "INV-1",
	})
	first := e.Detect(doc)
	second := e.Detect(doc)
	assert.Equal(t, first, second, "detection is a pure function of fields and thresholds")
}
