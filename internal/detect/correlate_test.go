package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/rules"
)

func TestCorrelate_POMismatch(t *testing.T) {
	c := NewCorrelator(rules.Defaults())

	doc := invoiceDoc(map[string]string{"po_number": "AB1234"})
	related := docOf("po-9", model.DocTypePurchaseOrder, map[string]string{"po_number": "XY9999"})

	got := c.Correlate(doc, []model.DocumentRecord{related})
	require.Len(t, got, 1)
	assert.Equal(t, model.TypePOMismatch, got[0].Type)
	assert.Equal(t, model.SeverityHigh, got[0].Severity)
	assert.Equal(t, 0.9, got[0].Confidence)
	assert.Equal(t, "po-9", got[0].Extra["related_document_id"])
}

func TestCorrelate_AmountMismatch(t *testing.T) {
	c := NewCorrelator(rules.Defaults())

	doc := invoiceDoc(map[string]string{"total_amount": "1300"})
	related := docOf("po-9", model.DocTypePurchaseOrder, map[string]string{"total_amount": "1000"})

	got := c.Correlate(doc, []model.DocumentRecord{related})
	require.Len(t, got, 1)
	assert.Equal(t, model.TypeAmountMismatch, got[0].Type)
	// 30% variance, confidence = min(1, 30/20) = 1.
	assert.Equal(t, 1.0, got[0].Confidence)
	assert.InDelta(t, 30.0, got[0].Extra["variance_percent"].(float64), 1e-9)

	// Within 10%: clean.
	related = docOf("po-9", model.DocTypePurchaseOrder, map[string]string{"total_amount": "1250"})
	assert.Empty(t, c.Correlate(doc, []model.DocumentRecord{related}))
}

func TestCorrelate_DateMismatchUsesBestDate(t *testing.T) {
	c := NewCorrelator(rules.Defaults())

	doc := invoiceDoc(map[string]string{"invoice_date": "2024-01-01"})
	related := docOf("con-1", model.DocTypeContract, map[string]string{"effective_date": "2024-06-01"})

	got := c.Correlate(doc, []model.DocumentRecord{related})
	require.Len(t, got, 1)
	assert.Equal(t, model.TypeDateMismatch, got[0].Type)
	assert.Equal(t, "con-1", got[0].Extra["related_document_id"])
}

func TestCorrelate_SkipsSelfAndEmptyFields(t *testing.T) {
	c := NewCorrelator(rules.Defaults())

	doc := invoiceDoc(map[string]string{"po_number": "AB1234"})
	assert.Empty(t, c.Correlate(doc, []model.DocumentRecord{doc}))

	noPO := docOf("d-2", model.DocTypeInvoice, map[string]string{"vendor_name": "Acme"})
	assert.Empty(t, c.Correlate(doc, []model.DocumentRecord{noPO}))
}
