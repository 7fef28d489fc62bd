package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docaudit/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func storedDoc(id string, typ model.DocumentType, fields map[string]string) model.DocumentRecord {
	fm := model.FieldMap{}
	for name, value := range fields {
		fm[name] = model.NewField(value, 0.9)
	}
	return model.DocumentRecord{ID: id, Type: typ, Fields: fm, IngestedAt: time.Now().UTC()}
}

func TestSQLite_Document_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := storedDoc("inv-1", model.DocTypeInvoice, map[string]string{
		"invoice_number": "INV-100",
		"po_number":      "AB1234",
		"total_amount":   "$2,500.00",
	})
	require.NoError(t, st.SaveDocument(ctx, doc))

	got, err := st.GetDocument(ctx, "inv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.DocTypeInvoice, got.Type)
	assert.Equal(t, "AB1234", got.Field("po_number"))
	assert.Equal(t, "$2,500.00", got.Field("total_amount"))
}

func TestSQLite_GetDocument_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetDocument(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_SaveDocument_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveDocument(ctx, storedDoc("d1", model.DocTypeInvoice, map[string]string{"total_amount": "100"})))
	require.NoError(t, st.SaveDocument(ctx, storedDoc("d1", model.DocTypeInvoice, map[string]string{"total_amount": "200"})))

	got, err := st.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "200", got.Field("total_amount"))

	docs, err := st.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSQLite_ListRelated(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveDocument(ctx, storedDoc("inv-1", model.DocTypeInvoice, map[string]string{
		"po_number": "AB1234", "vendor_name": "Acme Corp",
	})))
	require.NoError(t, st.SaveDocument(ctx, storedDoc("po-1", model.DocTypePurchaseOrder, map[string]string{
		"po_number": "AB1234",
	})))
	require.NoError(t, st.SaveDocument(ctx, storedDoc("inv-2", model.DocTypeInvoice, map[string]string{
		"vendor_name": "Acme Corp",
	})))
	require.NoError(t, st.SaveDocument(ctx, storedDoc("inv-3", model.DocTypeInvoice, map[string]string{
		"vendor_name": "Other Vendor",
	})))

	related, err := st.ListRelated(ctx, "inv-1", "AB1234", "Acme Corp")
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, "inv-2", related[0].ID)
	assert.Equal(t, "po-1", related[1].ID)
}

func TestSQLite_ListRelated_NoLinkage(t *testing.T) {
	st := newTestSQLiteStore(t)

	related, err := st.ListRelated(context.Background(), "inv-1", "", "")
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestSQLite_Anomalies_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveDocument(ctx, storedDoc("inv-1", model.DocTypeInvoice, nil)))

	anomalies := []model.Anomaly{
		{
			Type:        model.TypeUnusualAmount,
			Severity:    model.SeverityMedium,
			Description: "amount outside expected range",
			Confidence:  0.7,
			Extra:       map[string]any{"variance_percent": 12.5},
		},
		{
			Type:        model.TypePOFormat,
			Severity:    model.SeverityLow,
			Description: "po number format unexpected",
			Confidence:  0.6,
		},
	}
	require.NoError(t, st.SaveAnomalies(ctx, "inv-1", anomalies))

	got, err := st.ListAnomalies(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	byType := map[string]model.Anomaly{}
	for _, a := range got {
		assert.NotEmpty(t, a.ID)
		byType[a.Type] = a
	}
	unusual, ok := byType[model.TypeUnusualAmount]
	require.True(t, ok)
	variance, ok := unusual.ExtraFloat("variance_percent")
	require.True(t, ok)
	assert.InDelta(t, 12.5, variance, 0.001)
	assert.Nil(t, byType[model.TypePOFormat].Extra)
}

func TestSQLite_Validation_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := ValidationRecord{
		DocumentID: "inv-1",
		RiskLevel:  model.RiskMedium,
		Summary: model.ValidationSummary{
			RiskLevel:  model.RiskMedium,
			ValidCount: 2,
		},
	}
	require.NoError(t, st.SaveValidation(ctx, rec))

	rec.RiskLevel = model.RiskHigh
	rec.Summary.RiskLevel = model.RiskHigh
	require.NoError(t, st.SaveValidation(ctx, rec))

	all, err := st.ListValidations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.RiskHigh, all[0].RiskLevel)
	assert.Equal(t, 2, all[0].Summary.ValidCount)
	assert.False(t, all[0].ValidatedAt.IsZero())
}

func TestSQLite_ContractContext_POWinsOverVendor(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveContractContext(ctx, model.ContractContext{
		ContractID: "c-vendor", VendorName: "Acme Corp", LeaseAmount: "1000",
	}))
	require.NoError(t, st.SaveContractContext(ctx, model.ContractContext{
		ContractID: "c-po", PONumber: "AB1234", VendorName: "Someone Else", LeaseAmount: "2500",
	}))

	got, err := st.FindContractContext(ctx, "AB1234", "Acme Corp")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c-po", got.ContractID)

	got, err = st.FindContractContext(ctx, "ZZ9999", "Acme Corp")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c-vendor", got.ContractID)

	got, err = st.FindContractContext(ctx, "ZZ9999", "Nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Queue_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	queued := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	item := model.HitlQueueItem{
		SessionID:  "sess-1",
		DocumentID: "inv-1",
		Status:     model.QueuePending,
		Priority:   "NORMAL",
		QueuedAt:   queued,
	}
	require.NoError(t, st.SaveQueueItem(ctx, item))

	pending, err := st.ListQueue(ctx, model.QueuePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].Feedback)

	reviewed := queued.Add(time.Hour)
	item.Status = model.QueueReviewed
	item.ReviewedAt = &reviewed
	item.Feedback = &model.Feedback{Type: model.FeedbackCorrect, Detail: "looks right"}
	require.NoError(t, st.UpdateQueueItem(ctx, item))

	pending, err = st.ListQueue(ctx, model.QueuePending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := st.ListQueue(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.QueueReviewed, all[0].Status)
	require.NotNil(t, all[0].Feedback)
	assert.Equal(t, model.FeedbackCorrect, all[0].Feedback.Type)
	require.NotNil(t, all[0].ReviewedAt)
}

func TestSQLite_BusinessRules_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.PutBusinessRules(ctx, map[string]float64{
		"date_variance_days":     30,
		"auto_approve_threshold": 0.85,
	}))
	require.NoError(t, st.PutBusinessRules(ctx, map[string]float64{
		"date_variance_days": 45,
	}))

	rules, err := st.GetBusinessRules(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 45, rules["date_variance_days"], 0.001)
	assert.InDelta(t, 0.85, rules["auto_approve_threshold"], 0.001)
}

func TestSQLite_Feedback_Append(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	fb := model.Feedback{
		Type:   model.FeedbackPartial,
		Detail: "date mismatch was real, amount was fine",
		ThresholdAdjustments: map[string]float64{
			"amount_variance_percent": 7,
		},
	}
	require.NoError(t, st.SaveFeedback(ctx, "inv-1", fb))
	require.NoError(t, st.SaveFeedback(ctx, "inv-1", fb))
}
