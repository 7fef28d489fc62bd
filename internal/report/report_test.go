package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/store"
)

func TestWrite_BuildsWorkbook(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	doc := model.DocumentRecord{
		ID:   "inv-1",
		Type: model.DocTypeInvoice,
		Fields: model.FieldMap{
			"total_amount": model.NewField("$2,500.00", 0.9),
		},
		IngestedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.SaveDocument(ctx, doc))
	require.NoError(t, st.SaveAnomalies(ctx, "inv-1", []model.Anomaly{{
		Type:        model.TypeUnusualAmount,
		Severity:    model.SeverityMedium,
		Description: "amount outside expected range",
		Confidence:  0.7,
	}}))
	require.NoError(t, st.SaveValidation(ctx, store.ValidationRecord{
		DocumentID: "inv-1",
		RiskLevel:  model.RiskMedium,
		Summary:    model.ValidationSummary{RiskLevel: model.RiskMedium, ValidCount: 1},
	}))
	require.NoError(t, st.SaveQueueItem(ctx, model.HitlQueueItem{
		SessionID:  "sess-1",
		DocumentID: "inv-1",
		Status:     model.QueuePending,
		Priority:   "HIGH",
		QueuedAt:   time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
	}))

	path := filepath.Join(t.TempDir(), "audit.xlsx")
	require.NoError(t, Write(ctx, st, path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)

	documents := f.Sheet["Documents"]
	require.NotNil(t, documents)
	require.Len(t, documents.Rows, 2)
	assert.Equal(t, "inv-1", documents.Rows[1].Cells[0].Value)
	assert.Equal(t, "MEDIUM", documents.Rows[1].Cells[2].Value)

	anomalies := f.Sheet["Anomalies"]
	require.NotNil(t, anomalies)
	require.Len(t, anomalies.Rows, 2)
	assert.Equal(t, model.TypeUnusualAmount, anomalies.Rows[1].Cells[1].Value)

	queue := f.Sheet["Review Queue"]
	require.NotNil(t, queue)
	require.Len(t, queue.Rows, 2)
	assert.Equal(t, "sess-1", queue.Rows[1].Cells[0].Value)
}

func TestWrite_EmptyStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	path := filepath.Join(t.TempDir(), "audit.xlsx")
	require.NoError(t, Write(ctx, st, path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	for _, sheet := range f.Sheets {
		assert.Len(t, sheet.Rows, 1, sheet.Name) // header only
	}
}
