package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docaudit/internal/model"
)

func TestProcessBatch_MixedOutcomes(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	docs := []model.DocumentRecord{
		cleanInvoice("inv-1"),
		docOf("", model.DocTypeInvoice, nil), // fails ingest
		docOf("inv-3", model.DocTypeInvoice, map[string]string{
			"invoice_number": "INV-300",
			"total_amount":   "20,000,000", // escalates
		}),
	}
	batch := o.ProcessBatch(context.Background(), docs)

	assert.Equal(t, 1, batch.Completed)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, 1, batch.Escalated)

	// Results keep input order.
	require.Len(t, batch.Results, 3)
	assert.Equal(t, "inv-1", batch.Results[0].DocumentID)
	assert.Equal(t, model.StatusFailed, batch.Results[1].Status)
	assert.Equal(t, "inv-3", batch.Results[2].DocumentID)
	assert.True(t, batch.Results[2].RequiresHitl)
}

func TestProcessBatch_Empty(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	batch := o.ProcessBatch(context.Background(), nil)
	assert.Zero(t, batch.Completed)
	assert.Zero(t, batch.Failed)
	assert.Empty(t, batch.Results)
}

func TestProcessBatch_ManyDocuments(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()

	var docs []model.DocumentRecord
	for i := 0; i < 20; i++ {
		docs = append(docs, docOf(fmt.Sprintf("inv-%02d", i), model.DocTypeInvoice, map[string]string{
			"invoice_number": fmt.Sprintf("INV-%03d", i),
			"po_number":      fmt.Sprintf("AB%04d", i),
			"total_amount":   fmt.Sprintf("%d", 1000+i),
			"invoice_date":   "2024-05-01",
			"due_date":       "2024-05-15",
		}))
	}
	batch := o.ProcessBatch(ctx, docs)

	assert.Equal(t, 20, batch.Completed+batch.Failed+batch.Escalated)
	assert.Zero(t, batch.Failed)

	saved, err := st.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, saved, 20)
}
