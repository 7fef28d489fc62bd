package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docaudit/internal/config"
	"github.com/ledgerline/docaudit/internal/model"
)

func writeEnvelope(t *testing.T, dir, name, docID string) {
	t.Helper()
	envelope := `{
		"document_id": "` + docID + `",
		"document_type": "INVOICE",
		"fields": {
			"invoice_number": {"value": "` + docID + `", "confidence": 0.95},
			"total_amount": {"value": "1,000.00", "confidence": 0.95}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(envelope), 0644))
}

func TestReadEnvelopeDir(t *testing.T) {
	dir := t.TempDir()
	writeEnvelope(t, dir, "b.json", "inv-2")
	writeEnvelope(t, dir, "a.json", "inv-1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	docs, err := readEnvelopeDir(dir, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	// Name order, not write order
	assert.Equal(t, "inv-1", docs[0].ID)
	assert.Equal(t, "inv-2", docs[1].ID)
	assert.Equal(t, model.DocTypeInvoice, docs[0].Type)
}

func TestReadEnvelopeDir_Limit(t *testing.T) {
	dir := t.TempDir()
	writeEnvelope(t, dir, "a.json", "inv-1")
	writeEnvelope(t, dir, "b.json", "inv-2")
	writeEnvelope(t, dir, "c.json", "inv-3")

	docs, err := readEnvelopeDir(dir, 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestReadEnvelopeDir_BadEnvelope(t *testing.T) {
	dir := t.TempDir()
	writeEnvelope(t, dir, "a.json", "inv-1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("not json"), 0644))

	_, err := readEnvelopeDir(dir, 0)
	assert.Error(t, err)
}

func TestReadEnvelopeDir_Empty(t *testing.T) {
	docs, err := readEnvelopeDir(t.TempDir(), 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestBatchCommand_ProcessesEnvelopeDir(t *testing.T) {
	dir := t.TempDir()
	writeEnvelope(t, dir, "a.json", "inv-1")
	writeEnvelope(t, dir, "b.json", "inv-2")

	// Load defaults away from any config.yaml, then run against the
	// in-memory store.
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(origDir) })

	c, err := config.Load()
	require.NoError(t, err)
	c.Store.Driver = "memory"
	cfg = c
	t.Cleanup(func() { cfg = nil })

	batchCmd.SetContext(context.Background())
	t.Cleanup(func() { batchCmd.SetContext(nil) })

	require.NoError(t, batchCmd.RunE(batchCmd, []string{dir}))
}

func TestParseAdjustments(t *testing.T) {
	adj, err := parseAdjustments([]string{"date_variance_days=45", "auto_approve_threshold=0.9"})
	require.NoError(t, err)
	assert.InDelta(t, 45, adj["date_variance_days"], 0.001)
	assert.InDelta(t, 0.9, adj["auto_approve_threshold"], 0.001)
}

func TestParseAdjustments_Invalid(t *testing.T) {
	_, err := parseAdjustments([]string{"no-equals-sign"})
	assert.Error(t, err)

	_, err = parseAdjustments([]string{"key=notanumber"})
	assert.Error(t, err)
}

func TestParseAdjustments_Empty(t *testing.T) {
	adj, err := parseAdjustments(nil)
	require.NoError(t, err)
	assert.Nil(t, adj)
}
