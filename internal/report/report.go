// Package report renders stored pipeline results into a reviewer-facing
// spreadsheet.
package report

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/store"
)

// Write builds an audit workbook from the store and saves it to path. One
// sheet lists documents with their risk level, one lists every anomaly, one
// lists the pending review queue.
func Write(ctx context.Context, st store.Store, path string) error {
	docs, err := st.ListDocuments(ctx)
	if err != nil {
		return eris.Wrap(err, "report: list documents")
	}
	validations, err := st.ListValidations(ctx)
	if err != nil {
		return eris.Wrap(err, "report: list validations")
	}
	pending, err := st.ListQueue(ctx, model.QueuePending)
	if err != nil {
		return eris.Wrap(err, "report: list queue")
	}

	byDocument := make(map[string]store.ValidationRecord, len(validations))
	for _, v := range validations {
		byDocument[v.DocumentID] = v
	}

	f := xlsx.NewFile()
	if err := addDocumentsSheet(f, docs, byDocument); err != nil {
		return err
	}
	if err := addAnomaliesSheet(ctx, f, st, docs); err != nil {
		return err
	}
	if err := addQueueSheet(f, pending); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "report: save workbook")
	}
	return nil
}

func addDocumentsSheet(f *xlsx.File, docs []model.DocumentRecord, validations map[string]store.ValidationRecord) error {
	sheet, err := f.AddSheet("Documents")
	if err != nil {
		return eris.Wrap(err, "report: add documents sheet")
	}
	writeRow(sheet, "Document ID", "Type", "Risk Level", "Valid", "Invalid", "Uncertain", "Ingested At")

	for _, doc := range docs {
		risk := string(model.RiskNone)
		valid, invalid, uncertain := 0, 0, 0
		if v, ok := validations[doc.ID]; ok {
			risk = string(v.RiskLevel)
			valid = v.Summary.ValidCount
			invalid = v.Summary.InvalidCount
			uncertain = v.Summary.UncertainCount
		}
		row := sheet.AddRow()
		row.AddCell().Value = doc.ID
		row.AddCell().Value = string(doc.Type)
		row.AddCell().Value = risk
		row.AddCell().SetInt(valid)
		row.AddCell().SetInt(invalid)
		row.AddCell().SetInt(uncertain)
		row.AddCell().Value = doc.IngestedAt.Format("2006-01-02 15:04:05")
	}
	return nil
}

func addAnomaliesSheet(ctx context.Context, f *xlsx.File, st store.Store, docs []model.DocumentRecord) error {
	sheet, err := f.AddSheet("Anomalies")
	if err != nil {
		return eris.Wrap(err, "report: add anomalies sheet")
	}
	writeRow(sheet, "Document ID", "Type", "Subtype", "Severity", "Confidence", "Description")

	for _, doc := range docs {
		anomalies, err := st.ListAnomalies(ctx, doc.ID)
		if err != nil {
			return eris.Wrapf(err, "report: list anomalies for %s", doc.ID)
		}
		for _, a := range anomalies {
			row := sheet.AddRow()
			row.AddCell().Value = doc.ID
			row.AddCell().Value = a.Type
			row.AddCell().Value = a.Subtype
			row.AddCell().Value = string(a.Severity)
			row.AddCell().SetFloat(a.Confidence)
			row.AddCell().Value = a.Description
		}
	}
	return nil
}

func addQueueSheet(f *xlsx.File, pending []model.HitlQueueItem) error {
	sheet, err := f.AddSheet("Review Queue")
	if err != nil {
		return eris.Wrap(err, "report: add queue sheet")
	}
	writeRow(sheet, "Session ID", "Document ID", "Priority", "Queued At")

	for _, item := range pending {
		row := sheet.AddRow()
		row.AddCell().Value = item.SessionID
		row.AddCell().Value = item.DocumentID
		row.AddCell().Value = item.Priority
		row.AddCell().Value = item.QueuedAt.Format("2006-01-02 15:04:05")
	}
	return nil
}

func writeRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().Value = v
	}
}
