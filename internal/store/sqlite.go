package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ledgerline/docaudit/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	doc_type    TEXT NOT NULL,
	po_number   TEXT NOT NULL DEFAULT '',
	vendor_name TEXT NOT NULL DEFAULT '',
	fields      TEXT NOT NULL,
	ingested_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS anomalies (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	type        TEXT NOT NULL,
	subtype     TEXT NOT NULL DEFAULT '',
	severity    TEXT NOT NULL,
	description TEXT NOT NULL,
	confidence  REAL NOT NULL,
	extra       TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS validations (
	document_id  TEXT PRIMARY KEY,
	risk_level   TEXT NOT NULL,
	payload      TEXT NOT NULL,
	validated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contract_contexts (
	contract_id TEXT PRIMARY KEY,
	po_number   TEXT NOT NULL DEFAULT '',
	vendor_name TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL,
	stored_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contract_invoice_map (
	contract_id   TEXT NOT NULL,
	invoice_id    TEXT NOT NULL,
	anomaly_count INTEGER NOT NULL,
	compared_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (contract_id, invoice_id)
);

CREATE TABLE IF NOT EXISTS hitl_queue (
	session_id  TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'PENDING',
	priority    TEXT NOT NULL DEFAULT 'NORMAL',
	queued_at   DATETIME NOT NULL,
	feedback    TEXT,
	reviewed_at DATETIME
);

CREATE TABLE IF NOT EXISTS feedback (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS business_rules (
	rule_id    TEXT PRIMARY KEY,
	rule_value REAL NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_po ON documents(po_number);
CREATE INDEX IF NOT EXISTS idx_documents_vendor ON documents(vendor_name);
CREATE INDEX IF NOT EXISTS idx_anomalies_document ON anomalies(document_id);
CREATE INDEX IF NOT EXISTS idx_contract_contexts_po ON contract_contexts(po_number);
CREATE INDEX IF NOT EXISTS idx_hitl_queue_document ON hitl_queue(document_id);
CREATE INDEX IF NOT EXISTS idx_hitl_queue_status ON hitl_queue(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, doc model.DocumentRecord) error {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}
	ingested := doc.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, doc_type, po_number, vendor_name, fields, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc_type=excluded.doc_type, po_number=excluded.po_number,
			vendor_name=excluded.vendor_name, fields=excluded.fields`,
		doc.ID, string(doc.Type), doc.Field("po_number"), doc.Field("vendor_name"), string(fields), ingested,
	)
	return eris.Wrap(err, "sqlite: save document")
}

func (s *SQLiteStore) scanDocuments(rows *sql.Rows) ([]model.DocumentRecord, error) {
	defer rows.Close()
	var docs []model.DocumentRecord
	for rows.Next() {
		var (
			doc       model.DocumentRecord
			docType   string
			fieldsRaw string
		)
		if err := rows.Scan(&doc.ID, &docType, &fieldsRaw, &doc.IngestedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		doc.Type = model.DocumentType(docType)
		if err := json.Unmarshal([]byte(fieldsRaw), &doc.Fields); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal fields")
		}
		docs = append(docs, doc)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: iterate documents")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc_type, fields, ingested_at FROM documents WHERE id = ?`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get document")
	}
	docs, err := s.scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]model.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc_type, fields, ingested_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	return s.scanDocuments(rows)
}

func (s *SQLiteStore) ListRelated(ctx context.Context, docID, poNumber, vendorName string) ([]model.DocumentRecord, error) {
	if poNumber == "" && vendorName == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc_type, fields, ingested_at FROM documents
		 WHERE id != ? AND ((po_number != '' AND po_number = ?) OR (vendor_name != '' AND vendor_name = ?))
		 ORDER BY id`,
		docID, poNumber, vendorName)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list related")
	}
	return s.scanDocuments(rows)
}

func (s *SQLiteStore) SaveAnomalies(ctx context.Context, docID string, anomalies []model.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin anomalies tx")
	}
	defer tx.Rollback()

	for _, a := range anomalies {
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		var extra []byte
		if a.Extra != nil {
			if extra, err = json.Marshal(a.Extra); err != nil {
				return eris.Wrap(err, "sqlite: marshal anomaly extra")
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO anomalies (id, document_id, type, subtype, severity, description, confidence, extra)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, docID, a.Type, a.Subtype, string(a.Severity), a.Description, a.Confidence, nullable(extra),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert anomaly")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit anomalies")
}

func (s *SQLiteStore) ListAnomalies(ctx context.Context, docID string) ([]model.Anomaly, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, subtype, severity, description, confidence, extra
		 FROM anomalies WHERE document_id = ? ORDER BY created_at, id`, docID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list anomalies")
	}
	defer rows.Close()

	var out []model.Anomaly
	for rows.Next() {
		var (
			a        model.Anomaly
			severity string
			extra    sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Subtype, &severity, &a.Description, &a.Confidence, &extra); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan anomaly")
		}
		a.Severity = model.Severity(severity)
		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &a.Extra); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal anomaly extra")
			}
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate anomalies")
}

func (s *SQLiteStore) SaveValidation(ctx context.Context, record ValidationRecord) error {
	payload, err := json.Marshal(record.Summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal validation")
	}
	validated := record.ValidatedAt
	if validated.IsZero() {
		validated = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO validations (document_id, risk_level, payload, validated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET risk_level=excluded.risk_level,
			payload=excluded.payload, validated_at=excluded.validated_at`,
		record.DocumentID, string(record.RiskLevel), string(payload), validated,
	)
	return eris.Wrap(err, "sqlite: save validation")
}

func (s *SQLiteStore) ListValidations(ctx context.Context) ([]ValidationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, risk_level, payload, validated_at FROM validations ORDER BY document_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list validations")
	}
	defer rows.Close()

	var out []ValidationRecord
	for rows.Next() {
		var (
			rec     ValidationRecord
			risk    string
			payload string
		)
		if err := rows.Scan(&rec.DocumentID, &risk, &payload, &rec.ValidatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan validation")
		}
		rec.RiskLevel = model.RiskLevel(risk)
		if err := json.Unmarshal([]byte(payload), &rec.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal validation")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate validations")
}

func (s *SQLiteStore) SaveContractContext(ctx context.Context, cc model.ContractContext) error {
	payload, err := json.Marshal(cc)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contract context")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contract_contexts (contract_id, po_number, vendor_name, payload)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(contract_id) DO UPDATE SET po_number=excluded.po_number,
			vendor_name=excluded.vendor_name, payload=excluded.payload`,
		cc.ContractID, cc.PONumber, cc.VendorName, string(payload),
	)
	return eris.Wrap(err, "sqlite: save contract context")
}

func (s *SQLiteStore) FindContractContext(ctx context.Context, poNumber, vendorName string) (*model.ContractContext, error) {
	if poNumber == "" && vendorName == "" {
		return nil, nil
	}
	// PO linkage wins over vendor linkage.
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM contract_contexts
		 WHERE (po_number != '' AND po_number = ?) OR (vendor_name != '' AND vendor_name = ?)
		 ORDER BY CASE WHEN po_number = ? THEN 0 ELSE 1 END, stored_at DESC
		 LIMIT 1`,
		poNumber, vendorName, poNumber)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find contract context")
	}
	var cc model.ContractContext
	if err := json.Unmarshal([]byte(payload), &cc); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal contract context")
	}
	return &cc, nil
}

func (s *SQLiteStore) SaveContractInvoiceMapping(ctx context.Context, contractID, invoiceID string, anomalyCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contract_invoice_map (contract_id, invoice_id, anomaly_count, compared_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(contract_id, invoice_id) DO UPDATE SET anomaly_count=excluded.anomaly_count,
			compared_at=excluded.compared_at`,
		contractID, invoiceID, anomalyCount, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save contract invoice mapping")
}

func (s *SQLiteStore) SaveQueueItem(ctx context.Context, item model.HitlQueueItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hitl_queue (session_id, document_id, status, priority, queued_at)
		 VALUES (?, ?, ?, ?, ?)`,
		item.SessionID, item.DocumentID, string(item.Status), item.Priority, item.QueuedAt,
	)
	return eris.Wrap(err, "sqlite: save queue item")
}

func (s *SQLiteStore) UpdateQueueItem(ctx context.Context, item model.HitlQueueItem) error {
	var feedback []byte
	if item.Feedback != nil {
		var err error
		if feedback, err = json.Marshal(item.Feedback); err != nil {
			return eris.Wrap(err, "sqlite: marshal queue feedback")
		}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE hitl_queue SET status = ?, feedback = ?, reviewed_at = ? WHERE session_id = ?`,
		string(item.Status), nullable(feedback), item.ReviewedAt, item.SessionID,
	)
	return eris.Wrap(err, "sqlite: update queue item")
}

func (s *SQLiteStore) ListQueue(ctx context.Context, status model.QueueStatus) ([]model.HitlQueueItem, error) {
	query := `SELECT session_id, document_id, status, priority, queued_at, feedback, reviewed_at
		 FROM hitl_queue`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY queued_at, session_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list queue")
	}
	defer rows.Close()

	var out []model.HitlQueueItem
	for rows.Next() {
		var (
			item       model.HitlQueueItem
			itemStatus string
			feedback   sql.NullString
			reviewedAt sql.NullTime
		)
		if err := rows.Scan(&item.SessionID, &item.DocumentID, &itemStatus, &item.Priority,
			&item.QueuedAt, &feedback, &reviewedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan queue item")
		}
		item.Status = model.QueueStatus(itemStatus)
		if feedback.Valid && feedback.String != "" {
			var fb model.Feedback
			if err := json.Unmarshal([]byte(feedback.String), &fb); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal queue feedback")
			}
			item.Feedback = &fb
		}
		if reviewedAt.Valid {
			t := reviewedAt.Time
			item.ReviewedAt = &t
		}
		out = append(out, item)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate queue")
}

func (s *SQLiteStore) SaveFeedback(ctx context.Context, docID string, fb model.Feedback) error {
	payload, err := json.Marshal(fb)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal feedback")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, document_id, payload) VALUES (?, ?, ?)`,
		uuid.NewString(), docID, string(payload),
	)
	return eris.Wrap(err, "sqlite: save feedback")
}

func (s *SQLiteStore) GetBusinessRules(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rule_id, rule_value FROM business_rules`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get business rules")
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var (
			id    string
			value float64
		)
		if err := rows.Scan(&id, &value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan business rule")
		}
		out[id] = value
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate business rules")
}

func (s *SQLiteStore) PutBusinessRules(ctx context.Context, thresholds map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin rules tx")
	}
	defer tx.Rollback()

	for id, value := range thresholds {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO business_rules (rule_id, rule_value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(rule_id) DO UPDATE SET rule_value=excluded.rule_value, updated_at=excluded.updated_at`,
			id, value, time.Now().UTC(),
		); err != nil {
			return eris.Wrap(err, "sqlite: upsert business rule")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit rules")
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
