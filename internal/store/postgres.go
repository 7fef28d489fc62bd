package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ledgerline/docaudit/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which lets the postgres store be tested without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"insert_document":       `INSERT INTO documents (id, doc_type, po_number, vendor_name, fields, ingested_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO UPDATE SET doc_type = EXCLUDED.doc_type, po_number = EXCLUDED.po_number, vendor_name = EXCLUDED.vendor_name, fields = EXCLUDED.fields`,
	"get_document":          `SELECT id, doc_type, fields, ingested_at FROM documents WHERE id = $1`,
	"insert_anomaly":        `INSERT INTO anomalies (id, document_id, type, subtype, severity, description, confidence, extra) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"find_contract_context": `SELECT payload FROM contract_contexts WHERE (po_number != '' AND po_number = $1) OR (vendor_name != '' AND vendor_name = $2) ORDER BY CASE WHEN po_number = $1 THEN 0 ELSE 1 END, stored_at DESC LIMIT 1`,
	"upsert_validation":     `INSERT INTO validations (document_id, risk_level, payload, validated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (document_id) DO UPDATE SET risk_level = EXCLUDED.risk_level, payload = EXCLUDED.payload, validated_at = EXCLUDED.validated_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	doc_type    TEXT NOT NULL,
	po_number   TEXT NOT NULL DEFAULT '',
	vendor_name TEXT NOT NULL DEFAULT '',
	fields      JSONB NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS anomalies (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id TEXT NOT NULL REFERENCES documents(id),
	type        TEXT NOT NULL,
	subtype     TEXT NOT NULL DEFAULT '',
	severity    TEXT NOT NULL,
	description TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	extra       JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS validations (
	document_id  TEXT PRIMARY KEY,
	risk_level   TEXT NOT NULL,
	payload      JSONB NOT NULL,
	validated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contract_contexts (
	contract_id TEXT PRIMARY KEY,
	po_number   TEXT NOT NULL DEFAULT '',
	vendor_name TEXT NOT NULL DEFAULT '',
	payload     JSONB NOT NULL,
	stored_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contract_invoice_map (
	contract_id   TEXT NOT NULL,
	invoice_id    TEXT NOT NULL,
	anomaly_count INTEGER NOT NULL,
	compared_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (contract_id, invoice_id)
);

CREATE TABLE IF NOT EXISTS hitl_queue (
	session_id  TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'PENDING',
	priority    TEXT NOT NULL DEFAULT 'NORMAL',
	queued_at   TIMESTAMPTZ NOT NULL,
	feedback    JSONB,
	reviewed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS feedback (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id TEXT NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS business_rules (
	rule_id    TEXT PRIMARY KEY,
	rule_value DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_po ON documents(po_number);
CREATE INDEX IF NOT EXISTS idx_documents_vendor ON documents(vendor_name);
CREATE INDEX IF NOT EXISTS idx_anomalies_document ON anomalies(document_id);
CREATE INDEX IF NOT EXISTS idx_contract_contexts_po ON contract_contexts(po_number);
CREATE INDEX IF NOT EXISTS idx_hitl_queue_document ON hitl_queue(document_id);
CREATE INDEX IF NOT EXISTS idx_hitl_queue_status ON hitl_queue(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveDocument(ctx context.Context, doc model.DocumentRecord) error {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}
	ingested := doc.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (id, doc_type, po_number, vendor_name, fields, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET doc_type = EXCLUDED.doc_type, po_number = EXCLUDED.po_number,
			vendor_name = EXCLUDED.vendor_name, fields = EXCLUDED.fields`,
		doc.ID, string(doc.Type), doc.Field("po_number"), doc.Field("vendor_name"), fields, ingested,
	)
	return eris.Wrap(err, "postgres: save document")
}

func scanPgDocuments(rows pgx.Rows) ([]model.DocumentRecord, error) {
	defer rows.Close()
	var docs []model.DocumentRecord
	for rows.Next() {
		var (
			doc       model.DocumentRecord
			docType   string
			fieldsRaw []byte
		)
		if err := rows.Scan(&doc.ID, &docType, &fieldsRaw, &doc.IngestedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		doc.Type = model.DocumentType(docType)
		if err := json.Unmarshal(fieldsRaw, &doc.Fields); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fields")
		}
		docs = append(docs, doc)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: iterate documents")
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.DocumentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc_type, fields, ingested_at FROM documents WHERE id = $1`, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get document")
	}
	docs, err := scanPgDocuments(rows)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]model.DocumentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc_type, fields, ingested_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	return scanPgDocuments(rows)
}

func (s *PostgresStore) ListRelated(ctx context.Context, docID, poNumber, vendorName string) ([]model.DocumentRecord, error) {
	if poNumber == "" && vendorName == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc_type, fields, ingested_at FROM documents
		 WHERE id != $1 AND ((po_number != '' AND po_number = $2) OR (vendor_name != '' AND vendor_name = $3))
		 ORDER BY id`,
		docID, poNumber, vendorName)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list related")
	}
	return scanPgDocuments(rows)
}

func (s *PostgresStore) SaveAnomalies(ctx context.Context, docID string, anomalies []model.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin anomalies tx")
	}
	defer tx.Rollback(ctx)

	for _, a := range anomalies {
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		var extra []byte
		if a.Extra != nil {
			if extra, err = json.Marshal(a.Extra); err != nil {
				return eris.Wrap(err, "postgres: marshal anomaly extra")
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO anomalies (id, document_id, type, subtype, severity, description, confidence, extra)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, docID, a.Type, a.Subtype, string(a.Severity), a.Description, a.Confidence, extra,
		); err != nil {
			return eris.Wrap(err, "postgres: insert anomaly")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit anomalies")
}

func (s *PostgresStore) ListAnomalies(ctx context.Context, docID string) ([]model.Anomaly, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, subtype, severity, description, confidence, extra
		 FROM anomalies WHERE document_id = $1 ORDER BY created_at, id`, docID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list anomalies")
	}
	defer rows.Close()

	var out []model.Anomaly
	for rows.Next() {
		var (
			a        model.Anomaly
			severity string
			extra    []byte
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Subtype, &severity, &a.Description, &a.Confidence, &extra); err != nil {
			return nil, eris.Wrap(err, "postgres: scan anomaly")
		}
		a.Severity = model.Severity(severity)
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &a.Extra); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal anomaly extra")
			}
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate anomalies")
}

func (s *PostgresStore) SaveValidation(ctx context.Context, record ValidationRecord) error {
	payload, err := json.Marshal(record.Summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal validation")
	}
	validated := record.ValidatedAt
	if validated.IsZero() {
		validated = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO validations (document_id, risk_level, payload, validated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (document_id) DO UPDATE SET risk_level = EXCLUDED.risk_level,
			payload = EXCLUDED.payload, validated_at = EXCLUDED.validated_at`,
		record.DocumentID, string(record.RiskLevel), payload, validated,
	)
	return eris.Wrap(err, "postgres: save validation")
}

func (s *PostgresStore) ListValidations(ctx context.Context) ([]ValidationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id, risk_level, payload, validated_at FROM validations ORDER BY document_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list validations")
	}
	defer rows.Close()

	var out []ValidationRecord
	for rows.Next() {
		var (
			rec     ValidationRecord
			risk    string
			payload []byte
		)
		if err := rows.Scan(&rec.DocumentID, &risk, &payload, &rec.ValidatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan validation")
		}
		rec.RiskLevel = model.RiskLevel(risk)
		if err := json.Unmarshal(payload, &rec.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal validation")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate validations")
}

func (s *PostgresStore) SaveContractContext(ctx context.Context, cc model.ContractContext) error {
	payload, err := json.Marshal(cc)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contract context")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO contract_contexts (contract_id, po_number, vendor_name, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (contract_id) DO UPDATE SET po_number = EXCLUDED.po_number,
			vendor_name = EXCLUDED.vendor_name, payload = EXCLUDED.payload`,
		cc.ContractID, cc.PONumber, cc.VendorName, payload,
	)
	return eris.Wrap(err, "postgres: save contract context")
}

func (s *PostgresStore) FindContractContext(ctx context.Context, poNumber, vendorName string) (*model.ContractContext, error) {
	if poNumber == "" && vendorName == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT payload FROM contract_contexts
		 WHERE (po_number != '' AND po_number = $1) OR (vendor_name != '' AND vendor_name = $2)
		 ORDER BY CASE WHEN po_number = $1 THEN 0 ELSE 1 END, stored_at DESC
		 LIMIT 1`,
		poNumber, vendorName)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find contract context")
	}
	var cc model.ContractContext
	if err := json.Unmarshal(payload, &cc); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal contract context")
	}
	return &cc, nil
}

func (s *PostgresStore) SaveContractInvoiceMapping(ctx context.Context, contractID, invoiceID string, anomalyCount int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contract_invoice_map (contract_id, invoice_id, anomaly_count, compared_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (contract_id, invoice_id) DO UPDATE SET anomaly_count = EXCLUDED.anomaly_count,
			compared_at = EXCLUDED.compared_at`,
		contractID, invoiceID, anomalyCount, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save contract invoice mapping")
}

func (s *PostgresStore) SaveQueueItem(ctx context.Context, item model.HitlQueueItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO hitl_queue (session_id, document_id, status, priority, queued_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		item.SessionID, item.DocumentID, string(item.Status), item.Priority, item.QueuedAt,
	)
	return eris.Wrap(err, "postgres: save queue item")
}

func (s *PostgresStore) UpdateQueueItem(ctx context.Context, item model.HitlQueueItem) error {
	var feedback []byte
	if item.Feedback != nil {
		var err error
		if feedback, err = json.Marshal(item.Feedback); err != nil {
			return eris.Wrap(err, "postgres: marshal queue feedback")
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE hitl_queue SET status = $1, feedback = $2, reviewed_at = $3 WHERE session_id = $4`,
		string(item.Status), feedback, item.ReviewedAt, item.SessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update queue item %s", item.SessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("queue item not found: %s", item.SessionID)
	}
	return nil
}

func (s *PostgresStore) ListQueue(ctx context.Context, status model.QueueStatus) ([]model.HitlQueueItem, error) {
	query := `SELECT session_id, document_id, status, priority, queued_at, feedback, reviewed_at
		 FROM hitl_queue`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY queued_at, session_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list queue")
	}
	defer rows.Close()

	var out []model.HitlQueueItem
	for rows.Next() {
		var (
			item       model.HitlQueueItem
			itemStatus string
			feedback   []byte
			reviewedAt *time.Time
		)
		if err := rows.Scan(&item.SessionID, &item.DocumentID, &itemStatus, &item.Priority,
			&item.QueuedAt, &feedback, &reviewedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan queue item")
		}
		item.Status = model.QueueStatus(itemStatus)
		if len(feedback) > 0 {
			var fb model.Feedback
			if err := json.Unmarshal(feedback, &fb); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal queue feedback")
			}
			item.Feedback = &fb
		}
		item.ReviewedAt = reviewedAt
		out = append(out, item)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate queue")
}

func (s *PostgresStore) SaveFeedback(ctx context.Context, docID string, fb model.Feedback) error {
	payload, err := json.Marshal(fb)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal feedback")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO feedback (id, document_id, payload) VALUES ($1, $2, $3)`,
		uuid.NewString(), docID, payload,
	)
	return eris.Wrap(err, "postgres: save feedback")
}

func (s *PostgresStore) GetBusinessRules(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT rule_id, rule_value FROM business_rules`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get business rules")
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var (
			id    string
			value float64
		)
		if err := rows.Scan(&id, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan business rule")
		}
		out[id] = value
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate business rules")
}

func (s *PostgresStore) PutBusinessRules(ctx context.Context, thresholds map[string]float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin rules tx")
	}
	defer tx.Rollback(ctx)

	for id, value := range thresholds {
		if _, err := tx.Exec(ctx,
			`INSERT INTO business_rules (rule_id, rule_value, updated_at) VALUES ($1, $2, $3)
			 ON CONFLICT (rule_id) DO UPDATE SET rule_value = EXCLUDED.rule_value, updated_at = EXCLUDED.updated_at`,
			id, value, time.Now().UTC(),
		); err != nil {
			return eris.Wrap(err, "postgres: upsert business rule")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit rules")
}
