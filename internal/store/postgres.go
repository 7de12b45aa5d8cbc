package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/amruthm-ignitec/mtf-backend/internal/db"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"cas_aggregation":  `UPDATE donors SET aggregation_state = $1, updated_at = $2 WHERE id = $3 AND aggregation_state = $4`,
	"get_document":     `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`,
	"count_unfinished": `SELECT COUNT(*) FROM documents WHERE donor_id = $1 AND status NOT IN ('COMPLETED', 'FAILED')`,
	"list_documents":   `SELECT ` + documentColumns + ` FROM documents WHERE donor_id = $1 ORDER BY uploaded_at, id`,
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

// NewPostgresFromPool wraps an existing pool. Used by tests and by
// subsystems that share one pool across stores.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS donors (
	id                 TEXT PRIMARY KEY,
	external_id        TEXT NOT NULL DEFAULT '',
	aggregation_state  TEXT NOT NULL DEFAULT 'PENDING',
	follow_up          BOOLEAN NOT NULL DEFAULT FALSE,
	master_record      JSONB,
	eligibility_status TEXT NOT NULL DEFAULT '',
	flags              JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	donor_id     TEXT NOT NULL REFERENCES donors(id),
	filename     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'QUEUED',
	extraction   JSONB,
	error        TEXT NOT NULL DEFAULT '',
	uploaded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_documents_donor ON documents(donor_id, uploaded_at);

CREATE TABLE IF NOT EXISTS anchor_decisions (
	id                 TEXT PRIMARY KEY,
	donor_id           TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	outcome_source     TEXT NOT NULL,
	parameter_snapshot JSONB NOT NULL,
	embedding          JSONB NOT NULL,
	superseded_by      TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_anchor_donor ON anchor_decisions(donor_id, created_at);
`

// Migrate creates tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDonor(ctx context.Context, d *model.Donor) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.AggregationState == "" {
		d.AggregationState = model.AggregationPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO donors (id, external_id, aggregation_state, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.ExternalID, string(d.AggregationState), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: create donor %s", d.ID)
	}
	return nil
}

func (s *PostgresStore) GetDonor(ctx context.Context, id string) (*model.Donor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, external_id, aggregation_state, follow_up, master_record, eligibility_status, flags, created_at, updated_at
		 FROM donors WHERE id = $1`, id)

	var d model.Donor
	var state string
	var recordJSON, flagsJSON []byte
	var status string
	err := row.Scan(&d.ID, &d.ExternalID, &state, &d.FollowUp, &recordJSON, &status, &flagsJSON, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get donor %s", id)
	}
	d.AggregationState = model.AggregationState(state)
	d.EligibilityStatus = model.EligibilityStatus(status)
	if len(recordJSON) > 0 {
		if err := json.Unmarshal(recordJSON, &d.MasterRecord); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode master record for %s", id)
		}
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &d.Flags); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode flags for %s", id)
		}
	}
	return &d, nil
}

func (s *PostgresStore) SaveAggregationResult(ctx context.Context, donorID string, rec *model.DonorRecord, status model.EligibilityStatus, flags []string) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: encode master record")
	}
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return eris.Wrap(err, "postgres: encode flags")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE donors SET master_record = $1, eligibility_status = $2, flags = $3, updated_at = $4 WHERE id = $5`,
		recordJSON, string(status), flagsJSON, time.Now().UTC(), donorID)
	if err != nil {
		return eris.Wrapf(err, "postgres: save aggregation result %s", donorID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompareAndSwapAggregation(ctx context.Context, donorID string, from, to model.AggregationState) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE donors SET aggregation_state = $1, updated_at = $2 WHERE id = $3 AND aggregation_state = $4`,
		string(to), time.Now().UTC(), donorID, string(from))
	if err != nil {
		return false, eris.Wrapf(err, "postgres: cas aggregation %s %s→%s", donorID, from, to)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) MarkFollowUp(ctx context.Context, donorID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE donors SET follow_up = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), donorID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark follow-up %s", donorID)
	}
	return nil
}

func (s *PostgresStore) TakeFollowUp(ctx context.Context, donorID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE donors SET follow_up = FALSE, updated_at = $1 WHERE id = $2 AND follow_up = TRUE`,
		time.Now().UTC(), donorID)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: take follow-up %s", donorID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = model.DocumentQueued
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, donor_id, filename, status, uploaded_at) VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.DonorID, doc.Filename, string(doc.Status), doc.UploadedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: create document %s", doc.ID)
	}
	return nil
}

const documentColumns = `id, donor_id, filename, status, extraction, error, uploaded_at, completed_at`

func scanDocument(row pgx.Row) (*model.Document, error) {
	var doc model.Document
	var status string
	var extJSON []byte
	err := row.Scan(&doc.ID, &doc.DonorID, &doc.Filename, &status, &extJSON, &doc.Error, &doc.UploadedAt, &doc.CompletedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatus(status)
	if len(extJSON) > 0 {
		if err := json.Unmarshal(extJSON, &doc.Extraction); err != nil {
			return nil, eris.Wrapf(err, "decode extraction for %s", doc.ID)
		}
	}
	return &doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	return doc, nil
}

func (s *PostgresStore) ListDonorDocuments(ctx context.Context, donorID string) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE donor_id = $1 ORDER BY uploaded_at, id`, donorID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list documents for %s", donorID)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan document for %s", donorID)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: list documents for %s", donorID)
	}
	return docs, nil
}

func (s *PostgresStore) SetDocumentStatus(ctx context.Context, id string, status model.DocumentStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, error = $2 WHERE id = $3`,
		string(status), errMsg, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set document status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompleteDocument(ctx context.Context, id string, status model.DocumentStatus, ext *model.DocumentExtraction, errMsg string) error {
	if !status.Terminal() {
		return eris.Errorf("postgres: complete document %s with non-terminal status %s", id, status)
	}
	extJSON, err := json.Marshal(ext)
	if err != nil {
		return eris.Wrap(err, "postgres: encode extraction")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, extraction = $2, error = $3, completed_at = $4
		 WHERE id = $5 AND status = 'PROCESSING'`,
		string(status), extJSON, errMsg, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete document %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrImmutable
	}
	return nil
}

func (s *PostgresStore) CountUnfinishedDocuments(ctx context.Context, donorID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE donor_id = $1 AND status NOT IN ('COMPLETED', 'FAILED')`,
		donorID).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: count unfinished for %s", donorID)
	}
	return n, nil
}

func (s *PostgresStore) InsertAnchor(ctx context.Context, a *model.AnchorDecision) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	snapJSON, err := json.Marshal(a.Snapshot)
	if err != nil {
		return eris.Wrap(err, "postgres: encode snapshot")
	}
	embJSON, err := json.Marshal(a.Embedding)
	if err != nil {
		return eris.Wrap(err, "postgres: encode embedding")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO anchor_decisions (id, donor_id, outcome, outcome_source, parameter_snapshot, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.DonorID, string(a.Outcome), string(a.OutcomeSource), snapJSON, embJSON, a.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert anchor %s", a.ID)
	}
	return nil
}

// BulkInsertAnchors seeds the corpus via the COPY protocol. Historical
// decisions imported this way carry the MANUAL_APPROVAL source.
func (s *PostgresStore) BulkInsertAnchors(ctx context.Context, anchors []model.AnchorDecision) (int64, error) {
	rows := make([][]any, 0, len(anchors))
	now := time.Now().UTC()
	for _, a := range anchors {
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		snapJSON, err := json.Marshal(a.Snapshot)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode snapshot for %s", a.ID)
		}
		embJSON, err := json.Marshal(a.Embedding)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode embedding for %s", a.ID)
		}
		rows = append(rows, []any{a.ID, a.DonorID, string(a.Outcome), string(a.OutcomeSource), snapJSON, embJSON, createdAt})
	}

	return db.CopyFrom(ctx, s.pool, "anchor_decisions",
		[]string{"id", "donor_id", "outcome", "outcome_source", "parameter_snapshot", "embedding", "created_at"}, rows)
}

const anchorColumns = `id, donor_id, outcome, outcome_source, parameter_snapshot, embedding, superseded_by, created_at`

func scanAnchor(row pgx.Row) (*model.AnchorDecision, error) {
	var a model.AnchorDecision
	var outcome, source string
	var snapJSON, embJSON []byte
	var superseded *string
	err := row.Scan(&a.ID, &a.DonorID, &outcome, &source, &snapJSON, &embJSON, &superseded, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Outcome = model.Outcome(outcome)
	a.OutcomeSource = model.OutcomeSource(source)
	if superseded != nil {
		a.SupersededBy = *superseded
	}
	if err := json.Unmarshal(snapJSON, &a.Snapshot); err != nil {
		return nil, eris.Wrapf(err, "decode snapshot for %s", a.ID)
	}
	if err := json.Unmarshal(embJSON, &a.Embedding); err != nil {
		return nil, eris.Wrapf(err, "decode embedding for %s", a.ID)
	}
	return &a, nil
}

func (s *PostgresStore) LatestAnchor(ctx context.Context, donorID string) (*model.AnchorDecision, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+anchorColumns+` FROM anchor_decisions
		 WHERE donor_id = $1 AND superseded_by IS NULL
		 ORDER BY created_at DESC LIMIT 1`, donorID)
	a, err := scanAnchor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest anchor for %s", donorID)
	}
	return a, nil
}

func (s *PostgresStore) SupersedeAnchor(ctx context.Context, anchorID, byID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE anchor_decisions SET superseded_by = $1 WHERE id = $2 AND superseded_by IS NULL`,
		byID, anchorID)
	if err != nil {
		return eris.Wrapf(err, "postgres: supersede anchor %s", anchorID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListCorpus(ctx context.Context) ([]model.AnchorDecision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+anchorColumns+` FROM anchor_decisions WHERE superseded_by IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corpus")
	}
	defer rows.Close()

	var anchors []model.AnchorDecision
	for rows.Next() {
		a, err := scanAnchor(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan anchor")
		}
		anchors = append(anchors, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list corpus")
	}
	return anchors, nil
}

func (s *PostgresStore) CorpusVersion(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM anchor_decisions`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: corpus version")
	}
	return n, nil
}
