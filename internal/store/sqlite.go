package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for
// local runs and tests; production deployments use PostgresStore.
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS donors (
	id                 TEXT PRIMARY KEY,
	external_id        TEXT NOT NULL DEFAULT '',
	aggregation_state  TEXT NOT NULL DEFAULT 'PENDING',
	follow_up          INTEGER NOT NULL DEFAULT 0,
	master_record      TEXT,
	eligibility_status TEXT NOT NULL DEFAULT '',
	flags              TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	donor_id     TEXT NOT NULL REFERENCES donors(id),
	filename     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'QUEUED',
	extraction   TEXT,
	error        TEXT NOT NULL DEFAULT '',
	uploaded_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_documents_donor ON documents(donor_id, uploaded_at);

CREATE TABLE IF NOT EXISTS anchor_decisions (
	id                 TEXT PRIMARY KEY,
	donor_id           TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	outcome_source     TEXT NOT NULL,
	parameter_snapshot TEXT NOT NULL,
	embedding          TEXT NOT NULL,
	superseded_by      TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_anchor_donor ON anchor_decisions(donor_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CreateDonor(ctx context.Context, d *model.Donor) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.AggregationState == "" {
		d.AggregationState = model.AggregationPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO donors (id, external_id, aggregation_state, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.ExternalID, string(d.AggregationState), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create donor %s", d.ID)
	}
	return nil
}

func (s *SQLiteStore) GetDonor(ctx context.Context, id string) (*model.Donor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, aggregation_state, follow_up, master_record, eligibility_status, flags, created_at, updated_at
		 FROM donors WHERE id = ?`, id)

	var d model.Donor
	var state, status string
	var recordJSON, flagsJSON sql.NullString
	err := row.Scan(&d.ID, &d.ExternalID, &state, &d.FollowUp, &recordJSON, &status, &flagsJSON, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get donor %s", id)
	}
	d.AggregationState = model.AggregationState(state)
	d.EligibilityStatus = model.EligibilityStatus(status)
	if recordJSON.Valid && recordJSON.String != "" {
		if err := json.Unmarshal([]byte(recordJSON.String), &d.MasterRecord); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode master record for %s", id)
		}
	}
	if flagsJSON.Valid && flagsJSON.String != "" {
		if err := json.Unmarshal([]byte(flagsJSON.String), &d.Flags); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode flags for %s", id)
		}
	}
	return &d, nil
}

func (s *SQLiteStore) SaveAggregationResult(ctx context.Context, donorID string, rec *model.DonorRecord, status model.EligibilityStatus, flags []string) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode master record")
	}
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode flags")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE donors SET master_record = ?, eligibility_status = ?, flags = ?, updated_at = ? WHERE id = ?`,
		string(recordJSON), string(status), string(flagsJSON), time.Now().UTC(), donorID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save aggregation result %s", donorID)
	}
	return checkRowsAffected(res, "donor", donorID)
}

func (s *SQLiteStore) CompareAndSwapAggregation(ctx context.Context, donorID string, from, to model.AggregationState) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE donors SET aggregation_state = ?, updated_at = ? WHERE id = ? AND aggregation_state = ?`,
		string(to), time.Now().UTC(), donorID, string(from))
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: cas aggregation %s %s→%s", donorID, from, to)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: rows affected for donor %s", donorID)
	}
	return n == 1, nil
}

func (s *SQLiteStore) MarkFollowUp(ctx context.Context, donorID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE donors SET follow_up = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), donorID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark follow-up %s", donorID)
	}
	return nil
}

func (s *SQLiteStore) TakeFollowUp(ctx context.Context, donorID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE donors SET follow_up = 0, updated_at = ? WHERE id = ? AND follow_up = 1`,
		time.Now().UTC(), donorID)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: take follow-up %s", donorID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: rows affected for donor %s", donorID)
	}
	return n == 1, nil
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = model.DocumentQueued
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, donor_id, filename, status, uploaded_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.DonorID, doc.Filename, string(doc.Status), doc.UploadedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create document %s", doc.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var status string
	var extJSON sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.DonorID, &doc.Filename, &status, &extJSON, &doc.Error, &doc.UploadedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatus(status)
	if completedAt.Valid {
		doc.CompletedAt = &completedAt.Time
	}
	if extJSON.Valid && extJSON.String != "" {
		if err := json.Unmarshal([]byte(extJSON.String), &doc.Extraction); err != nil {
			return nil, eris.Wrapf(err, "decode extraction for %s", doc.ID)
		}
	}
	return &doc, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanSQLiteDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", id)
	}
	return doc, nil
}

func (s *SQLiteStore) ListDonorDocuments(ctx context.Context, donorID string) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE donor_id = ? ORDER BY uploaded_at, id`, donorID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list documents for %s", donorID)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan document for %s", donorID)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: list documents for %s", donorID)
	}
	return docs, nil
}

func (s *SQLiteStore) SetDocumentStatus(ctx context.Context, id string, status model.DocumentStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = ? WHERE id = ?`,
		string(status), errMsg, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set document status %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

func (s *SQLiteStore) CompleteDocument(ctx context.Context, id string, status model.DocumentStatus, ext *model.DocumentExtraction, errMsg string) error {
	if !status.Terminal() {
		return eris.Errorf("sqlite: complete document %s with non-terminal status %s", id, status)
	}
	extJSON, err := json.Marshal(ext)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode extraction")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, extraction = ?, error = ?, completed_at = ?
		 WHERE id = ? AND status = 'PROCESSING'`,
		string(status), string(extJSON), errMsg, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete document %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for document %s", id)
	}
	if n == 0 {
		return ErrImmutable
	}
	return nil
}

func (s *SQLiteStore) CountUnfinishedDocuments(ctx context.Context, donorID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE donor_id = ? AND status NOT IN ('COMPLETED', 'FAILED')`,
		donorID).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: count unfinished for %s", donorID)
	}
	return n, nil
}

func (s *SQLiteStore) InsertAnchor(ctx context.Context, a *model.AnchorDecision) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	snapJSON, err := json.Marshal(a.Snapshot)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode snapshot")
	}
	embJSON, err := json.Marshal(a.Embedding)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode embedding")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO anchor_decisions (id, donor_id, outcome, outcome_source, parameter_snapshot, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DonorID, string(a.Outcome), string(a.OutcomeSource), string(snapJSON), string(embJSON), a.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert anchor %s", a.ID)
	}
	return nil
}

// BulkInsertAnchors inserts anchors inside a single transaction. SQLite has
// no COPY protocol, so this is a prepared-statement loop.
func (s *SQLiteStore) BulkInsertAnchors(ctx context.Context, anchors []model.AnchorDecision) (int64, error) {
	if len(anchors) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk insert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO anchor_decisions (id, donor_id, outcome, outcome_source, parameter_snapshot, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare bulk insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
	for _, a := range anchors {
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		snapJSON, err := json.Marshal(a.Snapshot)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: encode snapshot for %s", a.ID)
		}
		embJSON, err := json.Marshal(a.Embedding)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: encode embedding for %s", a.ID)
		}
		if _, err := stmt.ExecContext(ctx, a.ID, a.DonorID, string(a.Outcome), string(a.OutcomeSource),
			string(snapJSON), string(embJSON), createdAt); err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk insert anchor %s", a.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bulk insert")
	}
	return n, nil
}

func scanSQLiteAnchor(row rowScanner) (*model.AnchorDecision, error) {
	var a model.AnchorDecision
	var outcome, source, snapJSON, embJSON string
	var superseded sql.NullString
	err := row.Scan(&a.ID, &a.DonorID, &outcome, &source, &snapJSON, &embJSON, &superseded, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Outcome = model.Outcome(outcome)
	a.OutcomeSource = model.OutcomeSource(source)
	a.SupersededBy = superseded.String
	if err := json.Unmarshal([]byte(snapJSON), &a.Snapshot); err != nil {
		return nil, eris.Wrapf(err, "decode snapshot for %s", a.ID)
	}
	if err := json.Unmarshal([]byte(embJSON), &a.Embedding); err != nil {
		return nil, eris.Wrapf(err, "decode embedding for %s", a.ID)
	}
	return &a, nil
}

func (s *SQLiteStore) LatestAnchor(ctx context.Context, donorID string) (*model.AnchorDecision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+anchorColumns+` FROM anchor_decisions
		 WHERE donor_id = ? AND superseded_by IS NULL
		 ORDER BY created_at DESC LIMIT 1`, donorID)
	a, err := scanSQLiteAnchor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest anchor for %s", donorID)
	}
	return a, nil
}

func (s *SQLiteStore) SupersedeAnchor(ctx context.Context, anchorID, byID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE anchor_decisions SET superseded_by = ? WHERE id = ? AND superseded_by IS NULL`,
		byID, anchorID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: supersede anchor %s", anchorID)
	}
	return checkRowsAffected(res, "anchor", anchorID)
}

func (s *SQLiteStore) ListCorpus(ctx context.Context) ([]model.AnchorDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+anchorColumns+` FROM anchor_decisions WHERE superseded_by IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list corpus")
	}
	defer rows.Close()

	var anchors []model.AnchorDecision
	for rows.Next() {
		a, err := scanSQLiteAnchor(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan anchor")
		}
		anchors = append(anchors, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list corpus")
	}
	return anchors, nil
}

func (s *SQLiteStore) CorpusVersion(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anchor_decisions`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: corpus version")
	}
	return n, nil
}
