// Package store persists donors, documents, master records, and the anchor
// decision corpus. Two drivers are provided: Postgres (pgx) for production
// and SQLite for local runs.
package store

import (
	"context"
	"errors"

	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrImmutable is returned on attempts to rewrite a terminal document's
// extraction.
var ErrImmutable = errors.New("store: document extraction is immutable once terminal")

// Store is the persistence interface consumed by the pipeline.
//
// Writes to a donor's master record happen only from the aggregation cycle
// that holds the donor's IN_PROGRESS state; reads are lock-free and may see
// a stale-but-consistent snapshot.
type Store interface {
	// Donors
	CreateDonor(ctx context.Context, d *model.Donor) error
	GetDonor(ctx context.Context, id string) (*model.Donor, error)
	SaveAggregationResult(ctx context.Context, donorID string, rec *model.DonorRecord, status model.EligibilityStatus, flags []string) error

	// Aggregation cycle state. CompareAndSwapAggregation reports whether
	// the transition was applied; it is the only cross-document mutation
	// and the basis of at-most-once aggregation.
	CompareAndSwapAggregation(ctx context.Context, donorID string, from, to model.AggregationState) (bool, error)
	MarkFollowUp(ctx context.Context, donorID string) error
	TakeFollowUp(ctx context.Context, donorID string) (bool, error)

	// Documents
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	// ListDonorDocuments returns documents ordered by upload time then ID,
	// the deterministic merge order.
	ListDonorDocuments(ctx context.Context, donorID string) ([]model.Document, error)
	SetDocumentStatus(ctx context.Context, id string, status model.DocumentStatus, errMsg string) error
	// CompleteDocument transitions PROCESSING→terminal and stores the raw
	// extraction exactly once; later attempts fail with ErrImmutable.
	CompleteDocument(ctx context.Context, id string, status model.DocumentStatus, ext *model.DocumentExtraction, errMsg string) error
	CountUnfinishedDocuments(ctx context.Context, donorID string) (int, error)

	// Anchor decisions (append-only)
	InsertAnchor(ctx context.Context, a *model.AnchorDecision) error
	BulkInsertAnchors(ctx context.Context, anchors []model.AnchorDecision) (int64, error)
	LatestAnchor(ctx context.Context, donorID string) (*model.AnchorDecision, error)
	SupersedeAnchor(ctx context.Context, anchorID, byID string) error
	// ListCorpus returns all non-superseded anchors.
	ListCorpus(ctx context.Context) ([]model.AnchorDecision, error)
	// CorpusVersion increases on every insert; used to invalidate
	// similarity caches.
	CorpusVersion(ctx context.Context) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
