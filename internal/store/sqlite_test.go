package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_DonorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDonor(ctx, &model.Donor{ID: "donor-1", ExternalID: "MTF-0042"}))

	d, err := s.GetDonor(ctx, "donor-1")
	require.NoError(t, err)
	assert.Equal(t, "MTF-0042", d.ExternalID)
	assert.Equal(t, model.AggregationPending, d.AggregationState)
	assert.Nil(t, d.MasterRecord)

	age := 54
	rec := &model.DonorRecord{}
	rec.Identity.Age = &age
	rec.Inventory = map[string]model.InventoryItem{
		model.InventoryAuthorization: {Present: true, SourcePages: []int{1}},
	}
	require.NoError(t, s.SaveAggregationResult(ctx, "donor-1", rec, model.StatusReview, []string{"age_out_of_range"}))

	d, err = s.GetDonor(ctx, "donor-1")
	require.NoError(t, err)
	require.NotNil(t, d.MasterRecord)
	assert.Equal(t, 54, *d.MasterRecord.Identity.Age)
	assert.True(t, d.MasterRecord.Inventory[model.InventoryAuthorization].Present)
	assert.Equal(t, model.StatusReview, d.EligibilityStatus)
	assert.Equal(t, []string{"age_out_of_range"}, d.Flags)
}

func TestSQLiteStore_GetDonor_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetDonor(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CompareAndSwapAggregation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDonor(ctx, &model.Donor{ID: "donor-1"}))

	ok, err := s.CompareAndSwapAggregation(ctx, "donor-1", model.AggregationPending, model.AggregationInProgress)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second swap from PENDING must lose: the state is now IN_PROGRESS.
	ok, err = s.CompareAndSwapAggregation(ctx, "donor-1", model.AggregationPending, model.AggregationInProgress)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwapAggregation(ctx, "donor-1", model.AggregationInProgress, model.AggregationDone)
	require.NoError(t, err)
	assert.True(t, ok)

	d, err := s.GetDonor(ctx, "donor-1")
	require.NoError(t, err)
	assert.Equal(t, model.AggregationDone, d.AggregationState)
}

func TestSQLiteStore_FollowUp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDonor(ctx, &model.Donor{ID: "donor-1"}))

	taken, err := s.TakeFollowUp(ctx, "donor-1")
	require.NoError(t, err)
	assert.False(t, taken)

	require.NoError(t, s.MarkFollowUp(ctx, "donor-1"))

	taken, err = s.TakeFollowUp(ctx, "donor-1")
	require.NoError(t, err)
	assert.True(t, taken)

	// The bit was consumed by the first take.
	taken, err = s.TakeFollowUp(ctx, "donor-1")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestSQLiteStore_DocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDonor(ctx, &model.Donor{ID: "donor-1"}))
	require.NoError(t, s.CreateDocument(ctx, &model.Document{ID: "doc-1", DonorID: "donor-1", Filename: "chart.pdf"}))

	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentQueued, doc.Status)
	assert.Nil(t, doc.CompletedAt)

	require.NoError(t, s.SetDocumentStatus(ctx, "doc-1", model.DocumentProcessing, ""))

	n, err := s.CountUnfinishedDocuments(ctx, "donor-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ext := &model.DocumentExtraction{
		TotalPages:    12,
		RelevantPages: []int{1, 2, 7},
		Chunks: []model.ChunkResult{
			{Index: 0, Pages: []int{1, 2}, Status: model.ChunkCompleted},
		},
	}
	require.NoError(t, s.CompleteDocument(ctx, "doc-1", model.DocumentCompleted, ext, ""))

	doc, err = s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentCompleted, doc.Status)
	require.NotNil(t, doc.CompletedAt)
	require.NotNil(t, doc.Extraction)
	assert.Equal(t, 12, doc.Extraction.TotalPages)
	assert.Equal(t, []int{1, 2, 7}, doc.Extraction.RelevantPages)

	n, err = s.CountUnfinishedDocuments(ctx, "donor-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteStore_CompleteDocument_Immutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDonor(ctx, &model.Donor{ID: "donor-1"}))
	require.NoError(t, s.CreateDocument(ctx, &model.Document{ID: "doc-1", DonorID: "donor-1"}))
	require.NoError(t, s.SetDocumentStatus(ctx, "doc-1", model.DocumentProcessing, ""))
	require.NoError(t, s.CompleteDocument(ctx, "doc-1", model.DocumentFailed, &model.DocumentExtraction{}, "anthropic: overloaded"))

	// A terminal document never transitions again.
	err := s.CompleteDocument(ctx, "doc-1", model.DocumentCompleted, &model.DocumentExtraction{}, "")
	assert.ErrorIs(t, err, ErrImmutable)

	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentFailed, doc.Status)
	assert.Equal(t, "anthropic: overloaded", doc.Error)
}

func TestSQLiteStore_ListDonorDocuments_Order(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDonor(ctx, &model.Donor{ID: "donor-1"}))

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Inserted out of order on purpose; doc-b and doc-c share an upload
	// time so the ID tiebreak decides.
	require.NoError(t, s.CreateDocument(ctx, &model.Document{ID: "doc-b", DonorID: "donor-1", UploadedAt: base.Add(time.Minute)}))
	require.NoError(t, s.CreateDocument(ctx, &model.Document{ID: "doc-a", DonorID: "donor-1", UploadedAt: base}))
	require.NoError(t, s.CreateDocument(ctx, &model.Document{ID: "doc-c", DonorID: "donor-1", UploadedAt: base.Add(time.Minute)}))

	docs, err := s.ListDonorDocuments(ctx, "donor-1")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "doc-a", docs[0].ID)
	assert.Equal(t, "doc-b", docs[1].ID)
	assert.Equal(t, "doc-c", docs[2].ID)
}

func TestSQLiteStore_Anchors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.CorpusVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	age := 54
	a1 := &model.AnchorDecision{
		ID:            "anchor-1",
		DonorID:       "donor-1",
		Outcome:       model.OutcomeAccepted,
		OutcomeSource: model.SourcePredicted,
		Snapshot:      model.ParameterSnapshot{Age: &age, Gender: "M", CauseOfDeath: "anoxia"},
		Embedding:     []float32{0.1, 0.2, 0.3},
	}
	require.NoError(t, s.InsertAnchor(ctx, a1))

	got, err := s.LatestAnchor(ctx, "donor-1")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAccepted, got.Outcome)
	assert.Equal(t, model.SourcePredicted, got.OutcomeSource)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	assert.Equal(t, "anoxia", got.Snapshot.CauseOfDeath)

	a2 := &model.AnchorDecision{
		ID:            "anchor-2",
		DonorID:       "donor-1",
		Outcome:       model.OutcomeRejected,
		OutcomeSource: model.SourceManualApproval,
		Snapshot:      model.ParameterSnapshot{Age: &age, Gender: "M", CauseOfDeath: "anoxia"},
		Embedding:     []float32{0.1, 0.2, 0.3},
	}
	require.NoError(t, s.InsertAnchor(ctx, a2))
	require.NoError(t, s.SupersedeAnchor(ctx, "anchor-1", "anchor-2"))

	got, err = s.LatestAnchor(ctx, "donor-1")
	require.NoError(t, err)
	assert.Equal(t, "anchor-2", got.ID)

	// Superseded anchors drop out of the active corpus but keep counting
	// toward the version.
	corpus, err := s.ListCorpus(ctx)
	require.NoError(t, err)
	require.Len(t, corpus, 1)
	assert.Equal(t, "anchor-2", corpus[0].ID)

	v, err = s.CorpusVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// Superseding twice is a no-op failure.
	err = s.SupersedeAnchor(ctx, "anchor-1", "anchor-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_BulkInsertAnchors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.BulkInsertAnchors(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.BulkInsertAnchors(ctx, []model.AnchorDecision{
		{ID: "a-1", DonorID: "d-1", Outcome: model.OutcomeAccepted, OutcomeSource: model.SourceManualApproval, Embedding: []float32{1, 0}},
		{ID: "a-2", DonorID: "d-2", Outcome: model.OutcomeRejected, OutcomeSource: model.SourceManualApproval, Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	corpus, err := s.ListCorpus(ctx)
	require.NoError(t, err)
	assert.Len(t, corpus, 2)
}
