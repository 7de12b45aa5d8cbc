// Package audit exposes the donor document audit operations consumed by
// cmd/ and, eventually, an HTTP layer.
package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/amruthm-ignitec/mtf-backend/internal/anchor"
	"github.com/amruthm-ignitec/mtf-backend/internal/compliance"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
	"github.com/amruthm-ignitec/mtf-backend/internal/store"
)

// ErrNoMasterRecord is returned for donors whose aggregation has not
// produced a master record yet.
var ErrNoMasterRecord = eris.New("audit: donor has no master record yet")

// Enqueuer submits document jobs to the worker pool.
type Enqueuer interface {
	Enqueue(documentID string) error
}

// Predictor is the anchor-corpus surface the service needs.
type Predictor interface {
	Predict(ctx context.Context, rec *model.DonorRecord, threshold float64) (*anchor.Evaluation, error)
	RecordPredicted(ctx context.Context, donorID string, ev *anchor.Evaluation) error
	RecordManual(ctx context.Context, donorID string, rec *model.DonorRecord, outcome model.Outcome) (*model.AnchorDecision, error)
}

// Service is the audit facade: document intake, master-record reads,
// compliance evaluation, and outcome prediction.
type Service struct {
	store     store.Store
	engine    *compliance.Engine
	predictor Predictor
	queue     Enqueuer
}

// NewService wires the audit facade.
func NewService(st store.Store, engine *compliance.Engine, predictor Predictor, queue Enqueuer) *Service {
	return &Service{store: st, engine: engine, predictor: predictor, queue: queue}
}

// IngestDocument registers a document for a donor, creating the donor on
// first sight, and enqueues it for extraction. Returns the document ID.
func (s *Service) IngestDocument(ctx context.Context, externalDonorID, filename string) (string, error) {
	donor, err := s.donorByExternalID(ctx, externalDonorID)
	if err != nil {
		return "", err
	}

	doc := &model.Document{
		ID:       uuid.NewString(),
		DonorID:  donor.ID,
		Filename: filename,
		Status:   model.DocumentQueued,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return "", eris.Wrapf(err, "audit: create document for donor %s", externalDonorID)
	}

	if err := s.queue.Enqueue(doc.ID); err != nil {
		return "", eris.Wrapf(err, "audit: enqueue document %s", doc.ID)
	}

	zap.L().Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("donor_id", donor.ID),
		zap.String("filename", filename))
	return doc.ID, nil
}

// ProcessDocument enqueues an already-registered document.
func (s *Service) ProcessDocument(ctx context.Context, documentID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return eris.Wrapf(err, "audit: load document %s", documentID)
	}
	if doc.Status.Terminal() {
		return eris.Errorf("audit: document %s is already %s", documentID, doc.Status)
	}
	return s.queue.Enqueue(doc.ID)
}

// GetMasterRecord returns the donor's current master record.
func (s *Service) GetMasterRecord(ctx context.Context, donorID string) (*model.DonorRecord, error) {
	donor, err := s.store.GetDonor(ctx, donorID)
	if err != nil {
		return nil, eris.Wrapf(err, "audit: load donor %s", donorID)
	}
	if donor.MasterRecord == nil {
		return nil, ErrNoMasterRecord
	}
	return donor.MasterRecord, nil
}

// EvaluateCompliance re-runs the ruleset over the donor's master record.
// The engine is pure, so this always matches the persisted verdict for an
// unchanged record.
func (s *Service) EvaluateCompliance(ctx context.Context, donorID string) (compliance.Result, error) {
	rec, err := s.GetMasterRecord(ctx, donorID)
	if err != nil {
		return compliance.Result{}, err
	}
	return s.engine.Evaluate(rec), nil
}

// PredictOutcome predicts the donor's outcome at the given similarity
// threshold and records a PREDICTED anchor when a ground-truth entry does
// not already exist.
func (s *Service) PredictOutcome(ctx context.Context, donorID string, threshold float64) (*model.Prediction, error) {
	rec, err := s.GetMasterRecord(ctx, donorID)
	if err != nil {
		return nil, err
	}

	ev, err := s.predictor.Predict(ctx, rec, threshold)
	if err != nil {
		return nil, eris.Wrapf(err, "audit: predict outcome for donor %s", donorID)
	}
	if err := s.predictor.RecordPredicted(ctx, donorID, ev); err != nil {
		return nil, eris.Wrapf(err, "audit: record predicted outcome for donor %s", donorID)
	}
	return ev.Prediction, nil
}

// RecordManualOutcome stores a human decision as ground truth, superseding
// any prior PREDICTED anchor for the donor.
func (s *Service) RecordManualOutcome(ctx context.Context, donorID string, outcome model.Outcome) (*model.AnchorDecision, error) {
	if outcome != model.OutcomeAccepted && outcome != model.OutcomeRejected {
		return nil, eris.Errorf("audit: unknown outcome %q", outcome)
	}

	rec, err := s.GetMasterRecord(ctx, donorID)
	if err != nil {
		return nil, err
	}

	a, err := s.predictor.RecordManual(ctx, donorID, rec, outcome)
	if err != nil {
		return nil, eris.Wrapf(err, "audit: record manual outcome for donor %s", donorID)
	}
	zap.L().Info("manual outcome recorded",
		zap.String("donor_id", donorID),
		zap.String("outcome", string(outcome)),
		zap.String("anchor_id", a.ID))
	return a, nil
}

// donorByExternalID finds a donor by external ID, creating one if absent.
func (s *Service) donorByExternalID(ctx context.Context, externalID string) (*model.Donor, error) {
	donor, err := s.store.GetDonor(ctx, externalID)
	if err == nil {
		return donor, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "audit: look up donor %s", externalID)
	}

	donor = &model.Donor{
		ID:               externalID,
		ExternalID:       externalID,
		AggregationState: model.AggregationPending,
	}
	if err := s.store.CreateDonor(ctx, donor); err != nil {
		return nil, eris.Wrapf(err, "audit: create donor %s", externalID)
	}
	return donor, nil
}
