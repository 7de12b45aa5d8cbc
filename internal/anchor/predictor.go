package anchor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/amruthm-ignitec/mtf-backend/internal/config"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
	"github.com/amruthm-ignitec/mtf-backend/internal/store"
	"github.com/amruthm-ignitec/mtf-backend/pkg/embed"
)

// Evaluation is a prediction together with the snapshot and embedding it
// was computed from, so the caller can persist the decision without
// re-embedding.
type Evaluation struct {
	Prediction *model.Prediction
	Snapshot   model.ParameterSnapshot
	Embedding  []float32
}

// Predictor finds similar historical cases for a new donor and produces a
// weighted-vote outcome prediction. The voting corpus holds only
// MANUAL_APPROVAL anchors that have not been superseded; PREDICTED entries
// are audit records, not evidence.
type Predictor struct {
	store    store.Store
	embedder embed.Embedder
	cfg      config.PredictConfig

	// Corpus cache, invalidated by version check on every load.
	mu            sync.Mutex
	cachedVersion int64
	cached        []model.AnchorDecision
}

// NewPredictor creates a Predictor over the given store and embedder.
func NewPredictor(st store.Store, embedder embed.Embedder, cfg config.PredictConfig) *Predictor {
	return &Predictor{store: st, embedder: embedder, cfg: cfg, cachedVersion: -1}
}

// Predict embeds the record's parameter snapshot and votes over corpus
// anchors at or above the similarity threshold. Zero matches yield an
// explicit insufficient-data result, never a default guess. A threshold
// of zero or less falls back to the configured default.
func (p *Predictor) Predict(ctx context.Context, rec *model.DonorRecord, threshold float64) (*Evaluation, error) {
	if threshold <= 0 {
		threshold = p.cfg.SimilarityThreshold
	}

	snap := Snapshot(rec)
	vec, err := p.embedder.Embed(ctx, SnapshotText(snap))
	if err != nil {
		return nil, eris.Wrap(err, "anchor: embed snapshot")
	}

	corpus, err := p.loadCorpus(ctx)
	if err != nil {
		return nil, err
	}

	var matches []model.SimilarCase
	for _, a := range corpus {
		if len(a.Embedding) != len(vec) {
			continue
		}
		sim := cosine(vec, a.Embedding)
		if sim < threshold {
			continue
		}
		matches = append(matches, model.SimilarCase{
			AnchorID:   a.ID,
			DonorID:    a.DonorID,
			Outcome:    a.Outcome,
			Similarity: sim,
		})
	}

	if len(matches) == 0 {
		return &Evaluation{
			Prediction: &model.Prediction{
				Insufficient: true,
				Threshold:    threshold,
				Reasoning: fmt.Sprintf("insufficient similar cases: no anchor at or above similarity %.2f (%s)",
					threshold, describe(snap)),
			},
			Snapshot:  snap,
			Embedding: vec,
		}, nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	var scoreAccepted, scoreRejected float64
	for _, m := range matches {
		if m.Outcome == model.OutcomeAccepted {
			scoreAccepted += m.Similarity
		} else {
			scoreRejected += m.Similarity
		}
	}

	predicted := model.OutcomeAccepted
	switch {
	case scoreRejected > scoreAccepted:
		predicted = model.OutcomeRejected
	case scoreRejected == scoreAccepted:
		// Tie: the single most similar anchor decides.
		predicted = matches[0].Outcome
	}

	score := scoreAccepted
	if predicted == model.OutcomeRejected {
		score = scoreRejected
	}
	confidence := score / (scoreAccepted + scoreRejected)

	reported := matches
	if p.cfg.MaxSimilarCases > 0 && len(reported) > p.cfg.MaxSimilarCases {
		reported = reported[:p.cfg.MaxSimilarCases]
	}

	zap.L().Info("outcome predicted",
		zap.String("outcome", string(predicted)),
		zap.Float64("confidence", confidence),
		zap.Int("matches", len(matches)))

	return &Evaluation{
		Prediction: &model.Prediction{
			Outcome:      predicted,
			Confidence:   confidence,
			SimilarCases: reported,
			Threshold:    threshold,
			Reasoning: fmt.Sprintf("%d similar cases at similarity >= %.2f: accepted score %.2f vs rejected score %.2f (%s)",
				len(matches), threshold, scoreAccepted, scoreRejected, describe(snap)),
		},
		Snapshot:  snap,
		Embedding: vec,
	}, nil
}

// RecordPredicted persists a successful prediction as a PREDICTED anchor.
// Skipped when the prediction was insufficient or when a ground-truth
// MANUAL_APPROVAL entry already exists for the donor.
func (p *Predictor) RecordPredicted(ctx context.Context, donorID string, ev *Evaluation) error {
	if ev == nil || ev.Prediction == nil || ev.Prediction.Insufficient {
		return nil
	}

	existing, err := p.store.LatestAnchor(ctx, donorID)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return eris.Wrap(err, "anchor: look up existing decision")
	}
	if existing != nil && existing.OutcomeSource == model.SourceManualApproval {
		return nil
	}

	a := &model.AnchorDecision{
		ID:            uuid.NewString(),
		DonorID:       donorID,
		Outcome:       ev.Prediction.Outcome,
		OutcomeSource: model.SourcePredicted,
		Snapshot:      ev.Snapshot,
		Embedding:     ev.Embedding,
	}
	return p.insert(ctx, a)
}

// RecordManual persists a human decision as a MANUAL_APPROVAL anchor and
// supersedes the donor's prior PREDICTED entry, keeping it for audit.
func (p *Predictor) RecordManual(ctx context.Context, donorID string, rec *model.DonorRecord, outcome model.Outcome) (*model.AnchorDecision, error) {
	snap := Snapshot(rec)
	vec, err := p.embedder.Embed(ctx, SnapshotText(snap))
	if err != nil {
		return nil, eris.Wrap(err, "anchor: embed snapshot")
	}

	prior, err := p.store.LatestAnchor(ctx, donorID)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "anchor: look up prior decision")
	}

	a := &model.AnchorDecision{
		ID:            uuid.NewString(),
		DonorID:       donorID,
		Outcome:       outcome,
		OutcomeSource: model.SourceManualApproval,
		Snapshot:      snap,
		Embedding:     vec,
	}
	if err := p.insert(ctx, a); err != nil {
		return nil, err
	}

	if prior != nil && prior.OutcomeSource == model.SourcePredicted && prior.SupersededBy == "" {
		if err := p.store.SupersedeAnchor(ctx, prior.ID, a.ID); err != nil {
			return nil, eris.Wrap(err, "anchor: supersede predicted decision")
		}
	}

	return a, nil
}

// insert enforces the corpus dimensionality invariant before writing.
func (p *Predictor) insert(ctx context.Context, a *model.AnchorDecision) error {
	if want := p.embedder.Dimensions(); len(a.Embedding) != want {
		return eris.Errorf("anchor: embedding has %d dimensions, corpus requires %d", len(a.Embedding), want)
	}
	if err := p.store.InsertAnchor(ctx, a); err != nil {
		return eris.Wrap(err, "anchor: insert decision")
	}
	return nil
}

// loadCorpus returns the voting corpus, reusing the cache while the store's
// corpus version is unchanged.
func (p *Predictor) loadCorpus(ctx context.Context) ([]model.AnchorDecision, error) {
	version, err := p.store.CorpusVersion(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "anchor: corpus version")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if version == p.cachedVersion {
		return p.cached, nil
	}

	all, err := p.store.ListCorpus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "anchor: list corpus")
	}
	voting := make([]model.AnchorDecision, 0, len(all))
	for _, a := range all {
		if a.OutcomeSource == model.SourceManualApproval {
			voting = append(voting, a)
		}
	}

	p.cachedVersion = version
	p.cached = voting
	return voting, nil
}

// cosine computes cosine similarity, returning 0 for zero-norm vectors.
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
