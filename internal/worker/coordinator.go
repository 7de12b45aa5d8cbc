package worker

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/amruthm-ignitec/mtf-backend/internal/anchor"
	"github.com/amruthm-ignitec/mtf-backend/internal/compliance"
	"github.com/amruthm-ignitec/mtf-backend/internal/config"
	"github.com/amruthm-ignitec/mtf-backend/internal/merge"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
	"github.com/amruthm-ignitec/mtf-backend/internal/store"
)

// DocumentExtractor runs the per-document map phase.
type DocumentExtractor interface {
	Run(ctx context.Context, documentID string) (*model.DocumentExtraction, error)
}

// OutcomePredictor produces and records similarity predictions.
type OutcomePredictor interface {
	Predict(ctx context.Context, rec *model.DonorRecord, threshold float64) (*anchor.Evaluation, error)
	RecordPredicted(ctx context.Context, donorID string, ev *anchor.Evaluation) error
}

// Coordinator drives a bounded pool of workers over the job queue. Each
// worker extracts one document at a time, then checks whether its donor
// became all-terminal and, if so, races for the aggregation lock.
type Coordinator struct {
	store     store.Store
	extractor DocumentExtractor
	engine    *compliance.Engine
	predictor OutcomePredictor
	queue     *Queue
	poolSize  int

	wg sync.WaitGroup
}

// NewCoordinator creates a Coordinator with its own queue.
func NewCoordinator(st store.Store, extractor DocumentExtractor, engine *compliance.Engine, predictor OutcomePredictor, cfg config.WorkerConfig) *Coordinator {
	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}
	return &Coordinator{
		store:     st,
		extractor: extractor,
		engine:    engine,
		predictor: predictor,
		queue:     NewQueue(cfg.QueueSize),
		poolSize:  size,
	}
}

// Enqueue submits a document job. A full queue is reported to the caller.
func (c *Coordinator) Enqueue(documentID string) error {
	return c.queue.Enqueue(Job{DocumentID: documentID})
}

// Start launches the worker pool. Workers run until Stop is called or the
// context is canceled.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.poolSize; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				job, ok := c.queue.Dequeue(ctx)
				if !ok {
					return
				}
				c.process(ctx, job)
			}
		}()
	}
}

// Stop shuts the queue down, dropping queued-not-started jobs, and waits
// for in-flight jobs to finish.
func (c *Coordinator) Stop() {
	c.queue.Close()
	c.wg.Wait()
}

// process runs one document through extraction and then checks its donor
// for aggregation.
func (c *Coordinator) process(ctx context.Context, job Job) {
	log := zap.L().With(zap.String("document_id", job.DocumentID))

	doc, err := c.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		log.Error("load document", zap.Error(err))
		return
	}
	if doc.Status.Terminal() {
		log.Debug("document already terminal, skipping")
		return
	}

	if err := c.store.SetDocumentStatus(ctx, doc.ID, model.DocumentProcessing, ""); err != nil {
		log.Error("mark document processing", zap.Error(err))
		return
	}

	ext, runErr := c.extractor.Run(ctx, doc.ID)
	if runErr != nil {
		log.Warn("extraction failed", zap.Error(runErr))
		if err := c.store.CompleteDocument(ctx, doc.ID, model.DocumentFailed, nil, runErr.Error()); err != nil {
			log.Error("mark document failed", zap.Error(err))
			return
		}
	} else {
		if err := c.store.CompleteDocument(ctx, doc.ID, model.DocumentCompleted, ext, ""); err != nil {
			log.Error("complete document", zap.Error(err))
			return
		}
		log.Info("document extracted",
			zap.Int("chunks", len(ext.Chunks)),
			zap.Int("total_pages", ext.TotalPages),
			zap.Bool("partial", ext.Partial()))
	}

	if err := c.maybeAggregate(ctx, doc.DonorID); err != nil {
		log.Error("aggregation check", zap.Error(err), zap.String("donor_id", doc.DonorID))
	}
}

// maybeAggregate runs the donor's aggregation cycle when all of its
// documents are terminal. The PENDING→IN_PROGRESS compare-and-swap makes
// the cycle at-most-once; losers either reopen a DONE state (new documents
// arrived after an earlier cycle) or flip the follow-up bit so the current
// winner schedules another cycle after its own.
func (c *Coordinator) maybeAggregate(ctx context.Context, donorID string) error {
	for {
		unfinished, err := c.store.CountUnfinishedDocuments(ctx, donorID)
		if err != nil {
			return eris.Wrap(err, "worker: count unfinished documents")
		}
		if unfinished > 0 {
			return nil
		}

		won, err := c.store.CompareAndSwapAggregation(ctx, donorID, model.AggregationPending, model.AggregationInProgress)
		if err != nil {
			return eris.Wrap(err, "worker: acquire aggregation lock")
		}
		if won {
			if err := c.runCycle(ctx, donorID); err != nil {
				// Release the lock so a later completion can retry.
				if _, casErr := c.store.CompareAndSwapAggregation(ctx, donorID, model.AggregationInProgress, model.AggregationPending); casErr != nil {
					zap.L().Error("release aggregation lock", zap.Error(casErr), zap.String("donor_id", donorID))
				}
				return err
			}
			if _, err := c.store.CompareAndSwapAggregation(ctx, donorID, model.AggregationInProgress, model.AggregationDone); err != nil {
				return eris.Wrap(err, "worker: finish aggregation")
			}
			followUp, err := c.store.TakeFollowUp(ctx, donorID)
			if err != nil {
				return eris.Wrap(err, "worker: take follow-up")
			}
			if !followUp {
				return nil
			}
			reopened, err := c.store.CompareAndSwapAggregation(ctx, donorID, model.AggregationDone, model.AggregationPending)
			if err != nil || !reopened {
				return eris.Wrap(err, "worker: reopen for follow-up")
			}
			continue
		}

		// Lost the race. A DONE state means an earlier cycle finished
		// before this document existed: reopen and go again.
		reopened, err := c.store.CompareAndSwapAggregation(ctx, donorID, model.AggregationDone, model.AggregationPending)
		if err != nil {
			return eris.Wrap(err, "worker: reopen aggregation")
		}
		if reopened {
			continue
		}

		// Another worker is mid-cycle; it runs the follow-up after its own.
		if err := c.store.MarkFollowUp(ctx, donorID); err != nil {
			return eris.Wrap(err, "worker: mark follow-up")
		}
		// The winner may have finished before the mark landed; reopen if so,
		// otherwise the bit is safely in the winner's hands.
		reopened, err = c.store.CompareAndSwapAggregation(ctx, donorID, model.AggregationDone, model.AggregationPending)
		if err != nil {
			return eris.Wrap(err, "worker: recheck after follow-up mark")
		}
		if !reopened {
			return nil
		}
	}
}

// runCycle executes merge→compliance→predict for a donor under the
// aggregation lock.
func (c *Coordinator) runCycle(ctx context.Context, donorID string) error {
	log := zap.L().With(zap.String("donor_id", donorID))

	docs, err := c.store.ListDonorDocuments(ctx, donorID)
	if err != nil {
		return eris.Wrap(err, "worker: list donor documents")
	}

	rec := merge.FromDocuments(docs)
	res := c.engine.Evaluate(rec)

	if err := c.store.SaveAggregationResult(ctx, donorID, rec, res.Status, res.Flags); err != nil {
		return eris.Wrap(err, "worker: save aggregation result")
	}
	log.Info("aggregation cycle complete",
		zap.String("status", string(res.Status)),
		zap.Int("documents", len(docs)),
		zap.Int("flags", len(res.Flags)),
		zap.Bool("partial", rec.Partial))

	// Prediction failures degrade the cycle, never fail it: the compliance
	// verdict is already persisted.
	ev, err := c.predictor.Predict(ctx, rec, 0)
	if err != nil {
		log.Warn("outcome prediction failed", zap.Error(err))
		return nil
	}
	if err := c.predictor.RecordPredicted(ctx, donorID, ev); err != nil {
		log.Warn("record predicted outcome", zap.Error(err))
	}
	return nil
}
