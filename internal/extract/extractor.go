package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/amruthm-ignitec/mtf-backend/internal/blob"
	"github.com/amruthm-ignitec/mtf-backend/internal/config"
	"github.com/amruthm-ignitec/mtf-backend/internal/cost"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
	"github.com/amruthm-ignitec/mtf-backend/internal/resilience"
	"github.com/amruthm-ignitec/mtf-backend/pkg/llm"
)

// Extractor runs the per-document map phase: normalize pages, route the
// relevant ones, chunk, and issue one structured-extraction request per
// chunk with bounded parallelism.
type Extractor struct {
	normalizer *Normalizer
	router     *Router
	client     llm.Client
	limiter    *rate.Limiter

	model          string
	maxTokens      int64
	maxChunkTokens int
	concurrency    int
	retry          resilience.RetryConfig
	costs          *cost.Tracker
}

// NewExtractor wires an Extractor from config. The rate limiter is shared
// across all of the extractor's chunk calls, so a pool of workers using one
// Extractor stays under the external request budget.
func NewExtractor(blobs blob.Opener, client llm.Client, aiCfg config.AnthropicConfig, exCfg config.ExtractConfig) *Extractor {
	concurrency := exCfg.ChunkConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	rps := exCfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2.0
	}

	retryCfg := resilience.DefaultRetryConfig()
	if exCfg.MaxAttempts > 0 {
		retryCfg.MaxAttempts = exCfg.MaxAttempts
	}
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "chunk extraction")

	return &Extractor{
		normalizer:     NewNormalizer(blobs, client, aiCfg.VisionModel, aiCfg.MaxTokens, exCfg.MinPageChars),
		router:         NewRouter(exCfg.RouterKeywords),
		client:         client,
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		model:          aiCfg.Model,
		maxTokens:      aiCfg.MaxTokens,
		maxChunkTokens: exCfg.MaxChunkTokens,
		concurrency:    concurrency,
		retry:          retryCfg,
		costs:          cost.NewTracker(cost.DefaultRates()),
	}
}

// Run extracts one document. Chunk failures are recorded in the result
// rather than failing the document; only a document-level problem (missing
// blob, no extractable text at all) returns an error.
func (e *Extractor) Run(ctx context.Context, documentID string) (*model.DocumentExtraction, error) {
	pages, unextractable, err := e.normalizer.Normalize(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, eris.Errorf("extract: document %s has no pages", documentID)
	}

	relevant := e.router.Route(pages)
	zap.L().Info("extract: routed pages",
		zap.String("document_id", documentID),
		zap.Int("total_pages", len(pages)),
		zap.Ints("relevant_pages", relevant),
		zap.Ints("unextractable_pages", unextractable),
	)

	chunks := BuildChunks(pages, e.maxChunkTokens)
	if len(chunks) == 0 {
		return nil, eris.Errorf("extract: document %s has no extractable text", documentID)
	}

	results := make([]model.ChunkResult, len(chunks))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	// Routed chunks are submitted first; with the shared rate limiter that
	// puts likely-relevant content ahead of filler in the request budget.
	for _, c := range PrioritizeChunks(chunks, relevant) {
		g.Go(func() error {
			rec, err := e.extractChunk(gCtx, c)
			if err != nil {
				zap.L().Warn("extract: chunk failed",
					zap.String("document_id", documentID),
					zap.Int("chunk", c.Index),
					zap.Ints("pages", c.Pages),
					zap.Error(err),
				)
				results[c.Index] = model.ChunkResult{
					Index:  c.Index,
					Pages:  c.Pages,
					Status: model.ChunkFailed,
					Error:  err.Error(),
				}
				return nil // a failed chunk never cancels siblings
			}
			results[c.Index] = model.ChunkResult{
				Index:  c.Index,
				Pages:  c.Pages,
				Status: model.ChunkCompleted,
				Record: rec,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "extract: document %s", documentID)
	}

	in, out, usd := e.costs.Totals()
	zap.L().Info("extract: document done",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
		zap.Int64("total_input_tokens", in),
		zap.Int64("total_output_tokens", out),
		zap.Float64("est_cost_usd", usd),
	)

	return &model.DocumentExtraction{
		Chunks:             results,
		UnextractablePages: unextractable,
		RelevantPages:      relevant,
		TotalPages:         len(pages),
	}, nil
}

// extractChunk issues one structured-extraction request, retrying
// transient failures with backoff.
func (e *Extractor) extractChunk(ctx context.Context, c Chunk) (*model.DonorRecord, error) {
	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*llm.Response, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return e.client.Complete(ctx, llm.Request{
			Model:     e.model,
			System:    fullSystemPrompt,
			Prompt:    chunkPrompt(c),
			MaxTokens: e.maxTokens,
		})
	})
	if err != nil {
		return nil, err
	}
	e.costs.Add(e.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	return ParseChunkRecord(resp.Text)
}
