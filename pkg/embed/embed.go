// Package embed turns parameter-snapshot text into fixed-length vectors
// for anchor similarity search.
package embed

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rotisserie/eris"

	"github.com/amruthm-ignitec/mtf-backend/internal/resilience"
)

// Embedder produces fixed-dimensionality embeddings. Dimensionality must be
// consistent across the whole anchor corpus.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

type ollamaEmbedder struct {
	cli         *api.Client
	model       string
	dims        int
	callTimeout time.Duration
}

// NewOllama creates an Embedder backed by an Ollama embedding model.
func NewOllama(host, model string, dims int, callTimeout time.Duration) (Embedder, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, eris.Wrapf(err, "embed: parse host %s", host)
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &ollamaEmbedder{
		cli:         api.NewClient(base, http.DefaultClient),
		model:       model,
		dims:        dims,
		callTimeout: callTimeout,
	}, nil
}

func (e *ollamaEmbedder) Dimensions() int { return e.dims }

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	keepAlive := &api.Duration{Duration: 60 * time.Minute}
	resp, err := e.cli.Embeddings(ctx, &api.EmbeddingRequest{
		Model:     e.model,
		Prompt:    text,
		KeepAlive: keepAlive,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, resilience.Transient(eris.Wrap(err, "embed: call timeout"), 0)
		}
		return nil, eris.Wrap(err, "embed: embeddings call")
	}

	vec, err := vector(resp.Embedding, e.dims)
	if err != nil {
		return nil, eris.Wrapf(err, "embed: model %s", e.model)
	}
	return vec, nil
}

// vector converts the service response, rejecting dimensionality drift
// before it can reach the anchor corpus. A silently truncated or padded
// vector would corrupt every similarity score against it.
func vector(raw []float64, dims int) ([]float32, error) {
	if len(raw) != dims {
		return nil, eris.Errorf("embed: got %d-dim vector, want %d", len(raw), dims)
	}
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}
