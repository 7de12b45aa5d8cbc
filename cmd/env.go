package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/amruthm-ignitec/mtf-backend/internal/anchor"
	"github.com/amruthm-ignitec/mtf-backend/internal/audit"
	"github.com/amruthm-ignitec/mtf-backend/internal/blob"
	"github.com/amruthm-ignitec/mtf-backend/internal/compliance"
	"github.com/amruthm-ignitec/mtf-backend/internal/extract"
	"github.com/amruthm-ignitec/mtf-backend/internal/store"
	"github.com/amruthm-ignitec/mtf-backend/internal/worker"
	"github.com/amruthm-ignitec/mtf-backend/pkg/embed"
	"github.com/amruthm-ignitec/mtf-backend/pkg/llm"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEmbedder() (embed.Embedder, error) {
	return embed.NewOllama(
		cfg.Embedding.Host,
		cfg.Embedding.Model,
		cfg.Embedding.Dimensions,
		time.Duration(cfg.Embedding.CallTimeoutSec)*time.Second,
	)
}

func initPredictor(st store.Store) (*anchor.Predictor, error) {
	embedder, err := initEmbedder()
	if err != nil {
		return nil, eris.Wrap(err, "init embedder")
	}
	return anchor.NewPredictor(st, embedder, cfg.Predict), nil
}

// env bundles the fully wired pipeline for commands that run it.
type env struct {
	store       store.Store
	blobs       *blob.FS
	service     *audit.Service
	coordinator *worker.Coordinator
}

func initEnv(ctx context.Context) (*env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	blobs := blob.NewFS(cfg.Blob.Dir)
	client := llm.NewClient(cfg.Anthropic.Key, time.Duration(cfg.Anthropic.CallTimeoutSec)*time.Second)
	extractor := extract.NewExtractor(blobs, client, cfg.Anthropic, cfg.Extract)
	engine := compliance.NewEngine(cfg.Compliance)

	predictor, err := initPredictor(st)
	if err != nil {
		st.Close()
		return nil, err
	}

	coord := worker.NewCoordinator(st, extractor, engine, predictor, cfg.Worker)
	svc := audit.NewService(st, engine, predictor, coord)

	return &env{
		store:       st,
		blobs:       blobs,
		service:     svc,
		coordinator: coord,
	}, nil
}

func (e *env) close() {
	e.store.Close()
}
