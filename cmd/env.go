package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cardcapture/internal/address"
	"github.com/sells-group/cardcapture/internal/blob"
	"github.com/sells-group/cardcapture/internal/pipeline"
	"github.com/sells-group/cardcapture/internal/review"
	"github.com/sells-group/cardcapture/internal/store"
	"github.com/sells-group/cardcapture/pkg/anthropic"
	"github.com/sells-group/cardcapture/pkg/docai"
	"github.com/sells-group/cardcapture/pkg/geocode"
)

// pipelineEnv holds the initialized store, clients, and pipeline needed by
// the worker/process/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Blobs    blob.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, API clients, and the pipeline. Callers
// should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	blobs, err := blob.NewFSStore(cfg.Blob.Root)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	extractor := docai.NewClient(cfg.Extract.APIKey, cfg.Extract.Timeout(), docai.WithEndpoint(cfg.Extract.BaseURL))
	reviewer := review.NewReviewer(anthropic.NewClient(cfg.Review.APIKey), cfg.Review)
	geoOpts := []geocode.Option{
		geocode.WithRateLimit(cfg.Geocode.RateLimitRPS),
		geocode.WithTimeout(cfg.Geocode.Timeout()),
	}
	enhancer := address.NewEnhancer(geocode.NewClient(cfg.Geocode.GoogleAPIKey, geoOpts...))

	p := pipeline.New(st, blobs, extractor, reviewer, enhancer, cfg.Extract.ProcessorID, cfg.Worker)

	return &pipelineEnv{Store: st, Blobs: blobs, Pipeline: p}, nil
}
