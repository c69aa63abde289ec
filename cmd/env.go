package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enrich/internal/cost"
	"github.com/sells-group/venue-enrich/internal/detect"
	"github.com/sells-group/venue-enrich/internal/extract"
	"github.com/sells-group/venue-enrich/internal/llm"
	"github.com/sells-group/venue-enrich/internal/pipeline"
	"github.com/sells-group/venue-enrich/internal/scrape"
	"github.com/sells-group/venue-enrich/internal/store"
	anthropicpkg "github.com/sells-group/venue-enrich/pkg/anthropic"
	"github.com/sells-group/venue-enrich/pkg/eventbrite"
	"github.com/sells-group/venue-enrich/pkg/places"
	"github.com/sells-group/venue-enrich/pkg/ticketmaster"
	"github.com/sells-group/venue-enrich/pkg/wikidata"
)

// runtimeEnv holds the initialized store and batch runner shared by the
// run/serve commands. Callers should defer env.Close().
type runtimeEnv struct {
	Store  store.Store
	Runner *pipeline.Runner
	Usage  *cost.Tracker
}

func (e *runtimeEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the warehouse backend named by the configured driver.
func initStore(ctx context.Context) (store.Store, error) {
	colTTL := time.Duration(cfg.Store.ColumnCacheTTLSecs) * time.Second
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL, cfg.Store.Table, colTTL)
	default:
		return store.NewPostgres(ctx, cfg.Store)
	}
}

// initRuntime wires the store, the lookup clients, and the pipeline. Every
// lookup source is optional: a disabled flag or an absent credential leaves
// its slot nil and the pipeline simply collects nothing from it.
func initRuntime(ctx context.Context) (*runtimeEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	sigs, err := detect.LoadSignatures(cfg.Detect.SignaturesPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load vendor signatures")
	}

	deps := pipeline.Deps{
		Fetcher:  scrape.NewFetcher(cfg.Scrape),
		Detector: detect.NewDetector(sigs),
		Price:    extract.NewPriceExtractor(cfg.Extract),
		Capacity: extract.NewCapacityExtractor(cfg.Extract),
		Revenue:  cfg.Revenue,
	}

	if cfg.Ticketmaster.Enabled && cfg.Ticketmaster.Key != "" {
		deps.Ticketmaster = ticketmaster.NewClient(cfg.Ticketmaster.Key,
			ticketmaster.WithBaseURL(cfg.Ticketmaster.BaseURL))
	} else {
		zap.L().Debug("ticketmaster lookup disabled")
	}

	if cfg.Eventbrite.Enabled && cfg.Eventbrite.Token != "" {
		deps.Eventbrite = eventbrite.NewClient(cfg.Eventbrite.Token,
			eventbrite.WithBaseURL(cfg.Eventbrite.BaseURL))
	} else {
		zap.L().Debug("eventbrite lookup disabled")
	}

	if cfg.Places.Enabled && cfg.Places.Key != "" {
		deps.Places = places.NewClient(cfg.Places.Key,
			places.WithBaseURL(cfg.Places.BaseURL))
	} else {
		zap.L().Debug("google places lookup disabled")
	}

	if cfg.Wikidata.Enabled {
		deps.Wikidata = wikidata.NewClient(wikidata.WithEndpoint(cfg.Wikidata.Endpoint))
	} else {
		zap.L().Debug("wikidata lookup disabled")
	}

	usage := cost.NewTracker(cost.DefaultRates())
	if cfg.Anthropic.Key != "" {
		deps.Fallback = llm.NewFallback(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic,
			llm.WithTracker(usage))
	} else {
		zap.L().Warn("ENRICH_ANTHROPIC_KEY not set, LLM fallback disabled")
	}

	enricher := pipeline.NewEnricher(deps)
	runner := pipeline.NewRunner(st, enricher, cfg.Batch, cfg.Revenue, cfg.Anthropic.StopOnQuota)

	return &runtimeEnv{Store: st, Runner: runner, Usage: usage}, nil
}
