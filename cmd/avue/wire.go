package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/signalsfoundry/avue/core"
	"github.com/signalsfoundry/avue/internal/config"
	"github.com/signalsfoundry/avue/internal/elevation"
	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/observability"
	"github.com/signalsfoundry/avue/internal/search"
	"github.com/signalsfoundry/avue/internal/supports"
	"github.com/signalsfoundry/avue/kb"
	"github.com/signalsfoundry/avue/timectrl"
)

// app holds the components shared by every command.
type app struct {
	cfg   config.Config
	log   logging.Logger
	board *kb.KnowledgeBase
	orch  *search.Orchestrator
}

func newLogger(cfg config.LogConfig) logging.Logger {
	return logging.New(logging.Config{Level: cfg.Level, Format: cfg.Format})
}

// newApp wires the support and elevation sources into an orchestrator.
// metrics may be nil.
func newApp(ctx context.Context, cfg config.Config, log logging.Logger, metrics search.MetricsRecorder) (*app, error) {
	src, err := newSupportSource(ctx, cfg.Supports, log)
	if err != nil {
		return nil, err
	}

	elev := elevation.NewClient(cfg.Elevation.URL,
		elevation.WithHTTPClient(&http.Client{Timeout: cfg.Elevation.Timeout}),
		elevation.WithMaxRetries(cfg.Elevation.MaxRetries),
		elevation.WithPacer(timectrl.NewPacer(cfg.Elevation.MinInterval, nil)),
		elevation.WithLogger(log),
	)

	board := kb.NewKnowledgeBase()
	orch := search.NewOrchestrator(src, elev, board,
		search.WithLogger(log),
		search.WithMetricsRecorder(metrics),
		search.WithMaxCandidates(cfg.Search.MaxCandidates),
		search.WithSamplingPolicy(core.SamplingPolicy{
			MetresPerSample: cfg.Elevation.MetresPerSample,
			MaxSamples:      cfg.Elevation.MaxSamples,
		}),
		search.WithSearchTimeout(cfg.Search.Timeout),
	)
	return &app{cfg: cfg, log: log, board: board, orch: orch}, nil
}

func newSupportSource(ctx context.Context, cfg config.SupportsConfig, log logging.Logger) (supports.Source, error) {
	if cfg.CatalogFile != "" {
		cat, err := supports.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "loaded support catalog",
			logging.String("path", cfg.CatalogFile),
			logging.Int("count", cat.Len()),
		)
		return cat, nil
	}

	backend, err := supports.NewBackend(cfg.BackendURL,
		supports.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		supports.WithMaxRetries(cfg.MaxRetries),
		supports.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("supports backend: %w", err)
	}
	log.Info(ctx, "using supports backend", logging.String("url", cfg.BackendURL))
	return backend, nil
}

// searchMetrics registers the search collector on the default registry.
// It returns nil when registration fails.
func searchMetrics(ctx context.Context, log logging.Logger) search.MetricsRecorder {
	c, err := observability.NewSearchCollector(nil)
	if err != nil {
		log.Warn(ctx, "search metrics disabled", logging.Err(err))
		return nil
	}
	return c
}
