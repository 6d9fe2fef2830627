package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spherical/docparser/internal/cache"
	"github.com/spherical/docparser/internal/config"
	"github.com/spherical/docparser/internal/convert"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/jobs"
	"github.com/spherical/docparser/internal/llm"
	"github.com/spherical/docparser/internal/observability"
	"github.com/spherical/docparser/internal/pdf"
	"github.com/spherical/docparser/internal/pipeline"
	"github.com/spherical/docparser/internal/results"
	"github.com/spherical/docparser/internal/tempstore"
	"github.com/spherical/docparser/internal/vertex"
)

// modelTranscriber is a transcriber that knows its model name.
type modelTranscriber interface {
	domain.Transcriber
	Model() string
}

// app holds the wired components shared by the convert and serve commands.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	store   *tempstore.Manager
	service *convert.Service

	closers []io.Closer
}

// buildApp wires every component from cfg. On error, anything already
// opened is closed.
func buildApp(ctx context.Context, cfg *config.Config, logger *observability.Logger, observer pipeline.Observer) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = tempstore.NewManager(cfg.Pipeline.TempDir)
	if err != nil {
		return nil, err
	}

	transcriber, err := a.newTranscriber(ctx)
	if err != nil {
		return nil, err
	}

	splitter := pdf.NewSplitter(
		pdf.WithDPI(float64(cfg.Pipeline.DPI)),
		pdf.WithStructureValidation(cfg.Pipeline.ValidatePDF),
		pdf.WithLogger(logger),
	)

	p := pipeline.New(splitter, transcriber, a.store,
		pipeline.WithLogger(logger),
		pipeline.WithObserver(observer),
		pipeline.WithConcurrency(cfg.Pipeline.Concurrency),
		pipeline.WithJobTimeout(cfg.Pipeline.JobTimeout),
	)

	recorder, err := a.newRecorder(ctx)
	if err != nil {
		return nil, err
	}

	publisher, err := a.newPublisher(ctx)
	if err != nil {
		return nil, err
	}

	a.service = convert.NewService(p, recorder, publisher, logger)

	logger.Info().
		Str("provider", cfg.Inference.Provider).
		Str("cache", cfg.Cache.Driver).
		Str("jobs", cfg.Jobs.Driver).
		Str("results", cfg.Results.Driver).
		Int("concurrency", cfg.Pipeline.Concurrency).
		Int("dpi", cfg.Pipeline.DPI).
		Msg("Components initialized")

	return a, nil
}

func (a *app) newTranscriber(ctx context.Context) (domain.Transcriber, error) {
	var base modelTranscriber
	switch a.cfg.Inference.Provider {
	case "vertex":
		t, err := vertex.New(ctx, vertex.Config{
			ProjectID: a.cfg.Vertex.ProjectID,
			Region:    a.cfg.Vertex.Region,
			Model:     a.cfg.Vertex.Model,
			Prompt:    a.cfg.Inference.Prompt,
			MaxTokens: a.cfg.Inference.MaxTokens,

			RejectRefusals: a.cfg.Inference.RejectRefusals,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, t)
		base = t
	default:
		retry := llm.DefaultRetryConfig()
		retry.MaxRetries = a.cfg.Inference.MaxRetries
		base = llm.NewClient(llm.Config{
			BaseURL:   a.cfg.Inference.BaseURL,
			APIKey:    a.cfg.Inference.APIKey,
			Model:     a.cfg.Inference.Model,
			Prompt:    a.cfg.Inference.Prompt,
			MaxTokens: a.cfg.Inference.MaxTokens,
			Timeout:   a.cfg.Inference.Timeout,
			Referer:   a.cfg.Inference.Referer,
			Title:     a.cfg.Inference.Title,

			RejectRefusals: a.cfg.Inference.RejectRefusals,
		}, llm.WithRetryConfig(retry), llm.WithLogger(a.logger))
	}

	var c cache.Client
	switch a.cfg.Cache.Driver {
	case "memory":
		c = cache.NewMemoryClient(a.cfg.Cache.MaxEntries)
	case "redis":
		rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			URL:      a.cfg.Cache.Redis.URL,
			Addr:     a.cfg.Cache.Redis.Addr,
			Password: a.cfg.Cache.Redis.Password,
			DB:       a.cfg.Cache.Redis.DB,
			PoolSize: a.cfg.Cache.Redis.PoolSize,
			Prefix:   a.cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		c = rc
	default:
		return base, nil
	}
	a.closers = append(a.closers, c)
	variant := cache.Variant(base.Model(), a.cfg.Inference.Prompt, a.cfg.Inference.MaxTokens)
	return cache.NewTranscriber(base, c, variant, a.cfg.Cache.TTL, a.logger), nil
}

func (a *app) newRecorder(ctx context.Context) (jobs.Recorder, error) {
	var (
		rec jobs.Recorder
		err error
	)
	switch a.cfg.Jobs.Driver {
	case "sqlite", "postgres":
		rec, err = jobs.OpenSQL(ctx, a.cfg.Jobs.Driver, a.cfg.Jobs.DSN)
	case "firestore":
		rec, err = jobs.NewFirestoreRecorder(ctx, a.cfg.Jobs.ProjectID, a.cfg.Jobs.Collection)
	default:
		return jobs.NopRecorder{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open job history: %w", err)
	}
	a.closers = append(a.closers, rec)
	return rec, nil
}

func (a *app) newPublisher(ctx context.Context) (results.Publisher, error) {
	if a.cfg.Results.Driver != "gcs" {
		return results.NopPublisher{}, nil
	}
	pub, err := results.NewGCSPublisher(ctx, a.cfg.Results.Bucket, a.cfg.Results.Prefix, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open results bucket: %w", err)
	}
	a.closers = append(a.closers, pub)
	return pub, nil
}

// Close releases clients in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close component")
		}
	}
	a.closers = nil

	if a.store != nil {
		if st := a.store.Stats(); st.Outstanding > 0 {
			a.logger.Warn().Int64("outstanding", st.Outstanding).Msg("Temporary files still held at shutdown")
		}
	}
}

func newLogger(cfg *config.Config, out io.Writer, level string) *observability.Logger {
	if level == "" {
		level = cfg.Observability.LogLevel
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Observability.LogFormat,
		Output:      out,
		ServiceName: cfg.Observability.ServiceName,
	})
}
