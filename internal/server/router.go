// Package server exposes the conversion pipeline over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spherical/docparser/internal/convert"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/jobs"
	"github.com/spherical/docparser/internal/observability"
)

// Converter runs and looks up jobs. *convert.Service satisfies it.
type Converter interface {
	Convert(ctx context.Context, job domain.Job) convert.Outcome
	Lookup(ctx context.Context, id string) (*jobs.Record, error)
}

// Config holds router settings.
type Config struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// Ready reports whether dependencies are usable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, conv Converter, cfg Config) http.Handler {
	if logger == nil {
		logger = observability.NewNop()
	}
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "docparser"})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "not ready", err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	h := NewConvertHandler(logger, conv)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(MaxBodySize(cfg.MaxBodyBytes))
			r.Post("/convert", h.Convert)
			r.Post("/convert/upload", h.Upload)
		})
		r.Get("/jobs/{jobId}", h.GetJob)
	})

	return r
}
