// Package pipeline runs a conversion job end to end: decode, split,
// transcribe every page and assemble the Markdown.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spherical/docparser/internal/decode"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/observability"
	"github.com/spherical/docparser/internal/tempstore"
	"golang.org/x/sync/errgroup"
)

// Pipeline orchestrates the conversion of one job at a time per Run call.
// It is safe for concurrent use by multiple jobs.
type Pipeline struct {
	splitter    domain.Splitter
	transcriber domain.Transcriber
	store       *tempstore.Manager
	logger      *observability.Logger
	observer    Observer
	concurrency int
	jobTimeout  time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithConcurrency bounds how many pages are in flight at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithJobTimeout bounds the total run time of a job. Zero means no limit.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.jobTimeout = d }
}

// New creates a pipeline. The transcriber is shared across jobs.
func New(splitter domain.Splitter, transcriber domain.Transcriber, store *tempstore.Manager, opts ...Option) *Pipeline {
	p := &Pipeline{
		splitter:    splitter,
		transcriber: transcriber,
		store:       store,
		logger:      observability.NewNop(),
		observer:    nopObserver{},
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithOperation("pipeline")
	return p
}

// Run converts a job. It never returns an error: every failure becomes a
// failed ConversionResult, and all temporary storage is released first.
func (p *Pipeline) Run(ctx context.Context, job domain.Job) domain.ConversionResult {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	log := p.logger.WithJob(job.ID)

	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := p.run(ctx, job, log)
	if err != nil {
		log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Job failed")
		return domain.Failed(domain.Reason(err))
	}

	log.Info().
		Str("file_name", out.FileName).
		Int("page_count", out.PageCount).
		Int("chars", len(out.Markdown)).
		Dur("duration", time.Since(start)).
		Msg("Job completed")
	return out
}

func (p *Pipeline) run(ctx context.Context, job domain.Job, log *observability.Logger) (domain.ConversionResult, error) {
	doc, err := decode.Decode(job.Payload, job.FileName)
	if err != nil {
		return domain.ConversionResult{}, err
	}

	log.Info().
		Str("file_name", doc.FileName).
		Str("content_type", string(doc.ContentType)).
		Int("bytes", len(doc.Data)).
		Msg("Job started")

	res, err := p.store.Acquire(doc.Data, decode.Suffix(doc.FileName))
	if err != nil {
		return domain.ConversionResult{}, err
	}
	defer p.release(res, log)
	doc.Path = res.Path()

	src, err := p.splitter.Split(ctx, doc)
	if err != nil {
		return domain.ConversionResult{}, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close document")
		}
	}()

	total := src.Count()
	log.Info().Int("page_count", total).Msg("Document split")

	pages, err := p.transcribePages(ctx, job.ID, src, log)
	if err != nil {
		return domain.ConversionResult{}, err
	}

	return domain.Succeeded(Assemble(doc.ContentType, pages), total, doc.FileName), nil
}

// transcribePages renders, stores and transcribes pages in index order with
// at most p.concurrency in flight. The first failure cancels the rest;
// pages not yet started are never rendered or stored.
func (p *Pipeline) transcribePages(ctx context.Context, jobID string, src domain.PageSource, log *observability.Logger) ([]domain.PageResult, error) {
	total := src.Count()
	results := make([]domain.PageResult, total)
	if total == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := 1; i <= total; i++ {
		if gctx.Err() != nil {
			break
		}
		index := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			md, err := p.transcribePage(gctx, jobID, src, index, total, log)
			if err != nil {
				return err
			}
			results[index-1] = domain.PageResult{Index: index, Markdown: md}
			return nil
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, domain.CanceledError("job timed out", ctxErr)
		}
		return nil, domain.CanceledError("job canceled", ctxErr)
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) transcribePage(ctx context.Context, jobID string, src domain.PageSource, index, total int, log *observability.Logger) (string, error) {
	page, err := src.Page(ctx, index)
	if err != nil {
		return "", err
	}

	res, err := p.store.Acquire(page.Data, suffixFor(page.MIMEType))
	if err != nil {
		return "", err
	}
	defer p.release(res, log)
	page.Path = res.Path()

	p.observer.PageStarted(jobID, index, total)
	start := time.Now()

	md, err := p.transcriber.Transcribe(ctx, page)
	p.observer.PageFinished(jobID, index, total, err)
	if err != nil {
		log.Error().
			Err(err).
			Int("page", index).
			Int("total", total).
			Dur("duration", time.Since(start)).
			Msg("Page failed")
		return "", domain.InferenceError(fmt.Sprintf("page %d", index), err)
	}

	log.Debug().
		Int("page", index).
		Int("total", total).
		Int("chars", len(md)).
		Dur("duration", time.Since(start)).
		Msg("Page transcribed")
	return md, nil
}

func (p *Pipeline) release(res *tempstore.Resource, log *observability.Logger) {
	if err := res.Release(); err != nil {
		log.Warn().Err(err).Str("path", res.Path()).Msg("Failed to release temp file")
	}
}

func suffixFor(mimeType string) string {
	sub, ok := strings.CutPrefix(mimeType, "image/")
	if !ok || sub == "" {
		return ""
	}
	if sub == "jpeg" {
		return ".jpg"
	}
	return "." + sub
}
