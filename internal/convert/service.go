// Package convert wraps the pipeline with job bookkeeping and result
// publication. Both the HTTP server and the CLI go through it.
package convert

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spherical/docparser/internal/decode"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/jobs"
	"github.com/spherical/docparser/internal/observability"
	"github.com/spherical/docparser/internal/results"
)

// Runner executes one job. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, job domain.Job) domain.ConversionResult
}

// Outcome is a finished job as seen by callers.
type Outcome struct {
	JobID     string
	RequestID string
	Result    domain.ConversionResult
	OutputURI string
}

// Service runs jobs and records them.
type Service struct {
	runner    Runner
	recorder  jobs.Recorder
	publisher results.Publisher
	logger    *observability.Logger
}

// NewService creates a service. Nil recorder or publisher disable the feature.
func NewService(runner Runner, recorder jobs.Recorder, publisher results.Publisher, logger *observability.Logger) *Service {
	if recorder == nil {
		recorder = jobs.NopRecorder{}
	}
	if publisher == nil {
		publisher = results.NopPublisher{}
	}
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Service{
		runner:    runner,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger.WithOperation("convert"),
	}
}

// Convert runs the job under a freshly minted ID. A caller-supplied id travels
// as job.RequestID only. Bookkeeping and publication failures are logged and
// never change the job's result.
func (s *Service) Convert(ctx context.Context, job domain.Job) Outcome {
	job.ID = uuid.NewString()
	log := s.logger.WithJob(job.ID)
	if job.RequestID != "" {
		log.Debug().Str("caller_id", job.RequestID).Msg("Job accepted")
	}

	name := job.FileName
	if strings.TrimSpace(name) == "" {
		name = decode.DefaultFileName
	}
	// bookkeeping outlives the caller so a canceled job is still recorded
	bg := context.WithoutCancel(ctx)
	if err := s.recorder.Start(bg, jobs.Record{
		ID:          job.ID,
		RequestID:   job.RequestID,
		FileName:    name,
		ContentType: string(domain.ContentTypeFor(name)),
		Status:      jobs.StatusRunning,
		Bytes:       int64(base64.StdEncoding.DecodedLen(len(job.Payload))),
		CreatedAt:   time.Now(),
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record job start")
	}

	result := s.runner.Run(ctx, job)
	out := Outcome{JobID: job.ID, RequestID: job.RequestID, Result: result}

	if result.Success {
		uri, err := s.publisher.Publish(ctx, job.ID, result.Markdown)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to publish result")
		}
		out.OutputURI = uri
	}

	finish := jobs.Outcome{
		Status:    jobs.StatusSucceeded,
		PageCount: result.PageCount,
		OutputURI: out.OutputURI,
	}
	if !result.Success {
		finish.Status = jobs.StatusFailed
		finish.Error = result.Error
	}
	if err := s.recorder.Finish(bg, job.ID, finish); err != nil {
		log.Warn().Err(err).Msg("Failed to record job outcome")
	}

	return out
}

// Lookup returns a recorded job.
func (s *Service) Lookup(ctx context.Context, id string) (*jobs.Record, error) {
	return s.recorder.Get(ctx, id)
}
