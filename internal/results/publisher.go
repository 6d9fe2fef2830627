// Package results publishes finished Markdown to durable storage.
package results

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/spherical/docparser/internal/observability"
	"google.golang.org/api/googleapi"
)

// Publisher stores a job's Markdown and returns where it went.
type Publisher interface {
	Publish(ctx context.Context, jobID, markdown string) (string, error)
	Close() error
}

// NopPublisher discards results.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, string) (string, error) { return "", nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

type writerFunc func(ctx context.Context, object string) io.WriteCloser

// GCSPublisher writes <prefix><job-id>.md objects to a bucket. Writes are
// create-only so a retried job never overwrites an earlier result.
type GCSPublisher struct {
	client    *storage.Client
	bucket    string
	prefix    string
	newWriter writerFunc
	logger    *observability.Logger
}

// NewGCSPublisher creates a storage client using application default credentials.
func NewGCSPublisher(ctx context.Context, bucket, prefix string, logger *observability.Logger) (*GCSPublisher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("results bucket cannot be empty")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	handle := client.Bucket(bucket)
	p := newGCSPublisher(bucket, prefix, logger, func(ctx context.Context, object string) io.WriteCloser {
		w := handle.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
		w.ContentType = "text/markdown; charset=utf-8"
		return w
	})
	p.client = client
	return p, nil
}

func newGCSPublisher(bucket, prefix string, logger *observability.Logger, fn writerFunc) *GCSPublisher {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &GCSPublisher{bucket: bucket, prefix: prefix, newWriter: fn, logger: logger}
}

// ObjectName returns the object a job's result is written to.
func (p *GCSPublisher) ObjectName(jobID string) string {
	return p.prefix + jobID + ".md"
}

// Publish writes the Markdown and returns its gs:// URI. An object that
// already exists is left untouched and reported as published.
func (p *GCSPublisher) Publish(ctx context.Context, jobID, markdown string) (string, error) {
	object := p.ObjectName(jobID)
	uri := fmt.Sprintf("gs://%s/%s", p.bucket, object)

	writer := p.newWriter(ctx, object)
	if _, err := io.Copy(writer, strings.NewReader(markdown)); err != nil {
		_ = writer.Close()
		if alreadyExists(err) {
			p.logger.Info().Str("object", uri).Msg("Result already exists, skipping")
			return uri, nil
		}
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if alreadyExists(err) {
			p.logger.Info().Str("object", uri).Msg("Result already exists, skipping")
			return uri, nil
		}
		return "", fmt.Errorf("failed to finalize GCS write: %w", err)
	}

	p.logger.Info().Str("object", uri).Int("chars", len(markdown)).Msg("Result published")
	return uri, nil
}

// Close releases the storage client.
func (p *GCSPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
