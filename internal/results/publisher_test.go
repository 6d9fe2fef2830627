package results

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type fakeWriter struct {
	buf      bytes.Buffer
	writeErr error
	closeErr error
	closed   bool
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(p)
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func publisherWith(w *fakeWriter, objects *[]string) *GCSPublisher {
	return newGCSPublisher("bucket", "markdown/", nil, func(_ context.Context, object string) io.WriteCloser {
		*objects = append(*objects, object)
		return w
	})
}

func TestGCSPublisher_Publish(t *testing.T) {
	var objects []string
	w := &fakeWriter{}
	p := publisherWith(w, &objects)

	uri, err := p.Publish(context.Background(), "job-1", "# Title")
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/markdown/job-1.md", uri)
	assert.Equal(t, []string{"markdown/job-1.md"}, objects)
	assert.Equal(t, "# Title", w.buf.String())
	assert.True(t, w.closed)
}

func TestGCSPublisher_AlreadyExists(t *testing.T) {
	precondition := &googleapi.Error{Code: http.StatusPreconditionFailed}

	tests := []struct {
		name string
		w    *fakeWriter
	}{
		{name: "on close", w: &fakeWriter{closeErr: precondition}},
		{name: "on write", w: &fakeWriter{writeErr: fmt.Errorf("upload: %w", precondition)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var objects []string
			uri, err := publisherWith(tt.w, &objects).Publish(context.Background(), "job-2", "x")
			require.NoError(t, err)
			assert.Equal(t, "gs://bucket/markdown/job-2.md", uri)
		})
	}
}

func TestGCSPublisher_Failure(t *testing.T) {
	var objects []string
	w := &fakeWriter{closeErr: errors.New("permission denied")}

	_, err := publisherWith(w, &objects).Publish(context.Background(), "job-3", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestNopPublisher(t *testing.T) {
	uri, err := NopPublisher{}.Publish(context.Background(), "id", "md")
	assert.NoError(t, err)
	assert.Empty(t, uri)
}
