package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spherical/docparser/internal/cache"
	"github.com/spherical/docparser/internal/config"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/jobs"
	"github.com/spherical/docparser/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngPayload(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func modelServer(t *testing.T, reply string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q},"finish_reason":"stop"}]}`, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Inference.BaseURL = baseURL
	cfg.Inference.MaxRetries = 0
	cfg.Pipeline.TempDir = t.TempDir()
	return cfg
}

func TestBuildApp_ConvertsImageEndToEnd(t *testing.T) {
	srv, calls := modelServer(t, "```markdown\n# Receipt\n```")
	cfg := testConfig(t, srv.URL)
	cfg.Jobs.Driver = "sqlite"
	cfg.Jobs.DSN = filepath.Join(t.TempDir(), "jobs.db")

	progress := newProgressObserver(&bytes.Buffer{})
	a, err := buildApp(context.Background(), cfg, observability.NewNop(), progress)
	require.NoError(t, err)
	defer a.Close()

	out := a.service.Convert(context.Background(), domain.Job{Payload: pngPayload(t), FileName: "receipt.png"})
	require.True(t, out.Result.Success, out.Result.Error)
	assert.Equal(t, "# Receipt", out.Result.Markdown)
	assert.Equal(t, 1, out.Result.PageCount)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, progress.done)

	rec, err := a.service.Lookup(context.Background(), out.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSucceeded, rec.Status)
	assert.Equal(t, "receipt.png", rec.FileName)

	assert.Zero(t, a.store.Stats().Outstanding)
}

func TestBuildApp_MemoryCacheSkipsRepeatCalls(t *testing.T) {
	srv, calls := modelServer(t, "cached page")
	cfg := testConfig(t, srv.URL)
	cfg.Cache.Driver = "memory"

	a, err := buildApp(context.Background(), cfg, observability.NewNop(), nil)
	require.NoError(t, err)
	defer a.Close()

	payload := pngPayload(t)
	for i := 0; i < 2; i++ {
		out := a.service.Convert(context.Background(), domain.Job{Payload: payload, FileName: "a.png"})
		require.True(t, out.Result.Success, out.Result.Error)
		assert.Equal(t, "cached page", out.Result.Markdown)
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestBuildApp_FailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a, err := buildApp(context.Background(), testConfig(t, srv.URL), observability.NewNop(), nil)
	require.NoError(t, err)
	defer a.Close()

	out := a.service.Convert(context.Background(), domain.Job{Payload: pngPayload(t), FileName: "a.png"})
	assert.False(t, out.Result.Success)
	assert.Contains(t, out.Result.Error, "status 400")

	_, err = a.service.Lookup(context.Background(), out.JobID)
	assert.True(t, errors.Is(err, jobs.ErrNotFound))
}

func TestBuildApp_BadJobsDSN(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.Jobs.Driver = "postgres"
	cfg.Jobs.DSN = "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"

	_, err := buildApp(context.Background(), cfg, observability.NewNop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open job history")
}

func TestNewTranscriber_VertexRequiresProject(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.Inference.Provider = "vertex"
	cfg.Vertex.ProjectID = ""

	a := &app{cfg: cfg, logger: observability.NewNop()}
	_, err := a.newTranscriber(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestNewTranscriber_WrapsWithCache(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.Cache.Driver = "memory"

	a := &app{cfg: cfg, logger: observability.NewNop()}
	tr, err := a.newTranscriber(context.Background())
	require.NoError(t, err)
	defer a.Close()

	_, ok := tr.(*cache.Transcriber)
	assert.True(t, ok)
	assert.Len(t, a.closers, 1)
}

func TestProgressObserver(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressObserver(&buf)

	p.PageStarted("job", 1, 3)
	p.PageStarted("job", 2, 3)
	p.PageFinished("job", 1, 3, nil)
	p.PageFinished("job", 2, 3, errors.New("boom"))
	p.Finish()

	assert.Equal(t, 1, p.done)
	assert.Equal(t, 1, p.failed)
}

func TestWriteMarkdown(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, writeMarkdown(&stdout, "", "# A"))
	assert.Equal(t, "# A\n", stdout.String())

	path := filepath.Join(t.TempDir(), "out.md")
	require.NoError(t, writeMarkdown(&stdout, path, "# B"))
	assert.FileExists(t, path)
}
