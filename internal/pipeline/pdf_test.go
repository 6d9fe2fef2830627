package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/pdf"
	"github.com/spherical/docparser/internal/pdf/pdftest"
	"github.com/spherical/docparser/internal/tempstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RenderedPDF(t *testing.T) {
	tests := []struct {
		name        string
		pages       int
		concurrency int
		outputs     map[int]string
		want        string
	}{
		{
			name:        "two pages sequential",
			pages:       2,
			concurrency: 1,
			outputs:     map[int]string{1: "A", 2: "B"},
			want:        "<!-- Page 1 -->\nA\n\n---\n\n<!-- Page 2 -->\nB",
		},
		{
			name:        "two pages concurrent",
			pages:       2,
			concurrency: 3,
			outputs:     map[int]string{1: "A", 2: "B"},
			want:        "<!-- Page 1 -->\nA\n\n---\n\n<!-- Page 2 -->\nB",
		},
		{
			name:        "three pages concurrent",
			pages:       3,
			concurrency: 3,
			outputs:     map[int]string{1: "one", 2: "two", 3: "three"},
			want:        "<!-- Page 1 -->\none\n\n---\n\n<!-- Page 2 -->\ntwo\n\n---\n\n<!-- Page 3 -->\nthree",
		},
		{
			name:        "no pages",
			pages:       0,
			concurrency: 2,
			outputs:     map[int]string{},
			want:        "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			store, err := tempstore.NewManager(tempDir, tempstore.WithFs(fs))
			require.NoError(t, err)

			tr := &scriptedTranscriber{outputs: tt.outputs, errs: map[int]error{}, fs: fs}
			tr.hook = func(_ context.Context, page domain.PageImage) error {
				if page.MIMEType != "image/png" || page.Width != 417 || page.Height != 209 {
					return fmt.Errorf("unexpected render %s %dx%d", page.MIMEType, page.Width, page.Height)
				}
				return nil
			}

			p := New(pdf.NewSplitter(), tr, store, WithConcurrency(tt.concurrency))
			result := p.Run(context.Background(), domain.Job{
				Payload:  base64.StdEncoding.EncodeToString(pdftest.Build(tt.pages)),
				FileName: "report.pdf",
			})

			require.True(t, result.Success, result.Error)
			assert.Equal(t, tt.want, result.Markdown)
			assert.Equal(t, tt.pages, result.PageCount)
			assert.Equal(t, "report.pdf", result.FileName)
			assert.Equal(t, tt.pages, tr.callCount())
			assert.Zero(t, tr.missingPaths)

			stats := store.Stats()
			assert.EqualValues(t, tt.pages+1, stats.Acquired)
			assert.Zero(t, stats.Outstanding)
			entries, err := afero.ReadDir(fs, tempDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}
