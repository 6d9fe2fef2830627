package pipeline

import (
	"strings"
	"testing"

	"github.com/spherical/docparser/internal/domain"
	"github.com/stretchr/testify/assert"
)

func pages(md ...string) []domain.PageResult {
	out := make([]domain.PageResult, len(md))
	for i, m := range md {
		out[i] = domain.PageResult{Index: i + 1, Markdown: m}
	}
	return out
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name        string
		contentType domain.ContentType
		pages       []domain.PageResult
		want        string
	}{
		{
			name:        "two pdf pages",
			contentType: domain.ContentTypePDF,
			pages:       pages("A", "B"),
			want:        "<!-- Page 1 -->\nA\n\n---\n\n<!-- Page 2 -->\nB",
		},
		{
			name:        "single pdf page keeps marker",
			contentType: domain.ContentTypePDF,
			pages:       pages("only"),
			want:        "<!-- Page 1 -->\nonly",
		},
		{
			name:        "empty transcription",
			contentType: domain.ContentTypePDF,
			pages:       pages("", "B"),
			want:        "<!-- Page 1 -->\n\n\n---\n\n<!-- Page 2 -->\nB",
		},
		{
			name:        "zero pages",
			contentType: domain.ContentTypePDF,
			pages:       nil,
			want:        "",
		},
		{
			name:        "image verbatim",
			contentType: domain.ContentTypeImage,
			pages:       pages("  raw\n"),
			want:        "  raw\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Assemble(tt.contentType, tt.pages))
		})
	}
}

func TestAssemble_MarkersIncreasing(t *testing.T) {
	md := Assemble(domain.ContentTypePDF, pages("a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"))

	last := -1
	for i := 1; i <= 11; i++ {
		pos := strings.Index(md, PageMarker(i)+"\n")
		assert.Greater(t, pos, last, "marker %d out of order", i)
		last = pos
	}
	assert.Equal(t, 10, strings.Count(md, PageSeparator))
}
