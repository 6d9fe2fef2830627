package pipeline

import (
	"fmt"
	"strings"

	"github.com/spherical/docparser/internal/domain"
)

// PageSeparator sits between consecutive pages of a PDF.
const PageSeparator = "\n\n---\n\n"

// PageMarker is the comment that opens each PDF page in the output.
func PageMarker(index int) string {
	return fmt.Sprintf("<!-- Page %d -->", index)
}

// Assemble joins page transcriptions in the order given. A single image is
// returned verbatim; PDF pages each get a marker. Zero pages yield "".
func Assemble(contentType domain.ContentType, pages []domain.PageResult) string {
	if contentType == domain.ContentTypeImage && len(pages) == 1 {
		return pages[0].Markdown
	}

	parts := make([]string, len(pages))
	for i, page := range pages {
		parts[i] = PageMarker(page.Index) + "\n" + page.Markdown
	}
	return strings.Join(parts, PageSeparator)
}
