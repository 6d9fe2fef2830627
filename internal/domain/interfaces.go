package domain

import "context"

// Splitter turns a decoded document into an ordered source of page images.
type Splitter interface {
	// Split opens and validates the whole document. A document that cannot be
	// parsed as its declared type yields a SplitError and no PageSource.
	Split(ctx context.Context, doc DecodedDocument) (PageSource, error)
}

// PageSource renders the pages of an opened document on demand.
type PageSource interface {
	// Count returns the number of pages; zero is valid.
	Count() int

	// Page renders the page with the given 1-based index.
	Page(ctx context.Context, index int) (PageImage, error)

	// Close releases the underlying document
	Close() error
}

// Transcriber turns one page image into Markdown. Implementations may be slow
// and may fail; any retry policy is theirs.
type Transcriber interface {
	Transcribe(ctx context.Context, page PageImage) (string, error)
}
