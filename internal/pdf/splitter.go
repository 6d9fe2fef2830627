// Package pdf splits source documents into ordered page images.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/observability"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultDPI is the rasterization resolution for PDF pages.
const DefaultDPI = 150

// Splitter implements domain.Splitter using go-fitz (MuPDF) for PDFs.
type Splitter struct {
	dpi       float64
	validator *Validator
	validate  bool
	logger    *observability.Logger
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithDPI overrides the rasterization resolution.
func WithDPI(dpi float64) Option {
	return func(s *Splitter) {
		if dpi > 0 {
			s.dpi = dpi
		}
	}
}

// WithStructureValidation toggles the pdfcpu structural check.
func WithStructureValidation(enabled bool) Option {
	return func(s *Splitter) { s.validate = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(s *Splitter) { s.logger = logger }
}

// NewSplitter creates a new splitter
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		dpi:       DefaultDPI,
		validator: NewValidator(),
		validate:  true,
		logger:    observability.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split opens the document and returns its pages. Images become a single page
// with their bytes untouched; PDFs are opened in full before any page is
// rendered so a corrupt file fails here rather than halfway through a job.
func (s *Splitter) Split(ctx context.Context, doc domain.DecodedDocument) (domain.PageSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.CanceledError("split canceled", err)
	}

	switch doc.ContentType {
	case domain.ContentTypePDF:
		return s.openPDF(doc)
	case domain.ContentTypeImage:
		return openImage(doc)
	default:
		return nil, domain.SplitError(fmt.Sprintf("unsupported content type %q", doc.ContentType), nil)
	}
}

func (s *Splitter) openPDF(doc domain.DecodedDocument) (domain.PageSource, error) {
	if err := s.validator.ValidateHeader(doc.Data); err != nil {
		return nil, err
	}

	var structErr error
	if s.validate {
		structErr = s.validator.ValidateStructure(doc.Data)
	}

	fd, err := fitz.NewFromMemory(doc.Data)
	if err != nil {
		if structErr != nil {
			return nil, domain.SplitError("failed to open PDF", fmt.Errorf("%w (%s)", err, domain.Reason(structErr)))
		}
		return nil, domain.SplitError("failed to open PDF", err)
	}
	if structErr != nil {
		s.logger.Warn().
			Str("file_name", doc.FileName).
			Str("validation", domain.Reason(structErr)).
			Msg("PDF failed structural validation but is renderable; continuing")
	}

	count := fd.NumPage()
	if count < 0 {
		fd.Close()
		return nil, domain.SplitError("failed to count PDF pages", nil)
	}

	s.logger.Debug().
		Str("file_name", doc.FileName).
		Int("page_count", count).
		Msg("PDF opened")

	return &pdfSource{doc: fd, count: count, dpi: s.dpi}, nil
}

// pdfSource renders PDF pages to PNG on demand.
type pdfSource struct {
	mu     sync.Mutex
	doc    *fitz.Document
	count  int
	dpi    float64
	closed bool
}

func (p *pdfSource) Count() int {
	return p.count
}

func (p *pdfSource) Page(ctx context.Context, index int) (domain.PageImage, error) {
	if index < 1 || index > p.count {
		return domain.PageImage{}, domain.SplitError(fmt.Sprintf("page %d out of range 1..%d", index, p.count), nil)
	}
	if err := ctx.Err(); err != nil {
		return domain.PageImage{}, domain.CanceledError(fmt.Sprintf("render of page %d canceled", index), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.PageImage{}, domain.SplitError("document already closed", nil)
	}

	data, err := p.doc.ImagePNG(index-1, p.dpi)
	if err != nil {
		return domain.PageImage{}, domain.SplitError(fmt.Sprintf("failed to render page %d", index), err)
	}

	page := domain.PageImage{
		Index:    index,
		Data:     data,
		MIMEType: "image/png",
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		page.Width = cfg.Width
		page.Height = cfg.Height
	}
	return page, nil
}

func (p *pdfSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.doc.Close()
}

// imageSource is a one-page source over an already encoded raster image.
type imageSource struct {
	page domain.PageImage
}

func openImage(doc domain.DecodedDocument) (domain.PageSource, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(doc.Data))
	if err != nil {
		return nil, domain.SplitError("unsupported or corrupt image", err)
	}
	return &imageSource{page: domain.PageImage{
		Index:    1,
		Data:     doc.Data,
		MIMEType: "image/" + format,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}}, nil
}

func (s *imageSource) Count() int {
	return 1
}

func (s *imageSource) Page(ctx context.Context, index int) (domain.PageImage, error) {
	if index != 1 {
		return domain.PageImage{}, domain.SplitError(fmt.Sprintf("page %d out of range 1..1", index), nil)
	}
	if err := ctx.Err(); err != nil {
		return domain.PageImage{}, domain.CanceledError("render of page 1 canceled", err)
	}
	return s.page, nil
}

func (s *imageSource) Close() error {
	return nil
}
