package domain

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// ContentType is the declared kind of a source document.
type ContentType string

const (
	ContentTypePDF   ContentType = "pdf"
	ContentTypeImage ContentType = "image"
)

// ContentTypeFor infers the content type from a file name's extension.
// ".pdf" (any case) is a PDF; everything else, including no extension, is an image.
func ContentTypeFor(fileName string) ContentType {
	if strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return ContentTypePDF
	}
	return ContentTypeImage
}

// Job is one conversion request. It lives for a single pipeline run.
type Job struct {
	ID        string
	RequestID string // caller's correlation id, never used as a key
	Payload   string // base64-encoded document
	FileName  string
}

// DecodedDocument holds the raw bytes of a source document
type DecodedDocument struct {
	FileName    string
	ContentType ContentType
	Data        []byte
	Path        string // scoped backing file, set once storage is acquired
}

// PageImage represents a single rendered page
type PageImage struct {
	Index    int // 1-based, matches source page order
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Path     string // scoped backing file, set by the orchestrator
}

// PageResult is the outcome of transcribing one page.
type PageResult struct {
	Index    int
	Markdown string
}

// ConversionResult is the terminal outcome of a job: either a success carrying
// the assembled Markdown or a failure carrying a single error description.
type ConversionResult struct {
	Success   bool
	Markdown  string
	PageCount int
	FileName  string
	Error     string
}

// Succeeded builds the success variant.
func Succeeded(markdown string, pageCount int, fileName string) ConversionResult {
	return ConversionResult{
		Success:   true,
		Markdown:  markdown,
		PageCount: pageCount,
		FileName:  fileName,
	}
}

// Failed builds the failure variant.
func Failed(reason string) ConversionResult {
	return ConversionResult{Error: reason}
}

type successJSON struct {
	Success   bool   `json:"success"`
	Markdown  string `json:"markdown"`
	PageCount int    `json:"page_count"`
	FileName  string `json:"file_name"`
}

type failureJSON struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MarshalJSON emits exactly one of the two job output shapes.
func (r ConversionResult) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(successJSON{
			Success:   true,
			Markdown:  r.Markdown,
			PageCount: r.PageCount,
			FileName:  r.FileName,
		})
	}
	return json.Marshal(failureJSON{Error: r.Error})
}
