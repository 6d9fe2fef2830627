package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/spherical/docparser/internal/domain"
)

// headerWindow is how far into the file the %PDF- marker may appear.
const headerWindow = 1024

func init() {
	// pdfcpu would otherwise create a config directory under $HOME.
	api.DisableConfigDir()
}

// Validator provides structural checks for PDF payloads
type Validator struct {
	conf *model.Configuration
}

// NewValidator creates a validator using pdfcpu's relaxed validation mode.
func NewValidator() *Validator {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Validator{conf: conf}
}

// ValidateHeader checks that the payload looks like a PDF at all.
func (v *Validator) ValidateHeader(data []byte) error {
	if len(data) == 0 {
		return domain.SplitError("document is empty", nil)
	}
	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	if !bytes.Contains(window, []byte("%PDF-")) {
		return domain.SplitError("document is not a PDF (missing %PDF- header)", nil)
	}
	return nil
}

// ValidateStructure runs pdfcpu's cross-reference and object validation.
// The rasterizer repairs many damaged files, so callers treat a failure here
// as a diagnostic unless the rasterizer also rejects the document.
func (v *Validator) ValidateStructure(data []byte) (err error) {
	defer func() {
		// pdfcpu panics on some malformed inputs.
		if r := recover(); r != nil {
			err = domain.SplitError("PDF structure validation failed", fmt.Errorf("%v", r))
		}
	}()
	if err := api.Validate(bytes.NewReader(data), v.conf); err != nil {
		return domain.SplitError("PDF structure validation failed", err)
	}
	return nil
}
