package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/observability"
)

const (
	// largeFileBytes is the size above which a warning is logged.
	largeFileBytes = 100 * 1024 * 1024

	minDPI = 36
	maxDPI = 1200
)

// pdfMagic starts every PDF file. Some writers put up to 1024 bytes of junk in
// front of it, which readers tolerate.
var pdfMagic = []byte("%PDF-")

// Validator rejects inputs that cannot be a readable PDF before the renderer
// sees them.
type Validator struct {
	logger *observability.Logger
}

// NewValidator creates a new validator instance
func NewValidator(logger *observability.Logger) *Validator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Validator{logger: logger}
}

// ValidatePDFPath checks that path names a non-empty regular file with a .pdf
// extension whose first kilobyte carries the PDF signature.
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
	case err != nil:
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	case info.IsDir():
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return domain.ValidationError(fmt.Sprintf("file is not a PDF (has extension %q)", ext), nil)
	}
	if info.Size() == 0 {
		return domain.ValidationError(fmt.Sprintf("file is empty: %s", path), nil)
	}
	if info.Size() > largeFileBytes {
		v.logger.Warn().
			Str("path", path).
			Int("size_mb", int(info.Size()/(1024*1024))).
			Msg("PDF file is very large, rendering may take a while")
	}

	return checkSignature(path)
}

func checkSignature(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return domain.ValidationError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	defer f.Close()

	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return domain.ValidationError(fmt.Sprintf("cannot read file: %s", path), err)
	}
	if !bytes.Contains(head[:n], pdfMagic) {
		return domain.ValidationError(fmt.Sprintf("missing PDF signature: %s", path), nil)
	}
	return nil
}

// ValidateDPI checks the rendering density.
func (v *Validator) ValidateDPI(dpi int) error {
	if dpi < minDPI || dpi > maxDPI {
		return domain.ValidationError(fmt.Sprintf("dpi must be between %d and %d, got %d", minDPI, maxDPI, dpi), nil)
	}
	return nil
}
