// Package pdf decomposes PDF documents into lazily rendered page units.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/draw"

	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/observability"
)

// DefaultDPI is the rendering density used when none is configured.
const DefaultDPI = 300

// Options configures page rendering.
type Options struct {
	DPI     int
	MaxEdge int // longest side in pixels after rendering, 0 keeps the native size
}

// Source implements domain.UnitSource for PDF files using go-fitz.
type Source struct {
	opts      Options
	validator *Validator
	logger    *observability.Logger
}

// NewSource creates a PDF unit source.
func NewSource(opts Options, logger *observability.Logger) *Source {
	if opts.DPI == 0 {
		opts.DPI = DefaultDPI
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Source{
		opts:      opts,
		validator: NewValidator(logger),
		logger:    logger,
	}
}

// ArtifactFromPath builds the document artifact for a local PDF.
// The id is the file name without its extension.
func ArtifactFromPath(path string) domain.Artifact {
	base := filepath.Base(path)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	return domain.Artifact{
		ID:         id,
		Kind:       domain.ArtifactDocument,
		Locator:    path,
		OutputName: id,
		Title:      id,
	}
}

// Decompose opens the document and returns one unit per page. Pages are
// rendered only when their payload is requested; the document stays open
// until the decomposition is closed.
func (s *Source) Decompose(ctx context.Context, artifact domain.Artifact) (*domain.Decomposition, error) {
	if err := s.validator.ValidatePDFPath(artifact.Locator); err != nil {
		return nil, domain.DecodeError(fmt.Sprintf("invalid document %s", artifact.ID), err)
	}
	if err := s.validator.ValidateDPI(s.opts.DPI); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := fitz.New(artifact.Locator)
	if err != nil {
		return nil, domain.DecodeError(fmt.Sprintf("failed to open PDF %s", artifact.ID), err)
	}

	pageCount := doc.NumPage()
	if pageCount <= 0 {
		doc.Close()
		return nil, domain.DecodeError(fmt.Sprintf("PDF %s has no pages", artifact.ID), nil)
	}

	s.logger.Info().
		Str("artifact", artifact.ID).
		Int("pages", pageCount).
		Int("dpi", s.opts.DPI).
		Msg("document opened")

	r := &renderer{doc: doc, opts: s.opts}
	units := make([]domain.Unit, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		page := i
		units = append(units, domain.NewUnit(artifact.ID, domain.UnitPage, page, "image/png",
			func(ctx context.Context) ([]byte, error) {
				return r.render(ctx, page)
			}))
	}

	return domain.NewDecomposition(units, r.close), nil
}

// renderer serializes access to one open document.
type renderer struct {
	mu     sync.Mutex
	doc    *fitz.Document
	opts   Options
	closed bool
}

func (r *renderer) render(ctx context.Context, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, domain.DecodeError(fmt.Sprintf("document closed before page %d was rendered", page), nil)
	}
	img, err := r.doc.ImageDPI(page-1, float64(r.opts.DPI))
	r.mu.Unlock()
	if err != nil {
		return nil, domain.DecodeError(fmt.Sprintf("failed to render page %d", page), err)
	}

	return encodePNG(downscale(img, r.opts.MaxEdge))
}

func (r *renderer) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.doc.Close()
}

// downscale shrinks img so its longest side is at most maxEdge.
func downscale(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = maxEdge
		nh = max(1, h*maxEdge/w)
	} else {
		nh = maxEdge
		nw = max(1, w*maxEdge/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, domain.DecodeError("failed to encode page as PNG", err)
	}
	return buf.Bytes(), nil
}
