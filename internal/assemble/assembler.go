// Package assemble rebuilds an artifact's final text purely from cached units.
package assemble

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/fsutil"
	"github.com/spherical/verbatim/internal/observability"
)

// PreambleFunc renders optional text written before the first section.
type PreambleFunc func(domain.Artifact) string

// Output describes a written artifact.
type Output struct {
	Path     string
	Sections int
	Bytes    int
}

// Assembler writes <dir>/<OutputName>.txt from cache contents.
type Assembler struct {
	cache    domain.UnitCache
	dir      string
	preamble PreambleFunc
	logger   *observability.Logger
}

// NewAssembler creates an assembler writing into dir.
func NewAssembler(cache domain.UnitCache, dir string, preamble PreambleFunc, logger *observability.Logger) *Assembler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Assembler{cache: cache, dir: dir, preamble: preamble, logger: logger}
}

// OutputPath is where the artifact's text is written.
func (a *Assembler) OutputPath(artifact domain.Artifact) string {
	name := artifact.OutputName
	if name == "" {
		name = artifact.ID
	}
	return filepath.Join(a.dir, name+".txt")
}

// Assemble reads every unit from the cache in ascending order and writes the
// final text atomically. If any unit has no entry nothing is written.
func (a *Assembler) Assemble(ctx context.Context, artifact domain.Artifact, units []domain.Unit) (*Output, error) {
	ordered := SortUnits(units)

	texts := make([]string, len(ordered))
	var missing []string
	for i, u := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, ok, err := a.cache.Get(ctx, u.Key())
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, u.ID)
			continue
		}
		texts[i] = text
	}
	if len(missing) > 0 {
		return nil, domain.IncompleteArtifactError(artifact.ID, missing)
	}

	var b strings.Builder
	if a.preamble != nil {
		b.WriteString(a.preamble(artifact))
	}
	for i, u := range ordered {
		WriteSection(&b, u.Kind, u.Index, texts[i])
	}

	path := a.OutputPath(artifact)
	if err := fsutil.WriteFileAtomic(path, []byte(b.String()), 0o644); err != nil {
		return nil, domain.IOError(fmt.Sprintf("write output %s", path), err)
	}

	a.logger.Info().
		Str("artifact", artifact.ID).
		Str("path", path).
		Int("sections", len(ordered)).
		Msg("output assembled")

	return &Output{Path: path, Sections: len(ordered), Bytes: b.Len()}, nil
}

// Header is the canonical section header, e.g. "=== Page 3 ===".
func Header(kind domain.UnitKind, index int) string {
	return "=== " + kind.Label() + " " + strconv.Itoa(index) + " ==="
}

// WriteSection appends one header, the normalized text and a blank line.
func WriteSection(b *strings.Builder, kind domain.UnitKind, index int, text string) {
	b.WriteString(Header(kind, index))
	b.WriteString("\n")
	b.WriteString(NormalizeSection(kind, index, text))
	b.WriteString("\n\n")
}

// NormalizeSection strips a copy of the section header the model echoed at
// the start of its output, along with surrounding whitespace.
func NormalizeSection(kind domain.UnitKind, index int, text string) string {
	text = strings.TrimLeft(text, " \t\r\n")
	if rest, ok := strings.CutPrefix(text, Header(kind, index)); ok {
		text = strings.TrimLeft(rest, " \t\r\n")
	}
	return strings.TrimRight(text, " \t\r\n")
}

// SortUnits returns units ordered by index without modifying the input.
func SortUnits(units []domain.Unit) []domain.Unit {
	out := make([]domain.Unit, len(units))
	copy(out, units)
	slices.SortStableFunc(out, func(a, b domain.Unit) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}
