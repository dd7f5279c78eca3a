// Package archive moves the aggregated outputs of earlier runs out of the way
// before a new run writes fresh ones.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/fsutil"
	"github.com/spherical/verbatim/internal/observability"
)

// TimestampLayout names each archive run directory.
const TimestampLayout = "2006-01-02_15-04-05"

// Result describes one archive operation.
type Result struct {
	Dir   string
	Files []string
}

// Archiver moves *.txt files from a source directory into
// <root>/<timestamp>/.
type Archiver struct {
	root   string
	now    func() time.Time
	logger *observability.Logger
}

// New creates an archiver rooted at root.
func New(root string, logger *observability.Logger) *Archiver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Archiver{root: root, now: time.Now, logger: logger}
}

// Archive moves every regular *.txt file directly inside dir. A missing or
// empty dir is not an error and yields a nil result.
func (a *Archiver) Archive(dir string) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.IOError("read "+dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)

	target := filepath.Join(a.root, a.now().Format(TimestampLayout))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, domain.IOError("create archive dir", err)
	}

	log := a.logger.WithScope("archive")
	log.Info().Int("files", len(names)).Msgf("archiving %d existing output(s)", len(names))

	res := &Result{Dir: target}
	for _, name := range names {
		if err := move(filepath.Join(dir, name), filepath.Join(target, name)); err != nil {
			return res, domain.IOError(fmt.Sprintf("archive %s", name), err)
		}
		res.Files = append(res.Files, name)
		log.Debug().Str("file", name).Msg("archived")
	}
	log.Info().Str("dir", target).Msg("archived outputs")
	return res, nil
}

// move renames src to dst, copying across filesystems when rename cannot.
func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := fsutil.WriteAtomic(dst, f, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
