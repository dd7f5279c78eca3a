package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/fsutil"
)

// FileStore keeps one text file per unit under the output root.
type FileStore struct {
	layout Layout
}

// NewFileStore creates a file-backed cache rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.IOError("create cache root", err)
	}
	return &FileStore{layout: Layout{Root: dir}}, nil
}

// Layout returns the store's naming scheme.
func (s *FileStore) Layout() Layout {
	return s.layout
}

// Get implements domain.UnitCache. A zero-length file counts as absent.
func (s *FileStore) Get(ctx context.Context, key domain.UnitKey) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(s.layout.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.IOError("read cache entry "+key.String(), err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}

// Put implements domain.UnitCache. The entry is on stable storage when Put returns.
func (s *FileStore) Put(ctx context.Context, key domain.UnitKey, text string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	trimmed, err := normalize(key, text)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.layout.Path(key)
	if _, ok, err := s.Get(ctx, key); err != nil {
		return err
	} else if ok {
		return domain.CacheConflictError(key)
	}

	if err := fsutil.WriteFileAtomic(path, []byte(trimmed), 0o644); err != nil {
		return domain.IOError("write cache entry "+key.String(), err)
	}
	return nil
}

// Close implements domain.UnitCache.
func (s *FileStore) Close() error {
	return nil
}

var _ domain.UnitCache = (*FileStore)(nil)
