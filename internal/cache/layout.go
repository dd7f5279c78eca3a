// Package cache stores recognized unit text. An entry's presence is the only
// evidence that a unit succeeded, so entries are written once and never empty.
package cache

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spherical/verbatim/internal/domain"
)

// Layout centralizes the on-disk and key-value naming of cache entries.
type Layout struct {
	Root string
}

// ArtifactDir is the directory holding every entry of one artifact.
func (l Layout) ArtifactDir(artifactID string) string {
	return filepath.Join(l.Root, artifactID)
}

// Path returns <root>/<artifact>/<kind>_<unit>.txt.
func (l Layout) Path(key domain.UnitKey) string {
	return filepath.Join(l.ArtifactDir(key.ArtifactID), fmt.Sprintf("%s_%s.txt", key.Kind, key.UnitID))
}

// RedisKey returns <prefix><artifact>:<kind>:<unit>.
func RedisKey(prefix string, key domain.UnitKey) string {
	return fmt.Sprintf("%s%s:%s:%s", prefix, key.ArtifactID, key.Kind, key.UnitID)
}

// normalize trims text and rejects what would be an empty entry.
func normalize(key domain.UnitKey, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", domain.EmptyWriteError(key)
	}
	return trimmed, nil
}

func validateKey(key domain.UnitKey) error {
	if key.ArtifactID == "" || key.Kind == "" || key.UnitID == "" {
		return domain.ValidationError(fmt.Sprintf("incomplete cache key %q", key.String()), nil)
	}
	if strings.ContainsAny(key.ArtifactID, `/\`) || key.ArtifactID == "." || key.ArtifactID == ".." {
		return domain.ValidationError(fmt.Sprintf("artifact id %q is not a valid path segment", key.ArtifactID), nil)
	}
	return nil
}
