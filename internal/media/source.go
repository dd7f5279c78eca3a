// Package media resolves and downloads audio and exposes it as a single-track unit source.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/fsutil"
	"github.com/spherical/verbatim/internal/observability"
	"github.com/spherical/verbatim/internal/retry"
)

// AudioMIMEType is the payload type of every track.
const AudioMIMEType = "audio/mpeg"

// Source implements domain.UnitSource for audio artifacts.
type Source struct {
	fetcher  Fetcher
	audioDir string
	exec     *retry.Executor
	logger   *observability.Logger
}

// NewSource creates an audio source that caches MP3 files in audioDir.
func NewSource(fetcher Fetcher, audioDir string, exec *retry.Executor, logger *observability.Logger) *Source {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Source{fetcher: fetcher, audioDir: audioDir, exec: exec, logger: logger}
}

// AudioPath is where the MP3 of a video is cached.
func (s *Source) AudioPath(videoID string) string {
	return filepath.Join(s.audioDir, videoID+".mp3")
}

// Decompose ensures the audio is on disk and returns its single track.
func (s *Source) Decompose(ctx context.Context, artifact domain.Artifact) (*domain.Decomposition, error) {
	videoID := artifact.Meta[MetaVideoID]
	if videoID == "" {
		return nil, domain.DecodeError(fmt.Sprintf("artifact %s has no media id", artifact.ID), nil)
	}

	path := s.AudioPath(videoID)
	log := s.logger.WithScope("audio")

	if fsutil.Exists(path) {
		log.Info().Str("path", path).Msg("using cached audio")
	} else {
		if err := os.MkdirAll(s.audioDir, 0o755); err != nil {
			return nil, domain.IOError("create audio cache dir", err)
		}

		opLog := log.WithOperation("download")
		done := opLog.Step("audio download")
		err := s.exec.RunLogged(ctx, opLog, func(ctx context.Context) error {
			if err := s.fetcher.DownloadAudio(ctx, artifact.Locator, s.audioDir, videoID); err != nil {
				return err
			}
			if !fsutil.Exists(path) {
				return fmt.Errorf("MP3 not generated at %s", path)
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, domain.DecodeError(fmt.Sprintf("cannot download audio for %s", artifact.ID), err)
		}
		done()
	}

	unit := domain.NewUnit(artifact.ID, domain.UnitTrack, 1, AudioMIMEType, func(ctx context.Context) ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.DecodeError("read cached audio", err)
		}
		return data, nil
	})
	return domain.NewDecomposition([]domain.Unit{unit}, nil), nil
}
