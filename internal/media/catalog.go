package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/observability"
	"github.com/spherical/verbatim/internal/retry"
)

// Meta keys set on audio artifacts.
const (
	MetaVideoID = "video_id"
	MetaURL     = "url"
	MetaSpeaker = "speaker"
	MetaPrompt  = "prompt"
)

// Catalog turns user supplied URLs into audio artifacts.
type Catalog struct {
	fetcher    Fetcher
	exec       *retry.Executor
	promptName string
	logger     *observability.Logger
}

// NewCatalog creates a catalog. exec should carry the bounded download policy.
func NewCatalog(fetcher Fetcher, exec *retry.Executor, promptName string, logger *observability.Logger) *Catalog {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Catalog{fetcher: fetcher, exec: exec, promptName: promptName, logger: logger}
}

// Expand replaces playlist URLs by their videos and removes duplicates.
// URLs that cannot be probed are logged and dropped.
func (c *Catalog) Expand(ctx context.Context, urls []string) []string {
	var expanded []string
	for _, raw := range urls {
		if ctx.Err() != nil {
			break
		}

		target := NormalizePlaylistURL(raw)
		info, err := c.fetcher.Probe(ctx, target, true)
		if err != nil {
			c.logger.Error().Str("url", raw).Err(err).Msg("failed to expand URL")
			continue
		}

		if info.Type != "playlist" {
			expanded = append(expanded, raw)
			continue
		}

		log := c.logger.WithScope("playlist")
		found := 0
		for _, entry := range info.Entries {
			if entry == nil || entry.ID == "" {
				continue
			}
			expanded = append(expanded, WatchURL(entry.ID))
			found++
		}
		log.Info().
			Str("title", info.Title).
			Int("videos", found).
			Msg("expanded playlist")
	}
	return Dedupe(expanded)
}

// Resolve fetches metadata for one video under the download policy.
func (c *Catalog) Resolve(ctx context.Context, target string) (domain.Artifact, error) {
	log := c.logger.WithScope("resolve")
	done := log.Step("metadata resolve")

	info, err := retry.DoLogged(ctx, c.exec, log, func(ctx context.Context) (*Info, error) {
		return c.fetcher.Probe(ctx, target, false)
	})
	if err != nil {
		return domain.Artifact{}, probeError(target, err)
	}
	done()

	if strings.TrimSpace(info.ID) == "" {
		return domain.Artifact{}, probeError(target, fmt.Errorf("metadata has no id"))
	}
	return c.artifact(target, info), nil
}

func (c *Catalog) artifact(target string, info *Info) domain.Artifact {
	title := info.Title
	if title == "" {
		title = info.ID
	}
	return domain.Artifact{
		ID:         info.ID + "_" + c.promptName,
		Kind:       domain.ArtifactAudio,
		Locator:    target,
		OutputName: OutputName(info.ID, title, c.promptName),
		Title:      title,
		Meta: map[string]string{
			MetaVideoID: info.ID,
			MetaURL:     target,
			MetaSpeaker: ExtractSpeaker(title),
			MetaPrompt:  c.promptName,
		},
	}
}

// Preamble renders the header written above an audio transcript.
func Preamble(a domain.Artifact) string {
	return fmt.Sprintf("वीडियो शीर्षक: %s\nवक्ता (महाराज जी): %s\nवीडियो URL: %s\nप्रॉम्प्ट: %s\n\n%s\n\n",
		a.Title,
		a.Meta[MetaSpeaker],
		a.Meta[MetaURL],
		a.Meta[MetaPrompt],
		strings.Repeat("-", 50))
}
