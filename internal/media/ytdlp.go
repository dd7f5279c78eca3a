package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spherical/verbatim/internal/domain"
)

// Info is the subset of yt-dlp's JSON output used here.
type Info struct {
	Type       string  `json:"_type"`
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	WebpageURL string  `json:"webpage_url"`
	Entries    []*Info `json:"entries"`
}

// Fetcher resolves media metadata and downloads audio.
type Fetcher interface {
	// Probe returns flat metadata; playlists come back with their entries.
	Probe(ctx context.Context, url string, flat bool) (*Info, error)

	// DownloadAudio writes <dir>/<id>.mp3.
	DownloadAudio(ctx context.Context, url, dir, id string) error
}

// CommandRunner runs an external program and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// YTDLP drives the yt-dlp binary.
type YTDLP struct {
	Path string
	run  CommandRunner
}

// NewYTDLP creates a yt-dlp fetcher. A nil runner executes the real binary.
func NewYTDLP(path string, run CommandRunner) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	if run == nil {
		run = execRunner
	}
	return &YTDLP{Path: path, run: run}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// Probe implements Fetcher.
func (y *YTDLP) Probe(ctx context.Context, target string, flat bool) (*Info, error) {
	args := []string{"-J", "--no-warnings"}
	if flat {
		args = append(args, "--flat-playlist")
	} else {
		args = append(args, "--no-playlist")
	}
	args = append(args, target)

	out, err := y.run(ctx, y.Path, args...)
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parse yt-dlp metadata: %w", err)
	}
	return &info, nil
}

// DownloadAudio implements Fetcher.
func (y *YTDLP) DownloadAudio(ctx context.Context, target, dir, id string) error {
	_, err := y.run(ctx, y.Path,
		"-f", "bestaudio/best",
		"--no-playlist",
		"-x", "--audio-format", "mp3", "--audio-quality", "192K",
		"-o", filepath.Join(dir, id+".%(ext)s"),
		"--retries", "5",
		"--fragment-retries", "5",
		"--socket-timeout", "30",
		"--concurrent-fragments", "1",
		"--quiet", "--no-warnings",
		target,
	)
	return err
}

// NormalizePlaylistURL rewrites watch?v=...&list=... links to the playlist itself.
func NormalizePlaylistURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	list := u.Query().Get("list")
	if list == "" {
		return raw
	}
	return "https://www.youtube.com/playlist?list=" + list
}

// WatchURL builds the canonical URL of a single video.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func probeError(target string, err error) error {
	return domain.DecodeError(fmt.Sprintf("cannot resolve media %s", target), err)
}
