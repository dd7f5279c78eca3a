package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/fsutil"
	"github.com/spherical/verbatim/internal/observability"
	"github.com/spherical/verbatim/internal/retry"
)

// GitHubConfig identifies a repository directory to mirror.
type GitHubConfig struct {
	BaseURL string
	Owner   string
	Repo    string
	Branch  string
	Path    string
	Token   string
	Timeout time.Duration
}

// ProgressFunc returns a writer that observes the bytes of one download.
type ProgressFunc func(name string, total int64) io.Writer

// contentItem is one entry of the contents API listing.
type contentItem struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

// RemoteFile is a file found in the repository.
type RemoteFile struct {
	Name        string
	Path        string
	Size        int64
	DownloadURL string
}

// FetchResult reports what a fetch did.
type FetchResult struct {
	Downloaded []string
	Skipped    []string
}

// GitHubFetcher mirrors files from a GitHub repository into a local directory.
type GitHubFetcher struct {
	cfg        GitHubConfig
	httpClient *http.Client
	exec       *retry.Executor
	logger     *observability.Logger
	progress   ProgressFunc
}

// NewGitHubFetcher creates a fetcher. exec should carry the bounded download policy.
func NewGitHubFetcher(cfg GitHubConfig, exec *retry.Executor, logger *observability.Logger) *GitHubFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &GitHubFetcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		exec:       exec,
		logger:     logger,
	}
}

// WithProgress installs a download progress observer.
func (g *GitHubFetcher) WithProgress(fn ProgressFunc) *GitHubFetcher {
	g.progress = fn
	return g
}

// List walks the repository tree and returns files with a matching extension.
func (g *GitHubFetcher) List(ctx context.Context, exts []string) ([]RemoteFile, error) {
	return g.list(ctx, g.cfg.Path, exts)
}

func (g *GitHubFetcher) list(ctx context.Context, dir string, exts []string) ([]RemoteFile, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimRight(g.cfg.BaseURL, "/"),
		url.PathEscape(g.cfg.Owner),
		url.PathEscape(g.cfg.Repo),
		escapePath(dir))
	if g.cfg.Branch != "" {
		endpoint += "?ref=" + url.QueryEscape(g.cfg.Branch)
	}

	items, err := retry.DoLogged(ctx, g.exec, g.logger, func(ctx context.Context) ([]contentItem, error) {
		var items []contentItem
		if err := g.getJSON(ctx, endpoint, &items); err != nil {
			return nil, err
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}

	var files []RemoteFile
	for _, item := range items {
		switch item.Type {
		case "file":
			if hasExt(item.Name, exts) {
				files = append(files, RemoteFile{
					Name:        item.Name,
					Path:        item.Path,
					Size:        item.Size,
					DownloadURL: item.DownloadURL,
				})
			}
		case "dir":
			sub, err := g.list(ctx, item.Path, exts)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

// Fetch downloads every matching file into dir, skipping files already present.
func (g *GitHubFetcher) Fetch(ctx context.Context, dir string, exts []string) (*FetchResult, error) {
	log := g.logger.WithScope("github")
	done := log.Step("github fetch")
	defer done()

	files, err := g.List(ctx, exts)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", g.cfg.Owner, g.cfg.Repo, err)
	}
	if len(files) == 0 {
		return nil, domain.ValidationError(fmt.Sprintf("no files found in GitHub repo %s/%s", g.cfg.Owner, g.cfg.Repo), nil)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.IOError("create input dir", err)
	}

	result := &FetchResult{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		name := localName(f)
		local := filepath.Join(dir, name)
		if fsutil.Exists(local) {
			log.Info().Str("file", name).Msg("already exists, skipping")
			result.Skipped = append(result.Skipped, local)
			continue
		}

		log.Info().Str("file", name).Int("bytes", int(f.Size)).Msg("downloading")
		err := g.exec.RunLogged(ctx, log, func(ctx context.Context) error {
			return g.download(ctx, f, local)
		})
		if err != nil {
			return result, fmt.Errorf("download %s: %w", name, err)
		}
		result.Downloaded = append(result.Downloaded, local)
	}
	return result, nil
}

func (g *GitHubFetcher) download(ctx context.Context, f RemoteFile, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.DownloadURL, nil)
	if err != nil {
		return err
	}
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", f.DownloadURL, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if g.progress != nil {
		total := resp.ContentLength
		if total <= 0 {
			total = f.Size
		}
		body = io.TeeReader(resp.Body, g.progress(f.Name, total))
	}
	return fsutil.WriteAtomic(dest, body, 0o644)
}

func (g *GitHubFetcher) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: HTTP %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode contents listing: %w", err)
	}
	return nil
}

func (g *GitHubFetcher) authorize(req *http.Request) {
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}
}

// localName is the base name of the download URL, falling back to the listing name.
func localName(f RemoteFile) string {
	if u, err := url.Parse(f.DownloadURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return f.Name
}

func escapePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == e {
			return true
		}
	}
	return false
}
