package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/verbatim/cmd/verbatim/ui"
	"github.com/spherical/verbatim/internal/discovery"
	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/llm"
	"github.com/spherical/verbatim/internal/pdf"
)

var (
	ocrInputDir string
	ocrNoFetch  bool
	ocrDPI      int
)

var ocrCmd = &cobra.Command{
	Use:   "ocr",
	Short: "Transcribe every PDF in the input directory page by page",
	Long: `Render each PDF page to an image, transcribe it with the configured model and
write <output dir>/<name>.txt once every page is cached. When a GitHub source is
configured, missing PDFs are downloaded into the input directory first.`,
	RunE: runOCR,
}

func init() {
	ocrCmd.Flags().StringVarP(&ocrInputDir, "input", "i", "", "input directory (overrides config)")
	ocrCmd.Flags().BoolVar(&ocrNoFetch, "no-fetch", false, "skip downloading from GitHub")
	ocrCmd.Flags().IntVar(&ocrDPI, "dpi", 0, "render resolution (overrides config)")
	rootCmd.AddCommand(ocrCmd)
}

func runOCR(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.Close()

	cfg := env.cfg
	if ocrInputDir != "" {
		cfg.Input.Dir = ocrInputDir
	}
	if ocrDPI > 0 {
		cfg.Render.DPI = ocrDPI
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	ui.Section("Document OCR")

	if cfg.GitHub.Enabled && !ocrNoFetch {
		ui.Step("Fetching PDFs from %s/%s", cfg.GitHub.Owner, cfg.GitHub.Repo)
		fetcher := discovery.NewGitHubFetcher(discovery.GitHubConfig{
			BaseURL: cfg.GitHub.BaseURL,
			Owner:   cfg.GitHub.Owner,
			Repo:    cfg.GitHub.Repo,
			Branch:  cfg.GitHub.Branch,
			Path:    cfg.GitHub.Path,
			Token:   cfg.GitHub.Token,
			Timeout: cfg.GitHub.Timeout,
		}, env.downloadExecutor(), env.logger).WithProgress(ui.DownloadProgress())

		res, err := fetcher.Fetch(ctx, cfg.Input.Dir, cfg.Input.Extensions)
		switch {
		case err != nil && ctx.Err() != nil:
			return err
		case err != nil:
			ui.Warning("GitHub fetch failed, continuing with local files: %v", err)
		default:
			ui.Info("Downloaded %d, skipped %d existing", len(res.Downloaded), len(res.Skipped))
		}
	}

	paths, err := discovery.ScanDir(cfg.Input.Dir, cfg.Input.Extensions)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		ui.Warning("No documents found in %s", cfg.Input.Dir)
		return nil
	}
	ui.Info("Found %d document(s) in %s", len(paths), cfg.Input.Dir)

	artifacts := make([]domain.Artifact, 0, len(paths))
	for _, p := range paths {
		artifacts = append(artifacts, pdf.ArtifactFromPath(p))
	}

	summary, err := env.runPipeline(ctx, job{
		source:    pdf.NewSource(pdf.Options{DPI: cfg.Render.DPI, MaxEdge: cfg.Render.MaxEdge}, env.logger),
		prompt:    llm.PagePrompt(llm.DefaultPagePrompt()),
		outDir:    cfg.Output.Dir,
		artifacts: artifacts,
	})
	if summary == nil {
		return err
	}
	return exitError(summary, err)
}
