package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/verbatim/cmd/verbatim/ui"
	"github.com/spherical/verbatim/internal/archive"
	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/llm"
	"github.com/spherical/verbatim/internal/media"
)

var (
	transcribePromptName string
	transcribeNoArchive  bool
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [URL... | urls.txt]",
	Short: "Transcribe videos and playlists from their audio",
	Long: `Download the audio of each video with yt-dlp, transcribe it with the named
prompt and write <transcripts dir>/<id>__<title>_<prompt>.txt. Playlists are
expanded and duplicate videos are processed once.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranscribe,
}

func init() {
	transcribeCmd.Flags().StringVarP(&transcribePromptName, "prompt", "p", "", "prompt name in the prompt file (overrides config)")
	transcribeCmd.Flags().BoolVar(&transcribeNoArchive, "no-archive", false, "keep transcripts of earlier runs in place")
	rootCmd.AddCommand(transcribeCmd)
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.Close()

	cfg := env.cfg
	if transcribePromptName != "" {
		cfg.Prompts.Name = transcribePromptName
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidatePrompts(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	promptText, err := llm.LoadNamedPrompt(cfg.Prompts.File, cfg.Prompts.Name)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ui.Section("Audio Transcription")

	if !transcribeNoArchive {
		res, err := archive.New(cfg.Output.ArchiveDir, env.logger).Archive(cfg.Output.TranscriptsDir)
		if err != nil {
			return err
		}
		if res != nil {
			ui.Info("Archived %d transcript(s) to %s", len(res.Files), res.Dir)
		}
	}

	inputs, err := media.ParseInputs(args)
	if err != nil {
		return err
	}

	ytdlp := media.NewYTDLP(cfg.Media.YTDLPPath, nil)
	downloads := env.downloadExecutor()
	catalog := media.NewCatalog(ytdlp, downloads, cfg.Prompts.Name, env.logger)

	spin := ui.NewSpinner("Expanding playlists...")
	spin.Start()
	videos := catalog.Expand(ctx, inputs)
	spin.Stop()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(videos) == 0 {
		return domain.ValidationError("no videos to transcribe", nil)
	}
	ui.Info("Total unique videos: %d", len(videos))

	var artifacts []domain.Artifact
	var failed []domain.ArtifactResult
	for i, target := range videos {
		if ctx.Err() != nil {
			break
		}
		ui.Step("[%d/%d] resolving %s", i+1, len(videos), target)
		a, err := catalog.Resolve(ctx, target)
		if err != nil {
			env.logger.Error().Str("url", target).Err(err).Msg("failed to resolve video")
			failed = append(failed, domain.ArtifactResult{
				Artifact: domain.Artifact{ID: target, Kind: domain.ArtifactAudio, Locator: target},
				State:    domain.StateFailed,
				Err:      err,
			})
			continue
		}
		artifacts = append(artifacts, a)
	}

	summary, err := env.runPipeline(ctx, job{
		source:    media.NewSource(ytdlp, cfg.Media.AudioDir, downloads, env.logger),
		prompt:    llm.StaticPrompt(promptText),
		outDir:    cfg.Output.TranscriptsDir,
		preamble:  media.Preamble,
		artifacts: artifacts,
		failed:    failed,
	})
	if summary == nil {
		return err
	}
	return exitError(summary, err)
}
