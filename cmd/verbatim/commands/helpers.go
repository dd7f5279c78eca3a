package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spherical/verbatim/cmd/verbatim/ui"
	"github.com/spherical/verbatim/internal/assemble"
	"github.com/spherical/verbatim/internal/cache"
	"github.com/spherical/verbatim/internal/config"
	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/llm"
	"github.com/spherical/verbatim/internal/observability"
	"github.com/spherical/verbatim/internal/pipeline"
	"github.com/spherical/verbatim/internal/retry"
)

// runEnv holds what every pipeline command needs.
type runEnv struct {
	cfg     *config.Config
	logger  *observability.Logger
	runLog  *observability.RunLog
	started time.Time
}

// setup loads configuration and opens the run log.
func setup() (*runEnv, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	started := time.Now()
	rl, err := observability.OpenRunLog(cfg.Log.Dir, started)
	if err != nil {
		return nil, err
	}

	return &runEnv{
		cfg:     cfg,
		logger:  newLogger(cfg, rl, rl.ID),
		runLog:  rl,
		started: started,
	}, nil
}

func newLogger(cfg *config.Config, file *observability.RunLog, runID string) *observability.Logger {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	lc := observability.LogConfig{
		Level:       level,
		Format:      cfg.Log.Format,
		Output:      os.Stderr,
		ServiceName: "verbatim",
		RunID:       runID,
	}
	if file != nil {
		lc.File = file
	}
	return observability.NewLogger(lc)
}

// Close flushes the run log footer.
func (e *runEnv) Close() {
	if err := e.runLog.Close(); err != nil {
		ui.Error("close run log: %v", err)
		return
	}
	ui.Info("Log file saved at: %s", e.runLog.Path)
}

func (e *runEnv) downloadExecutor() *retry.Executor {
	p := retry.DownloadPolicy(e.cfg.Retry.Download.MaxAttempts, e.cfg.Retry.Download.Base)
	return retry.NewExecutor(p, retry.WithLogger(e.logger))
}

func (e *runEnv) recognitionExecutor() *retry.Executor {
	p := retry.RecognitionPolicy(e.cfg.Retry.Recognition.Base, e.cfg.Retry.Recognition.Cap)
	p.MaxAttempts = e.cfg.Retry.Recognition.MaxAttempts
	return retry.NewExecutor(p, retry.WithLogger(e.logger))
}

// job is one batch handed to the pipeline.
type job struct {
	source    domain.UnitSource
	prompt    domain.PromptFunc
	outDir    string
	preamble  assemble.PreambleFunc
	artifacts []domain.Artifact

	// failed holds artifacts that could not be prepared and are reported as is.
	failed []domain.ArtifactResult
}

// runPipeline wires the cache, recognizer and assembler, runs the batch with
// progress bars and prints the summary.
func (e *runEnv) runPipeline(ctx context.Context, j job) (*domain.RunSummary, error) {
	store, err := cache.Open(ctx, e.cfg.Cache, e.cfg.Output.Dir)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	rec, err := llm.NewRecognizer(ctx, e.cfg.Recognition, e.logger)
	if err != nil {
		return nil, fmt.Errorf("create recognizer: %w", err)
	}

	events := make(chan domain.StreamEvent, 64)
	orch, err := pipeline.New(pipeline.Deps{
		Source:     j.source,
		Recognizer: rec,
		Cache:      store,
		Assembler:  assemble.NewAssembler(store, j.outDir, j.preamble, e.logger),
		Retry:      e.recognitionExecutor(),
		Prompt:     j.prompt,
		Logger:     e.logger,
	}, pipeline.WithWorkers(e.cfg.Pipeline.Workers), pipeline.WithEvents(events))
	if err != nil {
		return nil, err
	}

	tracker := ui.NewTracker()
	go tracker.Consume(events)

	summary, runErr := orch.Run(ctx, j.artifacts)
	close(events)
	tracker.Wait()

	summary.Results = append(summary.Results, j.failed...)
	summary.Duration = time.Since(e.started)
	ui.Summary(summary)
	return summary, runErr
}

// exitError turns a finished run into the command's error.
func exitError(summary *domain.RunSummary, err error) error {
	if err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	if n := summary.Failed(); n > 0 {
		return fmt.Errorf("%d of %d artifact(s) failed", n, len(summary.Results))
	}
	return nil
}
