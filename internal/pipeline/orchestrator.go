// Package pipeline drives artifacts through decomposition, per-unit
// recognition and reassembly. Every unit is committed to the cache as soon as
// it is recognized, so an interrupted run resumes where it stopped.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/verbatim/internal/assemble"
	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/observability"
	"github.com/spherical/verbatim/internal/retry"
)

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Source     domain.UnitSource
	Recognizer domain.Recognizer
	Cache      domain.UnitCache
	Assembler  *assemble.Assembler
	Retry      *retry.Executor
	Prompt     domain.PromptFunc
	Logger     *observability.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets how many artifacts run at once. Units within an artifact
// are always processed one after another.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithEvents sends progress events to ch. Sends block until received, so the
// caller must drain ch while Run is active. A nil channel disables events.
func WithEvents(ch chan<- domain.StreamEvent) Option {
	return func(o *Orchestrator) {
		o.events = ch
	}
}

// Orchestrator runs the per-artifact state machine.
type Orchestrator struct {
	deps    Deps
	workers int
	events  chan<- domain.StreamEvent
	now     func() time.Time
}

// New creates an orchestrator.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Source == nil || deps.Recognizer == nil || deps.Cache == nil || deps.Assembler == nil {
		return nil, domain.ConfigError("pipeline requires a source, recognizer, cache and assembler", nil)
	}
	if deps.Retry == nil {
		deps.Retry = retry.NewExecutor(retry.RecognitionPolicy(0, 0))
	}
	if deps.Prompt == nil {
		return nil, domain.ConfigError("pipeline requires a prompt", nil)
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}

	o := &Orchestrator{deps: deps, workers: 1, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run processes every artifact and reports per-artifact results in input
// order. A failed artifact never stops the batch; only cancellation does.
func (o *Orchestrator) Run(ctx context.Context, artifacts []domain.Artifact) (*domain.RunSummary, error) {
	started := o.now()
	log := o.deps.Logger.WithScope("batch")
	log.Info().Int("artifacts", len(artifacts)).Int("workers", o.workers).Msg("batch started")

	results := make([]domain.ArtifactResult, len(artifacts))
	var g errgroup.Group
	g.SetLimit(o.workers)

	for i, artifact := range artifacts {
		if ctx.Err() != nil {
			results[i] = domain.ArtifactResult{Artifact: artifact, State: domain.StateFailed, Err: ctx.Err()}
			continue
		}
		i, artifact := i, artifact
		g.Go(func() error {
			log.Info().Msgf("[%d/%d] processing %s", i+1, len(artifacts), artifact.ID)
			results[i] = o.ProcessArtifact(ctx, artifact, log)
			return nil
		})
	}
	_ = g.Wait()

	summary := &domain.RunSummary{
		Results:  results,
		Started:  started,
		Duration: o.now().Sub(started),
	}
	log.Info().
		Int("completed", summary.Completed()).
		Int("failed", summary.Failed()).
		Dur("duration", summary.Duration).
		Msg("batch finished")

	return summary, ctx.Err()
}

// ProcessArtifact drives one artifact from Discovered to Completed or Failed.
func (o *Orchestrator) ProcessArtifact(ctx context.Context, artifact domain.Artifact, parent *observability.Logger) domain.ArtifactResult {
	if parent == nil {
		parent = o.deps.Logger
	}
	log := parent.WithScope(artifact.ID).WithArtifact(artifact.ID)
	started := o.now()

	res := domain.ArtifactResult{Artifact: artifact, State: domain.StateDiscovered}
	o.emit(domain.EventArtifactStart, artifact.ID, "", 0, artifact.Locator)

	fail := func(err error) domain.ArtifactResult {
		log.Error().Str("state", string(res.State)).Err(err).Msg("artifact failed")
		res.State = domain.StateFailed
		res.Err = err
		res.Duration = o.now().Sub(started)
		o.emit(domain.EventArtifactFailed, artifact.ID, "", res.Units, err.Error())
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	res.State = domain.StateDecomposing
	doneDecompose := log.Step("decompose")
	decomposition, err := o.deps.Source.Decompose(ctx, artifact)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := decomposition.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to release artifact resources")
		}
	}()
	doneDecompose()

	units := assemble.SortUnits(decomposition.Units)
	res.Units = len(units)
	o.emit(domain.EventArtifactUnits, artifact.ID, "", len(units), "")
	log.Info().Int("units", len(units)).Msg("artifact decomposed")

	res.State = domain.StateProcessingUnits
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		hit, err := o.processUnit(ctx, unit, log)
		if err != nil {
			return fail(err)
		}
		if hit {
			res.CacheHits++
		} else {
			res.Recognized++
		}
	}

	res.State = domain.StateReassembling
	doneAssemble := log.Step("assemble")
	out, err := o.deps.Assembler.Assemble(ctx, artifact, units)
	if err != nil {
		return fail(err)
	}
	doneAssemble()

	res.State = domain.StateCompleted
	res.OutputPath = out.Path
	res.Duration = o.now().Sub(started)
	o.emit(domain.EventArtifactComplete, artifact.ID, "", res.Units, out.Path)
	log.Info().
		Int("cache_hits", res.CacheHits).
		Int("recognized", res.Recognized).
		Str("output", out.Path).
		Dur("duration", res.Duration).
		Msg("artifact completed")
	return res
}

// processUnit resolves one unit from the cache or by recognition. It reports
// whether the unit was a cache hit.
func (o *Orchestrator) processUnit(ctx context.Context, unit domain.Unit, parent *observability.Logger) (bool, error) {
	log := parent.WithScope(fmt.Sprintf("%s_%s", unit.Kind, unit.ID)).WithUnit(unit.ID)
	key := unit.Key()

	_, ok, err := o.deps.Cache.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache lookup %s: %w", key, err)
	}
	if ok {
		log.Info().Msgf("%s %d cached, skipping recognition", unit.Kind.Label(), unit.Index)
		o.emit(domain.EventUnitCached, unit.ArtifactID, unit.ID, 0, "")
		return true, nil
	}

	prompt := o.deps.Prompt(unit)
	opLog := log.WithOperation("recognize")
	done := opLog.Step("recognize")
	text, err := retry.DoLogged(ctx, o.deps.Retry, opLog, func(ctx context.Context) (string, error) {
		opLog.Debug().Msgf("%s %d: recognition call", unit.Kind.Label(), unit.Index)
		text, err := o.deps.Recognizer.Recognize(ctx, unit, prompt)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", domain.EmptyResultError(fmt.Sprintf("%s %d returned no text", unit.Kind, unit.Index))
		}
		return text, nil
	})
	if err != nil {
		return false, fmt.Errorf("recognize %s: %w", key, err)
	}
	done()

	if err := o.deps.Cache.Put(ctx, key, text); err != nil {
		return false, fmt.Errorf("cache write %s: %w", key, err)
	}
	log.Info().Msgf("%s %d cached successfully", unit.Kind.Label(), unit.Index)
	o.emit(domain.EventUnitRecognized, unit.ArtifactID, unit.ID, 0, "")
	return false, nil
}

func (o *Orchestrator) emit(t domain.EventType, artifactID, unitID string, total int, payload string) {
	if o.events == nil {
		return
	}
	o.events <- domain.StreamEvent{
		Type:       t,
		ArtifactID: artifactID,
		UnitID:     unitID,
		Total:      total,
		Payload:    payload,
		Timestamp:  o.now(),
	}
}
