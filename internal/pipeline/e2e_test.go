//go:build integration

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/verbatim/internal/assemble"
	"github.com/spherical/verbatim/internal/cache"
	"github.com/spherical/verbatim/internal/config"
	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/llm"
	"github.com/spherical/verbatim/internal/observability"
	"github.com/spherical/verbatim/internal/pdf"
	"github.com/spherical/verbatim/internal/retry"
)

func init() {
	_ = godotenv.Load("../../.env")
}

// TestScannedPDFEndToEnd transcribes a real document against the configured
// model, then checks that a second run is served entirely from the cache.
func TestScannedPDFEndToEnd(t *testing.T) {
	samplePDF := os.Getenv("VERBATIM_SAMPLE_PDF")
	if samplePDF == "" {
		t.Skip("VERBATIM_SAMPLE_PDF not set")
	}
	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("OPENROUTER_API_KEY") == "" {
		t.Skip("no recognition credentials set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	if cfg.Recognition.APIKey == "" && os.Getenv("OPENROUTER_API_KEY") != "" {
		cfg.Recognition.Backend = "openrouter"
		cfg.Recognition.APIKey = os.Getenv("OPENROUTER_API_KEY")
		cfg.Recognition.Model = "google/gemini-2.5-flash"
	}

	logger := observability.NewLogger(observability.LogConfig{Level: "debug", Format: "console", Output: os.Stderr})
	rec, err := llm.NewRecognizer(ctx, cfg.Recognition, logger)
	require.NoError(t, err)

	outDir := t.TempDir()
	store, err := cache.NewFileStore(outDir)
	require.NoError(t, err)

	counting := &countingRecognizer{next: rec}
	newOrchestrator := func() *Orchestrator {
		o, err := New(Deps{
			Source:     pdf.NewSource(pdf.Options{DPI: 150}, logger),
			Recognizer: counting,
			Cache:      store,
			Assembler:  assemble.NewAssembler(store, outDir, nil, logger),
			Retry:      retry.NewExecutor(retry.RecognitionPolicy(5*time.Second, 60*time.Second), retry.WithLogger(logger)),
			Prompt:     llm.PagePrompt(llm.DefaultPagePrompt()),
			Logger:     logger,
		})
		require.NoError(t, err)
		return o
	}

	artifact := pdf.ArtifactFromPath(samplePDF)
	summary, err := newOrchestrator().Run(ctx, []domain.Artifact{artifact})
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, summary.Results[0].State, "%v", summary.Results[0].Err)

	first, err := os.ReadFile(filepath.Join(outDir, artifact.OutputName+".txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(first), "=== Page 1 ===\n"))
	assert.Equal(t, summary.Results[0].Units, strings.Count(string(first), "=== Page "))
	t.Logf("recognized %d page(s), %d bytes", counting.calls, len(first))

	counting.calls = 0
	_, err = newOrchestrator().Run(ctx, []domain.Artifact{artifact})
	require.NoError(t, err)
	assert.Zero(t, counting.calls)

	second, err := os.ReadFile(filepath.Join(outDir, artifact.OutputName+".txt"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

type countingRecognizer struct {
	next  domain.Recognizer
	calls int
}

func (c *countingRecognizer) Recognize(ctx context.Context, u domain.Unit, prompt string) (string, error) {
	c.calls++
	return c.next.Recognize(ctx, u, prompt)
}
