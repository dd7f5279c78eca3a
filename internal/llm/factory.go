// Package llm adapts remote generative models to the domain.Recognizer interface.
// Recognizers make exactly one call per Recognize and classify failures;
// retrying is the caller's job.
package llm

import (
	"context"
	"fmt"

	"github.com/spherical/verbatim/internal/config"
	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/observability"
)

// NewRecognizer builds the configured backend, wrapped with pacing when requested.
func NewRecognizer(ctx context.Context, cfg config.RecognitionConfig, logger *observability.Logger) (domain.Recognizer, error) {
	params := Params{
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Timeout:         cfg.Timeout,
	}

	var rec domain.Recognizer
	switch cfg.Backend {
	case "gemini", "":
		g, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:   cfg.APIKey,
			Project:  cfg.Project,
			Location: cfg.Location,
			Model:    cfg.Model,
			Params:   params,
		}, logger)
		if err != nil {
			return nil, err
		}
		rec = g
	case "openrouter":
		if cfg.APIKey == "" {
			return nil, domain.ConfigError("openrouter requires an API key", nil)
		}
		rec = NewClient(cfg.APIKey, cfg.Model, params).WithBaseURL(cfg.BaseURL)
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown recognition backend %q", cfg.Backend), nil)
	}

	return NewPaced(rec, cfg.RequestsPerMinute), nil
}
