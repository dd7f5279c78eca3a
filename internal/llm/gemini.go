package llm

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/observability"
)

// GeminiConfig selects the Gemini API or Vertex AI backend.
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
	Params   Params
}

// GeminiClient recognizes units with the Google Gen AI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
	params Params
	vertex bool
	logger *observability.Logger
}

// NewGeminiClient creates the SDK client. An API key selects the Gemini API,
// otherwise Project and Location select Vertex AI.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *observability.Logger) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	vertex := cfg.APIKey == ""
	if vertex {
		if cfg.Project == "" {
			return nil, domain.ConfigError("gemini requires an API key or a Vertex AI project", nil)
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	} else {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, domain.ConfigError("create gemini client", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &GeminiClient{
		client: client,
		model:  model,
		params: cfg.Params.withDefaults(),
		vertex: vertex,
		logger: logger,
	}, nil
}

// Recognize implements domain.Recognizer.
func (g *GeminiClient) Recognize(ctx context.Context, unit domain.Unit, prompt string) (string, error) {
	payload, err := unit.Payload(ctx)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.params.Timeout)
	defer cancel()

	parts, cleanup, err := g.buildParts(callCtx, unit, payload, prompt)
	if err != nil {
		return "", classifyCallError(ctx, err, g.params.Timeout)
	}
	defer cleanup()

	resp, err := g.client.Models.GenerateContent(callCtx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(g.params.Temperature),
			TopP:            genai.Ptr(g.params.TopP),
			MaxOutputTokens: g.params.MaxOutputTokens,
		})
	if err != nil {
		return "", classifyCallError(ctx, err, g.params.Timeout)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", domain.EmptyResultError(fmt.Sprintf("empty output for %s %s", unit.Kind, unit.ID))
	}
	return text, nil
}

// buildParts orders parts the way each payload kind is best understood:
// page images follow the prompt, audio precedes it.
func (g *GeminiClient) buildParts(ctx context.Context, unit domain.Unit, payload []byte, prompt string) ([]*genai.Part, func(), error) {
	noop := func() {}
	text := genai.NewPartFromText(prompt)

	if !strings.HasPrefix(unit.MIMEType, "audio/") || g.vertex {
		media := genai.NewPartFromBytes(payload, unit.MIMEType)
		if strings.HasPrefix(unit.MIMEType, "audio/") {
			return []*genai.Part{media, text}, noop, nil
		}
		return []*genai.Part{text, media}, noop, nil
	}

	done := g.logger.Step("gemini upload")
	file, err := g.client.Files.Upload(ctx, bytes.NewReader(payload), &genai.UploadFileConfig{
		MIMEType: unit.MIMEType,
	})
	if err != nil {
		return nil, noop, err
	}
	done()

	cleanup := func() {
		if _, err := g.client.Files.Delete(context.Background(), file.Name, nil); err != nil {
			g.logger.Debug().Str("file", file.Name).Err(err).Msg("failed to delete uploaded file")
		}
	}
	return []*genai.Part{genai.NewPartFromURI(file.URI, file.MIMEType), text}, cleanup, nil
}

var _ domain.Recognizer = (*GeminiClient)(nil)
