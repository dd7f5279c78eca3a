package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/verbatim/internal/domain"
)

const (
	openRouterURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel      = "google/gemini-2.5-flash"
	defaultMaxTokens  = 8192
	defaultReqTimeout = 10 * time.Minute
)

// Client handles communication with OpenRouter API
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	params     Params
	httpClient *http.Client
}

// Params are the inference parameters sent with every request.
type Params struct {
	Temperature     float32
	TopP            float32
	MaxOutputTokens int32
	Timeout         time.Duration
}

// DefaultParams returns deterministic decoding settings.
func DefaultParams() Params {
	return Params{
		Temperature:     0,
		TopP:            1,
		MaxOutputTokens: defaultMaxTokens,
		Timeout:         defaultReqTimeout,
	}
}

func (p Params) withDefaults() Params {
	if p.MaxOutputTokens <= 0 {
		p.MaxOutputTokens = defaultMaxTokens
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultReqTimeout
	}
	return p
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text, image or audio)
type ContentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	ImageURL   *ImageURL   `json:"image_url,omitempty"`
	InputAudio *InputAudio `json:"input_audio,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// InputAudio carries base64 audio inline.
type InputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float32   `json:"temperature"`
	TopP        float32   `json:"top_p"`
	MaxTokens   int32     `json:"max_tokens"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Choice represents a single completion choice
type Choice struct {
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents the assistant message of a choice
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewClient creates a new OpenRouter recognizer
func NewClient(apiKey, model string, params Params) *Client {
	if model == "" {
		model = defaultModel
	}

	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    openRouterURL,
		params:     params.withDefaults(),
		httpClient: &http.Client{},
	}
}

// WithBaseURL points the client at another chat completions endpoint.
func (c *Client) WithBaseURL(url string) *Client {
	if url != "" {
		c.baseURL = url
	}
	return c
}

// Recognize implements domain.Recognizer with a single non-streaming call.
func (c *Client) Recognize(ctx context.Context, unit domain.Unit, prompt string) (string, error) {
	payload, err := unit.Payload(ctx)
	if err != nil {
		return "", err
	}

	req, err := c.buildRequest(unit.MIMEType, payload, prompt)
	if err != nil {
		return "", domain.RequestError("Failed to build request", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.RequestError("Failed to marshal request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.params.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", domain.RequestError("Failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/spherical/verbatim")
	httpReq.Header.Set("X-Title", "verbatim")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyCallError(ctx, err, c.params.Timeout)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyCallError(ctx, err, c.params.Timeout)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, string(respBody))
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", domain.TransportError("Failed to parse response", err)
	}
	if parsed.Error != nil {
		return "", classifyStatus(parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", domain.EmptyResultError(fmt.Sprintf("no choices returned for %s %s", unit.Kind, unit.ID))
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", domain.EmptyResultError(fmt.Sprintf("empty output for %s %s", unit.Kind, unit.ID))
	}
	return text, nil
}

// buildRequest constructs the API request with the prompt and the payload
func (c *Client) buildRequest(mimeType string, payload []byte, prompt string) (*Request, error) {
	encoded := base64.StdEncoding.EncodeToString(payload)

	var media ContentPart
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		media = ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:" + mimeType + ";base64," + encoded},
		}
	case strings.HasPrefix(mimeType, "audio/"):
		media = ContentPart{
			Type:       "input_audio",
			InputAudio: &InputAudio{Data: encoded, Format: audioFormat(mimeType)},
		}
	default:
		return nil, fmt.Errorf("unsupported payload type %q", mimeType)
	}

	msg := Message{
		Role: "user",
		Content: []ContentPart{
			{Type: "text", Text: prompt},
			media,
		},
	}

	return &Request{
		Model:       c.model,
		Messages:    []Message{msg},
		Stream:      false,
		Temperature: c.params.Temperature,
		TopP:        c.params.TopP,
		MaxTokens:   c.params.MaxOutputTokens,
	}, nil
}

func audioFormat(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav":
		return "wav"
	default:
		return strings.TrimPrefix(mimeType, "audio/")
	}
}

var _ domain.Recognizer = (*Client)(nil)
