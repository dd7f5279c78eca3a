package llm

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spherical/verbatim/internal/domain"
)

//go:embed prompts/page_ocr.txt
var defaultPagePrompt string

const (
	promptStartMarker = "### PROMPT: "
	promptEndMarker   = "=== END PROMPT ==="
	pagePlaceholder   = "{page}"
)

// DefaultPagePrompt returns the built-in verbatim page transcription prompt.
func DefaultPagePrompt() string {
	return strings.TrimSpace(defaultPagePrompt)
}

// PagePrompt renders template for each unit, substituting {page} with the 1-based index.
func PagePrompt(template string) domain.PromptFunc {
	return func(u domain.Unit) string {
		return strings.ReplaceAll(template, pagePlaceholder, strconv.Itoa(u.Index))
	}
}

// StaticPrompt uses the same text for every unit.
func StaticPrompt(text string) domain.PromptFunc {
	return func(domain.Unit) string {
		return text
	}
}

// LoadNamedPrompt reads the prompt called name from a prompt file.
// A prompt starts at "### PROMPT: <name>" and ends at "=== END PROMPT ===".
func LoadNamedPrompt(path, name string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", domain.ConfigError("read prompt file", err)
	}
	return ParseNamedPrompt(string(data), name)
}

// ParseNamedPrompt extracts the prompt called name from prompt file content.
func ParseNamedPrompt(content, name string) (string, error) {
	start := promptStartMarker + name
	_, rest, found := strings.Cut(content, start)
	for found && rest != "" && rest[0] != '\n' && rest[0] != '\r' {
		// "### PROMPT: verbatim_v2" must not match "verbatim".
		_, rest, found = strings.Cut(rest, start)
	}
	if !found {
		return "", domain.ConfigError(fmt.Sprintf("prompt %q not found", name), nil)
	}

	body, _, _ := strings.Cut(rest, promptEndMarker)
	prompt := strings.TrimSpace(body)
	if prompt == "" {
		return "", domain.ConfigError(fmt.Sprintf("prompt %q is empty", name), nil)
	}
	return prompt, nil
}
