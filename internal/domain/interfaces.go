package domain

import "context"

// UnitSource decomposes an artifact into its ordered units.
type UnitSource interface {
	// Decompose must be deterministic: the same artifact always yields the
	// same unit ids in the same order.
	Decompose(ctx context.Context, artifact Artifact) (*Decomposition, error)
}

// Recognizer converts one unit's payload into text with a single remote call.
// It neither retries nor caches.
type Recognizer interface {
	Recognize(ctx context.Context, unit Unit, prompt string) (string, error)
}

// UnitCache maps unit keys to previously recognized text.
type UnitCache interface {
	// Get returns the cached text and whether an entry exists.
	Get(ctx context.Context, key UnitKey) (string, bool, error)

	// Put durably stores non-empty text for a key that has no entry yet.
	Put(ctx context.Context, key UnitKey, text string) error

	// Close releases the underlying connection or handle.
	Close() error
}

// PromptFunc renders the recognition prompt for a unit.
type PromptFunc func(unit Unit) string
