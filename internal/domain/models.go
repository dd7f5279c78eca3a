package domain

import (
	"context"
	"fmt"
	"time"
)

// ArtifactKind distinguishes scanned documents from downloaded media.
type ArtifactKind string

const (
	ArtifactDocument ArtifactKind = "document"
	ArtifactAudio    ArtifactKind = "audio"
)

// UnitKind is the physical kind of a unit within an artifact.
type UnitKind string

const (
	UnitPage  UnitKind = "page"
	UnitTrack UnitKind = "track"
)

// Label is the capitalized kind used in section headers.
func (k UnitKind) Label() string {
	switch k {
	case UnitPage:
		return "Page"
	case UnitTrack:
		return "Track"
	default:
		return string(k)
	}
}

// UnitIDWidth is the zero padding applied to unit ids so that lexicographic
// order equals processing order.
const UnitIDWidth = 3

// FormatUnitID converts a 1-based index into a padded unit id ("001").
func FormatUnitID(index int) string {
	return fmt.Sprintf("%0*d", UnitIDWidth, index)
}

// Artifact is one source document or media item to be fully transcribed.
type Artifact struct {
	ID         string // cache namespace, e.g. "scan-1942" or "dQw4w9WgXcQ_verbatim"
	Kind       ArtifactKind
	Locator    string // local path or URL
	OutputName string // base name of the aggregated output file, without extension
	Title      string
	Meta       map[string]string
}

// PayloadFunc produces the raw bytes of a unit on demand.
type PayloadFunc func(ctx context.Context) ([]byte, error)

// Unit is the smallest independently cacheable piece of an artifact.
type Unit struct {
	ArtifactID string
	Kind       UnitKind
	ID         string // zero-padded, 1-based
	Index      int    // 1-based position within the artifact
	MIMEType   string
	load       PayloadFunc
}

// NewUnit builds the unit at the given 1-based index.
func NewUnit(artifactID string, kind UnitKind, index int, mimeType string, load PayloadFunc) Unit {
	return Unit{
		ArtifactID: artifactID,
		Kind:       kind,
		ID:         FormatUnitID(index),
		Index:      index,
		MIMEType:   mimeType,
		load:       load,
	}
}

// Payload loads the unit's bytes. Payloads are never kept beyond processing.
func (u Unit) Payload(ctx context.Context) ([]byte, error) {
	if u.load == nil {
		return nil, DecodeError(fmt.Sprintf("%s %s has no payload", u.Kind, u.ID), nil)
	}
	return u.load(ctx)
}

// Key returns the cache key of the unit.
func (u Unit) Key() UnitKey {
	return UnitKey{ArtifactID: u.ArtifactID, Kind: u.Kind, UnitID: u.ID}
}

// UnitKey addresses one cache entry.
type UnitKey struct {
	ArtifactID string
	Kind       UnitKind
	UnitID     string
}

func (k UnitKey) String() string {
	return fmt.Sprintf("%s/%s_%s", k.ArtifactID, k.Kind, k.UnitID)
}

// Decomposition is the ordered unit sequence of one artifact plus the
// resources that back its payloads.
type Decomposition struct {
	Units   []Unit
	closeFn func() error
}

// NewDecomposition wraps units with an optional release function.
func NewDecomposition(units []Unit, closeFn func() error) *Decomposition {
	return &Decomposition{Units: units, closeFn: closeFn}
}

// Close releases payload resources (open documents, temp files).
func (d *Decomposition) Close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	fn := d.closeFn
	d.closeFn = nil
	return fn()
}

// ArtifactState is a step of the per-artifact state machine.
type ArtifactState string

const (
	StateDiscovered      ArtifactState = "discovered"
	StateDecomposing     ArtifactState = "decomposing"
	StateProcessingUnits ArtifactState = "processing_units"
	StateReassembling    ArtifactState = "reassembling"
	StateCompleted       ArtifactState = "completed"
	StateFailed          ArtifactState = "failed"
)

// EventType represents the type of stream event
type EventType string

const (
	EventArtifactStart    EventType = "artifact_start"
	EventArtifactUnits    EventType = "artifact_units" // unit count known
	EventUnitCached       EventType = "unit_cached"
	EventUnitRecognized   EventType = "unit_recognized"
	EventArtifactComplete EventType = "artifact_complete"
	EventArtifactFailed   EventType = "artifact_failed"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type       EventType `json:"type"`
	ArtifactID string    `json:"artifact_id"`
	UnitID     string    `json:"unit_id,omitempty"`
	Total      int       `json:"total,omitempty"`
	Payload    string    `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ArtifactResult is the outcome of one artifact in a run.
type ArtifactResult struct {
	Artifact   Artifact
	State      ArtifactState
	Units      int
	CacheHits  int
	Recognized int
	OutputPath string
	Duration   time.Duration
	Err        error
}

// RunSummary aggregates a batch run.
type RunSummary struct {
	Results  []ArtifactResult
	Started  time.Time
	Duration time.Duration
}

// Completed counts artifacts that reached the completed state.
func (s RunSummary) Completed() int {
	n := 0
	for _, r := range s.Results {
		if r.State == StateCompleted {
			n++
		}
	}
	return n
}

// Failed counts artifacts that ended in the failed state.
func (s RunSummary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.State == StateFailed {
			n++
		}
	}
	return n
}
