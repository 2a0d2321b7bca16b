package trace

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// BuildTrace is the canonical, deterministic record of a pipeline run.
//
// It captures logical steps only: no timestamps, durations, process IDs or
// error strings. Two runs that take the same steps over the same pipeline
// definition produce byte-identical canonical JSON.
//
// The trace is observational only and must never affect execution behavior.
type BuildTrace struct {
	PipelineHash string       `json:"pipelineHash"`
	Events       []TraceEvent `json:"events"`
}

// TraceEventKind is the stable, canonical discriminator for TraceEvent.
// The string values are part of the trace's canonical bytes; do not rename.
type TraceEventKind string

const (
	EventTargetCompiled      TraceEventKind = "TargetCompiled"
	EventTargetCompileFailed TraceEventKind = "TargetCompileFailed"
	EventArtifactRelocated   TraceEventKind = "ArtifactRelocated"
	EventHeaderTrimmed       TraceEventKind = "HeaderTrimmed"
	EventTargetFailed        TraceEventKind = "TargetFailed"
)

// Stable reason codes.
const (
	ReasonNonZeroExit   = "NonZeroExit"
	ReasonNotStarted    = "NotStarted"
	ReasonCompileFailed = "CompileFailed"
	ReasonNoArtifact    = "ArtifactMissing"
	ReasonFilesystem    = "FilesystemError"
	ReasonCancelled     = "Cancelled"
	ReasonShortArtifact = "ShortArtifact"
)

// TraceEvent is a single logical step outcome.
//
// Paths keep their order: for relocation it is source then destination.
// Empty slices are omitted from JSON.
type TraceEvent struct {
	Kind   TraceEventKind `json:"kind"`
	Target string         `json:"target"`
	Reason string         `json:"reason,omitempty"`
	Paths  []string       `json:"paths,omitempty"`
}

// Validate checks basic invariants and returns a descriptive error.
func (t *BuildTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.PipelineHash == "" {
		return errors.New("pipelineHash is required")
	}
	for i := range t.Events {
		e := t.Events[i]
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Target == "" {
			return fmt.Errorf("events[%d].target is required for kind %q", i, e.Kind)
		}
		for j, p := range e.Paths {
			if p == "" {
				return fmt.Errorf("events[%d].paths[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// Canonicalize normalizes and sorts the trace into its canonical form.
//
// Events are stably sorted by (target, step order, reason). Empty Paths are
// normalized to nil.
func (t *BuildTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Paths) == 0 {
			t.Events[i].Paths = nil
		}
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		return a.Reason < b.Reason
	})
}

func kindOrder(k TraceEventKind) int {
	switch k {
	case EventTargetCompiled, EventTargetCompileFailed:
		return 10
	case EventArtifactRelocated:
		return 20
	case EventHeaderTrimmed:
		return 30
	case EventTargetFailed:
		return 40
	default:
		return 1000
	}
}

// CanonicalJSON returns the canonical JSON encoding of the trace.
// It canonicalizes a copy of the trace to avoid mutating the caller's slices.
func (t BuildTrace) CanonicalJSON() ([]byte, error) {
	c := BuildTrace{PipelineHash: t.PipelineHash}
	c.Events = make([]TraceEvent, len(t.Events))
	for i, e := range t.Events {
		if len(e.Paths) > 0 {
			e.Paths = append([]string(nil), e.Paths...)
		}
		c.Events[i] = e
	}
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&c)
}

// Hash returns the deterministic trace hash (sha256 hex) of the canonical JSON bytes.
func (t BuildTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}
