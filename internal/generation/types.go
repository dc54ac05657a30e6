package generation

import (
	"context"
	"fmt"
	"time"

	"storyforge/internal/scene"
)

// Request asks the backend for one asset of one scene.
type Request struct {
	SceneID         int
	Kind            scene.AssetKind
	Prompt          string
	ReferenceImages [][]byte
	VoiceID         string
}

// Key returns the status-table key the request targets.
func (r Request) Key() scene.Key {
	return scene.Key{SceneID: r.SceneID, Kind: r.Kind}
}

// Result is the outcome of one backend call: Success or Failure.
type Result interface {
	isResult()
}

// Success carries the generated bytes and the backend's format hint.
type Success struct {
	Data     []byte
	MIMEType string
}

// Failure carries a human-readable reason. Err, when set, is wrapped so
// callers can classify the failure with errors.Is.
type Failure struct {
	Reason string
	Err    error
}

func (Success) isResult() {}
func (Failure) isResult() {}

// Client is the generation backend. Implementations report problems as
// Failure values and must not panic.
type Client interface {
	Generate(ctx context.Context, req Request) Result
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) Result

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, req Request) Result {
	return f(ctx, req)
}

// ItemError records one failed (scene, kind) pair.
type ItemError struct {
	SceneID int
	Kind    scene.AssetKind
	Err     error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("scene %d %s: %v", e.SceneID, e.Kind, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// BatchResult summarizes a batch. Partial failure is a normal outcome.
type BatchResult struct {
	Succeeded int
	Failed    int
	Errors    []ItemError
}

// Progress reports completed items out of the dispatched total.
type Progress struct {
	Completed int
	Total     int
}

// Percent returns completion as a percentage.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return float64(p.Completed) * 100 / float64(p.Total)
}

// Transition is one status change of a (scene, kind) pair.
type Transition struct {
	SessionID string
	SceneID   int
	Kind      scene.AssetKind
	Status    scene.Status
	Err       error
	Bytes     int
	Elapsed   time.Duration
	At        time.Time
}

// Recorder receives every transition, typically to persist it.
type Recorder interface {
	RecordTransition(ctx context.Context, t Transition) error
}
