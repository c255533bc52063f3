// Package runtime runs agent pipelines for threads: it loads history,
// resolves model credentials, compiles the graph and maps node outputs to
// the external event stream.
package runtime

import "github.com/parleyhq/parley/pkg/graph"

// EventType identifies an external stream event.
type EventType string

const (
	// EventChunk carries a piece of assistant output.
	EventChunk EventType = "chunk"

	// EventGuardrailReject reports a rejected input; it terminates the run.
	EventGuardrailReject EventType = "guardrail_reject"

	// EventDone carries the run metadata after the pipeline completes.
	EventDone EventType = "done"

	// EventStreamEnd closes a subscription. It is always the last event
	// a subscriber sees.
	EventStreamEnd EventType = "stream_end"
)

// Event is one frame of the external stream.
type Event struct {
	Type     EventType              `json:"type"`
	Content  string                 `json:"content,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	Metadata *graph.MessageMetadata `json:"metadata,omitempty"`
}
