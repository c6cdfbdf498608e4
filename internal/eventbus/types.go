package eventbus

import "github.com/mcpterm/mcpterm/internal/types"

// EventType identifies an event flowing through the bus.
type EventType string

const (
	// EventStatusChange fires on every request status transition.
	EventStatusChange EventType = "status-change"
	// EventProgress carries free-form progress text for long operations.
	EventProgress EventType = "progress"
	// EventPasteDetected fires when bracketed paste input begins.
	EventPasteDetected EventType = "paste-detected"
	// EventMultilineBegin / EventMultilineEnd bracket continuation input.
	EventMultilineBegin EventType = "multiline-begin"
	EventMultilineEnd   EventType = "multiline-end"
	// EventError surfaces user-visible failures: {kind, human message,
	// optional request id}.
	EventError EventType = "error"
)

// Event is a single notification. The UI consumes these without coupling
// to controller internals.
type Event struct {
	Type      EventType
	RequestID string

	// Status fields, populated for EventStatusChange.
	OldStatus types.Status
	Status    types.Status

	// Message is human-readable progress or error text.
	Message string

	// Kind names the error taxonomy entry for EventError.
	Kind string
}

// Handler consumes events from the bus.
type Handler interface {
	// ID uniquely identifies the handler for diagnostics.
	ID() string
	// Handles lists the event types this handler wants.
	Handles() []EventType
	// Priority orders handler invocation (lowest first).
	Priority() int
	// Handle processes one event. Errors are logged, never propagated.
	Handle(event Event) error
}
