// Package types provides JSON output types for the system CLI.
//
// It defines the JSON Lines events that pkg.JSONReporter writes, for callers
// that want to parse that output programmatically.
//
// Example usage:
//
//	import "github.com/commonarch/system/pkg/types"
//
//	var event types.ProgressEvent
//	json.Unmarshal(line, &event)
package types

// =============================================================================
// Progress Events (Streaming JSON Lines)
// =============================================================================

// EventType represents the type of progress event.
type EventType string

const (
	EventTypeStep     EventType = "step"
	EventTypeMessage  EventType = "message"
	EventTypeWarning  EventType = "warning"
	EventTypeError    EventType = "error"
	EventTypeComplete EventType = "complete"
)

// ProgressEvent represents a single line of JSON Lines output for streaming
// rebase/update progress.
type ProgressEvent struct {
	Type       EventType `json:"type"`
	Timestamp  string    `json:"timestamp"`
	Step       int       `json:"step,omitzero"`
	TotalSteps int       `json:"total_steps,omitzero"`
	StepName   string    `json:"step_name,omitempty"`
	Message    string    `json:"message,omitempty"`
	Details    any       `json:"details,omitempty"`
}
