package pkg

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/commonarch/system/pkg/types"
)

// Reporter is the interface for reporting progress and messages during a
// rebase run. It has three implementations:
//   - TextReporter: human-readable text output with the i:/w:/E: prefixes
//   - JSONReporter: machine-readable JSON Lines output
//   - NoopReporter: silently discards all output
type Reporter interface {
	Step(step, total int, name string)
	Message(format string, args ...any)
	Warning(format string, args ...any)
	Error(err error, message string)
	Complete(message string)
	IsJSON() bool
}

// ---------------------------------------------------------------------------
// TextReporter
// ---------------------------------------------------------------------------

// TextReporter writes i:/w:/E:-prefixed progress text, matching the logger
// format of the original system.py output module. Step names go to stdout
// under the i: prefix; they carry no special formatting beyond that so
// scripts scraping output stay stable.
type TextReporter struct {
	out io.Writer
	err io.Writer
}

// NewTextReporter returns a TextReporter writing informational/step output
// to out and warnings/errors to errW.
func NewTextReporter(out, errW io.Writer) *TextReporter {
	return &TextReporter{out: out, err: errW}
}

func (r *TextReporter) Step(step, total int, name string) {
	_, _ = fmt.Fprintf(r.out, "i: [%d/%d] %s\n", step, total, name)
}

func (r *TextReporter) Message(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, "i: %s\n", fmt.Sprintf(format, args...))
}

func (r *TextReporter) Warning(format string, args ...any) {
	_, _ = fmt.Fprintf(r.err, "w: %s\n", fmt.Sprintf(format, args...))
}

func (r *TextReporter) Error(err error, message string) {
	if err != nil {
		_, _ = fmt.Fprintf(r.err, "E: %s: %v\n", message, err)
		return
	}
	_, _ = fmt.Fprintf(r.err, "E: %s\n", message)
}

func (r *TextReporter) Complete(message string) {
	_, _ = fmt.Fprintf(r.out, "i: %s\n", message)
}

func (r *TextReporter) IsJSON() bool { return false }

// ---------------------------------------------------------------------------
// JSONReporter
// ---------------------------------------------------------------------------

// JSONReporter writes JSON Lines (one types.ProgressEvent per line) to an
// io.Writer. All writes are serialized with a mutex, so a JSONReporter may
// be shared between goroutines.
type JSONReporter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewJSONReporter returns a JSONReporter that writes to w.
func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{encoder: json.NewEncoder(w)}
}

func (r *JSONReporter) emit(event types.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	_ = r.encoder.Encode(event)
}

func (r *JSONReporter) Step(step, total int, name string) {
	r.emit(types.ProgressEvent{
		Type:       types.EventTypeStep,
		Step:       step,
		TotalSteps: total,
		StepName:   name,
	})
}

func (r *JSONReporter) Message(format string, args ...any) {
	r.emit(types.ProgressEvent{
		Type:    types.EventTypeMessage,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *JSONReporter) Warning(format string, args ...any) {
	r.emit(types.ProgressEvent{
		Type:    types.EventTypeWarning,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *JSONReporter) Error(err error, message string) {
	details := map[string]string{}
	if err != nil {
		details["error"] = err.Error()
	}
	r.emit(types.ProgressEvent{
		Type:    types.EventTypeError,
		Message: message,
		Details: details,
	})
}

func (r *JSONReporter) Complete(message string) {
	r.emit(types.ProgressEvent{
		Type:    types.EventTypeComplete,
		Message: message,
	})
}

func (r *JSONReporter) IsJSON() bool { return true }

// ---------------------------------------------------------------------------
// NoopReporter
// ---------------------------------------------------------------------------

// NoopReporter silently discards all output. Useful for tests and for the
// pure merge functions, which take no Reporter at all but are exercised via
// higher-level callers that do.
type NoopReporter struct{}

func (NoopReporter) Step(int, int, string)  {}
func (NoopReporter) Message(string, ...any) {}
func (NoopReporter) Warning(string, ...any) {}
func (NoopReporter) Error(error, string)    {}
func (NoopReporter) Complete(string)        {}
func (NoopReporter) IsJSON() bool           { return false }
