package harness

import (
	"github.com/roach88/sqlscript/internal/value"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq      int           `json:"seq"`
	Step     string        `json:"step"`
	Request  *value.Object `json:"request,omitempty"`
	Response *value.Object `json:"response,omitempty"`
	Report   *value.Report `json:"report,omitempty"`
	Error    string        `json:"error,omitempty"` // Error kind, when the step failed
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every step in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev with the next sequence number.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
