package harness

import (
	"fmt"
	"strings"
)

// TraceEvent is one executed step.
type TraceEvent struct {
	Seq    int    `json:"seq"`
	Step   string `json:"step"`
	Detail string `json:"detail"`
}

func (e TraceEvent) String() string {
	return fmt.Sprintf("%02d %s %s", e.Seq, e.Step, e.Detail)
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
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

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace event numbered after the previous one.
func (r *Result) AddTrace(step, detail string) {
	r.Trace = append(r.Trace, TraceEvent{Seq: len(r.Trace) + 1, Step: step, Detail: detail})
}

// TraceText renders the trace one event per line.
func (r *Result) TraceText() string {
	var b strings.Builder
	for _, e := range r.Trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
