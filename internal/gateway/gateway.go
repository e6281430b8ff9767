// Package gateway issues single role-conditioned calls to the generative
// model and turns every outcome, including failures, into a Result value.
package gateway

import (
	"context"
	"time"

	"github.com/valpere/mythmaker/internal/role"
)

// NoResponse is returned as text when the model produced no text parts.
const NoResponse = "No response generated."

// ErrorPrefix starts the string form of every failed Result.
const ErrorPrefix = "Error: "

// Request is one call: a role, its prompt, an optional image and whether
// live web search grounding is enabled.
type Request struct {
	Role            role.Descriptor
	Prompt          string
	Image           []byte
	ImageMIMEType   string
	SearchGrounding bool
}

// Result is the outcome of one call. Exactly one of Text or Err is
// meaningful; a failure is carried forward as a value, never raised.
type Result struct {
	Role    string
	Text    string
	Err     error
	Latency time.Duration
}

// Failed reports whether the call failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// String returns the text handed to the rest of the pipeline: the model
// output, or "Error: <message>" when the call failed.
func (r Result) String() string {
	if r.Err != nil {
		return ErrorPrefix + r.Err.Error()
	}
	return r.Text
}

// Gateway invokes a role. Implementations must never panic or return a
// failure other than through Result.Err.
type Gateway interface {
	Invoke(ctx context.Context, req Request) Result
}
