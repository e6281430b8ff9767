// Package arbiter asks the critic role to grade a draft and turns its reply
// into a tagged Evaluation.
package arbiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/valpere/mythmaker/internal/gateway"
	"github.com/valpere/mythmaker/internal/postprocess"
	"github.com/valpere/mythmaker/internal/role"
)

// DefaultFeedback is used when a verdict omits the feedback field.
const DefaultFeedback = "Good."

// Outcome tags an Evaluation.
type Outcome int

const (
	// ParseFailed means the critic's reply could not be read as a verdict.
	// Score and Feedback are meaningless.
	ParseFailed Outcome = iota
	// Evaluated means Score and Feedback came from a well-formed verdict.
	Evaluated
)

func (o Outcome) String() string {
	switch o {
	case Evaluated:
		return "evaluated"
	case ParseFailed:
		return "parse_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Evaluation is the critic's verdict on one draft.
type Evaluation struct {
	Outcome  Outcome `json:"outcome"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
	Raw      string  `json:"raw"`
	Reason   string  `json:"reason,omitempty"`
}

// Accepted reports whether the verdict meets threshold. A ParseFailed
// evaluation is never accepted.
func (e Evaluation) Accepted(threshold int) bool {
	return e.Outcome == Evaluated && e.Score >= float64(threshold)
}

// Evaluator grades a draft.
type Evaluator interface {
	Evaluate(ctx context.Context, draft string) Evaluation
}

// Critic evaluates drafts through the gateway using the critic role.
type Critic struct {
	gw   gateway.Gateway
	role role.Descriptor
}

// NewCritic returns a Critic calling gw as r.
func NewCritic(gw gateway.Gateway, r role.Descriptor) *Critic {
	return &Critic{gw: gw, role: r}
}

// Evaluate sends the draft to the critic and parses the reply. A failed
// gateway call yields an "Error: ..." reply, which fails to parse.
func (c *Critic) Evaluate(ctx context.Context, draft string) Evaluation {
	res := c.gw.Invoke(ctx, gateway.Request{
		Role:   c.role,
		Prompt: buildCriticPrompt(draft),
	})
	return Parse(res.String())
}

func buildCriticPrompt(draft string) string {
	return "Evaluate:\n" + draft
}

// Parse normalizes a critic reply and decodes it. Normalization strips the
// ```json and ``` markers and trims whitespace; whatever remains must be a
// JSON object. A missing score counts as 0 and a missing feedback as
// DefaultFeedback. A score that is present but not a number is a parse
// failure.
func Parse(response string) Evaluation {
	eval := Evaluation{Outcome: ParseFailed, Raw: response}

	cleaned := postprocess.StripCodeFences(response)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		eval.Reason = fmt.Sprintf("failed to parse evaluation as JSON: %v", err)
		return eval
	}
	if fields == nil {
		eval.Reason = "evaluation is not a JSON object"
		return eval
	}

	score := 0.0
	if raw, ok := fields["score"]; ok {
		if isNull(raw) {
			eval.Reason = "score is null"
			return eval
		}
		if err := json.Unmarshal(raw, &score); err != nil {
			eval.Reason = fmt.Sprintf("score is not a number: %v", err)
			return eval
		}
	}

	feedback := DefaultFeedback
	if raw, ok := fields["feedback"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			feedback = s
		} else {
			feedback = string(bytes.TrimSpace(raw))
		}
	}

	eval.Outcome = Evaluated
	eval.Score = score
	eval.Feedback = feedback
	return eval
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
