// Package refiner implements the bounded draft/evaluate loop that produces
// the final myth. Each pass asks the bard for a draft, has the critic grade
// it and either stops or feeds the critique into the next pass.
package refiner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/valpere/mythmaker/internal/arbiter"
	"github.com/valpere/mythmaker/internal/gateway"
	"github.com/valpere/mythmaker/internal/role"
)

const (
	DefaultMaxIterations = 2
	DefaultAcceptScore   = 8
)

// ErrUnparseableEvaluation is returned under ParseFailureError when the
// critic's reply cannot be read.
var ErrUnparseableEvaluation = errors.New("critic returned an unparseable evaluation")

// StopReason records why the loop ended.
type StopReason string

const (
	StopAccepted     StopReason = "accepted"
	StopIterationCap StopReason = "iteration_cap"
	StopParseFailure StopReason = "parse_failure"
	StopCancelled    StopReason = "cancelled"
)

// ParseFailurePolicy decides what an unparseable verdict does to the loop.
type ParseFailurePolicy int

const (
	// ParseFailureStop ends the loop and keeps the current draft.
	ParseFailureStop ParseFailurePolicy = iota
	// ParseFailureContinue runs the next pass with whatever feedback was
	// last received.
	ParseFailureContinue
	// ParseFailureError ends the loop with ErrUnparseableEvaluation.
	ParseFailureError
)

func (p ParseFailurePolicy) String() string {
	switch p {
	case ParseFailureStop:
		return "stop"
	case ParseFailureContinue:
		return "continue"
	case ParseFailureError:
		return "error"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a config value ("stop", "continue", "error") into a
// policy. The empty string selects ParseFailureStop.
func ParsePolicy(s string) (ParseFailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stop":
		return ParseFailureStop, nil
	case "continue":
		return ParseFailureContinue, nil
	case "error":
		return ParseFailureError, nil
	default:
		return ParseFailureStop, fmt.Errorf("unknown parse failure policy %q (want stop, continue or error)", s)
	}
}

// Config bounds the loop. Non-positive values select the defaults.
type Config struct {
	MaxIterations  int
	AcceptScore    int
	OnParseFailure ParseFailurePolicy
}

// Result is what the loop produced. Drafts holds one entry per completed
// pass in generation order and Final is always its last element.
type Result struct {
	Final       string
	Drafts      []string
	Evaluations []arbiter.Evaluation
	Stop        StopReason
}

// Loop runs the refine/evaluate cycle.
type Loop struct {
	gw     gateway.Gateway
	bard   role.Descriptor
	critic arbiter.Evaluator
	config Config
}

// New builds a Loop that drafts with bard through gw and grades with critic.
func New(gw gateway.Gateway, bard role.Descriptor, critic arbiter.Evaluator, config Config) *Loop {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.AcceptScore <= 0 {
		config.AcceptScore = DefaultAcceptScore
	}
	return &Loop{gw: gw, bard: bard, critic: critic, config: config}
}

// Refine drafts and grades until the critic accepts a draft, the iteration
// cap is reached or the parse failure policy stops it. Drafts are appended
// unconditionally, gateway error markers included.
//
// A non-nil error comes with the partial result: the context error when the
// run was cancelled, or ErrUnparseableEvaluation under ParseFailureError.
func (l *Loop) Refine(ctx context.Context, contextPackage string) (*Result, error) {
	res := &Result{
		Drafts:      make([]string, 0, l.config.MaxIterations),
		Evaluations: make([]arbiter.Evaluation, 0, l.config.MaxIterations),
	}

	feedback := ""
	for i := 1; i <= l.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			res.Stop = StopCancelled
			return res, err
		}

		draft := l.gw.Invoke(ctx, gateway.Request{
			Role:   l.bard,
			Prompt: buildDraftPrompt(feedback, contextPackage),
		}).String()
		res.Drafts = append(res.Drafts, draft)
		res.Final = draft

		if err := ctx.Err(); err != nil {
			res.Stop = StopCancelled
			return res, err
		}

		eval := l.critic.Evaluate(ctx, draft)
		res.Evaluations = append(res.Evaluations, eval)

		if err := ctx.Err(); err != nil {
			res.Stop = StopCancelled
			return res, err
		}

		if eval.Outcome == arbiter.ParseFailed {
			slog.WarnContext(ctx, "critic reply could not be parsed",
				"iteration", i, "policy", l.config.OnParseFailure.String(), "reason", eval.Reason)

			switch l.config.OnParseFailure {
			case ParseFailureContinue:
				continue
			case ParseFailureError:
				res.Stop = StopParseFailure
				return res, fmt.Errorf("iteration %d: %w", i, ErrUnparseableEvaluation)
			default:
				res.Stop = StopParseFailure
				return res, nil
			}
		}

		slog.InfoContext(ctx, "draft evaluated", "iteration", i, "score", eval.Score)

		if eval.Accepted(l.config.AcceptScore) {
			res.Stop = StopAccepted
			return res, nil
		}
		feedback = eval.Feedback
	}

	res.Stop = StopIterationCap
	return res, nil
}

// buildDraftPrompt asks for a fresh myth until feedback has been received.
func buildDraftPrompt(feedback, contextPackage string) string {
	instruction := "Write the myth."
	if feedback != "" {
		instruction = "Refine this myth based on feedback: " + feedback
	}
	return instruction + "\n\nCONTEXT:\n" + contextPackage
}
