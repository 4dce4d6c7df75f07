package state

import (
	"fmt"
	"time"

	contractx "github.com/nattcha/bundlecraft/agent/contract"
)

type StepKind string

const (
	StepThought     StepKind = "thought"
	StepToolCall    StepKind = "tool_call"
	StepToolResult  StepKind = "tool_result"
	StepFinalAnswer StepKind = "final_answer"
)

// ReasoningStep is one record of the agent's visible thinking. Steps are
// totally ordered by Index within their session.
type ReasoningStep struct {
	Index   int       `json:"step_index"`
	Kind    StepKind  `json:"kind"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Trace is the append-only reasoning log of a session. There is no
// mutation or deletion API; the presentation layer reads via Export.
type Trace struct {
	Steps []ReasoningStep `json:"steps,omitempty"`
}

// Append records a step and assigns the next index.
func (t *Trace) Append(kind StepKind, payload any, now time.Time) ReasoningStep {
	step := ReasoningStep{
		Index:   len(t.Steps),
		Kind:    kind,
		Payload: payload,
		At:      now.UTC(),
	}
	t.Steps = append(t.Steps, step)
	return step
}

// Export returns a copy of the ordered steps. Repeated exports of a
// completed turn yield identical sequences; an export taken before a turn
// is a strict prefix of one taken after.
func (t *Trace) Export() []ReasoningStep {
	return append([]ReasoningStep(nil), t.Steps...)
}

func (t *Trace) Len() int {
	return len(t.Steps)
}

func (t *Trace) validate() error {
	for i, step := range t.Steps {
		if step.Index != i {
			return fmt.Errorf("%w: trace step %d has index %d", contractx.ErrValidation, i, step.Index)
		}
		switch step.Kind {
		case StepThought, StepToolCall, StepToolResult, StepFinalAnswer:
		default:
			return fmt.Errorf("%w: trace step %d has unknown kind %q", contractx.ErrValidation, i, step.Kind)
		}
	}
	return nil
}
