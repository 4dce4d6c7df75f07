package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	bundlex "github.com/nattcha/bundlecraft/agent/bundle"
	contractx "github.com/nattcha/bundlecraft/agent/contract"
)

// Stage is the conversation phase. Transitions are driven by the
// orchestrator; Clarifying is a detour that remembers where to resume.
type Stage string

const (
	StageGreeting        Stage = "greeting"
	StageDiscovering     Stage = "discovering"
	StageClarifying      Stage = "clarifying"
	StageProjectSelected Stage = "project_selected"
	StageBundling        Stage = "bundling"
	StagePresenting      Stage = "presenting"
	StageClosed          Stage = "closed"
)

var (
	ErrInvalidSession    = errors.New("session id is empty")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrSessionClosed     = errors.New("session is closed")
)

// allowedTransitions lists the forward edges of the stage machine.
// Clarifying is handled separately because it can interrupt two stages
// and resume to either.
var allowedTransitions = map[Stage][]Stage{
	StageGreeting:        {StageDiscovering},
	StageDiscovering:     {StageProjectSelected},
	StageProjectSelected: {StageBundling},
	StageBundling:        {StagePresenting},
	StagePresenting:      {StageClosed},
}

// Session owns everything one conversation accumulates: the message log,
// the stage, the active project/bundle, and the reasoning trace. It is
// mutated on every turn and persisted between turns by a Store.
type Session struct {
	SessionID string `json:"session_id"`
	Version   int64  `json:"version"`

	Stage       Stage `json:"stage"`
	ResumeStage Stage `json:"resume_stage,omitempty"`

	Messages []contractx.Message `json:"messages,omitempty"`

	ProjectID    string          `json:"project_id,omitempty"`
	Bundle       *bundlex.Bundle `json:"bundle,omitempty"`
	RejectedSKUs []string        `json:"rejected_skus,omitempty"`

	Trace Trace `json:"trace"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewSession(sessionID string, now time.Time) *Session {
	return &Session{
		SessionID: sessionID,
		Version:   0,
		Stage:     StageGreeting,
		UpdatedAt: now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *Session) Closed() bool {
	return s != nil && s.Stage == StageClosed
}

/* ------------------------------ message log ----------------------------- */

func (s *Session) AppendUser(text string) {
	s.Messages = append(s.Messages, contractx.Message{Role: contractx.RoleUser, Content: text})
}

func (s *Session) AppendAssistant(turn contractx.ModelTurn) {
	s.Messages = append(s.Messages, contractx.Message{
		Role:      contractx.RoleAssistant,
		Content:   turn.Text,
		ToolCalls: turn.ToolCalls,
	})
}

func (s *Session) AppendToolResult(res contractx.ToolResult, payload string) {
	s.Messages = append(s.Messages, contractx.Message{
		Role:    contractx.RoleTool,
		Content: payload,
		CallID:  res.CallID,
	})
}

/* ----------------------------- stage machine ---------------------------- */

// Advance moves to the target stage if the edge exists.
func (s *Session) Advance(to Stage) error {
	if s == nil {
		return errors.New("nil session")
	}
	if s.Stage == StageClosed {
		return ErrSessionClosed
	}
	if s.Stage == to {
		return nil
	}
	for _, next := range allowedTransitions[s.Stage] {
		if next == to {
			s.Stage = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Stage, to)
}

// EnterClarifying detours into Clarifying, remembering the stage to
// resume. Only Discovering and ProjectSelected can be interrupted.
func (s *Session) EnterClarifying() error {
	if s == nil {
		return errors.New("nil session")
	}
	switch s.Stage {
	case StageDiscovering, StageProjectSelected:
		s.ResumeStage = s.Stage
		s.Stage = StageClarifying
		return nil
	case StageClarifying:
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Stage, StageClarifying)
	}
}

// ResumeFromClarifying restores the interrupted stage once the user has
// answered. A no-op outside Clarifying.
func (s *Session) ResumeFromClarifying() {
	if s == nil || s.Stage != StageClarifying {
		return
	}
	if s.ResumeStage == "" {
		s.Stage = StageDiscovering
	} else {
		s.Stage = s.ResumeStage
	}
	s.ResumeStage = ""
}

// SelectProject records the resolved project and advances out of
// Discovering (or Clarifying, if the answer itself resolved a project).
func (s *Session) SelectProject(projectID string) error {
	if strings.TrimSpace(projectID) == "" {
		return fmt.Errorf("%w: project id is empty", contractx.ErrValidation)
	}
	s.ResumeFromClarifying()
	if s.Stage == StageGreeting {
		if err := s.Advance(StageDiscovering); err != nil {
			return err
		}
	}
	if err := s.Advance(StageProjectSelected); err != nil {
		return err
	}
	s.ProjectID = projectID
	return nil
}

// AttachBundle stores a freshly built bundle and advances to Presenting.
// Earlier bundles' rejected SKUs accumulate across rebuilds.
func (s *Session) AttachBundle(b *bundlex.Bundle) error {
	if b == nil {
		return fmt.Errorf("%w: bundle is nil", contractx.ErrValidation)
	}
	if s.Stage == StageProjectSelected {
		if err := s.Advance(StageBundling); err != nil {
			return err
		}
	}
	if err := s.Advance(StagePresenting); err != nil {
		// Rebuild while already presenting stays in Presenting.
		if s.Stage != StagePresenting {
			return err
		}
	}
	s.Bundle = b
	return nil
}

// RejectSKUs records products the user turned down so a rebuild never
// re-selects them.
func (s *Session) RejectSKUs(skus []string) {
	seen := make(map[string]struct{}, len(s.RejectedSKUs))
	for _, sku := range s.RejectedSKUs {
		seen[sku] = struct{}{}
	}
	for _, sku := range skus {
		sku = strings.TrimSpace(sku)
		if sku == "" {
			continue
		}
		if _, dup := seen[sku]; dup {
			continue
		}
		seen[sku] = struct{}{}
		s.RejectedSKUs = append(s.RejectedSKUs, sku)
	}
}

// Close ends the conversation from Presenting (accept or abandon).
func (s *Session) Close() error {
	return s.Advance(StageClosed)
}

func (s *Session) Validate() error {
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	switch s.Stage {
	case StageGreeting, StageDiscovering, StageClarifying, StageProjectSelected,
		StageBundling, StagePresenting, StageClosed:
	default:
		return fmt.Errorf("%w: unknown stage %q", contractx.ErrValidation, s.Stage)
	}
	if s.Stage == StageClarifying && s.ResumeStage == "" {
		return fmt.Errorf("%w: clarifying requires a resume stage", contractx.ErrValidation)
	}
	if s.Stage != StageClarifying && s.ResumeStage != "" {
		return fmt.Errorf("%w: resume stage set outside clarifying", contractx.ErrValidation)
	}
	if err := s.Trace.validate(); err != nil {
		return err
	}
	return nil
}
