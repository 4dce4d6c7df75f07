package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	bundlex "github.com/nattcha/bundlecraft/agent/bundle"
	contractx "github.com/nattcha/bundlecraft/agent/contract"
	statex "github.com/nattcha/bundlecraft/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

// apologyReply is returned whenever a turn fails closed: iteration cap
// hit or the model stayed unreachable through all retries.
const apologyReply = "I'm sorry, I seem to have gotten my thoughts tangled up. Could you please try rephrasing your request?"

// closedReply answers messages that arrive after the conversation ended.
const closedReply = "This conversation has wrapped up. Start a new session and I'll happily help with your next project!"

type Config struct {
	MaxIterations int           `envconfig:"MAX_ITERATIONS" split_words:"true" default:"8"`
	ModelRetries  int           `envconfig:"MODEL_RETRIES" split_words:"true" default:"2"`
	RetryBackoff  time.Duration `envconfig:"RETRY_BACKOFF" split_words:"true" default:"500ms"`
}

func (c *Config) applyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 8
	}
	if c.ModelRetries < 0 {
		c.ModelRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

// TurnResult is what the transport layer receives for one user message.
type TurnResult struct {
	Reply  string                `json:"reply"`
	Bundle *bundlex.Bundle       `json:"bundle,omitempty"`
	Trace  []statex.ReasoningStep `json:"trace"`
}

// Orchestrator owns the conversation: it drives the think->act->observe
// loop against the model, dispatches tool calls, advances the session
// stage machine, and records every step into the reasoning trace.
type Orchestrator struct {
	store        statex.Store
	model        contractx.TextGenerator
	tools        contractx.Dispatcher
	systemPrompt string
	cfg          Config

	now func() time.Time
}

func New(
	store statex.Store,
	model contractx.TextGenerator,
	tools contractx.Dispatcher,
	systemPrompt string,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if model == nil {
		return nil, errors.New("text generator is required")
	}
	if tools == nil {
		return nil, errors.New("tool dispatcher is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	cfg.applyDefaults()

	return &Orchestrator{
		store:        store,
		model:        model,
		tools:        tools,
		systemPrompt: systemPrompt,
		cfg:          cfg,
		now:          time.Now,
	}, nil
}

// HandleMessage processes one user message as a single unit of work and
// returns the reply, the active bundle (if any), and the exported trace.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID string, text string) (TurnResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return TurnResult{}, ErrInvalidSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrInvalidMessage
	}

	sess, err := o.loadOrCreate(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	if sess.Closed() {
		return TurnResult{
			Reply:  closedReply,
			Bundle: sess.Bundle,
			Trace:  sess.Trace.Export(),
		}, nil
	}

	preStage, preResume := sess.Stage, sess.ResumeStage

	sess.AppendUser(text)
	if sess.Stage == statex.StageGreeting {
		if err := sess.Advance(statex.StageDiscovering); err != nil {
			return TurnResult{}, err
		}
	} else {
		sess.ResumeFromClarifying()
	}

	reply, err := o.runLoop(ctx, sess)
	switch {
	case err == nil:
	case errors.Is(err, contractx.ErrIterationLimit):
		// Fail closed: roll the stage back and apologize instead of
		// letting a misbehaving model spin the session forward.
		sess.Stage, sess.ResumeStage = preStage, preResume
		reply = apologyReply
		log.Warn().Str("session_id", sessionID).Msg("iteration limit exceeded, turn failed closed")
	case errors.Is(err, contractx.ErrModelTimeout), errors.Is(err, contractx.ErrModelUnavailable):
		// Recoverable: the session in the store is untouched, so the
		// caller can simply retry the turn.
		log.Error().Err(err).Str("session_id", sessionID).Msg("model unreachable, turn abandoned")
		return TurnResult{}, err
	default:
		return TurnResult{}, err
	}

	sess.Touch(o.now())
	if err := sess.Validate(); err != nil {
		return TurnResult{}, fmt.Errorf("session validation failed: %w", err)
	}
	if err := o.store.Save(ctx, sess); err != nil {
		return TurnResult{}, err
	}

	return TurnResult{
		Reply:  reply,
		Bundle: sess.Bundle,
		Trace:  sess.Trace.Export(),
	}, nil
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, sessionID string) (*statex.Session, error) {
	sess, err := o.store.Load(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, statex.ErrStateNotFound) {
		return nil, err
	}
	return statex.NewSession(sessionID, o.now()), nil
}
