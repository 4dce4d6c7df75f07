package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	bundlex "github.com/nattcha/bundlecraft/agent/bundle"
	catalogx "github.com/nattcha/bundlecraft/agent/catalog"
	contractx "github.com/nattcha/bundlecraft/agent/contract"
	statex "github.com/nattcha/bundlecraft/agent/state"
	toolx "github.com/nattcha/bundlecraft/agent/tool"
)

// runLoop drives think->act->observe until the model answers in plain
// text or the iteration cap trips. Tool calls within one model turn run
// sequentially in request order; each result lands in history before the
// next model call so the model can chain tools.
func (o *Orchestrator) runLoop(ctx context.Context, sess *statex.Session) (string, error) {
	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		turn, err := o.generate(ctx, sess)
		if err != nil {
			return "", err
		}

		if !turn.WantsTools() {
			if turn.Text == "" {
				return "", fmt.Errorf("%w: model returned neither text nor tool calls", contractx.ErrSchemaViolation)
			}
			sess.AppendAssistant(turn)
			sess.Trace.Append(statex.StepFinalAnswer, turn.Text, o.now())
			o.maybeClarify(sess, iter, turn.Text)
			return turn.Text, nil
		}

		if thought := strings.TrimSpace(turn.Text); thought != "" {
			sess.Trace.Append(statex.StepThought, thought, o.now())
		}
		o.prepareCalls(sess, turn.ToolCalls)
		sess.AppendAssistant(turn)

		for _, call := range turn.ToolCalls {
			sess.Trace.Append(statex.StepToolCall, call, o.now())

			res := o.tools.Dispatch(ctx, call)

			// A caller abort discards the in-flight result: it is never
			// appended to history or the trace, and no partial bundle
			// state escapes.
			if err := ctx.Err(); err != nil {
				return "", err
			}

			sess.Trace.Append(statex.StepToolResult, res, o.now())
			sess.AppendToolResult(res, encodeResult(res))
			o.applyEffects(sess, call, res)
		}
	}
	return "", fmt.Errorf("%w: cap=%d", contractx.ErrIterationLimit, o.cfg.MaxIterations)
}

// generate calls the model with the full history, retrying transient
// failures with a linear backoff before giving up.
func (o *Orchestrator) generate(ctx context.Context, sess *statex.Session) (contractx.ModelTurn, error) {
	messages := make([]contractx.Message, 0, len(sess.Messages)+1)
	messages = append(messages, contractx.Message{
		Role:    contractx.RoleSystem,
		Content: o.stageContext(sess),
	})
	messages = append(messages, sess.Messages...)

	var lastErr error
	for attempt := 0; attempt <= o.cfg.ModelRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*o.cfg.RetryBackoff); err != nil {
				return contractx.ModelTurn{}, err
			}
			log.Debug().Int("attempt", attempt).Str("session_id", sess.SessionID).Msg("retrying model call")
		}

		turn, err := o.model.Generate(ctx, messages, o.tools.Declarations())
		if err == nil {
			return turn, nil
		}
		if !errors.Is(err, contractx.ErrModelTimeout) && !errors.Is(err, contractx.ErrModelUnavailable) {
			return contractx.ModelTurn{}, err
		}
		lastErr = err
	}
	return contractx.ModelTurn{}, lastErr
}

// stageContext renders the system prompt plus the turn's session facts.
func (o *Orchestrator) stageContext(sess *statex.Session) string {
	var sb strings.Builder
	sb.WriteString(o.systemPrompt)
	fmt.Fprintf(&sb, "\n\nCurrent conversation stage: %s.", sess.Stage)
	if sess.ProjectID != "" {
		fmt.Fprintf(&sb, "\nActive project: %s.", sess.ProjectID)
	}
	if len(sess.RejectedSKUs) > 0 {
		fmt.Fprintf(&sb, "\nSKUs the customer already rejected: %s.", strings.Join(sess.RejectedSKUs, ", "))
	}
	return sb.String()
}

// prepareCalls guarantees call IDs and folds the session's accumulated
// rejections into rebuild requests so an earlier "no" keeps holding.
func (o *Orchestrator) prepareCalls(sess *statex.Session, calls []contractx.ToolCall) {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = uuid.NewString()
		}
		if calls[i].Name != toolx.ToolRebuildBundle || len(sess.RejectedSKUs) == 0 {
			continue
		}
		if calls[i].Args == nil {
			calls[i].Args = map[string]any{}
		}
		merged, _ := toolx.StringSlice(calls[i].Args["exclude_ids"])
		merged = append(merged, sess.RejectedSKUs...)
		calls[i].Args["exclude_ids"] = dedupe(merged)
	}
}

// applyEffects advances the stage machine off successful tool results.
func (o *Orchestrator) applyEffects(sess *statex.Session, call contractx.ToolCall, res contractx.ToolResult) {
	if !res.OK() {
		return
	}

	switch result := res.Result.(type) {
	case catalogx.Project:
		if err := sess.SelectProject(result.ID); err != nil && !errors.Is(err, statex.ErrInvalidTransition) {
			log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("project selection skipped")
		}
	case *bundlex.Bundle:
		if call.Name == toolx.ToolRebuildBundle {
			if skus, err := toolx.StringSlice(call.Args["exclude_ids"]); err == nil {
				sess.RejectSKUs(skus)
			}
		}
		if err := sess.AttachBundle(result); err != nil {
			log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("bundle attach skipped")
			return
		}
	case toolx.CloseOutput:
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("session close skipped")
		}
	}
}

// maybeClarify detours into Clarifying when the model's very first step
// of a turn is a plain-text question: it wants input, not tools.
func (o *Orchestrator) maybeClarify(sess *statex.Session, iter int, text string) {
	if iter != 0 || !strings.Contains(text, "?") {
		return
	}
	switch sess.Stage {
	case statex.StageDiscovering, statex.StageProjectSelected:
		_ = sess.EnterClarifying()
	}
}

func encodeResult(res contractx.ToolResult) string {
	if !res.OK() {
		return fmt.Sprintf(`{"error":%q,"kind":%q}`, res.Error, res.Kind)
	}
	raw, err := json.Marshal(res.Result)
	if err != nil {
		return fmt.Sprintf(`{"error":"unencodable result: %v"}`, err)
	}
	return string(raw)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
