package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/nattcha/bundlecraft/agent/contract"
	openrouterx "github.com/nattcha/bundlecraft/pkg/openrouter"
)

// Client adapts the OpenAI chat-completions API to the TextGenerator
// contract. Stateless per call: the orchestrator re-sends the full
// history every turn.
type Client struct {
	sdk         *openaisdk.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

var _ contractx.TextGenerator = (*Client)(nil)

func NewClient(cfg openrouterx.Config) (*Client, error) {
	sdk := openrouterx.NewClient(cfg)
	if sdk == nil {
		return nil, fmt.Errorf("%w: api key is required", contractx.ErrValidation)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("%w: model is required", contractx.ErrValidation)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		sdk:         sdk,
		model:       model,
		maxTokens:   cfg.MaxCompletionToken,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}, nil
}

// Generate performs one bounded model call and maps the response into a
// ModelTurn. Timeouts and transport faults come back as the recoverable
// sentinel errors so the orchestrator can retry or apologize.
func (c *Client) Generate(ctx context.Context, messages []contractx.Message, tools []contractx.ToolDecl) (contractx.ModelTurn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openaisdk.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toSDKMessages(messages),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(c.maxTokens))
	}
	if c.temperature >= 0 {
		params.Temperature = openaisdk.Float(float64(c.temperature))
	}
	if len(tools) > 0 {
		params.Tools = toSDKTools(tools)
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return contractx.ModelTurn{}, classifyErr(err)
	}
	if len(completion.Choices) == 0 {
		return contractx.ModelTurn{}, fmt.Errorf("%w: completion has no choices", contractx.ErrSchemaViolation)
	}

	msg := completion.Choices[0].Message
	turn := contractx.ModelTurn{Text: strings.TrimSpace(msg.Content)}

	for _, call := range msg.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return contractx.ModelTurn{}, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return contractx.ModelTurn{}, fmt.Errorf("%w: invalid args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}
		turn.ToolCalls = append(turn.ToolCalls, contractx.ToolCall{
			ID:   call.ID,
			Name: name,
			Args: args,
		})
	}

	log.Debug().
		Str("model", c.model).
		Int("tool_calls", len(turn.ToolCalls)).
		Bool("has_text", turn.Text != "").
		Msg("model turn")
	return turn, nil
}

func toSDKMessages(messages []contractx.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case contractx.RoleSystem:
			out = append(out, openaisdk.SystemMessage(m.Content))
		case contractx.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openaisdk.AssistantMessage(m.Content))
				continue
			}
			assistant := openaisdk.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openaisdk.String(m.Content)
			}
			for _, call := range m.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					args = []byte("{}")
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openaisdk.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case contractx.RoleTool:
			out = append(out, openaisdk.ToolMessage(m.Content, m.CallID))
		default:
			out = append(out, openaisdk.UserMessage(m.Content))
		}
	}
	return out
}

func toSDKTools(tools []contractx.ToolDecl) []openaisdk.ChatCompletionToolParam {
	out := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openaisdk.ChatCompletionToolParam{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openaisdk.String(t.Description),
				Parameters:  openaisdk.FunctionParameters(t.Parameters),
			},
		})
	}
	return out
}

func classifyErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", contractx.ErrModelTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", contractx.ErrModelTimeout, err)
	}
	return fmt.Errorf("%w: %v", contractx.ErrModelUnavailable, err)
}
