package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/nattcha/bundlecraft/agent/contract"
)

type ParamType string

const (
	ParamString      ParamType = "string"
	ParamNumber      ParamType = "number"
	ParamStringArray ParamType = "string_array"
)

// Param is one named, typed argument with its constraints.
type Param struct {
	Name     string
	Type     ParamType
	Desc     string
	Required bool
	NonEmpty bool
}

// Spec declares one callable tool: its schema plus description.
type Spec struct {
	Name   string
	Desc   string
	Params []Param
}

// Declaration renders the tool schema as the JSON object the model
// receives.
func (s Spec) Declaration() contractx.ToolDecl {
	properties := make(map[string]any, len(s.Params))
	required := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		prop := map[string]any{"description": p.Desc}
		switch p.Type {
		case ParamNumber:
			prop["type"] = "number"
		case ParamStringArray:
			prop["type"] = "array"
			prop["items"] = map[string]any{"type": "string"}
		default:
			prop["type"] = "string"
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return contractx.ToolDecl{
		Name:        s.Name,
		Description: s.Desc,
		Parameters: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// Handler executes a validated tool call. A returned error becomes an
// execution-error ToolResult, never a dispatcher error.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type entry struct {
	spec    Spec
	handler Handler
}

// Registry maps tool names to schemas and executors. Dispatch never
// returns a Go error: schema violations and executor faults both come
// back inside the ToolResult.
type Registry struct {
	tools map[string]entry
}

var _ contractx.Dispatcher = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry, 8)}
}

func (r *Registry) Register(spec Spec, h Handler) error {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return fmt.Errorf("%w: tool name is empty", contractx.ErrValidation)
	}
	if h == nil {
		return fmt.Errorf("%w: tool=%s handler is nil", contractx.ErrValidation, name)
	}
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("%w: tool=%s already registered", contractx.ErrValidation, name)
	}
	r.tools[name] = entry{spec: spec, handler: h}
	return nil
}

func (r *Registry) Declarations() []contractx.ToolDecl {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]contractx.ToolDecl, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name].spec.Declaration())
	}
	return out
}

// Dispatch validates the call against the tool's schema and executes it.
func (r *Registry) Dispatch(ctx context.Context, call contractx.ToolCall) contractx.ToolResult {
	ent, ok := r.tools[call.Name]
	if !ok {
		return contractx.ToolResult{
			CallID: call.ID,
			Tool:   call.Name,
			Kind:   contractx.ResultInvalidArguments,
			Error:  fmt.Sprintf("unknown tool %q", call.Name),
		}
	}

	if err := validateArgs(ent.spec, call.Args); err != nil {
		return contractx.ToolResult{
			CallID: call.ID,
			Tool:   call.Name,
			Kind:   contractx.ResultInvalidArguments,
			Error:  err.Error(),
		}
	}

	result, err := safeExecute(ctx, ent.handler, call.Args)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Str("call_id", call.ID).Msg("tool execution failed")
		return contractx.ToolResult{
			CallID: call.ID,
			Tool:   call.Name,
			Kind:   contractx.ResultExecutionError,
			Error:  err.Error(),
		}
	}

	return contractx.ToolResult{
		CallID: call.ID,
		Tool:   call.Name,
		Kind:   contractx.ResultOK,
		Result: result,
	}
}

func safeExecute(ctx context.Context, h Handler, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: executor panic: %v", contractx.ErrToolExecution, rec)
		}
	}()
	result, err = h(ctx, args)
	if err != nil {
		err = fmt.Errorf("%w: %v", contractx.ErrToolExecution, err)
	}
	return result, err
}

func validateArgs(spec Spec, args map[string]any) error {
	for _, p := range spec.Params {
		raw, present := args[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("%w: %s is required", contractx.ErrInvalidArguments, p.Name)
			}
			continue
		}

		switch p.Type {
		case ParamString:
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("%w: %s must be a string", contractx.ErrInvalidArguments, p.Name)
			}
			if p.NonEmpty && strings.TrimSpace(s) == "" {
				return fmt.Errorf("%w: %s must be a non-empty string", contractx.ErrInvalidArguments, p.Name)
			}
		case ParamNumber:
			switch raw.(type) {
			case float64, int, int64:
			default:
				return fmt.Errorf("%w: %s must be a number", contractx.ErrInvalidArguments, p.Name)
			}
		case ParamStringArray:
			if _, err := StringSlice(raw); err != nil {
				return fmt.Errorf("%w: %s %v", contractx.ErrInvalidArguments, p.Name, err)
			}
		}
	}
	return nil
}

// StringArg fetches a trimmed string argument. Validation has already
// established presence and type for required params.
func StringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

// StringSlice coerces a JSON-decoded array into []string.
func StringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("must be an array of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be an array of strings")
	}
}
