package contract

import "errors"

var (
	ErrModelUnavailable = errors.New("model service unavailable")
	ErrModelTimeout     = errors.New("model call timed out")
	ErrSchemaViolation  = errors.New("model response violates schema")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrToolExecution    = errors.New("tool execution failed")
	ErrIterationLimit   = errors.New("turn iteration limit exceeded")
	ErrPromptMissing    = errors.New("required prompt is missing")
	ErrValidation       = errors.New("validation failed")
)
