package tools

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is a failure the model should see and may recover from.
// Handlers return it for bad input or rejected writes; any other error is
// reported to the model as a generic failure and logged.
type Error struct {
	Msg  string
	Hint string
	// ProjectID names a project the failed call still created.
	ProjectID string
}

func (e *Error) Error() string {
	if e.Hint == "" {
		return e.Msg
	}
	return e.Msg + ". " + e.Hint
}

// toolError creates a model-facing error with an optional recovery hint.
func toolError(msg, hint string) error {
	return &Error{Msg: msg, Hint: hint}
}

func toolErrorf(hint, format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...), Hint: hint}
}

// Result is the JSON envelope every tool call returns to the model.
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SuccessResult encodes a successful tool result.
func SuccessResult(v any) string {
	data, err := json.Marshal(Result{Success: true, Result: v})
	if err != nil {
		return ErrorResult("Failed to encode result", "")
	}
	return string(data)
}

// ErrorResult encodes a failed tool result.
// If hint is non-empty, formats as "{msg}. {hint}".
func ErrorResult(msg, hint string) string {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	data, _ := json.Marshal(Result{Success: false, Error: text})
	return string(data)
}

// errorMessage returns the model-facing text for err.
func errorMessage(err error) (msg string, known bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Error(), true
	}
	return "Tool failed: workspace data is temporarily unavailable", false
}
