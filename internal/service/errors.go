// Package service implements the assistant's exposed operations: chat turns,
// conversation management, settings and usage readback.
package service

import (
	"errors"

	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/usage"
)

// Errors that end a turn. Tool failures and malformed structured data never
// surface here: they are fed back to the model or dropped.
var (
	// ErrConfiguration means the workspace has no usable provider or the assistant is disabled.
	ErrConfiguration = errors.New("ai assistant not configured")
	// ErrUsageLimitExceeded means the workspace spent its monthly token budget.
	ErrUsageLimitExceeded = usage.ErrLimitExceeded
	// ErrConversationNotFound means a supplied conversation id does not exist in the workspace.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrProviderUnavailable means a model call failed; the user message is already stored.
	ErrProviderUnavailable = llm.ErrProviderUnavailable
	// ErrInvalidInput means the request itself is malformed.
	ErrInvalidInput = errors.New("invalid input")
)

// Category names the error class for logs, metrics and transports.
func Category(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrUsageLimitExceeded):
		return "usage_limit"
	case errors.Is(err, ErrConversationNotFound):
		return "not_found"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
