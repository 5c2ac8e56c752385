package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation sent to a completer.
type Message struct {
	Role    Role
	Content string
}

// Completer produces a text completion for a sequence of messages.
// All agent reasoning (planning, execution, critique) goes through
// this interface so the provider can be swapped without touching the
// agents.
type Completer interface {
	// Complete returns the model's response for the conversation.
	Complete(ctx context.Context, messages []Message) (string, error)
}

var (
	// ErrInvalidConfig indicates the provider configuration is incomplete.
	ErrInvalidConfig = errors.New("invalid llm configuration")

	// ErrEmptyResponse indicates the provider returned no content.
	ErrEmptyResponse = errors.New("empty response from llm provider")
)

// TransientError wraps an error that is safe to retry: rate limits,
// timeouts, connection failures, and server-side 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient llm error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
