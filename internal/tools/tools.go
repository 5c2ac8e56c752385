package tools

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors for tool invocation.
var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrInvalidParameters = errors.New("invalid tool parameters")
	ErrPermissionDenied  = errors.New("tool permission denied")
	ErrAlreadyRegistered = errors.New("tool already registered")
)

// Param describes one parameter a tool accepts.
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Schema describes a tool: its name, what it does, the parameters it
// accepts, and the permissions a caller must hold to run it.
type Schema struct {
	Name                string           `json:"name"`
	Description         string           `json:"description"`
	Parameters          map[string]Param `json:"parameters"`
	RequiredPermissions []string         `json:"required_permissions,omitempty"`

	// IsSafe marks tools with no side effects outside the process.
	// Unsafe tools require AllowUnsafe in the runner configuration.
	IsSafe bool `json:"is_safe"`
}

// Result is the structured outcome of one tool invocation. Failures
// (including timeouts) are reported here rather than as panics, so the
// caller's control loop always gets a value back.
type Result struct {
	ToolName string        `json:"tool_name"`
	Success  bool          `json:"success"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Tool is a named operation invokable by the executor.
type Tool interface {
	// Schema returns the static description of the tool.
	Schema() Schema

	// ValidateParameters reports whether params satisfy the schema.
	// A non-nil error wraps ErrInvalidParameters.
	ValidateParameters(params map[string]any) error

	// Execute runs the tool. The context carries the invocation
	// timeout; implementations must honor cancellation.
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// ValidateRequired is a helper for Tool implementations: it checks that
// every required parameter in schema is present in params.
func ValidateRequired(schema Schema, params map[string]any) error {
	for name, p := range schema.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := params[name]; !ok {
			return fmt.Errorf("%w: missing required parameter %q", ErrInvalidParameters, name)
		}
	}
	return nil
}
