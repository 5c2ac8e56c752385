package llm

import (
	"fmt"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

// New creates a Completer from configuration. Supported providers are
// "anthropic" and "openai".
func New(cfg config.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(cfg)
	case "openai":
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
