package embeddings

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/vectorstore"
)

// Common errors for embedding providers.
var (
	ErrInvalidConfig   = errors.New("invalid embedding configuration")
	ErrEmptyInput      = errors.New("empty or nil input texts")
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Provider is an Embedder that also reports its dimension and owns
// releasable resources.
type Provider interface {
	vectorstore.Embedder

	// Dimension returns the embedding dimension of the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// New creates an embedding provider from config.
func New(cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey.Value(),
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
