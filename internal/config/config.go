// Package config provides configuration loading for agentd.
//
// The Config tree is constructed once at process start and passed by
// reference into each component constructor. There is no ambient or
// global configuration lookup.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for agentd.
type Config struct {
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	LLM           LLMConfig           `koanf:"llm"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Memory        MemoryConfig        `koanf:"memory"`
	Orchestrator  OrchestratorConfig  `koanf:"orchestrator"`
	Tools         ToolsConfig         `koanf:"tools"`
	Server        ServerConfig        `koanf:"server"`
	Events        EventsConfig        `koanf:"events"`
}

// LoggingConfig controls zap logger construction.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// ObservabilityConfig controls OpenTelemetry export.
type ObservabilityConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http
	SampleRate  float64 `koanf:"sample_rate"`
}

// LLMConfig configures the completion capability.
type LLMConfig struct {
	// Provider selects the client: anthropic or openai.
	Provider string `koanf:"provider"`

	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
	APIKey  Secret `koanf:"api_key"`

	// Timeout bounds a single completion call.
	Timeout Duration `koanf:"timeout"`

	// RateLimit is requests per second; Burst the limiter burst size.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// EmbeddingsConfig configures the embedding capability.
type EmbeddingsConfig struct {
	// Provider selects the embedder: fastembed (local ONNX) or openai
	// (any OpenAI-compatible endpoint, including TEI).
	Provider string `koanf:"provider"`

	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// VectorStoreConfig configures the retrieval index backend.
type VectorStoreConfig struct {
	// Provider selects the backend: chromem (embedded) or qdrant.
	Provider string `koanf:"provider"`

	// Path is the persistence directory for the embedded store.
	Path string `koanf:"path"`

	// VectorSize must match the embedder output dimension.
	VectorSize int `koanf:"vector_size"`

	Qdrant QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds connection settings for an external Qdrant.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	APIKey Secret `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

// MemoryConfig configures the tier stores.
type MemoryConfig struct {
	// PersistDir is the root directory for tier snapshots.
	PersistDir string `koanf:"persist_dir"`

	ShortTerm ShortTermConfig `koanf:"short_term"`
	LongTerm  LongTermConfig  `koanf:"long_term"`
	Episodic  EpisodicConfig  `koanf:"episodic"`
}

// ShortTermConfig bounds the short-term tier.
type ShortTermConfig struct {
	MaxEntries int      `koanf:"max_entries"`
	TTL        Duration `koanf:"ttl"`
}

// LongTermConfig sets the long-term admission floor.
type LongTermConfig struct {
	MinImportance float64 `koanf:"min_importance"`
}

// EpisodicConfig bounds the episodic tier.
type EpisodicConfig struct {
	MaxEpisodes int `koanf:"max_episodes"`
}

// OrchestratorConfig tunes the control loop.
type OrchestratorConfig struct {
	// MaxRetries is the default retry budget for new tasks.
	MaxRetries int `koanf:"max_retries"`

	// QualityThreshold is the critique pass score in [0,10].
	QualityThreshold float64 `koanf:"quality_threshold"`

	// BackoffUnit scales the exponential retry backoff (2^attempt units).
	BackoffUnit Duration `koanf:"backoff_unit"`
}

// ToolsConfig bounds tool execution.
type ToolsConfig struct {
	// Timeout bounds a single tool invocation.
	Timeout Duration `koanf:"timeout"`

	// AllowUnsafe permits tools that modify system state.
	AllowUnsafe bool `koanf:"allow_unsafe"`

	// AllowedPaths restricts the file tools to the given roots. Empty
	// means unrestricted.
	AllowedPaths []string `koanf:"allowed_paths"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// EventsConfig configures the NATS task lifecycle publisher.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "agentd"
	}
	if c.Observability.Protocol == "" {
		c.Observability.Protocol = "grpc"
	}
	if c.Observability.SampleRate == 0 {
		c.Observability.SampleRate = 1.0
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = Duration(60 * time.Second)
	}
	if c.LLM.RateLimit == 0 {
		c.LLM.RateLimit = 2
	}
	if c.LLM.Burst == 0 {
		c.LLM.Burst = 4
	}
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "fastembed"
	}
	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Path == "" {
		c.VectorStore.Path = "~/.config/agentd/vectorstore"
	}
	if c.VectorStore.VectorSize == 0 {
		c.VectorStore.VectorSize = 384
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.Memory.PersistDir == "" {
		c.Memory.PersistDir = "~/.config/agentd/memory"
	}
	if c.Memory.ShortTerm.MaxEntries == 0 {
		c.Memory.ShortTerm.MaxEntries = 100
	}
	if c.Memory.ShortTerm.TTL == 0 {
		c.Memory.ShortTerm.TTL = Duration(time.Hour)
	}
	if c.Memory.LongTerm.MinImportance == 0 {
		c.Memory.LongTerm.MinImportance = 0.3
	}
	if c.Memory.Episodic.MaxEpisodes == 0 {
		c.Memory.Episodic.MaxEpisodes = 1000
	}
	if c.Orchestrator.MaxRetries == 0 {
		c.Orchestrator.MaxRetries = 3
	}
	if c.Orchestrator.QualityThreshold == 0 {
		c.Orchestrator.QualityThreshold = 7.0
	}
	if c.Orchestrator.BackoffUnit == 0 {
		c.Orchestrator.BackoffUnit = Duration(time.Second)
	}
	if c.Tools.Timeout == 0 {
		c.Tools.Timeout = Duration(30 * time.Second)
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8420
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "agentd.tasks"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console: %q", c.Logging.Format)
	}
	switch c.Observability.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("observability.protocol must be grpc or http: %q", c.Observability.Protocol)
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("observability.sample_rate must be in [0,1]: %v", c.Observability.SampleRate)
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be anthropic or openai: %q", c.LLM.Provider)
	}
	switch c.Embeddings.Provider {
	case "fastembed", "openai":
	default:
		return fmt.Errorf("embeddings.provider must be fastembed or openai: %q", c.Embeddings.Provider)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore.provider must be chromem or qdrant: %q", c.VectorStore.Provider)
	}
	if c.VectorStore.VectorSize <= 0 {
		return fmt.Errorf("vectorstore.vector_size must be positive: %d", c.VectorStore.VectorSize)
	}
	if c.Memory.ShortTerm.MaxEntries <= 0 {
		return fmt.Errorf("memory.short_term.max_entries must be positive: %d", c.Memory.ShortTerm.MaxEntries)
	}
	if c.Memory.LongTerm.MinImportance < 0 || c.Memory.LongTerm.MinImportance > 1 {
		return fmt.Errorf("memory.long_term.min_importance must be in [0,1]: %v", c.Memory.LongTerm.MinImportance)
	}
	if c.Memory.Episodic.MaxEpisodes <= 0 {
		return fmt.Errorf("memory.episodic.max_episodes must be positive: %d", c.Memory.Episodic.MaxEpisodes)
	}
	if c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("orchestrator.max_retries cannot be negative: %d", c.Orchestrator.MaxRetries)
	}
	if c.Orchestrator.QualityThreshold < 0 || c.Orchestrator.QualityThreshold > 10 {
		return fmt.Errorf("orchestrator.quality_threshold must be in [0,10]: %v", c.Orchestrator.QualityThreshold)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
