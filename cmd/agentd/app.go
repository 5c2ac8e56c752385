package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/critic"
	"github.com/fyrsmithlabs/agentd/internal/embeddings"
	"github.com/fyrsmithlabs/agentd/internal/events"
	"github.com/fyrsmithlabs/agentd/internal/executor"
	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/memory"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/planner"
	"github.com/fyrsmithlabs/agentd/internal/telemetry"
	"github.com/fyrsmithlabs/agentd/internal/tools"
	"github.com/fyrsmithlabs/agentd/internal/vectorstore"
)

// app holds the wired process dependencies.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	telemetry    *telemetry.Telemetry
	embedder     embeddings.Provider
	store        vectorstore.Store
	memory       *memory.Manager
	registry     *tools.Registry
	orchestrator *orchestrator.Orchestrator
	publisher    *events.Publisher
}

// newApp loads configuration and wires every component, loading memory
// snapshots from the persist directory.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Memory.PersistDir = expandHome(cfg.Memory.PersistDir)

	logger, err := logging.New(cfg.Logging, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.Setup(ctx, cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}

	a.embedder, err = embeddings.New(cfg.Embeddings, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	a.store, err = newStore(cfg.VectorStore, a.embedder, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	a.memory = memory.NewManager(cfg.Memory, a.store, logger)
	if err := a.memory.LoadAll(ctx); err != nil {
		logger.Warn("failed to load memory snapshots", zap.Error(err))
	}

	completer, err := llm.New(cfg.LLM)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	a.registry = tools.NewRegistry()
	if err := tools.RegisterBuiltins(a.registry, cfg.Tools.AllowedPaths); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	runner := tools.NewRunner(a.registry, cfg.Tools, logger)

	var publisher orchestrator.StatusPublisher
	if cfg.Events.Enabled {
		p, err := events.Connect(cfg.Events, logger)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to connect event publisher: %w", err)
		}
		a.publisher = p
		publisher = p
	}

	a.orchestrator = orchestrator.New(
		cfg.Orchestrator,
		planner.NewBuilder(completer, logger),
		executor.New(completer, a.registry, runner, cfg.Orchestrator.BackoffUnit.Duration(), logger),
		critic.NewEvaluator(completer, cfg.Orchestrator.QualityThreshold, logger),
		a.memory,
		publisher,
		logger,
	)

	logger.Info("agentd initialized",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Bool("events", cfg.Events.Enabled),
		zap.Int("tools", a.registry.Len()))

	return a, nil
}

// Close persists memory and releases resources in reverse wiring order.
func (a *app) Close(ctx context.Context) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if a.memory != nil {
		if err := a.memory.SaveAll(saveCtx); err != nil {
			a.logger.Warn("failed to save memory snapshots", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.telemetry != nil {
		_ = a.telemetry.Shutdown(saveCtx)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// newStore creates the configured vector store backend.
func newStore(cfg config.VectorStoreConfig, embedder vectorstore.Embedder, logger *zap.Logger) (vectorstore.Store, error) {
	switch cfg.Provider {
	case "qdrant":
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			UseTLS:     cfg.Qdrant.UseTLS,
			VectorSize: cfg.VectorSize,
		}, embedder, logger)
	default:
		return vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path: cfg.Path,
		}, embedder, logger)
	}
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
