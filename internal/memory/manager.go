package memory

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/task"
	"github.com/fyrsmithlabs/agentd/internal/vectorstore"
)

var managerTracer = otel.Tracer("agentd.memory")

// contextClip bounds each entry quoted in a task context block.
const contextClip = 200

// Manager coordinates the four memory tiers: it routes store/recall
// requests, composes task context, promotes entries between tiers, and
// runs consolidation.
type Manager struct {
	ShortTerm *ShortTerm
	LongTerm  *LongTerm
	Episodic  *Episodic
	Semantic  *Semantic

	logger *zap.Logger
}

// NewManager builds the tier stores over the given vector store.
// Long-term and semantic tiers index into separate collections;
// snapshots live under cfg.PersistDir.
func NewManager(cfg config.MemoryConfig, store vectorstore.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	persistDir := cfg.PersistDir
	pathFor := func(name string) string {
		if persistDir == "" {
			return ""
		}
		return filepath.Join(persistDir, name)
	}

	longTermIndex := NewRetrievalIndex(store, "long_term", pathFor("long_term.json"))
	semanticIndex := NewRetrievalIndex(store, "semantic", pathFor("semantic.json"))

	return &Manager{
		ShortTerm: NewShortTerm(cfg.ShortTerm.MaxEntries, time.Duration(cfg.ShortTerm.TTL), ""),
		LongTerm:  NewLongTerm(longTermIndex, cfg.LongTerm.MinImportance, logger),
		Episodic:  NewEpisodic(cfg.Episodic.MaxEpisodes, pathFor("episodic.json")),
		Semantic:  NewSemantic(semanticIndex, pathFor("semantic_graph.json"), logger),
		logger:    logger.Named("memory"),
	}
}

// tier maps a tier name to its store, defaulting to short-term for
// unrecognized names.
func (m *Manager) tier(name Tier) TierStore {
	switch name {
	case TierLongTerm:
		return m.LongTerm
	case TierEpisodic:
		return m.Episodic
	case TierSemantic:
		return m.Semantic
	default:
		return m.ShortTerm
	}
}

// Remember stores content in the named tier.
func (m *Manager) Remember(ctx context.Context, content string, tier Tier, metadata map[string]any, importance float64) (string, error) {
	ctx, span := managerTracer.Start(ctx, "memory.Remember")
	defer span.End()
	span.SetAttributes(attribute.String("memory.tier", string(tier)))

	id, err := m.tier(tier).Store(ctx, content, metadata, importance)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return id, nil
}

// Recall queries the requested tiers independently and returns per-tier
// results with no cross-tier re-ranking. A nil tier list queries all
// four.
func (m *Manager) Recall(ctx context.Context, query string, tiers []Tier, topK int) (map[Tier][]*Entry, error) {
	ctx, span := managerTracer.Start(ctx, "memory.Recall")
	defer span.End()

	if len(tiers) == 0 {
		tiers = []Tier{TierShortTerm, TierLongTerm, TierEpisodic, TierSemantic}
	}
	if topK <= 0 {
		topK = 5
	}

	results := make(map[Tier][]*Entry, len(tiers))
	for _, t := range tiers {
		entries, err := m.tier(t).Retrieve(ctx, query, topK, nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		results[t] = entries
	}
	return results, nil
}

// RememberTaskExecution records a completed task run in episodic
// memory.
func (m *Manager) RememberTaskExecution(ctx context.Context, t *task.Task, trace *task.Trace, outcome, lessons string) (string, error) {
	return m.Episodic.StoreTaskExecution(ctx, t, trace, outcome, lessons)
}

// LearnFact records a fact in semantic memory with importance equal to
// confidence.
func (m *Manager) LearnFact(ctx context.Context, fact, category, source string, confidence float64) (string, error) {
	return m.Semantic.StoreFact(ctx, fact, category, source, confidence)
}

// PromoteToLongTerm copies a short-term entry into long-term memory,
// optionally overriding its importance. Promotion is additive: the
// short-term original is retained and ages out on its own TTL.
func (m *Manager) PromoteToLongTerm(ctx context.Context, id string, importance *float64) (string, error) {
	entry, ok := m.ShortTerm.Get(id)
	if !ok {
		return "", ErrNotFound
	}

	newImportance := entry.Importance
	if importance != nil {
		newImportance = *importance
	}
	return m.LongTerm.Store(ctx, entry.Content, entry.Metadata, newImportance)
}

// ConsolidateAll runs each tier's consolidation, returning changed
// counts per tier.
func (m *Manager) ConsolidateAll(ctx context.Context) (map[Tier]int, error) {
	ctx, span := managerTracer.Start(ctx, "memory.ConsolidateAll")
	defer span.End()

	results := make(map[Tier]int, 4)
	for _, t := range []Tier{TierShortTerm, TierLongTerm, TierEpisodic, TierSemantic} {
		n, err := m.tier(t).Consolidate(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return results, err
		}
		results[t] = n
		m.logger.Debug("tier consolidated",
			zap.String("tier", string(t)),
			zap.Int("changed", n))
	}
	return results, nil
}

// GetContextForTask composes a bounded context block for a task: the
// three most recent short-term entries, the top three long-term matches
// for the description, and up to three similar past episodes (outcome
// only). Sections are omitted when empty.
func (m *Manager) GetContextForTask(ctx context.Context, t *task.Task) string {
	ctx, span := managerTracer.Start(ctx, "memory.GetContextForTask")
	defer span.End()

	recent := m.ShortTerm.GetRecent(3)

	knowledge, err := m.LongTerm.Retrieve(ctx, t.Description, 3, nil)
	if err != nil {
		m.logger.Warn("long-term retrieval failed during context composition", zap.Error(err))
	}

	similar, err := m.Episodic.SimilarPastTasks(ctx, t.Description, 3)
	if err != nil {
		m.logger.Warn("episodic lookup failed during context composition", zap.Error(err))
	}

	var parts []string
	if len(recent) > 0 {
		parts = append(parts, "## Recent Context")
		for _, entry := range recent {
			parts = append(parts, "- "+clip(entry.Content, contextClip))
		}
	}
	if len(knowledge) > 0 {
		parts = append(parts, "\n## Relevant Knowledge")
		for _, entry := range knowledge {
			parts = append(parts, "- "+clip(entry.Content, contextClip))
		}
	}
	if len(similar) > 0 {
		parts = append(parts, "\n## Similar Past Tasks")
		for _, episode := range similar {
			parts = append(parts, "- Outcome: "+episode.Outcome)
		}
	}
	return strings.Join(parts, "\n")
}

// Stats summarizes every tier.
func (m *Manager) Stats() map[Tier]Stats {
	return map[Tier]Stats{
		TierShortTerm: m.ShortTerm.Stats(),
		TierLongTerm:  m.LongTerm.Stats(),
		TierEpisodic:  m.Episodic.Stats(),
		TierSemantic:  m.Semantic.Stats(),
	}
}

// SaveAll persists every tier.
func (m *Manager) SaveAll(ctx context.Context) error {
	for _, t := range []TierStore{m.ShortTerm, m.LongTerm, m.Episodic, m.Semantic} {
		if err := t.Save(ctx); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll restores every tier; missing snapshots are no-ops.
func (m *Manager) LoadAll(ctx context.Context) error {
	for _, t := range []TierStore{m.ShortTerm, m.LongTerm, m.Episodic, m.Semantic} {
		if err := t.Load(ctx); err != nil {
			return err
		}
	}
	return nil
}
