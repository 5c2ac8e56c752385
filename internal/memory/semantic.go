package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Semantic retention defaults.
const (
	// defaultConceptImportance weights concept definitions.
	defaultConceptImportance = 0.7

	// minFactConfidence is the consolidation floor for stored facts.
	minFactConfidence = 0.3

	// maxFactsPerText caps fact extraction from one text.
	maxFactsPerText = 10

	// minSentenceLength skips fragments during fact extraction.
	minSentenceLength = 20
)

// Semantic is the factual-knowledge tier: facts, concept definitions,
// and a concept relationship graph, ranked by similarity through the
// retrieval index.
type Semantic struct {
	mu            sync.Mutex
	minImportance float64
	index         *RetrievalIndex
	graph         map[string][]string // concept -> related concepts
	graphPath     string
	logger        *zap.Logger
}

// NewSemantic creates a semantic store over the given index. graphPath
// is the concept graph snapshot location, or empty for no persistence.
func NewSemantic(index *RetrievalIndex, graphPath string, logger *zap.Logger) *Semantic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Semantic{
		minImportance: DefaultMinImportance,
		index:         index,
		graph:         make(map[string][]string),
		graphPath:     graphPath,
		logger:        logger.Named("memory.semantic"),
	}
}

// Store inserts an entry when importance meets the floor; otherwise it
// is a no-op returning an empty id.
func (s *Semantic) Store(ctx context.Context, content string, metadata map[string]any, importance float64) (string, error) {
	if importance < s.minImportance {
		return "", nil
	}

	entry := NewEntry(content, metadata, TierSemantic, importance)
	if err := s.index.Index(ctx, entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// StoreFact records a factual statement. Importance equals confidence,
// so low-confidence facts age out at consolidation.
func (s *Semantic) StoreFact(ctx context.Context, fact, category, source string, confidence float64) (string, error) {
	metadata := map[string]any{
		"category":   category,
		"confidence": confidence,
		"type":       "fact",
	}
	if source != "" {
		metadata["source"] = source
	}
	return s.Store(ctx, fact, metadata, confidence)
}

// StoreConcept records a concept definition and links it to related
// concepts in the graph.
func (s *Semantic) StoreConcept(ctx context.Context, concept, definition string, related []string) (string, error) {
	content := fmt.Sprintf("Concept: %s\n\nDefinition: %s", concept, definition)
	metadata := map[string]any{
		"concept": concept,
		"type":    "concept",
	}

	id, err := s.Store(ctx, content, metadata, defaultConceptImportance)
	if err != nil {
		return "", err
	}

	if len(related) > 0 {
		s.mu.Lock()
		s.graph[concept] = related
		s.mu.Unlock()
	}
	return id, nil
}

// LearnFromText splits the text into sentences and stores each
// substantial one as a fact with confidence 0.7, capped at ten facts.
func (s *Semantic) LearnFromText(ctx context.Context, text, category, source string) ([]string, error) {
	var ids []string
	for _, sentence := range strings.Split(text, ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) <= minSentenceLength {
			continue
		}
		id, err := s.StoreFact(ctx, sentence, category, source, 0.7)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
		if len(ids) >= maxFactsPerText {
			break
		}
	}
	return ids, nil
}

// Retrieve ranks entries by similarity to the query.
func (s *Semantic) Retrieve(ctx context.Context, query string, topK int, filters map[string]any) ([]*Entry, error) {
	scored, err := s.index.Search(ctx, query, topK, filters)
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(scored))
	for _, sc := range scored {
		entries = append(entries, sc.Entry)
	}
	return entries, nil
}

// RetrieveByCategory returns facts in the given category.
func (s *Semantic) RetrieveByCategory(ctx context.Context, category string, limit int) ([]*Entry, error) {
	return s.Retrieve(ctx, category, limit, map[string]any{"category": category})
}

// RelatedConcepts returns the concepts linked to the given one.
func (s *Semantic) RelatedConcepts(concept string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph[concept]
}

// Update applies field changes; a content change is re-indexed.
func (s *Semantic) Update(ctx context.Context, id string, update Update) bool {
	entry, ok := s.index.Get(id)
	if !ok {
		return false
	}

	s.mu.Lock()
	applyUpdate(entry, update)
	s.mu.Unlock()

	if update.Content != nil {
		if err := s.index.Index(ctx, entry); err != nil {
			s.logger.Warn("failed to re-index updated entry",
				zap.String("id", id),
				zap.Error(err))
		}
	}
	return true
}

// Delete removes an entry from the tier and, best-effort, the index.
func (s *Semantic) Delete(ctx context.Context, id string) bool {
	return s.index.Remove(ctx, id)
}

// Consolidate deletes facts whose recorded confidence fell below the
// floor, then persists the index. Returns the number deleted.
func (s *Semantic) Consolidate(ctx context.Context) (int, error) {
	var victims []string
	for _, entry := range s.index.All() {
		confidence, ok := entry.Metadata["confidence"].(float64)
		if ok && confidence < minFactConfidence {
			victims = append(victims, entry.ID)
		}
	}
	for _, id := range victims {
		s.index.Remove(ctx, id)
	}

	if err := s.index.Save(ctx); err != nil {
		return len(victims), err
	}
	return len(victims), nil
}

// Get returns the entry by id without counting an access.
func (s *Semantic) Get(id string) (*Entry, bool) {
	return s.index.Get(id)
}

// Len returns the current entry count.
func (s *Semantic) Len() int {
	return s.index.Len()
}

// Stats summarizes the tier.
func (s *Semantic) Stats() Stats {
	entries := s.index.All()
	byID := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	return statsFor(TierSemantic, byID)
}

// Save persists the index and the concept graph.
func (s *Semantic) Save(ctx context.Context) error {
	if err := s.index.Save(ctx); err != nil {
		return err
	}
	if s.graphPath == "" {
		return nil
	}

	s.mu.Lock()
	data, err := json.Marshal(s.graph)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal concept graph: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.graphPath), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return os.WriteFile(s.graphPath, data, 0o644)
}

// Load restores the index and the concept graph. Missing snapshots are
// no-ops.
func (s *Semantic) Load(ctx context.Context) error {
	if err := s.index.Load(); err != nil {
		return err
	}
	if s.graphPath == "" {
		return nil
	}

	data, err := os.ReadFile(s.graphPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read concept graph: %w", err)
	}

	graph := make(map[string][]string)
	if err := json.Unmarshal(data, &graph); err != nil {
		return fmt.Errorf("failed to parse concept graph: %w", err)
	}

	s.mu.Lock()
	s.graph = graph
	s.mu.Unlock()
	return nil
}

var _ TierStore = (*Semantic)(nil)
