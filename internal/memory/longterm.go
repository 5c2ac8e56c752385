package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultMinImportance is the long-term admission floor.
const DefaultMinImportance = 0.3

// LongTerm is the persistent knowledge tier. Admission requires
// importance at or above the floor; retrieval ranks by similarity
// through the retrieval index.
type LongTerm struct {
	mu            sync.Mutex
	minImportance float64
	index         *RetrievalIndex
	logger        *zap.Logger
}

// NewLongTerm creates a long-term store over the given index. A
// non-positive floor selects the default (0.3).
func NewLongTerm(index *RetrievalIndex, minImportance float64, logger *zap.Logger) *LongTerm {
	if minImportance <= 0 {
		minImportance = DefaultMinImportance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LongTerm{
		minImportance: minImportance,
		index:         index,
		logger:        logger.Named("memory.longterm"),
	}
}

// Store inserts an entry when importance meets the floor; otherwise it
// is a no-op returning an empty id.
func (l *LongTerm) Store(ctx context.Context, content string, metadata map[string]any, importance float64) (string, error) {
	if importance < l.minImportance {
		return "", nil
	}

	entry := NewEntry(content, metadata, TierLongTerm, importance)
	if err := l.index.Index(ctx, entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// BatchStore inserts several entries at once, skipping those below the
// floor. Returned ids correspond to the admitted entries in order.
func (l *LongTerm) BatchStore(ctx context.Context, contents []string, metadata []map[string]any, importance []float64) ([]string, error) {
	entries := make([]*Entry, 0, len(contents))
	for i, content := range contents {
		imp := 0.5
		if i < len(importance) {
			imp = importance[i]
		}
		if imp < l.minImportance {
			continue
		}
		var md map[string]any
		if i < len(metadata) {
			md = metadata[i]
		}
		entries = append(entries, NewEntry(content, md, TierLongTerm, imp))
	}
	if len(entries) == 0 {
		return nil, nil
	}

	if err := l.index.Index(ctx, entries...); err != nil {
		return nil, err
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids, nil
}

// Retrieve ranks entries by similarity to the query. Hits count as
// accessed.
func (l *LongTerm) Retrieve(ctx context.Context, query string, topK int, filters map[string]any) ([]*Entry, error) {
	scored, err := l.index.Search(ctx, query, topK, filters)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]*Entry, 0, len(scored))
	for _, s := range scored {
		s.Entry.touch()
		entries = append(entries, s.Entry)
	}
	return entries, nil
}

// Update applies field changes; a content change is re-indexed.
func (l *LongTerm) Update(ctx context.Context, id string, update Update) bool {
	entry, ok := l.index.Get(id)
	if !ok {
		return false
	}

	l.mu.Lock()
	applyUpdate(entry, update)
	l.mu.Unlock()

	if update.Content != nil {
		if err := l.index.Index(ctx, entry); err != nil {
			l.logger.Warn("failed to re-index updated entry",
				zap.String("id", id),
				zap.Error(err))
		}
	}
	return true
}

// Delete removes an entry from the tier and, best-effort, the index.
func (l *LongTerm) Delete(ctx context.Context, id string) bool {
	return l.index.Remove(ctx, id)
}

// Consolidate deletes entries below the importance floor that were
// accessed fewer than two times, then persists the index. Returns the
// number deleted.
func (l *LongTerm) Consolidate(ctx context.Context) (int, error) {
	var victims []string
	for _, entry := range l.index.All() {
		if entry.Importance < l.minImportance && entry.AccessCount < 2 {
			victims = append(victims, entry.ID)
		}
	}
	for _, id := range victims {
		l.index.Remove(ctx, id)
	}

	if err := l.index.Save(ctx); err != nil {
		return len(victims), err
	}
	return len(victims), nil
}

// Get returns the entry by id without counting an access.
func (l *LongTerm) Get(id string) (*Entry, bool) {
	return l.index.Get(id)
}

// Len returns the current entry count.
func (l *LongTerm) Len() int {
	return l.index.Len()
}

// Stats summarizes the tier.
func (l *LongTerm) Stats() Stats {
	entries := l.index.All()
	byID := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	return statsFor(TierLongTerm, byID)
}

// Save persists the index mapping and vectors.
func (l *LongTerm) Save(ctx context.Context) error {
	return l.index.Save(ctx)
}

// Load restores the index mapping. Missing snapshot is a no-op.
func (l *LongTerm) Load(ctx context.Context) error {
	return l.index.Load()
}

var _ TierStore = (*LongTerm)(nil)
