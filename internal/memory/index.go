package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fyrsmithlabs/agentd/internal/vectorstore"
)

// Scored pairs an entry with its similarity score.
type Scored struct {
	Entry *Entry
	Score float32
}

// RetrievalIndex ranks entries by similarity against one vector store
// collection, keeping an id-to-entry mapping alongside the vectors.
//
// Deletion is best-effort: the mapping is authoritative for entry
// validity, and a stale vector whose id is no longer mapped is dropped
// from search results. Save/Load round-trip the mapping as JSON; the
// vector side persists through the backing store.
type RetrievalIndex struct {
	mu         sync.RWMutex
	store      vectorstore.Store
	collection string
	path       string // mapping snapshot; empty disables persistence
	entries    map[string]*Entry
}

// NewRetrievalIndex creates an index over the named collection. path is
// the location of the JSON mapping snapshot, or empty for no
// persistence.
func NewRetrievalIndex(store vectorstore.Store, collection, path string) *RetrievalIndex {
	return &RetrievalIndex{
		store:      store,
		collection: collection,
		path:       path,
		entries:    make(map[string]*Entry),
	}
}

// Index embeds and stores the entries, registering them in the mapping.
func (ix *RetrievalIndex) Index(ctx context.Context, entries ...*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]vectorstore.Document, 0, len(entries))
	for _, e := range entries {
		metadata := map[string]any{
			"entry_id": e.ID,
			"tier":     string(e.Tier),
		}
		for k, v := range e.Metadata {
			metadata[k] = v
		}
		docs = append(docs, vectorstore.Document{
			ID:       e.ID,
			Content:  e.Content,
			Metadata: metadata,
		})
	}

	if _, err := ix.store.AddDocuments(ctx, ix.collection, docs); err != nil {
		return fmt.Errorf("failed to index entries: %w", err)
	}

	ix.mu.Lock()
	for _, e := range entries {
		ix.entries[e.ID] = e
	}
	ix.mu.Unlock()
	return nil
}

// Search returns up to topK mapped entries ranked by similarity.
// Vectors whose entry id has been removed from the mapping are skipped.
func (ix *RetrievalIndex) Search(ctx context.Context, query string, topK int, filters map[string]any) ([]Scored, error) {
	results, err := ix.store.Search(ctx, ix.collection, query, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	scored := make([]Scored, 0, len(results))
	for _, r := range results {
		id, _ := r.Metadata["entry_id"].(string)
		if id == "" {
			id = r.ID
		}
		if entry, ok := ix.entries[id]; ok {
			scored = append(scored, Scored{Entry: entry, Score: r.Score})
		}
	}
	return scored, nil
}

// Get returns the mapped entry by id.
func (ix *RetrievalIndex) Get(id string) (*Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[id]
	return e, ok
}

// Remove drops the entry from the mapping and best-effort deletes its
// vector. It reports whether the entry was mapped.
func (ix *RetrievalIndex) Remove(ctx context.Context, id string) bool {
	ix.mu.Lock()
	_, ok := ix.entries[id]
	delete(ix.entries, id)
	ix.mu.Unlock()
	if !ok {
		return false
	}

	// Staleness in the vector side is tolerated; Search filters by the
	// mapping.
	_ = ix.store.DeleteDocuments(ctx, ix.collection, []string{id})
	return true
}

// All returns every mapped entry.
func (ix *RetrievalIndex) All() []*Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]*Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	return out
}

// Len returns the number of mapped entries.
func (ix *RetrievalIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Save writes the mapping snapshot and flushes the vector store.
func (ix *RetrievalIndex) Save(ctx context.Context) error {
	if ix.path == "" {
		return nil
	}

	ix.mu.RLock()
	data, err := json.Marshal(ix.entries)
	ix.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal index mapping: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	if err := os.WriteFile(ix.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index mapping: %w", err)
	}
	return ix.store.Persist(ctx)
}

// Load reads the mapping snapshot. A missing snapshot is a no-op.
func (ix *RetrievalIndex) Load() error {
	if ix.path == "" {
		return nil
	}

	data, err := os.ReadFile(ix.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index mapping: %w", err)
	}

	entries := make(map[string]*Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse index mapping: %w", err)
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()
	return nil
}
