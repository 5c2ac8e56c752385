package memory

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentd/internal/vectorstore"
)

// fakeStore is an in-memory vectorstore.Store that ranks by substring
// match, so retrieval behavior is deterministic without embeddings.
type fakeStore struct {
	mu          sync.Mutex
	collections map[string]map[string]vectorstore.Document
	persisted   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: make(map[string]map[string]vectorstore.Document)}
}

func (f *fakeStore) AddDocuments(ctx context.Context, collection string, docs []vectorstore.Document) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	col, ok := f.collections[collection]
	if !ok {
		col = make(map[string]vectorstore.Document)
		f.collections[collection] = col
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		col[d.ID] = d
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (f *fakeStore) Search(ctx context.Context, collection, query string, k int, filters map[string]any) ([]vectorstore.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	needle := strings.ToLower(query)
	var results []vectorstore.SearchResult
	for _, d := range f.collections[collection] {
		match := true
		for key, want := range filters {
			if d.Metadata[key] != want {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if !strings.Contains(strings.ToLower(d.Content), needle) {
			continue
		}
		results = append(results, vectorstore.SearchResult{
			ID:       d.ID,
			Content:  d.Content,
			Score:    1,
			Metadata: d.Metadata,
		})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

func (f *fakeStore) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.collections[collection], id)
	}
	return nil
}

func (f *fakeStore) Count(ctx context.Context, collection string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.collections[collection]), nil
}

func (f *fakeStore) Persist(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted++
	return nil
}

func (f *fakeStore) Close() error { return nil }

var _ vectorstore.Store = (*fakeStore)(nil)

func TestRetrievalIndex_IndexAndSearch(t *testing.T) {
	ctx := context.Background()
	ix := NewRetrievalIndex(newFakeStore(), "test", "")

	a := NewEntry("deploy with rolling restarts", nil, TierLongTerm, 0.8)
	b := NewEntry("database backups run nightly", nil, TierLongTerm, 0.6)
	require.NoError(t, ix.Index(ctx, a, b))
	assert.Equal(t, 2, ix.Len())

	scored, err := ix.Search(ctx, "rolling restarts", 5, nil)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, a.ID, scored[0].Entry.ID)
}

func TestRetrievalIndex_RemoveHidesStaleVectors(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	ix := NewRetrievalIndex(store, "test", "")

	entry := NewEntry("stale vector victim", nil, TierLongTerm, 0.8)
	require.NoError(t, ix.Index(ctx, entry))

	// Simulate a backend that cannot delete: re-add the document after
	// removal so only the mapping forgets it.
	assert.True(t, ix.Remove(ctx, entry.ID))
	_, err := store.AddDocuments(ctx, "test", []vectorstore.Document{{
		ID: entry.ID, Content: entry.Content,
		Metadata: map[string]any{"entry_id": entry.ID},
	}})
	require.NoError(t, err)

	scored, err := ix.Search(ctx, "stale vector", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, scored)

	assert.False(t, ix.Remove(ctx, entry.ID))
}

func TestRetrievalIndex_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")
	store := newFakeStore()

	ix := NewRetrievalIndex(store, "test", path)
	a := NewEntry("first", map[string]any{"k": "v"}, TierLongTerm, 0.7)
	b := NewEntry("second", nil, TierLongTerm, 0.4)
	require.NoError(t, ix.Index(ctx, a, b))
	require.NoError(t, ix.Save(ctx))
	assert.Equal(t, 1, store.persisted)

	fresh := NewRetrievalIndex(store, "test", path)
	require.NoError(t, fresh.Load())
	assert.Equal(t, 2, fresh.Len())

	got, ok := fresh.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "first", got.Content)
	assert.Equal(t, 0.7, got.Importance)
}

func TestRetrievalIndex_LoadMissingIsNoop(t *testing.T) {
	ix := NewRetrievalIndex(newFakeStore(), "test", filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, ix.Load())
	assert.Equal(t, 0, ix.Len())
}
