package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSemantic(t *testing.T, indexPath, graphPath string) *Semantic {
	t.Helper()
	return NewSemantic(NewRetrievalIndex(newFakeStore(), "semantic", indexPath), graphPath, nil)
}

func TestSemantic_StoreFactImportanceIsConfidence(t *testing.T) {
	ctx := context.Background()
	s := newTestSemantic(t, "", "")

	id, err := s.StoreFact(ctx, "Go maps are not safe for concurrent writes", "golang", "docs", 0.95)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entry, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, 0.95, entry.Importance)
	assert.Equal(t, 0.95, entry.Metadata["confidence"])
	assert.Equal(t, "fact", entry.Metadata["type"])

	// Below the admission floor: no-op.
	id, err = s.StoreFact(ctx, "questionable claim about something", "golang", "", 0.1)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, 1, s.Len())
}

func TestSemantic_StoreConcept(t *testing.T) {
	ctx := context.Background()
	s := newTestSemantic(t, "", "")

	id, err := s.StoreConcept(ctx, "backpressure", "slowing producers to match consumer capacity",
		[]string{"flow control", "rate limiting"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entry, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, 0.7, entry.Importance)
	assert.True(t, strings.HasPrefix(entry.Content, "Concept: backpressure"))

	assert.Equal(t, []string{"flow control", "rate limiting"}, s.RelatedConcepts("backpressure"))
	assert.Empty(t, s.RelatedConcepts("unknown"))
}

func TestSemantic_LearnFromText(t *testing.T) {
	ctx := context.Background()
	s := newTestSemantic(t, "", "")

	text := "Short. The scheduler assigns goroutines to OS threads dynamically. " +
		"Channels synchronize goroutines through message passing. Tiny bit."
	ids, err := s.LearnFromText(ctx, text, "golang", "notes")
	require.NoError(t, err)
	// Fragments at or under 20 chars are skipped.
	assert.Len(t, ids, 2)

	for _, id := range ids {
		entry, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, 0.7, entry.Importance)
		assert.Equal(t, "golang", entry.Metadata["category"])
	}
}

func TestSemantic_LearnFromTextCapsFacts(t *testing.T) {
	ctx := context.Background()
	s := newTestSemantic(t, "", "")

	var b strings.Builder
	for i := 0; i < 15; i++ {
		b.WriteString("this sentence is comfortably long enough to store. ")
	}
	ids, err := s.LearnFromText(ctx, b.String(), "filler", "")
	require.NoError(t, err)
	assert.Len(t, ids, 10)
}

func TestSemantic_ConsolidateDropsLowConfidence(t *testing.T) {
	ctx := context.Background()
	s := newTestSemantic(t, "", "")

	doomed, err := s.StoreFact(ctx, "this claim was later disputed", "history", "", 0.5)
	require.NoError(t, err)
	low := map[string]any{"confidence": 0.2}
	require.True(t, s.Update(ctx, doomed, Update{Metadata: low}))

	kept, err := s.StoreFact(ctx, "this claim held up", "history", "", 0.8)
	require.NoError(t, err)

	removed, err := s.Consolidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := s.Get(doomed)
	assert.False(t, ok)
	_, ok = s.Get(kept)
	assert.True(t, ok)
}

func TestSemantic_RetrieveByCategory(t *testing.T) {
	ctx := context.Background()
	s := newTestSemantic(t, "", "")

	_, err := s.StoreFact(ctx, "fact about networking stacks", "networking", "", 0.8)
	require.NoError(t, err)
	_, err = s.StoreFact(ctx, "fact about networking protocols", "protocols", "", 0.8)
	require.NoError(t, err)

	results, err := s.RetrieveByCategory(ctx, "networking", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "networking", results[0].Metadata["category"])
}

func TestSemantic_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newFakeStore()
	indexPath := filepath.Join(dir, "semantic.json")
	graphPath := filepath.Join(dir, "semantic_graph.json")

	s := NewSemantic(NewRetrievalIndex(store, "semantic", indexPath), graphPath, nil)
	id, err := s.StoreConcept(ctx, "idempotency", "same effect when applied twice", []string{"retries"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx))

	fresh := NewSemantic(NewRetrievalIndex(store, "semantic", indexPath), graphPath, nil)
	require.NoError(t, fresh.Load(ctx))

	entry, ok := fresh.Get(id)
	require.True(t, ok)
	assert.Contains(t, entry.Content, "idempotency")
	assert.Equal(t, []string{"retries"}, fresh.RelatedConcepts("idempotency"))
}
