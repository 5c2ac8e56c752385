package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortTerm_StoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	s := NewShortTerm(10, time.Hour, "")

	id, err := s.Store(ctx, "The deploy failed on staging", nil, 0.6)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = s.Store(ctx, "Lunch order placed", nil, 0.1)
	require.NoError(t, err)

	// Substring match is case-insensitive.
	results, err := s.Retrieve(ctx, "DEPLOY", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.Equal(t, 1, results[0].AccessCount)
}

func TestShortTerm_RetrieveFilters(t *testing.T) {
	ctx := context.Background()
	s := NewShortTerm(10, time.Hour, "")

	_, err := s.Store(ctx, "note one", map[string]any{"topic": "ops"}, 0.5)
	require.NoError(t, err)
	_, err = s.Store(ctx, "note two", map[string]any{"topic": "dev"}, 0.5)
	require.NoError(t, err)

	results, err := s.Retrieve(ctx, "note", 5, map[string]any{"topic": "ops"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "note one", results[0].Content)
}

func TestShortTerm_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewShortTerm(10, 50*time.Millisecond, "")

	_, err := s.Store(ctx, "ephemeral note", nil, 0.5)
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	results, err := s.Retrieve(ctx, "ephemeral", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, s.Len())
}

func TestShortTerm_EvictsLeastRecentlyAccessed(t *testing.T) {
	ctx := context.Background()
	s := NewShortTerm(3, time.Hour, "")

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Store(ctx, fmt.Sprintf("entry number %d", i), nil, 0.5)
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(time.Millisecond)
	}

	// Touch the oldest two so entry 2 becomes least recently accessed.
	_, err := s.Retrieve(ctx, "entry number 0", 1, nil)
	require.NoError(t, err)
	_, err = s.Retrieve(ctx, "entry number 1", 1, nil)
	require.NoError(t, err)

	_, err = s.Store(ctx, "entry number 3", nil, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	_, evicted := s.Get(ids[2])
	assert.False(t, evicted)
	_, kept := s.Get(ids[0])
	assert.True(t, kept)
}

func TestShortTerm_ConsolidateCountsCandidates(t *testing.T) {
	ctx := context.Background()
	s := NewShortTerm(10, time.Hour, "")

	_, err := s.Store(ctx, "important finding", nil, 0.9)
	require.NoError(t, err)
	_, err = s.Store(ctx, "trivial note", nil, 0.2)
	require.NoError(t, err)

	hot, err := s.Store(ctx, "frequently used", nil, 0.2)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err = s.Retrieve(ctx, "frequently used", 1, nil)
		require.NoError(t, err)
	}
	_ = hot

	count, err := s.Consolidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	// Counting does not remove anything.
	assert.Equal(t, 3, s.Len())
}

func TestShortTerm_GetRecent(t *testing.T) {
	ctx := context.Background()
	s := NewShortTerm(10, time.Hour, "")

	for i := 0; i < 5; i++ {
		_, err := s.Store(ctx, fmt.Sprintf("note %d", i), nil, 0.5)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	recent := s.GetRecent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "note 4", recent[0].Content)
	assert.Equal(t, "note 2", recent[2].Content)
}

func TestShortTerm_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewShortTerm(10, time.Hour, "")

	id, err := s.Store(ctx, "original", nil, 0.5)
	require.NoError(t, err)

	content := "revised"
	importance := 1.7 // clamped
	ok := s.Update(ctx, id, Update{Content: &content, Importance: &importance})
	require.True(t, ok)

	entry, found := s.Get(id)
	require.True(t, found)
	assert.Equal(t, "revised", entry.Content)
	assert.Equal(t, 1.0, entry.Importance)

	assert.True(t, s.Delete(ctx, id))
	assert.False(t, s.Delete(ctx, id))
	assert.False(t, s.Update(ctx, id, Update{}))
}

func TestShortTerm_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "short_term.json")

	s := NewShortTerm(10, time.Hour, path)
	id, err := s.Store(ctx, "persisted note", map[string]any{"k": "v"}, 0.6)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx))

	fresh := NewShortTerm(10, time.Hour, path)
	require.NoError(t, fresh.Load(ctx))

	entry, ok := fresh.Get(id)
	require.True(t, ok)
	assert.Equal(t, "persisted note", entry.Content)
	assert.Equal(t, 0.6, entry.Importance)
}
