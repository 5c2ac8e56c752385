package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors for memory operations.
var (
	// ErrNotFound is returned when an entry id is unknown to a tier.
	ErrNotFound = errors.New("memory entry not found")
)

// Tier names a memory category with its own retention policy.
type Tier string

const (
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
	TierEpisodic  Tier = "episodic"
	TierSemantic  Tier = "semantic"
)

// Entry is one timestamped, importance-scored memory record. Entries
// are exclusively owned by their tier store; callers receive copies or
// must treat results as read-only.
type Entry struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Tier         Tier           `json:"tier"`
	Importance   float64        `json:"importance"`
	AccessCount  int            `json:"access_count"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
}

// NewEntry creates an entry with importance clamped into [0,1].
func NewEntry(content string, metadata map[string]any, tier Tier, importance float64) *Entry {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Entry{
		ID:           uuid.NewString(),
		Content:      content,
		Metadata:     metadata,
		Tier:         tier,
		Importance:   clampImportance(importance),
		CreatedAt:    now,
		LastAccessed: now,
	}
}

// touch records one access.
func (e *Entry) touch() {
	e.AccessCount++
	e.LastAccessed = time.Now().UTC()
}

// Update carries optional field changes for TierStore.Update.
type Update struct {
	Content    *string
	Importance *float64
	Metadata   map[string]any
}

// Stats summarizes one tier's contents.
type Stats struct {
	Tier              Tier    `json:"tier"`
	Entries           int     `json:"entries"`
	TotalSize         int     `json:"total_size"`
	AverageImportance float64 `json:"average_importance"`
}

// TierStore is the per-tier contract: insertion, relevance-ordered
// lookup, field updates, deletion, and tier-specific consolidation.
type TierStore interface {
	// Store inserts an entry and returns its id. Tiers with an
	// importance admission floor return an empty id (and nil error)
	// when the entry is rejected.
	Store(ctx context.Context, content string, metadata map[string]any, importance float64) (string, error)

	// Retrieve returns up to topK entries relevant to query, most
	// relevant first. filters are exact metadata matches.
	Retrieve(ctx context.Context, query string, topK int, filters map[string]any) ([]*Entry, error)

	// Update applies the given field changes, reporting success.
	Update(ctx context.Context, id string, update Update) bool

	// Delete removes the entry, reporting whether it existed.
	Delete(ctx context.Context, id string) bool

	// Consolidate applies the tier's retention policy and returns the
	// number of entries removed or flagged.
	Consolidate(ctx context.Context) (int, error)

	// Get returns the entry by id without counting an access.
	Get(id string) (*Entry, bool)

	// Stats summarizes the tier.
	Stats() Stats

	// Save and Load round-trip the tier to durable storage; Load on a
	// missing snapshot is a no-op.
	Save(ctx context.Context) error
	Load(ctx context.Context) error
}

func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clip caps s at n bytes for context composition.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// statsFor computes summary statistics over a tier's entries.
func statsFor(tier Tier, entries map[string]*Entry) Stats {
	s := Stats{Tier: tier, Entries: len(entries)}
	if len(entries) == 0 {
		return s
	}
	var total float64
	for _, e := range entries {
		s.TotalSize += len(e.Content)
		total += e.Importance
	}
	s.AverageImportance = total / float64(len(entries))
	return s
}
