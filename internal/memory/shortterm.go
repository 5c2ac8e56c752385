package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Short-term tier defaults.
const (
	DefaultShortTermMaxEntries = 100
	DefaultShortTermTTL        = time.Hour
)

// ShortTerm is the working-memory tier: capacity bounded with
// least-recently-accessed eviction, time bounded with a TTL, matched by
// case-insensitive substring rather than similarity.
type ShortTerm struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	entries    map[string]*Entry
	order      []string // insertion order; governs retrieval order
	path       string   // snapshot location; empty disables persistence
}

// NewShortTerm creates a short-term store. Zero values select the
// defaults (100 entries, one hour TTL). path is the snapshot location,
// or empty for a purely in-memory tier.
func NewShortTerm(maxEntries int, ttl time.Duration, path string) *ShortTerm {
	if maxEntries <= 0 {
		maxEntries = DefaultShortTermMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultShortTermTTL
	}
	return &ShortTerm{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*Entry),
		path:       path,
	}
}

// Store inserts an entry, evicting the least-recently-accessed entry
// first when at capacity.
func (s *ShortTerm) Store(ctx context.Context, content string, metadata map[string]any, importance float64) (string, error) {
	entry := NewEntry(content, metadata, TierShortTerm, importance)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.maxEntries {
		s.evictLeastRecentLocked()
	}
	s.entries[entry.ID] = entry
	s.order = append(s.order, entry.ID)
	return entry.ID, nil
}

// Retrieve purges expired entries, then returns up to topK entries
// whose content contains query (case-insensitive), in insertion order.
// Matched entries count as accessed.
func (s *ShortTerm) Retrieve(ctx context.Context, query string, topK int, filters map[string]any) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()

	needle := strings.ToLower(query)
	var results []*Entry
	for _, id := range s.order {
		entry, ok := s.entries[id]
		if !ok {
			continue
		}
		if !matchesFilters(entry, filters) {
			continue
		}
		if strings.Contains(strings.ToLower(entry.Content), needle) {
			entry.touch()
			results = append(results, entry)
			if len(results) >= topK {
				break
			}
		}
	}
	return results, nil
}

// Update applies field changes to an entry.
func (s *ShortTerm) Update(ctx context.Context, id string, update Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return false
	}
	applyUpdate(entry, update)
	return true
}

// Delete removes an entry.
func (s *ShortTerm) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Consolidate purges expired entries and reports the number of
// promotion candidates: entries with importance above 0.7 or more than
// five accesses. Candidates are counted, not removed.
func (s *ShortTerm) Consolidate(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()

	candidates := 0
	for _, entry := range s.entries {
		if entry.Importance > 0.7 || entry.AccessCount > 5 {
			candidates++
		}
	}
	return candidates, nil
}

// Get returns the entry by id without counting an access.
func (s *ShortTerm) Get(id string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

// GetRecent returns up to limit unexpired entries, newest first.
func (s *ShortTerm) GetRecent(limit int) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()

	entries := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Len returns the current entry count.
func (s *ShortTerm) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats summarizes the tier.
func (s *ShortTerm) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statsFor(TierShortTerm, s.entries)
}

// Save writes the tier snapshot. No-op without a path.
func (s *ShortTerm) Save(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	snapshot := shortTermSnapshot{Entries: s.entries, Order: s.order}
	data, err := json.Marshal(snapshot)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal short-term snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Load reads the tier snapshot. A missing snapshot is a no-op.
func (s *ShortTerm) Load(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read short-term snapshot: %w", err)
	}

	var snapshot shortTermSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to parse short-term snapshot: %w", err)
	}

	s.mu.Lock()
	s.entries = snapshot.Entries
	s.order = snapshot.Order
	if s.entries == nil {
		s.entries = make(map[string]*Entry)
	}
	s.mu.Unlock()
	return nil
}

type shortTermSnapshot struct {
	Entries map[string]*Entry `json:"entries"`
	Order   []string          `json:"order"`
}

// purgeExpiredLocked drops entries older than the TTL.
func (s *ShortTerm) purgeExpiredLocked() {
	now := time.Now().UTC()
	kept := s.order[:0]
	for _, id := range s.order {
		entry, ok := s.entries[id]
		if !ok {
			continue
		}
		if now.Sub(entry.CreatedAt) > s.ttl {
			delete(s.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// evictLeastRecentLocked removes the entry with the oldest LastAccessed.
func (s *ShortTerm) evictLeastRecentLocked() {
	var victim *Entry
	for _, entry := range s.entries {
		if victim == nil || entry.LastAccessed.Before(victim.LastAccessed) {
			victim = entry
		}
	}
	if victim != nil {
		delete(s.entries, victim.ID)
	}
}

// matchesFilters reports whether every filter key matches the entry's
// metadata exactly.
func matchesFilters(entry *Entry, filters map[string]any) bool {
	for k, want := range filters {
		if entry.Metadata[k] != want {
			return false
		}
	}
	return true
}

// applyUpdate mutates an entry in place; importance stays clamped.
func applyUpdate(entry *Entry, update Update) {
	if update.Content != nil {
		entry.Content = *update.Content
	}
	if update.Importance != nil {
		entry.Importance = clampImportance(*update.Importance)
	}
	for k, v := range update.Metadata {
		entry.Metadata[k] = v
	}
}

var _ TierStore = (*ShortTerm)(nil)
