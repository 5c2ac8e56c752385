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

	"github.com/fyrsmithlabs/agentd/internal/task"
)

// DefaultMaxEpisodes bounds the episodic tier.
const DefaultMaxEpisodes = 1000

// Episode keeps the raw task/trace/outcome tuple behind an episodic
// entry, for exact-task lookup.
type Episode struct {
	Task    *task.Task  `json:"task"`
	Trace   *task.Trace `json:"trace"`
	Outcome string      `json:"outcome"`
	Lessons string      `json:"lessons,omitempty"`
	EntryID string      `json:"entry_id"`
}

// Episodic is the task-history tier: it records execution episodes,
// weights failures above successes, and answers similar-past-task
// queries.
type Episodic struct {
	mu          sync.Mutex
	maxEpisodes int
	entries     map[string]*Entry
	order       []string
	history     map[string]*Episode // task id -> episode
	path        string              // snapshot location; empty disables persistence
}

// NewEpisodic creates an episodic store. A non-positive bound selects
// the default (1000 retained episodes).
func NewEpisodic(maxEpisodes int, path string) *Episodic {
	if maxEpisodes <= 0 {
		maxEpisodes = DefaultMaxEpisodes
	}
	return &Episodic{
		maxEpisodes: maxEpisodes,
		entries:     make(map[string]*Entry),
		history:     make(map[string]*Episode),
		path:        path,
	}
}

// Store inserts an episode entry.
func (e *Episodic) Store(ctx context.Context, content string, metadata map[string]any, importance float64) (string, error) {
	entry := NewEntry(content, metadata, TierEpisodic, importance)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries[entry.ID] = entry
	e.order = append(e.order, entry.ID)
	return entry.ID, nil
}

// StoreTaskExecution records one complete task execution: a structured
// summary entry plus a history record for exact-task lookup. Failures
// carry more learning signal than successes and are weighted 0.9
// against 0.8.
func (e *Episodic) StoreTaskExecution(ctx context.Context, t *task.Task, trace *task.Trace, outcome, lessons string) (string, error) {
	status := t.Status()
	success := status == task.StatusCompleted

	var b strings.Builder
	fmt.Fprintf(&b, "Task Execution Episode:\n\n")
	fmt.Fprintf(&b, "Task: %s\n", t.Description)
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Agent: %s\n", trace.Agent)
	fmt.Fprintf(&b, "Outcome: %s\n", outcome)
	fmt.Fprintf(&b, "Duration: %s\n", trace.Duration)
	fmt.Fprintf(&b, "Cost: $%.4f\n", trace.Cost)
	if lessons != "" {
		fmt.Fprintf(&b, "\nLessons Learned: %s\n", lessons)
	}

	metadata := map[string]any{
		"task_id":   t.ID.String(),
		"status":    string(status),
		"agent":     trace.Agent,
		"duration":  trace.Duration.Seconds(),
		"cost":      trace.Cost,
		"timestamp": trace.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		"success":   success,
	}

	importance := 0.9
	if success {
		importance = 0.8
	}

	entryID, err := e.Store(ctx, strings.TrimSpace(b.String()), metadata, importance)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.history[t.ID.String()] = &Episode{
		Task:    t,
		Trace:   trace,
		Outcome: outcome,
		Lessons: lessons,
		EntryID: entryID,
	}
	e.mu.Unlock()
	return entryID, nil
}

// Retrieve matches query as a case-insensitive substring, applies
// metadata filters, and returns up to topK entries ordered by
// importance then recency.
func (e *Episodic) Retrieve(ctx context.Context, query string, topK int, filters map[string]any) ([]*Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	needle := strings.ToLower(query)
	var results []*Entry
	for _, id := range e.order {
		entry, ok := e.entries[id]
		if !ok {
			continue
		}
		if !matchesFilters(entry, filters) {
			continue
		}
		if strings.Contains(strings.ToLower(entry.Content), needle) {
			results = append(results, entry)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Importance != results[j].Importance {
			return results[i].Importance > results[j].Importance
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for _, entry := range results {
		entry.touch()
	}
	return results, nil
}

// Update applies field changes to an episode entry.
func (e *Episodic) Update(ctx context.Context, id string, update Update) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.entries[id]
	if !ok {
		return false
	}
	applyUpdate(entry, update)
	return true
}

// Delete removes an episode entry.
func (e *Episodic) Delete(ctx context.Context, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.entries[id]; !ok {
		return false
	}
	delete(e.entries, id)
	return true
}

// Consolidate enforces the retention bound, deleting the oldest entries
// beyond it. Returns the number deleted.
func (e *Episodic) Consolidate(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.entries) <= e.maxEpisodes {
		return 0, nil
	}

	sorted := make([]*Entry, 0, len(e.entries))
	for _, entry := range e.entries {
		sorted = append(sorted, entry)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	excess := len(sorted) - e.maxEpisodes
	for _, entry := range sorted[:excess] {
		delete(e.entries, entry.ID)
	}
	return excess, nil
}

// Get returns the entry by id without counting an access.
func (e *Episodic) Get(id string) (*Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[id]
	return entry, ok
}

// SimilarPastTasks finds episodes whose summaries match the given task
// description, mapped back to their raw history records.
func (e *Episodic) SimilarPastTasks(ctx context.Context, description string, limit int) ([]*Episode, error) {
	entries, err := e.Retrieve(ctx, description, limit, nil)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var episodes []*Episode
	for _, entry := range entries {
		taskID, _ := entry.Metadata["task_id"].(string)
		if taskID == "" {
			continue
		}
		if episode, ok := e.history[taskID]; ok {
			episodes = append(episodes, episode)
		}
	}
	return episodes, nil
}

// SuccessRate reports the fraction of recorded episodes with a success
// outcome, optionally restricted to one agent. Zero when no episodes
// match.
func (e *Episodic) SuccessRate(agent string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var relevant, successful int
	for _, entry := range e.entries {
		if agent != "" && entry.Metadata["agent"] != agent {
			continue
		}
		relevant++
		if success, _ := entry.Metadata["success"].(bool); success {
			successful++
		}
	}
	if relevant == 0 {
		return 0
	}
	return float64(successful) / float64(relevant)
}

// Len returns the current entry count.
func (e *Episodic) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Stats summarizes the tier.
func (e *Episodic) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return statsFor(TierEpisodic, e.entries)
}

// Save writes the tier snapshot. No-op without a path.
func (e *Episodic) Save(ctx context.Context) error {
	if e.path == "" {
		return nil
	}

	e.mu.Lock()
	snapshot := episodicSnapshot{Entries: e.entries, Order: e.order, History: e.history}
	data, err := json.Marshal(snapshot)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal episodic snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return os.WriteFile(e.path, data, 0o644)
}

// Load reads the tier snapshot. A missing snapshot is a no-op.
func (e *Episodic) Load(ctx context.Context) error {
	if e.path == "" {
		return nil
	}

	data, err := os.ReadFile(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read episodic snapshot: %w", err)
	}

	var snapshot episodicSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to parse episodic snapshot: %w", err)
	}

	e.mu.Lock()
	e.entries = snapshot.Entries
	e.order = snapshot.Order
	e.history = snapshot.History
	if e.entries == nil {
		e.entries = make(map[string]*Entry)
	}
	if e.history == nil {
		e.history = make(map[string]*Episode)
	}
	e.mu.Unlock()
	return nil
}

type episodicSnapshot struct {
	Entries map[string]*Entry   `json:"entries"`
	Order   []string            `json:"order"`
	History map[string]*Episode `json:"history"`
}

var _ TierStore = (*Episodic)(nil)
