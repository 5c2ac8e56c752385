package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentd/internal/task"
)

func recordEpisode(t *testing.T, e *Episodic, description string, status task.Status, outcome string) *task.Task {
	t.Helper()
	tk := task.New(description)
	require.NoError(t, tk.SetStatus(status))
	trace := task.NewTrace(tk.ID, "executor", "execute", description, "output")
	trace.Duration = 2 * time.Second
	trace.Cost = 0.0125

	_, err := e.StoreTaskExecution(context.Background(), tk, trace, outcome, "")
	require.NoError(t, err)
	return tk
}

func TestEpisodic_StoreTaskExecutionImportance(t *testing.T) {
	e := NewEpisodic(100, "")

	failed := recordEpisode(t, e, "parse the log file", task.StatusFailed, "failure")
	completed := recordEpisode(t, e, "sort the inbox", task.StatusCompleted, "success")

	entries, err := e.Retrieve(context.Background(), "parse the log file", 1, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.9, entries[0].Importance)
	assert.Equal(t, failed.ID.String(), entries[0].Metadata["task_id"])
	assert.Equal(t, false, entries[0].Metadata["success"])

	entries, err = e.Retrieve(context.Background(), "sort the inbox", 1, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.8, entries[0].Importance)
	assert.Equal(t, true, entries[0].Metadata["success"])
	_ = completed
}

func TestEpisodic_SimilarPastTasks(t *testing.T) {
	e := NewEpisodic(100, "")

	tk := recordEpisode(t, e, "summarize quarterly report", task.StatusCompleted, "success")
	recordEpisode(t, e, "deploy the api gateway", task.StatusCompleted, "success")

	episodes, err := e.SimilarPastTasks(context.Background(), "summarize quarterly report", 3)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, tk.ID, episodes[0].Task.ID)
	assert.Equal(t, "success", episodes[0].Outcome)
}

func TestEpisodic_SuccessRate(t *testing.T) {
	e := NewEpisodic(100, "")

	assert.Equal(t, 0.0, e.SuccessRate(""))

	recordEpisode(t, e, "task a", task.StatusCompleted, "success")
	recordEpisode(t, e, "task b", task.StatusCompleted, "success")
	recordEpisode(t, e, "task c", task.StatusFailed, "failure")

	assert.InDelta(t, 2.0/3.0, e.SuccessRate(""), 1e-9)
	assert.InDelta(t, 2.0/3.0, e.SuccessRate("executor"), 1e-9)
	assert.Equal(t, 0.0, e.SuccessRate("planner"))
}

func TestEpisodic_ConsolidateKeepsNewest(t *testing.T) {
	ctx := context.Background()
	e := NewEpisodic(3, "")

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := e.Store(ctx, fmt.Sprintf("episode %d", i), nil, 0.5)
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(time.Millisecond)
	}

	removed, err := e.Consolidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, e.Len())

	_, ok := e.Get(ids[0])
	assert.False(t, ok)
	_, ok = e.Get(ids[4])
	assert.True(t, ok)

	removed, err = e.Consolidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestEpisodic_RetrieveOrdersByImportanceThenRecency(t *testing.T) {
	ctx := context.Background()
	e := NewEpisodic(100, "")

	_, err := e.Store(ctx, "incident review alpha", nil, 0.5)
	require.NoError(t, err)
	high, err := e.Store(ctx, "incident review beta", nil, 0.9)
	require.NoError(t, err)

	results, err := e.Retrieve(ctx, "incident review", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, high, results[0].ID)
}

func TestEpisodic_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "episodic.json")

	e := NewEpisodic(100, path)
	tk := recordEpisode(t, e, "archive old tickets", task.StatusCompleted, "success")
	require.NoError(t, e.Save(ctx))

	fresh := NewEpisodic(100, path)
	require.NoError(t, fresh.Load(ctx))
	assert.Equal(t, 1, fresh.Len())

	episodes, err := fresh.SimilarPastTasks(ctx, "archive old tickets", 1)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, tk.ID, episodes[0].Task.ID)
}
