package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/task"
	"github.com/fyrsmithlabs/agentd/internal/tools"
)

// scriptedCompleter returns canned responses (or errors) in order and
// records every prompt it receives.
type scriptedCompleter struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
	systems   []string
}

func (c *scriptedCompleter) Complete(_ context.Context, messages []llm.Message) (string, error) {
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			c.systems = append(c.systems, m.Content)
		case llm.RoleUser:
			c.prompts = append(c.prompts, m.Content)
		}
	}
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", errors.New("script exhausted")
}

type noteTool struct{}

func (noteTool) Schema() tools.Schema {
	return tools.Schema{
		Name:        "note",
		Description: "Records a note",
		Parameters: map[string]tools.Param{
			"text": {Type: "string", Description: "note body", Required: true},
		},
		IsSafe: true,
	}
}

func (t noteTool) ValidateParameters(params map[string]any) error {
	return tools.ValidateRequired(t.Schema(), params)
}

func (noteTool) Execute(_ context.Context, params map[string]any) (any, error) {
	return fmt.Sprintf("noted: %v", params["text"]), nil
}

func TestExecuteBuildsPrompt(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"done"}}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(noteTool{}))

	exec := New(completer, registry, nil, time.Millisecond, nil)

	tk := task.New("summarize the report")
	tk.Priority = task.PriorityHigh
	tk.SetContext("audience", "executives")

	result, err := exec.Execute(context.Background(), tk, "## Recent Context\n- earlier note")
	require.NoError(t, err)
	assert.Equal(t, "done", result)

	require.Len(t, completer.prompts, 1)
	prompt := completer.prompts[0]
	assert.Contains(t, prompt, "Task: summarize the report")
	assert.Contains(t, prompt, "Priority: high")
	assert.Contains(t, prompt, "## Recent Context")
	assert.Contains(t, prompt, `"audience":"executives"`)
	assert.Contains(t, prompt, "Execute this task and provide the result.")

	require.Len(t, completer.systems, 1)
	assert.Contains(t, completer.systems[0], "- note: Records a note")
}

func TestExecuteWithoutToolsAdvertisesNone(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"ok"}}
	exec := New(completer, nil, nil, time.Millisecond, nil)

	_, err := exec.Execute(context.Background(), task.New("think"), "")
	require.NoError(t, err)
	assert.Contains(t, completer.systems[0], "No tools available")
}

func TestExecuteWithRetryEventualSuccess(t *testing.T) {
	completer := &scriptedCompleter{
		errs:      []error{&llm.TransientError{Err: errors.New("overloaded")}, &llm.TransientError{Err: errors.New("overloaded")}},
		responses: []string{"", "", "recovered"},
	}
	exec := New(completer, nil, nil, time.Millisecond, nil)

	tk := task.New("flaky work")
	result, err := exec.ExecuteWithRetry(context.Background(), tk, "", 3)
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, completer.calls)
	assert.Equal(t, 2, tk.RetryCount)
}

func TestExecuteWithRetryExhaustion(t *testing.T) {
	boom := &llm.TransientError{Err: errors.New("still down")}
	completer := &scriptedCompleter{errs: []error{boom, boom, boom}}
	exec := New(completer, nil, nil, time.Millisecond, nil)

	tk := task.New("doomed work")
	start := time.Now()
	_, err := exec.ExecuteWithRetry(context.Background(), tk, "", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, completer.calls)
	assert.Equal(t, task.StatusFailed, tk.Status())
	assert.Contains(t, tk.Error, "failed after 3 attempts")
	// 1ms + 2ms of backoff, well under a second.
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecuteWithRetryHardStops(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid parameters", fmt.Errorf("pre-check: %w", tools.ErrInvalidParameters)},
		{"permission denied", fmt.Errorf("pre-check: %w", tools.ErrPermissionDenied)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &scriptedCompleter{errs: []error{tt.err}}
			exec := New(completer, nil, nil, time.Millisecond, nil)

			_, err := exec.ExecuteWithRetry(context.Background(), task.New("guarded"), "", 3)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, completer.calls, "hard stops must not be retried")
		})
	}
}

func TestExecuteWithRetryHonorsCancellation(t *testing.T) {
	boom := &llm.TransientError{Err: errors.New("down")}
	completer := &scriptedCompleter{errs: []error{boom, boom, boom, boom}}
	exec := New(completer, nil, nil, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := exec.ExecuteWithRetry(ctx, task.New("cancelled"), "", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, completer.calls, 2)
}

func TestExecuteTool(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(noteTool{}))
	runner := tools.NewRunner(registry, config.ToolsConfig{}, nil)

	exec := New(&scriptedCompleter{}, registry, runner, time.Millisecond, nil)

	result, err := exec.ExecuteTool(context.Background(), "note", map[string]any{"text": "hello"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "noted: hello", result.Output)

	_, err = exec.ExecuteTool(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, tools.ErrToolNotFound)
}

func TestExecuteToolWithoutRunner(t *testing.T) {
	exec := New(&scriptedCompleter{}, nil, nil, time.Millisecond, nil)
	_, err := exec.ExecuteTool(context.Background(), "note", nil, nil)
	assert.ErrorIs(t, err, tools.ErrToolNotFound)
}
