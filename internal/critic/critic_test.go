package critic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/task"
)

type stubCompleter struct {
	response string
	err      error
	prompts  []string
}

func (s *stubCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	for _, m := range messages {
		s.prompts = append(s.prompts, m.Content)
	}
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestEvaluator_Parse(t *testing.T) {
	e := NewEvaluator(nil, 7.0, nil)
	taskID := uuid.New()

	tests := []struct {
		name             string
		response         string
		wantScore        float64
		wantPassed       bool
		wantImprovements []string
	}{
		{
			name:             "full verdict",
			response:         "Score: 9\nPass: Yes\nFeedback: good\nAreas for Improvement:\n- none",
			wantScore:        9.0,
			wantPassed:       true,
			wantImprovements: []string{"none"},
		},
		{
			name:       "score above range clamps to ten",
			response:   "Score: 15/10\nPass: No",
			wantScore:  10.0,
			wantPassed: false,
		},
		{
			name:       "negative score does not match and defaults",
			response:   "Score: -3/10",
			wantScore:  5.0,
			wantPassed: false,
		},
		{
			name:       "missing score defaults to five",
			response:   "The output looks fine to me.",
			wantScore:  5.0,
			wantPassed: false,
		},
		{
			name:       "missing pass falls back to threshold",
			response:   "Score: 8.5/10\nFeedback: solid work",
			wantScore:  8.5,
			wantPassed: true,
		},
		{
			name:       "explicit pass wins over low score",
			response:   "Score: 4/10\nPass: Yes",
			wantScore:  4.0,
			wantPassed: true,
		},
		{
			name:       "explicit fail wins over high score",
			response:   "Score: 9/10\nPass: No",
			wantScore:  9.0,
			wantPassed: false,
		},
		{
			name:       "case-insensitive matching",
			response:   "score: 7.5\npass: yes",
			wantScore:  7.5,
			wantPassed: true,
		},
		{
			name: "improvement section stops at blank line",
			response: "Score: 6\nPass: No\nAreas for Improvement:\n- tighten the intro\n- cite sources\n\nUnrelated trailing text\n- not an improvement",
			wantScore:        6.0,
			wantPassed:       false,
			wantImprovements: []string{"tighten the intro", "cite sources"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Parse(taskID, tt.response)
			assert.Equal(t, taskID, result.TaskID)
			assert.Equal(t, tt.wantScore, result.Score)
			assert.Equal(t, tt.wantPassed, result.Passed)
			assert.Equal(t, tt.wantImprovements, result.Improvements)
			assert.Equal(t, tt.response, result.Feedback)
		})
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	stub := &stubCompleter{response: "Score: 8\nPass: Yes\nFeedback: thorough"}
	e := NewEvaluator(stub, 7.0, nil)

	tk := task.New("summarize the meeting notes")
	tk.Result = "the meeting covered three topics"

	result, err := e.Evaluate(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, 8.0, result.Score)
	assert.True(t, result.Passed)

	// Task description and output reach the prompt.
	joined := strings.Join(stub.prompts, "\n")
	assert.Contains(t, joined, "summarize the meeting notes")
	assert.Contains(t, joined, "the meeting covered three topics")
}

func TestEvaluator_EvaluateCompleterError(t *testing.T) {
	e := NewEvaluator(&stubCompleter{err: errors.New("down")}, 7.0, nil)

	_, err := e.Evaluate(context.Background(), task.New("anything"))
	require.Error(t, err)
}

func TestEvaluator_QuickCheck(t *testing.T) {
	stub := &stubCompleter{response: "YES"}
	e := NewEvaluator(stub, 7.0, nil)

	ok, err := e.QuickCheck(context.Background(), "output text", []string{"mentions topic", "under a page"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, strings.Join(stub.prompts, "\n"), "- mentions topic")

	e = NewEvaluator(&stubCompleter{response: "NO"}, 7.0, nil)
	ok, err = e.QuickCheck(context.Background(), "output text", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_CompareOutputs(t *testing.T) {
	stub := &stubCompleter{response: "Output 2 is best; Output 1 lacks detail."}
	e := NewEvaluator(stub, 7.0, nil)

	analysis, err := e.CompareOutputs(context.Background(), []string{"draft one", "draft two"})
	require.NoError(t, err)
	assert.Equal(t, "Output 2 is best; Output 1 lacks detail.", analysis)

	joined := strings.Join(stub.prompts, "\n")
	assert.Contains(t, joined, "**Output 1**")
	assert.Contains(t, joined, "**Output 2**")
}

func TestEvaluator_SuggestImprovementsCapsAtFive(t *testing.T) {
	stub := &stubCompleter{response: "- one\n- two\n- three\n- four\n- five\n- six\n- seven"}
	e := NewEvaluator(stub, 7.0, nil)

	suggestions, err := e.SuggestImprovements(context.Background(), task.New("goal"), "output")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, suggestions)
}

func TestNewEvaluator_DefaultThreshold(t *testing.T) {
	e := NewEvaluator(nil, 0, nil)
	assert.Equal(t, DefaultQualityThreshold, e.Threshold())
}
