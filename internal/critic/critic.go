package critic

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/task"
)

var criticTracer = otel.Tracer("agentd.critic")

// DefaultQualityThreshold is the pass score used when Pass/Fail is not
// stated explicitly.
const DefaultQualityThreshold = 7.0

// Extraction patterns for critique text.
var (
	scorePattern        = regexp.MustCompile(`(?i)Score:\s*(\d+(?:\.\d+)?)`)
	passPattern         = regexp.MustCompile(`(?i)Pass:\s*(Yes|No)`)
	improvementsPattern = regexp.MustCompile(`(?is)Areas for Improvement:(.+?)(?:\n\n|\z)`)
)

// CritiqueResult is the structured quality verdict for one task output.
// Passed is an explicit field independent of Score: an extracted
// Pass/Fail always wins over the threshold comparison, so passed=true
// with score below the threshold is valid policy, not an inconsistency
// to reconcile.
type CritiqueResult struct {
	TaskID       uuid.UUID `json:"task_id"`
	Score        float64   `json:"score"`
	Passed       bool      `json:"passed"`
	Feedback     string    `json:"feedback"`
	Improvements []string  `json:"improvements,omitempty"`
}

// Evaluator scores task outputs through the completion capability.
type Evaluator struct {
	completer llm.Completer
	threshold float64
	logger    *zap.Logger
}

// NewEvaluator creates an evaluator. A non-positive threshold selects
// the default (7.0).
func NewEvaluator(completer llm.Completer, threshold float64, logger *zap.Logger) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultQualityThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		completer: completer,
		threshold: threshold,
		logger:    logger.Named("critic"),
	}
}

// Threshold returns the configured pass score.
func (e *Evaluator) Threshold() float64 { return e.threshold }

// Evaluate critiques the task's current result. Completion failures
// propagate; unparseable critique text is absorbed with defaults.
func (e *Evaluator) Evaluate(ctx context.Context, t *task.Task) (*CritiqueResult, error) {
	ctx, span := criticTracer.Start(ctx, "critic.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", t.ID.String()))

	response, err := e.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: e.systemPrompt()},
		{Role: llm.RoleUser, Content: e.buildPrompt(t)},
	})
	if err != nil {
		return nil, fmt.Errorf("critique generation failed: %w", err)
	}

	result := e.Parse(t.ID, response)
	span.SetAttributes(
		attribute.Float64("critique.score", result.Score),
		attribute.Bool("critique.passed", result.Passed),
	)
	return result, nil
}

// Parse extracts the verdict from critique text. Score defaults to 5.0
// when absent and is always clamped into [0,10]; an absent Pass/Fail
// defaults to the threshold comparison.
func (e *Evaluator) Parse(taskID uuid.UUID, response string) *CritiqueResult {
	score := 5.0
	if m := scorePattern.FindStringSubmatch(response); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			score = v
		}
	}
	score = clampScore(score)

	var passed bool
	if m := passPattern.FindStringSubmatch(response); m != nil {
		passed = strings.EqualFold(m[1], "yes")
	} else {
		passed = score >= e.threshold
	}

	return &CritiqueResult{
		TaskID:       taskID,
		Score:        score,
		Passed:       passed,
		Feedback:     response,
		Improvements: parseBullets(extractImprovementSection(response), 0),
	}
}

// QuickCheck classifies an output against a criteria list as a binary
// yes/no.
func (e *Evaluator) QuickCheck(ctx context.Context, output string, criteria []string) (bool, error) {
	var b strings.Builder
	b.WriteString("Quick validation check:\n\nOutput: ")
	b.WriteString(task.Truncate(output, 500))
	b.WriteString("\n\nRequired criteria:\n")
	for _, c := range criteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nDoes this output meet all criteria? Respond with just \"YES\" or \"NO\".")

	response, err := e.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a quick validation checker."},
		{Role: llm.RoleUser, Content: b.String()},
	})
	if err != nil {
		return false, fmt.Errorf("quick check failed: %w", err)
	}
	return strings.Contains(strings.ToLower(response), "yes"), nil
}

// CompareOutputs ranks candidate outputs, returning the freeform
// ranking analysis without structured parsing.
func (e *Evaluator) CompareOutputs(ctx context.Context, outputs []string) (string, error) {
	var b strings.Builder
	b.WriteString("Compare these outputs and rank them by quality:\n\n")
	for i, output := range outputs {
		fmt.Fprintf(&b, "\n**Output %d**:\n%s\n", i+1, task.Truncate(output, 300))
	}
	b.WriteString("\nProvide ranking (best to worst) with brief justification.")

	response, err := e.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: e.systemPrompt()},
		{Role: llm.RoleUser, Content: b.String()},
	})
	if err != nil {
		return "", fmt.Errorf("output comparison failed: %w", err)
	}
	return response, nil
}

// SuggestImprovements asks for specific, actionable improvements to the
// current output, capped at five.
func (e *Evaluator) SuggestImprovements(ctx context.Context, t *task.Task, output string) ([]string, error) {
	prompt := fmt.Sprintf(`Task: %s

Current Output:
%s

Suggest 3-5 specific, actionable improvements to make this output excellent.
Format as a bullet list.`, t.Description, task.Truncate(output, 500))

	response, err := e.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are an expert at improving outputs."},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("improvement suggestion failed: %w", err)
	}
	return parseBullets(response, 5), nil
}

func (e *Evaluator) systemPrompt() string {
	return fmt.Sprintf(`You are an expert critic and quality assessor. Evaluate task outputs objectively and constructively.

Evaluation Criteria:
1. Correctness: is the output factually accurate and logically sound?
2. Completeness: does it fully address the task requirements?
3. Quality: is the output well-structured and clear?
4. Efficiency: was the approach reasonable?
5. Safety: are there any risks or issues?

Quality Threshold: %.1f/10

Format your response as:
Score: X/10
Pass: Yes/No
Feedback: [detailed analysis]
Areas for Improvement:
- [specific point 1]
- [specific point 2]`, e.threshold)
}

func (e *Evaluator) buildPrompt(t *task.Task) string {
	var parts []string
	parts = append(parts, "Evaluate the following task execution:")
	parts = append(parts, fmt.Sprintf("\n**Task**: %s", t.Description))
	parts = append(parts, fmt.Sprintf("\n**Status**: %s", t.Status()))
	parts = append(parts, fmt.Sprintf("\n**Priority**: %s", t.Priority))

	if t.Result != "" {
		parts = append(parts, fmt.Sprintf("\n**Output**:\n%s", t.Result))
	}
	if t.Error != "" {
		parts = append(parts, fmt.Sprintf("\n**Error**: %s", t.Error))
	}

	parts = append(parts, "\nProvide your detailed critique.")
	return strings.Join(parts, "\n")
}

// extractImprovementSection returns the text of the "Areas for
// Improvement" section, up to a blank line or end of input.
func extractImprovementSection(response string) string {
	if m := improvementsPattern.FindStringSubmatch(response); m != nil {
		return m[1]
	}
	return ""
}

// parseBullets collects trimmed bullet lines; limit 0 means unbounded.
func parseBullets(text string, limit int) []string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		bullet := strings.TrimSpace(strings.Trim(line, "- "))
		bullets = append(bullets, bullet)
		if limit > 0 && len(bullets) >= limit {
			break
		}
	}
	return bullets
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
