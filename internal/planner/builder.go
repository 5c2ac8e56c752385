package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/task"
)

var builderTracer = otel.Tracer("agentd.planner")

// jsonObjectPattern locates the outermost JSON object in plan text.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

const systemPrompt = `You are an expert planning agent. Break the goal into actionable, well-structured steps.

Output a structured JSON plan with:
- steps: list of subtasks (each with id, description, priority, estimated_complexity, estimated_cost, dependencies)
- dependency_graph: map of step id to prerequisite step ids
- risk_assessment: analysis of potential issues
- estimated_total_cost: estimated cost in USD
- estimated_total_time: estimated time in seconds

Be thorough, realistic, and strategic.`

// Builder generates and refines plans through the completion
// capability.
type Builder struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewBuilder creates a plan builder.
func NewBuilder(completer llm.Completer, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		completer: completer,
		logger:    logger.Named("planner"),
	}
}

// BuildPlan generates a plan for the task. contextBlock is the memory
// context composed for the task, or empty. Planning always yields a
// plan: completion failures and unparseable responses fall back to a
// single-step plan.
func (b *Builder) BuildPlan(ctx context.Context, t *task.Task, contextBlock string) (*Plan, error) {
	ctx, span := builderTracer.Start(ctx, "planner.BuildPlan")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", t.ID.String()))

	prompt := b.buildPrompt(t, contextBlock)
	response, err := b.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger.Warn("plan generation failed, using fallback plan",
			zap.String("task_id", t.ID.String()),
			zap.Error(err))
		response = t.Description
	}

	payload := parsePlan(response)
	plan := b.assemble(t, payload)
	span.SetAttributes(attribute.Int("plan.steps", len(plan.Steps)))
	return plan, nil
}

// RefinePlan regenerates the plan conditioned on the prior plan summary
// and feedback. The refined plan fully replaces the prior one; nothing
// is merged.
func (b *Builder) RefinePlan(ctx context.Context, plan *Plan, feedback string) (*Plan, error) {
	ctx, span := builderTracer.Start(ctx, "planner.RefinePlan")
	defer span.End()

	prompt := fmt.Sprintf(`Original Plan:
Goal: %s
Steps: %d
Risk Assessment: %s

Feedback: %s

Refine the plan to address the feedback. Maintain JSON format.`,
		plan.Goal, len(plan.Steps), plan.RiskAssessment, feedback)

	response, err := b.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger.Warn("plan refinement failed, using fallback plan", zap.Error(err))
		response = plan.Goal
	}

	goal := task.New(plan.Goal)
	return b.assemble(goal, parsePlan(response)), nil
}

// buildPrompt composes the planning prompt from goal, priority, and
// memory context.
func (b *Builder) buildPrompt(t *task.Task, contextBlock string) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Goal: %s", t.Description))
	parts = append(parts, fmt.Sprintf("\nPriority: %s", t.Priority))

	if contextBlock != "" {
		parts = append(parts, fmt.Sprintf("\nContext:\n%s", contextBlock))
	}
	if len(t.Context) > 0 {
		encoded, err := json.Marshal(t.Context)
		if err == nil {
			parts = append(parts, fmt.Sprintf("\nTask Context: %s", encoded))
		}
	}

	parts = append(parts, `
Create a detailed execution plan. Return it in the following JSON format:
{
    "steps": [
        {
            "id": "step_1",
            "description": "...",
            "priority": "high|medium|low",
            "estimated_complexity": 0.5,
            "estimated_cost": 0.01,
            "dependencies": []
        }
    ],
    "dependency_graph": {
        "step_1": [],
        "step_2": ["step_1"]
    },
    "risk_assessment": "...",
    "estimated_total_cost": 0.05,
    "estimated_total_time": 120
}`)

	return strings.Join(parts, "\n")
}

// parsePlan extracts the JSON plan from text. Absent or malformed JSON
// yields the single-step fallback wrapping the full text.
func parsePlan(text string) planPayload {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return fallbackPayload(text)
	}

	var payload planPayload
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return fallbackPayload(text)
	}
	if len(payload.Steps) == 0 {
		return fallbackPayload(text)
	}
	return payload
}

// assemble turns a payload into a Plan: each step becomes a subtask
// pointing back at the original task, with dependencies resolved from
// step identifiers.
func (b *Builder) assemble(original *task.Task, payload planPayload) *Plan {
	steps := make([]*task.Task, 0, len(payload.Steps))
	byStepID := make(map[string]*task.Task, len(payload.Steps))

	for _, sp := range payload.Steps {
		subtask := task.New(sp.Description)
		subtask.Priority = task.ParsePriority(sp.Priority)
		subtask.ParentID = &original.ID

		subtask.EstimatedComplexity = sp.EstimatedComplexity
		if subtask.EstimatedComplexity == 0 {
			subtask.EstimatedComplexity = 0.5
		}
		subtask.EstimatedCost = sp.EstimatedCost
		if subtask.EstimatedCost == 0 {
			subtask.EstimatedCost = 0.01
		}

		steps = append(steps, subtask)
		if sp.ID != "" {
			byStepID[sp.ID] = subtask
		}
	}

	// Second pass: dependency step ids resolve to subtask ids.
	for i, sp := range payload.Steps {
		for _, dep := range sp.Dependencies {
			if target, ok := byStepID[dep]; ok {
				steps[i].Dependencies = append(steps[i].Dependencies, target.ID)
			}
		}
	}

	graph := payload.DependencyGraph
	if graph == nil {
		graph = make(map[string][]string)
	}

	totalCost := payload.EstimatedTotalCost
	if totalCost == 0 {
		totalCost = 0.01
	}
	totalTime := payload.EstimatedTotalTime
	if totalTime == 0 {
		totalTime = 60
	}

	return &Plan{
		Goal:               original.Description,
		Steps:              steps,
		DependencyGraph:    graph,
		EstimatedTotalCost: totalCost,
		EstimatedTotalTime: time.Duration(totalTime * float64(time.Second)),
		RiskAssessment:     payload.RiskAssessment,
	}
}
