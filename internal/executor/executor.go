package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/task"
	"github.com/fyrsmithlabs/agentd/internal/tools"
)

var executorTracer = otel.Tracer("agentd.executor")

// defaultBackoffUnit scales the 2^attempt retry delay.
const defaultBackoffUnit = time.Second

// Executor completes task steps through the model and invokes tools on
// request.
type Executor struct {
	completer   llm.Completer
	registry    *tools.Registry
	runner      *tools.Runner
	backoffUnit time.Duration
	logger      *zap.Logger
}

// New creates an executor. registry and runner may be nil for a
// tool-less executor; a non-positive backoffUnit selects one second.
func New(completer llm.Completer, registry *tools.Registry, runner *tools.Runner, backoffUnit time.Duration, logger *zap.Logger) *Executor {
	if backoffUnit <= 0 {
		backoffUnit = defaultBackoffUnit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		completer:   completer,
		registry:    registry,
		runner:      runner,
		backoffUnit: backoffUnit,
		logger:      logger.Named("executor"),
	}
}

// Execute runs the task directly through the completion capability and
// returns the produced result. contextBlock is the memory context
// composed for the task, or empty.
func (e *Executor) Execute(ctx context.Context, t *task.Task, contextBlock string) (string, error) {
	ctx, span := executorTracer.Start(ctx, "executor.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", t.ID.String()))

	result, err := e.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: e.systemPrompt()},
		{Role: llm.RoleUser, Content: e.buildPrompt(t, contextBlock)},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("execution failed: %w", err)
	}
	return result, nil
}

// ExecuteTool invokes a registered tool through the runner's
// validation and permission pre-checks.
func (e *Executor) ExecuteTool(ctx context.Context, name string, params map[string]any, granted []string) (tools.Result, error) {
	if e.runner == nil {
		return tools.Result{}, fmt.Errorf("%w: no tool runner configured", tools.ErrToolNotFound)
	}
	return e.runner.Run(ctx, name, params, granted)
}

// ExecuteWithRetry runs the task, retrying failures with exponential
// backoff (2^attempt backoff units) up to maxRetries additional
// attempts. Validation and permission errors are never retried. The
// task's retry counter tracks the current attempt.
func (e *Executor) ExecuteWithRetry(ctx context.Context, t *task.Task, contextBlock string, maxRetries int) (string, error) {
	ctx, span := executorTracer.Start(ctx, "executor.ExecuteWithRetry")
	defer span.End()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			t.RetryCount = attempt
			_ = t.SetStatus(task.StatusRetrying)

			backoff := e.backoffUnit * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		result, err := e.Execute(ctx, t, contextBlock)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		e.logger.Warn("execution attempt failed",
			zap.String("task_id", t.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	err := fmt.Errorf("failed after %d attempts: %w", maxRetries+1, lastErr)
	t.Error = err.Error()
	_ = t.SetStatus(task.StatusFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", err
}

// retryable reports whether an execution error is worth another
// attempt. Malformed input and denied permissions are hard stops;
// everything else, transient or not, gets its bounded retries.
func retryable(err error) bool {
	if errors.Is(err, tools.ErrInvalidParameters) || errors.Is(err, tools.ErrPermissionDenied) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (e *Executor) systemPrompt() string {
	available := "No tools available - use reasoning and knowledge"
	if e.registry != nil && e.registry.Len() > 0 {
		var b strings.Builder
		for _, schema := range e.registry.Schemas() {
			fmt.Fprintf(&b, "- %s: %s\n", schema.Name, schema.Description)
		}
		available = strings.TrimRight(b.String(), "\n")
	}

	return fmt.Sprintf(`You are an expert execution agent. Complete tasks efficiently and accurately.

Available Tools:
%s

Guidelines:
1. Understand the task requirements thoroughly
2. Choose the most appropriate tools and methods
3. Execute step-by-step with clear reasoning
4. Handle errors gracefully with fallback strategies
5. Provide clear, actionable results

Always verify your work before reporting completion.`, available)
}

func (e *Executor) buildPrompt(t *task.Task, contextBlock string) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Task: %s", t.Description))
	parts = append(parts, fmt.Sprintf("\nPriority: %s", t.Priority))

	if contextBlock != "" {
		parts = append(parts, fmt.Sprintf("\nContext:\n%s", contextBlock))
	}
	if len(t.Context) > 0 {
		if encoded, err := json.Marshal(t.Context); err == nil {
			parts = append(parts, fmt.Sprintf("\nAdditional Context: %s", encoded))
		}
	}

	parts = append(parts, "\nExecute this task and provide the result.")
	return strings.Join(parts, "\n")
}
