package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/critic"
	"github.com/fyrsmithlabs/agentd/internal/executor"
	"github.com/fyrsmithlabs/agentd/internal/memory"
	"github.com/fyrsmithlabs/agentd/internal/planner"
	"github.com/fyrsmithlabs/agentd/internal/task"
)

var orchestratorTracer = otel.Tracer("agentd.orchestrator")

// ErrCancelled reports that cancellation was observed at a phase
// boundary. An in-flight phase is never interrupted.
var ErrCancelled = errors.New("task cancelled")

// Outcome tags recorded with each finished episode.
const (
	OutcomeSuccess        = "success"
	OutcomePartialSuccess = "partial_success"
)

// StatusPublisher receives task lifecycle transitions. Publish failures
// are logged, never propagated into the state machine.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, t *task.Task) error
}

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	ActiveTasks    int                          `json:"active_tasks"`
	CompletedTasks int                          `json:"completed_tasks"`
	FailedTasks    int                          `json:"failed_tasks"`
	MemoryStats    map[memory.Tier]memory.Stats `json:"memory_stats"`
}

// TaskResult is one slot of a multi-task batch.
type TaskResult struct {
	TaskID uuid.UUID
	Output string
	Err    error
}

// Orchestrator coordinates the planner, executor and critic over a
// task, with a critique-gated retry loop and a learning phase that
// records the episode.
type Orchestrator struct {
	planner   *planner.Builder
	executor  *executor.Executor
	critic    *critic.Evaluator
	memory    *memory.Manager
	publisher StatusPublisher
	logger    *zap.Logger

	// stepRetries bounds the transient-failure retry wrapper applied
	// to individual plan steps.
	stepRetries int

	mu        sync.Mutex
	active    map[uuid.UUID]*task.Task
	completed []*task.Task
	failed    []*task.Task
}

// New creates an orchestrator. publisher may be nil when lifecycle
// events are disabled.
func New(cfg config.OrchestratorConfig, pln *planner.Builder, exec *executor.Executor, crt *critic.Evaluator, mem *memory.Manager, publisher StatusPublisher, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	stepRetries := cfg.MaxRetries
	if stepRetries <= 0 {
		stepRetries = 3
	}
	return &Orchestrator{
		planner:     pln,
		executor:    exec,
		critic:      crt,
		memory:      mem,
		publisher:   publisher,
		logger:      logger.Named("orchestrator"),
		stepRetries: stepRetries,
		active:      make(map[uuid.UUID]*task.Task),
	}
}

// ExecuteTask drives one task through the full state machine:
// PLANNING, EXECUTING, CRITIQUING, then either a retry transition back
// to PLANNING or the learning phase and COMPLETED. Exhausted retries
// still complete the task, tagged partial_success. Cancellation is
// checked between phases only.
func (o *Orchestrator) ExecuteTask(ctx context.Context, t *task.Task) (string, error) {
	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.ExecuteTask")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", t.ID.String()))

	o.register(t)
	defer o.unregister(t)

	start := time.Now()
	for {
		result, critique, retry, err := o.runPass(ctx, t)
		if err != nil {
			o.fail(ctx, t, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		if retry {
			t.RetryCount++
			RetriesTotal.Inc()
			_ = t.SetStatus(task.StatusRetrying)
			o.publish(ctx, t)

			t.SetContext("previous_attempt", result)
			t.SetContext("feedback", critique.Feedback)
			t.SetContext("improvements_needed", critique.Improvements)

			o.logger.Info("critique failed, retrying",
				zap.String("task_id", t.ID.String()),
				zap.Float64("score", critique.Score),
				zap.Int("retry_count", t.RetryCount))
			continue
		}

		outcome := OutcomeSuccess
		if !critique.Passed {
			outcome = OutcomePartialSuccess
		}
		o.learn(ctx, t, result, critique, outcome, time.Since(start))

		t.Result = result
		_ = t.SetStatus(task.StatusCompleted)
		o.publish(ctx, t)

		o.mu.Lock()
		o.completed = append(o.completed, t)
		o.mu.Unlock()

		TasksTotal.WithLabelValues(outcome).Inc()
		TaskDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("task.outcome", outcome))

		o.logger.Info("task completed",
			zap.String("task_id", t.ID.String()),
			zap.String("outcome", outcome),
			zap.Float64("score", critique.Score),
			zap.Int("retries", t.RetryCount))
		return result, nil
	}
}

// runPass performs one PLANNING -> EXECUTING -> CRITIQUING traversal
// and reports whether the retry gate fired.
func (o *Orchestrator) runPass(ctx context.Context, t *task.Task) (string, *critic.CritiqueResult, bool, error) {
	if err := o.checkpoint(ctx, t); err != nil {
		return "", nil, false, err
	}
	_ = t.SetStatus(task.StatusPlanning)
	o.publish(ctx, t)

	var memCtx string
	if o.memory != nil {
		memCtx = o.memory.GetContextForTask(ctx, t)
	}
	plan, err := o.planner.BuildPlan(ctx, t, memCtx)
	if err != nil {
		// Only context errors escape the plan builder; everything else
		// falls back to a single-step plan internally.
		return "", nil, false, fmt.Errorf("planning failed: %w", err)
	}

	if err := o.checkpoint(ctx, t); err != nil {
		return "", nil, false, err
	}
	_ = t.SetStatus(task.StatusExecuting)
	o.publish(ctx, t)

	result, err := o.executePlan(ctx, t, plan, memCtx)
	if err != nil {
		return "", nil, false, fmt.Errorf("execution failed: %w", err)
	}

	if err := o.checkpoint(ctx, t); err != nil {
		return "", nil, false, err
	}
	_ = t.SetStatus(task.StatusCritiquing)
	o.publish(ctx, t)

	t.Result = result
	critique, err := o.critic.Evaluate(ctx, t)
	if err != nil {
		return "", nil, false, fmt.Errorf("critique failed: %w", err)
	}

	retry := !critique.Passed && t.RetryCount < t.MaxRetries
	return result, critique, retry, nil
}

// executePlan runs plan steps in order, joining their results. A plan
// with no steps degrades to direct execution of the task itself.
// Dependency graphs are descriptive metadata; step order is the
// execution order.
func (o *Orchestrator) executePlan(ctx context.Context, t *task.Task, plan *planner.Plan, memCtx string) (string, error) {
	if len(plan.Steps) == 0 {
		return o.executor.Execute(ctx, t, memCtx)
	}

	results := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		stepResult, err := o.executor.ExecuteWithRetry(ctx, step, memCtx, o.stepRetries)
		if err != nil {
			return "", fmt.Errorf("step %q: %w", step.Description, err)
		}
		step.Result = stepResult
		_ = step.SetStatus(task.StatusCompleted)
		results = append(results, stepResult)
	}
	return strings.Join(results, "\n\n"), nil
}

// learn records the finished run as an episode. Memory failures are
// logged rather than failing a task that already produced its result.
func (o *Orchestrator) learn(ctx context.Context, t *task.Task, result string, critique *critic.CritiqueResult, outcome string, elapsed time.Duration) {
	if o.memory == nil {
		return
	}
	trace := task.NewTrace(t.ID, "orchestrator", "orchestrate", t.Description, result)
	trace.Duration = elapsed
	trace.Cost = t.ActualCost

	if _, err := o.memory.RememberTaskExecution(ctx, t, trace, outcome, critique.Feedback); err != nil {
		o.logger.Warn("failed to record episode",
			zap.String("task_id", t.ID.String()),
			zap.Error(err))
	}
}

// ExecuteMulti runs independent tasks either sequentially or as a
// goroutine fan-out. A failed task fills its result slot; the batch is
// never aborted.
func (o *Orchestrator) ExecuteMulti(ctx context.Context, tasks []*task.Task, parallel bool) []TaskResult {
	results := make([]TaskResult, len(tasks))

	if !parallel {
		for i, t := range tasks {
			output, err := o.ExecuteTask(ctx, t)
			results[i] = TaskResult{TaskID: t.ID, Output: output, Err: err}
		}
		return results
	}

	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t *task.Task) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = TaskResult{TaskID: t.ID, Err: fmt.Errorf("task panicked: %v", r)}
				}
			}()
			output, err := o.ExecuteTask(ctx, t)
			results[i] = TaskResult{TaskID: t.ID, Output: output, Err: err}
		}(i, t)
	}
	wg.Wait()
	return results
}

// Get returns a registered active task by id.
func (o *Orchestrator) Get(id uuid.UUID) (*task.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.active[id]; ok {
		return t, true
	}
	for _, t := range o.completed {
		if t.ID == id {
			return t, true
		}
	}
	for _, t := range o.failed {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// SystemStatus snapshots task counters and per-tier memory stats.
func (o *Orchestrator) SystemStatus() Status {
	o.mu.Lock()
	status := Status{
		ActiveTasks:    len(o.active),
		CompletedTasks: len(o.completed),
		FailedTasks:    len(o.failed),
	}
	o.mu.Unlock()
	if o.memory != nil {
		status.MemoryStats = o.memory.Stats()
	}
	return status
}

// checkpoint is the phase boundary: it observes context and
// cooperative cancellation but never interrupts an in-flight phase.
func (o *Orchestrator) checkpoint(ctx context.Context, t *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, t *task.Task, err error) {
	t.Error = err.Error()
	_ = t.SetStatus(task.StatusFailed)
	o.publish(ctx, t)

	o.mu.Lock()
	o.failed = append(o.failed, t)
	o.mu.Unlock()

	outcome := "failed"
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		outcome = "cancelled"
	}
	TasksTotal.WithLabelValues(outcome).Inc()

	o.logger.Error("task failed",
		zap.String("task_id", t.ID.String()),
		zap.Error(err))
}

func (o *Orchestrator) register(t *task.Task) {
	o.mu.Lock()
	o.active[t.ID] = t
	o.mu.Unlock()
	ActiveTasks.Inc()
}

func (o *Orchestrator) unregister(t *task.Task) {
	o.mu.Lock()
	delete(o.active, t.ID)
	o.mu.Unlock()
	ActiveTasks.Dec()
}

func (o *Orchestrator) publish(ctx context.Context, t *task.Task) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishStatus(ctx, t); err != nil {
		o.logger.Warn("failed to publish task status",
			zap.String("task_id", t.ID.String()),
			zap.Error(err))
	}
}
