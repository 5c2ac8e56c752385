package tools

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

var runnerTracer = otel.Tracer("agentd.tools")

const defaultToolTimeout = 30 * time.Second

// Runner invokes registered tools with validation, permission checks,
// and a per-invocation timeout.
type Runner struct {
	registry    *Registry
	timeout     time.Duration
	allowUnsafe bool
	logger      *zap.Logger
}

// NewRunner creates a runner over the given registry.
func NewRunner(registry *Registry, cfg config.ToolsConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := defaultToolTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout)
	}

	return &Runner{
		registry:    registry,
		timeout:     timeout,
		allowUnsafe: cfg.AllowUnsafe,
		logger:      logger.Named("tools"),
	}
}

// Run executes the named tool. Validation and permission failures are
// hard stops: the tool is never attempted and the error is returned
// directly. Execution failures and timeouts are reported as a Result
// with Success=false, never as a hang.
func (r *Runner) Run(ctx context.Context, name string, params map[string]any, granted []string) (Result, error) {
	ctx, span := runnerTracer.Start(ctx, "tools.Run")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	tool, err := r.registry.Get(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	schema := tool.Schema()

	if err := tool.ValidateParameters(params); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("%s: %w", name, err)
	}

	if err := r.checkPermissions(schema, granted); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	output, execErr := r.execute(ctx, tool, params)
	elapsed := time.Since(start)

	result := Result{
		ToolName: name,
		Duration: elapsed,
	}
	if execErr != nil {
		result.Error = execErr.Error()
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
		r.logger.Warn("tool execution failed",
			zap.String("tool", name),
			zap.Duration("duration", elapsed),
			zap.Error(execErr))
		return result, nil
	}

	result.Success = true
	result.Output = output
	r.logger.Debug("tool executed",
		zap.String("tool", name),
		zap.Duration("duration", elapsed))
	return result, nil
}

// checkPermissions verifies the caller holds every permission the tool
// requires, and that unsafe tools are allowed by configuration.
func (r *Runner) checkPermissions(schema Schema, granted []string) error {
	if !schema.IsSafe && !r.allowUnsafe {
		return fmt.Errorf("%w: %s is unsafe and unsafe tools are disabled", ErrPermissionDenied, schema.Name)
	}

	have := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		have[p] = struct{}{}
	}
	for _, p := range schema.RequiredPermissions {
		if _, ok := have[p]; !ok {
			return fmt.Errorf("%w: %s requires %q", ErrPermissionDenied, schema.Name, p)
		}
	}
	return nil
}

// execute runs the tool in its own goroutine so a tool that ignores
// context cancellation still cannot hang the caller past the timeout.
func (r *Runner) execute(ctx context.Context, tool Tool, params map[string]any) (any, error) {
	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		output, err := tool.Execute(ctx, params)
		done <- outcome{output: output, err: err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("tool %s: %w", tool.Schema().Name, ctx.Err())
	}
}
