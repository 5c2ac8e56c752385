package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentd/internal/task"
)

var (
	runPriority   string
	runMaxRetries int
)

var runCmd = &cobra.Command{
	Use:   "run <description>",
	Short: "Execute a single task and print its result",
	Long: `Execute one task through the full plan/execute/critique loop and
print the result to stdout. The run learns into memory like any other.

Examples:
  # Run a task
  agentd run "Summarize the stand-up notes in ./notes.md"

  # High priority with a bigger retry budget
  agentd run --priority high --max-retries 5 "Draft the release announcement"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPriority, "priority", "medium", "task priority (low, medium, high, critical)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 3, "critique-gated retry budget")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	t := task.New(strings.Join(args, " "))
	t.Priority = task.ParsePriority(runPriority)
	if runMaxRetries >= 0 {
		t.MaxRetries = runMaxRetries
	}

	result, err := a.orchestrator.ExecuteTask(ctx, t)
	if err != nil {
		return fmt.Errorf("task failed: %w", err)
	}

	fmt.Println(result)
	return nil
}
