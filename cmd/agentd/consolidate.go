package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run memory consolidation across all tiers",
	Long: `Run each tier's consolidation pass: prune cold long-term entries,
trim old episodes, drop low-confidence facts, and report short-term
promotion candidates. Snapshots are saved afterwards.

Examples:
  agentd consolidate`,
	RunE: runConsolidate,
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	counts, err := a.memory.ConsolidateAll(ctx)
	if err != nil {
		return fmt.Errorf("consolidation failed: %w", err)
	}

	for tier, count := range counts {
		fmt.Printf("%-12s %d entries affected\n", tier, count)
	}
	return nil
}
