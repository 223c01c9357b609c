package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlasmemory/atlas/pkg/atlas"
)

var (
	consolidateDryRun    bool
	consolidateThreshold float64
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run a consolidation pass over semantic memory",
	Long: `Evaluate similar chunks for merging into consolidated memories,
optionally as a dry run that reports proposed merges without writing them.

Examples:
  # Report what would be consolidated without writing anything
  atlasd consolidate --dry-run

  # Run with a stricter similarity threshold for this pass only
  atlasd consolidate --threshold 0.95`,
	RunE: runConsolidate,
}

func init() {
	consolidateCmd.Flags().BoolVar(&consolidateDryRun, "dry-run", false, "report proposed merges without writing them")
	consolidateCmd.Flags().Float64Var(&consolidateThreshold, "threshold", 0, "override the configured similarity threshold for this pass (0 = use configured default)")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	app, _, _, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	resp, err := app.Consolidate(context.Background(), atlas.ConsolidateRequest{
		DryRun:    consolidateDryRun,
		Threshold: consolidateThreshold,
	})
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}

	if jsonOutput {
		return outputJSON(resp)
	}

	fmt.Printf("Candidates evaluated:      %d\n", resp.CandidatesEvaluated)
	fmt.Printf("Consolidations performed:  %d\n", resp.ConsolidationsPerformed)
	fmt.Printf("Chunks absorbed:           %d\n", resp.ChunksAbsorbed)
	return nil
}
