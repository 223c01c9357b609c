package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atlasmemory/atlas/pkg/atlas"
)

var (
	ingestWatch     bool
	ingestThreshold int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Ingest files or directories into semantic memory",
	Long: `Chunk, embed, and QNTM-key every eligible file under the given paths,
then store the results in Atlas's vector memory.

Examples:
  # Ingest a project directory
  atlasd ingest ./docs

  # Ingest and keep watching for changes
  atlasd ingest ./docs --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "keep watching the given paths for changes after the initial ingest")
	ingestCmd.Flags().IntVar(&ingestThreshold, "consolidation-threshold", 0, "override the chunk-count threshold that triggers auto-consolidation (0 = use configured default)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	app, _, _, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	resp, err := app.Ingest(context.Background(), atlas.IngestRequest{
		Paths:                  args,
		Watch:                  ingestWatch,
		ConsolidationThreshold: ingestThreshold,
	})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if jsonOutput {
		return outputJSON(resp)
	}

	fmt.Printf("Files processed: %d\n", resp.FilesProcessed)
	fmt.Printf("Chunks stored:   %d\n", resp.ChunksStored)
	if len(resp.Errors) > 0 {
		fmt.Printf("Errors:\n")
		for _, e := range resp.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	if ingestWatch {
		fmt.Println("watching for changes, press Ctrl+C to stop")
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
	}
	return nil
}
