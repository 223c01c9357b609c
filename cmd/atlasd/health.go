package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend health",
	Long: `Report the health of Atlas's storage, embedding, and LLM backends.

Examples:
  atlasd health
  atlasd health --json`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	app, _, _, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	resp := app.Health(context.Background())

	if jsonOutput {
		return outputJSON(resp)
	}

	fmt.Printf("Overall: %s\n", resp.Overall)
	for name, status := range resp.Services {
		fmt.Printf("  %-10s %s\n", name, status)
	}
	return nil
}
