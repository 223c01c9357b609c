// Command atlasd is Atlas's daemon and operator CLI: "atlasd serve" runs
// the JSON-RPC server over a Unix socket, while the other subcommands
// (ingest, search, consolidate, health) drive the same pkg/atlas.App
// in-process for one-shot operator use, without requiring a running
// daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	configPath string
	jsonOutput bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "atlasd",
	Short:   "Atlas semantic memory engine",
	Long:    `atlasd ingests, searches, and consolidates content-addressable vector memory keyed by QNTM keys.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default ~/.config/atlas/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(healthCmd)
}
