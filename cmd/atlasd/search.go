package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atlasmemory/atlas/pkg/atlas"
)

var (
	searchLimit              int
	searchQNTMKey            string
	searchRerank             bool
	searchConsolidationLevel string
	searchContentType        string
	searchAgentRole          string
	searchExpandQuery        bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search semantic memory",
	Long: `Search Atlas's vector memory for chunks relevant to the given query.

Examples:
  # Basic search
  atlasd search "how does consolidation work"

  # Restrict to a QNTM key's collection, rerank results
  atlasd search "retry logic" --qntm-key "storage ~ retry ~ policy" --rerank`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")
	searchCmd.Flags().StringVar(&searchQNTMKey, "qntm-key", "", "restrict search to this QNTM key's collection")
	searchCmd.Flags().BoolVar(&searchRerank, "rerank", false, "apply term-overlap reranking to the top results")
	searchCmd.Flags().StringVar(&searchConsolidationLevel, "consolidation-level", "", "raw, consolidated, or empty for both")
	searchCmd.Flags().StringVar(&searchContentType, "content-type", "", "filter by content type payload field")
	searchCmd.Flags().StringVar(&searchAgentRole, "agent-role", "", "filter by agent role payload field")
	searchCmd.Flags().BoolVar(&searchExpandQuery, "expand-query", false, "expand the query into QNTM-shaped keys before searching")
}

func runSearch(cmd *cobra.Command, args []string) error {
	app, _, _, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := app.Search(context.Background(), atlas.SearchRequest{
		Query:              args[0],
		Limit:              searchLimit,
		QNTMKey:            searchQNTMKey,
		Rerank:             searchRerank,
		ConsolidationLevel: searchConsolidationLevel,
		ContentType:        searchContentType,
		AgentRole:          searchAgentRole,
		ExpandQuery:        searchExpandQuery,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if jsonOutput {
		return outputJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tFILE\tCHUNK\tQNTM KEY\tTEXT")
	for _, r := range results {
		fmt.Fprintf(w, "%.3f\t%s\t%d\t%s\t%s\n", r.Score, r.FilePath, r.ChunkIndex, r.QNTMKey, truncateText(r.Text, 80))
	}
	return w.Flush()
}

func truncateText(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
