package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search INDEX QUERY",
	Short: "Search an index",
	Long: `Runs a query string against an index and prints the matching entities,
best match first. Hits whose entity no longer exists are left out.`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	results, err := searchService.Search(context.Background(), args[0], args[1], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	outputSearchTable(cmd, results)
	return nil
}

type jsonResult struct {
	Index  string         `json:"index"`
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Model  string         `json:"model"`
	Values map[string]any `json:"values"`
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			Index:  r.Hit.Index,
			ID:     r.Hit.ID,
			Score:  r.Hit.Score,
			Model:  r.Entity.Model.Label(),
			Values: r.Entity.Values,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results {
		// Format: [N] Model ID (Score)
		cmd.Printf("  [%d] %s %d (%.2f)\n", i+1, r.Entity.Type(), r.Entity.ID, r.Hit.Score)
		if summary := summarize(r.Entity); summary != "" {
			cmd.Printf("      %s\n", mutedStyle.Render(summary))
		}
	}
	cmd.Println()
}

// summarize renders the scalar values of an entity as sorted key=value pairs.
func summarize(e *domain.Entity) string {
	keys := make([]string, 0, len(e.Values))
	for k, v := range e.Values {
		switch v.(type) {
		case nil, map[string]any, []any:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Values[k]))
	}
	return strings.Join(parts, " ")
}
