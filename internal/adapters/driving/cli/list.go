package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List declared indices and their state",
	Long: `Shows every declared index, whether it exists in the search backend and
how many documents it holds.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	if managementService == nil {
		return errors.New("management service not configured")
	}

	statuses, err := managementService.ListIndices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list indices: %w", err)
	}
	if len(statuses) == 0 {
		cmd.Println("No indices declared.")
		return nil
	}

	for _, st := range statuses {
		box := "[ ]"
		count := ""
		if st.Exists {
			box = "[X]"
			count = fmt.Sprintf(" (%s documents)", humanize.Comma(int64(st.Count)))
		}
		cmd.Printf("%s %s%s %s\n", box, st.Name, count, mutedStyle.Render(strings.Join(st.Models, ", ")))
	}
	return nil
}
