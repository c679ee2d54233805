package cli

import (
	"context"
	"errors"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// Flags shared by the document subcommands.
var (
	docFilters   []string
	docExcludes  []string
	docIndices   []string
	docObjects   []string
	docCount     int
	docDatabase  string
	docBatchSize int
	docBatchType string
	docParallel  bool
	docRefresh   bool
	docMissing   bool
	docForce     bool
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Index, update or delete documents",
	Long: `Streams entities from the relational store to the search backend.

Filters and excludes are field lookups formatted as '[lookup]=[value]', e.g.
'date__gte=2020-05-21'. Values are read as:
  - nothing    ('[lookup]=')       null
  - integer    ('[lookup]=23')
  - float      ('[lookup]=1.12')
  - date       ('[lookup]=2020-10-08')
  - list       ('[lookup]=1,2,3')  items are read the same way
  - string     anything else`,
}

var documentIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentAction(domain.CommandIndex),
}

var documentUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update existing documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentAction(domain.CommandUpdate),
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentAction(domain.CommandDelete),
}

func init() {
	flags := documentCmd.PersistentFlags()
	flags.StringArrayVarP(&docFilters, "filters", "f", nil, "keep entities matching '[lookup]=[value]'")
	flags.StringArrayVarP(&docExcludes, "excludes", "e", nil, "drop entities matching '[lookup]=[value]'")
	flags.StringSliceVarP(&docIndices, "indices", "i", nil, "only update documents of these indices")
	flags.StringSliceVarP(&docObjects, "objects", "o", nil, "only update these models")
	flags.IntVarP(&docCount, "count", "c", 0, "process at most COUNT entities per document (0 for all)")
	flags.StringVarP(&docDatabase, "database", "d", "", "database alias to read from")
	flags.IntVarP(&docBatchSize, "batch-size", "b", 0, "entities per chunk (default: document pagination)")
	flags.StringVarP(&docBatchType, "batch-type", "t", string(domain.BatchOffset), "chunking strategy: offset or pk_filters")
	flags.BoolVarP(&docParallel, "parallel", "p", false, "send chunks in parallel")
	flags.BoolVarP(&docRefresh, "refresh", "r", false, "make changes visible to search immediately")
	flags.BoolVarP(&docMissing, "missing", "m", false, "with index, only index entities absent from the index")
	flags.BoolVar(&docForce, "force", false, "do not ask for confirmation")

	documentCmd.AddCommand(documentIndexCmd)
	documentCmd.AddCommand(documentUpdateCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentAction(action domain.CommandAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if managementService == nil {
			return errors.New("management service not configured")
		}
		ctx := context.Background()

		req := domain.DocumentRequest{
			Action:    action,
			Filters:   docFilters,
			Excludes:  docExcludes,
			Indices:   docIndices,
			Models:    docObjects,
			Count:     docCount,
			Database:  docDatabase,
			BatchSize: docBatchSize,
			BatchType: domain.BatchType(docBatchType),
			Parallel:  docParallel,
			Missing:   docMissing,
		}
		if cmd.Flags().Changed("refresh") {
			refresh := docRefresh
			req.Refresh = &refresh
		}

		plan, err := managementService.PlanDocuments(ctx, req)
		if err != nil {
			return err
		}

		cmd.Printf("The following documents will be %s:\n", action.Past())
		for _, item := range plan.Items {
			cmd.Printf("\t- %s %s.\n", humanize.Comma(int64(item.Count)), item.Model)
		}
		cmd.Println()
		if err := requireForce(cmd, docForce, "Continue?"); err != nil {
			return err
		}

		results, err := managementService.ExecuteDocuments(ctx, plan, progressPrinter(cmd))
		printResults(cmd, results)
		return err
	}
}

// progressPrinter rewrites a single status line per chunk.
func progressPrinter(cmd *cobra.Command) domain.ProgressSink {
	return func(p domain.Progress) {
		cmd.Printf("\r%s", p)
		if p.Done >= p.Total {
			cmd.Println()
		}
	}
}

// printResults writes one summary per document and its errors grouped by
// reason.
func printResults(cmd *cobra.Command, results []domain.DocumentResult) {
	if len(results) == 0 {
		return
	}
	cmd.Println()
	for _, r := range results {
		success := humanize.Comma(int64(r.Success))
		if r.Success > 0 {
			success = successStyle.Render(success)
		}
		failed := humanize.Comma(int64(len(r.Errors)))
		if len(r.Errors) > 0 {
			failed = errorStyle.Render(failed)
		}
		cmd.Printf("%s %s successfully %s, %s errors:\n", success, r.Model, r.Action.Past(), failed)

		reasons := r.ReasonCounts()
		keys := make([]string, 0, len(reasons))
		for k := range reasons {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Printf("    - %s : %d\n", k, reasons[k])
		}
	}
	cmd.Println()
}
