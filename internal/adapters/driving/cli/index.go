package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

var (
	indexForce       bool
	indexIgnoreError bool
	versionSuffix    string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage search indices",
	Long: `Create, delete, update or rebuild the declared indices, and manage their
versions.

update puts the current mappings on existing indices. Run it before indexing
documents with new fields, otherwise the backend guesses their type.`,
}

var indexCreateCmd = &cobra.Command{
	Use:   "create [INDEX...]",
	Short: "Create indices",
	RunE:  runIndexAction(domain.CommandCreate),
}

var indexDeleteCmd = &cobra.Command{
	Use:   "delete [INDEX...]",
	Short: "Delete indices",
	RunE:  runIndexAction(domain.CommandDelete),
}

var indexUpdateCmd = &cobra.Command{
	Use:   "update [INDEX...]",
	Short: "Update index mappings",
	RunE:  runIndexAction(domain.CommandUpdate),
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild [INDEX...]",
	Short: "Delete and recreate indices",
	RunE:  runIndexAction(domain.CommandRebuild),
}

var indexVersionsCmd = &cobra.Command{
	Use:   "versions INDEX",
	Short: "List the versions of an index",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexVersions,
}

var indexNewVersionCmd = &cobra.Command{
	Use:   "new-version INDEX",
	Short: "Create an inactive version of an index",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexNewVersion,
}

var indexActivateCmd = &cobra.Command{
	Use:   "activate INDEX VERSION",
	Short: "Point an index alias at one of its versions",
	Args:  cobra.ExactArgs(2),
	RunE:  runIndexActivate,
}

var indexReindexCmd = &cobra.Command{
	Use:   "reindex INDEX",
	Short: "Fill a new version of an index and activate it",
	Long: `Creates a new version of the index, indexes every document into it and
moves the alias once it is complete. Searches keep hitting the previous
version until then.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexReindex,
}

func init() {
	for _, c := range []*cobra.Command{indexCreateCmd, indexDeleteCmd, indexUpdateCmd, indexRebuildCmd} {
		c.Flags().BoolVar(&indexForce, "force", false, "do not ask for confirmation")
		c.Flags().BoolVar(&indexIgnoreError, "ignore-error", false, "do not stop on error")
		indexCmd.AddCommand(c)
	}
	indexNewVersionCmd.Flags().StringVar(&versionSuffix, "suffix", "", "version suffix (default: current UTC time)")
	indexReindexCmd.Flags().BoolVar(&indexForce, "force", false, "do not ask for confirmation")

	indexCmd.AddCommand(indexVersionsCmd)
	indexCmd.AddCommand(indexNewVersionCmd)
	indexCmd.AddCommand(indexActivateCmd)
	indexCmd.AddCommand(indexReindexCmd)
	rootCmd.AddCommand(indexCmd)
}

// selectIndices returns the declared index names matching args, or all of
// them when args is empty.
func selectIndices(ctx context.Context, args []string) ([]string, error) {
	statuses, err := managementService.ListIndices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}
	known := make([]string, 0, len(statuses))
	for _, st := range statuses {
		known = append(known, st.Name)
	}
	if len(args) == 0 {
		return known, nil
	}

	var unknown []string
	for _, name := range args {
		if !slices.Contains(known, name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s, choices are: %s",
			domain.ErrUnknownIndex, strings.Join(unknown, ", "), strings.Join(known, ", "))
	}
	return args, nil
}

func runIndexAction(action domain.CommandAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if managementService == nil {
			return errors.New("management service not configured")
		}
		ctx := context.Background()

		names, err := selectIndices(ctx, args)
		if err != nil {
			return err
		}

		cmd.Printf("The following indices will be %s:\n", action.Past())
		for _, name := range names {
			cmd.Printf("\t- %s.\n", name)
		}
		cmd.Println()
		if err := requireForce(cmd, indexForce, "Continue?"); err != nil {
			return err
		}

		participle := strings.ToUpper(action.Participle()[:1]) + action.Participle()[1:]
		ignore := indexIgnoreError
		report := func(res domain.IndexResult) {
			prefix := fmt.Sprintf("%s index '%s'...", participle, res.Index)
			switch {
			case res.Err == nil:
				cmd.Printf("%s %s\n", prefix, successStyle.Render("OK"))
			case ignore:
				cmd.Printf("%s\n%s\n", prefix, errorStyle.Render("Error: "+transportMessage(res.Err)))
			default:
				cmd.Printf("%s %s\n", prefix, errorStyle.Render("FAILED"))
			}
		}

		return managementService.ManageIndex(ctx, domain.IndexRequest{
			Action:      action,
			Indices:     names,
			IgnoreError: ignore,
		}, report)
	}
}

// transportMessage renders backend errors as "type - reason".
func transportMessage(err error) string {
	var te *domain.TransportError
	if errors.As(err, &te) {
		return te.Error()
	}
	return err.Error()
}

func runIndexVersions(cmd *cobra.Command, args []string) error {
	if managementService == nil {
		return errors.New("management service not configured")
	}

	versions, active, err := managementService.Versions(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}
	if active == args[0] {
		cmd.Printf("%s is a concrete index without versions.\n", args[0])
		return nil
	}
	if len(versions) == 0 {
		cmd.Printf("No versions of %s.\n", args[0])
		return nil
	}
	for _, v := range versions {
		if v == active {
			cmd.Printf("* %s %s\n", v, successStyle.Render("(active)"))
			continue
		}
		cmd.Printf("  %s\n", v)
	}
	return nil
}

func runIndexNewVersion(cmd *cobra.Command, args []string) error {
	if managementService == nil {
		return errors.New("management service not configured")
	}

	name, err := managementService.CreateVersion(context.Background(), args[0], versionSuffix)
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	cmd.Printf("Created version %s (inactive).\n", name)
	return nil
}

func runIndexActivate(cmd *cobra.Command, args []string) error {
	if managementService == nil {
		return errors.New("management service not configured")
	}

	if err := managementService.ActivateVersion(context.Background(), args[0], args[1]); err != nil {
		return fmt.Errorf("failed to activate version: %w", err)
	}
	cmd.Printf("%s now points at %s.\n", args[0], args[1])
	return nil
}

func runIndexReindex(cmd *cobra.Command, args []string) error {
	if managementService == nil {
		return errors.New("management service not configured")
	}

	cmd.Printf("Every document of %s will be indexed into a new version.\n\n", args[0])
	if err := requireForce(cmd, indexForce, "Continue?"); err != nil {
		return err
	}

	name, results, err := managementService.Reindex(context.Background(), args[0], progressPrinter(cmd))
	printResults(cmd, results)
	if err != nil {
		return fmt.Errorf("failed to reindex %s: %w", args[0], err)
	}
	cmd.Printf("%s now points at %s.\n", args[0], name)
	return nil
}
