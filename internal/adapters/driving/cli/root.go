// Package cli implements the searchsync command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driving"
	"github.com/custodia-labs/searchsync/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=1.2.3".
var version = "dev"

// WatchFunc watches the configuration and calls onChange after each
// reload, until ctx is cancelled.
type WatchFunc func(ctx context.Context, onChange func()) error

// Services holds the core services the commands drive.
type Services struct {
	Management driving.ManagementService
	Search     driving.SearchService
	Settings   driving.SettingsService
	Worker     driving.TaskWorker

	// Watch is optional; without it the worker does not follow config edits.
	Watch WatchFunc

	// Autosync flips propagation on the running registry.
	Autosync func(enabled bool)
}

// Options are the global flags handed to the setup function.
type Options struct {
	ConfigDir string
	Verbose   bool
}

// SetupFunc builds the services once flags are parsed. The returned
// function releases them.
type SetupFunc func(opts Options) (Services, func() error, error)

var (
	managementService driving.ManagementService
	searchService     driving.SearchService
	settingsService   driving.SettingsService
	taskWorker        driving.TaskWorker
	configWatch       WatchFunc
	setAutosync       func(enabled bool)

	setup    SetupFunc
	teardown func() error

	verbose   bool
	configDir string
)

// skipSetup marks commands that run without services.
const skipSetup = "skip-setup"

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
)

// errAborted is returned when the user declines a confirmation.
var errAborted = errors.New("aborted")

var rootCmd = &cobra.Command{
	Use:   "searchsync",
	Short: "Keep a search index in sync with relational data",
	Long: `searchsync mirrors relational entities into search indices.

It creates and versions indices, bulk indexes documents from the relational
store and runs the worker that applies deferred changes.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: prepare,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.searchsync)")
}

// SetServices installs the services used by the commands.
func SetServices(s Services) {
	managementService = s.Management
	searchService = s.Search
	settingsService = s.Settings
	taskWorker = s.Worker
	configWatch = s.Watch
	setAutosync = s.Autosync
}

// SetSetup installs the function that builds the services lazily, after
// the global flags are parsed.
func SetSetup(fn SetupFunc) {
	setup = fn
}

func prepare(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if setup == nil || cmd.Annotations[skipSetup] == "true" {
		return nil
	}
	services, release, err := setup(Options{ConfigDir: configDir, Verbose: verbose})
	if err != nil {
		return err
	}
	SetServices(services)
	teardown = release
	return nil
}

// Execute runs the root command and prints the error, if any.
func Execute() error {
	err := rootCmd.Execute()
	if teardown != nil {
		if closeErr := teardown(); closeErr != nil {
			logger.Warn("releasing resources: %v", closeErr)
		}
		teardown = nil
	}
	if err != nil && !errors.Is(err, errAborted) {
		rootCmd.PrintErrln(errorStyle.Render("Error: " + err.Error()))
	}
	return err
}

// confirm asks the user to continue. It is a variable so tests can answer.
var confirm = promptConfirm

func promptConfirm(_ *cobra.Command, title string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("%w: use --force to run without a terminal", domain.ErrConfirmationRequired)
	}
	ok := false
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return fmt.Errorf("confirmation prompt: %w", err)
	}
	if !ok {
		return errAborted
	}
	return nil
}

// requireForce confirms unless force is set.
func requireForce(cmd *cobra.Command, force bool, title string) error {
	if force {
		return nil
	}
	return confirm(cmd, title)
}
