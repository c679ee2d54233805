package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the search backend, signal processing and other options.

Use subcommands to change specific settings.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsAutosyncCmd = &cobra.Command{
	Use:       "autosync on|off",
	Short:     "Enable or disable automatic index updates",
	Long:      `Toggle propagation of store changes to the search index.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runSettingsAutosync,
}

var settingsBackendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Configure the search backend",
	Long: `Select the search backend interactively.

Available backends:
  bleve      - Embedded index stored on disk (no setup required)
  opensearch - OpenSearch cluster reached over HTTP`,
	RunE: runSettingsBackend,
}

var settingsProcessorCmd = &cobra.Command{
	Use:   "processor realtime|deferred",
	Short: "Select how store changes reach the index",
	Long: `Select the signal processor.

  realtime - update the index synchronously on every change
  deferred - queue changes after commit and let 'searchsync worker' apply them`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(domain.ProcessorRealTime), string(domain.ProcessorDeferred)},
	RunE:      runSettingsProcessor,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsAutosyncCmd)
	settingsCmd.AddCommand(settingsBackendCmd)
	settingsCmd.AddCommand(settingsProcessorCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Sync]")
	cmd.Printf("  Autosync: %s\n", onOff(settings.Autosync))
	cmd.Printf("  Auto refresh: %s\n", onOff(settings.AutoRefresh))
	cmd.Printf("  Processor: %s\n", settings.SignalProcessor)
	cmd.Printf("  Serializer: %s\n", settings.Serializer)
	cmd.Printf("  Pagination: %d\n", settings.Pagination)
	cmd.Println()

	cmd.Println("[Backend]")
	cmd.Printf("  Kind: %s\n", settings.Backend.Kind)
	switch settings.Backend.Kind {
	case domain.BackendOpenSearch:
		cmd.Printf("  Addresses: %s\n", strings.Join(settings.Backend.Addresses, ", "))
		if settings.Backend.Username != "" {
			cmd.Printf("  Username: %s\n", settings.Backend.Username)
		}
		if settings.Backend.Password != "" {
			cmd.Printf("  Password: %s\n", maskSecret(settings.Backend.Password))
		} else {
			cmd.Printf("  Password: (not set)\n")
		}
	default:
		cmd.Printf("  Path: %s\n", valueOr(settings.Backend.Path, "(default)"))
	}
	cmd.Println()

	cmd.Println("[Bulk]")
	cmd.Printf("  Chunk size: %d\n", settings.Bulk.ChunkSize)
	cmd.Printf("  Threads: %d\n", settings.Bulk.Threads)
	if settings.Bulk.Rate > 0 {
		cmd.Printf("  Rate: %g/s\n", settings.Bulk.Rate)
	} else {
		cmd.Printf("  Rate: unlimited\n")
	}
	cmd.Println()

	cmd.Println("[Worker]")
	cmd.Printf("  Interval: %s\n", settings.WorkerInterval())
	cmd.Printf("  Max attempts: %d\n", settings.Worker.MaxAttempts)
	cmd.Printf("  Batch size: %d\n", settings.Worker.BatchSize)
	cmd.Println()

	cmd.Println("[Store]")
	cmd.Printf("  Path: %s\n", valueOr(settings.Store.Path, "(default)"))

	return nil
}

func runSettingsAutosync(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	var enabled bool
	switch strings.ToLower(args[0]) {
	case "on", "true", "yes":
		enabled = true
	case "off", "false", "no":
		enabled = false
	default:
		return fmt.Errorf("%w: expected on or off, got %q", domain.ErrInvalidInput, args[0])
	}

	if err := settingsService.SetAutosync(enabled); err != nil {
		return fmt.Errorf("failed to set autosync: %w", err)
	}
	if setAutosync != nil {
		setAutosync(enabled)
	}
	cmd.Printf("Autosync %s.\n", onOff(enabled))
	return nil
}

func runSettingsProcessor(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	kind := domain.ProcessorKind(strings.ToLower(args[0]))
	if !kind.IsValid() {
		return fmt.Errorf("%w: unknown processor %q", domain.ErrInvalidInput, args[0])
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	settings.SignalProcessor = kind
	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	cmd.Printf("Signal processor set to: %s\n", kind)
	if kind == domain.ProcessorDeferred {
		cmd.Println("Run 'searchsync worker' to apply queued changes.")
	}
	return nil
}

func runSettingsBackend(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Println("Select Search Backend")
	cmd.Println("---------------------")
	kinds := []domain.BackendKind{domain.BackendBleve, domain.BackendOpenSearch}
	current := 1
	for i, k := range kinds {
		cmd.Printf("  %d. %s\n", i+1, k)
		if k == settings.Backend.Kind {
			current = i + 1
		}
	}
	cmd.Printf("\nEnter choice [%d]: ", current)
	idx := parseChoice(readLine(reader), len(kinds), current)
	settings.Backend.Kind = kinds[idx-1]

	switch settings.Backend.Kind {
	case domain.BackendOpenSearch:
		defaultAddrs := strings.Join(settings.Backend.Addresses, ",")
		cmd.Printf("Enter addresses [%s]: ", defaultAddrs)
		if input := readLine(reader); input != "" {
			settings.Backend.Addresses = splitList(input)
		}
		cmd.Printf("Enter username [%s]: ", settings.Backend.Username)
		if input := readLine(reader); input != "" {
			settings.Backend.Username = input
		}
		if settings.Backend.Username != "" {
			cmd.Print("Enter password (empty keeps the current one): ")
			if password := readPassword(cmd.InOrStdin(), reader); password != "" {
				settings.Backend.Password = password
			}
			cmd.Println()
		}
	default:
		cmd.Printf("Enter index directory [%s]: ", valueOr(settings.Backend.Path, "default"))
		if input := readLine(reader); input != "" {
			settings.Backend.Path = input
		}
	}

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	cmd.Printf("Search backend configured: %s\n", settings.Backend.Kind)
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

func readPassword(in io.Reader, reader *bufio.Reader) string {
	// Read without echo when attached to a terminal
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return string(password)
		}
	}
	return readLine(reader)
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:2] + "..." + secret[len(secret)-2:]
}

func splitList(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
