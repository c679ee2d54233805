package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/searchsync/internal/logger"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Apply queued index changes",
	Long: `Runs the worker that applies the changes queued by the deferred signal
processor. It keeps polling until interrupted, and follows edits to the
configuration file while it runs.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "process the due tasks and exit")
	rootCmd.AddCommand(workerCmd)
}

// notifyContext is replaced in tests.
var notifyContext = func(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if taskWorker == nil {
		return errors.New("task worker not configured")
	}

	if workerOnce {
		n, err := taskWorker.RunOnce(context.Background())
		if err != nil {
			return fmt.Errorf("worker failed: %w", err)
		}
		cmd.Printf("Processed %d tasks\n", n)
		return nil
	}

	ctx, stop := notifyContext(context.Background())
	defer stop()

	cmd.Println("Worker started, press Ctrl+C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	if configWatch != nil {
		g.Go(func() error {
			return configWatch(gctx, reloadSettings)
		})
	}
	g.Go(func() error {
		return taskWorker.Start(gctx)
	})

	err := g.Wait()
	if stopErr := taskWorker.Stop(); stopErr != nil {
		logger.Warn("stopping worker: %v", stopErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker failed: %w", err)
	}
	cmd.Println("Worker stopped.")
	return nil
}

// reloadSettings applies the settings that can change while running.
func reloadSettings() {
	if settingsService == nil {
		return
	}
	settings, err := settingsService.Get()
	if err != nil {
		logger.Warn("reloading settings: %v", err)
		return
	}
	if setAutosync != nil {
		setAutosync(settings.Autosync)
	}
	logger.Info("settings reloaded (autosync %s)", onOff(settings.Autosync))
}
