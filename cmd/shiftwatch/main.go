package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shiftwatch/internal/bootstrap"
	"shiftwatch/internal/engine"
	"shiftwatch/internal/platform/config"
	"shiftwatch/internal/platform/logging"
)

const timeLayout = "2006-01-02 15:04:05"

type rootOptions struct {
	dataDir string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "shiftwatch",
		Short:         "Shift session lifecycle and audit trail",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", ".", "directory holding .shiftwatch state and arrival reports")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newShiftCmd(opts))
	root.AddCommand(newBreakCmd(opts))
	root.AddCommand(newAuditCmd(opts))
	root.AddCommand(newSOSCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	return root
}

// withApp runs fn with a wired app and a context cancelled by Ctrl+C, and
// closes the app afterwards.
func withApp(opts *rootOptions, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := config.New(opts.dataDir)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogPath, opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close app", zap.Error(err))
		}
	}()
	return fn(ctx, app)
}

// hold runs g through its latch when hold confirmation is on. The press is
// held for as long as the command keeps running; Ctrl+C releases it.
func hold(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, g engine.Gesture) (engine.GestureResult, error) {
	if app.Engine.HoldRequired() {
		d := app.Settings.Current().HoldDuration()
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "holding %s for %s (Ctrl+C to release)\n", g, d)
	}
	res, err := app.Engine.Hold(ctx, g)
	if errors.Is(err, context.Canceled) {
		return res, fmt.Errorf("%s released before confirmation", g)
	}
	return res, err
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
