package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shiftwatch/internal/bootstrap"
	"shiftwatch/internal/engine"
)

func newBreakCmd(opts *rootOptions) *cobra.Command {
	brk := &cobra.Command{Use: "break", Short: "Shore leave and galley breaks"}

	brk.AddCommand(&cobra.Command{
		Use:   "begin <shore-leave|galley>",
		Short: "Step away from the watch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.Engine.BeginBreak(ctx, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s started at %s, back by %s\n",
					out.Kind, out.AwayStart.Local().Format(timeLayout), out.EstimatedReturn.Local().Format(timeLayout))
				return nil
			})
		},
	})

	brk.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the active break",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.WatchCLI.Status(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				if !out.OnBreak {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "on watch")
					return nil
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s away=%s remaining=%s\n", out.Kind, formatDuration(out.Away), formatDuration(out.Remaining))
				return nil
			})
		},
	})

	brk.AddCommand(&cobra.Command{
		Use:   "resume",
		Short: "Return to the watch and log a safety check",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				res, err := hold(ctx, cmd, app, engine.GestureResume)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "safety check logged: %s\n", res.Resume.Details)
				return nil
			})
		},
	})
	return brk
}

func newSOSCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sos",
		Short: "Fire the SOS beacon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				res, err := hold(ctx, cmd, app, engine.GestureSOS)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "SOS beacon logged: %s\n", res.SOS.ID)
				return nil
			})
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the interactive watch screen",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				return bootstrap.RunTUI(ctx, app)
			})
		},
	}
}
