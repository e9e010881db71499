package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shiftwatch/internal/bootstrap"
	"shiftwatch/internal/engine"
	shiftdto "shiftwatch/internal/modules/shift/dto"
	apperrors "shiftwatch/internal/platform/errors"
)

const (
	submitAttempts  = 3
	submittingState = "SUBMITTING"
)

func newShiftCmd(opts *rootOptions) *cobra.Command {
	shift := &cobra.Command{Use: "shift", Short: "Shift lifecycle"}

	shift.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start a shift",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.Engine.StartShift(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "shift started: %s at=%s\n", out.SessionID, out.StartTime.Local().Format(timeLayout))
				return nil
			})
		},
	})

	shift.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the open shift",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				snap, err := app.Engine.Snapshot(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if !snap.Shift.Open {
					_, _ = fmt.Fprintln(w, "off watch")
					return nil
				}
				st := snap.Shift
				_, _ = fmt.Fprintf(w, "session: %s\nstarted: %s\nelapsed: %s / %s\nremaining: %s\novertime: %t\nearnings: %.2f\n",
					st.SessionID, st.StartTime.Local().Format(timeLayout),
					formatDuration(st.Elapsed), formatDuration(st.ShiftDuration),
					formatDuration(st.Remaining), st.Overtime, st.Earnings)
				if snap.Break.OnBreak {
					_, _ = fmt.Fprintf(w, "break: %s back at %s\n", snap.Break.Kind, snap.Break.EstimatedReturn.Local().Format(timeLayout))
				}
				return nil
			})
		},
	})

	var reason, statement string
	var emergency bool
	end := &cobra.Command{
		Use:   "end [--reason <code> --statement <text> | --emergency]",
		Short: "End the open shift",
		Long: "End the open shift. Leaving before the shift duration needs a departure manifest:\n" +
			"a reason code (medical, technical, personal, completed-early, other) and a statement,\n" +
			"or --emergency to bypass it.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				res, err := hold(ctx, cmd, app, engine.GestureEndShift)
				if err != nil {
					return err
				}
				out := res.Departure
				if !out.ManifestRequired {
					printClosed(cmd, *out.Closed)
					return nil
				}
				if out.State.State == submittingState {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "finishing the departure recorded by an earlier run")
				}
				closed, err := submitManifest(ctx, app.Engine, out.State.State, reason, statement, emergency)
				if err != nil {
					return err
				}
				if closed != nil {
					printClosed(cmd, *closed)
				}
				return nil
			})
		},
	}
	end.Flags().StringVar(&reason, "reason", "", "departure reason code")
	end.Flags().StringVar(&statement, "statement", "", "departure statement")
	end.Flags().BoolVar(&emergency, "emergency", false, "bypass the manifest under emergency protocol")

	var limit int
	history := &cobra.Command{
		Use:   "history",
		Short: "List closed shifts, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				shifts, err := app.ShiftCLI.History(ctx, limit)
				if err != nil {
					return err
				}
				if len(shifts) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no closed shifts")
					return nil
				}
				for _, s := range shifts {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\titems=%d\t%.2f\n",
						s.SessionID, s.StartTime.Local().Format(timeLayout),
						formatDuration(time.Duration(s.DurationSeconds*float64(time.Second))),
						s.ItemsCompleted, s.Earnings)
				}
				return nil
			})
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "maximum shifts to list")

	shift.AddCommand(end, history)
	return shift
}

// submitManifest fills the draft from flags and submits it, retrying storage
// failures. Anything short of a recorded departure cancels the draft. A
// departure frozen by an earlier run is submitted as it was; the flags are
// ignored.
func submitManifest(ctx context.Context, eng *engine.Engine, state, reason, statement string, emergency bool) (*shiftdto.ClosedOutput, error) {
	cancel := func() { _, _ = eng.CancelDeparture(context.WithoutCancel(ctx)) }
	var err error
	switch {
	case state == submittingState:
	case emergency:
		_, err = eng.SetEmergency(ctx, true)
	case strings.TrimSpace(reason) != "" || strings.TrimSpace(statement) != "":
		_, err = eng.UpdateDraft(ctx, reason, statement)
	default:
		cancel()
		return nil, fmt.Errorf("leaving early needs --reason and --statement, or --emergency")
	}
	if err != nil {
		cancel()
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		res, err := eng.SubmitDeparture(ctx)
		if err == nil {
			return res.Closed, nil
		}
		if errors.Is(err, apperrors.ErrValidationFailed) {
			cancel()
			return nil, err
		}
		if !apperrors.IsRetryable(err) || attempt == submitAttempts {
			return nil, fmt.Errorf("departure not recorded after %d attempt(s): %w", attempt, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
		}
	}
}

func printClosed(cmd *cobra.Command, c shiftdto.ClosedOutput) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "shift closed: %s duration=%s items=%d earnings=%.2f\n",
		c.SessionID, formatDuration(time.Duration(c.DurationSeconds*float64(time.Second))), c.ItemsCompleted, c.Earnings)
	if c.ReportPath != "" {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "arrival report: %s\n", c.ReportPath)
	}
}
