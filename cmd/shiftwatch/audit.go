package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shiftwatch/internal/bootstrap"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	audit := &cobra.Command{Use: "audit", Short: "Append-only audit trail"}

	var kinds []string
	var since time.Duration
	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "List recent audit entries, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				var from time.Time
				if since > 0 {
					from = time.Now().UTC().Add(-since)
				}
				entries, err := app.AuditCLI.Tail(ctx, kinds, from, limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no audit entries")
					return nil
				}
				for _, e := range entries {
					reason := e.ReasonCode
					if reason == "" {
						reason = "-"
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\n",
						e.Timestamp.Local().Format(timeLayout), e.Kind, reason, e.ID, e.Details)
				}
				return nil
			})
		},
	}
	tail.Flags().StringSliceVar(&kinds, "kind", nil, "filter by kind (repeatable)")
	tail.Flags().DurationVar(&since, "since", 0, "only entries newer than this, e.g. 24h")
	tail.Flags().IntVar(&limit, "limit", 50, "maximum entries")

	record := &cobra.Command{
		Use:   "record <offline|drift|security> <details...>",
		Short: "Record an event reported by an outside detector",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.Engine.RecordEvent(ctx, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "recorded %s %s\n", out.Kind, out.ID)
				return nil
			})
		},
	}

	audit.AddCommand(tail, record)
	return audit
}
