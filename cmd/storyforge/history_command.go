package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"storyforge/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [session]",
		Short: "Show recorded generation attempts",
		Long: `Without arguments, list recent sessions with their final asset counts.
With a session id, list every recorded transition for that session.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			runCtx := commandScope(cmd)
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				attempts, err := store.ListAttempts(runCtx, args[0])
				if err != nil {
					return err
				}
				if len(attempts) == 0 {
					fmt.Fprintf(out, "No attempts recorded for %s\n", args[0])
					return nil
				}
				fmt.Fprintln(out, renderAttempts(attempts))
				return nil
			}

			sessions, err := store.RecentSessions(runCtx, limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded")
				return nil
			}
			fmt.Fprintln(out, renderSessions(sessions))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to list")
	cmd.AddCommand(newHistoryPruneCommand(ctx))
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete attempts older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			cutoff := time.Now().Add(-olderThan)
			removed, err := store.Prune(commandScope(cmd), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s attempts recorded before %s\n",
				humanize.Comma(removed), cutoff.Format(time.DateTime))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of attempts to delete")
	return cmd
}

func renderSessions(sessions []ledger.Summary) string {
	tbl := newListTable(textCol("Session"), numCol("Assets"), numCol("Succeeded"), numCol("Failed"), numCol("Size"), textCol("Last activity"))
	var total int64
	for _, s := range sessions {
		total += s.Bytes
		tbl.add(
			s.SessionID,
			fmt.Sprintf("%d", s.Pairs),
			fmt.Sprintf("%d", s.Succeeded),
			fmt.Sprintf("%d", s.Failed),
			humanize.Bytes(uint64(s.Bytes)),
			humanize.Time(s.LastSeen),
		)
	}
	return tbl.withFooter(fmt.Sprintf("%d sessions", len(sessions)), "", "", "", humanize.Bytes(uint64(total))).String()
}

func renderAttempts(attempts []ledger.Attempt) string {
	tbl := newListTable(textCol("Time"), numCol("Scene"), textCol("Kind"), textCol("Status"), numCol("Size"), numCol("Elapsed"), textCol("Error"))
	for _, a := range attempts {
		size := ""
		if a.Bytes > 0 {
			size = humanize.Bytes(uint64(a.Bytes))
		}
		elapsed := ""
		if a.Elapsed > 0 {
			elapsed = a.Elapsed.Round(time.Millisecond).String()
		}
		tbl.add(
			a.RecordedAt.Local().Format(time.TimeOnly),
			fmt.Sprintf("%d", a.SceneID),
			string(a.Kind),
			a.Status.String(),
			size,
			elapsed,
			a.Error,
		)
	}
	return tbl.String()
}
