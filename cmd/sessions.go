package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scholargraph/enrich-cli/internal/model"
	"github.com/scholargraph/enrich-cli/internal/progress"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage enrichment sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		prog, err := openProgress(cmd.Context())
		if err != nil {
			return err
		}
		defer prog.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		sessions, err := prog.ListSessions(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			zap.L().Info("no sessions found")
			return nil
		}

		formatSessions(os.Stdout, sessions)
		return nil
	},
}

var sessionsStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the item breakdown for one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := openProgress(cmd.Context())
		if err != nil {
			return err
		}
		defer prog.Close() //nolint:errcheck

		snap, err := prog.Snapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its item records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := openProgress(cmd.Context())
		if err != nil {
			return err
		}
		defer prog.Close() //nolint:errcheck

		if err := prog.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted session %s\n", args[0])
		return nil
	},
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove completed sessions past the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		prog, err := openProgress(cmd.Context())
		if err != nil {
			return err
		}
		defer prog.Close() //nolint:errcheck

		olderThan, _ := cmd.Flags().GetDuration("older-than")
		n, err := prog.CleanupCompleted(cmd.Context(), olderThan)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d completed sessions\n", n)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().Int("limit", 20, "max sessions to list")
	sessionsCleanupCmd.Flags().Duration("older-than", 7*24*time.Hour, "retention window for completed sessions")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsStatusCmd, sessionsDeleteCmd, sessionsCleanupCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openProgress(ctx context.Context) (progress.Store, error) {
	prog, err := progress.NewSQLite(cfg.Progress.Path)
	if err != nil {
		return nil, err
	}
	if err := prog.Migrate(ctx); err != nil {
		_ = prog.Close()
		return nil, eris.Wrap(err, "migrate progress store")
	}
	return prog, nil
}

func formatSessions(out io.Writer, sessions []model.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tPROCESSED\tFAILED\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			s.ID, s.Source, s.Status, s.Processed, s.TotalItems, s.Failed,
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatSnapshot(out io.Writer, snap *progress.Snapshot) {
	s := snap.Session
	fmt.Fprintf(out, "session %s (%s)\n", s.ID, s.Source)
	fmt.Fprintf(out, "status: %s", s.Status)
	if s.ErrorMessage != "" {
		fmt.Fprintf(out, " (%s)", s.ErrorMessage)
	}
	fmt.Fprintln(out)
	if s.Status == model.SessionAPIExhausted {
		fmt.Fprintf(out, "key index: %d\n", s.KeyIndex)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PENDING\tIN FLIGHT\tCOMPLETED\tFAILED\tSKIPPED")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\n",
		snap.Pending, snap.InFlight, snap.Completed, snap.Failed, snap.Skipped)
	_ = w.Flush()
}
