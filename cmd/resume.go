package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scholargraph/enrich-cli/internal/progress"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume an interrupted enrichment session",
	Long:  "Re-dispatches the pending and failed items of a paused, failed, or quota-exhausted session. Credential rotation continues from the key the session stopped on.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sessionID := args[0]

		// The persisted key index decides where rotation starts, so the
		// session has to be read before the pipeline is wired up.
		keyStart, err := sessionKeyIndex(ctx, sessionID)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, keyStart)
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Orchestrator.Resume(ctx, sessionID)
		if err != nil {
			return err
		}
		printSessionOutcome(sess)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func sessionKeyIndex(ctx context.Context, sessionID string) (int, error) {
	prog, err := progress.NewSQLite(cfg.Progress.Path)
	if err != nil {
		return 0, err
	}
	defer prog.Close() //nolint:errcheck

	sess, err := prog.GetSession(ctx, sessionID)
	if err != nil {
		return 0, eris.Wrapf(err, "look up session %s", sessionID)
	}
	return sess.KeyIndex, nil
}
