package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scholargraph/enrich-cli/internal/match"
	"github.com/scholargraph/enrich-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schemas",
	Long:  "Applies the Postgres schema for enriched records and the local SQLite schema for session progress.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Store.DatabaseURL == "" {
			return eris.New("ENRICH_STORE_DATABASE_URL is required")
		}

		resolver := match.NewResolver(cfg.Match.DirectoryThreshold, cfg.Match.RoleThreshold)
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		}, resolver)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		zap.L().Info("store schema up to date")

		prog, err := openProgress(ctx)
		if err != nil {
			return err
		}
		defer prog.Close() //nolint:errcheck
		zap.L().Info("progress schema up to date", zap.String("path", cfg.Progress.Path))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
