package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scholargraph/enrich-cli/internal/match"
	"github.com/scholargraph/enrich-cli/internal/rankings"
	"github.com/scholargraph/enrich-cli/internal/store"
)

var (
	rankingsSystem string
	rankingsYear   int
)

var rankingsCmd = &cobra.Command{
	Use:   "rankings",
	Short: "Manage institution ranking tables",
}

var rankingsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a ranking table (CSV or XLSX) and attach ranks to known institutions",
	Long:  "Parses a published ranking table and fuzzy-matches its rows against the institutions the pipeline has already collected. Rows with no match are skipped; countries are backfilled where the directory has none.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Store.DatabaseURL == "" {
			return eris.New("ENRICH_STORE_DATABASE_URL is required")
		}

		system := rankingsSystem
		if system == "" {
			system = cfg.Rankings.System
		}
		year := rankingsYear
		if year == 0 {
			year = cfg.Rankings.Year
		}
		if year == 0 {
			year = time.Now().Year()
		}

		rows, err := rankings.Load(args[0])
		if err != nil {
			return err
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

		result, err := rankings.NewApplier(st, resolver).Apply(ctx, system, year, rows)
		if err != nil {
			return err
		}

		fmt.Printf("%s %d: %d institutions ranked, %d rows unmatched\n",
			system, year, result.Matched, result.Unmatched)
		return nil
	},
}

func init() {
	rankingsImportCmd.Flags().StringVar(&rankingsSystem, "system", "", "ranking system name (defaults to configured system)")
	rankingsImportCmd.Flags().IntVar(&rankingsYear, "year", 0, "ranking year (defaults to configured year, then the current year)")
	rankingsCmd.AddCommand(rankingsImportCmd)
	rootCmd.AddCommand(rankingsCmd)
}
