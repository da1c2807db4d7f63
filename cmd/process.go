package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/scholargraph/enrich-cli/internal/model"
	"github.com/scholargraph/enrich-cli/internal/orchestrator"
	"github.com/scholargraph/enrich-cli/pkg/arxiv"
)

var (
	processFrom       string
	processTo         string
	processCategories []string
	processIDs        []string
	processSeed       string
	processLimit      int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Enrich a batch of papers",
	Long:  "Fetches paper metadata from the arXiv feed (by date window, explicit IDs, or a seed file) and runs the enrichment pipeline over it as a resumable session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, 0)
		if err != nil {
			return err
		}
		defer env.Close()

		ids := processIDs
		if processSeed != "" {
			seeded, err := loadSeedFile(processSeed)
			if err != nil {
				return err
			}
			ids = append(ids, seeded...)
		}

		var entries []arxiv.Entry
		var source string
		if len(ids) > 0 {
			entries, err = env.Feed.FetchByIDs(ctx, ids)
			if err != nil {
				return eris.Wrap(err, "fetch papers by id")
			}
			source = fmt.Sprintf("arxiv:ids[%d]", len(ids))
		} else {
			query, err := buildQuery()
			if err != nil {
				return err
			}
			entries, err = env.Feed.Search(ctx, query)
			if err != nil {
				return eris.Wrap(err, "search feed")
			}
			source = "arxiv:" + strings.Join(query.Categories, ",")
		}

		if processLimit > 0 && len(entries) > processLimit {
			entries = entries[:processLimit]
		}
		if len(entries) == 0 {
			zap.L().Info("no papers matched", zap.String("source", source))
			return nil
		}

		papers := make([]model.Paper, len(entries))
		for i, e := range entries {
			papers[i] = orchestrator.FromEntry(e)
		}

		sess, err := env.Orchestrator.Run(ctx, source, papers)
		if err != nil {
			return err
		}
		printSessionOutcome(sess)
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processFrom, "from", "", "submission window start (YYYY-MM-DD)")
	processCmd.Flags().StringVar(&processTo, "to", "", "submission window end (YYYY-MM-DD)")
	processCmd.Flags().StringSliceVar(&processCategories, "categories", nil, "arXiv categories to query (defaults to configured set)")
	processCmd.Flags().StringSliceVar(&processIDs, "ids", nil, "explicit arXiv IDs to enrich (skips the feed query)")
	processCmd.Flags().StringVar(&processSeed, "seed", "", "YAML file listing arXiv IDs to enrich")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "cap on papers per run (0 = no cap)")
	rootCmd.AddCommand(processCmd)
}

func buildQuery() (arxiv.Query, error) {
	q := arxiv.Query{
		Categories: processCategories,
		MaxResults: processLimit,
	}
	if len(q.Categories) == 0 {
		q.Categories = cfg.Arxiv.Categories
	}
	if q.MaxResults == 0 {
		q.MaxResults = cfg.Arxiv.MaxResults
	}

	if processFrom != "" {
		from, err := time.Parse("2006-01-02", processFrom)
		if err != nil {
			return arxiv.Query{}, eris.Wrapf(err, "parse --from %q", processFrom)
		}
		q.From = from
	}
	if processTo != "" {
		to, err := time.Parse("2006-01-02", processTo)
		if err != nil {
			return arxiv.Query{}, eris.Wrapf(err, "parse --to %q", processTo)
		}
		// Window end is inclusive of the named day.
		q.To = to.Add(24*time.Hour - time.Second)
	}
	return q, nil
}

// seedFile is the on-disk format for --seed: a YAML document with a
// top-level papers list of arXiv IDs.
type seedFile struct {
	Papers []string `yaml:"papers"`
}

func loadSeedFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read seed file %s", path)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, eris.Wrapf(err, "parse seed file %s", path)
	}
	ids := make([]string, 0, len(seed.Papers))
	for _, id := range seed.Papers {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, eris.Errorf("seed file %s lists no papers", path)
	}
	return ids, nil
}

func printSessionOutcome(sess *model.Session) {
	fmt.Printf("session %s: %s (%d/%d processed, %d failed)\n",
		sess.ID, sess.Status, sess.Processed, sess.TotalItems, sess.Failed)
	if sess.Status == model.SessionAPIExhausted {
		fmt.Printf("credential pool exhausted at key %d; resume with: enrich-cli resume %s\n",
			sess.KeyIndex, sess.ID)
	}
}
