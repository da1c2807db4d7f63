package enrich

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scholargraph/enrich-cli/internal/model"
	"github.com/scholargraph/enrich-cli/internal/normalize"
)

// AffiliationExtractor is stage 1: first-page affiliation extraction.
type AffiliationExtractor interface {
	Extract(ctx context.Context, paper model.Paper) Outcome
}

// RegistryLookup is stage 2: identity resolution per author.
type RegistryLookup interface {
	Lookup(ctx context.Context, arxivID, author string, affiliations []string) Outcome
}

// RoleFinder is stage 3: web fallback for pairs the registry left roleless.
type RoleFinder interface {
	FindRole(ctx context.Context, arxivID, author, affiliation string) Outcome
}

// Limits are the per-stage concurrency ceilings. Each stage talks to a
// different provider, so the ceilings are independent.
type Limits struct {
	Affiliation int
	Registry    int
	RoleSearch  int
}

// DefaultLimits returns the stock stage ceilings.
func DefaultLimits() Limits {
	return Limits{Affiliation: 5, Registry: 5, RoleSearch: 3}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.Affiliation <= 0 {
		l.Affiliation = d.Affiliation
	}
	if l.Registry <= 0 {
		l.Registry = d.Registry
	}
	if l.RoleSearch <= 0 {
		l.RoleSearch = d.RoleSearch
	}
	return l
}

// PaperResult is the per-paper verdict for one slice.
type PaperResult struct {
	Fragment *model.Fragment
	Failed   bool
	Reason   string

	// Quota marks a paper that was not fully processed because the
	// credential pool died mid-slice. It is never persisted; the
	// orchestrator records it as failed so a resumed session re-queues it.
	Quota bool
}

// SliceResult is the outcome of one coordinated slice.
type SliceResult struct {
	Results        map[string]*PaperResult
	QuotaExhausted bool
}

// Coordinator drives the three enrichment stages over a slice of papers
// with bounded fan-out and merges the resulting fragments per paper.
type Coordinator struct {
	affiliations AffiliationExtractor
	registry     RegistryLookup
	roles        RoleFinder
	limits       Limits
}

// NewCoordinator wires the three workers. roles may be nil to disable the
// web fallback stage.
func NewCoordinator(affiliations AffiliationExtractor, registry RegistryLookup, roles RoleFinder, limits Limits) *Coordinator {
	return &Coordinator{
		affiliations: affiliations,
		registry:     registry,
		roles:        roles,
		limits:       limits.withDefaults(),
	}
}

// EnrichSlice processes one slice of papers. Individual worker failures
// fail their paper, never the slice; quota exhaustion halts further
// dispatch, lets in-flight work drain, and flags the result so the caller
// can pause the session.
func (c *Coordinator) EnrichSlice(ctx context.Context, papers []model.Paper) *SliceResult {
	result := &SliceResult{Results: make(map[string]*PaperResult, len(papers))}
	for _, p := range papers {
		result.Results[p.ArxivID] = &PaperResult{Fragment: model.NewFragment(p.ArxivID)}
	}

	var quota atomic.Bool

	// Stage 1: affiliation extraction, one task per paper.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limits.Affiliation)
	for _, paper := range papers {
		pr := result.Results[paper.ArxivID]
		g.Go(func() error {
			if quota.Load() || gctx.Err() != nil {
				pr.Quota = true
				return nil
			}
			c.apply(pr, c.affiliations.Extract(gctx, paper), &quota)
			return nil
		})
	}
	_ = g.Wait()

	// Stage 2: registry lookup, one task per paper, authors sequential
	// within it. Only papers whose extraction produced affiliations have
	// anything to look up.
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(c.limits.Registry)
	for _, paper := range papers {
		pr := result.Results[paper.ArxivID]
		if pr.Failed || pr.Quota || !hasAffiliations(pr.Fragment) {
			continue
		}
		g.Go(func() error {
			for _, author := range pr.Fragment.Authors {
				if len(author.Affiliations) == 0 {
					continue
				}
				if quota.Load() || gctx.Err() != nil {
					pr.Quota = true
					return nil
				}
				c.apply(pr, c.registry.Lookup(gctx, paper.ArxivID, author.Name, author.Affiliations), &quota)
				if pr.Failed || pr.Quota {
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	// Stage 3: web role fallback for pairs the registry left roleless.
	// The roleless pairs are collected up front: goroutines replace
	// pr.Fragment on merge, so the fragments must not be read while any
	// task is in flight.
	if c.roles != nil {
		type rolePair struct {
			pr                           *PaperResult
			arxivID, author, affiliation string
		}
		var pairs []rolePair
		for _, paper := range papers {
			pr := result.Results[paper.ArxivID]
			if pr.Failed || pr.Quota {
				continue
			}
			for _, author := range pr.Fragment.Authors {
				for _, affiliation := range author.Affiliations {
					key := model.RoleKey{Author: author.Name, Affiliation: normalize.Fold(affiliation)}
					if _, ok := pr.Fragment.Roles[key]; ok {
						continue
					}
					pairs = append(pairs, rolePair{pr: pr, arxivID: paper.ArxivID, author: author.Name, affiliation: affiliation})
				}
			}
		}

		var mu sync.Mutex
		g, gctx = errgroup.WithContext(ctx)
		g.SetLimit(c.limits.RoleSearch)
		for _, pair := range pairs {
			g.Go(func() error {
				if quota.Load() || gctx.Err() != nil {
					// Role work for this paper never ran; the paper must
					// not persist as done.
					mu.Lock()
					pair.pr.Quota = true
					mu.Unlock()
					return nil
				}
				outcome := c.roles.FindRole(gctx, pair.arxivID, pair.author, pair.affiliation)
				switch outcome.Status {
				case StatusQuotaExhausted:
					quota.Store(true)
					mu.Lock()
					pair.pr.Quota = true
					mu.Unlock()
				case StatusFailed:
					// The fallback is best-effort; a miss leaves the role
					// empty without failing the paper.
					zap.L().Warn("role search failed",
						zap.String("author", pair.author),
						zap.String("reason", outcome.Reason),
					)
				case StatusOK:
					mu.Lock()
					pair.pr.Fragment = model.MergeFragments(pair.pr.Fragment, outcome.Fragment)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	result.QuotaExhausted = quota.Load()
	return result
}

// apply folds a stage outcome into the paper result. Stage 1 and 2 run one
// task per paper at a time, so no lock is needed here.
func (c *Coordinator) apply(pr *PaperResult, outcome Outcome, quota *atomic.Bool) {
	switch outcome.Status {
	case StatusQuotaExhausted:
		quota.Store(true)
		pr.Quota = true
	case StatusFailed:
		pr.Failed = true
		pr.Reason = outcome.Reason
	case StatusOK:
		pr.Fragment = model.MergeFragments(pr.Fragment, outcome.Fragment)
	}
}

func hasAffiliations(f *model.Fragment) bool {
	for _, a := range f.Authors {
		if len(a.Affiliations) > 0 {
			return true
		}
	}
	return false
}
