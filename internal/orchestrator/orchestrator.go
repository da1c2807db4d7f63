// Package orchestrator drives batch enrichment runs: it slices the work,
// hands each slice to the enrichment coordinator, persists the results,
// and keeps the session ledger current so runs survive interruption.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scholargraph/enrich-cli/internal/enrich"
	"github.com/scholargraph/enrich-cli/internal/model"
	"github.com/scholargraph/enrich-cli/internal/progress"
	"github.com/scholargraph/enrich-cli/internal/resilience"
	"github.com/scholargraph/enrich-cli/internal/store"
	"github.com/scholargraph/enrich-cli/pkg/arxiv"
)

// DefaultSliceSize is how many papers go through the coordinator at once.
const DefaultSliceSize = 20

// Enricher runs the staged fan-out over one slice of papers.
type Enricher interface {
	EnrichSlice(ctx context.Context, papers []model.Paper) *enrich.SliceResult
}

// Orchestrator owns one batch run end to end.
type Orchestrator struct {
	feed      arxiv.Client
	enricher  Enricher
	store     store.Store
	progress  progress.Store
	keys      *resilience.KeyRing
	sliceSize int
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithSliceSize overrides the per-slice paper count.
func WithSliceSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sliceSize = n
		}
	}
}

// WithKeyRing attaches the web-search credential ring so its position can
// be persisted when the session pauses on quota exhaustion.
func WithKeyRing(keys *resilience.KeyRing) Option {
	return func(o *Orchestrator) { o.keys = keys }
}

// New creates an Orchestrator.
func New(feed arxiv.Client, enricher Enricher, st store.Store, prog progress.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		feed:      feed,
		enricher:  enricher,
		store:     st,
		progress:  prog,
		sliceSize: DefaultSliceSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts a new session over the given papers and processes it to
// completion, pause, or failure. The returned session carries the final
// status; api_exhausted and paused sessions resume later.
func (o *Orchestrator) Run(ctx context.Context, source string, papers []model.Paper) (*model.Session, error) {
	ids := make([]string, len(papers))
	for i, p := range papers {
		ids[i] = p.ArxivID
	}

	sess, err := o.progress.CreateSession(ctx, source, ids)
	if err != nil {
		return nil, err
	}

	// Paper metadata lands before enrichment so even a run that dies on
	// its first slice leaves the feed data queryable.
	if _, err := o.store.SavePapers(ctx, papers); err != nil {
		o.failSession(ctx, sess.ID, err)
		return nil, err
	}

	if err := o.progress.UpdateSessionStatus(ctx, sess.ID, model.SessionInProgress, ""); err != nil {
		return nil, err
	}

	zap.L().Info("session started",
		zap.String("session", sess.ID),
		zap.String("source", source),
		zap.Int("papers", len(papers)),
	)
	return o.process(ctx, sess.ID, papers)
}

// Resume picks up an interrupted session: only items still pending or
// failed are re-fetched and re-dispatched.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := o.progress.ResumeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ids, err := o.progress.PendingIDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if err := o.progress.UpdateSessionStatus(ctx, sessionID, model.SessionCompleted, ""); err != nil {
			return nil, err
		}
		return o.progress.GetSession(ctx, sessionID)
	}

	papers, err := o.feed.FetchByIDs(ctx, ids)
	if err != nil {
		o.failSession(ctx, sessionID, err)
		return nil, eris.Wrap(err, "orchestrator: refetch pending papers")
	}

	zap.L().Info("session resumed",
		zap.String("session", sess.ID),
		zap.Int("remaining", len(papers)),
	)
	return o.process(ctx, sessionID, toPapers(papers))
}

func (o *Orchestrator) process(ctx context.Context, sessionID string, papers []model.Paper) (*model.Session, error) {
	for start := 0; start < len(papers); start += o.sliceSize {
		end := min(start+o.sliceSize, len(papers))
		slice := papers[start:end]

		if err := ctx.Err(); err != nil {
			if uerr := o.progress.UpdateSessionStatus(ctx, sessionID, model.SessionPaused, err.Error()); uerr != nil {
				zap.L().Warn("pause session", zap.Error(uerr))
			}
			return o.progress.GetSession(context.WithoutCancel(ctx), sessionID)
		}

		work := make([]model.Paper, 0, len(slice))
		for _, p := range slice {
			// Papers fully enriched by an earlier session over an
			// overlapping window are not worth any API calls.
			complete, err := o.store.HasCompleteEnrichment(ctx, p.ArxivID)
			if err != nil {
				zap.L().Warn("enrichment coverage check", zap.String("paper", p.ArxivID), zap.Error(err))
			}
			if complete {
				if err := o.progress.MarkItem(ctx, sessionID, p.ArxivID, model.ItemSkipped, "", 0); err != nil {
					return nil, err
				}
				continue
			}
			if err := o.progress.MarkItem(ctx, sessionID, p.ArxivID, model.ItemInProgress, "", 0); err != nil {
				return nil, err
			}
			work = append(work, p)
		}
		if len(work) == 0 {
			if err := o.progress.SyncProgress(ctx, sessionID); err != nil {
				return nil, err
			}
			continue
		}

		began := time.Now()
		result := o.enricher.EnrichSlice(ctx, work)
		elapsed := time.Since(began)
		perItem := elapsed / time.Duration(len(work))

		for _, p := range work {
			pr := result.Results[p.ArxivID]
			switch {
			case pr == nil:
				// Left in_progress; resume requeues stale items.
			case pr.Quota:
				// Work for this paper was cut short by the quota wall;
				// nothing was persisted, so it must land in the failed
				// set that resume re-dispatches.
				if err := o.progress.MarkItem(ctx, sessionID, p.ArxivID, model.ItemFailed, "credential pool exhausted", perItem); err != nil {
					return nil, err
				}
			case pr.Failed:
				if err := o.progress.MarkItem(ctx, sessionID, p.ArxivID, model.ItemFailed, pr.Reason, perItem); err != nil {
					return nil, err
				}
			default:
				if err := o.store.SaveEnrichment(ctx, p, pr.Fragment); err != nil {
					// Store loss is fatal for the run but not for the
					// session: everything unsaved stays re-dispatchable.
					o.failSession(ctx, sessionID, err)
					return nil, eris.Wrapf(err, "orchestrator: persist %s", p.ArxivID)
				}
				if err := o.progress.MarkItem(ctx, sessionID, p.ArxivID, model.ItemCompleted, "", perItem); err != nil {
					return nil, err
				}
			}
		}

		if err := o.progress.SyncProgress(ctx, sessionID); err != nil {
			return nil, err
		}

		if result.QuotaExhausted {
			keyIndex := 0
			if o.keys != nil {
				_, keyIndex = o.keys.Current()
			}
			if err := o.progress.MarkQuotaExhausted(ctx, sessionID, keyIndex); err != nil {
				return nil, err
			}
			zap.L().Warn("session paused: credential pool exhausted",
				zap.String("session", sessionID),
				zap.Int("key_index", keyIndex),
			)
			return o.progress.GetSession(ctx, sessionID)
		}
	}

	// Completion is derived from the ledger, not from having drained the
	// input: a resume whose feed fetch came back short leaves items that
	// were never dispatched, and those must keep the session resumable.
	snap, err := o.progress.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if undispatched := snap.Pending + snap.InFlight; undispatched > 0 {
		msg := fmt.Sprintf("items never dispatched: %d", undispatched)
		if err := o.progress.UpdateSessionStatus(ctx, sessionID, model.SessionFailed, msg); err != nil {
			return nil, err
		}
		zap.L().Warn("session incomplete",
			zap.String("session", sessionID),
			zap.Int("undispatched", undispatched),
		)
		return o.progress.GetSession(ctx, sessionID)
	}

	if err := o.progress.UpdateSessionStatus(ctx, sessionID, model.SessionCompleted, ""); err != nil {
		return nil, err
	}
	sess, err := o.progress.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("session completed",
		zap.String("session", sess.ID),
		zap.Int("processed", sess.Processed),
		zap.Int("failed", sess.Failed),
	)
	return sess, nil
}

func (o *Orchestrator) failSession(ctx context.Context, sessionID string, cause error) {
	if err := o.progress.UpdateSessionStatus(context.WithoutCancel(ctx), sessionID, model.SessionFailed, cause.Error()); err != nil {
		zap.L().Warn("record session failure", zap.Error(err))
	}
}

func toPapers(entries []arxiv.Entry) []model.Paper {
	papers := make([]model.Paper, len(entries))
	for i, e := range entries {
		papers[i] = FromEntry(e)
	}
	return papers
}

// FromEntry converts a feed entry into the internal paper record.
func FromEntry(e arxiv.Entry) model.Paper {
	return model.Paper{
		ArxivID:    model.BaseID(e.ID),
		Title:      e.Title,
		Abstract:   e.Summary,
		Authors:    e.Authors,
		Categories: e.Categories,
		PDFURL:     e.PDFURL,
		Published:  e.Published,
		Updated:    e.Updated,
	}
}
