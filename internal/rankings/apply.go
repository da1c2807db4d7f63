package rankings

import (
	"context"

	"go.uber.org/zap"

	"github.com/scholargraph/enrich-cli/internal/match"
	"github.com/scholargraph/enrich-cli/internal/store"
)

// ApplyResult summarizes one ranking import.
type ApplyResult struct {
	Matched   int
	Unmatched int
}

// Applier resolves ranking rows against the stored institution directory
// and persists the matches.
type Applier struct {
	store    store.Store
	resolver *match.Resolver
}

// NewApplier creates a ranking applier.
func NewApplier(st store.Store, resolver *match.Resolver) *Applier {
	return &Applier{store: st, resolver: resolver}
}

// Apply imports one ranking edition. Rows whose institution cannot be
// matched to the directory are counted and skipped; rankings only decorate
// institutions the enrichment pipeline has already seen.
func (a *Applier) Apply(ctx context.Context, system string, year int, rows []Row) (*ApplyResult, error) {
	insts, err := a.store.ListInstitutions(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]match.Entry, len(insts))
	byKey := make(map[string]store.Institution, len(insts))
	for i, inst := range insts {
		key := inst.NormalizedName
		entries[i] = match.Entry{Key: key, Name: inst.Name}
		byKey[key] = inst
	}

	systemID, err := a.store.UpsertRankingSystem(ctx, system, year)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}
	var ranks []store.InstitutionRank
	seen := make(map[int64]bool)
	for _, row := range rows {
		m, ok := a.resolver.BestMatch(row.Institution, entries)
		if !ok {
			result.Unmatched++
			continue
		}
		inst := byKey[m.Key]
		if seen[inst.ID] {
			continue
		}
		seen[inst.ID] = true
		result.Matched++

		ranks = append(ranks, store.InstitutionRank{
			InstitutionID: inst.ID,
			Rank:          row.Rank,
			Score:         row.Score,
		})
		if inst.Country == "" && row.Country != "" {
			if err := a.store.SetInstitutionCountry(ctx, inst.ID, row.Country); err != nil {
				return nil, err
			}
		}
	}

	if _, err := a.store.SaveInstitutionRankings(ctx, systemID, ranks); err != nil {
		return nil, err
	}

	zap.L().Info("rankings applied",
		zap.String("system", system),
		zap.Int("year", year),
		zap.Int("matched", result.Matched),
		zap.Int("unmatched", result.Unmatched),
	)
	return result, nil
}
