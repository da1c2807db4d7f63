// Package store persists enriched bibliographic records to Postgres.
package store

import (
	"context"

	"github.com/scholargraph/enrich-cli/internal/model"
)

// Institution is one row of the institution directory.
type Institution struct {
	ID             int64
	Name           string
	NormalizedName string
	Country        string
}

// InstitutionRank is one resolved ranking row for an institution under a
// ranking system.
type InstitutionRank struct {
	InstitutionID int64
	Rank          int
	Score         float64
}

// Store is the graph persistence interface. Writes are idempotent: saving
// the same paper twice must not duplicate rows or overwrite richer data
// with emptier data.
type Store interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// SavePapers bulk-loads paper metadata, skipping records already
	// present. Returns the number of newly inserted rows.
	SavePapers(ctx context.Context, papers []model.Paper) (int64, error)

	// SaveEnrichment writes one paper's merged fragment: the paper row,
	// its authors, institutions, roles, and category links, all in one
	// transaction.
	SaveEnrichment(ctx context.Context, paper model.Paper, fragment *model.Fragment) error

	// HasCompleteEnrichment reports whether the paper is already fully
	// enriched: every linked author carries an ORCID iD and at least one
	// role. Lets a run over an overlapping window skip finished papers
	// without spending API calls on them.
	HasCompleteEnrichment(ctx context.Context, arxivID string) (bool, error)

	// ListInstitutions returns the full institution directory.
	ListInstitutions(ctx context.Context) ([]Institution, error)

	// SetInstitutionCountry fills the country if not already set.
	SetInstitutionCountry(ctx context.Context, institutionID int64, country string) error

	// UpsertRankingSystem registers a ranking system edition and returns
	// its id.
	UpsertRankingSystem(ctx context.Context, name string, year int) (int64, error)

	// SaveInstitutionRankings bulk-upserts ranking rows for one system.
	SaveInstitutionRankings(ctx context.Context, systemID int64, ranks []InstitutionRank) (int64, error)
}
