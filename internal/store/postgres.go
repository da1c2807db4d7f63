package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/scholargraph/enrich-cli/internal/db"
	"github.com/scholargraph/enrich-cli/internal/match"
	"github.com/scholargraph/enrich-cli/internal/model"
	"github.com/scholargraph/enrich-cli/internal/normalize"
)

// PostgresStore implements Store using pgxpool. Institution writes go
// through a fuzzy directory so "Zhejiang Univ." and "Zhejiang University,
// Hangzhou" land on the same row.
type PostgresStore struct {
	pool     db.Pool
	closeFn  func()
	resolver *match.Resolver

	instMu      sync.Mutex
	instLoaded  bool
	instByNorm  map[string]int64
	instEntries []match.Entry
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	upsertPaperSQL = `INSERT INTO papers (arxiv_id, title, abstract, pdf_url, published_time, updated_time)
	 VALUES ($1, $2, $3, $4, $5, $6)
	 ON CONFLICT (arxiv_id) DO UPDATE SET
	   title        = COALESCE(EXCLUDED.title, papers.title),
	   abstract     = COALESCE(EXCLUDED.abstract, papers.abstract),
	   pdf_url      = COALESCE(EXCLUDED.pdf_url, papers.pdf_url),
	   updated_time = GREATEST(papers.updated_time, EXCLUDED.updated_time)
	 RETURNING id`

	upsertAuthorSQL = `INSERT INTO authors (full_name, orcid, email)
	 VALUES ($1, $2, $3)
	 ON CONFLICT (full_name) DO UPDATE SET
	   orcid = COALESCE(authors.orcid, EXCLUDED.orcid),
	   email = COALESCE(authors.email, EXCLUDED.email)
	 RETURNING id`

	insertInstitutionSQL = `INSERT INTO institutions (name, normalized_name)
	 VALUES ($1, $2)
	 ON CONFLICT (normalized_name) DO NOTHING
	 RETURNING id`

	findInstitutionSQL = `SELECT id FROM institutions WHERE normalized_name = $1`

	linkAuthorPaperSQL = `INSERT INTO author_paper (author_id, paper_id, position)
	 VALUES ($1, $2, $3)
	 ON CONFLICT (author_id, paper_id) DO NOTHING`

	linkAuthorInstitutionSQL = `INSERT INTO author_institution
	 (author_id, institution_id, role_title, department, source, start_date, end_date)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)
	 ON CONFLICT (author_id, institution_id) DO UPDATE SET
	   role_title = COALESCE(author_institution.role_title, EXCLUDED.role_title),
	   department = COALESCE(author_institution.department, EXCLUDED.department),
	   source     = COALESCE(author_institution.source, EXCLUDED.source),
	   start_date = LEAST(author_institution.start_date, EXCLUDED.start_date),
	   end_date   = GREATEST(author_institution.end_date, EXCLUDED.end_date)`

	// A paper counts as fully enriched when it has authors on record and
	// none of them is missing an ORCID iD or a titled role.
	enrichmentCoverageSQL = `SELECT EXISTS (
	   SELECT 1 FROM author_paper ap
	   JOIN papers p ON p.id = ap.paper_id
	   WHERE p.arxiv_id = $1
	 ) AND NOT EXISTS (
	   SELECT 1 FROM author_paper ap
	   JOIN papers p ON p.id = ap.paper_id
	   JOIN authors a ON a.id = ap.author_id
	   WHERE p.arxiv_id = $1
	     AND (a.orcid IS NULL
	       OR NOT EXISTS (
	         SELECT 1 FROM author_institution ai
	         WHERE ai.author_id = a.id AND ai.role_title IS NOT NULL))
	 )`

	upsertCategorySQL = `INSERT INTO categories (code) VALUES ($1)
	 ON CONFLICT (code) DO NOTHING RETURNING id`

	findCategorySQL = `SELECT id FROM categories WHERE code = $1`

	linkPaperCategorySQL = `INSERT INTO paper_category (paper_id, category_id)
	 VALUES ($1, $2)
	 ON CONFLICT (paper_id, category_id) DO NOTHING`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot write path.
var preparedStatements = map[string]string{
	"upsert_paper":            upsertPaperSQL,
	"upsert_author":           upsertAuthorSQL,
	"link_author_paper":       linkAuthorPaperSQL,
	"link_author_institution": linkAuthorInstitutionSQL,
	"find_institution":        findInstitutionSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, resolver *match.Resolver) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{
		pool:       pool,
		closeFn:    pool.Close,
		resolver:   resolver,
		instByNorm: make(map[string]int64),
	}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS papers (
	id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	arxiv_id       TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL,
	abstract       TEXT,
	pdf_url        TEXT,
	published_time TIMESTAMPTZ,
	updated_time   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS authors (
	id        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	full_name TEXT NOT NULL UNIQUE,
	orcid     TEXT,
	email     TEXT
);

CREATE TABLE IF NOT EXISTS institutions (
	id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL UNIQUE,
	country         TEXT
);

CREATE TABLE IF NOT EXISTS categories (
	id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	code TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS ranking_systems (
	id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name TEXT NOT NULL,
	year INTEGER NOT NULL,
	UNIQUE (name, year)
);

CREATE TABLE IF NOT EXISTS author_paper (
	author_id BIGINT NOT NULL REFERENCES authors(id),
	paper_id  BIGINT NOT NULL REFERENCES papers(id),
	position  INTEGER NOT NULL,
	PRIMARY KEY (author_id, paper_id)
);

CREATE TABLE IF NOT EXISTS paper_category (
	paper_id    BIGINT NOT NULL REFERENCES papers(id),
	category_id BIGINT NOT NULL REFERENCES categories(id),
	PRIMARY KEY (paper_id, category_id)
);

CREATE TABLE IF NOT EXISTS author_institution (
	author_id      BIGINT NOT NULL REFERENCES authors(id),
	institution_id BIGINT NOT NULL REFERENCES institutions(id),
	role_title     TEXT,
	department     TEXT,
	source         TEXT,
	start_date     TEXT,
	end_date       TEXT,
	PRIMARY KEY (author_id, institution_id)
);

CREATE TABLE IF NOT EXISTS institution_rankings (
	institution_id BIGINT NOT NULL REFERENCES institutions(id),
	system_id      BIGINT NOT NULL REFERENCES ranking_systems(id),
	rank           INTEGER NOT NULL,
	score          DOUBLE PRECISION,
	PRIMARY KEY (institution_id, system_id)
);

CREATE INDEX IF NOT EXISTS idx_papers_arxiv_id ON papers(arxiv_id);
CREATE INDEX IF NOT EXISTS idx_authors_orcid ON authors(orcid);
CREATE INDEX IF NOT EXISTS idx_author_paper_paper ON author_paper(paper_id);
CREATE INDEX IF NOT EXISTS idx_paper_category_category ON paper_category(category_id);
CREATE INDEX IF NOT EXISTS idx_author_institution_institution ON author_institution(institution_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var paperColumns = []string{"arxiv_id", "title", "abstract", "pdf_url", "published_time", "updated_time"}

func (s *PostgresStore) SavePapers(ctx context.Context, papers []model.Paper) (int64, error) {
	rows := make([][]any, len(papers))
	for i, p := range papers {
		rows[i] = []any{p.ArxivID, p.Title, nullable(p.Abstract), nullable(p.PDFURL), nullableTime(p.Published), nullableTime(p.Updated)}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "papers",
		Columns:      paperColumns,
		ConflictKeys: []string{"arxiv_id"},
		Ignore:       true,
	}, rows)
}

func (s *PostgresStore) SaveEnrichment(ctx context.Context, paper model.Paper, fragment *model.Fragment) error {
	// Institutions resolve outside the transaction so the in-memory
	// directory stays consistent with what is actually on disk.
	instIDs := make(map[string]int64)
	if fragment != nil {
		for _, author := range fragment.Authors {
			for _, aff := range author.Affiliations {
				if _, ok := instIDs[aff]; ok {
					continue
				}
				id, err := s.resolveInstitution(ctx, aff)
				if err != nil {
					return err
				}
				instIDs[aff] = id
			}
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	var paperID int64
	err = tx.QueryRow(ctx, upsertPaperSQL,
		paper.ArxivID, paper.Title, nullable(paper.Abstract), nullable(paper.PDFURL),
		nullableTime(paper.Published), nullableTime(paper.Updated),
	).Scan(&paperID)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert paper %s", paper.ArxivID)
	}

	for pos, name := range paper.Authors {
		entry := authorEntry(fragment, name)
		var orcid string
		if fragment != nil {
			orcid = fragment.ORCIDs[name]
		}

		var authorID int64
		err = tx.QueryRow(ctx, upsertAuthorSQL, name, nullable(orcid), nullable(entry.Email)).Scan(&authorID)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert author %s", name)
		}

		if _, err := tx.Exec(ctx, linkAuthorPaperSQL, authorID, paperID, pos); err != nil {
			return eris.Wrapf(err, "postgres: link author %s to paper", name)
		}

		for _, aff := range entry.Affiliations {
			role := fragment.Roles[model.RoleKey{Author: name, Affiliation: normalize.Fold(aff)}]
			_, err := tx.Exec(ctx, linkAuthorInstitutionSQL,
				authorID, instIDs[aff],
				nullable(role.Title), nullable(role.Department), nullable(role.Source),
				nullable(role.StartDate), nullable(role.EndDate),
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: link author %s to institution %s", name, aff)
			}
		}
	}

	for _, code := range paper.Categories {
		catID, err := upsertCategory(ctx, tx, code)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, linkPaperCategorySQL, paperID, catID); err != nil {
			return eris.Wrapf(err, "postgres: link category %s", code)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit enrichment")
}

// HasCompleteEnrichment implements Store.
func (s *PostgresStore) HasCompleteEnrichment(ctx context.Context, arxivID string) (bool, error) {
	var complete bool
	if err := s.pool.QueryRow(ctx, enrichmentCoverageSQL, arxivID).Scan(&complete); err != nil {
		return false, eris.Wrapf(err, "postgres: enrichment coverage for %s", arxivID)
	}
	return complete, nil
}

// resolveInstitution finds or creates the institution row for a free-text
// affiliation. Exact normalized hit first, then fuzzy match against the
// directory, then insert.
func (s *PostgresStore) resolveInstitution(ctx context.Context, name string) (int64, error) {
	norm := normalize.Fold(name)

	s.instMu.Lock()
	defer s.instMu.Unlock()

	if err := s.loadInstitutionsLocked(ctx); err != nil {
		return 0, err
	}

	if id, ok := s.instByNorm[norm]; ok {
		return id, nil
	}
	if s.resolver != nil {
		if m, ok := s.resolver.BestMatch(name, s.instEntries); ok {
			id, err := strconv.ParseInt(m.Key, 10, 64)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: bad institution key %q", m.Key)
			}
			s.instByNorm[norm] = id
			return id, nil
		}
	}

	var id int64
	err := s.pool.QueryRow(ctx, insertInstitutionSQL, name, norm).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost a race with a concurrent insert; the row exists now.
		err = s.pool.QueryRow(ctx, findInstitutionSQL, norm).Scan(&id)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert institution %s", name)
	}

	s.instByNorm[norm] = id
	s.instEntries = append(s.instEntries, match.Entry{Key: strconv.FormatInt(id, 10), Name: name})
	return id, nil
}

func (s *PostgresStore) loadInstitutionsLocked(ctx context.Context) error {
	if s.instLoaded {
		return nil
	}
	if s.instByNorm == nil {
		s.instByNorm = make(map[string]int64)
	}

	rows, err := s.pool.Query(ctx, `SELECT id, name, normalized_name FROM institutions`)
	if err != nil {
		return eris.Wrap(err, "postgres: load institutions")
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name, norm string
		if err := rows.Scan(&id, &name, &norm); err != nil {
			return eris.Wrap(err, "postgres: scan institution")
		}
		s.instByNorm[norm] = id
		s.instEntries = append(s.instEntries, match.Entry{Key: strconv.FormatInt(id, 10), Name: name})
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "postgres: load institutions iterate")
	}
	s.instLoaded = true
	return nil
}

func (s *PostgresStore) ListInstitutions(ctx context.Context) ([]Institution, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, normalized_name, COALESCE(country, '') FROM institutions ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list institutions")
	}
	defer rows.Close()

	var out []Institution
	for rows.Next() {
		var inst Institution
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.NormalizedName, &inst.Country); err != nil {
			return nil, eris.Wrap(err, "postgres: scan institution")
		}
		out = append(out, inst)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list institutions iterate")
}

func (s *PostgresStore) SetInstitutionCountry(ctx context.Context, institutionID int64, country string) error {
	if country == "" {
		return nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE institutions SET country = COALESCE(country, $2) WHERE id = $1`,
		institutionID, country,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set country for institution %d", institutionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("institution not found: %d", institutionID)
	}
	return nil
}

func (s *PostgresStore) UpsertRankingSystem(ctx context.Context, name string, year int) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ranking_systems (name, year) VALUES ($1, $2)
		 ON CONFLICT (name, year) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name, year,
	).Scan(&id)
	return id, eris.Wrapf(err, "postgres: upsert ranking system %s %d", name, year)
}

func (s *PostgresStore) SaveInstitutionRankings(ctx context.Context, systemID int64, ranks []InstitutionRank) (int64, error) {
	rows := make([][]any, len(ranks))
	for i, r := range ranks {
		rows[i] = []any{r.InstitutionID, systemID, r.Rank, r.Score}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "institution_rankings",
		Columns:      []string{"institution_id", "system_id", "rank", "score"},
		ConflictKeys: []string{"institution_id", "system_id"},
	}, rows)
}

func upsertCategory(ctx context.Context, tx pgx.Tx, code string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, upsertCategorySQL, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, findCategorySQL, code).Scan(&id)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert category %s", code)
	}
	return id, nil
}

// helpers

func authorEntry(f *model.Fragment, name string) model.AuthorAffiliation {
	if f == nil {
		return model.AuthorAffiliation{Name: name}
	}
	for _, a := range f.Authors {
		if a.Name == name {
			return a
		}
	}
	return model.AuthorAffiliation{Name: name}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
