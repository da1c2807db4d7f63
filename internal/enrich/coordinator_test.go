package enrich

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/scholargraph/enrich-cli/internal/model"
)

type scriptedExtractor struct {
	mu       sync.Mutex
	outcomes map[string]Outcome // by arxiv id
	calls    int
}

func (s *scriptedExtractor) Extract(_ context.Context, paper model.Paper) Outcome {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if o, ok := s.outcomes[paper.ArxivID]; ok {
		return o
	}
	return Success(model.NewFragment(paper.ArxivID))
}

type scriptedLookup struct {
	mu       sync.Mutex
	outcomes map[string]Outcome // by author
	calls    int
}

func (s *scriptedLookup) Lookup(_ context.Context, arxivID, author string, _ []string) Outcome {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if o, ok := s.outcomes[author]; ok {
		return o
	}
	return Success(model.NewFragment(arxivID))
}

type scriptedRoleFinder struct {
	mu       sync.Mutex
	outcomes map[model.RoleKey]Outcome
	calls    int
}

func (s *scriptedRoleFinder) FindRole(_ context.Context, arxivID, author, affiliation string) Outcome {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if o, ok := s.outcomes[model.RoleKey{Author: author, Affiliation: affiliation}]; ok {
		return o
	}
	return Success(model.NewFragment(arxivID))
}

func affiliationOutcome(arxivID string, entries ...model.AuthorAffiliation) Outcome {
	f := model.NewFragment(arxivID)
	f.Authors = entries
	return Success(f)
}

func orcidOutcome(arxivID, author, id string) Outcome {
	f := model.NewFragment(arxivID)
	f.ORCIDs[author] = id
	f.Roles[model.RoleKey{Author: author, Affiliation: "zhejianguniversity"}] = model.Role{
		Title: "Professor", Source: model.RoleSourceEmployment,
	}
	return Success(f)
}

func papers(ids ...string) []model.Paper {
	out := make([]model.Paper, len(ids))
	for i, id := range ids {
		out[i] = model.Paper{ArxivID: id, Authors: []string{"Wei Zhang"}, PDFURL: "http://arxiv.org/pdf/" + id}
	}
	return out
}

func TestCoordinator_StagesMergeIntoOnePaperResult(t *testing.T) {
	extractor := &scriptedExtractor{outcomes: map[string]Outcome{
		"2401.00001": affiliationOutcome("2401.00001", model.AuthorAffiliation{
			Name:         "Wei Zhang",
			Affiliations: []string{"Zhejiang University"},
			Email:        "wzhang@zju.edu.cn",
		}),
	}}
	lookup := &scriptedLookup{outcomes: map[string]Outcome{
		"Wei Zhang": orcidOutcome("2401.00001", "Wei Zhang", "0000-0002-0000-0002"),
	}}
	roles := &scriptedRoleFinder{}

	c := NewCoordinator(extractor, lookup, roles, Limits{})
	result := c.EnrichSlice(context.Background(), papers("2401.00001"))

	pr := result.Results["2401.00001"]
	if pr == nil || pr.Failed {
		t.Fatalf("result = %+v", pr)
	}
	if pr.Fragment.Authors[0].Email != "wzhang@zju.edu.cn" {
		t.Errorf("email lost in merge: %+v", pr.Fragment.Authors)
	}
	if pr.Fragment.ORCIDs["Wei Zhang"] != "0000-0002-0000-0002" {
		t.Errorf("orcid lost in merge: %+v", pr.Fragment.ORCIDs)
	}
	// The registry already produced this role, so the fallback stage has
	// nothing left to search.
	if roles.calls != 0 {
		t.Errorf("role search calls = %d", roles.calls)
	}
}

func TestCoordinator_RoleFallbackFillsRegistryGaps(t *testing.T) {
	extractor := &scriptedExtractor{outcomes: map[string]Outcome{
		"2401.00001": affiliationOutcome("2401.00001", model.AuthorAffiliation{
			Name:         "Wei Zhang",
			Affiliations: []string{"Zhejiang University"},
		}),
	}}
	roleFragment := model.NewFragment("2401.00001")
	roleFragment.Roles[model.RoleKey{Author: "Wei Zhang", Affiliation: "zhejianguniversity"}] = model.Role{
		Title: "Associate Professor", Source: model.RoleSourceWebSearch,
	}
	roles := &scriptedRoleFinder{outcomes: map[model.RoleKey]Outcome{
		{Author: "Wei Zhang", Affiliation: "Zhejiang University"}: Success(roleFragment),
	}}

	c := NewCoordinator(extractor, &scriptedLookup{}, roles, Limits{})
	result := c.EnrichSlice(context.Background(), papers("2401.00001"))

	pr := result.Results["2401.00001"]
	role := pr.Fragment.Roles[model.RoleKey{Author: "Wei Zhang", Affiliation: "zhejianguniversity"}]
	if role.Title != "Associate Professor" || role.Source != model.RoleSourceWebSearch {
		t.Errorf("role = %+v", role)
	}
	if roles.calls != 1 {
		t.Errorf("role search calls = %d", roles.calls)
	}
}

func TestCoordinator_PaperFailureIsIsolated(t *testing.T) {
	extractor := &scriptedExtractor{outcomes: map[string]Outcome{
		"2401.00002": Failure("fetch first page: gone"),
		"2401.00003": affiliationOutcome("2401.00003", model.AuthorAffiliation{
			Name:         "Wei Zhang",
			Affiliations: []string{"Zhejiang University"},
		}),
	}}
	lookup := &scriptedLookup{}

	c := NewCoordinator(extractor, lookup, nil, Limits{})
	result := c.EnrichSlice(context.Background(), papers("2401.00001", "2401.00002", "2401.00003"))

	if result.QuotaExhausted {
		t.Error("failure must not flag quota exhaustion")
	}
	if pr := result.Results["2401.00002"]; !pr.Failed || pr.Reason == "" {
		t.Errorf("failed paper = %+v", pr)
	}
	for _, id := range []string{"2401.00001", "2401.00003"} {
		if pr := result.Results[id]; pr.Failed || pr.Quota {
			t.Errorf("paper %s = %+v", id, pr)
		}
	}
	// Only the paper with extracted affiliations reaches the registry.
	if lookup.calls != 1 {
		t.Errorf("lookup calls = %d", lookup.calls)
	}
}

func TestCoordinator_QuotaHaltsDispatch(t *testing.T) {
	extractor := &scriptedExtractor{outcomes: map[string]Outcome{
		"2401.00001": QuotaExhausted("websearch pool spent"),
	}}

	// Affiliation limit 1 serializes stage 1, so papers after the quota
	// signal are skipped rather than extracted.
	c := NewCoordinator(extractor, &scriptedLookup{}, nil, Limits{Affiliation: 1})
	result := c.EnrichSlice(context.Background(), papers("2401.00001", "2401.00002", "2401.00003"))

	if !result.QuotaExhausted {
		t.Fatal("expected quota exhaustion flag")
	}
	if extractor.calls != 1 {
		t.Errorf("extractor calls = %d, dispatch should stop after quota", extractor.calls)
	}
	for _, id := range []string{"2401.00001", "2401.00002", "2401.00003"} {
		pr := result.Results[id]
		if !pr.Quota {
			t.Errorf("paper %s should carry the quota mark, got %+v", id, pr)
		}
		if pr.Failed {
			t.Errorf("paper %s must stay retryable, got %+v", id, pr)
		}
	}
}

func TestCoordinator_RoleFallbackManyPairsMergesAll(t *testing.T) {
	// Many concurrent role tasks merge into the same paper result; every
	// found role must survive the merges. Run under -race this also
	// exercises the dispatch-versus-merge ordering.
	const authors = 40
	entries := make([]model.AuthorAffiliation, authors)
	roleOutcomes := make(map[model.RoleKey]Outcome, authors)
	for i := range entries {
		name := fmt.Sprintf("Author %03d", i)
		entries[i] = model.AuthorAffiliation{Name: name, Affiliations: []string{"Zhejiang University"}}

		f := model.NewFragment("2401.00001")
		f.Roles[model.RoleKey{Author: name, Affiliation: "zhejianguniversity"}] = model.Role{
			Title: "Researcher", Source: model.RoleSourceWebSearch,
		}
		roleOutcomes[model.RoleKey{Author: name, Affiliation: "Zhejiang University"}] = Success(f)
	}
	extractor := &scriptedExtractor{outcomes: map[string]Outcome{
		"2401.00001": affiliationOutcome("2401.00001", entries...),
	}}
	roles := &scriptedRoleFinder{outcomes: roleOutcomes}

	c := NewCoordinator(extractor, &scriptedLookup{}, roles, Limits{})
	result := c.EnrichSlice(context.Background(), papers("2401.00001"))

	pr := result.Results["2401.00001"]
	if pr.Failed || pr.Quota {
		t.Fatalf("result = %+v", pr)
	}
	if roles.calls != authors {
		t.Errorf("role search calls = %d, want %d", roles.calls, authors)
	}
	if got := len(pr.Fragment.Roles); got != authors {
		t.Errorf("merged roles = %d, want %d", got, authors)
	}
}

func TestCoordinator_RoleSearchQuotaFlagsPaper(t *testing.T) {
	extractor := &scriptedExtractor{outcomes: map[string]Outcome{
		"2401.00001": affiliationOutcome("2401.00001", model.AuthorAffiliation{
			Name:         "Wei Zhang",
			Affiliations: []string{"Zhejiang University"},
		}),
	}}
	roles := &scriptedRoleFinder{outcomes: map[model.RoleKey]Outcome{
		{Author: "Wei Zhang", Affiliation: "Zhejiang University"}: QuotaExhausted("websearch pool spent"),
	}}

	c := NewCoordinator(extractor, &scriptedLookup{}, roles, Limits{})
	result := c.EnrichSlice(context.Background(), papers("2401.00001"))

	if !result.QuotaExhausted {
		t.Fatal("expected quota exhaustion flag")
	}
	pr := result.Results["2401.00001"]
	if !pr.Quota {
		t.Errorf("paper hit by the quota wall must carry the quota mark: %+v", pr)
	}
	if pr.Failed {
		t.Errorf("paper must stay retryable, got %+v", pr)
	}
}

func TestCoordinator_RoleSearchFailureDoesNotFailPaper(t *testing.T) {
	extractor := &scriptedExtractor{outcomes: map[string]Outcome{
		"2401.00001": affiliationOutcome("2401.00001", model.AuthorAffiliation{
			Name:         "Wei Zhang",
			Affiliations: []string{"Zhejiang University"},
		}),
	}}
	roles := &scriptedRoleFinder{outcomes: map[model.RoleKey]Outcome{
		{Author: "Wei Zhang", Affiliation: "Zhejiang University"}: Failure("search unreachable"),
	}}

	c := NewCoordinator(extractor, &scriptedLookup{}, roles, Limits{})
	result := c.EnrichSlice(context.Background(), papers("2401.00001"))

	pr := result.Results["2401.00001"]
	if pr.Failed {
		t.Errorf("best-effort role search failure must not fail the paper: %+v", pr)
	}
	if len(pr.Fragment.Authors) == 0 {
		t.Errorf("extraction result lost: %+v", pr.Fragment)
	}
}

func TestCoordinator_NilRoleFinderSkipsStageThree(t *testing.T) {
	extractor := &scriptedExtractor{outcomes: map[string]Outcome{
		"2401.00001": affiliationOutcome("2401.00001", model.AuthorAffiliation{
			Name:         "Wei Zhang",
			Affiliations: []string{"Zhejiang University"},
		}),
	}}

	c := NewCoordinator(extractor, &scriptedLookup{}, nil, Limits{})
	result := c.EnrichSlice(context.Background(), papers("2401.00001"))
	if pr := result.Results["2401.00001"]; pr.Failed || pr.Quota {
		t.Errorf("result = %+v", pr)
	}
}
