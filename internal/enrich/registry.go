package enrich

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/scholargraph/enrich-cli/internal/match"
	"github.com/scholargraph/enrich-cli/internal/model"
	"github.com/scholargraph/enrich-cli/internal/normalize"
	"github.com/scholargraph/enrich-cli/internal/resilience"
	"github.com/scholargraph/enrich-cli/pkg/orcid"
)

// maxCandidates bounds how many search hits get verified and profiled.
const maxCandidates = 5

// RegistryWorker resolves an (author, affiliations) pair against the ORCID
// registry: identity is confirmed when a candidate's employment or
// education history matches one of the paper affiliations.
type RegistryWorker struct {
	registry orcid.Client
	resolver *match.Resolver
	retry    resilience.RetryConfig
}

// NewRegistryWorker creates the registry lookup worker.
func NewRegistryWorker(registry orcid.Client, resolver *match.Resolver, retry resilience.RetryConfig) *RegistryWorker {
	return &RegistryWorker{registry: registry, resolver: resolver, retry: retry}
}

// Lookup resolves one author. A confirmed candidate contributes the ORCID
// iD plus role metadata for every affiliation its profile matches. Finding
// nobody is a successful lookup with an empty fragment.
func (w *RegistryWorker) Lookup(ctx context.Context, arxivID, author string, affiliations []string) Outcome {
	fragment := model.NewFragment(arxivID)
	if author == "" || len(affiliations) == 0 {
		return Success(fragment)
	}

	candidates, err := w.search(ctx, author)
	if err != nil {
		if resilience.IsQuotaExhausted(err) {
			return QuotaExhausted(err.Error())
		}
		return Failure("registry search: " + err.Error())
	}

	for _, candidate := range candidates {
		entries, err := w.profile(ctx, candidate.ID)
		if err != nil {
			if resilience.IsQuotaExhausted(err) {
				return QuotaExhausted(err.Error())
			}
			return Failure("registry profile: " + err.Error())
		}

		matched := false
		for _, affiliation := range affiliations {
			roleMatch, ok := w.resolver.BestRoleMatch(affiliation, entries)
			if !ok {
				continue
			}
			matched = true
			source := model.RoleSourceEmployment
			if roleMatch.Entry.Kind == match.KindEducation {
				source = model.RoleSourceEducation
			}
			fragment.Roles[model.RoleKey{Author: author, Affiliation: normalize.Fold(affiliation)}] = model.Role{
				Title:      roleMatch.Entry.Title,
				Department: roleMatch.Entry.Department,
				StartDate:  roleMatch.Entry.StartDate,
				EndDate:    roleMatch.Entry.EndDate,
				Source:     source,
			}
		}

		if matched {
			fragment.ORCIDs[author] = candidate.ID
			zap.L().Debug("registry identity confirmed",
				zap.String("author", author),
				zap.String("orcid", candidate.ID),
			)
			break
		}
	}

	return Success(fragment)
}

// search runs the fielded search, verifies every hit's registered name
// against the author, and falls back to expanded search with the same
// strict name check when the fielded search yields nothing verifiable.
func (w *RegistryWorker) search(ctx context.Context, author string) ([]orcid.Candidate, error) {
	given, family := splitName(author)

	candidates, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) ([]orcid.Candidate, error) {
		return w.registry.SearchByName(ctx, given, family)
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	// Fielded hits carry no names. Solr tokenization makes the fielded
	// query loose, so a hit is only a candidate once the person record's
	// registered name actually matches the author.
	verified, err := w.verifyNames(ctx, author, candidates)
	if err != nil {
		return nil, err
	}
	if len(verified) > 0 {
		return verified, nil
	}

	expanded, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) ([]orcid.Candidate, error) {
		return w.registry.ExpandedSearch(ctx, author)
	})
	if err != nil {
		return nil, err
	}

	// Expanded search is free-text; keep only hits whose registered name
	// is token-equal to the author (order-insensitive, so transposed
	// given/family names still pass).
	var strict []orcid.Candidate
	for _, c := range expanded {
		if sameName(author, strings.TrimSpace(c.GivenNames+" "+c.FamilyName)) {
			strict = append(strict, c)
		}
	}
	if len(strict) > maxCandidates {
		strict = strict[:maxCandidates]
	}
	return strict, nil
}

// verifyNames keeps the candidates whose person record names the author.
func (w *RegistryWorker) verifyNames(ctx context.Context, author string, candidates []orcid.Candidate) ([]orcid.Candidate, error) {
	var verified []orcid.Candidate
	for _, c := range candidates {
		person, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) (*orcid.Person, error) {
			return w.registry.Person(ctx, c.ID)
		})
		if err != nil {
			return nil, err
		}
		if matchesAuthor(author, person) {
			verified = append(verified, c)
		}
	}
	return verified, nil
}

// matchesAuthor accepts a person whose registered name, credit name, or
// any listed other-name is token-equal to the author.
func matchesAuthor(author string, person *orcid.Person) bool {
	if person == nil {
		return false
	}
	if sameName(author, strings.TrimSpace(person.GivenNames+" "+person.FamilyName)) {
		return true
	}
	if sameName(author, person.DisplayName) {
		return true
	}
	for _, other := range person.OtherNames {
		if sameName(author, other) {
			return true
		}
	}
	return false
}

func (w *RegistryWorker) profile(ctx context.Context, id string) ([]match.RoleEntry, error) {
	employments, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) ([]orcid.Affiliation, error) {
		return w.registry.Employments(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	educations, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) ([]orcid.Affiliation, error) {
		return w.registry.Educations(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	entries := make([]match.RoleEntry, 0, len(employments)+len(educations))
	for _, a := range employments {
		entries = append(entries, toRoleEntry(a, match.KindEmployment))
	}
	for _, a := range educations {
		entries = append(entries, toRoleEntry(a, match.KindEducation))
	}
	return entries, nil
}

func toRoleEntry(a orcid.Affiliation, kind string) match.RoleEntry {
	return match.RoleEntry{
		Organization: a.Organization,
		Department:   a.Department,
		Title:        a.Role,
		StartDate:    a.StartDate,
		EndDate:      a.EndDate,
		Kind:         kind,
	}
}

// splitName treats the final token as the family name.
func splitName(author string) (given, family string) {
	fields := strings.Fields(author)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return "", fields[0]
	}
	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
}

// sameName compares two person names as folded token multisets, so
// "Zhang Wei" and "Wei Zhang" are the same person-name.
func sameName(a, b string) bool {
	ta, tb := nameTokens(a), nameTokens(b)
	if len(ta) == 0 || len(ta) != len(tb) {
		return false
	}
	sort.Strings(ta)
	sort.Strings(tb)
	for i := range ta {
		if ta[i] != tb[i] {
			return false
		}
	}
	return true
}

func nameTokens(name string) []string {
	var out []string
	for _, f := range strings.Fields(name) {
		if folded := normalize.Fold(f); folded != "" {
			out = append(out, folded)
		}
	}
	return out
}
