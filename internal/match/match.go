// Package match resolves free-text institution names against candidate
// directories using variant-set comparison with a fuzzy fallback.
package match

import (
	"github.com/agext/levenshtein"
	"go.uber.org/zap"

	"github.com/scholargraph/enrich-cli/internal/normalize"
)

// Default acceptance thresholds for the normalized similarity score.
// Directory matching tolerates slightly more drift than role matching
// because directory candidates are already known institutions.
const (
	DefaultDirectoryThreshold = 0.84
	DefaultRoleThreshold      = 0.86
)

// Resolver scores institution name candidates. The zero value is not
// usable; construct with NewResolver.
type Resolver struct {
	directoryThreshold float64
	roleThreshold      float64
}

// NewResolver creates a resolver with the given thresholds. Non-positive
// values fall back to the defaults.
func NewResolver(directoryThreshold, roleThreshold float64) *Resolver {
	if directoryThreshold <= 0 {
		directoryThreshold = DefaultDirectoryThreshold
	}
	if roleThreshold <= 0 {
		roleThreshold = DefaultRoleThreshold
	}
	return &Resolver{
		directoryThreshold: directoryThreshold,
		roleThreshold:      roleThreshold,
	}
}

// Entry is one directory candidate.
type Entry struct {
	Key  string // caller-defined identifier, returned on match
	Name string
}

// Match is an accepted directory match. Exact means a variant or acronym
// collision short-circuited before any fuzzy scoring.
type Match struct {
	Key   string
	Name  string
	Score float64
	Exact bool
}

// BestMatch resolves target against the directory entries. Resolution is a
// two-step cascade:
//  1. exact variant or acronym collision (score 1.0, short-circuit)
//  2. maximum pairwise similarity across both variant sets, accepted only
//     at or above the directory threshold
//
// Returns (nil, false) when nothing clears the threshold; no-match is not
// an error.
func (r *Resolver) BestMatch(target string, entries []Entry) (*Match, bool) {
	targetVariants := normalize.Variants(target)
	if len(targetVariants) == 0 {
		return nil, false
	}
	targetSet := toSet(targetVariants)
	targetAcronym := normalize.Acronym(target)

	var best *Match
	for _, e := range entries {
		entryVariants := normalize.Variants(e.Name)

		// Pass 1: exact collision.
		for _, v := range entryVariants {
			if targetSet[v] {
				return &Match{Key: e.Key, Name: e.Name, Score: 1.0, Exact: true}, true
			}
		}
		if targetAcronym != "" {
			for _, v := range entryVariants {
				if v == targetAcronym {
					return &Match{Key: e.Key, Name: e.Name, Score: 1.0, Exact: true}, true
				}
			}
		}
		if a := normalize.Acronym(e.Name); a != "" && targetSet[a] {
			return &Match{Key: e.Key, Name: e.Name, Score: 1.0, Exact: true}, true
		}

		// Pass 2: fuzzy.
		score := crossSimilarity(targetVariants, entryVariants)
		if score >= r.directoryThreshold && (best == nil || score > best.Score) {
			best = &Match{Key: e.Key, Name: e.Name, Score: score}
		}
	}

	if best == nil {
		return nil, false
	}
	zap.L().Debug("match: fuzzy directory hit",
		zap.String("target", target),
		zap.String("matched", best.Name),
		zap.Float64("score", best.Score),
	)
	return best, true
}

// RoleEntry is an employment or education record from an identity profile.
type RoleEntry struct {
	Organization string
	Department   string
	Title        string
	StartDate    string
	EndDate      string
	Kind         string // "employment" or "education"
}

// Role entry kinds.
const (
	KindEmployment = "employment"
	KindEducation  = "education"
)

// RoleMatch is an accepted role entry with its score.
type RoleMatch struct {
	Entry RoleEntry
	Score float64
}

// BestRoleMatch finds the profile entry whose organization matches the
// affiliation at or above the role threshold. Employment entries win over
// education entries whenever both clear the threshold, regardless of
// relative score; an author's current post is more informative than where
// they studied.
func (r *Resolver) BestRoleMatch(affiliation string, entries []RoleEntry) (*RoleMatch, bool) {
	affVariants := normalize.Variants(affiliation)
	if len(affVariants) == 0 {
		return nil, false
	}
	affSet := toSet(affVariants)
	affAcronym := normalize.Acronym(affiliation)

	var bestEmployment, bestEducation *RoleMatch
	for _, e := range entries {
		score := r.scoreRoleEntry(affSet, affVariants, affAcronym, e)
		if score < r.roleThreshold {
			continue
		}
		m := &RoleMatch{Entry: e, Score: score}
		switch e.Kind {
		case KindEducation:
			if bestEducation == nil || score > bestEducation.Score {
				bestEducation = m
			}
		default:
			if bestEmployment == nil || score > bestEmployment.Score {
				bestEmployment = m
			}
		}
	}

	if bestEmployment != nil {
		return bestEmployment, true
	}
	if bestEducation != nil {
		return bestEducation, true
	}
	return nil, false
}

func (r *Resolver) scoreRoleEntry(affSet map[string]bool, affVariants []string, affAcronym string, e RoleEntry) float64 {
	name := e.Organization
	if name == "" {
		name = e.Department
	}
	entryVariants := normalize.Variants(name)
	if e.Department != "" && e.Organization != "" {
		entryVariants = append(entryVariants, normalize.Variants(e.Department+" "+e.Organization)...)
	}

	for _, v := range entryVariants {
		if affSet[v] {
			return 1.0
		}
	}
	if affAcronym != "" {
		for _, v := range entryVariants {
			if v == affAcronym {
				return 1.0
			}
		}
	}
	if a := normalize.Acronym(name); a != "" && affSet[a] {
		return 1.0
	}

	return crossSimilarity(affVariants, entryVariants)
}

// crossSimilarity returns the maximum normalized Levenshtein similarity
// over the cross product of two variant sets.
func crossSimilarity(a, b []string) float64 {
	var best float64
	for _, x := range a {
		for _, y := range b {
			if s := levenshtein.Similarity(x, y, nil); s > best {
				best = s
			}
		}
	}
	return best
}

func toSet(ss []string) map[string]bool {
	set := make(map[string]bool, len(ss))
	for _, s := range ss {
		set[s] = true
	}
	return set
}
