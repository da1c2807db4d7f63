// Package normalize turns free-text institution names into comparable
// variant sets. Affiliation strings from papers and registry profiles name
// the same institution in wildly different shapes ("Dept. of CS, Zhejiang
// University" vs "Zhejiang Univ., Hangzhou, China"); variants give the
// matcher multiple normalized renderings of each side to compare.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Organizational keywords. A comma segment is only a plausible institution
// name on its own if it contains one of these; "Hangzhou, China" should not
// become a variant.
var orgKeywords = []string{
	"university", "institute", "college", "academy", "school",
	"laboratory", "lab", "center", "centre", "hospital", "clinic",
	"polytechnic", "observatory", "foundation", "department", "faculty",
	"corporation", "company", "research", "cnrs", "inria", "eth",
}

// departmentPrefix matches leading sub-unit qualifiers so that
// "Department of Computer Science and Technology, X" also yields "X"-style
// variants without the noise.
var departmentPrefix = regexp.MustCompile(
	`(?i)^(department|dept\.?|school|faculty|college|division|laboratory|lab|center|centre|institute|graduate school)\s+(of|for)\s+`)

var parenthetical = regexp.MustCompile(`\([^)]*\)`)

// acronymStopwords are skipped when building an acronym: "University of
// Science and Technology of China" -> "ustc".
var acronymStopwords = map[string]bool{
	"of": true, "and": true, "for": true, "at": true, "in": true, "on": true,
}

// Common abbreviations expanded token-wise so "Zhejiang Univ." and
// "Zhejiang University" fold identically.
var abbreviations = map[string]string{
	"univ": "university",
	"inst": "institute",
	"dept": "department",
	"natl": "national",
	"acad": "academy",
	"polytech": "polytechnic",
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold reduces a string to lowercase alphanumerics with diacritics removed.
// Two institution renderings are considered textually identical when their
// folds are equal.
func Fold(s string) string {
	if folded, _, err := transform.String(foldTransformer, s); err == nil {
		s = folded
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Variants generates the folded candidate set for an institution name.
// The result always contains at least the fold of the full name (when the
// input has any alphanumeric content), is deduplicated, and contains no
// empty strings. Variants is a pure function: equal inputs give equal
// outputs.
func Variants(name string) []string {
	raw := strings.TrimSpace(parenthetical.ReplaceAllString(name, " "))
	if raw == "" {
		raw = strings.TrimSpace(name)
	}

	forms := []string{raw}
	if expanded := expandAbbreviations(raw); expanded != raw {
		forms = append(forms, expanded)
	}

	var candidates []string
	for _, form := range forms {
		candidates = append(candidates, form, stripLeadingArticle(form), departmentPrefix.ReplaceAllString(form, ""))

		segments := splitSegments(form)
		if len(segments) > 1 {
			first := segments[0]
			last := segments[len(segments)-1]
			candidates = append(candidates, first, departmentPrefix.ReplaceAllString(first, ""))

			// Comma-tail segments are only institutions when they say so.
			if HasOrgKeyword(last) {
				candidates = append(candidates, last)
			}
			lastTwo := strings.Join(segments[len(segments)-2:], " ")
			if HasOrgKeyword(lastTwo) {
				candidates = append(candidates, lastTwo)
			}
		}
	}

	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, c := range candidates {
		folded := Fold(c)
		if len(folded) < 3 || seen[folded] {
			continue
		}
		seen[folded] = true
		out = append(out, folded)
	}
	return out
}

// Acronym builds the initialism of a name, skipping connective stopwords.
// Returns "" when the name has fewer than two contributing words.
func Acronym(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		lw := strings.ToLower(w)
		if acronymStopwords[lw] {
			continue
		}
		first := []rune(lw)[0]
		b.WriteString(Fold(string(first)))
	}
	if b.Len() < 2 {
		return ""
	}
	return b.String()
}

// HasOrgKeyword reports whether the string names an organization rather
// than a place or a person.
func HasOrgKeyword(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range orgKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func expandAbbreviations(s string) string {
	words := strings.Fields(s)
	changed := false
	for i, w := range words {
		trimmed := strings.TrimRight(w, ".,;")
		if full, ok := abbreviations[strings.ToLower(trimmed)]; ok {
			words[i] = full
			changed = true
		}
	}
	if !changed {
		return s
	}
	return strings.Join(words, " ")
}

func stripLeadingArticle(s string) string {
	for _, article := range []string{"the ", "The "} {
		if strings.HasPrefix(s, article) {
			return s[len(article):]
		}
	}
	return s
}

func splitSegments(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
