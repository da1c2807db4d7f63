package model

// AuthorAffiliation is the extracted affiliation block for a single author,
// positionally aligned with Paper.Authors.
type AuthorAffiliation struct {
	Name         string   `json:"name"`
	Affiliations []string `json:"affiliations"`
	Email        string   `json:"email,omitempty"`
}

// RoleKey identifies role metadata by (author, normalized affiliation).
type RoleKey struct {
	Author      string
	Affiliation string
}

// Role holds position metadata for an author at one affiliation. Dates are
// partial ISO strings: "2019", "2019-03", or "2019-03-01". Source records
// which worker produced the entry.
type Role struct {
	Title      string `json:"title,omitempty"`
	Department string `json:"department,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	Source     string `json:"source,omitempty"`
}

// Role sources.
const (
	RoleSourceEmployment = "registry_employment"
	RoleSourceEducation  = "registry_education"
	RoleSourceWebSearch  = "web_search"
)

// Combined returns the role title with the department folded in, e.g.
// "Professor (Computer Science)". Falls back to whichever part is present.
func (r Role) Combined() string {
	switch {
	case r.Title != "" && r.Department != "":
		return r.Title + " (" + r.Department + ")"
	case r.Title != "":
		return r.Title
	default:
		return r.Department
	}
}

// Fragment is a partial enrichment result for one paper. Each worker fills
// only the fields it is responsible for; fragments from concurrent workers
// are combined with MergeFragments.
type Fragment struct {
	ArxivID string
	Authors []AuthorAffiliation
	ORCIDs  map[string]string
	Roles   map[RoleKey]Role
}

// NewFragment returns an empty fragment for the given paper.
func NewFragment(arxivID string) *Fragment {
	return &Fragment{
		ArxivID: arxivID,
		ORCIDs:  make(map[string]string),
		Roles:   make(map[RoleKey]Role),
	}
}

// Empty reports whether the fragment carries no enrichment data.
func (f *Fragment) Empty() bool {
	return f == nil || (len(f.Authors) == 0 && len(f.ORCIDs) == 0 && len(f.Roles) == 0)
}

// MergeFragments combines two fragments for the same paper. The first
// non-empty value wins per field, so merging is commutative whenever the
// inputs populate disjoint fields. Neither input is mutated.
func MergeFragments(a, b *Fragment) *Fragment {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	out := NewFragment(a.ArxivID)
	if out.ArxivID == "" {
		out.ArxivID = b.ArxivID
	}

	if len(a.Authors) > 0 {
		out.Authors = append(out.Authors, a.Authors...)
	} else {
		out.Authors = append(out.Authors, b.Authors...)
	}

	for name, id := range b.ORCIDs {
		out.ORCIDs[name] = id
	}
	for name, id := range a.ORCIDs {
		if id != "" {
			out.ORCIDs[name] = id
		}
	}

	for key, role := range b.Roles {
		out.Roles[key] = role
	}
	for key, role := range a.Roles {
		if _, seen := out.Roles[key]; !seen || role.Title != "" {
			out.Roles[key] = role
		}
	}

	return out
}
