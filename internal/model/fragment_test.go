package model

import "testing"

func TestBaseID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://arxiv.org/abs/2401.12345v2", "2401.12345"},
		{"http://arxiv.org/abs/2401.12345", "2401.12345"},
		{"2401.12345v10", "2401.12345"},
		{"2401.12345", "2401.12345"},
		{"http://arxiv.org/abs/hep-th/9901001v1", "9901001"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := BaseID(tc.in); got != tc.want {
			t.Errorf("BaseID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMergeFragments_DisjointFieldsCommute(t *testing.T) {
	a := NewFragment("2401.12345")
	a.Authors = []AuthorAffiliation{{Name: "Wei Zhang", Affiliations: []string{"Zhejiang University"}}}

	b := NewFragment("2401.12345")
	b.ORCIDs["Wei Zhang"] = "0000-0001-2345-6789"
	b.Roles[RoleKey{Author: "Wei Zhang", Affiliation: "zhejianguniversity"}] = Role{
		Title:  "Professor",
		Source: RoleSourceEmployment,
	}

	ab := MergeFragments(a, b)
	ba := MergeFragments(b, a)

	for _, m := range []*Fragment{ab, ba} {
		if len(m.Authors) != 1 || m.Authors[0].Name != "Wei Zhang" {
			t.Fatalf("merged authors = %+v", m.Authors)
		}
		if m.ORCIDs["Wei Zhang"] != "0000-0001-2345-6789" {
			t.Errorf("merged orcid = %q", m.ORCIDs["Wei Zhang"])
		}
		role := m.Roles[RoleKey{Author: "Wei Zhang", Affiliation: "zhejianguniversity"}]
		if role.Title != "Professor" {
			t.Errorf("merged role = %+v", role)
		}
	}
}

func TestMergeFragments_DoesNotMutateInputs(t *testing.T) {
	a := NewFragment("2401.12345")
	a.ORCIDs["A"] = "0000-0001-0000-0001"
	b := NewFragment("2401.12345")
	b.ORCIDs["B"] = "0000-0001-0000-0002"

	_ = MergeFragments(a, b)

	if len(a.ORCIDs) != 1 || len(b.ORCIDs) != 1 {
		t.Errorf("inputs mutated: a=%v b=%v", a.ORCIDs, b.ORCIDs)
	}
}

func TestMergeFragments_NilInputs(t *testing.T) {
	f := NewFragment("2401.12345")
	if got := MergeFragments(nil, f); got != f {
		t.Error("expected nil left input to yield right fragment")
	}
	if got := MergeFragments(f, nil); got != f {
		t.Error("expected nil right input to yield left fragment")
	}
}

func TestRoleCombined(t *testing.T) {
	r := Role{Title: "Professor", Department: "Computer Science"}
	if got := r.Combined(); got != "Professor (Computer Science)" {
		t.Errorf("Combined() = %q", got)
	}
	if got := (Role{Title: "Professor"}).Combined(); got != "Professor" {
		t.Errorf("Combined() = %q", got)
	}
	if got := (Role{Department: "Physics"}).Combined(); got != "Physics" {
		t.Errorf("Combined() = %q", got)
	}
}

func TestSessionRemaining(t *testing.T) {
	s := Session{TotalItems: 10, Processed: 6, Skipped: 1}
	if got := s.Remaining(); got != 3 {
		t.Errorf("Remaining() = %d, want 3", got)
	}
}
