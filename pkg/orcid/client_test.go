package orcid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchByName(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, `{"result":[
			{"orcid-identifier":{"path":"0000-0001-2345-6789"}},
			{"orcid-identifier":{"path":"0000-0002-0000-0001"}}
		],"num-found":2}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	candidates, err := c.SearchByName(context.Background(), "Wei", "Zhang")
	if err != nil {
		t.Fatal(err)
	}

	if gotQuery != "given-names:Wei AND family-name:Zhang" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(candidates) != 2 || candidates[0].ID != "0000-0001-2345-6789" {
		t.Errorf("candidates = %+v", candidates)
	}
}

func TestSearchByName_QuotesMultiWordTerms(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, `{"result":[],"num-found":0}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	if _, err := c.SearchByName(context.Background(), "Mary Jane", "van der Berg"); err != nil {
		t.Fatal(err)
	}
	if gotQuery != `given-names:"Mary Jane" AND family-name:"van der Berg"` {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestExpandedSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"expanded-result":[
			{"orcid-id":"0000-0001-2345-6789","given-names":"Wei","family-names":"Zhang"}
		],"num-found":1}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	candidates, err := c.ExpandedSearch(context.Background(), "Wei Zhang")
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %+v", candidates)
	}
	if candidates[0].GivenNames != "Wei" || candidates[0].FamilyName != "Zhang" {
		t.Errorf("candidate = %+v", candidates[0])
	}
}

func TestPerson(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0000-0001-2345-6789/person" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"name":{
			"given-names":{"value":"Wei"},
			"family-name":{"value":"Zhang"},
			"credit-name":{"value":"W. Zhang"}
		},"other-names":{"other-name":[
			{"content":"Zhang Wei"},
			{"content":""}
		]}}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	p, err := c.Person(context.Background(), "0000-0001-2345-6789")
	if err != nil {
		t.Fatal(err)
	}
	if p.GivenNames != "Wei" || p.FamilyName != "Zhang" || p.DisplayName != "W. Zhang" {
		t.Errorf("person = %+v", p)
	}
	if len(p.OtherNames) != 1 || p.OtherNames[0] != "Zhang Wei" {
		t.Errorf("other names = %+v", p.OtherNames)
	}
}

func TestPerson_AbsentNameSection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":null,"other-names":{"other-name":[]}}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	p, err := c.Person(context.Background(), "0000-0001-2345-6789")
	if err != nil {
		t.Fatal(err)
	}
	if p.GivenNames != "" || p.FamilyName != "" || p.DisplayName != "" || len(p.OtherNames) != 0 {
		t.Errorf("person = %+v", p)
	}
}

func TestEmployments_PartialDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0000-0001-2345-6789/employments" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"affiliation-group":[{"summaries":[{"employment-summary":{
			"department-name":"College of Computer Science",
			"role-title":"Professor",
			"start-date":{"year":{"value":"2019"},"month":{"value":"03"},"day":null},
			"end-date":null,
			"organization":{"name":"Zhejiang University","address":{"city":"Hangzhou","country":"CN"}}
		}}]}]}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	affs, err := c.Employments(context.Background(), "0000-0001-2345-6789")
	if err != nil {
		t.Fatal(err)
	}
	if len(affs) != 1 {
		t.Fatalf("affiliations = %+v", affs)
	}

	a := affs[0]
	if a.Organization != "Zhejiang University" || a.Role != "Professor" {
		t.Errorf("affiliation = %+v", a)
	}
	if a.StartDate != "2019-03" {
		t.Errorf("start date = %q", a.StartDate)
	}
	if a.EndDate != "" {
		t.Errorf("end date = %q", a.EndDate)
	}
	if a.Country != "CN" {
		t.Errorf("country = %q", a.Country)
	}
}

func TestEducations_UsesEducationSummaryKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"affiliation-group":[{"summaries":[{"education-summary":{
			"role-title":"PhD",
			"start-date":{"year":{"value":"2012"}},
			"end-date":{"year":{"value":"2017"},"month":{"value":"06"},"day":{"value":"30"}},
			"organization":{"name":"Tsinghua University","address":{"country":"CN"}}
		}}]}]}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	affs, err := c.Educations(context.Background(), "0000-0001-2345-6789")
	if err != nil {
		t.Fatal(err)
	}
	if len(affs) != 1 || affs[0].Organization != "Tsinghua University" {
		t.Fatalf("affiliations = %+v", affs)
	}
	if affs[0].StartDate != "2012" || affs[0].EndDate != "2017-06-30" {
		t.Errorf("dates = %q .. %q", affs[0].StartDate, affs[0].EndDate)
	}
}

func TestGet_SurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Employments(context.Background(), "0000-0000-0000-0000")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.HTTPStatus() != http.StatusNotFound {
		t.Errorf("err = %v", err)
	}
}
