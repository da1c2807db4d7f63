// Package orcid is a client for the ORCID public read API (v3.0).
package orcid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://pub.orcid.org/v3.0"
	defaultRows    = 20
)

// Client performs lookups against the ORCID public registry.
type Client interface {
	// SearchByName runs a fielded search on given and family name.
	SearchByName(ctx context.Context, givenNames, familyName string) ([]Candidate, error)

	// ExpandedSearch runs a free-text expanded search; used as a fallback
	// when the fielded search returns nothing usable. Expanded results
	// carry names inline so candidates need no extra person fetch.
	ExpandedSearch(ctx context.Context, query string) ([]Candidate, error)

	// Person returns the public name section of a record. Classic search
	// hits carry no names, so callers verify identity through this before
	// trusting a hit's affiliations.
	Person(ctx context.Context, id string) (*Person, error)

	// Employments returns the employment entries of a record.
	Employments(ctx context.Context, id string) ([]Affiliation, error)

	// Educations returns the education entries of a record.
	Educations(ctx context.Context, id string) ([]Affiliation, error)
}

// Candidate is a search hit. GivenNames/FamilyName are empty for classic
// (non-expanded) search results.
type Candidate struct {
	ID         string
	GivenNames string
	FamilyName string
}

// Person is the public name section of a record.
type Person struct {
	DisplayName string // credit name, the name the researcher publishes under
	GivenNames  string
	FamilyName  string
	OtherNames  []string
}

// Affiliation is one employment or education entry from a record.
type Affiliation struct {
	Organization string
	Department   string
	Role         string
	City         string
	Country      string
	StartDate    string // partial ISO: "2019", "2019-03", "2019-03-01"
	EndDate      string
}

// APIError is a non-200 response from the registry.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("orcid: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRows overrides the search page size.
func WithRows(rows int) Option {
	return func(c *httpClient) {
		c.rows = rows
	}
}

type httpClient struct {
	baseURL string
	rows    int
	http    *http.Client
}

// NewClient creates an ORCID public API client. The public API needs no
// credentials.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		rows:    defaultRows,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchByName(ctx context.Context, givenNames, familyName string) ([]Candidate, error) {
	q := fmt.Sprintf("given-names:%s AND family-name:%s", quoteTerm(givenNames), quoteTerm(familyName))
	body, err := c.get(ctx, "/search/?q="+url.QueryEscape(q)+fmt.Sprintf("&rows=%d", c.rows))
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []struct {
			OrcidIdentifier struct {
				Path string `json:"path"`
			} `json:"orcid-identifier"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "orcid: unmarshal search response")
	}

	out := make([]Candidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.OrcidIdentifier.Path != "" {
			out = append(out, Candidate{ID: r.OrcidIdentifier.Path})
		}
	}
	return out, nil
}

func (c *httpClient) ExpandedSearch(ctx context.Context, query string) ([]Candidate, error) {
	body, err := c.get(ctx, "/expanded-search/?q="+url.QueryEscape(query)+fmt.Sprintf("&rows=%d", c.rows))
	if err != nil {
		return nil, err
	}

	var resp struct {
		ExpandedResult []struct {
			OrcidID     string `json:"orcid-id"`
			GivenNames  string `json:"given-names"`
			FamilyNames string `json:"family-names"`
		} `json:"expanded-result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "orcid: unmarshal expanded search response")
	}

	out := make([]Candidate, 0, len(resp.ExpandedResult))
	for _, r := range resp.ExpandedResult {
		if r.OrcidID != "" {
			out = append(out, Candidate{
				ID:         r.OrcidID,
				GivenNames: r.GivenNames,
				FamilyName: r.FamilyNames,
			})
		}
	}
	return out, nil
}

func (c *httpClient) Person(ctx context.Context, id string) (*Person, error) {
	body, err := c.get(ctx, "/"+url.PathEscape(id)+"/person")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Name struct {
			GivenNames struct {
				Value string `json:"value"`
			} `json:"given-names"`
			FamilyName struct {
				Value string `json:"value"`
			} `json:"family-name"`
			CreditName struct {
				Value string `json:"value"`
			} `json:"credit-name"`
		} `json:"name"`
		OtherNames struct {
			OtherName []struct {
				Content string `json:"content"`
			} `json:"other-name"`
		} `json:"other-names"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "orcid: unmarshal person response")
	}

	p := &Person{
		DisplayName: resp.Name.CreditName.Value,
		GivenNames:  resp.Name.GivenNames.Value,
		FamilyName:  resp.Name.FamilyName.Value,
	}
	for _, o := range resp.OtherNames.OtherName {
		if o.Content != "" {
			p.OtherNames = append(p.OtherNames, o.Content)
		}
	}
	return p, nil
}

func (c *httpClient) Employments(ctx context.Context, id string) ([]Affiliation, error) {
	return c.affiliations(ctx, id, "employments", "employment-summary")
}

func (c *httpClient) Educations(ctx context.Context, id string) ([]Affiliation, error) {
	return c.affiliations(ctx, id, "educations", "education-summary")
}

// affiliationSummary mirrors the summary object shared by employment and
// education records.
type affiliationSummary struct {
	DepartmentName string       `json:"department-name"`
	RoleTitle      string       `json:"role-title"`
	StartDate      *partialDate `json:"start-date"`
	EndDate        *partialDate `json:"end-date"`
	Organization   struct {
		Name    string `json:"name"`
		Address struct {
			City    string `json:"city"`
			Country string `json:"country"`
		} `json:"address"`
	} `json:"organization"`
}

type partialDate struct {
	Year  *dateValue `json:"year"`
	Month *dateValue `json:"month"`
	Day   *dateValue `json:"day"`
}

type dateValue struct {
	Value string `json:"value"`
}

// Format renders the partial date as "YYYY", "YYYY-MM", or "YYYY-MM-DD".
func (d *partialDate) Format() string {
	if d == nil || d.Year == nil || d.Year.Value == "" {
		return ""
	}
	s := d.Year.Value
	if d.Month != nil && d.Month.Value != "" {
		s += "-" + d.Month.Value
		if d.Day != nil && d.Day.Value != "" {
			s += "-" + d.Day.Value
		}
	}
	return s
}

func (c *httpClient) affiliations(ctx context.Context, id, section, summaryKey string) ([]Affiliation, error) {
	body, err := c.get(ctx, "/"+url.PathEscape(id)+"/"+section)
	if err != nil {
		return nil, err
	}

	var resp struct {
		AffiliationGroup []struct {
			Summaries []map[string]affiliationSummary `json:"summaries"`
		} `json:"affiliation-group"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "orcid: unmarshal %s response", section)
	}

	var out []Affiliation
	for _, group := range resp.AffiliationGroup {
		for _, summaries := range group.Summaries {
			summary, ok := summaries[summaryKey]
			if !ok {
				continue
			}
			out = append(out, Affiliation{
				Organization: summary.Organization.Name,
				Department:   summary.DepartmentName,
				Role:         summary.RoleTitle,
				City:         summary.Organization.Address.City,
				Country:      summary.Organization.Address.Country,
				StartDate:    summary.StartDate.Format(),
				EndDate:      summary.EndDate.Format(),
			})
		}
	}
	return out, nil
}

func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "orcid: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "orcid: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "orcid: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

// quoteTerm wraps multi-word terms in quotes for the Solr query syntax.
func quoteTerm(s string) string {
	s = strings.TrimSpace(s)
	if strings.ContainsRune(s, ' ') {
		return `"` + s + `"`
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
