// Package arxiv is a minimal client for the arXiv Atom query API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://export.arxiv.org/api"
	defaultPageSize = 100
	idListBatchSize = 50
)

// Client fetches bibliographic entries from the arXiv query API.
type Client interface {
	// Search returns entries matching the query, paginating until the feed
	// is drained or ctx is cancelled.
	Search(ctx context.Context, q Query) ([]Entry, error)

	// FetchByIDs returns entries for explicit arXiv identifiers, batching
	// the id_list parameter as the API requires.
	FetchByIDs(ctx context.Context, ids []string) ([]Entry, error)
}

// Query describes a window search over one or more categories.
type Query struct {
	Categories []string  // e.g. "cs.AI", "cs.LG"
	From       time.Time // submittedDate window start (inclusive)
	To         time.Time // submittedDate window end
	MaxResults int       // 0 = no cap beyond what the feed returns
}

// Entry is a single feed entry. ID is the raw entry URI as returned by the
// API (version suffix included).
type Entry struct {
	ID         string
	Title      string
	Summary    string
	Authors    []string
	Categories []string
	PDFURL     string
	Published  time.Time
	Updated    time.Time
}

// APIError is a non-200 response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("arxiv: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus implements the status-carrier convention used by the retry
// layer for transient classification.
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

// WithRateLimit overrides the request pacing. arXiv asks automated clients
// for no more than one request every three seconds, which is the default.
func WithRateLimit(interval time.Duration) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an arXiv API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, q Query) ([]Entry, error) {
	terms := make([]string, 0, len(q.Categories))
	for _, cat := range q.Categories {
		terms = append(terms, "cat:"+cat)
	}
	search := strings.Join(terms, " OR ")
	if len(terms) > 1 {
		search = "(" + search + ")"
	}
	if !q.From.IsZero() || !q.To.IsZero() {
		window := fmt.Sprintf("submittedDate:[%s TO %s]",
			q.From.UTC().Format("200601021504"),
			q.To.UTC().Format("200601021504"))
		if search == "" {
			search = window
		} else {
			search += " AND " + window
		}
	}

	var out []Entry
	for start := 0; ; start += defaultPageSize {
		pageSize := defaultPageSize
		if q.MaxResults > 0 && q.MaxResults-len(out) < pageSize {
			pageSize = q.MaxResults - len(out)
		}
		if pageSize <= 0 {
			break
		}

		params := url.Values{}
		params.Set("search_query", search)
		params.Set("start", fmt.Sprint(start))
		params.Set("max_results", fmt.Sprint(pageSize))
		params.Set("sortBy", "submittedDate")
		params.Set("sortOrder", "descending")

		feed, err := c.fetchFeed(ctx, params)
		if err != nil {
			return nil, err
		}
		out = append(out, feed.entries()...)

		if len(feed.Entries) < pageSize || start+pageSize >= feed.TotalResults {
			break
		}
	}
	return out, nil
}

func (c *httpClient) FetchByIDs(ctx context.Context, ids []string) ([]Entry, error) {
	var out []Entry
	for offset := 0; offset < len(ids); offset += idListBatchSize {
		end := offset + idListBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		params := url.Values{}
		params.Set("id_list", strings.Join(ids[offset:end], ","))
		params.Set("max_results", fmt.Sprint(end-offset))

		feed, err := c.fetchFeed(ctx, params)
		if err != nil {
			return nil, err
		}
		out = append(out, feed.entries()...)
	}
	return out, nil
}

func (c *httpClient) fetchFeed(ctx context.Context, params url.Values) (*atomFeed, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "arxiv: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, eris.Wrap(err, "arxiv: unmarshal feed")
	}
	return &feed, nil
}

type atomFeed struct {
	XMLName      xml.Name    `xml:"feed"`
	TotalResults int         `xml:"totalResults"`
	Entries      []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary"`
	Published  time.Time  `xml:"published"`
	Updated    time.Time  `xml:"updated"`
	Authors    []atomName `xml:"author"`
	Categories []atomTerm `xml:"category"`
	Links      []atomLink `xml:"link"`
}

type atomName struct {
	Name string `xml:"name"`
}

type atomTerm struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

func (f *atomFeed) entries() []Entry {
	out := make([]Entry, 0, len(f.Entries))
	for _, e := range f.Entries {
		entry := Entry{
			ID:        strings.TrimSpace(e.ID),
			Title:     collapseWhitespace(e.Title),
			Summary:   strings.TrimSpace(e.Summary),
			Published: e.Published,
			Updated:   e.Updated,
		}
		for _, a := range e.Authors {
			if name := strings.TrimSpace(a.Name); name != "" {
				entry.Authors = append(entry.Authors, name)
			}
		}
		for _, cat := range e.Categories {
			if cat.Term != "" {
				entry.Categories = append(entry.Categories, cat.Term)
			}
		}
		for _, l := range e.Links {
			if l.Title == "pdf" || l.Type == "application/pdf" {
				entry.PDFURL = l.Href
				break
			}
		}
		out = append(out, entry)
	}
	return out
}

// collapseWhitespace normalizes the newline-wrapped titles the feed emits.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
