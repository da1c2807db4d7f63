// Package pdftext downloads papers and extracts plain text from their
// first page, which is where authors and affiliations live.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

const defaultMaxBytes = 32 << 20 // refuse to buffer PDFs beyond 32 MiB

// Extractor fetches a PDF over HTTP and returns its first-page text.
type Extractor struct {
	http     *http.Client
	maxBytes int64
}

// Option configures the extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *Extractor) {
		e.http = hc
	}
}

// WithMaxBytes overrides the download size cap.
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) {
		e.maxBytes = n
	}
}

// NewExtractor creates a PDF text extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
		maxBytes: defaultMaxBytes,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// FirstPageText downloads the PDF at url and returns the plain text of its
// first page.
func (e *Extractor) FirstPageText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrap(err, "pdftext: create request")
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "pdftext: download")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return "", eris.Wrap(err, "pdftext: read body")
	}
	if int64(len(data)) > e.maxBytes {
		return "", eris.Errorf("pdftext: pdf exceeds %d byte cap", e.maxBytes)
	}

	return FirstPage(data)
}

// APIError is a non-200 response while downloading the PDF.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pdftext: unexpected status %d", e.StatusCode)
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

// FirstPage extracts the plain text of the first page from raw PDF bytes.
// Malformed input yields an error, never a panic: the parser panics on some
// broken files, and one bad paper must not take down a batch worker.
func FirstPage(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pdftext: parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", eris.Wrap(err, "pdftext: open pdf")
	}
	if reader.NumPage() < 1 {
		return "", eris.New("pdftext: pdf has no pages")
	}

	page := reader.Page(1)
	if page.V.IsNull() {
		return "", eris.New("pdftext: first page is empty")
	}

	content, err := page.GetPlainText(nil)
	if err != nil {
		return "", eris.Wrap(err, "pdftext: extract text")
	}
	return strings.TrimSpace(content), nil
}
