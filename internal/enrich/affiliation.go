package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/scholargraph/enrich-cli/internal/model"
	"github.com/scholargraph/enrich-cli/internal/normalize"
	"github.com/scholargraph/enrich-cli/internal/resilience"
	"github.com/scholargraph/enrich-cli/pkg/anthropic"
)

// maxPageChars bounds how much first-page text goes into the prompt.
const maxPageChars = 12000

// PageFetcher returns the first-page text of a paper's PDF.
type PageFetcher interface {
	FirstPageText(ctx context.Context, url string) (string, error)
}

// AffiliationWorker extracts author affiliations and emails from a paper's
// first PDF page via the text-generation model.
type AffiliationWorker struct {
	llm   anthropic.Client
	pages PageFetcher
	model string
	retry resilience.RetryConfig
}

// NewAffiliationWorker creates the extraction worker.
func NewAffiliationWorker(llm anthropic.Client, pages PageFetcher, modelID string, retry resilience.RetryConfig) *AffiliationWorker {
	return &AffiliationWorker{llm: llm, pages: pages, model: modelID, retry: retry}
}

// Extract runs the affiliation stage for one paper. Transient failures are
// retried in place; a malformed model response yields an empty fragment
// rather than a failure, so one flaky completion cannot poison the item.
func (w *AffiliationWorker) Extract(ctx context.Context, paper model.Paper) Outcome {
	if paper.PDFURL == "" {
		return Success(model.NewFragment(paper.ArxivID))
	}

	pageText, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) (string, error) {
		return w.pages.FirstPageText(ctx, paper.PDFURL)
	})
	if err != nil {
		if resilience.IsQuotaExhausted(err) {
			return QuotaExhausted(err.Error())
		}
		return Failure("fetch first page: " + err.Error())
	}
	if len(pageText) > maxPageChars {
		pageText = pageText[:maxPageChars]
	}

	resp, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return w.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     w.model,
			MaxTokens: 2048,
			System:    affiliationSystemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: affiliationUserPrompt(paper.Authors, pageText)},
			},
		})
	})
	if err != nil {
		if resilience.IsQuotaExhausted(err) {
			return QuotaExhausted(err.Error())
		}
		return Failure("affiliation extraction: " + err.Error())
	}

	fragment := parseAffiliationResponse(paper, resp.Text)
	return Success(fragment)
}

type affiliationPayload struct {
	Authors []struct {
		Name         string   `json:"name"`
		Affiliations []string `json:"affiliations"`
		Email        string   `json:"email"`
	} `json:"authors"`
}

// parseAffiliationResponse aligns the model output with the authoritative
// author list from the feed. Extracted names that match no listed author
// are dropped; listed authors the model missed get an empty entry.
func parseAffiliationResponse(paper model.Paper, raw string) *model.Fragment {
	fragment := model.NewFragment(paper.ArxivID)

	var payload affiliationPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		zap.L().Warn("malformed affiliation response",
			zap.String("arxiv_id", paper.ArxivID),
			zap.Error(err),
		)
		return fragment
	}

	extracted := make(map[string]int, len(payload.Authors))
	for i, a := range payload.Authors {
		extracted[normalize.Fold(a.Name)] = i
	}

	fragment.Authors = make([]model.AuthorAffiliation, len(paper.Authors))
	for i, name := range paper.Authors {
		entry := model.AuthorAffiliation{Name: name}
		if j, ok := matchAuthor(name, extracted, payload); ok {
			for _, aff := range payload.Authors[j].Affiliations {
				if aff = strings.TrimSpace(aff); aff != "" {
					entry.Affiliations = append(entry.Affiliations, aff)
				}
			}
			entry.Email = strings.TrimSpace(payload.Authors[j].Email)
		}
		fragment.Authors[i] = entry
	}
	return fragment
}

// matchAuthor pairs a feed author with an extracted block: exact fold
// match first, then a unique family-name match for initialed renderings
// like "W. Zhang".
func matchAuthor(name string, extracted map[string]int, payload affiliationPayload) (int, bool) {
	if j, ok := extracted[normalize.Fold(name)]; ok {
		return j, true
	}

	family := familyName(name)
	if family == "" {
		return 0, false
	}
	matchIdx, matches := 0, 0
	for j, a := range payload.Authors {
		if familyName(a.Name) == family {
			matchIdx = j
			matches++
		}
	}
	if matches == 1 {
		return matchIdx, true
	}
	return 0, false
}

func familyName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return normalize.Fold(fields[len(fields)-1])
}
