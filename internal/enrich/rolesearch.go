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
	"github.com/scholargraph/enrich-cli/pkg/tavily"
)

// RoleSearchWorker is the fallback when the registry has no role for an
// (author, affiliation) pair: ask the web, then have the model distill a
// concise title from the answer. Search credentials come from a rotating
// pool; when the pool is spent the worker reports quota exhaustion and the
// session pauses.
type RoleSearchWorker struct {
	search tavily.Client
	keys   *resilience.KeyRing
	llm    anthropic.Client
	model  string
	retry  resilience.RetryConfig
}

// NewRoleSearchWorker creates the web role-search worker.
func NewRoleSearchWorker(search tavily.Client, keys *resilience.KeyRing, llm anthropic.Client, modelID string, retry resilience.RetryConfig) *RoleSearchWorker {
	return &RoleSearchWorker{search: search, keys: keys, llm: llm, model: modelID, retry: retry}
}

// FindRole searches the web for the author's position at the affiliation.
// An unhelpful answer is a no-match, not a failure.
func (w *RoleSearchWorker) FindRole(ctx context.Context, arxivID, author, affiliation string) Outcome {
	fragment := model.NewFragment(arxivID)

	resp, err := w.searchWithRotation(ctx, tavily.SearchRequest{
		Query:         roleSearchQuery(author, affiliation),
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    3,
	})
	if err != nil {
		if resilience.IsQuotaExhausted(err) {
			return QuotaExhausted(err.Error())
		}
		return Failure("role search: " + err.Error())
	}

	searchText := collectSearchText(resp)
	if searchText == "" {
		return Success(fragment)
	}

	llmResp, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return w.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     w.model,
			MaxTokens: 256,
			System:    roleSystemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: roleUserPrompt(author, affiliation, searchText)},
			},
		})
	})
	if err != nil {
		if resilience.IsQuotaExhausted(err) {
			return QuotaExhausted(err.Error())
		}
		return Failure("role extraction: " + err.Error())
	}

	var payload struct {
		Role       string `json:"role"`
		Department string `json:"department"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(llmResp.Text)), &payload); err != nil {
		zap.L().Warn("malformed role response",
			zap.String("author", author),
			zap.Error(err),
		)
		return Success(fragment)
	}

	if payload.Role != "" || payload.Department != "" {
		fragment.Roles[model.RoleKey{Author: author, Affiliation: normalize.Fold(affiliation)}] = model.Role{
			Title:      strings.TrimSpace(payload.Role),
			Department: strings.TrimSpace(payload.Department),
			Source:     model.RoleSourceWebSearch,
		}
	}
	return Success(fragment)
}

// searchWithRotation retries transient search failures in place and walks
// the credential ring on quota errors until a key works or the pool dies.
func (w *RoleSearchWorker) searchWithRotation(ctx context.Context, req tavily.SearchRequest) (*tavily.SearchResponse, error) {
	for {
		key, idx := w.keys.Current()

		resp, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) (*tavily.SearchResponse, error) {
			return w.search.Search(ctx, key, req)
		})
		if err == nil {
			return resp, nil
		}
		if !resilience.IsQuotaExhausted(err) {
			return nil, err
		}

		if _, _, ok := w.keys.Rotate(idx); !ok {
			return nil, resilience.NewQuotaError(err, "websearch")
		}
	}
}

func collectSearchText(resp *tavily.SearchResponse) string {
	var parts []string
	if a := strings.TrimSpace(resp.Answer); a != "" {
		parts = append(parts, a)
	}
	for _, r := range resp.Results {
		if c := strings.TrimSpace(r.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}
