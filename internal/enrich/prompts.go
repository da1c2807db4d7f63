package enrich

import (
	"fmt"
	"strings"
)

// affiliationSystemPrompt instructs the model to return the closed JSON
// schema the parser expects. Anything else is treated as malformed and
// yields an empty fragment.
const affiliationSystemPrompt = `You extract author affiliation data from the first page of a research paper.

Respond with strict JSON only, no prose and no code fences, matching exactly this schema:
{"authors":[{"name":"<author name>","affiliations":["<institution>", ...],"email":"<email or empty string>"}]}

Rules:
- Include every author from the provided author list, in the same order.
- List each author's institutional affiliations as they appear on the page.
- Emails must be copied verbatim from the page; use "" when none is shown.
- Use [] for authors whose affiliations are not stated.`

// roleSystemPrompt extracts a concise position from web search output.
const roleSystemPrompt = `You extract a person's current position at a specific institution from web search results.

Respond with strict JSON only, no prose and no code fences:
{"role":"<concise title, e.g. Professor>","department":"<department or empty string>"}

Use {"role":"","department":""} when the search results do not state a position at that institution.`

func affiliationUserPrompt(authors []string, pageText string) string {
	return fmt.Sprintf("Author list:\n%s\n\nFirst page text:\n%s",
		strings.Join(authors, "\n"), pageText)
}

func roleUserPrompt(author, affiliation, searchText string) string {
	return fmt.Sprintf("Person: %s\nInstitution: %s\n\nSearch results:\n%s",
		author, affiliation, searchText)
}

// roleSearchQuery is the question posed to the web search provider.
func roleSearchQuery(author, affiliation string) string {
	return fmt.Sprintf("What is %s's role position job title at %s?", author, affiliation)
}

// stripCodeFence removes a Markdown code fence if the model wrapped its
// JSON in one despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
