// Package model defines the domain types shared across the enrichment
// pipeline: raw bibliographic records, enrichment fragments, and the
// session/item progress model.
package model

import (
	"strings"
	"time"
)

// Paper is a raw bibliographic record as fetched from arXiv. The Authors
// slice preserves the published order and is the authoritative author list;
// enrichment only annotates it.
type Paper struct {
	ArxivID    string    `json:"arxiv_id"`
	Title      string    `json:"title"`
	Abstract   string    `json:"abstract,omitempty"`
	Authors    []string  `json:"authors"`
	Categories []string  `json:"categories,omitempty"`
	PDFURL     string    `json:"pdf_url,omitempty"`
	Published  time.Time `json:"published"`
	Updated    time.Time `json:"updated,omitempty"`
}

// BaseID derives the stable arXiv identifier from an entry URI or a
// versioned id: the last path segment with any "vN" suffix removed.
// "http://arxiv.org/abs/2401.12345v2" and "2401.12345v2" both yield
// "2401.12345".
func BaseID(entryID string) string {
	id := entryID
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.LastIndex(id, "v"); i > 0 {
		digitsOnly := true
		for _, r := range id[i+1:] {
			if r < '0' || r > '9' {
				digitsOnly = false
				break
			}
		}
		if digitsOnly && i+1 < len(id) {
			id = id[:i]
		}
	}
	return id
}
