package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholargraph/enrich-cli/internal/config"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeedFile(t *testing.T) {
	path := writeSeed(t, `
papers:
  - 2401.12345
  - "  2402.00001  "
  - ""
`)

	ids, err := loadSeedFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"2401.12345", "2402.00001"}, ids)
}

func TestLoadSeedFile_Empty(t *testing.T) {
	path := writeSeed(t, "papers: []\n")
	_, err := loadSeedFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lists no papers")
}

func TestLoadSeedFile_Missing(t *testing.T) {
	_, err := loadSeedFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestBuildQuery_Defaults(t *testing.T) {
	cfg = &config.Config{
		Arxiv: config.ArxivConfig{
			Categories: []string{"cs.AI", "cs.LG"},
			MaxResults: 200,
		},
	}
	resetProcessFlags(t)

	q, err := buildQuery()
	require.NoError(t, err)
	assert.Equal(t, []string{"cs.AI", "cs.LG"}, q.Categories)
	assert.Equal(t, 200, q.MaxResults)
	assert.True(t, q.From.IsZero())
	assert.True(t, q.To.IsZero())
}

func TestBuildQuery_WindowAndOverrides(t *testing.T) {
	cfg = &config.Config{}
	resetProcessFlags(t)
	processFrom = "2024-01-01"
	processTo = "2024-01-31"
	processCategories = []string{"math.CO"}
	processLimit = 50

	q, err := buildQuery()
	require.NoError(t, err)
	assert.Equal(t, []string{"math.CO"}, q.Categories)
	assert.Equal(t, 50, q.MaxResults)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), q.From)
	// The end day itself is inside the window.
	assert.True(t, q.To.After(time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)))
}

func TestBuildQuery_BadDate(t *testing.T) {
	cfg = &config.Config{}
	resetProcessFlags(t)
	processFrom = "January 1st"

	_, err := buildQuery()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse --from")
}

func resetProcessFlags(t *testing.T) {
	t.Helper()
	origFrom, origTo := processFrom, processTo
	origCats, origIDs := processCategories, processIDs
	origSeed, origLimit := processSeed, processLimit
	t.Cleanup(func() {
		processFrom, processTo = origFrom, origTo
		processCategories, processIDs = origCats, origIDs
		processSeed, processLimit = origSeed, origLimit
	})
	processFrom, processTo = "", ""
	processCategories, processIDs = nil, nil
	processSeed, processLimit = "", 0
}
