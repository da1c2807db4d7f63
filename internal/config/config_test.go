package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "enrich-progress.db", cfg.Progress.Path)
	assert.Equal(t, "https://export.arxiv.org/api/query", cfg.Arxiv.BaseURL)
	assert.Equal(t, []string{"cs.AI", "cs.LG"}, cfg.Arxiv.Categories)
	assert.Equal(t, 3, cfg.Arxiv.RateIntervalSecs)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "https://pub.orcid.org/v3.0", cfg.Orcid.BaseURL)
	assert.Equal(t, "https://api.tavily.com", cfg.Tavily.BaseURL)
	assert.InDelta(t, 0.84, cfg.Match.DirectoryThreshold, 0.001)
	assert.InDelta(t, 0.86, cfg.Match.RoleThreshold, 0.001)
	assert.Equal(t, 20, cfg.Pipeline.SliceSize)
	assert.Equal(t, 5, cfg.Pipeline.AffiliationWorkers)
	assert.Equal(t, 5, cfg.Pipeline.RegistryWorkers)
	assert.Equal(t, 3, cfg.Pipeline.RoleSearchWorkers)
	assert.True(t, cfg.Pipeline.RoleSearchEnabled)
	assert.Equal(t, "QS World University Rankings", cfg.Rankings.System)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  database_url: postgres://localhost/scholargraph
tavily:
  keys:
    - key-one
    - key-two
match:
  directory_threshold: 0.9
pipeline:
  slice_size: 10
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/scholargraph", cfg.Store.DatabaseURL)
	assert.Equal(t, []string{"key-one", "key-two"}, cfg.Tavily.Keys)
	assert.InDelta(t, 0.9, cfg.Match.DirectoryThreshold, 0.001)
	assert.Equal(t, 10, cfg.Pipeline.SliceSize)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.86, cfg.Match.RoleThreshold, 0.001)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("ENRICH_STORE_DATABASE_URL", "postgres://env-host/enrich")
	t.Setenv("ENRICH_ANTHROPIC_KEY", "sk-test")
	t.Setenv("ENRICH_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/enrich", cfg.Store.DatabaseURL)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.Error(t, InitLogger(LogConfig{Level: "not-a-level"}))
}
