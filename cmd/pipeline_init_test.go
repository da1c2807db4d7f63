package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholargraph/enrich-cli/internal/config"
)

func TestInitPipeline_MissingDatabaseURL(t *testing.T) {
	cfg = &config.Config{}

	_, err := initPipeline(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENRICH_STORE_DATABASE_URL")
}

func TestInitPipeline_MissingAnthropicKey(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{DatabaseURL: "postgres://localhost/enrich"},
	}

	_, err := initPipeline(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENRICH_ANTHROPIC_KEY")
}
