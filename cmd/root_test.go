package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"process", "resume", "sessions", "rankings", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "enrich-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestProcessCommand_Flags(t *testing.T) {
	for _, name := range []string{"from", "to", "categories", "ids", "seed", "limit"} {
		require.NotNil(t, processCmd.Flags().Lookup(name), "process command should have --%s flag", name)
	}
	assert.Equal(t, "0", processCmd.Flags().Lookup("limit").DefValue)
}

func TestSessionsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range sessionsCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"list", "status", "delete", "cleanup"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRankingsCommand_HasImport(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rankingsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["import"])

	require.NotNil(t, rankingsImportCmd.Flags().Lookup("system"))
	require.NotNil(t, rankingsImportCmd.Flags().Lookup("year"))
}
