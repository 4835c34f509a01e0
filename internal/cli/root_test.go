package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "roster", cmd.Use)
	assert.Contains(t, cmd.Long, "deduplicated directory")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"org", "show"}, {"org", "rename"},
		{"group", "create"}, {"group", "rename"}, {"group", "update"}, {"group", "delete"}, {"group", "list"}, {"group", "members"},
		{"person", "upsert"}, {"person", "get"}, {"person", "list"}, {"person", "delete"}, {"person", "find"}, {"person", "search"},
		{"member", "add"}, {"member", "remove"}, {"member", "update"},
		{"perf", "show"}, {"perf", "summary"}, {"perf", "base"}, {"perf", "add"}, {"perf", "update"}, {"perf", "delete"},
		{"leaderboard"}, {"import"}, {"migrate"}, {"validate"},
		{"self", "bind"}, {"self", "show"}, {"self", "clear"}, {"self", "save"}, {"self", "candidates"},
		{"history"}, {"config", "show"}, {"config", "init"}, {"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("store"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("backend"))
}

func TestPersonUpsertFlags(t *testing.T) {
	cmd := NewRootCommand()
	upsertCmd, _, err := cmd.Find([]string{"person", "upsert"})
	require.NoError(t, err)

	sourceFlag := upsertCmd.Flags().Lookup("source")
	require.NotNil(t, sourceFlag)
	assert.Equal(t, SourceCLI, sourceFlag.DefValue)

	for _, name := range []string{"name", "phone", "email", "field", "profile", "group", "member-field"} {
		assert.NotNil(t, upsertCmd.Flags().Lookup(name), name)
	}
}

func TestPerfEventFlags(t *testing.T) {
	cmd := NewRootCommand()
	addCmd, _, err := cmd.Find([]string{"perf", "add"})
	require.NoError(t, err)

	typeFlag := addCmd.Flags().Lookup("type")
	require.NotNil(t, typeFlag)
	assert.Equal(t, "manual_adjust", typeFlag.DefValue)
}

func TestHistoryFlags(t *testing.T) {
	cmd := NewRootCommand()
	historyCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)

	limitFlag := historyCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "n", limitFlag.Shorthand)
	assert.Equal(t, "20", limitFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "org", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestInvalidBackend(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--backend", "postgres", "org", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid backend "postgres"`)
}
