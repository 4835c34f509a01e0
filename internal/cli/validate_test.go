package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roster/internal/schema"
)

func fixturePath(name string) string {
	return filepath.Join("..", "migrate", "testdata", name)
}

func runValidateCommand(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidDocument(t *testing.T) {
	out, err := runValidateCommand(t, &RootOptions{Format: "text"}, fixturePath("v3.json"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "is valid")
}

func TestValidateValidDocumentJSON(t *testing.T) {
	out, err := runValidateCommand(t, &RootOptions{Format: "json"}, fixturePath("v3.json"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, fixturePath("v3.json"), resp.Data.Location)
}

func TestValidateNonExistentDocument(t *testing.T) {
	out, err := runValidateCommand(t, &RootOptions{Format: "text"}, "/nonexistent/roster.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, CodeStore)
}

func TestValidateLegacyDocument(t *testing.T) {
	out, err := runValidateCommand(t, &RootOptions{Format: "text"}, fixturePath("v1_teams.json"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Validation failed")
	assert.Contains(t, out, schema.CodeGeneration)
	assert.Contains(t, out, "run migrate")
}

func TestValidateInvalidDocumentJSON(t *testing.T) {
	fixture, err := os.ReadFile(fixturePath("v3.json"))
	require.NoError(t, err)
	broken := strings.Replace(string(fixture), `"type": "contribution"`, `"type": "bonus"`, 1)
	path := filepath.Join(t.TempDir(), "roster.json")
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o644))

	out, err := runValidateCommand(t, &RootOptions{Format: "json"}, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	require.NotNil(t, resp.Error)
	assert.Equal(t, schema.CodeStructure, resp.Error.Code)
}

func TestValidateSyntaxError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"_schema_version": 3,`), 0o644))

	out, err := runValidateCommand(t, &RootOptions{Format: "text"}, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, schema.CodeSyntax)
}

func TestValidateVerboseOutput(t *testing.T) {
	errBuf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{fixturePath("v3.json")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, errBuf.String(), "Validating")
}

func TestValidateConfiguredStore(t *testing.T) {
	env := newCLIEnv(t, "roster.json")

	out, err := env.run("validate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err), "an absent store has nothing to check")
	assert.Contains(t, out, "no document at")

	env.data("group", "create", "Platform")
	env.data("person", "upsert", "--name", "Alice", "--phone", "13800000001")

	out, err = env.run("validate")
	require.NoError(t, err, out)
	assert.Contains(t, out, env.store)
}
