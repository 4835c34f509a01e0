package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: test_scenario
description: "Test scenario for validation"
setup:
  - action: group.create
    args: { name: Platform }
    bind: platform
flow:
  - invoke: person.upsert
    args:
      profile: { name: Alice, phone: "13800000001" }
      group: $platform
    expect:
      case: Created
assertions:
  - type: trace_contains
    action: person.upsert
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	require.Len(t, scenario.Setup, 1)
	assert.Equal(t, "platform", scenario.Setup[0].Bind)
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, "person.upsert", scenario.Flow[0].Invoke)
	assert.Equal(t, "$platform", scenario.Flow[0].Args["group"])
	assert.Equal(t, "Created", scenario.Flow[0].Expect.Case)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "Missing name"
flow:
  - invoke: group.create
    args: { name: A }
assertions:
  - type: trace_count
    action: group.create
    count: 1
`,
			wantErr: "name is required",
		},
		{
			name: "unknown field",
			content: `
name: typo
description: "Typo in a key"
flow:
  - invoke: group.create
    args: { name: A }
assertion:
  - type: trace_count
`,
			wantErr: "failed to parse YAML",
		},
		{
			name: "unknown action",
			content: `
name: bad_action
description: "Unknown action"
flow:
  - invoke: group.explode
    args: {}
assertions:
  - type: trace_count
    action: group.explode
    count: 1
`,
			wantErr: `unknown action "group.explode"`,
		},
		{
			name: "missing args",
			content: `
name: no_args
description: "Args omitted"
flow:
  - invoke: store.migrate
assertions:
  - type: trace_count
    action: store.migrate
    count: 1
`,
			wantErr: "args is required",
		},
		{
			name: "expect without case",
			content: `
name: no_case
description: "Expect without case"
flow:
  - invoke: store.migrate
    args: {}
    expect:
      result: { from: v3 }
assertions:
  - type: trace_count
    action: store.migrate
    count: 1
`,
			wantErr: "case is required",
		},
		{
			name: "unknown table",
			content: `
name: bad_table
description: "Unknown state table"
flow:
  - invoke: store.migrate
    args: {}
assertions:
  - type: row_count
    table: teams
`,
			wantErr: `unknown table "teams"`,
		},
		{
			name: "final_state without expect",
			content: `
name: no_expect
description: "final_state without expect"
flow:
  - invoke: store.migrate
    args: {}
assertions:
  - type: final_state
    table: people
`,
			wantErr: "expect is required",
		},
		{
			name: "missing seed",
			content: `
name: no_seed
description: "Seed file missing"
seed: seeds/missing.json
flow:
  - invoke: store.migrate
    args: {}
assertions:
  - type: trace_count
    action: store.migrate
    count: 1
`,
			wantErr: "seed file not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, t.TempDir(), tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_SeedRelativeToFile(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/migrate_legacy.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "seeds", "v1_teams.json"), scenario.seedPath())
}
