package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cliEnv runs commands against a store in a temporary directory with the
// ROSTER_ environment isolated.
type cliEnv struct {
	t     *testing.T
	dir   string
	store string
}

func newCLIEnv(t *testing.T, file string) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"CONFIG", "BACKEND", "HISTORY_LIMIT"} {
		key := "ROSTER_" + name
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Setenv("ROSTER_SHARED_DIR", dir)
	t.Setenv("ROSTER_LOCAL_DIR", filepath.Join(dir, "local"))
	return &cliEnv{t: t, dir: dir, store: filepath.Join(dir, file)}
}

// run executes args against the env's store and returns stdout.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--store", e.store}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// data runs args with JSON output, requires success, and decodes the payload.
func (e *cliEnv) data(args ...string) map[string]any {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	require.NoError(e.t, err, out)

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(e.t, "ok", resp.Status)
	return resp.Data
}

// list runs args with JSON output and decodes a list payload.
func (e *cliEnv) list(args ...string) []map[string]any {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	require.NoError(e.t, err, out)

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Data
}

func TestGroupLifecycle(t *testing.T) {
	env := newCLIEnv(t, "roster.json")

	created := env.data("group", "create", "Platform", "--description", "infra", "--tag", "b", "--tag", "a")
	groupID := created["id"].(string)
	require.NotEmpty(t, groupID)

	out, err := env.run("group", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Platform")
	assert.Contains(t, out, "a,b", "tags are sorted")

	env.data("group", "rename", groupID, "Core")
	env.data("group", "update", groupID, "--clear-tags")

	groups := env.list("group", "list")
	require.Len(t, groups, 1)
	assert.Equal(t, "Core", groups[0]["name"])
	assert.Equal(t, "infra", groups[0]["description"])
	assert.Empty(t, groups[0]["tags"])
	assert.EqualValues(t, 0, groups[0]["member_count"])

	env.data("group", "delete", groupID)
	_, err = env.run("group", "delete", groupID)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGroupCreateEmptyName(t *testing.T) {
	env := newCLIEnv(t, "roster.json")

	out, err := env.run("group", "create", "   ")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, CodeInvalidArgs)
}

func TestPersonUpsertDedup(t *testing.T) {
	env := newCLIEnv(t, "roster.json")
	groupID := env.data("group", "create", "Platform")["id"].(string)

	first := env.data("person", "upsert", "--name", "Alice", "--phone", "138 0000 0001", "--group", groupID, "--member-field", "role=lead")
	assert.Equal(t, true, first["created"])
	id := first["id"].(string)

	second := env.data("person", "upsert", "--phone", "13800000001", "--email", "alice@example.com", "--field", "title=Engineer")
	assert.Equal(t, false, second["created"])
	assert.Equal(t, id, second["id"])

	people := env.list("person", "list")
	require.Len(t, people, 1)
	assert.Equal(t, "Alice", people[0]["name"], "absent fields are kept on merge")
	assert.Equal(t, "alice@example.com", people[0]["email"])

	found := env.data("person", "find", "--phone", "138-0000-0001")
	assert.Equal(t, id, found["id"])

	detail := env.data("person", "get", id)
	groups := detail["groups"].([]any)
	require.Len(t, groups, 1)
	membership := groups[0].(map[string]any)["membership"].(map[string]any)
	assert.Equal(t, map[string]any{"role": "lead"}, membership["fields"])

	members := env.list("group", "members", groupID)
	require.Len(t, members, 1)

	out, err := env.run("person", "search", "ali")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
}

func TestPersonUpsertProfileJSON(t *testing.T) {
	env := newCLIEnv(t, "roster.json")

	first := env.data("person", "upsert", "--profile", `{"name":"Bob","contact":{"email":"Bob@Example.com"},"age":41}`)
	second := env.data("person", "upsert", "--email", "bob@example.com")
	assert.Equal(t, first["id"], second["id"], "nested contact email is an identity")

	_, err := env.run("person", "upsert", "--profile", `["not","an","object"]`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPersonNotFound(t *testing.T) {
	env := newCLIEnv(t, "roster.json")

	for _, args := range [][]string{
		{"person", "get", "missing"},
		{"person", "delete", "missing"},
		{"person", "find", "--phone", "13900000000"},
		{"perf", "summary", "missing"},
		{"member", "add", "missing", "missing"},
	} {
		out, err := env.run(args...)
		require.Error(t, err, args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), args)
		assert.Contains(t, out, CodeNotFound, args)
	}

	_, err := env.run("person", "find")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--phone or --email")
}

func TestMembership(t *testing.T) {
	env := newCLIEnv(t, "roster.json")
	groupID := env.data("group", "create", "Platform")["id"].(string)
	personID := env.data("person", "upsert", "--name", "Carol", "--phone", "13800000003")["id"].(string)

	env.data("member", "add", personID, groupID, "--field", "role=dev")
	env.data("member", "add", personID, groupID, "--field", "level=3")
	env.data("member", "update", personID, groupID, "--field", "role=lead")

	members := env.list("group", "members", groupID)
	require.Len(t, members, 1, "adding twice keeps one membership")
	fields := members[0]["membership"].(map[string]any)["fields"]
	assert.Equal(t, map[string]any{"role": "lead", "level": "3"}, fields)

	env.data("member", "remove", personID, groupID)
	_, err := env.run("member", "remove", personID, groupID)
	require.Error(t, err)
	_, err = env.run("member", "update", personID, groupID, "--field", "role=x")
	require.Error(t, err)
}

func TestPerformanceLedger(t *testing.T) {
	env := newCLIEnv(t, "roster.json")
	groupA := env.data("group", "create", "A")["id"].(string)
	groupB := env.data("group", "create", "B")["id"].(string)
	personID := env.data("person", "upsert", "--name", "Dan", "--phone", "13800000004", "--group", groupA)["id"].(string)
	env.data("member", "add", personID, groupB)

	env.data("perf", "base", personID, "85分")
	global := env.data("perf", "add", personID, "--delta", "2.5", "--title", "Mentoring")
	assert.Equal(t, "manual_adjust", global["type"])
	assert.Nil(t, global["group_id"], "events without a group are global")
	scoped := env.data("perf", "add", personID, "--type", "contribution", "--delta", "4", "--group", groupA, "--at", "2024-05-01")
	env.data("perf", "add", personID, "--type", "contribution", "--delta=-1", "--group", groupB)

	all := env.data("perf", "summary", personID)
	assert.EqualValues(t, 90.5, all["current_score"])
	assert.EqualValues(t, 3, all["event_count"])

	inA := env.data("perf", "summary", personID, "--group", groupA)
	assert.EqualValues(t, 91.5, inA["current_score"])
	assert.EqualValues(t, 4, inA["contribution_total"])
	assert.EqualValues(t, 2, inA["event_count"])

	shown := env.data("perf", "show", personID, "--group", groupB, "--type", "contribution")
	assert.Len(t, shown["events"], 1)

	env.data("perf", "update", personID, scoped["id"].(string), "--group", "")
	inB := env.data("perf", "summary", personID, "--group", groupB)
	assert.EqualValues(t, 90.5, inB["current_score"], "the updated event is global now")

	env.data("perf", "delete", personID, global["id"].(string))
	_, err := env.run("perf", "delete", personID, global["id"].(string))
	require.Error(t, err)

	_, err = env.run("perf", "add", personID, "--type", "bonus", "--delta", "1")
	require.Error(t, err)
	_, err = env.run("perf", "add", personID, "--group", "missing", "--delta", "1")
	require.Error(t, err)
	_, err = env.run("perf", "base", personID, "lots")
	require.Error(t, err)
}

func TestLeaderboard(t *testing.T) {
	env := newCLIEnv(t, "roster.json")
	groupID := env.data("group", "create", "Team")["id"].(string)
	alice := env.data("person", "upsert", "--name", "Alice", "--phone", "13800000001", "--group", groupID)["id"].(string)
	bob := env.data("person", "upsert", "--name", "Bob", "--phone", "13800000002", "--group", groupID)["id"].(string)
	env.data("person", "upsert", "--name", "Outsider", "--phone", "13800000009")
	env.data("perf", "base", alice, "80")
	env.data("perf", "base", bob, "90")

	board := env.list("leaderboard", "--group", groupID)
	require.Len(t, board, 2)
	assert.Equal(t, "Bob", board[0]["name"])
	assert.EqualValues(t, 1, board[0]["rank"])
	assert.Equal(t, "Alice", board[1]["name"])

	assert.Len(t, env.list("leaderboard"), 3)
	assert.Len(t, env.list("leaderboard", "-n", "1"), 1)

	_, err := env.run("leaderboard", "--group", "missing")
	require.Error(t, err)
}

func TestOrganization(t *testing.T) {
	env := newCLIEnv(t, "roster.json")

	env.data("org", "rename", "Acme")
	org := env.data("org", "show")
	assert.Equal(t, "Acme", org["name"])

	_, err := env.run("org", "rename", " ")
	require.Error(t, err)
}

func TestImportCSV(t *testing.T) {
	env := newCLIEnv(t, "roster.json")
	csvPath := filepath.Join(env.dir, "team.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"姓名,电话,职位,绩效\n"+
			"Alice,13800000001,lead,88\n"+
			"Bob,13800000002,dev,75分\n"+
			",,,\n"), 0o644))

	columns := env.data("import", csvPath, "--dry-run")
	assert.Equal(t, "姓名", columns["name"])
	assert.Equal(t, "绩效", columns["performance"])
	assert.Empty(t, env.list("person", "list"), "dry run writes nothing")

	res := env.data("import", csvPath, "--performance", "new_only")
	assert.EqualValues(t, 2, res["created"])
	assert.EqualValues(t, 2, res["base_scores"])

	again := env.data("import", csvPath, "--performance", "new_only")
	assert.EqualValues(t, 0, again["created"])
	assert.EqualValues(t, 2, again["updated"])
	assert.EqualValues(t, 0, again["base_scores"])
	assert.Equal(t, res["group_id"], again["group_id"], "rows land in the first group")

	_, err := env.run("import", csvPath, "--performance", "sometimes")
	require.Error(t, err)
	_, err = env.run("import", filepath.Join(env.dir, "team.ods"))
	require.Error(t, err)
	_, err = env.run("import", csvPath, "--group", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMigrateLegacyStore(t *testing.T) {
	env := newCLIEnv(t, "roster.json")
	legacy, err := os.ReadFile(filepath.Join("..", "migrate", "testdata", "v1_teams.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(env.store, legacy, 0o644))

	_, err = env.run("migrate", "--check")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = env.run("validate")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err), "legacy documents need migrating first")

	report := env.data("migrate")
	assert.Equal(t, "v1", report["from"])
	assert.Equal(t, "v3", report["to"])

	again := env.data("migrate")
	assert.Equal(t, "v3", again["from"], "migration is idempotent")

	check := env.data("migrate", "--check")
	assert.Equal(t, true, check["current"])

	out, err := env.run("validate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "is valid")
}

func TestMigrateNewerSchema(t *testing.T) {
	env := newCLIEnv(t, "roster.json")
	require.NoError(t, os.WriteFile(env.store, []byte(`{"_schema_version": 99, "org": {}, "groups": [], "people": []}`), 0o644))

	out, err := env.run("migrate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, CodeMigration)
}

func TestSelfBinding(t *testing.T) {
	env := newCLIEnv(t, "roster.json")
	personID := env.data("person", "upsert", "--name", "Erin", "--phone", "13800000005")["id"].(string)

	out, err := env.run("self", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Not bound.")

	bound := env.data("self", "bind", "--phone", "138 0000 0005")
	assert.Equal(t, personID, bound["self_person_id"])
	assert.FileExists(t, filepath.Join(env.dir, "local", "self.json"))

	view := env.data("self", "show")
	assert.Equal(t, personID, view["person"].(map[string]any)["id"])

	env.data("self", "clear")
	view = env.data("self", "show")
	assert.Nil(t, view["person"])

	env.data("self", "bind", personID)
	_, err = env.run("self", "bind", "missing")
	require.Error(t, err)
	_, err = env.run("self", "bind", "--phone", "13900000000")
	require.Error(t, err)
	_, err = env.run("self", "bind")
	require.Error(t, err)

	_, err = env.run("self", "save", "--name", "Nobody")
	require.Error(t, err, "a phone is required")

	saved := env.data("self", "save", "--name", "Erin B", "--phone", "13800000005")
	assert.Equal(t, personID, saved["id"])
	assert.Equal(t, false, saved["created"])

	candidates := env.list("self", "candidates", "erin")
	require.Len(t, candidates, 1)
}

func TestSelfMigrate(t *testing.T) {
	env := newCLIEnv(t, "roster.json")
	path := filepath.Join(env.dir, "user_profile.json")

	res := env.data("self", "migrate", path)
	assert.Equal(t, "no_data", res["outcome"])

	require.NoError(t, os.WriteFile(path, []byte(`{"profile":[{"电话":"13812345678"},{"电话":"13900000000"}]}`), 0o644))
	out, err := env.run("self", "migrate", path)
	require.Error(t, err)
	assert.Contains(t, out, CodeInvalidArgs)

	require.NoError(t, os.WriteFile(path, []byte(`{"source":"file_upload","profile":{"姓名":"Erin","电话":"13812345678"}}`), 0o644))
	res = env.data("self", "migrate", path)
	assert.Equal(t, "created", res["outcome"])
	personID := res["id"].(string)

	view := env.data("self", "show")
	assert.Equal(t, personID, view["person"].(map[string]any)["id"])

	res = env.data("self", "migrate", path)
	assert.Equal(t, "already_bound", res["outcome"])
	assert.Equal(t, personID, res["id"])
}

func TestHistory(t *testing.T) {
	env := newCLIEnv(t, "roster.db")

	env.data("group", "create", "One")
	env.data("group", "create", "Two")

	revisions := env.list("history")
	require.Len(t, revisions, 2)
	assert.Greater(t, revisions[0]["seq"], revisions[1]["seq"], "newest first")
	assert.EqualValues(t, 3, revisions[0]["schema_version"])

	assert.Len(t, env.list("history", "-n", "1"), 1)

	file := newCLIEnv(t, "roster.json")
	out, err := file.run("history")
	require.Error(t, err)
	assert.Contains(t, out, "keeps no history")
}

func TestConfigInitAndShow(t *testing.T) {
	env := newCLIEnv(t, "roster.json")
	shared := filepath.Join(env.dir, "shared")
	path := filepath.Join(env.dir, "roster.yaml")

	written := env.data("config", "init", "--path", path, "--shared", shared, "--history-limit", "5")
	assert.Equal(t, shared, written["shared_data_path"])
	assert.FileExists(t, path)

	t.Setenv("ROSTER_CONFIG", path)
	t.Setenv("ROSTER_SHARED_DIR", "")
	require.NoError(t, os.Unsetenv("ROSTER_SHARED_DIR"))

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--format", "json", "config", "show"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, shared, resp.Data["shared_dir"])
	assert.Equal(t, path, resp.Data["deployment"])
	assert.EqualValues(t, 5, resp.Data["history_limit"])
}
