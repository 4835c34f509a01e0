package schema

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/persist"
	"github.com/roach88/roster/internal/store"
	"github.com/roach88/roster/internal/testutil"
	"github.com/roach88/roster/internal/value"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "migrate", "testdata", name))
	require.NoError(t, err)
	return data
}

func codes(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Code
	}
	return out
}

func TestValidate_CurrentFixture(t *testing.T) {
	v := newValidator(t)
	issues := v.Validate("v3.json", readFixture(t, "v3.json"))
	assert.Empty(t, issues)
}

func TestValidate_StoreOutput(t *testing.T) {
	ctx := context.Background()
	backend := persist.NewMemoryBackend()
	s := store.New(backend,
		store.WithClock(testutil.FixedClock(testutil.Epoch)),
		store.WithIDGenerator(testutil.NewSequenceGenerator()),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	group, err := s.CreateGroup(ctx, store.GroupInput{Name: "Core", Tags: []string{"go"}})
	require.NoError(t, err)
	id, _, err := s.UpsertPerson(ctx, store.UpsertInput{
		Profile: value.Map{"姓名": value.String("张三"), "电话": value.String("13812345678")},
		Source:  "file_upload",
		GroupID: group,
	})
	require.NoError(t, err)
	_, _, err = s.AddPerformanceEvent(ctx, id, ledger.Event{Type: ledger.TypeContribution, Delta: 3, GroupID: group})
	require.NoError(t, err)
	_, _, err = s.AddPerformanceEvent(ctx, id, ledger.Event{Type: ledger.TypeManualAdjust, Delta: -1})
	require.NoError(t, err)

	data, ok := backend.Bytes()
	require.True(t, ok)
	assert.Empty(t, newValidator(t).Validate("roster.json", data))
}

func TestValidate_Syntax(t *testing.T) {
	issues := newValidator(t).Validate("broken.json", []byte(`{"_schema_version": 3,`))
	require.Len(t, issues, 1)
	assert.Equal(t, CodeSyntax, issues[0].Code)
}

func TestValidate_LegacyGenerations(t *testing.T) {
	v := newValidator(t)
	for _, name := range []string{"v1_flat.json", "v1_teams.json", "v2.json"} {
		t.Run(name, func(t *testing.T) {
			issues := v.Validate(name, readFixture(t, name))
			require.Len(t, issues, 1)
			assert.Equal(t, CodeGeneration, issues[0].Code)
		})
	}
}

func TestValidate_Structure(t *testing.T) {
	fixture := string(readFixture(t, "v3.json"))
	tests := []struct {
		name   string
		from   string
		to     string
		wantAt string
	}{
		{"unknown event type", `"type": "contribution"`, `"type": "bonus"`, "type"},
		{"malformed event date", `"at": "2024-05-02"`, `"at": "May 2"`, "at"},
		{"score is not a number", `"base_score": 80.5`, `"base_score": "80.5"`, "base_score"},
		{"empty person id", `"id": "p1"`, `"id": ""`, "id"},
		{"unknown strategy", `"strategy": "phone_then_email"`, `"strategy": "email_only"`, "strategy"},
	}
	v := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(fixture, tt.from, tt.to, 1)
			require.NotEqual(t, fixture, data)

			issues := v.Validate("v3.json", []byte(data))
			require.NotEmpty(t, issues)
			assert.Equal(t, CodeStructure, issues[0].Code)
			assert.Contains(t, issues[0].Path, tt.wantAt)
		})
	}
}

func TestValidate_UnexpectedTopLevelField(t *testing.T) {
	fixture := string(readFixture(t, "v3.json"))
	data := strings.Replace(fixture, `"_schema_version": 3,`, `"_schema_version": 3, "extra": true,`, 1)

	issues := newValidator(t).Validate("v3.json", []byte(data))
	require.NotEmpty(t, issues)
	assert.Equal(t, CodeStructure, issues[0].Code)
}

func TestValidate_References(t *testing.T) {
	fixture := string(readFixture(t, "v3.json"))
	data := strings.Replace(fixture, `"group_id": "g1", "joined_at"`, `"group_id": "g9", "joined_at"`, 1)

	issues := newValidator(t).Validate("v3.json", []byte(data))
	assert.Equal(t, []string{CodeUnknownGroup}, codes(issues))
	assert.Equal(t, "people.0.memberships.0.group_id", issues[0].Path)
}

func TestCheckReferences(t *testing.T) {
	s := store.New(persist.NewMemoryBackend(),
		store.WithClock(testutil.FixedClock(testutil.Epoch)),
		store.WithIDGenerator(testutil.NewSequenceGenerator()),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	ctx := context.Background()
	group, err := s.CreateGroup(ctx, store.GroupInput{Name: "Core"})
	require.NoError(t, err)
	_, _, err = s.UpsertPerson(ctx, store.UpsertInput{Profile: value.Map{"电话": value.String("13800000001")}, GroupID: group})
	require.NoError(t, err)
	_, _, err = s.UpsertPerson(ctx, store.UpsertInput{Profile: value.Map{"电话": value.String("13800000002")}})
	require.NoError(t, err)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, CheckReferences(doc))

	doc.Groups = append(doc.Groups, doc.Groups[0])
	doc.People[1].ID = doc.People[0].ID
	doc.People[1].Dedup.Key = doc.People[0].Dedup.Key
	doc.People[0].Memberships = append(doc.People[0].Memberships, doc.People[0].Memberships[0])

	assert.ElementsMatch(t, []string{
		CodeDuplicateID,
		CodeDuplicateID,
		CodeDuplicateDedupKey,
		CodeDuplicateMember,
	}, codes(CheckReferences(doc)))
}

func TestIssue_Error(t *testing.T) {
	assert.Equal(t, "[S006] line 4: people.0: unknown group", Issue{Path: "people.0", Message: "unknown group", Code: CodeUnknownGroup, Line: 4}.Error())
	assert.Equal(t, "[S002] _schema_version: want 3", Issue{Path: "_schema_version", Message: "want 3", Code: CodeGeneration}.Error())
}
