package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roster/internal/metrics"
	"github.com/roach88/roster/internal/migrate"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/persist"
	"github.com/roach88/roster/internal/testutil"
	"github.com/roach88/roster/internal/value"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestStore returns a store over a fresh memory backend with a frozen
// clock and sequential ids.
func createTestStore(t *testing.T, opts ...Option) (*Store, *persist.MemoryBackend) {
	t.Helper()
	backend := persist.NewMemoryBackend()
	base := []Option{
		WithClock(testutil.FixedClock(testutil.Epoch)),
		WithIDGenerator(testutil.NewSequenceGenerator()),
		WithLogger(discardLogger()),
	}
	return New(backend, append(base, opts...)...), backend
}

func TestLoad_EmptyStore(t *testing.T) {
	ctx := context.Background()
	s, backend := createTestStore(t)

	doc, err := s.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.CurrentSchemaVersion, doc.SchemaVersion)
	assert.Equal(t, model.DefaultOrgID, doc.Org.ID)
	assert.Equal(t, model.DefaultOrgName, doc.Org.Name)
	assert.Empty(t, doc.Groups)
	assert.Empty(t, doc.People)
	assert.Equal(t, 0, backend.Saves(), "reading an empty store must not write")
}

func TestWithOrganization(t *testing.T) {
	s, _ := createTestStore(t, WithOrganization("acme", "Acme"))

	org, err := s.Organization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acme", org.ID)
	assert.Equal(t, "Acme", org.Name)
}

func TestSave_StampsSchemaVersion(t *testing.T) {
	ctx := context.Background()
	s, backend := createTestStore(t)

	doc := model.NewDocument("", "", testutil.Epoch)
	doc.SchemaVersion = 1
	require.NoError(t, s.Save(ctx, doc))

	raw, ok := backend.Bytes()
	require.True(t, ok)
	gen, err := migrate.Detect(raw)
	require.NoError(t, err)
	assert.Equal(t, migrate.GenerationV3, gen)
	assert.Contains(t, string(raw), "\n  \"org\": {", "documents are written indented")
}

func TestLoad_MigratesAndPersistsOnce(t *testing.T) {
	ctx := context.Background()
	s, backend := createTestStore(t)
	backend.Set([]byte(`{
		"_schema_version": 2,
		"org": {"id": "org_default", "name": "大团队", "created_at": "2024-05-01 08:00:00", "updated_at": "2024-05-01 08:00:00"},
		"groups": [],
		"people": [{"id": "p1", "name": "张三", "phone": "13812345678", "email": "",
			"dedup": {"strategy": "phone_then_email", "key": "phone:13812345678"},
			"created_at": "2024-05-01 08:00:00", "updated_at": "2024-05-01 08:00:00",
			"profile": {"姓名": "张三"}, "sources": [], "memberships": []}]
	}`))

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, doc.People, 1)
	require.NotNil(t, doc.People[0].Performance)
	assert.Equal(t, 1, backend.Saves(), "upgrade is persisted before first use")

	_, err = s.Load(ctx)
	require.NoError(t, err)
	_, err = s.People(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Saves(), "an upgraded store is not rewritten on read")
}

func TestMigrate_ReportsUpgrade(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s, backend := createTestStore(t, WithMetrics(m))
	backend.Set([]byte(`[{"id": "t1", "name": "Core", "members": [
		{"id": "m1", "source": "pdf", "profile": {"姓名": "张三", "电话": "13812345678"}}
	]}]`))

	report, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, migrate.GenerationV1, report.From)
	assert.Equal(t, migrate.GenerationV3, report.To)
	assert.Equal(t, 1, report.People)
	assert.Equal(t, 1, backend.Saves())
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Migrations.WithLabelValues("v1")))

	report, err = s.Migrate(ctx)
	require.NoError(t, err)
	assert.False(t, report.Migrated())
	assert.Equal(t, 1, backend.Saves())
}

func TestLoad_CorruptFallsBackToEmptyAndIsObservable(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s, backend := createTestStore(t,
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithMetrics(m),
	)
	backend.Set([]byte(`{"people": [unterminated`))

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.People)
	assert.Equal(t, 0, backend.Saves(), "reads never overwrite a corrupt document")
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "reason=corrupt")
	assert.Equal(t, 1.0, promtest.ToFloat64(m.LoadFallbacks.WithLabelValues(metrics.ReasonCorrupt)))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.LoadFallbacks.WithLabelValues(metrics.ReasonNotFound)))

	_, err = s.Migrate(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_NonObjectProfileDoesNotLosePeople(t *testing.T) {
	ctx := context.Background()
	s, backend := createTestStore(t)
	backend.Set([]byte(`{"_schema_version":3,"org":{"id":"o","name":"O"},"groups":[],"people":[
		{"id":"p1","name":"张三","profile":[{"姓名":"张三","电话":"13812345678"}]},
		{"id":"p2","name":"李四","profile":{"姓名":"李四"}}
	]}`))

	people, err := s.People(ctx)
	require.NoError(t, err)
	require.Len(t, people, 2)

	_, err = s.CreateGroup(ctx, GroupInput{Name: "Platform"})
	require.NoError(t, err)

	people, err = s.People(ctx)
	require.NoError(t, err)
	require.Len(t, people, 2, "a write after the lenient read keeps every person")
	assert.Equal(t, value.String("13812345678"), people[0].Profile["电话"])
}

func TestLoad_NotFoundCountedSeparately(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s, _ := createTestStore(t, WithMetrics(m))

	_, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.LoadFallbacks.WithLabelValues(metrics.ReasonNotFound)))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.LoadFallbacks.WithLabelValues(metrics.ReasonCorrupt)))
}

func TestWrite_PreservesCorruptDocumentFirst(t *testing.T) {
	ctx := context.Background()
	s, backend := createTestStore(t)
	backend.Set([]byte(`not json at all`))

	_, err := s.CreateGroup(ctx, GroupInput{Name: "Core"})
	require.NoError(t, err)

	preserved := backend.Preserved()
	require.Len(t, preserved, 1)
	assert.Equal(t, "not json at all", string(preserved[0]))

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Groups, 1)

	_, err = s.CreateGroup(ctx, GroupInput{Name: "Ops"})
	require.NoError(t, err)
	assert.Len(t, backend.Preserved(), 1, "a valid document is not preserved again")
}

func TestNewerSchema_IsHardError(t *testing.T) {
	ctx := context.Background()
	s, backend := createTestStore(t)
	backend.Set([]byte(`{"_schema_version": 4, "org": {}, "groups": [], "people": []}`))

	_, err := s.Load(ctx)
	require.Error(t, err)
	assert.True(t, migrate.IsNewerSchema(err))

	_, err = s.CreateGroup(ctx, GroupInput{Name: "Core"})
	assert.ErrorIs(t, err, migrate.ErrNewerSchema)

	err = s.Save(ctx, model.NewDocument("", "", testutil.Epoch))
	assert.ErrorIs(t, err, migrate.ErrNewerSchema)
	assert.Equal(t, 0, backend.Saves(), "a newer document is never overwritten")
}

func TestSaveFailure_IsReported(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s, backend := createTestStore(t, WithMetrics(m))
	boom := errors.New("disk full")
	backend.FailSaves(boom)

	_, err := s.CreateGroup(ctx, GroupInput{Name: "Core"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.SaveFailures))

	_, _, err = s.UpsertPerson(ctx, UpsertInput{Profile: value.Map{"电话": value.String("13812345678")}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Upserts.WithLabelValues(metrics.OutcomeFailed)))
}

func TestContextCancelled(t *testing.T) {
	s, _ := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CreateGroup(ctx, GroupInput{Name: "Core"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentUpserts_NoLostUpdates(t *testing.T) {
	ctx := context.Background()
	backend := persist.NewFileBackend(filepath.Join(t.TempDir(), "roster.json"))
	s := New(backend, WithLogger(discardLogger()))

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			profile := value.Map{
				"姓名": value.String("member"),
				"电话": value.String(fmt.Sprintf("138%08d", i)),
			}
			if _, _, err := s.UpsertPerson(ctx, UpsertInput{Profile: profile, Source: "file_upload"}); err != nil {
				t.Errorf("UpsertPerson() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	people, err := s.People(ctx)
	require.NoError(t, err)
	assert.Len(t, people, writers)
}

func TestConcurrentUpserts_SamePhoneConverge(t *testing.T) {
	ctx := context.Background()
	backend := persist.NewFileBackend(filepath.Join(t.TempDir(), "roster.json"))
	s := New(backend, WithLogger(discardLogger()))

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			profile := value.Map{"电话": value.String("138-1234-5678")}
			if _, _, err := s.UpsertPerson(ctx, UpsertInput{Profile: profile, Source: "text_analysis"}); err != nil {
				t.Errorf("UpsertPerson() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	people, err := s.People(ctx)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Len(t, people[0].Sources, writers)
}

func TestUpdatedAtBumpedOnMutation(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewDeterministicClock(testutil.Epoch, time.Minute)
	s, _ := createTestStore(t, WithClock(clock.Now))

	id, _, err := s.UpsertPerson(ctx, UpsertInput{Profile: value.Map{"电话": value.String("13812345678")}})
	require.NoError(t, err)
	before, _, err := s.Person(ctx, id)
	require.NoError(t, err)

	ok, err := s.SetPersonBaseScore(ctx, id, 80)
	require.NoError(t, err)
	require.True(t, ok)

	after, _, err := s.Person(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.Greater(t, after.UpdatedAt, before.UpdatedAt)
	assert.Equal(t, after.UpdatedAt, after.Performance.UpdatedAt)
}
