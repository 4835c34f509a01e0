package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/value"
)

// seedPeople creates two groups and three people:
// 张三 in core, 李四 in core and ops, 王五 in no group.
func seedPeople(t *testing.T, s *Store) (core, ops string, ids map[string]string) {
	t.Helper()
	ctx := context.Background()

	var err error
	core, err = s.CreateGroup(ctx, GroupInput{Name: "Core"})
	require.NoError(t, err)
	ops, err = s.CreateGroup(ctx, GroupInput{Name: "Ops"})
	require.NoError(t, err)

	ids = make(map[string]string)
	add := func(name, phone, group string) {
		id, _, err := s.UpsertPerson(ctx, UpsertInput{
			Profile: value.Map{"姓名": value.String(name), "电话": value.String(phone)},
			Source:  "file_upload",
			GroupID: group,
		})
		require.NoError(t, err)
		ids[name] = id
	}
	add("张三", "13800000001", core)
	add("李四", "13800000002", core)
	add("王五", "13800000003", "")

	ok, err := s.AddPersonToGroup(ctx, ids["李四"], ops, value.Map{"role": value.String("oncall")})
	require.NoError(t, err)
	require.True(t, ok)
	return core, ops, ids
}

func TestFindPersonByDedupKey(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	_, _, ids := seedPeople(t, s)

	p, ok, err := s.FindPersonByDedupKey(ctx, "phone:13800000002")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids["李四"], p.ID)

	_, ok, err = s.FindPersonByDedupKey(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok, "the empty key never matches")

	_, ok, err = s.FindPersonByDedupKey(ctx, "phone:000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPeopleInGroup(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	core, ops, ids := seedPeople(t, s)

	members, err := s.PeopleInGroup(ctx, core)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, ids["张三"], members[0].Person.ID)
	assert.Equal(t, core, members[0].Membership.GroupID)
	assert.Equal(t, ids["李四"], members[1].Person.ID)

	members, err = s.PeopleInGroup(ctx, ops)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, value.String("oncall"), members[0].Membership.Fields["role"])

	members, err = s.PeopleInGroup(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestPersonGroups(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	core, ops, ids := seedPeople(t, s)

	groups, err := s.PersonGroups(ctx, ids["李四"])
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, core, groups[0].Group.ID)
	assert.Equal(t, "Core", groups[0].Group.Name)
	assert.Equal(t, ops, groups[1].Group.ID)

	groups, err = s.PersonGroups(ctx, ids["王五"])
	require.NoError(t, err)
	assert.Empty(t, groups)

	groups, err = s.PersonGroups(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSearchByName(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	_, _, ids := seedPeople(t, s)
	_, _, err := s.UpsertPerson(ctx, UpsertInput{Profile: value.Map{"name": value.String("Alice Chen")}})
	require.NoError(t, err)

	found, err := s.SearchByName(ctx, "李")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ids["李四"], found[0].ID)

	found, err = s.SearchByName(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, found, 1)

	// A query containing the whole name also matches.
	found, err = s.SearchByName(ctx, "王五同学")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ids["王五"], found[0].ID)

	found, err = s.SearchByName(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	core, ops, ids := seedPeople(t, s)

	_, err := s.SetPersonBaseScore(ctx, ids["张三"], 80)
	require.NoError(t, err)
	_, err = s.SetPersonBaseScore(ctx, ids["李四"], 75)
	require.NoError(t, err)
	_, err = s.SetPersonBaseScore(ctx, ids["王五"], 90)
	require.NoError(t, err)
	_, _, err = s.AddPerformanceEvent(ctx, ids["李四"], ledger.Event{Type: ledger.TypeContribution, Delta: 5, GroupID: core})
	require.NoError(t, err)
	_, _, err = s.AddPerformanceEvent(ctx, ids["李四"], ledger.Event{Type: ledger.TypeContribution, Delta: 20, GroupID: ops})
	require.NoError(t, err)

	board, err := s.Leaderboard(ctx, core)
	require.NoError(t, err)
	require.Len(t, board, 2, "only members of the group are ranked")
	assert.Equal(t, ids["张三"], board[0].PersonID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, ids["李四"], board[1].PersonID)
	assert.Equal(t, 80.0, board[1].Summary.CurrentScore, "ops contribution is outside the core scope")
	assert.Equal(t, 1, board[1].Rank, "equal scores share a rank")

	board, err = s.Leaderboard(ctx, "")
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "李四", board[0].Name)
	assert.Equal(t, 100.0, board[0].Summary.CurrentScore)
	assert.Equal(t, "王五", board[1].Name)
	assert.Equal(t, "张三", board[2].Name)
	assert.Equal(t, []int{1, 2, 3}, []int{board[0].Rank, board[1].Rank, board[2].Rank})
}

func TestReadsReturnIndependentCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	_, _, ids := seedPeople(t, s)

	l, _, err := s.PersonPerformance(ctx, ids["张三"])
	require.NoError(t, err)
	l.BaseScore = 999

	again, _, err := s.PersonPerformance(ctx, ids["张三"])
	require.NoError(t, err)
	assert.Equal(t, 0.0, again.BaseScore)
}
