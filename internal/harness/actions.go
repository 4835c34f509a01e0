package harness

import (
	"context"
	"fmt"

	"github.com/roach88/roster/internal/importer"
	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/store"
	"github.com/roach88/roster/internal/value"
)

// outcome is the completion of one action.
type outcome struct {
	Case   string
	Result map[string]any
}

// action runs one scenario step. A returned error completes the step with
// CaseError.
type action func(ctx context.Context, h *Harness, args map[string]any) (outcome, error)

var actions map[string]action

func init() {
	actions = map[string]action{
		"org.rename":    orgRename,
		"group.create":  groupCreate,
		"group.update":  groupUpdate,
		"group.delete":  groupDelete,
		"person.upsert": personUpsert,
		"person.delete": personDelete,
		"member.add":    memberAdd,
		"member.remove": memberRemove,
		"member.update": memberUpdate,
		"perf.base":     perfBase,
		"perf.add":      perfAdd,
		"perf.update":   perfUpdate,
		"perf.delete":   perfDelete,
		"perf.summary":  perfSummary,
		"leaderboard":   leaderboard,
		"store.migrate": storeMigrate,
		"import.rows":   importRows,
	}
}

func knownAction(name string) bool {
	_, ok := actions[name]
	return ok
}

func success(result map[string]any) outcome {
	return outcome{Case: CaseSuccess, Result: result}
}

// found maps a store "ok" report to Success or NotFound.
func found(ok bool, result map[string]any) outcome {
	if !ok {
		return outcome{Case: CaseNotFound}
	}
	return success(result)
}

func orgRename(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return outcome{}, err
	}
	if err := h.store.RenameOrganization(ctx, name); err != nil {
		return outcome{}, err
	}
	return success(nil), nil
}

func groupCreate(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	var in store.GroupInput
	var err error
	if in.Name, err = stringArg(args, "name"); err != nil {
		return outcome{}, err
	}
	if in.Description, err = stringArg(args, "description"); err != nil {
		return outcome{}, err
	}
	if in.Tags, _, err = stringsArg(args, "tags"); err != nil {
		return outcome{}, err
	}
	id, err := h.store.CreateGroup(ctx, in)
	if err != nil {
		return outcome{}, err
	}
	return success(map[string]any{"id": id}), nil
}

func groupUpdate(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	id, err := stringArg(args, "id")
	if err != nil {
		return outcome{}, err
	}
	var patch store.GroupPatch
	if patch.Name, err = optString(args, "name"); err != nil {
		return outcome{}, err
	}
	if patch.Description, err = optString(args, "description"); err != nil {
		return outcome{}, err
	}
	if patch.Tags, patch.SetTags, err = stringsArg(args, "tags"); err != nil {
		return outcome{}, err
	}
	ok, err := h.store.UpdateGroup(ctx, id, patch)
	if err != nil {
		return outcome{}, err
	}
	return found(ok, map[string]any{"id": id}), nil
}

func groupDelete(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	id, err := stringArg(args, "id")
	if err != nil {
		return outcome{}, err
	}
	ok, err := h.store.DeleteGroup(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	return found(ok, map[string]any{"id": id}), nil
}

func personUpsert(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	var in store.UpsertInput
	var err error
	if in.Profile, err = mapArg(args, "profile"); err != nil {
		return outcome{}, err
	}
	if in.Source, err = stringArg(args, "source"); err != nil {
		return outcome{}, err
	}
	if in.GroupID, err = stringArg(args, "group"); err != nil {
		return outcome{}, err
	}
	if in.MembershipFields, err = mapArg(args, "fields"); err != nil {
		return outcome{}, err
	}
	id, isNew, err := h.store.UpsertPerson(ctx, in)
	if err != nil {
		return outcome{}, err
	}
	c := CaseMerged
	if isNew {
		c = CaseCreated
	}
	return outcome{Case: c, Result: map[string]any{"id": id}}, nil
}

func personDelete(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	id, err := stringArg(args, "id")
	if err != nil {
		return outcome{}, err
	}
	ok, err := h.store.DeletePerson(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	return found(ok, map[string]any{"id": id}), nil
}

func memberAdd(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	return membership(ctx, args, true, h.store.AddPersonToGroup)
}

func memberUpdate(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	return membership(ctx, args, true, h.store.UpdateMembershipFields)
}

func memberRemove(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	return membership(ctx, args, false, func(ctx context.Context, personID, groupID string, _ value.Map) (bool, error) {
		return h.store.RemovePersonFromGroup(ctx, personID, groupID)
	})
}

func membership(ctx context.Context, args map[string]any, withFields bool, fn func(context.Context, string, string, value.Map) (bool, error)) (outcome, error) {
	personID, err := stringArg(args, "person")
	if err != nil {
		return outcome{}, err
	}
	groupID, err := stringArg(args, "group")
	if err != nil {
		return outcome{}, err
	}
	var fields value.Map
	if withFields {
		if fields, err = mapArg(args, "fields"); err != nil {
			return outcome{}, err
		}
	}
	ok, err := fn(ctx, personID, groupID, fields)
	if err != nil {
		return outcome{}, err
	}
	return found(ok, nil), nil
}

func perfBase(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	personID, err := stringArg(args, "person")
	if err != nil {
		return outcome{}, err
	}
	score, _, err := numberArg(args, "score")
	if err != nil {
		return outcome{}, err
	}
	ok, err := h.store.SetPersonBaseScore(ctx, personID, score)
	if err != nil {
		return outcome{}, err
	}
	return found(ok, nil), nil
}

func perfAdd(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	personID, err := stringArg(args, "person")
	if err != nil {
		return outcome{}, err
	}
	e := ledger.Event{Type: ledger.TypeManualAdjust}
	if t, err := stringArg(args, "type"); err != nil {
		return outcome{}, err
	} else if t != "" {
		e.Type = t
	}
	if e.Delta, _, err = numberArg(args, "delta"); err != nil {
		return outcome{}, err
	}
	for key, dst := range map[string]*string{
		"id":    &e.ID,
		"title": &e.Title,
		"note":  &e.Note,
		"group": &e.GroupID,
		"at":    &e.At,
	} {
		if *dst, err = stringArg(args, key); err != nil {
			return outcome{}, err
		}
	}

	stored, ok, err := h.store.AddPerformanceEvent(ctx, personID, e)
	if err != nil {
		return outcome{}, err
	}
	return found(ok, map[string]any{"id": stored.ID, "at": stored.At}), nil
}

func perfUpdate(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	personID, err := stringArg(args, "person")
	if err != nil {
		return outcome{}, err
	}
	eventID, err := stringArg(args, "event")
	if err != nil {
		return outcome{}, err
	}
	var patch ledger.EventPatch
	for key, dst := range map[string]**string{
		"type":  &patch.Type,
		"title": &patch.Title,
		"note":  &patch.Note,
		"group": &patch.GroupID,
		"at":    &patch.At,
	} {
		if *dst, err = optString(args, key); err != nil {
			return outcome{}, err
		}
	}
	if delta, ok, err := numberArg(args, "delta"); err != nil {
		return outcome{}, err
	} else if ok {
		patch.Delta = &delta
	}

	ok, err := h.store.UpdatePerformanceEvent(ctx, personID, eventID, patch)
	if err != nil {
		return outcome{}, err
	}
	return found(ok, map[string]any{"id": eventID}), nil
}

func perfDelete(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	personID, err := stringArg(args, "person")
	if err != nil {
		return outcome{}, err
	}
	eventID, err := stringArg(args, "event")
	if err != nil {
		return outcome{}, err
	}
	ok, err := h.store.DeletePerformanceEvent(ctx, personID, eventID)
	if err != nil {
		return outcome{}, err
	}
	return found(ok, map[string]any{"id": eventID}), nil
}

func perfSummary(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	personID, err := stringArg(args, "person")
	if err != nil {
		return outcome{}, err
	}
	groupID, err := stringArg(args, "group")
	if err != nil {
		return outcome{}, err
	}
	summary, ok, err := h.store.PersonSummary(ctx, personID, groupID)
	if err != nil {
		return outcome{}, err
	}
	return found(ok, summaryResult(summary)), nil
}

func summaryResult(s ledger.Summary) map[string]any {
	return map[string]any{
		"base_score":         s.BaseScore,
		"current_score":      s.CurrentScore,
		"contribution_total": s.ContributionTotal,
		"contribution_count": s.ContributionCount,
		"event_count":        s.EventCount,
	}
}

func leaderboard(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	groupID, err := stringArg(args, "group")
	if err != nil {
		return outcome{}, err
	}
	board, err := h.store.Leaderboard(ctx, groupID)
	if err != nil {
		return outcome{}, err
	}
	ranking := make([]any, len(board))
	for i, st := range board {
		ranking[i] = map[string]any{
			"rank":      st.Rank,
			"person_id": st.PersonID,
			"name":      st.Name,
			"score":     st.Summary.CurrentScore,
		}
	}
	return success(map[string]any{"ranking": ranking}), nil
}

func storeMigrate(ctx context.Context, h *Harness, _ map[string]any) (outcome, error) {
	report, err := h.store.Migrate(ctx)
	if err != nil {
		return outcome{}, err
	}
	return success(map[string]any{
		"from":   report.From.String(),
		"to":     report.To.String(),
		"groups": report.Groups,
		"people": report.People,
		"merged": report.Merged,
	}), nil
}

func importRows(ctx context.Context, h *Harness, args map[string]any) (outcome, error) {
	table, err := tableArg(args)
	if err != nil {
		return outcome{}, err
	}
	var opts importer.Options
	if opts.GroupID, err = stringArg(args, "group"); err != nil {
		return outcome{}, err
	}
	strategy, err := stringArg(args, "strategy")
	if err != nil {
		return outcome{}, err
	}
	opts.Strategy = importer.Strategy(strategy)
	if opts.Contributions, err = boolArg(args, "contributions"); err != nil {
		return outcome{}, err
	}

	res, err := h.importer.Import(ctx, table, opts)
	if err != nil {
		return outcome{}, err
	}
	ids := make([]any, len(res.PersonIDs))
	for i, id := range res.PersonIDs {
		ids[i] = id
	}
	return success(map[string]any{
		"group_id":      res.GroupID,
		"created":       res.Created,
		"updated":       res.Updated,
		"skipped":       res.Skipped,
		"base_scores":   res.BaseScores,
		"contributions": res.Contributions,
		"person_ids":    ids,
	}), nil
}

// tableArg builds an import table from "columns" and "rows". Cells may be
// any scalar; short rows are padded.
func tableArg(args map[string]any) (*importer.Table, error) {
	columns, ok, err := stringsArg(args, "columns")
	if err != nil {
		return nil, err
	}
	if !ok || len(columns) == 0 {
		return nil, fmt.Errorf("columns is required")
	}
	raw, _ := args["rows"].([]any)
	t := &importer.Table{Columns: columns}
	for i, r := range raw {
		cells, ok := r.([]any)
		if !ok {
			return nil, fmt.Errorf("rows[%d]: want a list, got %T", i, r)
		}
		row := make([]string, len(columns))
		for j, cell := range cells {
			if j >= len(row) {
				break
			}
			v, err := value.FromAny(cell)
			if err != nil {
				return nil, fmt.Errorf("rows[%d][%d]: %w", i, j, err)
			}
			row[j] = value.Text(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s: want a string, got %T", key, raw)
	}
	return s, nil
}

// optString is stringArg for partial updates: nil when key is absent.
func optString(args map[string]any, key string) (*string, error) {
	if _, ok := args[key]; !ok {
		return nil, nil
	}
	s, err := stringArg(args, key)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func numberArg(args map[string]any, key string) (float64, bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch n := raw.(type) {
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case float64:
		return n, true, nil
	}
	return 0, false, fmt.Errorf("%s: want a number, got %T", key, raw)
}

func boolArg(args map[string]any, key string) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%s: want a boolean, got %T", key, raw)
	}
	return b, nil
}

func stringsArg(args map[string]any, key string) ([]string, bool, error) {
	raw, ok := args[key]
	if !ok {
		return nil, false, nil
	}
	if raw == nil {
		return []string{}, true, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, false, fmt.Errorf("%s: want a list, got %T", key, raw)
	}
	out := make([]string, len(list))
	for i, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, false, fmt.Errorf("%s[%d]: want a string, got %T", key, i, elem)
		}
		out[i] = s
	}
	return out, true, nil
}

func mapArg(args map[string]any, key string) (value.Map, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, err := value.MapFromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return m, nil
}
