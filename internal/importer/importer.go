// Package importer turns tabular rows into people in one group.
//
// Each row becomes an upsert, so rows naming someone already in the store
// merge into that person. Recognized columns feed membership fields, the
// base score and contribution events.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/store"
	"github.com/roach88/roster/internal/value"
)

// Source is the source type recorded for imported rows.
const Source = "file_upload"

// DefaultGroupName names the group created when the store has none.
const DefaultGroupName = "默认小组"

// Column candidates recognized in headers.
var (
	NameColumns       = []string{"姓名", "name", "Name", "姓", "名字"}
	MembershipColumns = []string{"职位", "部门", "职称", "研究方向", "角色", "role", "position", "department"}
)

// Strategy decides what a performance column does.
type Strategy string

const (
	// StrategyIgnore leaves base scores alone.
	StrategyIgnore Strategy = "ignore"
	// StrategyNewOnly sets the base score of people the import created.
	StrategyNewOnly Strategy = "new_only"
	// StrategyOverwrite sets the base score of every imported person.
	StrategyOverwrite Strategy = "overwrite"
)

// ParseStrategy validates a strategy name. Empty means StrategyIgnore.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.TrimSpace(s)) {
	case "", StrategyIgnore:
		return StrategyIgnore, nil
	case StrategyNewOnly:
		return StrategyNewOnly, nil
	case StrategyOverwrite:
		return StrategyOverwrite, nil
	}
	return "", fmt.Errorf("unknown performance strategy %q (want ignore, new_only or overwrite)", s)
}

// Options configures one import.
type Options struct {
	// GroupID receives every row. Empty selects the first group, creating
	// DefaultGroupName when the store has none.
	GroupID string
	// Strategy applies when a performance column is detected.
	Strategy Strategy
	// Contributions imports the contribution column when one is detected.
	Contributions bool
}

// Columns reports which headers were recognized.
type Columns struct {
	Name              string   `json:"name,omitempty"`
	Membership        []string `json:"membership,omitempty"`
	Performance       string   `json:"performance,omitempty"`
	Contribution      string   `json:"contribution,omitempty"`
	ContributionScore string   `json:"contribution_score,omitempty"`
}

// Detect recognizes columns by header name.
func Detect(columns []string) Columns {
	var c Columns
	for _, col := range columns {
		if c.Name == "" && slices.Contains(NameColumns, col) {
			c.Name = col
		}
		if slices.Contains(MembershipColumns, col) {
			c.Membership = append(c.Membership, col)
		}
	}
	c.Performance, _ = ledger.DetectPerformanceColumn(columns)
	c.Contribution, c.ContributionScore = ledger.DetectContributionColumns(columns)
	return c
}

// Result summarizes an import.
type Result struct {
	GroupID       string   `json:"group_id"`
	Columns       Columns  `json:"columns"`
	Created       int      `json:"created"`
	Updated       int      `json:"updated"`
	Skipped       int      `json:"skipped"`
	BaseScores    int      `json:"base_scores"`
	Contributions int      `json:"contributions"`
	PersonIDs     []string `json:"person_ids"`
}

// Importer writes tables into a store.
type Importer struct {
	store  *store.Store
	logger *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) {
		im.logger = logger
	}
}

// New returns an importer writing to s.
func New(s *store.Store, opts ...Option) *Importer {
	im := &Importer{store: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import upserts every row of t. Rows whose cells are all empty are skipped.
// The first store error stops the import; rows before it stay written.
func (im *Importer) Import(ctx context.Context, t *Table, opts Options) (Result, error) {
	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return Result{}, err
	}
	groupID, err := im.targetGroup(ctx, opts.GroupID)
	if err != nil {
		return Result{}, err
	}

	res := Result{GroupID: groupID, Columns: Detect(t.Columns), PersonIDs: []string{}}
	for i := range t.Rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := im.row(ctx, t.Record(i), groupID, strategy, opts.Contributions, &res); err != nil {
			return res, fmt.Errorf("import row %d: %w", i+2, err)
		}
	}

	im.logger.Info("import finished",
		"group_id", groupID,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"base_scores", res.BaseScores,
		"contributions", res.Contributions,
	)
	return res, nil
}

func (im *Importer) row(ctx context.Context, rec map[string]string, groupID string, strategy Strategy, contributions bool, res *Result) error {
	if len(rec) == 0 {
		res.Skipped++
		return nil
	}

	profile := make(value.Map, len(rec))
	for col, cell := range rec {
		profile[col] = value.String(cell)
	}
	fields := value.Map{"source": value.String(Source)}
	for _, col := range res.Columns.Membership {
		if cell, ok := rec[col]; ok {
			fields[col] = value.String(cell)
		}
	}

	id, isNew, err := im.store.UpsertPerson(ctx, store.UpsertInput{
		Profile:          profile,
		Source:           Source,
		GroupID:          groupID,
		MembershipFields: fields,
	})
	if err != nil {
		return err
	}
	res.PersonIDs = append(res.PersonIDs, id)
	if isNew {
		res.Created++
	} else {
		res.Updated++
	}

	if col := res.Columns.Performance; col != "" && strategy != StrategyIgnore {
		if score, ok := ledger.ParseScore(rec[col]); ok && (isNew || strategy == StrategyOverwrite) {
			if err := im.setBase(ctx, id, col, score); err != nil {
				return err
			}
			res.BaseScores++
		}
	}

	if col := res.Columns.Contribution; contributions && col != "" {
		defaultDelta := 0.0
		if scoreCol := res.Columns.ContributionScore; scoreCol != "" {
			if d, ok := ledger.ParseScore(rec[scoreCol]); ok {
				defaultDelta = d
			}
		}
		for _, e := range im.store.EventFactory().ParseContributions(rec[col], defaultDelta, groupID) {
			if _, _, err := im.store.AddPerformanceEvent(ctx, id, e); err != nil {
				return err
			}
			res.Contributions++
		}
	}
	return nil
}

// setBase sets the base score and records where it came from. The event
// carries no delta so the score is not counted twice.
func (im *Importer) setBase(ctx context.Context, personID, column string, score float64) error {
	if _, err := im.store.SetPersonBaseScore(ctx, personID, score); err != nil {
		return err
	}
	e := im.store.EventFactory().ImportBase(0, fmt.Sprintf("导入自列 [%s]", column))
	e.Note = "基准分 " + strconv.FormatFloat(score, 'f', -1, 64)
	_, _, err := im.store.AddPerformanceEvent(ctx, personID, e)
	return err
}

// targetGroup resolves the group rows are imported into.
func (im *Importer) targetGroup(ctx context.Context, groupID string) (string, error) {
	if groupID != "" {
		if _, ok, err := im.store.Group(ctx, groupID); err != nil {
			return "", err
		} else if !ok {
			return "", fmt.Errorf("import: %w: %s", store.ErrUnknownGroup, groupID)
		}
		return groupID, nil
	}

	groups, err := im.store.Groups(ctx)
	if err != nil {
		return "", err
	}
	if len(groups) > 0 {
		return groups[0].ID, nil
	}
	id, err := im.store.CreateGroup(ctx, store.GroupInput{Name: DefaultGroupName})
	if err != nil {
		return "", err
	}
	im.logger.Info("default group created", "group_id", id, "name", DefaultGroupName)
	return id, nil
}
