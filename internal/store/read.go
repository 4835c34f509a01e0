package store

import (
	"context"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/model"
)

// Member pairs a person with their membership in one group.
type Member struct {
	Person     model.Person     `json:"person"`
	Membership model.Membership `json:"membership"`
}

// Affiliation pairs a group with a person's membership in it.
type Affiliation struct {
	Group      model.Group      `json:"group"`
	Membership model.Membership `json:"membership"`
}

// Standing is one row of a leaderboard.
type Standing struct {
	Rank     int            `json:"rank"`
	PersonID string         `json:"person_id"`
	Name     string         `json:"name"`
	Summary  ledger.Summary `json:"summary"`
}

// Organization returns the organization.
func (s *Store) Organization(ctx context.Context) (org model.Organization, err error) {
	ctx, done := s.observe(ctx, "organization")
	defer done(&err)

	doc, err := s.read(ctx)
	if err != nil {
		return model.Organization{}, err
	}
	return doc.Org, nil
}

// Groups returns every group in creation order.
func (s *Store) Groups(ctx context.Context) (groups []model.Group, err error) {
	ctx, done := s.observe(ctx, "groups")
	defer done(&err)

	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Groups, nil
}

// Group returns the group with the given id.
func (s *Store) Group(ctx context.Context, id string) (group model.Group, ok bool, err error) {
	ctx, done := s.observe(ctx, "group", attribute.String("group_id", id))
	defer done(&err)

	doc, err := s.read(ctx)
	if err != nil {
		return model.Group{}, false, err
	}
	g, ok := doc.Group(id)
	if !ok {
		return model.Group{}, false, nil
	}
	return *g, true, nil
}

// People returns every person in creation order.
func (s *Store) People(ctx context.Context) (people []model.Person, err error) {
	ctx, done := s.observe(ctx, "people")
	defer done(&err)

	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return doc.People, nil
}

// Person returns the person with the given id.
func (s *Store) Person(ctx context.Context, id string) (person model.Person, ok bool, err error) {
	ctx, done := s.observe(ctx, "person", attribute.String("person_id", id))
	defer done(&err)

	doc, err := s.read(ctx)
	if err != nil {
		return model.Person{}, false, err
	}
	p, ok := doc.Person(id)
	if !ok {
		return model.Person{}, false, nil
	}
	return *p, true, nil
}

// FindPersonByDedupKey returns the person owning key. An empty key never
// matches.
func (s *Store) FindPersonByDedupKey(ctx context.Context, key string) (person model.Person, ok bool, err error) {
	ctx, done := s.observe(ctx, "find_person")
	defer done(&err)

	if key == "" {
		return model.Person{}, false, nil
	}
	doc, err := s.read(ctx)
	if err != nil {
		return model.Person{}, false, err
	}
	p, ok := doc.PersonByDedupKey(key)
	if !ok {
		return model.Person{}, false, nil
	}
	return *p, true, nil
}

// PeopleInGroup returns the members of a group with their memberships.
func (s *Store) PeopleInGroup(ctx context.Context, groupID string) (members []Member, err error) {
	ctx, done := s.observe(ctx, "people_in_group", attribute.String("group_id", groupID))
	defer done(&err)

	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return membersOf(doc, groupID), nil
}

func membersOf(doc *model.Document, groupID string) []Member {
	var out []Member
	for _, p := range doc.People {
		if m, ok := p.Membership(groupID); ok {
			out = append(out, Member{Person: p, Membership: *m})
		}
	}
	return out
}

// PersonGroups returns the groups a person belongs to. Memberships naming a
// group that no longer exists are skipped.
func (s *Store) PersonGroups(ctx context.Context, personID string) (groups []Affiliation, err error) {
	ctx, done := s.observe(ctx, "person_groups", attribute.String("person_id", personID))
	defer done(&err)

	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := doc.Person(personID)
	if !ok {
		return nil, nil
	}
	var out []Affiliation
	for _, m := range p.Memberships {
		if g, ok := doc.Group(m.GroupID); ok {
			out = append(out, Affiliation{Group: *g, Membership: m})
		}
	}
	return out, nil
}

// SearchByName returns people whose name contains query, or is contained in
// it, ignoring case.
func (s *Store) SearchByName(ctx context.Context, query string) (people []model.Person, err error) {
	ctx, done := s.observe(ctx, "search_by_name")
	defer done(&err)

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range doc.People {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			continue
		}
		if strings.Contains(name, query) || strings.Contains(query, name) {
			people = append(people, p)
		}
	}
	return people, nil
}

// PersonPerformance returns a copy of the person's ledger.
func (s *Store) PersonPerformance(ctx context.Context, personID string) (l *ledger.Ledger, ok bool, err error) {
	ctx, done := s.observe(ctx, "person_performance", attribute.String("person_id", personID))
	defer done(&err)

	doc, err := s.read(ctx)
	if err != nil {
		return nil, false, err
	}
	p, ok := doc.Person(personID)
	if !ok {
		return nil, false, nil
	}
	return ledger.Ensure(p.Performance, s.now()).Clone(), true, nil
}

// PersonSummary folds the person's ledger. A non-empty groupID scopes the
// fold to that group's events and global events.
func (s *Store) PersonSummary(ctx context.Context, personID, groupID string) (summary ledger.Summary, ok bool, err error) {
	ctx, done := s.observe(ctx, "person_summary",
		attribute.String("person_id", personID),
		attribute.String("group_id", groupID),
	)
	defer done(&err)

	doc, err := s.read(ctx)
	if err != nil {
		return ledger.Summary{}, false, err
	}
	p, ok := doc.Person(personID)
	if !ok {
		return ledger.Summary{}, false, nil
	}
	return ledger.Summarize(p.Performance, groupID), true, nil
}

// Leaderboard ranks people by current score, highest first, ties broken by
// name. With a groupID only that group's members are ranked, each scored over
// the group's events and global events. Equal scores share a rank.
func (s *Store) Leaderboard(ctx context.Context, groupID string) (board []Standing, err error) {
	ctx, done := s.observe(ctx, "leaderboard", attribute.String("group_id", groupID))
	defer done(&err)

	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range doc.People {
		if groupID != "" {
			if _, ok := p.Membership(groupID); !ok {
				continue
			}
		}
		board = append(board, Standing{
			PersonID: p.ID,
			Name:     p.Name,
			Summary:  ledger.Summarize(p.Performance, groupID),
		})
	}

	slices.SortStableFunc(board, func(a, b Standing) int {
		switch {
		case a.Summary.CurrentScore > b.Summary.CurrentScore:
			return -1
		case a.Summary.CurrentScore < b.Summary.CurrentScore:
			return 1
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.PersonID, b.PersonID)
	})

	for i := range board {
		if i > 0 && board[i].Summary.CurrentScore == board[i-1].Summary.CurrentScore {
			board[i].Rank = board[i-1].Rank
		} else {
			board[i].Rank = i + 1
		}
	}
	return board, nil
}
