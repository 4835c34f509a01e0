package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/value"
)

// RenameOrganization sets the organization's name.
func (s *Store) RenameOrganization(ctx context.Context, name string) (err error) {
	ctx, done := s.observe(ctx, "rename_organization")
	defer done(&err)

	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	_, err = s.update(ctx, func(doc *model.Document, now time.Time) (bool, error) {
		doc.Org.Name = name
		doc.Org.UpdatedAt = model.Timestamp(now)
		return true, nil
	})
	return err
}

// GroupInput describes a new group.
type GroupInput struct {
	Name        string
	Description string
	Tags        []string
}

// GroupPatch is a partial group update. Nil fields are left unchanged.
type GroupPatch struct {
	Name        *string
	Description *string
	Tags        []string
	// SetTags replaces the tags with Tags, which may be empty.
	SetTags bool
}

// CreateGroup adds a group and returns its id.
func (s *Store) CreateGroup(ctx context.Context, in GroupInput) (id string, err error) {
	ctx, done := s.observe(ctx, "create_group")
	defer done(&err)

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", ErrEmptyName
	}
	id = s.ids.Generate()
	_, err = s.update(ctx, func(doc *model.Document, now time.Time) (bool, error) {
		ts := model.Timestamp(now)
		doc.Groups = append(doc.Groups, model.Group{
			ID:          id,
			Name:        name,
			Description: in.Description,
			Tags:        model.NormalizeTags(in.Tags),
			CreatedAt:   ts,
			UpdatedAt:   ts,
		})
		return true, nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("group created", "group_id", id, "name", name)
	return id, nil
}

// RenameGroup sets a group's name.
func (s *Store) RenameGroup(ctx context.Context, id, name string) (bool, error) {
	return s.UpdateGroup(ctx, id, GroupPatch{Name: &name})
}

// UpdateGroup applies patch to a group.
func (s *Store) UpdateGroup(ctx context.Context, id string, patch GroupPatch) (ok bool, err error) {
	ctx, done := s.observe(ctx, "update_group", attribute.String("group_id", id))
	defer done(&err)

	var name string
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
		if name == "" {
			return false, ErrEmptyName
		}
	}
	_, err = s.update(ctx, func(doc *model.Document, now time.Time) (bool, error) {
		g, found := doc.Group(id)
		if !found {
			return false, nil
		}
		if patch.Name != nil {
			g.Name = name
		}
		if patch.Description != nil {
			g.Description = *patch.Description
		}
		if patch.SetTags {
			g.Tags = model.NormalizeTags(patch.Tags)
		}
		g.UpdatedAt = model.Timestamp(now)
		ok = true
		return true, nil
	})
	return ok, err
}

// DeleteGroup removes a group and every membership pointing at it. People
// and their events are kept.
func (s *Store) DeleteGroup(ctx context.Context, id string) (ok bool, err error) {
	ctx, done := s.observe(ctx, "delete_group", attribute.String("group_id", id))
	defer done(&err)

	_, err = s.update(ctx, func(doc *model.Document, now time.Time) (bool, error) {
		ts := model.Timestamp(now)
		for i := range doc.People {
			if doc.People[i].RemoveMembership(id) {
				doc.People[i].UpdatedAt = ts
			}
		}
		ok = doc.RemoveGroup(id)
		return ok, nil
	})
	if err == nil && ok {
		s.logger.Info("group deleted", "group_id", id)
	}
	return ok, err
}

// DeletePerson hard-deletes a person.
func (s *Store) DeletePerson(ctx context.Context, id string) (ok bool, err error) {
	ctx, done := s.observe(ctx, "delete_person", attribute.String("person_id", id))
	defer done(&err)

	_, err = s.update(ctx, func(doc *model.Document, _ time.Time) (bool, error) {
		ok = doc.RemovePerson(id)
		return ok, nil
	})
	if err == nil && ok {
		s.logger.Info("person deleted", "person_id", id)
	}
	return ok, err
}

// AddPersonToGroup adds a membership, or when one exists for the group bumps
// it and merges fields into it. It reports false when the person or group
// does not exist.
func (s *Store) AddPersonToGroup(ctx context.Context, personID, groupID string, fields value.Map) (ok bool, err error) {
	ctx, done := s.observe(ctx, "add_person_to_group",
		attribute.String("person_id", personID),
		attribute.String("group_id", groupID),
	)
	defer done(&err)

	_, err = s.update(ctx, func(doc *model.Document, now time.Time) (bool, error) {
		p, found := doc.Person(personID)
		if !found {
			return false, nil
		}
		if _, found := doc.Group(groupID); !found {
			return false, nil
		}
		join(p, groupID, fields, nil, model.Timestamp(now))
		ok = true
		return true, nil
	})
	return ok, err
}

// join adds or refreshes p's membership in groupID. An existing membership
// takes fields with plain update semantics; a new one starts from fields, or
// from defaults when fields is empty.
func join(p *model.Person, groupID string, fields, defaults value.Map, ts string) {
	p.UpdatedAt = ts
	if m, ok := p.Membership(groupID); ok {
		m.UpdatedAt = ts
		m.Fields.Update(fields)
		return
	}
	initial := fields
	if len(initial) == 0 {
		initial = defaults
	}
	if initial == nil {
		initial = value.Map{}
	}
	p.Memberships = append(p.Memberships, model.Membership{
		GroupID:   groupID,
		JoinedAt:  ts,
		UpdatedAt: ts,
		Fields:    initial.Clone(),
	})
}

// RemovePersonFromGroup drops a membership. It reports false when the person
// has no membership in the group.
func (s *Store) RemovePersonFromGroup(ctx context.Context, personID, groupID string) (ok bool, err error) {
	ctx, done := s.observe(ctx, "remove_person_from_group",
		attribute.String("person_id", personID),
		attribute.String("group_id", groupID),
	)
	defer done(&err)

	_, err = s.update(ctx, func(doc *model.Document, now time.Time) (bool, error) {
		p, found := doc.Person(personID)
		if !found || !p.RemoveMembership(groupID) {
			return false, nil
		}
		p.UpdatedAt = model.Timestamp(now)
		ok = true
		return true, nil
	})
	return ok, err
}

// UpdateMembershipFields merges fields into an existing membership.
func (s *Store) UpdateMembershipFields(ctx context.Context, personID, groupID string, fields value.Map) (ok bool, err error) {
	ctx, done := s.observe(ctx, "update_membership_fields",
		attribute.String("person_id", personID),
		attribute.String("group_id", groupID),
	)
	defer done(&err)

	_, err = s.update(ctx, func(doc *model.Document, now time.Time) (bool, error) {
		p, found := doc.Person(personID)
		if !found {
			return false, nil
		}
		m, found := p.Membership(groupID)
		if !found {
			return false, nil
		}
		ts := model.Timestamp(now)
		m.Fields.Update(fields)
		m.UpdatedAt = ts
		p.UpdatedAt = ts
		ok = true
		return true, nil
	})
	return ok, err
}

// performance runs fn on a person's ledger and bumps the ledger and person
// timestamps when fn reports a change.
func (s *Store) performance(ctx context.Context, personID string, fn func(l *ledger.Ledger, doc *model.Document, now time.Time) (bool, error)) (bool, error) {
	var ok bool
	_, err := s.update(ctx, func(doc *model.Document, now time.Time) (bool, error) {
		p, found := doc.Person(personID)
		if !found {
			return false, nil
		}
		p.Performance = ledger.Ensure(p.Performance, now)
		changed, err := fn(p.Performance, doc, now)
		if err != nil || !changed {
			return false, err
		}
		ts := model.Timestamp(now)
		p.Performance.UpdatedAt = ts
		p.UpdatedAt = ts
		ok = true
		return true, nil
	})
	return ok, err
}

// SetPersonBaseScore sets the base score of a person's ledger.
func (s *Store) SetPersonBaseScore(ctx context.Context, personID string, score float64) (ok bool, err error) {
	ctx, done := s.observe(ctx, "set_base_score", attribute.String("person_id", personID))
	defer done(&err)

	return s.performance(ctx, personID, func(l *ledger.Ledger, _ *model.Document, _ time.Time) (bool, error) {
		l.BaseScore = score
		return true, nil
	})
}

// AddPerformanceEvent appends an event to a person's ledger and returns it as
// stored. A missing or duplicate id is replaced with a fresh one and a
// missing date defaults to today.
func (s *Store) AddPerformanceEvent(ctx context.Context, personID string, e ledger.Event) (stored ledger.Event, ok bool, err error) {
	ctx, done := s.observe(ctx, "add_performance_event",
		attribute.String("person_id", personID),
		attribute.String("event_type", e.Type),
	)
	defer done(&err)

	if !ledger.ValidType(e.Type) {
		return ledger.Event{}, false, fmt.Errorf("%w: type %q", ErrInvalidEvent, e.Type)
	}
	ok, err = s.performance(ctx, personID, func(l *ledger.Ledger, doc *model.Document, now time.Time) (bool, error) {
		if e.GroupID != "" {
			if _, found := doc.Group(e.GroupID); !found {
				return false, fmt.Errorf("add performance event: %w: %s", ErrUnknownGroup, e.GroupID)
			}
		}
		if e.ID == "" || l.Find(e.ID) >= 0 {
			e = s.EventFactory().Event(e.Type, e.Delta, e.Title, e.Note, e.GroupID, e.At)
		}
		if e.At == "" {
			e.At = now.Format(ledger.DateLayout)
		}
		l.Events = append(l.Events, e)
		return true, nil
	})
	if err != nil || !ok {
		return ledger.Event{}, ok, err
	}
	return e, true, nil
}

// UpdatePerformanceEvent applies patch to one event. It reports false when
// the person or event does not exist.
func (s *Store) UpdatePerformanceEvent(ctx context.Context, personID, eventID string, patch ledger.EventPatch) (ok bool, err error) {
	ctx, done := s.observe(ctx, "update_performance_event",
		attribute.String("person_id", personID),
		attribute.String("event_id", eventID),
	)
	defer done(&err)

	if patch.Type != nil && !ledger.ValidType(*patch.Type) {
		return false, fmt.Errorf("%w: type %q", ErrInvalidEvent, *patch.Type)
	}
	return s.performance(ctx, personID, func(l *ledger.Ledger, doc *model.Document, _ time.Time) (bool, error) {
		if patch.GroupID != nil && *patch.GroupID != "" {
			if _, found := doc.Group(*patch.GroupID); !found {
				return false, fmt.Errorf("update performance event: %w: %s", ErrUnknownGroup, *patch.GroupID)
			}
		}
		i := l.Find(eventID)
		if i < 0 {
			return false, nil
		}
		ledger.ApplyPatch(&l.Events[i], patch)
		return true, nil
	})
}

// DeletePerformanceEvent removes one event. It reports false when the person
// or event does not exist.
func (s *Store) DeletePerformanceEvent(ctx context.Context, personID, eventID string) (ok bool, err error) {
	ctx, done := s.observe(ctx, "delete_performance_event",
		attribute.String("person_id", personID),
		attribute.String("event_id", eventID),
	)
	defer done(&err)

	return s.performance(ctx, personID, func(l *ledger.Ledger, _ *model.Document, _ time.Time) (bool, error) {
		i := l.Find(eventID)
		if i < 0 {
			return false, nil
		}
		l.Events = append(l.Events[:i], l.Events[i+1:]...)
		return true, nil
	})
}
