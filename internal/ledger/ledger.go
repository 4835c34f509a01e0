// Package ledger implements the performance ledger embedded in every person:
// a base score plus an append-only list of score-affecting events.
//
// All functions are pure. Malformed input degrades to conservative defaults
// (zero delta, empty event list); the only hard failure is a ledger payload
// that is not a JSON object, reported as ErrMalformed.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/roster/internal/value"
)

// Event types.
const (
	TypeImportBase   = "import_base"
	TypeContribution = "contribution"
	TypeManualAdjust = "manual_adjust"
)

// ValidType reports whether t is one of the known event types.
func ValidType(t string) bool {
	switch t {
	case TypeImportBase, TypeContribution, TypeManualAdjust:
		return true
	}
	return false
}

// Timestamp layouts shared with the persisted document.
const (
	TimeLayout = "2006-01-02 15:04:05"
	DateLayout = "2006-01-02"
)

// ErrMalformed is returned by Decode when the payload is not an object.
var ErrMalformed = errors.New("ledger: payload is not an object")

// Ledger is a base score plus the events that adjust it.
type Ledger struct {
	BaseScore float64 `json:"base_score"`
	Events    []Event `json:"events"`
	UpdatedAt string  `json:"updated_at"`
}

// Event is one score-affecting entry. An empty GroupID means the event is
// global and visible under every group-scoped view.
type Event struct {
	ID      string
	Type    string
	Delta   float64
	Title   string
	Note    string
	GroupID string
	At      string
}

type eventJSON struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Delta   float64 `json:"delta"`
	Title   string  `json:"title"`
	Note    string  `json:"note"`
	GroupID *string `json:"group_id"`
	At      string  `json:"at"`
}

// MarshalJSON writes a global event's group_id as null.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		ID:    e.ID,
		Type:  e.Type,
		Delta: e.Delta,
		Title: e.Title,
		Note:  e.Note,
		At:    e.At,
	}
	if e.GroupID != "" {
		gid := e.GroupID
		out.GroupID = &gid
	}
	return json.Marshal(out)
}

// UnmarshalJSON is lenient: fields with the wrong shape fall back to their
// zero value, and a delta that does not parse as a score counts as zero.
func (e *Event) UnmarshalJSON(data []byte) error {
	raw, err := value.Decode(data)
	if err != nil {
		return err
	}
	m, ok := raw.(value.Map)
	if !ok {
		return fmt.Errorf("event: expected object, got %s", value.Kind(raw))
	}
	*e = eventFromMap(m)
	return nil
}

func eventFromMap(m value.Map) Event {
	e := Event{
		ID:      stringField(m, "id"),
		Type:    stringField(m, "type"),
		Title:   stringField(m, "title"),
		Note:    stringField(m, "note"),
		GroupID: stringField(m, "group_id"),
		At:      stringField(m, "at"),
	}
	if d, ok := ParseScore(m["delta"]); ok {
		e.Delta = d
	}
	return e
}

func stringField(m value.Map, key string) string {
	switch v := m[key].(type) {
	case value.String:
		return string(v)
	case value.Number:
		return value.Text(v)
	default:
		return ""
	}
}

// Empty returns a ledger with a zero base and no events.
func Empty(now time.Time) *Ledger {
	return &Ledger{
		BaseScore: 0,
		Events:    []Event{},
		UpdatedAt: now.Format(TimeLayout),
	}
}

// Ensure backfills a missing or partial ledger and returns it. A nil ledger
// becomes Empty(now). An existing base score and events are never replaced.
func Ensure(l *Ledger, now time.Time) *Ledger {
	if l == nil {
		return Empty(now)
	}
	if l.Events == nil {
		l.Events = []Event{}
	}
	if l.UpdatedAt == "" {
		l.UpdatedAt = now.Format(TimeLayout)
	}
	return l
}

// Decode parses a persisted ledger. It fails with ErrMalformed only when the
// payload is not an object; everything else is repaired with defaults, leaving
// a missing updated_at empty for Ensure to fill.
func Decode(data []byte) (*Ledger, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrMalformed
	}
	raw, err := value.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m, ok := raw.(value.Map)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrMalformed, value.Kind(raw))
	}

	l := &Ledger{Events: []Event{}}
	if base, ok := ParseScore(m["base_score"]); ok {
		l.BaseScore = base
	}
	if events, ok := m["events"].(value.List); ok {
		for _, item := range events {
			em, ok := item.(value.Map)
			if !ok {
				continue
			}
			l.Events = append(l.Events, eventFromMap(em))
		}
	}
	l.UpdatedAt = stringField(m, "updated_at")
	return l, nil
}

// UnmarshalJSON decodes through Decode so every reader gets the same repairs.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*l = *decoded
	return nil
}

// Clone returns a deep copy of l.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	out := *l
	out.Events = append([]Event(nil), l.Events...)
	if out.Events == nil {
		out.Events = []Event{}
	}
	return &out
}

// Find returns the index of the event with the given id, or -1.
func (l *Ledger) Find(eventID string) int {
	for i, e := range l.Events {
		if e.ID == eventID {
			return i
		}
	}
	return -1
}

// EventPatch is a partial event update. Nil fields are left unchanged.
// A non-nil GroupID pointing at "" makes the event global.
type EventPatch struct {
	Type    *string  `json:"type,omitempty"`
	Delta   *float64 `json:"delta,omitempty"`
	Title   *string  `json:"title,omitempty"`
	Note    *string  `json:"note,omitempty"`
	GroupID *string  `json:"group_id,omitempty"`
	At      *string  `json:"at,omitempty"`
}

// ApplyPatch copies the non-nil fields of p onto e. The id never changes.
func ApplyPatch(e *Event, p EventPatch) {
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.Delta != nil {
		e.Delta = *p.Delta
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Note != nil {
		e.Note = *p.Note
	}
	if p.GroupID != nil {
		e.GroupID = *p.GroupID
	}
	if p.At != nil {
		e.At = *p.At
	}
}
