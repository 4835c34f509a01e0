// Package model defines the persisted document: one organization, its groups,
// and the people who belong to them.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/roster/internal/identity"
	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/value"
)

// CurrentSchemaVersion is the schema generation written by this code.
const CurrentSchemaVersion = 3

// Default organization identity used when a store is created.
const (
	DefaultOrgID   = "org_default"
	DefaultOrgName = "大团队"
)

// Document is the whole persisted store.
type Document struct {
	SchemaVersion int          `json:"_schema_version"`
	Org           Organization `json:"org"`
	Groups        []Group      `json:"groups"`
	People        []Person     `json:"people"`
}

// Organization is the singleton owner of every group.
type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Group is a named set of people. Tags are kept sorted and unique.
type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Person is one deduplicated individual.
type Person struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Phone       string         `json:"phone"`
	Email       string         `json:"email"`
	Dedup       identity.Dedup `json:"dedup"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	Profile     value.Map      `json:"profile"`
	Sources     []Source       `json:"sources"`
	Memberships []Membership   `json:"memberships"`
	Performance *ledger.Ledger `json:"performance,omitempty"`
}

// Source records one import of a person's data.
type Source struct {
	Type       string `json:"type"`
	ImportedAt string `json:"imported_at"`
}

// Membership binds a person to a group. Fields hold per-group attributes
// such as role or title.
type Membership struct {
	GroupID   string    `json:"group_id"`
	JoinedAt  string    `json:"joined_at"`
	UpdatedAt string    `json:"updated_at"`
	Fields    value.Map `json:"fields"`
}

// UnmarshalJSON decodes a person, dropping a performance ledger that is not an
// object so EnsurePerformance can replace it. A profile that is not an object
// is coerced with value.AsMap rather than failing the whole document.
func (p *Person) UnmarshalJSON(data []byte) error {
	type plain Person
	var aux struct {
		plain
		Profile     json.RawMessage `json:"profile"`
		Performance json.RawMessage `json:"performance"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Person(aux.plain)
	p.Performance = nil

	profile, err := lenientMap(aux.Profile)
	if err != nil {
		return fmt.Errorf("person %s profile: %w", p.ID, err)
	}
	p.Profile = profile

	if len(aux.Performance) == 0 {
		return nil
	}
	l, err := ledger.Decode(aux.Performance)
	if errors.Is(err, ledger.ErrMalformed) {
		return nil
	}
	if err != nil {
		return err
	}
	p.Performance = l
	return nil
}

// UnmarshalJSON decodes a membership, coercing fields that are not an object.
func (m *Membership) UnmarshalJSON(data []byte) error {
	type plain Membership
	var aux struct {
		plain
		Fields json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Membership(aux.plain)

	fields, err := lenientMap(aux.Fields)
	if err != nil {
		return fmt.Errorf("membership %s fields: %w", m.GroupID, err)
	}
	m.Fields = fields
	return nil
}

// lenientMap decodes raw as any JSON value and coerces it to a map. An absent
// key stays nil so Normalize can backfill it.
func lenientMap(raw json.RawMessage) (value.Map, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	v, err := value.Decode(raw)
	if err != nil {
		return nil, err
	}
	return value.AsMap(v), nil
}

// Timestamp formats t the way every document timestamp is stored.
func Timestamp(t time.Time) string {
	return t.Format(ledger.TimeLayout)
}

// NewDocument returns an empty current-generation document.
func NewDocument(orgID, orgName string, now time.Time) *Document {
	if orgID == "" {
		orgID = DefaultOrgID
	}
	if orgName == "" {
		orgName = DefaultOrgName
	}
	ts := Timestamp(now)
	return &Document{
		SchemaVersion: CurrentSchemaVersion,
		Org: Organization{
			ID:        orgID,
			Name:      orgName,
			CreatedAt: ts,
			UpdatedAt: ts,
		},
		Groups: []Group{},
		People: []Person{},
	}
}

// Normalize backfills nil collections so the document always serializes
// with empty lists and objects rather than null.
func (d *Document) Normalize() {
	if d.Groups == nil {
		d.Groups = []Group{}
	}
	if d.People == nil {
		d.People = []Person{}
	}
	for i := range d.Groups {
		d.Groups[i].Tags = NormalizeTags(d.Groups[i].Tags)
	}
	for i := range d.People {
		p := &d.People[i]
		if p.Profile == nil {
			p.Profile = value.Map{}
		}
		if p.Sources == nil {
			p.Sources = []Source{}
		}
		if p.Memberships == nil {
			p.Memberships = []Membership{}
		}
		for j := range p.Memberships {
			if p.Memberships[j].Fields == nil {
				p.Memberships[j].Fields = value.Map{}
			}
		}
		if p.Dedup.Strategy == "" {
			p.Dedup.Strategy = identity.StrategyPhoneThenEmail
		}
	}
}

// EnsurePerformance gives every person a valid ledger.
func (d *Document) EnsurePerformance(now time.Time) {
	for i := range d.People {
		d.People[i].Performance = ledger.Ensure(d.People[i].Performance, now)
	}
}

// Group returns the group with the given id.
func (d *Document) Group(id string) (*Group, bool) {
	for i := range d.Groups {
		if d.Groups[i].ID == id {
			return &d.Groups[i], true
		}
	}
	return nil, false
}

// Person returns the person with the given id.
func (d *Document) Person(id string) (*Person, bool) {
	for i := range d.People {
		if d.People[i].ID == id {
			return &d.People[i], true
		}
	}
	return nil, false
}

// PersonByDedupKey returns the person owning a non-empty dedup key.
func (d *Document) PersonByDedupKey(key string) (*Person, bool) {
	if key == "" {
		return nil, false
	}
	for i := range d.People {
		if d.People[i].Dedup.Key == key {
			return &d.People[i], true
		}
	}
	return nil, false
}

// RemoveGroup deletes a group and every membership pointing at it.
// People are kept.
func (d *Document) RemoveGroup(id string) bool {
	before := len(d.Groups)
	d.Groups = slices.DeleteFunc(d.Groups, func(g Group) bool { return g.ID == id })
	for i := range d.People {
		d.People[i].RemoveMembership(id)
	}
	return len(d.Groups) < before
}

// RemovePerson hard-deletes a person.
func (d *Document) RemovePerson(id string) bool {
	before := len(d.People)
	d.People = slices.DeleteFunc(d.People, func(p Person) bool { return p.ID == id })
	return len(d.People) < before
}

// Membership returns the person's membership in a group.
func (p *Person) Membership(groupID string) (*Membership, bool) {
	for i := range p.Memberships {
		if p.Memberships[i].GroupID == groupID {
			return &p.Memberships[i], true
		}
	}
	return nil, false
}

// RemoveMembership drops the membership for groupID, if any.
func (p *Person) RemoveMembership(groupID string) bool {
	before := len(p.Memberships)
	p.Memberships = slices.DeleteFunc(p.Memberships, func(m Membership) bool { return m.GroupID == groupID })
	return len(p.Memberships) < before
}

// ShortID returns the last n characters of id with hyphens removed. The tail
// of a UUIDv7 is random, so it suits short suffixes.
func ShortID(id string, n int) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > n {
		return id[len(id)-n:]
	}
	return id
}

// NormalizeTags trims, drops empty entries, de-duplicates and sorts.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
