package harness

import (
	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/value"
)

// Row is one record of a state table.
type Row map[string]value.Value

// State table names.
const (
	TableOrg         = "org"
	TableGroups      = "groups"
	TablePeople      = "people"
	TableMemberships = "memberships"
	TableEvents      = "events"
)

func knownTable(name string) bool {
	switch name {
	case TableOrg, TableGroups, TablePeople, TableMemberships, TableEvents:
		return true
	}
	return false
}

// stateTables projects a document into flat tables:
//
//	org:         id, name
//	groups:      id, name, description, tags, member_count
//	people:      id, name, phone, email, dedup_key, source_count,
//	             group_count, base_score, current_score, event_count,
//	             profile.<field>
//	memberships: person_id, group_id, fields.<field>
//	events:      person_id, id, type, delta, title, note, group_id, at
//
// A global event's group_id is null.
func stateTables(doc *model.Document) map[string][]Row {
	tables := map[string][]Row{
		TableOrg: {{
			"id":   value.String(doc.Org.ID),
			"name": value.String(doc.Org.Name),
		}},
		TableGroups:      {},
		TablePeople:      {},
		TableMemberships: {},
		TableEvents:      {},
	}

	memberCount := make(map[string]int)
	for _, p := range doc.People {
		for _, m := range p.Memberships {
			memberCount[m.GroupID]++
		}
	}
	for _, g := range doc.Groups {
		tags := make(value.List, len(g.Tags))
		for i, t := range g.Tags {
			tags[i] = value.String(t)
		}
		tables[TableGroups] = append(tables[TableGroups], Row{
			"id":           value.String(g.ID),
			"name":         value.String(g.Name),
			"description":  value.String(g.Description),
			"tags":         tags,
			"member_count": value.Number(memberCount[g.ID]),
		})
	}

	for _, p := range doc.People {
		l := p.Performance
		if l == nil {
			l = &ledger.Ledger{}
		}
		row := Row{
			"id":            value.String(p.ID),
			"name":          value.String(p.Name),
			"phone":         value.String(p.Phone),
			"email":         value.String(p.Email),
			"dedup_key":     value.String(p.Dedup.Key),
			"source_count":  value.Number(len(p.Sources)),
			"group_count":   value.Number(len(p.Memberships)),
			"base_score":    value.Number(l.BaseScore),
			"current_score": value.Number(ledger.CurrentScore(l)),
			"event_count":   value.Number(len(l.Events)),
		}
		for k, v := range p.Profile {
			row["profile."+k] = v
		}
		tables[TablePeople] = append(tables[TablePeople], row)

		for _, m := range p.Memberships {
			mrow := Row{
				"person_id": value.String(p.ID),
				"group_id":  value.String(m.GroupID),
			}
			for k, v := range m.Fields {
				mrow["fields."+k] = v
			}
			tables[TableMemberships] = append(tables[TableMemberships], mrow)
		}

		for _, e := range l.Events {
			var group value.Value = value.Null{}
			if e.GroupID != "" {
				group = value.String(e.GroupID)
			}
			tables[TableEvents] = append(tables[TableEvents], Row{
				"person_id": value.String(p.ID),
				"id":        value.String(e.ID),
				"type":      value.String(e.Type),
				"delta":     value.Number(e.Delta),
				"title":     value.String(e.Title),
				"note":      value.String(e.Note),
				"group_id":  group,
				"at":        value.String(e.At),
			})
		}
	}
	return tables
}
