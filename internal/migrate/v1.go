package migrate

import (
	"strings"

	"github.com/roach88/roster/internal/identity"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/value"
)

// Names given to groups rebuilt from untagged data.
const (
	DefaultGroupID          = "default_group"
	DefaultGroupName        = "默认小组"
	DefaultGroupDescription = "从旧数据迁移"
)

const unknownSource = "unknown"

// fromV1 rebuilds a V2 document from either legacy array shape.
func (m *Migrator) fromV1(raw []byte, report *Report) (*model.Document, error) {
	decoded, err := value.Decode(raw)
	if err != nil {
		return nil, unrecognized("decode v1 document: %v", err)
	}
	items, ok := decoded.(value.List)
	if !ok {
		return nil, unrecognized("v1 document is not an array")
	}

	doc := model.NewDocument(m.OrgID, m.OrgName, m.now())
	doc.SchemaVersion = 2
	if len(items) == 0 {
		return doc, nil
	}

	first, ok := items[0].(value.Map)
	switch {
	case ok && first["members"] != nil:
		for i, item := range items {
			team, ok := item.(value.Map)
			if !ok {
				return nil, unrecognized("v1 team %d is not an object", i)
			}
			groupID := m.groupFromTeam(doc, team)
			members, _ := team["members"].(value.List)
			for _, member := range members {
				if mm, ok := member.(value.Map); ok {
					m.migrateMember(doc, mm, groupID, report)
				}
			}
		}
	case ok && first["profile"] != nil:
		stamp := m.stamp()
		doc.Groups = append(doc.Groups, model.Group{
			ID:          DefaultGroupID,
			Name:        DefaultGroupName,
			Description: DefaultGroupDescription,
			Tags:        []string{},
			CreatedAt:   stamp,
			UpdatedAt:   stamp,
		})
		for _, item := range items {
			if mm, ok := item.(value.Map); ok {
				m.migrateMember(doc, mm, DefaultGroupID, report)
			}
		}
	default:
		return nil, unrecognized("v1 array holds neither teams nor members")
	}

	return doc, nil
}

func (m *Migrator) groupFromTeam(doc *model.Document, team value.Map) string {
	id := text(team, "id")
	if id == "" {
		id = m.newID()
	}
	name := text(team, "name")
	if name == "" {
		name = DefaultGroupName
	}
	stamp := m.stamp()
	created := text(team, "created_at")
	if created == "" {
		created = stamp
	}

	if _, exists := doc.Group(id); !exists {
		doc.Groups = append(doc.Groups, model.Group{
			ID:          id,
			Name:        name,
			Description: "",
			Tags:        []string{},
			CreatedAt:   created,
			UpdatedAt:   stamp,
		})
	}
	return id
}

// migrateMember folds one legacy member into doc. A member whose dedup key
// matches an existing person merges into it: the profile merges with the
// upsert rule, the source is appended, and the membership is added once.
func (m *Migrator) migrateMember(doc *model.Document, member value.Map, groupID string, report *Report) {
	profile := value.AsMap(member["profile"])

	phone, email := identity.ExtractContact(profile)
	dedup := identity.ComputeDedupKey(phone, email)

	stamp := m.stamp()
	source := text(member, "source")
	if source == "" {
		source = unknownSource
	}
	created := text(member, "created_at")
	if created == "" {
		created = stamp
	}

	membership := model.Membership{
		GroupID:   groupID,
		JoinedAt:  created,
		UpdatedAt: stamp,
		Fields:    value.Map{"source": value.String(source)},
	}

	if existing, ok := doc.PersonByDedupKey(dedup.Key); ok {
		if _, has := existing.Membership(groupID); !has {
			existing.Memberships = append(existing.Memberships, membership)
		}
		existing.Sources = append(existing.Sources, model.Source{Type: source, ImportedAt: created})
		existing.Profile.MergeFrom(profile)
		existing.UpdatedAt = stamp
		report.Merged++
		return
	}

	id := text(member, "id")
	if _, taken := doc.Person(id); id == "" || taken {
		id = m.newID()
	}

	name := identity.ExtractName(profile)
	if name == "" {
		name = identity.ExtractName(member)
	}
	if name == "" {
		name = identity.PlaceholderName(model.ShortID(id, 4))
	}

	doc.People = append(doc.People, model.Person{
		ID:          id,
		Name:        name,
		Phone:       identity.NormalizePhone(phone),
		Email:       identity.NormalizeEmail(email),
		Dedup:       dedup,
		CreatedAt:   created,
		UpdatedAt:   stamp,
		Profile:     profile.Clone(),
		Sources:     []model.Source{{Type: source, ImportedAt: created}},
		Memberships: []model.Membership{membership},
	})
}

func text(m value.Map, key string) string {
	v, ok := m[key]
	if !ok || identity.IsMissing(v) {
		return ""
	}
	return strings.TrimSpace(value.Text(v))
}
