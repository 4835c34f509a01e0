package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/roster/internal/identity"
	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/metrics"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/value"
)

// UnknownSource is recorded when an upsert names no source.
const UnknownSource = "unknown"

// UpsertInput is one candidate record from an import path.
type UpsertInput struct {
	Profile value.Map
	// Source names the import path, e.g. "file_upload" or "text_analysis".
	Source string
	// GroupID, when set, must name an existing group.
	GroupID string
	// MembershipFields are per-group attributes. A new membership with no
	// fields records {"source": Source}.
	MembershipFields value.Map
}

// UpsertPerson creates a person or merges the input into the person sharing
// its dedup key.
//
// On merge every non-empty profile field of the input overwrites the stored
// field and absent fields are kept. A source entry is appended, and the
// membership for GroupID is refreshed or added. Records with no usable phone
// or email always create a new person.
func (s *Store) UpsertPerson(ctx context.Context, in UpsertInput) (id string, isNew bool, err error) {
	ctx, done := s.observe(ctx, "upsert_person",
		attribute.String("source", in.Source),
		attribute.String("group_id", in.GroupID),
	)
	defer func() {
		switch {
		case err != nil:
			s.metrics.IncrementUpsert(metrics.OutcomeFailed)
		case isNew:
			s.metrics.IncrementUpsert(metrics.OutcomeCreated)
		default:
			s.metrics.IncrementUpsert(metrics.OutcomeMerged)
		}
		done(&err)
	}()

	profile := in.Profile
	if profile == nil {
		profile = value.Map{}
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = UnknownSource
	}

	phone, email := identity.ExtractContact(profile)
	dedup := identity.ComputeDedupKey(phone, email)
	name := identity.ExtractName(profile)

	_, err = s.update(ctx, func(doc *model.Document, now time.Time) (bool, error) {
		if in.GroupID != "" {
			if _, ok := doc.Group(in.GroupID); !ok {
				return false, fmt.Errorf("upsert person: %w: %s", ErrUnknownGroup, in.GroupID)
			}
		}
		ts := model.Timestamp(now)
		defaults := value.Map{"source": value.String(source)}

		if existing, ok := doc.PersonByDedupKey(dedup.Key); ok {
			existing.Profile.MergeFrom(profile)
			existing.Sources = append(existing.Sources, model.Source{Type: source, ImportedAt: ts})
			if existing.Phone == "" {
				existing.Phone = identity.NormalizePhone(phone)
			}
			if existing.Email == "" {
				existing.Email = identity.NormalizeEmail(email)
			}
			if name != "" && isPlaceholderName(existing.Name) {
				existing.Name = name
			}
			if in.GroupID != "" {
				join(existing, in.GroupID, in.MembershipFields, defaults, ts)
			}
			existing.UpdatedAt = ts
			id = existing.ID
			return true, nil
		}

		id = s.ids.Generate()
		if name == "" {
			name = identity.PlaceholderName(model.ShortID(id, 4))
		}
		p := model.Person{
			ID:          id,
			Name:        name,
			Phone:       identity.NormalizePhone(phone),
			Email:       identity.NormalizeEmail(email),
			Dedup:       dedup,
			CreatedAt:   ts,
			UpdatedAt:   ts,
			Profile:     profile.Clone(),
			Sources:     []model.Source{{Type: source, ImportedAt: ts}},
			Memberships: []model.Membership{},
			Performance: ledger.Empty(now),
		}
		if in.GroupID != "" {
			join(&p, in.GroupID, in.MembershipFields, defaults, ts)
		}
		doc.People = append(doc.People, p)
		isNew = true
		return true, nil
	})
	if err != nil {
		return "", false, err
	}

	if isNew {
		s.logger.Info("person created", "person_id", id, "source", source, "dedup_key", dedup.Key)
	} else {
		s.logger.Debug("person merged", "person_id", id, "source", source, "dedup_key", dedup.Key)
	}
	return id, isNew, nil
}

func isPlaceholderName(name string) bool {
	return name == "" || strings.HasPrefix(name, identity.PlaceholderName(""))
}
