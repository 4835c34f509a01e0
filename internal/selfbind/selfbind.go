// Package selfbind records which person in the shared store is the local
// user.
//
// The binding is a small JSON file in the local directory holding one person
// id. It never lives in the shared document, so each user keeps their own.
package selfbind

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/roster/internal/identity"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/persist"
	"github.com/roach88/roster/internal/store"
	"github.com/roach88/roster/internal/value"
)

// ErrPhoneRequired is returned when a self profile or bind request carries
// no usable phone number.
var ErrPhoneRequired = errors.New("selfbind: phone number is required")

// Errors returned by MigrateSingle for payloads it cannot move.
var (
	ErrMultiRowProfile  = errors.New("selfbind: single-user profile is a multi-row table, import it into a group instead")
	ErrMalformedProfile = errors.New("selfbind: single-user profile is not an object")
)

// SourceMigration is recorded when a single-user profile names no source.
const SourceMigration = "migration"

// MigrateOutcome says what MigrateSingle did.
type MigrateOutcome string

// Outcomes of MigrateSingle.
const (
	MigrateAlreadyBound  MigrateOutcome = "already_bound"
	MigrateNoData        MigrateOutcome = "no_data"
	MigrateBoundExisting MigrateOutcome = "bound_existing"
	MigrateCreated       MigrateOutcome = "created"
)

// Binding is the content of the local binding file.
type Binding struct {
	SelfPersonID string `json:"self_person_id,omitempty"`
}

// Binder reads and writes the local binding against a store.
type Binder struct {
	store  *store.Store
	file   persist.Backend
	logger *slog.Logger
}

// Option configures a Binder.
type Option func(*Binder)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binder) {
		b.logger = logger
	}
}

// New returns a binder keeping its binding at path.
func New(s *store.Store, path string, opts ...Option) *Binder {
	b := &Binder{
		store:  s,
		file:   persist.NewFileBackend(path),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Location returns the binding file path.
func (b *Binder) Location() string {
	return b.file.Location()
}

// Binding returns the stored binding. A missing or unreadable file is an
// empty binding.
func (b *Binder) Binding(ctx context.Context) (Binding, error) {
	data, err := b.file.Load(ctx)
	if errors.Is(err, persist.ErrNotFound) {
		return Binding{}, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Binding{}, ctxErr
		}
		b.logger.Warn("self binding unreadable", "path", b.Location(), "error", err)
		return Binding{}, nil
	}

	var binding Binding
	if err := json.Unmarshal(data, &binding); err != nil {
		b.logger.Warn("self binding unreadable", "path", b.Location(), "error", err)
		return Binding{}, nil
	}
	return binding, nil
}

// Bind records personID as the local user. The person must exist.
func (b *Binder) Bind(ctx context.Context, personID string) error {
	if _, ok, err := b.store.Person(ctx, personID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("bind: person %s not found", personID)
	}
	return b.write(ctx, Binding{SelfPersonID: personID})
}

// Clear removes the binding.
func (b *Binder) Clear(ctx context.Context) error {
	return b.write(ctx, Binding{})
}

// Self returns the bound person. It reports false when nothing is bound or
// the bound person no longer exists.
func (b *Binder) Self(ctx context.Context) (model.Person, bool, error) {
	binding, err := b.Binding(ctx)
	if err != nil || binding.SelfPersonID == "" {
		return model.Person{}, false, err
	}
	p, ok, err := b.store.Person(ctx, binding.SelfPersonID)
	if err != nil {
		return model.Person{}, false, err
	}
	if !ok {
		b.logger.Debug("self binding points at a missing person", "person_id", binding.SelfPersonID)
	}
	return p, ok, nil
}

// BindByPhone binds the person whose identity key is the normalized phone.
// It reports false, leaving the binding untouched, when nobody matches.
func (b *Binder) BindByPhone(ctx context.Context, phone string) (string, bool, error) {
	key := identity.PhoneKey(phone)
	if key == "" {
		return "", false, ErrPhoneRequired
	}
	p, ok, err := b.store.FindPersonByDedupKey(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	if err := b.write(ctx, Binding{SelfPersonID: p.ID}); err != nil {
		return "", false, err
	}
	return p.ID, true, nil
}

// SaveProfile upserts the local user's own profile without a group and binds
// the result. The profile must carry a phone number.
func (b *Binder) SaveProfile(ctx context.Context, profile value.Map, source string) (id string, isNew bool, err error) {
	if phone, _ := identity.ExtractContact(profile); identity.PhoneKey(phone) == "" {
		return "", false, ErrPhoneRequired
	}
	id, isNew, err = b.store.UpsertPerson(ctx, store.UpsertInput{Profile: profile, Source: source})
	if err != nil {
		return "", false, err
	}
	if err := b.write(ctx, Binding{SelfPersonID: id}); err != nil {
		return "", false, err
	}
	b.logger.Info("self profile saved", "person_id", id, "new", isNew)
	return id, isNew, nil
}

// MigrateSingle moves a single-user profile file, {"profile": ..., "source":
// ...}, into the store and binds it. Nothing happens when a binding already
// exists or data holds no profile. A one-row table is unwrapped. A person
// already owning the phone is bound rather than updated.
func (b *Binder) MigrateSingle(ctx context.Context, data []byte) (id string, outcome MigrateOutcome, err error) {
	binding, err := b.Binding(ctx)
	if err != nil {
		return "", "", err
	}
	if binding.SelfPersonID != "" {
		return binding.SelfPersonID, MigrateAlreadyBound, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", MigrateNoData, nil
	}

	decoded, err := value.Decode(data)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}
	single, ok := decoded.(value.Map)
	if !ok {
		return "", "", ErrMalformedProfile
	}
	if value.IsEmpty(single) {
		return "", MigrateNoData, nil
	}

	raw := single["profile"]
	if rows, ok := raw.(value.List); ok {
		if len(rows) != 1 {
			return "", "", ErrMultiRowProfile
		}
		raw = rows[0]
	}
	profile, ok := raw.(value.Map)
	if !ok {
		return "", "", ErrMalformedProfile
	}

	phone, _ := identity.ExtractContact(profile)
	key := identity.PhoneKey(phone)
	if key == "" {
		return "", "", ErrPhoneRequired
	}

	if p, found, err := b.store.FindPersonByDedupKey(ctx, key); err != nil {
		return "", "", err
	} else if found {
		if err := b.write(ctx, Binding{SelfPersonID: p.ID}); err != nil {
			return "", "", err
		}
		b.logger.Info("single-user profile bound to existing person", "person_id", p.ID)
		return p.ID, MigrateBoundExisting, nil
	}

	source := SourceMigration
	if v, ok := single["source"].(value.String); ok && !value.IsEmpty(v) {
		source = string(v)
	}
	id, _, err = b.SaveProfile(ctx, profile, source)
	if err != nil {
		return "", "", err
	}
	return id, MigrateCreated, nil
}

// Candidates lists people whose name matches, for choosing a binding by
// hand.
func (b *Binder) Candidates(ctx context.Context, name string) ([]model.Person, error) {
	return b.store.SearchByName(ctx, name)
}

func (b *Binder) write(ctx context.Context, binding Binding) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(binding); err != nil {
		return err
	}
	if err := b.file.Save(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("save self binding: %w", err)
	}
	return nil
}
