package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/roster/internal/ledger"
	"github.com/roach88/roster/internal/metrics"
	"github.com/roach88/roster/internal/migrate"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/persist"
)

// TracerName names the tracer used for store spans.
const TracerName = "roster/store"

var (
	// ErrUnknownGroup is returned when an upsert or event names a group that
	// does not exist.
	ErrUnknownGroup = errors.New("store: unknown group")

	// ErrEmptyName is returned when a group or organization name is blank.
	ErrEmptyName = errors.New("store: name must not be empty")

	// ErrInvalidEvent is returned for events with an unknown type.
	ErrInvalidEvent = errors.New("store: invalid performance event")

	// ErrCorrupt is returned by Migrate when the stored document cannot be
	// read. Other operations fall back to an empty store instead.
	ErrCorrupt = errors.New("store: document is corrupt")
)

// IDGenerator produces entity ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Store is the entity store. It holds no document state between calls;
// every operation reloads from the backend.
type Store struct {
	backend  persist.Backend
	now      func() time.Time
	ids      IDGenerator
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	orgID    string
	orgName  string
	migrator *migrate.Migrator
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for timestamps and event dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator sets the generator for person, group and event ids.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Store) {
		s.ids = ids
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithTracer sets the tracer for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// WithOrganization sets the organization created for a new store.
func WithOrganization(id, name string) Option {
	return func(s *Store) {
		s.orgID = id
		s.orgName = name
	}
}

// New creates a Store over backend.
//
// Defaults: wall clock, UUIDv7 ids, slog.Default(), no metrics, the global
// otel tracer, and the default organization.
func New(backend persist.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		ids:     UUIDv7Generator{},
		logger:  slog.Default(),
		tracer:  otel.Tracer(TracerName),
		orgID:   model.DefaultOrgID,
		orgName: model.DefaultOrgName,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.migrator = &migrate.Migrator{
		Now:     s.now,
		NewID:   s.ids.Generate,
		Logger:  s.logger,
		OrgID:   s.orgID,
		OrgName: s.orgName,
	}
	return s
}

// Location describes where the document lives.
func (s *Store) Location() string {
	return s.backend.Location()
}

// Backend returns the backend the store reads and writes.
func (s *Store) Backend() persist.Backend {
	return s.backend
}

// Load returns the current document. A stale document is upgraded and the
// upgrade persisted before it is returned.
func (s *Store) Load(ctx context.Context) (doc *model.Document, err error) {
	ctx, done := s.observe(ctx, "load")
	defer done(&err)
	return s.read(ctx)
}

// Save replaces the persisted document with doc, stamping the current schema
// version. A corrupt document on disk is preserved first; a document from a
// newer release is never overwritten.
func (s *Store) Save(ctx context.Context, doc *model.Document) (err error) {
	ctx, done := s.observe(ctx, "save")
	defer done(&err)

	unlock, err := s.backend.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	_, state, err := s.load(ctx)
	if err != nil {
		return err
	}
	if state.corrupt {
		if err := s.preserve(ctx); err != nil {
			return err
		}
	}
	return s.write(ctx, doc)
}

// Migrate upgrades and persists the stored document. The report's From and
// To are equal when nothing needed upgrading.
func (s *Store) Migrate(ctx context.Context) (report migrate.Report, err error) {
	ctx, done := s.observe(ctx, "migrate")
	defer done(&err)

	unlock, err := s.backend.Lock(ctx)
	if err != nil {
		return migrate.Report{}, err
	}
	defer unlock()

	doc, state, err := s.load(ctx)
	if err != nil {
		return migrate.Report{}, err
	}
	if state.corrupt {
		return migrate.Report{}, fmt.Errorf("migrate %s: %w", s.backend.Location(), ErrCorrupt)
	}
	if state.migrated {
		if err := s.write(ctx, doc); err != nil {
			return migrate.Report{}, err
		}
		s.metrics.IncrementMigration(state.report.From.String())
	}
	return state.report, nil
}

// loadState describes how load obtained its document.
type loadState struct {
	corrupt  bool
	migrated bool
	report   migrate.Report
}

// load reads and upgrades the document without locking or writing.
func (s *Store) load(ctx context.Context) (*model.Document, loadState, error) {
	raw, err := s.backend.Load(ctx)
	switch {
	case errors.Is(err, persist.ErrNotFound):
		s.logger.Debug("store not found, starting empty",
			"reason", metrics.ReasonNotFound,
			"location", s.backend.Location(),
		)
		s.metrics.IncrementLoadFallback(metrics.ReasonNotFound)
		return s.empty(), loadState{report: currentReport()}, nil
	case err != nil && ctx.Err() != nil:
		return nil, loadState{}, ctx.Err()
	case err != nil:
		return s.corrupt(err)
	}

	doc, report, err := s.migrator.Upgrade(raw)
	if migrate.IsNewerSchema(err) {
		return nil, loadState{}, fmt.Errorf("load %s: %w", s.backend.Location(), err)
	}
	if err != nil {
		return s.corrupt(err)
	}

	return doc, loadState{report: report, migrated: report.Migrated()}, nil
}

// corrupt reports an unusable document and falls back to an empty one.
func (s *Store) corrupt(cause error) (*model.Document, loadState, error) {
	s.logger.Warn("store unreadable, using empty store",
		"reason", metrics.ReasonCorrupt,
		"location", s.backend.Location(),
		"error", cause,
	)
	s.metrics.IncrementLoadFallback(metrics.ReasonCorrupt)
	return s.empty(), loadState{corrupt: true, report: currentReport()}, nil
}

func currentReport() migrate.Report {
	return migrate.Report{From: migrate.GenerationV3, To: migrate.GenerationV3}
}

func (s *Store) empty() *model.Document {
	return model.NewDocument(s.orgID, s.orgName, s.now())
}

// read loads the document for a read-only operation, persisting an upgrade
// the first time a stale document is seen.
func (s *Store) read(ctx context.Context) (*model.Document, error) {
	doc, state, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if !state.migrated {
		return doc, nil
	}
	return s.update(ctx, func(*model.Document, time.Time) (bool, error) {
		return false, nil
	})
}

// mutation changes doc in place and reports whether anything changed.
type mutation func(doc *model.Document, now time.Time) (bool, error)

// update runs fn on the current document while holding the backend lock.
// The document is written when fn reports a change or the load upgraded it.
func (s *Store) update(ctx context.Context, fn mutation) (*model.Document, error) {
	unlock, err := s.backend.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, state, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	changed, err := fn(doc, s.now())
	if err != nil {
		return nil, err
	}
	if !changed && !state.migrated {
		return doc, nil
	}

	if state.corrupt {
		if err := s.preserve(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.write(ctx, doc); err != nil {
		return nil, err
	}
	if state.migrated {
		s.metrics.IncrementMigration(state.report.From.String())
	}
	return doc, nil
}

func (s *Store) preserve(ctx context.Context) error {
	loc, err := s.backend.Preserve(ctx)
	if err != nil {
		return fmt.Errorf("preserve corrupt document: %w", err)
	}
	if loc != "" {
		s.logger.Warn("preserved corrupt document", "location", loc)
	}
	return nil
}

// write stamps the schema version and replaces the persisted document.
func (s *Store) write(ctx context.Context, doc *model.Document) error {
	doc.SchemaVersion = model.CurrentSchemaVersion
	doc.Normalize()

	data, err := Encode(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := s.backend.Save(ctx, data); err != nil {
		s.metrics.IncrementSaveFailure()
		s.logger.Error("save failed", "location", s.backend.Location(), "error", err)
		return fmt.Errorf("save %s: %w", s.backend.Location(), err)
	}
	return nil
}

// Encode renders doc as indented JSON without HTML escaping.
func Encode(doc *model.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// observe starts a span and a timer for op. The returned function ends both
// and records a non-nil *errp on the span.
func (s *Store) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(errp *error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, op+" failed")
		}
		span.End()
		s.metrics.ObserveOperation(op, start)
	}
}

// EventFactory builds ledger events with this store's ids and clock.
func (s *Store) EventFactory() ledger.Factory {
	return ledger.Factory{NewID: s.eventID, Now: s.now}
}

// eventID returns "e_" plus the random tail of a fresh id.
func (s *Store) eventID() string {
	return "e_" + model.ShortID(s.ids.Generate(), 8)
}
