// Package migrate detects the schema generation of a persisted document and
// upgrades it in sequence to the current generation.
//
// Generations:
//   - V1: untagged JSON array, either teams with embedded members
//     ([{id,name,members:[...]}]) or a flat member list ([{id,profile,...}]).
//   - V2: normalized {org, groups, people} object, _schema_version 2,
//     people have no performance ledger.
//   - V3: V2 plus a ledger on every person. Current.
//
// Upgrade never drops data: legacy members that collide on dedup key are
// merged into one person, and payloads that match no generation are
// reported as errors rather than rebuilt.
package migrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/roster/internal/model"
)

// Generation is an on-disk schema generation.
type Generation int

const (
	GenerationUnknown Generation = iota
	GenerationV1
	GenerationV2
	GenerationV3
)

// String returns "v1", "v2", "v3" or "unknown".
func (g Generation) String() string {
	switch g {
	case GenerationV1:
		return "v1"
	case GenerationV2:
		return "v2"
	case GenerationV3:
		return "v3"
	default:
		return "unknown"
	}
}

// Detect inspects a raw payload and reports its generation.
func Detect(raw []byte) (Generation, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return GenerationUnknown, unrecognized("empty document")
	}

	switch trimmed[0] {
	case '[':
		return GenerationV1, nil
	case '{':
	default:
		return GenerationUnknown, unrecognized("document is neither an array nor an object")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return GenerationUnknown, unrecognized("parse document: %v", err)
	}

	if rawVersion, ok := top["_schema_version"]; ok {
		var version int
		if err := json.Unmarshal(rawVersion, &version); err != nil {
			return GenerationUnknown, unrecognized("_schema_version is not an integer: %s", rawVersion)
		}
		switch {
		case version > model.CurrentSchemaVersion:
			return GenerationUnknown, newerSchema(version)
		case version == model.CurrentSchemaVersion:
			return GenerationV3, nil
		case version == 2:
			return GenerationV2, nil
		}
	}

	// Untagged objects carrying the normalized keys predate the version tag.
	for _, key := range []string{"org", "groups", "people"} {
		if _, ok := top[key]; ok {
			return GenerationV2, nil
		}
	}
	return GenerationUnknown, unrecognized("object has no _schema_version and no org, groups or people")
}

// Report describes what an upgrade did.
type Report struct {
	From   Generation `json:"from"`
	To     Generation `json:"to"`
	Groups int        `json:"groups"`
	People int        `json:"people"`
	// Merged counts legacy members folded into an existing person.
	Merged int `json:"merged"`
}

// Migrated reports whether the document changed generation.
func (r Report) Migrated() bool {
	return r.From != r.To
}

// MarshalJSON writes generations by name.
func (g Generation) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

// Migrator upgrades documents. The zero value is usable: it uses the wall
// clock, UUIDv7 ids and discards logs.
type Migrator struct {
	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger

	// OrgID and OrgName seed the organization created for V1 payloads.
	OrgID   string
	OrgName string
}

func (m *Migrator) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Migrator) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.Must(uuid.NewV7()).String()
}

func (m *Migrator) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Upgrade parses raw and brings it to the current generation.
// A V3 payload passes through with only missing collections backfilled.
func (m *Migrator) Upgrade(raw []byte) (*model.Document, Report, error) {
	gen, err := Detect(raw)
	if err != nil {
		return nil, Report{}, err
	}

	report := Report{From: gen, To: GenerationV3}
	var doc *model.Document

	switch gen {
	case GenerationV1:
		doc, err = m.fromV1(raw, &report)
	case GenerationV2, GenerationV3:
		doc, err = decodeDocument(raw)
	}
	if err != nil {
		return nil, report, err
	}

	// V2 -> V3 backfills a ledger on every person. On a V3 document this only
	// repairs ledgers that were missing or malformed.
	doc.Normalize()
	doc.EnsurePerformance(m.now())
	doc.SchemaVersion = model.CurrentSchemaVersion

	report.Groups = len(doc.Groups)
	report.People = len(doc.People)

	if report.Migrated() {
		m.logger().Info("document migrated",
			"from", report.From.String(),
			"to", report.To.String(),
			"groups", report.Groups,
			"people", report.People,
			"merged", report.Merged,
		)
	}
	return doc, report, nil
}

func decodeDocument(raw []byte) (*model.Document, error) {
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, unrecognized("decode document: %v", err)
	}
	return &doc, nil
}

func (m *Migrator) stamp() string {
	return model.Timestamp(m.now())
}

// String renders the report for logs and CLI text output.
func (r Report) String() string {
	return fmt.Sprintf("%s -> %s: %d groups, %d people, %d merged", r.From, r.To, r.Groups, r.People, r.Merged)
}
