// Package schema checks persisted documents against the current-generation
// layout.
//
// Structure is described in CUE (document.cue, embedded) and checked with the
// CUE Go API. Rules that span records (unique ids, one dedup key per person,
// memberships pointing at existing groups) are checked in Go afterwards.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/roster/internal/model"
)

//go:embed document.cue
var documentSchema string

// Issue codes (S001-S099).
const (
	CodeSyntax            = "S001" // not parseable as JSON
	CodeGeneration        = "S002" // not a current-generation document
	CodeStructure         = "S003" // does not match #Document
	CodeDuplicateID       = "S004" // id used twice within groups or people
	CodeDuplicateDedupKey = "S005" // dedup key shared by two people
	CodeUnknownGroup      = "S006" // membership names a missing group
	CodeDuplicateMember   = "S007" // two memberships for one group
)

// Issue is one problem found in a document.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (i Issue) Error() string {
	if i.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", i.Code, i.Line, i.Path, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Code, i.Path, i.Message)
}

// Validator holds the compiled schema. It is safe to reuse but not for
// concurrent use, since cue.Context is not.
type Validator struct {
	ctx      *cue.Context
	document cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(documentSchema, cue.Filename("document.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#Document"))
	if !def.Exists() {
		return nil, fmt.Errorf("compile document schema: #Document not defined")
	}
	return &Validator{ctx: ctx, document: def}, nil
}

// Validate returns every issue found in data. An empty result means the
// document is valid. name labels positions in CUE messages.
func (v *Validator) Validate(name string, data []byte) []Issue {
	if !json.Valid(data) {
		return []Issue{{Path: "document", Message: "not valid JSON", Code: CodeSyntax}}
	}

	if issue, ok := checkGeneration(data); !ok {
		return []Issue{issue}
	}

	value := v.ctx.CompileBytes(data, cue.Filename(name))
	if err := value.Err(); err != nil {
		return fromCUE(err, CodeSyntax)
	}
	unified := v.document.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fromCUE(err, CodeStructure)
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return []Issue{{Path: "document", Message: err.Error(), Code: CodeStructure}}
	}
	return CheckReferences(&doc)
}

// checkGeneration rejects documents that need migration before anything
// else, since the structural errors for them would only be noise.
func checkGeneration(data []byte) (Issue, bool) {
	var head struct {
		Version *int `json:"_schema_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Issue{
			Path:    "document",
			Message: "top level is not an object; run migrate to upgrade a legacy document",
			Code:    CodeGeneration,
		}, false
	}
	if head.Version == nil || *head.Version != model.CurrentSchemaVersion {
		got := "missing"
		if head.Version != nil {
			got = fmt.Sprint(*head.Version)
		}
		return Issue{
			Path:    "_schema_version",
			Message: fmt.Sprintf("want %d, got %s", model.CurrentSchemaVersion, got),
			Code:    CodeGeneration,
		}, false
	}
	return Issue{}, true
}

// fromCUE converts a CUE error list into issues, keeping CUE's paths and
// positions.
func fromCUE(err error, code string) []Issue {
	var issues []Issue
	for _, e := range cueerrors.Errors(err) {
		issue := Issue{
			Path:    strings.Join(e.Path(), "."),
			Message: e.Error(),
			Code:    code,
		}
		if issue.Path == "" {
			issue.Path = "document"
		}
		for _, pos := range cueerrors.Positions(e) {
			if pos.IsValid() && pos.Filename() != "document.cue" {
				issue.Line = pos.Line()
				break
			}
		}
		issues = append(issues, issue)
	}
	if len(issues) == 0 {
		issues = append(issues, Issue{Path: "document", Message: err.Error(), Code: code})
	}
	return issues
}

// CheckReferences checks the rules that span records. It does not fail
// fast. Events may keep the id of a deleted group, so event scopes are not
// checked.
func CheckReferences(doc *model.Document) []Issue {
	var issues []Issue

	groups := make(map[string]bool, len(doc.Groups))
	for i, g := range doc.Groups {
		if groups[g.ID] {
			issues = append(issues, Issue{
				Path:    fmt.Sprintf("groups.%d.id", i),
				Message: fmt.Sprintf("duplicate group id %q", g.ID),
				Code:    CodeDuplicateID,
			})
		}
		groups[g.ID] = true
	}

	people := make(map[string]bool, len(doc.People))
	keys := make(map[string]string)
	for i, p := range doc.People {
		at := fmt.Sprintf("people.%d", i)
		if people[p.ID] {
			issues = append(issues, Issue{
				Path:    at + ".id",
				Message: fmt.Sprintf("duplicate person id %q", p.ID),
				Code:    CodeDuplicateID,
			})
		}
		people[p.ID] = true

		if key := p.Dedup.Key; key != "" {
			if owner, taken := keys[key]; taken {
				issues = append(issues, Issue{
					Path:    at + ".dedup.key",
					Message: fmt.Sprintf("dedup key %q already belongs to %s", key, owner),
					Code:    CodeDuplicateDedupKey,
				})
			} else {
				keys[key] = p.ID
			}
		}

		seen := make(map[string]bool, len(p.Memberships))
		for j, m := range p.Memberships {
			path := fmt.Sprintf("%s.memberships.%d.group_id", at, j)
			if !groups[m.GroupID] {
				issues = append(issues, Issue{
					Path:    path,
					Message: fmt.Sprintf("unknown group %q", m.GroupID),
					Code:    CodeUnknownGroup,
				})
			}
			if seen[m.GroupID] {
				issues = append(issues, Issue{
					Path:    path,
					Message: fmt.Sprintf("second membership in group %q", m.GroupID),
					Code:    CodeDuplicateMember,
				})
			}
			seen[m.GroupID] = true
		}
	}
	return issues
}
