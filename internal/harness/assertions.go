package harness

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/roster/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == EventInvocation {
				fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, event.Action, event.Args)
			}
		}
	}

	return buf.String()
}

// AssertionContext provides the final state for final_state and row_count.
type AssertionContext struct {
	Tables map[string][]Row
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertRowCount:
			if actx == nil {
				err = fmt.Errorf("assertion[%d]: %s requires final state", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Tables, assertion)
			} else {
				err = assertRowCount(actx.Tables, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertTraceContains checks if the trace contains an invocation matching
// the specified action and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == EventInvocation && event.Action == assertion.Action {
			if matchArgs(event.Args, assertion.Args) {
				return nil
			}
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)

	for i, event := range trace {
		if event.Type == EventInvocation {
			for _, expectedAction := range assertion.Actions {
				if event.Action == expectedAction && positions[expectedAction] == 0 {
					positions[expectedAction] = i + 1 // 1-indexed for readability
				}
			}
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventInvocation && event.Action == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it carries the expected values (subset semantics).
func assertFinalState(tables map[string][]Row, assertion Assertion) error {
	rows, err := selectRows(tables, assertion)
	if err != nil {
		return err
	}
	whereDesc := formatWhereClause(assertion.Where)

	switch len(rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "no rows matched",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(rows)),
		}
	}
	row := rows[0]

	for _, key := range sortedKeys(assertion.Expect) {
		expected, err := value.FromAny(assertion.Expect[key])
		if err != nil {
			return fmt.Errorf("final_state expect %q: %w", key, err)
		}
		actual, exists := row[key]
		if !exists {
			if _, isNull := expected.(value.Null); isNull {
				continue
			}
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s row %v", key, assertion.Table, rowColumns(row)),
			}
		}
		if !matchValue(actual, expected) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %s", key, value.Text(expected)),
				Actual:   fmt.Sprintf("field %q = %s", key, value.Text(actual)),
			}
		}
	}

	return nil
}

// assertRowCount checks how many rows of the table match Where.
func assertRowCount(tables map[string][]Row, assertion Assertion) error {
	rows, err := selectRows(tables, assertion)
	if err != nil {
		return err
	}
	if len(rows) != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", assertion.Count, assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
		}
	}
	return nil
}

// selectRows returns the rows of the assertion's table matching every Where
// field.
func selectRows(tables map[string][]Row, assertion Assertion) ([]Row, error) {
	rows, ok := tables[assertion.Table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", assertion.Table)
	}
	where := make(map[string]value.Value, len(assertion.Where))
	for k, raw := range assertion.Where {
		v, err := value.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("where %q: %w", k, err)
		}
		where[k] = v
	}

	var matched []Row
	for _, row := range rows {
		if rowMatches(row, where) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func rowMatches(row Row, where map[string]value.Value) bool {
	for k, want := range where {
		got, ok := row[k]
		if !ok {
			got = value.Null{}
		}
		if !matchValue(got, want) {
			return false
		}
	}
	return true
}

// formatWhereClause creates a human-readable description of Where conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func rowColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// matchArgs checks if actual contains all expected fields (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	want, err := value.FromAny(expected)
	if err != nil {
		return false
	}
	got, err := value.FromAny(actual)
	if err != nil {
		return false
	}
	return matchValue(got, want)
}

// matchValue compares an actual value against an expected one. Maps match
// as subsets, lists element by element. Numbers and numeric strings are
// interchangeable, and an expected null or empty string matches an absent
// value.
func matchValue(actual, expected value.Value) bool {
	switch want := expected.(type) {
	case nil, value.Null:
		switch actual.(type) {
		case nil, value.Null:
			return true
		}
		return false
	case value.Map:
		got, ok := actual.(value.Map)
		if !ok {
			return false
		}
		for k, v := range want {
			if !matchValue(got[k], v) {
				return false
			}
		}
		return true
	case value.List:
		got, ok := actual.(value.List)
		if !ok || len(got) != len(want) {
			return false
		}
		for i := range want {
			if !matchValue(got[i], want[i]) {
				return false
			}
		}
		return true
	case value.Number:
		switch got := actual.(type) {
		case value.Number:
			return got == want
		case value.String:
			f, err := strconv.ParseFloat(strings.TrimSpace(string(got)), 64)
			return err == nil && value.Number(f) == want
		}
		return false
	case value.String:
		switch got := actual.(type) {
		case value.String:
			return got == want
		case value.Number:
			return value.Text(got) == string(want)
		case nil, value.Null:
			return want == ""
		}
		return false
	case value.Bool:
		got, ok := actual.(value.Bool)
		return ok && got == want
	}
	return false
}
