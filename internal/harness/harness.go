package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/roach88/roster/internal/importer"
	"github.com/roach88/roster/internal/persist"
	"github.com/roach88/roster/internal/store"
	"github.com/roach88/roster/internal/testutil"
)

// variableRef matches a whole-string variable reference such as "$zhang".
var variableRef = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)$`)

// Harness executes one scenario against a private store.
type Harness struct {
	store    *store.Store
	importer *importer.Importer
	vars     map[string]string
	seq      int64
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory backend, optionally seeded
// with a document, using a stepping clock and sequential ids.
//
// Execution flow:
// 1. Load the seed document, if any
// 2. Execute setup steps; an Error completion aborts the run
// 3. Execute flow steps and check expect clauses
// 4. Evaluate assertions against the trace and the final document
//
// The returned error reports a broken scenario (an unbound variable, an
// unreadable seed); failed expectations are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	backend := persist.NewMemoryBackend()
	if path := scenario.seedPath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed: %w", err)
		}
		backend.Set(data)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock(testutil.Epoch, time.Second)
	st := store.New(backend,
		store.WithClock(clock.Now),
		store.WithIDGenerator(testutil.NewSequenceGenerator()),
		store.WithLogger(logger),
	)
	h := &Harness{
		store:    st,
		importer: importer.New(st, importer.WithLogger(logger)),
		vars:     make(map[string]string),
		logger:   logger,
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		out, err := h.step(ctx, step.Action, step.Args, step.Bind, result)
		if err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
		if out.Case == CaseError {
			return nil, fmt.Errorf("setup step %d: %s failed: %v", i, step.Action, out.Result["error"])
		}
	}

	for i, step := range scenario.Flow {
		out, err := h.step(ctx, step.Invoke, step.Args, step.Bind, result)
		if err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
		if msg, err := h.checkExpect(i, step, out); err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		} else if msg != "" {
			result.AddError(msg)
		}
	}

	doc, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load final document: %w", err)
	}
	assertions, err := h.resolveAssertions(scenario.Assertions)
	if err != nil {
		return nil, err
	}
	actx := &AssertionContext{Tables: stateTables(doc)}
	for _, msg := range EvaluateAssertions(result, assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// step runs one action and records its invocation and completion.
func (h *Harness) step(ctx context.Context, name string, rawArgs map[string]any, bind string, result *Result) (outcome, error) {
	fn, ok := actions[name]
	if !ok {
		return outcome{}, fmt.Errorf("unknown action %q", name)
	}
	args, err := h.substituteMap(rawArgs)
	if err != nil {
		return outcome{}, fmt.Errorf("%s: %w", name, err)
	}

	h.seq++
	result.AddInvocationTrace(name, args, h.seq)

	out, err := fn(ctx, h, args)
	if err != nil {
		out = outcome{Case: CaseError, Result: map[string]any{"error": err.Error()}}
	}

	h.seq++
	result.AddCompletionTrace(name, out.Case, out.Result, h.seq)

	if bind != "" {
		id, ok := out.Result["id"].(string)
		if !ok {
			return out, fmt.Errorf("%s: cannot bind %q: %s completion has no id", name, bind, out.Case)
		}
		h.vars[bind] = id
	}

	h.logger.Info("step completed",
		"action", name,
		"case", out.Case,
		"seq", h.seq,
	)
	return out, nil
}

// checkExpect returns a failure message when a flow step's completion does
// not match its expect clause. A step without one fails only on Error.
func (h *Harness) checkExpect(i int, step FlowStep, out outcome) (string, error) {
	if step.Expect == nil {
		if out.Case == CaseError {
			return fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.Invoke, out.Result["error"]), nil
		}
		return "", nil
	}

	if out.Case != step.Expect.Case {
		return fmt.Sprintf("flow[%d] %s: expected case %s, got %s %v",
			i, step.Invoke, step.Expect.Case, out.Case, out.Result), nil
	}
	want, err := h.substituteMap(step.Expect.Result)
	if err != nil {
		return "", err
	}
	if !matchArgs(out.Result, want) {
		return fmt.Sprintf("flow[%d] %s: expected result %v, got %v",
			i, step.Invoke, want, out.Result), nil
	}
	return "", nil
}

// resolveAssertions substitutes variables into assertion args and filters.
func (h *Harness) resolveAssertions(in []Assertion) ([]Assertion, error) {
	out := make([]Assertion, len(in))
	for i, a := range in {
		var err error
		if a.Args, err = h.substituteMap(a.Args); err != nil {
			return nil, fmt.Errorf("assertions[%d]: %w", i, err)
		}
		if a.Where, err = h.substituteMap(a.Where); err != nil {
			return nil, fmt.Errorf("assertions[%d]: %w", i, err)
		}
		if a.Expect, err = h.substituteMap(a.Expect); err != nil {
			return nil, fmt.Errorf("assertions[%d]: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}

func (h *Harness) substituteMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		sub, err := h.substitute(v)
		if err != nil {
			return nil, err
		}
		out[k] = sub
	}
	return out, nil
}

// substitute replaces variable references anywhere inside v.
func (h *Harness) substitute(v any) (any, error) {
	switch val := v.(type) {
	case string:
		m := variableRef.FindStringSubmatch(val)
		if m == nil {
			return val, nil
		}
		bound, ok := h.vars[m[1]]
		if !ok {
			return nil, fmt.Errorf("unbound variable %s", val)
		}
		return bound, nil
	case map[string]any:
		return h.substituteMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			sub, err := h.substitute(elem)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return val, nil
	}
}
