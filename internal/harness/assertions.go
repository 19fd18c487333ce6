package harness

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/value"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

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
		for _, event := range e.Trace {
			status := "ok"
			if event.Error != "" {
				status = event.Error
			}
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Step, status)
		}
	}

	return buf.String()
}

// assertTraceContains checks that a successful run of the step produced a
// response matching the expected values (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Step != assertion.Step || event.Error != "" {
			continue
		}
		if matchValues(event.Response, assertion.Values) == "" {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("step %s with values %v", assertion.Step, assertion.Values),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that steps first ran in the given order.
// Steps don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for _, event := range trace {
		if _, seen := positions[event.Step]; !seen {
			positions[event.Step] = event.Seq
		}
	}

	for _, step := range assertion.Steps {
		if positions[step] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all steps present: %v", assertion.Steps),
				Actual:   fmt.Sprintf("missing step: %s", step),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Steps); i++ {
		prev := assertion.Steps[i-1]
		curr := assertion.Steps[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("steps in order: %v", assertion.Steps),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the step ran exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Step == assertion.Step {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("step %s %d times", assertion.Step, assertion.Count),
			Actual:   fmt.Sprintf("%d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState queries the table for exactly one row matching Where
// and checks the expected columns (subset match).
//
// Table and column names are validated against validIdentifier; values are
// always bound as parameters.
func (h *Harness) assertFinalState(ctx context.Context, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	keys := sortedKeys(assertion.Where)
	clauses := make([]string, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ${%s}", key, key))
	}

	query := "select * from " + assertion.Table
	if len(clauses) > 0 {
		query += " where " + strings.Join(clauses, " and ")
	}

	s, err := script.New(h.connection, []string{query})
	if err != nil {
		return err
	}
	where, err := toObject(assertion.Where)
	if err != nil {
		return fmt.Errorf("where: %w", err)
	}

	report, err := h.exec.ExecTable(ctx, s, where)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	switch report.Len() {
	case 1:
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhere(assertion.Where)),
			Actual:   "row not found",
		}
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhere(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", report.Len()),
		}
	}

	if msg := matchValues(report.Object(0), assertion.Expect); msg != "" {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s matching %v", assertion.Table, assertion.Expect),
			Actual:   msg,
		}
	}
	return nil
}

// matchValues returns "" when obj holds every expected key with an equal
// value, otherwise a description of the first mismatch.
func matchValues(obj *value.Object, expected map[string]any) string {
	for _, key := range sortedKeys(expected) {
		actual, ok := obj.Lookup(key)
		if !ok {
			return fmt.Sprintf("field %q missing, have %v", key, obj.Keys())
		}
		if !valueMatches(actual, expected[key]) {
			return fmt.Sprintf("field %q = %s, want %v", key, describe(actual), expected[key])
		}
	}
	return ""
}

// valueMatches compares by text form, so 3 matches Signed(3) and "3".
// Nested maps match nested objects by subset.
func valueMatches(actual value.Value, expected any) bool {
	if m, ok := expected.(map[string]any); ok {
		obj, ok := actual.(*value.Object)
		return ok && matchValues(obj, m) == ""
	}
	want, err := value.FromAny(expected)
	if err != nil {
		return false
	}
	return actual.String() == want.String()
}

func describe(v value.Value) string {
	return fmt.Sprintf("%q (%s)", v.String(), v.Type())
}

func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
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

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, h *Harness) []string {
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
		case AssertFinalState:
			if h == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a database", i)
			} else {
				err = h.assertFinalState(ctx, assertion)
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
