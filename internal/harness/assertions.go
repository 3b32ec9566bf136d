package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/linkgraph/internal/expr"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/query"
	"github.com/roach88/linkgraph/internal/scalar"
	"github.com/roach88/linkgraph/internal/store"
)

// AssertionError is returned when an assertion fails.
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
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

// evaluateAssertions checks every assertion and returns the failures.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion, result *Result) []string {
	var msgs []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, a, result.Trace); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func (h *Harness) evaluate(ctx context.Context, a Assertion, trace []TraceEvent) error {
	switch a.Type {
	case AssertCount:
		return h.assertCount(ctx, a, trace)
	case AssertExists, AssertMissing:
		return h.assertStored(ctx, a, trace)
	case AssertField:
		return h.assertField(ctx, a, trace)
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func (h *Harness) assertCount(ctx context.Context, a Assertion, trace []TraceEvent) error {
	n, err := h.store.Count(ctx, a.Model)
	if err != nil {
		return err
	}
	if n != int64(a.Count) {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d %s", a.Count, a.Model),
			Actual:   fmt.Sprintf("%d %s", n, a.Model),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertStored(ctx context.Context, a Assertion, trace []TraceEvent) error {
	key := h.key(a.Ref)
	_, err := h.store.Get(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if found == (a.Type == AssertExists) {
		return nil
	}
	want, got := "stored", "not stored"
	if a.Type == AssertMissing {
		want, got = got, want
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s (%s) %s", a.Ref, key, want),
		Actual:   got,
		Trace:    trace,
	}
}

// assertField reads the stored model through the query provider and
// compares one field, converted to the field's declared type.
func (h *Harness) assertField(ctx context.Context, a Assertion, trace []TraceEvent) error {
	key := h.key(a.Ref)
	typeName, _, err := model.SplitKey(key)
	if err != nil {
		return err
	}
	set, err := query.Models(h.provider, typeName)
	if err != nil {
		return err
	}
	m, ok, err := set.Where(func(x *expr.Param) expr.Expr {
		return expr.Eq(expr.Prop(x, "Key"), expr.Const(key))
	}).First(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{Type: AssertField, Expected: key + " stored", Actual: "not stored", Trace: trace}
	}

	info, err := h.reg.Field(typeName, a.Field)
	if err != nil {
		return err
	}
	want, err := scalar.Convert(a.Value, info.Type)
	if err != nil {
		return fmt.Errorf("field %s: %w", a.Field, err)
	}
	got, err := h.reg.Value(m, a.Field)
	if err != nil {
		return err
	}
	if !cmp.Equal(want, got) {
		return &AssertionError{
			Type:     AssertField,
			Expected: fmt.Sprintf("%s.%s = %v", key, a.Field, want),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    trace,
		}
	}
	return nil
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if strings.Contains(event.String(), a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("a step containing %q", a.Text),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}
