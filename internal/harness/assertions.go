package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/duewatch/internal/model"
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

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s", event.Seq, event.At, event.Step, event.Instance)
		if event.Command != "" {
			fmt.Fprintf(&buf, " %s", event.Command)
		}
		if len(event.Shown) > 0 {
			fmt.Fprintf(&buf, " shown=%v", event.Shown)
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

// evaluate checks every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion, trace []TraceEvent) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertShown:
			err = h.assertShown(a, trace)
		case AssertNotShown:
			err = h.assertNotShown(a, trace)
		case AssertTrayCount:
			err = h.assertCount(a, h.target(a.Instance).tray.Len(), trace)
		case AssertDisplayCount:
			err = h.assertCount(a, h.target(a.Instance).tray.Shows(), trace)
		case AssertRecord:
			err = h.assertRecord(ctx, a, trace)
		case AssertLease:
			err = h.assertLease(ctx, a, trace)
		case AssertArmed:
			err = h.assertArmed(a, trace)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %s", i, err.Error()))
		}
	}

	return errors
}

func (h *Harness) assertShown(a Assertion, trace []TraceEvent) error {
	inst := h.target(a.Instance)
	n, ok := inst.tray.Get(a.Tag)
	if !ok {
		return &AssertionError{
			Type:     AssertShown,
			Expected: fmt.Sprintf("tag %s in tray of %s", a.Tag, inst.name),
			Actual:   fmt.Sprintf("not found among %d notifications", inst.tray.Len()),
			Trace:    trace,
		}
	}

	var mismatches []string
	if a.TitleContains != "" && !strings.Contains(n.Title, a.TitleContains) {
		mismatches = append(mismatches, fmt.Sprintf("title %q does not contain %q", n.Title, a.TitleContains))
	}
	if a.BodyContains != "" && !strings.Contains(n.Body, a.BodyContains) {
		mismatches = append(mismatches, fmt.Sprintf("body %q does not contain %q", n.Body, a.BodyContains))
	}
	if a.Urgency != "" && string(n.Urgency) != a.Urgency {
		mismatches = append(mismatches, fmt.Sprintf("urgency %q, want %q", n.Urgency, a.Urgency))
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertShown,
			Expected: fmt.Sprintf("tag %s matching the assertion", a.Tag),
			Actual:   strings.Join(mismatches, "; "),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertNotShown(a Assertion, trace []TraceEvent) error {
	inst := h.target(a.Instance)
	if n, ok := inst.tray.Get(a.Tag); ok {
		return &AssertionError{
			Type:     AssertNotShown,
			Expected: fmt.Sprintf("tag %s absent from tray of %s", a.Tag, inst.name),
			Actual:   fmt.Sprintf("shown with title %q", n.Title),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertCount(a Assertion, actual int, trace []TraceEvent) error {
	if actual != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d for %s", *a.Count, h.target(a.Instance).name),
			Actual:   fmt.Sprintf("%d", actual),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertRecord(ctx context.Context, a Assertion, trace []TraceEvent) error {
	want := a.Exists == nil || *a.Exists
	_, ok, err := h.store.Get(ctx, a.Collection, a.Key)
	if err != nil {
		return fmt.Errorf("record %s/%s: %w", a.Collection, a.Key, err)
	}
	if ok != want {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("%s/%s exists=%t", a.Collection, a.Key, want),
			Actual:   fmt.Sprintf("exists=%t", ok),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertLease(ctx context.Context, a Assertion, trace []TraceEvent) error {
	holder := ""
	var lease model.Lease
	raw, ok, err := h.store.Get(ctx, model.CollectionLifecycle, model.KeyLease)
	if err != nil {
		return fmt.Errorf("read lease: %w", err)
	}
	if ok && json.Unmarshal(raw, &lease) == nil {
		holder = lease.Instance
	}

	if holder != *a.Holder {
		return &AssertionError{
			Type:     AssertLease,
			Expected: fmt.Sprintf("holder %q", *a.Holder),
			Actual:   fmt.Sprintf("holder %q", holder),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertArmed(a Assertion, trace []TraceEvent) error {
	want := a.Armed == nil || *a.Armed
	inst := h.target(a.Instance)
	armed := !inst.stopped && inst.engine.Armed(a.ID)
	if armed != want {
		return &AssertionError{
			Type:     AssertArmed,
			Expected: fmt.Sprintf("%s armed=%t on %s", a.ID, want, inst.name),
			Actual:   fmt.Sprintf("armed=%t", armed),
			Trace:    trace,
		}
	}
	return nil
}

// matchSubset checks that actual contains everything in expected.
// Maps match by subset, recursively; extra keys in actual are ignored.
// Everything else must be equal.
func matchSubset(actual, expected any) bool {
	expectedMap, ok := expected.(map[string]any)
	if !ok {
		return valuesEqual(actual, expected)
	}
	actualMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, expectedVal := range expectedMap {
		actualVal, exists := actualMap[key]
		if !exists {
			return false
		}
		if !matchSubset(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values for equality.
// Handles nested maps and slices.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	return reflect.DeepEqual(actual, expected)
}
