package salt

import (
	"errors"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestCheckStateRunAllTrueSucceeds(t *testing.T) {
	res := &StateRunResult{States: map[string]StateResult{
		"ensure_installed": {Result: boolPtr(true)},
		"ensure_running":   {Result: boolPtr(true)},
	}}

	if err := CheckStateRun("node-a", res); err != nil {
		t.Errorf("expected success, got %v", err)
	}
}

func TestCheckStateRunCompileFailureRegardlessOfContents(t *testing.T) {
	for _, compile := range [][]string{
		{"Rendering SLS failed"},
		{},
		{"line one", "line two"},
	} {
		res := &StateRunResult{Compile: compile}

		err := CheckStateRun("node-a", res)
		var compileErr *CompileError
		if !errors.As(err, &compileErr) {
			t.Errorf("compile payload %v: expected CompileError, got %v", compile, err)
		}
	}
}

func TestCheckStateRunNamesTheFailingState(t *testing.T) {
	res := &StateRunResult{States: map[string]StateResult{
		"ensure_installed": {Result: boolPtr(true)},
		"ensure_running":   {Result: boolPtr(false), Comment: "service refused to start"},
	}}

	err := CheckStateRun("node-a", res)
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if stateErr.State != "ensure_running" {
		t.Errorf("expected ensure_running, got %q", stateErr.State)
	}
	if stateErr.Comment != "service refused to start" {
		t.Errorf("unexpected comment %q", stateErr.Comment)
	}
	if stateErr.Node != "node-a" {
		t.Errorf("unexpected node %q", stateErr.Node)
	}
}

func TestCheckStateRunScansInSortedOrder(t *testing.T) {
	res := &StateRunResult{States: map[string]StateResult{
		"z_last":  {Result: boolPtr(false), Comment: "later"},
		"a_first": {Result: boolPtr(false), Comment: "earlier"},
	}}

	err := CheckStateRun("node-a", res)
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if stateErr.State != "a_first" {
		t.Errorf("scan must be deterministic, expected a_first, got %q", stateErr.State)
	}
}

func TestCheckStateRunLenientWhenNoFailingStateFound(t *testing.T) {
	// The aggregate judgment fails on the nil result, but the scan only
	// treats explicit false as failure, so the run passes with a
	// warning. Deliberate leniency.
	res := &StateRunResult{States: map[string]StateResult{
		"ensure_installed": {Result: boolPtr(true)},
		"record_changes":   {Result: nil, Comment: "no flag carried"},
	}}

	if err := CheckStateRun("node-a", res); err != nil {
		t.Errorf("expected lenient success, got %v", err)
	}
}
