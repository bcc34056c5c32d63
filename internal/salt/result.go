package salt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StateResult is the outcome of one declared state within a state run.
// Result is tri-state: Salt reports true, false, or nothing at all for
// entries that carry no success flag (e.g. pkg.upgrade change records).
// An absent flag is not a failure signal.
type StateResult struct {
	Result  *bool  `json:"result"`
	Comment string `json:"comment"`
}

// StateRunResult is the structured return of a state run for one node.
// Salt produces one of two mutually exclusive shapes: a mapping from
// state identifier to StateResult, or a bare list of error strings when
// the state definition itself failed to compile. Exactly one of States
// and Compile is set.
type StateRunResult struct {
	States  map[string]StateResult
	Compile []string
}

// IsCompileFailure reports whether the run failed before any state
// executed.
func (r *StateRunResult) IsCompileFailure() bool {
	return r.Compile != nil
}

// UnmarshalJSON branches on the payload shape: a JSON array is a compile
// failure, an object is a per-state result map.
func (r *StateRunResult) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return fmt.Errorf("empty state run payload")
	}

	if trimmed[0] == '[' {
		var entries []any
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("compile error payload: %w", err)
		}
		r.Compile = make([]string, 0, len(entries))
		for _, e := range entries {
			r.Compile = append(r.Compile, fmt.Sprint(e))
		}
		return nil
	}

	var states map[string]StateResult
	if err := json.Unmarshal(data, &states); err != nil {
		return fmt.Errorf("state run payload: %w", err)
	}
	r.States = states
	return nil
}

// UptimeStatus is the return of a status.uptime call. Seconds is the
// field the reboot waiter compares against its pre-reboot baseline.
type UptimeStatus struct {
	Seconds  int64  `json:"seconds"`
	Users    int    `json:"users"`
	Days     int    `json:"days"`
	SinceISO string `json:"since_iso"`
	Time     string `json:"time"`
}
