package salt

import (
	"fmt"
	"log/slog"
	"sort"
)

// CompileError means the remote state definition could not be parsed, so
// no per-state inspection is possible. Output carries the raw error
// payload for diagnostics.
type CompileError struct {
	Node   string
	Output []string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("state run on %s failed to compile: %v", e.Node, e.Output)
}

// StateError means a specific remote state executed and reported failure.
type StateError struct {
	Node    string
	State   string
	Comment string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state %q on %s failed: %s", e.State, e.Node, e.Comment)
}

// CheckStateRun decides whether a state run on one node succeeded.
//
// A compile-failure shape fails immediately. Otherwise the aggregate
// judgment is consulted first: every state must carry an explicit true
// result. If the aggregate fails, the states are scanned in sorted order
// for the first entry with an explicit false result. If the aggregate
// reports failure but the scan finds no failing state, a warning is
// logged and the run is treated as successful anyway, a known leniency
// kept on purpose, since absent result flags are not failure signals.
func CheckStateRun(node string, res *StateRunResult) error {
	log := slog.Default().With("component", "saltcheck")
	log.Debug("checking state run return", "node", node, "states", len(res.States))

	if res.IsCompileFailure() {
		log.Error("state run failed to compile", "node", node, "output", res.Output())
		return &CompileError{Node: node, Output: res.Compile}
	}

	if aggregateSucceeded(res.States) {
		return nil
	}

	names := make([]string, 0, len(res.States))
	for name := range res.States {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := res.States[name]
		if st.Result != nil && !*st.Result {
			log.Error("a state failed on node",
				"node", node, "state", name, "comment", st.Comment)
			return &StateError{Node: node, State: name, Comment: st.Comment}
		}
	}

	log.Warn("state checker reported a failed run but no failing state was found, continuing",
		"node", node, "states", len(res.States))
	return nil
}

// aggregateSucceeded is the target-level judgment: every state must
// report an explicit true result.
func aggregateSucceeded(states map[string]StateResult) bool {
	for _, st := range states {
		if st.Result == nil || !*st.Result {
			return false
		}
	}
	return true
}

// Output renders the compile payload for logging.
func (r *StateRunResult) Output() string {
	return fmt.Sprint(r.Compile)
}
