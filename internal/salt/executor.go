// Package salt talks to a Salt installation: it ships named operations
// to minions through one of three transports (local CLI, remote master
// over SSH, salt-api HTTP) and decodes the shape-polymorphic returns.
package salt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Mode selects how commands reach the fleet.
type Mode string

const (
	// ModeMinion pushes commands over the regular minion bus.
	ModeMinion Mode = "minion"
	// ModeSSH drives the salt-ssh shim transport. Shim returns are
	// wrapped in an envelope carrying a retcode, and shim state can be
	// wiped between retries.
	ModeSSH Mode = "ssh"
)

// Binary returns the CLI binary name for the mode.
func (m Mode) Binary() string {
	if m == ModeSSH {
		return "salt-ssh"
	}
	return "salt"
}

// ErrNoResponse marks a probe that the minion did not answer, as opposed
// to an answered probe with an unwanted value.
var ErrNoResponse = errors.New("no response from minion")

// RetcodeError is a nonzero return code from the salt-ssh shim.
type RetcodeError struct {
	Node string
	Code int
}

func (e *RetcodeError) Error() string {
	return fmt.Sprintf("minion %s returned retcode %d", e.Node, e.Code)
}

// Executor ships one named operation to one or more targets and returns
// the per-target result. The caller picks the result shape by choosing
// the operation; shapes are never inferred from runtime types.
type Executor interface {
	// ApplyState runs a state (state.sls) with pillar data and returns
	// the full structured result.
	ApplyState(ctx context.Context, node, state string, pillar map[string]any) (*StateRunResult, error)

	// Upgrade runs a full package upgrade (pkg.upgrade), optionally
	// refreshing package databases first.
	Upgrade(ctx context.Context, node string, refresh bool) (*StateRunResult, error)

	// BoolCommand runs an operation with a bare boolean return, such as
	// service.restart or service.status.
	BoolCommand(ctx context.Context, node, fun string, args ...string) (bool, error)

	// Uptime queries status.uptime. A non-responding minion yields
	// ErrNoResponse.
	Uptime(ctx context.Context, node string) (*UptimeStatus, error)

	// Ping issues a single test.ping across the whole node list and
	// reports which nodes answered.
	Ping(ctx context.Context, nodes []string) (map[string]bool, error)

	// Reboot issues system.reboot. The remote side treats it as
	// fire-and-forget; the connection may drop before a return arrives.
	Reboot(ctx context.Context, node string) error

	// WipeShim clears salt-ssh shim state on the node. Only meaningful
	// in ModeSSH.
	WipeShim(ctx context.Context, node string) error

	// Mode reports which transport variant this executor drives.
	Mode() Mode
}

// unwrap extracts the function return from a per-node payload. Minion
// returns are bare; salt-ssh wraps them in an envelope with a retcode.
func unwrap(mode Mode, node string, raw json.RawMessage) (json.RawMessage, error) {
	if mode != ModeSSH {
		return raw, nil
	}
	var env struct {
		Return  json.RawMessage `json:"return"`
		Retcode *int            `json:"retcode"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Return == nil {
		// Bare payload (older shims, or a bool "no response" marker).
		return raw, nil
	}
	if env.Retcode != nil && *env.Retcode != 0 {
		return env.Return, &RetcodeError{Node: node, Code: *env.Retcode}
	}
	return env.Return, nil
}

// decodeUptime interprets a status.uptime payload. A literal false is
// how an unresponsive minion shows up in the return map.
func decodeUptime(node string, raw json.RawMessage) (*UptimeStatus, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return nil, fmt.Errorf("uptime probe of %s: %w", node, ErrNoResponse)
	}
	var st UptimeStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("uptime payload from %s: %w", node, err)
	}
	return &st, nil
}
