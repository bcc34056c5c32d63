// Package rollout drives rolling maintenance across a fleet of nodes:
// a connectivity gate, then one node at a time through a bounded retry
// budget, with reboot-completion detection where the action calls for
// it. Nodes are processed strictly sequentially; exhausting a node's
// retry budget halts the whole run.
package rollout

import (
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Action is the maintenance operation applied to every node in the run.
// Exactly one action is chosen at start and is immutable thereafter.
type Action string

const (
	// ActionUpdateConfigs applies the configuration state and restarts
	// the managed service.
	ActionUpdateConfigs Action = "update-configs"
	// ActionUpdateSystem upgrades all packages, optionally rebooting
	// afterwards.
	ActionUpdateSystem Action = "update-system"
	// ActionRebootHost reboots the node and waits for its uptime to
	// reset.
	ActionRebootHost Action = "reboot-host"
)

// Options is the explicit run context threaded through every component:
// targets, the chosen action, and all retry and timing constants. Zero
// values are replaced by defaults in New.
type Options struct {
	Nodes   []string
	Exclude []string
	Action  Action
	Reboot  bool // reboot after update-system

	// Retries is the fleet-level budget of attempts per node.
	Retries int
	// ServiceRetries and ServiceBackoff govern the local restart loop
	// nested inside a single fleet-level attempt.
	ServiceRetries int
	ServiceBackoff time.Duration
	// RestartDelay is the pause between issuing a restart and checking
	// the service status.
	RestartDelay time.Duration
	// RebootTimeout and RebootPeriod bound the reboot-wait poll loop.
	RebootTimeout time.Duration
	RebootPeriod  time.Duration

	Service     string         // managed service name
	ConfigState string         // state applied by update-configs
	Pillar      map[string]any // pillar data for the config state

	RunID  string
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Retries == 0 {
		o.Retries = 3
	}
	if o.ServiceRetries == 0 {
		o.ServiceRetries = 3
	}
	if o.ServiceBackoff == 0 {
		o.ServiceBackoff = 5 * time.Second
	}
	if o.RestartDelay == 0 {
		o.RestartDelay = 2 * time.Second
	}
	if o.RebootTimeout == 0 {
		o.RebootTimeout = 5 * time.Minute
	}
	if o.RebootPeriod == 0 {
		o.RebootPeriod = 10 * time.Second
	}
	if o.Service == "" {
		o.Service = "haproxy"
	}
	if o.ConfigState == "" {
		o.ConfigState = "haproxy.update_configs"
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Targets returns nodes minus the excluded ones, preserving the order
// supplied by the operator.
func Targets(nodes, exclude []string) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if !slices.Contains(exclude, n) {
			out = append(out, n)
		}
	}
	return out
}

// FleetOutcome is the aggregate result of one run: either all nodes
// succeeded, or the run halted at HaltedAt with Err. Nodes already in
// Completed are never rolled back.
type FleetOutcome struct {
	RunID     string
	Action    Action
	Completed []string
	HaltedAt  string
	Err       error
	Elapsed   time.Duration
}

// Succeeded reports whether every node completed.
func (o *FleetOutcome) Succeeded() bool {
	return o.Err == nil
}
