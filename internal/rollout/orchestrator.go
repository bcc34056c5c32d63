package rollout

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tinkerbelle-io/tb-rollout/internal/salt"
)

// handlerFunc performs the configured action on one node. Handlers are
// not resumable: each retry re-executes the whole sequence.
type handlerFunc func(ctx context.Context, node string) error

// Orchestrator runs one fleet maintenance pass.
type Orchestrator struct {
	exec     salt.Executor
	opts     Options
	clk      clock
	log      *slog.Logger
	handlers map[Action]handlerFunc
}

// New builds an orchestrator for the given executor and options.
func New(exec salt.Executor, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	o := &Orchestrator{
		exec: exec,
		opts: opts,
		clk:  realClock{},
		log:  opts.Logger.With("component", "rollout", "run_id", opts.RunID),
	}
	o.handlers = map[Action]handlerFunc{
		ActionUpdateConfigs: o.updateConfigs,
		ActionUpdateSystem:  o.updateSystem,
		ActionRebootHost:    o.rebootHost,
	}
	return o
}

// Run executes the full pass: connectivity gate, then each node in the
// supplied order through the retry controller. The first fatal failure
// halts the run immediately; remaining nodes are never attempted.
func (o *Orchestrator) Run(ctx context.Context) (*FleetOutcome, error) {
	start := o.clk.Now()
	outcome := &FleetOutcome{RunID: o.opts.RunID, Action: o.opts.Action}

	finish := func(err error) (*FleetOutcome, error) {
		outcome.Err = err
		outcome.Elapsed = o.clk.Now().Sub(start)
		return outcome, err
	}

	handler, ok := o.handlers[o.opts.Action]
	if !ok {
		return finish(fmt.Errorf("unknown action %q", o.opts.Action))
	}

	nodes := Targets(o.opts.Nodes, o.opts.Exclude)
	if len(nodes) == 0 {
		return finish(fmt.Errorf("no target nodes after exclusions"))
	}

	if err := o.checkConnectivity(ctx, nodes); err != nil {
		return finish(err)
	}

	for _, node := range nodes {
		o.log.Info("beginning work on node", "node", node, "action", o.opts.Action)
		if err := o.retry(ctx, node, handler); err != nil {
			o.log.Error("halting run", "node", node, "error", err)
			outcome.HaltedAt = node
			return finish(err)
		}
		outcome.Completed = append(outcome.Completed, node)
	}

	outcome.Elapsed = o.clk.Now().Sub(start)
	o.log.Info("finished", "nodes", len(outcome.Completed), "elapsed", outcome.Elapsed)
	return outcome, nil
}

// checkConnectivity is the hard precondition gate: a single ping across
// the entire target set. Any non-responder aborts the run before any
// action is taken on any node.
func (o *Orchestrator) checkConnectivity(ctx context.Context, nodes []string) error {
	o.log.Info("pinging all nodes to confirm connectivity", "nodes", len(nodes))

	up, err := o.exec.Ping(ctx, nodes)
	if err != nil {
		return fmt.Errorf("connectivity probe: %w", err)
	}

	var down []string
	for _, node := range nodes {
		if !up[node] {
			down = append(down, node)
		}
	}
	if len(down) > 0 {
		sort.Strings(down)
		for _, node := range down {
			o.log.Error("node did not respond to ping", "node", node)
		}
		return &ConnectivityError{Unreachable: down}
	}

	o.log.Info("all nodes responded to ping, continuing")
	return nil
}
