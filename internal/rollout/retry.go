package rollout

import (
	"context"

	"github.com/tinkerbelle-io/tb-rollout/internal/salt"
)

// retry wraps one node's full action with the fleet-level retry budget.
// Every failure re-runs the handler from scratch; the budget never goes
// negative, and reaching zero is terminal for the whole run. On the
// shim transport, shim state is wiped between attempts.
func (o *Orchestrator) retry(ctx context.Context, node string, fn handlerFunc) error {
	remaining := o.opts.Retries
	var last error

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, node)
		if err == nil {
			return nil
		}
		last = err
		remaining--

		o.log.Warn("work on node failed",
			"node", node, "retries_left", remaining, "error", err)
		if remaining == 0 {
			break
		}

		if o.exec.Mode() == salt.ModeSSH {
			o.log.Warn("wiping salt-ssh shim before next retry", "node", node)
			if werr := o.exec.WipeShim(ctx, node); werr != nil {
				o.log.Warn("shim wipe failed", "node", node, "error", werr)
			}
		}
	}

	return &RetryExhaustedError{Node: node, Attempts: o.opts.Retries, Last: last}
}
