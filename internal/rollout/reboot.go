package rollout

import (
	"context"
	"fmt"
)

// rebootHost reboots a node and blocks until it is confirmed back, or
// fails after a bounded wait.
//
// Confirmation is strict: the node counts as rebooted only when a probe
// reports an uptime smaller than the baseline captured before the
// reboot was issued. A probe that fails outright means the host is
// likely mid-boot; a probe that answers with the old (equal or larger)
// uptime means the reboot has not happened yet. Both cases consume
// timeout budget, so a node that silently ignores the reboot command
// exhausts the window even while it keeps responding.
func (o *Orchestrator) rebootHost(ctx context.Context, node string) error {
	st, err := o.exec.Uptime(ctx, node)
	if err != nil {
		return fmt.Errorf("uptime baseline for %s: %w", node, err)
	}
	baseline := st.Seconds

	o.log.Info("rebooting host", "node", node, "uptime_s", baseline)
	if err := o.exec.Reboot(ctx, node); err != nil {
		return fmt.Errorf("reboot %s: %w", node, err)
	}

	remaining := o.opts.RebootTimeout
	period := o.opts.RebootPeriod

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		o.log.Info("probing host for uptime reset", "node", node, "remaining", remaining)
		st, err := o.exec.Uptime(ctx, node)
		switch {
		case err != nil:
			o.log.Info("no response from host, likely still booting", "node", node)
		case st.Seconds < baseline:
			o.log.Info("host has completed rebooting", "node", node, "uptime_s", st.Seconds)
			return nil
		default:
			o.log.Info("waiting for host to begin rebooting",
				"node", node, "uptime_s", st.Seconds)
		}

		remaining -= period
		o.clk.Sleep(period)
	}

	o.log.Error("timed out waiting for host to come back", "node", node)
	return &RebootTimeoutError{Node: node, Timeout: o.opts.RebootTimeout}
}
