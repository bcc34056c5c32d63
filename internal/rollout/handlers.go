package rollout

import (
	"context"
	"fmt"

	"github.com/tinkerbelle-io/tb-rollout/internal/salt"
)

// updateConfigs applies the configuration state and then restarts the
// managed service. The restart is part of the same attempt: its failure
// fails the whole updateConfigs invocation.
func (o *Orchestrator) updateConfigs(ctx context.Context, node string) error {
	o.log.Info("updating configuration files", "node", node, "state", o.opts.ConfigState)

	res, err := o.exec.ApplyState(ctx, node, o.opts.ConfigState, o.opts.Pillar)
	if err != nil {
		return fmt.Errorf("apply %s on %s: %w", o.opts.ConfigState, node, err)
	}
	if err := salt.CheckStateRun(node, res); err != nil {
		return err
	}

	return o.restartService(ctx, node)
}

// restartService restarts the service, waits briefly, and checks its
// status. A false status consumes a local retry counter with its own
// backoff, separate from and nested inside the fleet-level budget, so
// the update-configs path can see up to Retries*ServiceRetries restart
// attempts in total.
func (o *Orchestrator) restartService(ctx context.Context, node string) error {
	tries := o.opts.ServiceRetries

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		o.log.Info("restarting service", "service", o.opts.Service, "node", node)
		if _, err := o.exec.BoolCommand(ctx, node, "service.restart", o.opts.Service); err != nil {
			return fmt.Errorf("restart %s on %s: %w", o.opts.Service, node, err)
		}

		// Give the service a moment before checking on it.
		o.clk.Sleep(o.opts.RestartDelay)

		up, err := o.exec.BoolCommand(ctx, node, "service.status", o.opts.Service)
		if err != nil {
			return fmt.Errorf("status of %s on %s: %w", o.opts.Service, node, err)
		}
		if up {
			return nil
		}

		tries--
		if tries == 0 {
			return &ServiceRestartError{Node: node, Service: o.opts.Service, Attempts: o.opts.ServiceRetries}
		}
		o.log.Warn("service failed to start",
			"service", o.opts.Service, "node", node, "retries_left", tries)
		o.clk.Sleep(o.opts.ServiceBackoff)
	}
}

// updateSystem upgrades all packages on the node and, when the reboot
// flag is set for the run, reboots it.
func (o *Orchestrator) updateSystem(ctx context.Context, node string) error {
	o.log.Info("updating all system packages", "node", node)

	res, err := o.exec.Upgrade(ctx, node, true)
	if err != nil {
		return fmt.Errorf("pkg.upgrade on %s: %w", node, err)
	}
	if err := salt.CheckStateRun(node, res); err != nil {
		return err
	}

	if o.opts.Reboot {
		return o.rebootHost(ctx, node)
	}
	return nil
}
