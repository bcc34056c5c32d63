// tb-rollout — TinkerBelle rolling maintenance orchestrator
//
// Performs rolling maintenance across a fleet of Salt minions, one node
// at a time: configuration updates, service restarts, full system
// upgrades, and host reboots with reboot-completion detection.
//
// Usage:
//
//	tb-rollout update-configs -n web-01,web-02      # config state + restart
//	tb-rollout update-system -n web-01 --reboot     # pkg upgrade + reboot
//	tb-rollout reboot-host -n web-01                # reboot and wait
package main

import "github.com/tinkerbelle-io/tb-rollout/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
