package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tinkerbelle-io/tb-rollout/internal/rollout"
)

var rebootHostCmd = &cobra.Command{
	Use:   "reboot-host",
	Short: "Reboot each node and wait for it to come back",
	Long: `Reboot each node in turn, usually to finish installing a new kernel.
The run captures the node's uptime first and only moves on once a probe
reports a strictly smaller uptime, proving the reboot actually happened.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(rollout.ActionRebootHost, false)
	},
}

func init() {
	rootCmd.AddCommand(rebootHostCmd)
}
