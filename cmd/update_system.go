package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tinkerbelle-io/tb-rollout/internal/rollout"
)

var flagReboot bool

var updateSystemCmd = &cobra.Command{
	Use:   "update-system",
	Short: "Upgrade all packages on each node",
	Long: `Run a full package upgrade (with repository refresh) on each node in
turn. With --reboot, each node is rebooted after its upgrade and the run
blocks until the node confirms a fresh boot by reporting a smaller
uptime.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(rollout.ActionUpdateSystem, flagReboot)
	},
}

func init() {
	updateSystemCmd.Flags().BoolVarP(&flagReboot, "reboot", "r", false, "Reboot each node after upgrading it")
	rootCmd.AddCommand(updateSystemCmd)
}
