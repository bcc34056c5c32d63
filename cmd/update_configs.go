package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tinkerbelle-io/tb-rollout/internal/rollout"
)

var updateConfigsCmd = &cobra.Command{
	Use:   "update-configs",
	Short: "Update service configuration on each node, then restart the service",
	Long: `Apply the configuration state to each node in turn and restart the
managed service. The restart is part of the same attempt: if the service
fails its status check after the local retries, the node's fleet-level
retry budget is consumed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(rollout.ActionUpdateConfigs, false)
	},
}

func init() {
	rootCmd.AddCommand(updateConfigsCmd)
}
