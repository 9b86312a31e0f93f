package main

import (
	"github.com/spf13/cobra"

	"github.com/aisleco/aisle-open/cmd/cli/internal/cluster"
)

// clusterCmd represents the cluster command
var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster commands",
	Long:  `Commands for inspecting the booking cluster.`,
}

// clusterStatusCmd represents the cluster status command
var clusterStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of every node",
	Long:  `Query every configured endpoint and show its role, term and log position.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cluster.Status()
	},
}

// clusterWatchCmd represents the cluster watch command
var clusterWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream booking events",
	Long:  `Stream committed booking events from the cluster until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cluster.Watch()
	},
}

// clusterLogsCmd represents the cluster logs command
var clusterLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail a node's log stream",
	Long:  `Stream log entries from the first reachable node until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cluster.Logs()
	},
}

func init() {
	clusterCmd.AddCommand(clusterStatusCmd)
	clusterCmd.AddCommand(clusterWatchCmd)
	clusterCmd.AddCommand(clusterLogsCmd)
}
