package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Permanently remove the cluster from this host",
	Long: `Stop the cluster services, kill any lingering daemons and purge the
configuration and state files. With --all every member of the cluster is
destroyed, remote nodes first. Destroy always runs to completion; problems
along the way are reported as warnings.`,
	RunE: runDestroy,
}

func init() {
	rootCmd.AddCommand(destroyCmd)
	destroyCmd.Flags().Bool("all", false, "Destroy the cluster on every node")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	if all {
		printReports(coord.DestroyAll(cmd.Context()))
		fmt.Println("Cluster destroyed on all nodes")
		return nil
	}
	printReports(coord.DestroyLocal(cmd.Context()))
	fmt.Println("Cluster destroyed")
	return nil
}
