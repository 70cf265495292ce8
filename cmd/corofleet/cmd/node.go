package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozanturksever/corofleet"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Grow and shrink the cluster membership",
}

var nodeAddCmd = &cobra.Command{
	Use:   "add <ring0-addr[,ring1-addr]>",
	Short: "Add a node to the cluster",
	Long: `Add a node to the cluster. Every existing member is told about the
new entry first; the change stands as long as at least one member accepted
it. Then the full configuration is sent to the new node.`,
	Args: cobra.ExactArgs(1),
	RunE: runNodeAdd,
}

var nodeRemoveCmd = &cobra.Command{
	Use:   "remove <ring0-addr>",
	Short: "Remove a node from the cluster",
	Long: `Remove a node from the cluster. The node is torn down before the
remaining members forget about it. Removals that would cost the cluster its
quorum are refused unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runNodeRemove,
}

var nodeAddLocalCmd = &cobra.Command{
	Use:   "add-local <ring0-addr[,ring1-addr]>",
	Short: "Add a node to this host's configuration only",
	Args:  cobra.ExactArgs(1),
	RunE:  runNodeAddLocal,
}

var nodeRemoveLocalCmd = &cobra.Command{
	Use:   "remove-local <ring0-addr>",
	Short: "Remove a node from this host's configuration only",
	Args:  cobra.ExactArgs(1),
	RunE:  runNodeRemoveLocal,
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.AddCommand(nodeAddCmd)
	nodeCmd.AddCommand(nodeRemoveCmd)
	nodeCmd.AddCommand(nodeAddLocalCmd)
	nodeCmd.AddCommand(nodeRemoveLocalCmd)

	nodeAddCmd.Flags().Bool("enable", false, "Enable cluster services on boot on the new node")
	nodeAddCmd.Flags().Bool("start", false, "Start cluster services on the new node")
	nodeAddCmd.Flags().Bool("wait", false, "Wait for the new node to come up")
	nodeAddCmd.Flags().Bool("force", false, "Add the node even if it already carries cluster state")

	nodeRemoveCmd.Flags().Bool("force", false, "Skip the quorum check and tolerate an unreachable node")
}

func runNodeAdd(cmd *cobra.Command, args []string) error {
	req := corofleet.AddNodeRequest{Node: args[0]}
	req.Enable, _ = cmd.Flags().GetBool("enable")
	req.Start, _ = cmd.Flags().GetBool("start")
	req.Wait, _ = cmd.Flags().GetBool("wait")
	req.Force, _ = cmd.Flags().GetBool("force")

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	reports, err := coord.AddNode(cmd.Context(), req)
	printReports(reports)
	if err != nil {
		return err
	}
	fmt.Printf("Node %s added\n", args[0])
	return nil
}

func runNodeRemove(cmd *cobra.Command, args []string) error {
	req := corofleet.RemoveNodeRequest{Node: args[0]}
	req.Force, _ = cmd.Flags().GetBool("force")

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	reports, err := coord.RemoveNode(cmd.Context(), req)
	printReports(reports)
	if err != nil {
		return err
	}
	fmt.Printf("Node %s removed\n", args[0])
	return nil
}

func runNodeAddLocal(cmd *cobra.Command, args []string) error {
	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	entry, err := coord.LocalNodeAdd(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Node %s added as nodeid %d\n", entry.Ring0Addr, entry.ID)
	return nil
}

func runNodeRemoveLocal(cmd *cobra.Command, args []string) error {
	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := coord.LocalNodeRemove(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Node %s removed\n", args[0])
	return nil
}
