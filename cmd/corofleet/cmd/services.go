package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozanturksever/corofleet"
)

var startCmd = &cobra.Command{
	Use:   "start [node]...",
	Short: "Start cluster services",
	Long: `Start cluster services on the given nodes, on every node with
--all, or on this host when no node is given.`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop [node]...",
	Short: "Stop cluster services",
	Long: `Stop cluster services on the given nodes, on every node with
--all, or on this host when no node is given. A stop that would cost the
cluster its quorum is refused unless --force is given.`,
	RunE: runStop,
}

var enableCmd = &cobra.Command{
	Use:   "enable [node]...",
	Short: "Enable cluster services on boot",
	RunE:  runEnable,
}

var disableCmd = &cobra.Command{
	Use:   "disable [node]...",
	Short: "Disable cluster services on boot",
	RunE:  runDisable,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)

	for _, cmd := range []*cobra.Command{startCmd, stopCmd, enableCmd, disableCmd} {
		cmd.Flags().Bool("all", false, "Apply to every node in the cluster")
	}
	startCmd.Flags().Bool("wait", false, "Wait for the nodes to come up")
	stopCmd.Flags().Bool("wait", false, "Wait for the nodes to go down")
	stopCmd.Flags().Bool("force", false, "Stop even if the cluster loses its quorum")
}

// resolveTargets turns command arguments into a node list. Empty with --all
// means every configured member; empty without --all means the local host.
func resolveTargets(ctx context.Context, coord *corofleet.MembershipCoordinator, args []string, all bool) ([]string, error) {
	if all {
		text, err := coord.CorosyncConf(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("reading cluster configuration: %w", err)
		}
		cfg, err := corofleet.ParseClusterConfig(text)
		if err != nil {
			return nil, fmt.Errorf("parsing cluster configuration: %w", err)
		}
		return cfg.NodeAddresses(), nil
	}
	return args, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	wait, _ := cmd.Flags().GetBool("wait")

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	nodes, err := resolveTargets(cmd.Context(), coord, args, all)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		if err := coord.StartLocal(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Cluster services started")
		return nil
	}
	if _, err := coord.StartNodes(cmd.Context(), nodes, wait); err != nil {
		return err
	}
	fmt.Printf("Cluster services started on %d node(s)\n", len(nodes))
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	wait, _ := cmd.Flags().GetBool("wait")
	force, _ := cmd.Flags().GetBool("force")

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	nodes, err := resolveTargets(cmd.Context(), coord, args, all)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		if err := coord.StopLocal(cmd.Context(), force); err != nil {
			return err
		}
		fmt.Println("Cluster services stopped")
		return nil
	}
	if _, err := coord.StopNodes(cmd.Context(), nodes, all, force, wait); err != nil {
		return err
	}
	fmt.Printf("Cluster services stopped on %d node(s)\n", len(nodes))
	return nil
}

func runEnable(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	nodes, err := resolveTargets(cmd.Context(), coord, args, all)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		if err := coord.EnableLocal(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Cluster services enabled")
		return nil
	}
	if _, err := coord.EnableNodes(cmd.Context(), nodes); err != nil {
		return err
	}
	fmt.Printf("Cluster services enabled on %d node(s)\n", len(nodes))
	return nil
}

func runDisable(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	nodes, err := resolveTargets(cmd.Context(), coord, args, all)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		if err := coord.DisableLocal(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Cluster services disabled")
		return nil
	}
	if _, err := coord.DisableNodes(cmd.Context(), nodes); err != nil {
		return err
	}
	fmt.Printf("Cluster services disabled on %d node(s)\n", len(nodes))
	return nil
}
