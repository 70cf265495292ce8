package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozanturksever/corofleet"
)

var setupCmd = &cobra.Command{
	Use:   "setup --name <cluster> <node>...",
	Short: "Create a cluster from the given nodes",
	Long: `Create the cluster configuration and distribute it to every node.

Each node is given as "ring0-addr" or "ring0-addr,ring1-addr" for
redundant-ring clusters. A two node cluster automatically gets the
two_node quorum marker unless auto_tie_breaker is requested.

Example:
  corofleet setup --name mycluster node1 node2 node3
  corofleet setup --name mycluster --transport udp --addr0 192.168.1.0 node1 node2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)

	setupCmd.Flags().String("name", "", "Cluster name (required)")
	setupCmd.Flags().String("transport", "", "Transport: udp or udpu (default udpu)")
	setupCmd.Flags().String("rrp-mode", "", "Redundant ring mode: passive or active")
	setupCmd.Flags().Bool("ipv6", false, "Configure the transport for IPv6")
	setupCmd.Flags().String("addr0", "", "Ring 0 bind network address (udp only)")
	setupCmd.Flags().String("addr1", "", "Ring 1 bind network address (udp only)")
	setupCmd.Flags().Bool("broadcast0", false, "Use broadcast on ring 0")
	setupCmd.Flags().Bool("broadcast1", false, "Use broadcast on ring 1")
	setupCmd.Flags().String("mcast0", "", "Ring 0 multicast address")
	setupCmd.Flags().String("mcast1", "", "Ring 1 multicast address")
	setupCmd.Flags().String("mcastport0", "", "Ring 0 multicast port")
	setupCmd.Flags().String("mcastport1", "", "Ring 1 multicast port")
	setupCmd.Flags().String("ttl0", "", "Ring 0 multicast TTL")
	setupCmd.Flags().String("ttl1", "", "Ring 1 multicast TTL")
	setupCmd.Flags().StringToString("totem", nil, "Totem timing options (key=value pairs)")
	setupCmd.Flags().StringToString("quorum", nil, "Quorum behavior options (key=value pairs)")
	setupCmd.Flags().Bool("legacy", false, "Generate configuration for the legacy stack")
	setupCmd.Flags().Bool("local", false, "Write the configuration to this host only")
	setupCmd.Flags().Bool("enable", false, "Enable cluster services on boot on all nodes")
	setupCmd.Flags().Bool("start", false, "Start cluster services on all nodes")
	setupCmd.Flags().Bool("wait", false, "Wait for started nodes to come up")
	setupCmd.Flags().Bool("force", false, "Downgrade most validation errors to warnings")

	setupCmd.MarkFlagRequired("name")
}

func runSetup(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	totem, _ := cmd.Flags().GetStringToString("totem")
	quorumOpts, _ := cmd.Flags().GetStringToString("quorum")

	opts := corofleet.SetupOptions{
		Totem:  totem,
		Quorum: quorumOpts,
	}
	opts.Transport, _ = cmd.Flags().GetString("transport")
	opts.RRPMode, _ = cmd.Flags().GetString("rrp-mode")
	opts.IPv6, _ = cmd.Flags().GetBool("ipv6")
	opts.Addr0, _ = cmd.Flags().GetString("addr0")
	opts.Addr1, _ = cmd.Flags().GetString("addr1")
	opts.Broadcast0, _ = cmd.Flags().GetBool("broadcast0")
	opts.Broadcast1, _ = cmd.Flags().GetBool("broadcast1")
	opts.Mcast0, _ = cmd.Flags().GetString("mcast0")
	opts.Mcast1, _ = cmd.Flags().GetString("mcast1")
	opts.McastPort0, _ = cmd.Flags().GetString("mcastport0")
	opts.McastPort1, _ = cmd.Flags().GetString("mcastport1")
	opts.TTL0, _ = cmd.Flags().GetString("ttl0")
	opts.TTL1, _ = cmd.Flags().GetString("ttl1")
	opts.Force, _ = cmd.Flags().GetBool("force")

	req := corofleet.SetupRequest{
		Name:    name,
		Nodes:   args,
		Options: opts,
	}
	req.Legacy, _ = cmd.Flags().GetBool("legacy")
	req.LocalOnly, _ = cmd.Flags().GetBool("local")
	req.Enable, _ = cmd.Flags().GetBool("enable")
	req.Start, _ = cmd.Flags().GetBool("start")
	req.Wait, _ = cmd.Flags().GetBool("wait")

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	reports, err := coord.Setup(cmd.Context(), req)
	printReports(reports)
	if err != nil {
		return err
	}
	fmt.Printf("Cluster %s created\n", name)
	return nil
}
