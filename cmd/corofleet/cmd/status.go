package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the quorum state of the cluster",
	RunE:  runStatus,
}

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Forcibly terminate every cluster daemon on this host",
	RunE:  runKill,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(killCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := coord.QuorumSnapshot(cmd.Context())
	if err != nil {
		return err
	}

	quorate := "no"
	if snap.Quorate {
		quorate = "yes"
	}
	fmt.Printf("Quorate:         %s\n", quorate)
	fmt.Printf("Expected votes:  %d\n", snap.VotesExpected)
	fmt.Printf("Threshold:       %d\n", snap.EffectiveThreshold())
	fmt.Printf("Votes present:   %d\n", snap.VotesPresent())
	if snap.Flags.AutoTieBreaker {
		fmt.Println("Auto tie breaker is active")
	}
	if snap.Flags.LastManStanding {
		fmt.Println("Last man standing is active")
	}

	if len(snap.Nodes) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NODE\tVOTES\tLOCAL")
		for _, node := range snap.Nodes {
			local := ""
			if node.Local {
				local = "*"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", node.Name, node.Votes, local)
		}
		return w.Flush()
	}
	return nil
}

func runKill(cmd *cobra.Command, args []string) error {
	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := coord.KillLocal(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Cluster daemons killed")
	return nil
}
