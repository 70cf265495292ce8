package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var corosyncCmd = &cobra.Command{
	Use:   "corosync [node]",
	Short: "Print the transport configuration of a node",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCorosync,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push this host's configuration to every other member",
	RunE:  runSync,
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Tell the local transport daemon to re-read its configuration",
	RunE:  runReload,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Check the cluster information base for errors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runVerify,
}

var reportCmd = &cobra.Command{
	Use:   "report <dest>",
	Short: "Collect diagnostics into a tarball",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(corosyncCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(reportCmd)

	verifyCmd.Flags().BoolP("verbose-check", "V", false, "More detailed verification output")
	reportCmd.Flags().String("from", "", "Start of the covered time range (YYYY-MM-DD HH:MM:SS)")
	reportCmd.Flags().String("to", "", "End of the covered time range (YYYY-MM-DD HH:MM:SS)")
}

func runCorosync(cmd *cobra.Command, args []string) error {
	node := ""
	if len(args) == 1 {
		node = args[0]
	}

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	text, err := coord.CorosyncConf(cmd.Context(), node)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := coord.Sync(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Configuration synced to %d node(s)\n", len(results.Succeeded()))
	return nil
}

func runReload(cmd *cobra.Command, args []string) error {
	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := coord.ReloadCorosync(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Corosync reloaded")
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	verboseCheck, _ := cmd.Flags().GetBool("verbose-check")
	cibPath := ""
	if len(args) == 1 {
		cibPath = args[0]
	}

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := coord.Verify(cmd.Context(), cibPath, verboseCheck)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Print(out)
	}
	fmt.Println("Cluster verified")
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	const layout = "2006-01-02 15:04:05"

	var from, to time.Time
	if raw, _ := cmd.Flags().GetString("from"); raw != "" {
		var err error
		if from, err = time.Parse(layout, raw); err != nil {
			return fmt.Errorf("invalid --from value %q", raw)
		}
	}
	if raw, _ := cmd.Flags().GetString("to"); raw != "" {
		var err error
		if to, err = time.Parse(layout, raw); err != nil {
			return fmt.Errorf("invalid --to value %q", raw)
		}
	}

	coord, cleanup, err := newCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := coord.Report(cmd.Context(), args[0], from, to)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Print(out)
	}
	return nil
}
