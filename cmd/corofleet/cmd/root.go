// Package cmd provides the CLI commands for corofleet.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ozanturksever/corofleet"
)

var (
	cfgFile  string
	natsURL  string
	nodeAddr string
	verbose  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "corofleet",
	Short: "Membership lifecycle control plane for corosync clusters",
	Long: `corofleet manages the membership lifecycle of a corosync cluster:
  - Create the cluster configuration and distribute it to every node
  - Grow and shrink the membership with quorum safety checks
  - Start, stop, enable and disable cluster services across the fleet
  - Tear everything down when the cluster is retired

Every node runs a corofleet agent; the CLI talks to the agents over NATS.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.corofleet.yaml)")
	rootCmd.PersistentFlags().StringVarP(&natsURL, "nats", "n", "nats://localhost:4222", "NATS server URL")
	rootCmd.PersistentFlags().StringVar(&nodeAddr, "node-addr", "", "Local node address (default: hostname)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Bind flags to viper
	viper.BindPFlag("nats_url", rootCmd.PersistentFlags().Lookup("nats"))
	viper.BindPFlag("node_addr", rootCmd.PersistentFlags().Lookup("node-addr"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Environment variable bindings
	viper.BindEnv("nats_url", "NATS_URL")
	viper.BindEnv("node_addr", "NODE_ADDR")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Warning: could not find home directory:", err)
		} else {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/corofleet")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".corofleet")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// getNATSURL returns the NATS URL from config or flag.
func getNATSURL() string {
	if natsURL != "" {
		return natsURL
	}
	return viper.GetString("nats_url")
}

// getNodeAddr returns the local node address from config, flag, or hostname.
func getNodeAddr() string {
	if nodeAddr != "" {
		return nodeAddr
	}
	if addr := viper.GetString("node_addr"); addr != "" {
		return addr
	}
	hostname, _ := os.Hostname()
	return hostname
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose || viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newCoordinator connects to NATS and builds a coordinator. The returned
// cleanup closes the connection.
func newCoordinator() (*corofleet.MembershipCoordinator, func(), error) {
	nc, err := nats.Connect(getNATSURL())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger := newLogger()
	client := corofleet.NewNATSClient(nc, logger)
	coord, err := corofleet.NewCoordinator(getNodeAddr(), client,
		corofleet.WithLogger(logger))
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return coord, nc.Close, nil
}

// printReports writes warnings and errors to stderr.
func printReports(reports corofleet.Reports) {
	if len(reports) > 0 {
		fmt.Fprintln(os.Stderr, reports.String())
	}
}
