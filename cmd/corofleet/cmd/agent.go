package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ozanturksever/corofleet"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the node agent",
	Long: `Start the per-node agent that coordinators talk to.

The agent owns this host's cluster configuration and services. It answers
membership, lifecycle and status requests over NATS until interrupted.

Example:
  corofleet agent --node-addr node1 --nats nats://nats.internal:4222`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)

	agentCmd.Flags().String("metrics-addr", "", "Prometheus metrics HTTP address (empty disables metrics)")
	viper.BindPFlag("metrics_addr", agentCmd.Flags().Lookup("metrics-addr"))
}

func runAgent(cmd *cobra.Command, args []string) error {
	node := getNodeAddr()
	if node == "" {
		return fmt.Errorf("local node address is required (use --node-addr or set NODE_ADDR)")
	}

	nc, err := nats.Connect(getNATSURL(),
		nats.Name("corofleet-agent-"+node),
		nats.MaxReconnects(-1))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	logger := newLogger()
	agent, err := corofleet.NewAgent(node, nc, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if addr := viper.GetString("metrics_addr"); addr != "" {
		metrics := corofleet.NewMetrics(node, addr)
		if err := metrics.Start(ctx); err != nil {
			return err
		}
		defer metrics.Stop()
	}

	if err := agent.Start(ctx); err != nil {
		return err
	}
	defer agent.Stop()

	fmt.Printf("corofleet agent running for node %s\n", node)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	fmt.Println("shutting down")
	return nil
}
