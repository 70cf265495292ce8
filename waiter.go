package corofleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Polling defaults for waiting on nodes to reach a target state.
const (
	DefaultWaitTimeout  = 900 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// Probe checks once whether a node has reached the target state. A nil
// return means converged; any other error means not yet, except fatal
// communication errors which abort the wait for that node.
type Probe func(ctx context.Context, node string) error

// ConvergenceWaiter polls nodes until they reach a target state or the
// deadline passes. Fatal communication errors fail a node immediately since
// no amount of waiting cures bad credentials or a bad address.
type ConvergenceWaiter struct {
	logger   *slog.Logger
	fanout   *NodeFanout
	timeout  time.Duration
	interval time.Duration
}

// WaiterOption adjusts a ConvergenceWaiter.
type WaiterOption func(*ConvergenceWaiter)

// WithWaitTimeout overrides the overall deadline.
func WithWaitTimeout(d time.Duration) WaiterOption {
	return func(w *ConvergenceWaiter) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithPollInterval overrides the delay between probes.
func WithPollInterval(d time.Duration) WaiterOption {
	return func(w *ConvergenceWaiter) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewConvergenceWaiter builds a waiter sharing the coordinator's fan-out.
func NewConvergenceWaiter(logger *slog.Logger, fanout *NodeFanout, opts ...WaiterOption) *ConvergenceWaiter {
	if logger == nil {
		logger = slog.Default()
	}
	w := &ConvergenceWaiter{
		logger:   logger.With("component", "waiter"),
		fanout:   fanout,
		timeout:  DefaultWaitTimeout,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WaitNodes polls every node with probe until all converge. The returned
// Results carry per-node outcomes in input order; the error folds them when
// at least one node timed out or failed fatally.
func (w *ConvergenceWaiter) WaitNodes(ctx context.Context, label string, nodes []string, probe Probe) (Results, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	results, _ := w.fanout.Run(ctx, label, nodes, func(ctx context.Context, node string) error {
		return w.waitOne(ctx, label, node, probe)
	})
	return results, results.Err(label)
}

// WaitLocal polls the local node only.
func (w *ConvergenceWaiter) WaitLocal(ctx context.Context, label string, probe Probe) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.waitOne(ctx, label, "", probe)
}

func (w *ConvergenceWaiter) waitOne(ctx context.Context, label, node string, probe Probe) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var lastErr error
	for {
		err := probe(ctx, node)
		if err == nil {
			w.logger.Info("node converged", "op", label, "node", node)
			return nil
		}
		if IsFatalComm(err) {
			w.logger.Error("giving up on node", "op", label, "node", node, "error", err)
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("waiting for %s timed out: %w", label, lastErr)
			}
			return fmt.Errorf("waiting for %s timed out: %w", label, ctx.Err())
		case <-ticker.C:
		}
	}
}
