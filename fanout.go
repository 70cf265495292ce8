package corofleet

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// defaultFanoutLimit bounds how many nodes an operation touches at once.
const defaultFanoutLimit = 16

// NodeResult is the outcome of one node in a fan-out batch.
type NodeResult struct {
	Node    string
	OK      bool
	Message string
	Err     error
}

// Results holds the per-node outcomes of a batch in input node order.
type Results []NodeResult

// Succeeded returns the nodes that completed the operation.
func (rs Results) Succeeded() []string {
	var out []string
	for _, r := range rs {
		if r.OK {
			out = append(out, r.Node)
		}
	}
	return out
}

// Failed returns the results of nodes that failed, in input order.
func (rs Results) Failed() Results {
	var out Results
	for _, r := range rs {
		if !r.OK {
			out = append(out, r)
		}
	}
	return out
}

// Err folds the batch into a single error, or nil when every node succeeded.
func (rs Results) Err(op string) error {
	if len(rs.Failed()) == 0 {
		return nil
	}
	return &NodeErrors{Op: op, Results: rs}
}

// NodeOp is one per-node step of a fleet operation.
type NodeOp func(ctx context.Context, node string) error

// NodeFanout runs a NodeOp against many nodes in parallel, bounded by a
// weighted semaphore so a large fleet cannot exhaust local sockets.
type NodeFanout struct {
	logger *slog.Logger
	limit  int64
}

// NewNodeFanout builds a dispatcher. A limit of zero or less selects the
// default bound.
func NewNodeFanout(logger *slog.Logger, limit int) *NodeFanout {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = defaultFanoutLimit
	}
	return &NodeFanout{
		logger: logger.With("component", "fanout"),
		limit:  int64(limit),
	}
}

// Run applies op to every node and collects the outcomes. Results come back
// in the same order as nodes regardless of completion order. Run itself only
// fails when the context dies before all nodes were even dispatched.
func (f *NodeFanout) Run(ctx context.Context, label string, nodes []string, op NodeOp) (Results, error) {
	results := make(Results, len(nodes))
	sem := semaphore.NewWeighted(f.limit)
	var wg sync.WaitGroup

	for i, node := range nodes {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Mark everything not yet dispatched as failed on the context.
			for j := i; j < len(nodes); j++ {
				results[j] = NodeResult{Node: nodes[j], Message: err.Error(), Err: err}
			}
			wg.Wait()
			return results, err
		}
		wg.Add(1)
		go func(i int, node string) {
			defer wg.Done()
			defer sem.Release(1)
			err := op(ctx, node)
			if err != nil {
				f.logger.Warn("node operation failed",
					"op", label, "node", node, "error", err)
				results[i] = NodeResult{Node: node, Message: err.Error(), Err: err}
				return
			}
			f.logger.Debug("node operation done", "op", label, "node", node)
			results[i] = NodeResult{Node: node, OK: true}
		}(i, node)
	}

	wg.Wait()
	return results, nil
}
