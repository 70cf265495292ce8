// Package corofleet is the control plane for a corosync-style HA cluster. It
// builds and validates the membership transport configuration, predicts
// whether destructive operations would cost the cluster its quorum, fans
// operations out across the fleet and waits for nodes to converge.
package corofleet

import (
	"errors"
	"fmt"
	"strings"
)

// Fleet coordination errors.
var (
	// ErrNotAuthorized indicates the node rejected our credentials. Waiting
	// will not fix it.
	ErrNotAuthorized = errors.New("not authorized, try running 'corofleet auth'")

	// ErrPermissionDenied indicates the node refused the operation outright.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBadEndpoint indicates the node address is malformed or the responder
	// endpoint does not exist.
	ErrBadEndpoint = errors.New("invalid node endpoint")

	// ErrUnreachable indicates a transient communication failure.
	ErrUnreachable = errors.New("node unreachable")

	// ErrAgentNotRunning indicates the node agent is not running on the target.
	ErrAgentNotRunning = errors.New("node agent is not running")

	// ErrNoNodeUpdated indicates a membership transaction was accepted by no
	// existing member, which fails the whole transaction.
	ErrNoNodeUpdated = errors.New("unable to update any nodes")

	// ErrQuorumLoss indicates the operation would drop the cluster below its
	// quorum threshold.
	ErrQuorumLoss = errors.New("operation would cause a loss of the quorum")

	// ErrQuorumUnknown indicates quorum safety could not be determined and the
	// operation was not forced.
	ErrQuorumUnknown = errors.New("unable to determine whether the operation will cause a loss of the quorum")

	// ErrClusterExists indicates a conflicting cluster configuration is
	// already present.
	ErrClusterExists = errors.New("cluster configuration already exists")
)

// fatalComm marks communication errors that cannot self-heal; pollers give
// up immediately instead of retrying until their deadline.
var fatalComm = []error{ErrNotAuthorized, ErrPermissionDenied, ErrBadEndpoint}

// IsFatalComm reports whether err is a communication failure that retrying
// cannot fix.
func IsFatalComm(err error) bool {
	for _, fatal := range fatalComm {
		if errors.Is(err, fatal) {
			return true
		}
	}
	return false
}

// ValidationError reports malformed or contradictory options. It is raised
// before any state is touched.
type ValidationError struct {
	Reports Reports
}

func (e *ValidationError) Error() string {
	if len(e.Reports) == 0 {
		return "invalid options"
	}
	return e.Reports.String()
}

// ConfigWriteError reports a failure to persist the transport configuration
// locally. Always fatal.
type ConfigWriteError struct {
	Path string
	Err  error
}

func (e *ConfigWriteError) Error() string {
	return fmt.Sprintf("unable to write cluster configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigWriteError) Unwrap() error { return e.Err }

// NodeErrors aggregates per-node failures from a fan-out batch into a single
// node-labelled error. Result order matches the input node order of the batch.
type NodeErrors struct {
	Op      string
	Results []NodeResult
}

// Error renders one line per failed node, prefixed by the operation summary.
func (e *NodeErrors) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	for _, res := range e.Results {
		if res.OK {
			continue
		}
		b.WriteString("\n")
		b.WriteString(res.Node)
		b.WriteString(": ")
		b.WriteString(res.Message)
	}
	return b.String()
}

// Failed returns the results of the nodes that failed, in input order.
func (e *NodeErrors) Failed() []NodeResult {
	var out []NodeResult
	for _, res := range e.Results {
		if !res.OK {
			out = append(out, res)
		}
	}
	return out
}
