package corofleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Agent wire protocol. Every node runs an agent subscribed on its own
// subject tree; the coordinator talks to it with request/reply.
const (
	subjectPrefix       = "corofleet.node"
	defaultRequestLimit = 10 * time.Second
)

// Remote actions understood by the node agent.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionEnable  = "enable"
	ActionDisable = "disable"
	ActionDestroy = "destroy"
	ActionKill    = "kill"
)

// nodeRequest is the payload sent to an agent.
type nodeRequest struct {
	Config string `json:"config,omitempty"`
	Member string `json:"member,omitempty"`
	Ring1  string `json:"ring1,omitempty"`
	NodeID int    `json:"node_id,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// nodeReply is the payload an agent answers with.
type nodeReply struct {
	Status string `json:"status"`
	Data   string `json:"data,omitempty"`
}

// Reply status codes.
const (
	statusOK            = "ok"
	statusError         = "error"
	statusNotAuthorized = "notauthorized"
	statusDenied        = "permission_denied"
	statusNotSupported  = "not_supported"
)

// NodeStatus is the state an agent reports for its host. Pending is set
// while the transport is up but the resource manager has not finished
// joining; such a node is not fully started yet.
type NodeStatus struct {
	Node            string `json:"node"`
	CorosyncRunning bool   `json:"corosync_running"`
	Pending         bool   `json:"pending"`
	ConfigPresent   bool   `json:"config_present"`
	CIBPresent      bool   `json:"cib_present"`
}

// RemoteClient talks to the agents of other nodes. Every call addresses one
// node; batching across the fleet belongs to NodeFanout.
type RemoteClient interface {
	// CheckAuth verifies the node accepts us at all.
	CheckAuth(ctx context.Context, node string) error
	// CanJoin fails when the node already carries a cluster configuration.
	CanJoin(ctx context.Context, node string) error
	// PushConfig replaces the node's transport configuration.
	PushConfig(ctx context.Context, node, config string) error
	// PushAux replaces one of the node's auxiliary subsystem configs
	// (watchdog, ticket manager). Callers treat failures as warnings.
	PushAux(ctx context.Context, node, kind, payload string) error
	// PullConfig fetches the node's transport configuration.
	PullConfig(ctx context.Context, node string) (string, error)
	// AddMember asks an existing member to add entry to its local config
	// and reload.
	AddMember(ctx context.Context, node string, entry NodeEntry) error
	// RemoveMember asks an existing member to drop member from its local
	// config and reload.
	RemoveMember(ctx context.Context, node, member string) error
	// RunAction runs one of the Action verbs on the node.
	RunAction(ctx context.Context, node, action string) error
	// Status reports the node's cluster state.
	Status(ctx context.Context, node string) (NodeStatus, error)
	// QuorumTool returns the node's raw quorum tool output.
	QuorumTool(ctx context.Context, node string) (string, error)
}

// NATSClient is the RemoteClient over a NATS connection.
type NATSClient struct {
	conn    *nats.Conn
	logger  *slog.Logger
	timeout time.Duration
}

// ClientOption adjusts a NATSClient.
type ClientOption func(*NATSClient)

// WithRequestTimeout overrides the per-request deadline.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *NATSClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewNATSClient wraps an established connection. The caller owns the
// connection lifecycle.
func NewNATSClient(conn *nats.Conn, logger *slog.Logger, opts ...ClientOption) *NATSClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &NATSClient{
		conn:    conn,
		logger:  logger.With("component", "client"),
		timeout: defaultRequestLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func nodeSubject(node, verb string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, node, verb)
}

// request performs one request/reply round trip and maps the agent's status
// code onto the package error set.
func (c *NATSClient) request(ctx context.Context, node, verb string, req nodeRequest) (string, error) {
	if node == "" {
		return "", ErrBadEndpoint
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding %s request: %w", verb, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, nodeSubject(node, verb), payload)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return "", fmt.Errorf("%s: %w", node, ErrAgentNotRunning)
		}
		c.logger.Debug("request failed", "node", node, "verb", verb, "error", err)
		return "", fmt.Errorf("%s: %w: %v", node, ErrUnreachable, err)
	}

	var reply nodeReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("%s: malformed %s reply: %w", node, verb, err)
	}
	switch reply.Status {
	case statusOK:
		return reply.Data, nil
	case statusNotAuthorized:
		return "", fmt.Errorf("%s: %w", node, ErrNotAuthorized)
	case statusDenied:
		return "", fmt.Errorf("%s: %w", node, ErrPermissionDenied)
	case statusNotSupported:
		return "", fmt.Errorf("%s: %s: %w", node, verb, ErrBadEndpoint)
	default:
		if reply.Data == "" {
			reply.Data = "unknown error"
		}
		return "", fmt.Errorf("%s: %s", node, reply.Data)
	}
}

func (c *NATSClient) CheckAuth(ctx context.Context, node string) error {
	_, err := c.request(ctx, node, "check_auth", nodeRequest{})
	return err
}

func (c *NATSClient) CanJoin(ctx context.Context, node string) error {
	data, err := c.request(ctx, node, "node_available", nodeRequest{})
	if err != nil {
		return err
	}
	if data != "" {
		return fmt.Errorf("%s: %s: %w", node, data, ErrClusterExists)
	}
	return nil
}

func (c *NATSClient) PushConfig(ctx context.Context, node, config string) error {
	_, err := c.request(ctx, node, "set_config", nodeRequest{Config: config})
	return err
}

func (c *NATSClient) PushAux(ctx context.Context, node, kind, payload string) error {
	_, err := c.request(ctx, node, "set_aux", nodeRequest{Kind: kind, Config: payload})
	return err
}

func (c *NATSClient) PullConfig(ctx context.Context, node string) (string, error) {
	return c.request(ctx, node, "get_config", nodeRequest{})
}

func (c *NATSClient) AddMember(ctx context.Context, node string, entry NodeEntry) error {
	_, err := c.request(ctx, node, "add_member", nodeRequest{
		Member: entry.Ring0Addr,
		Ring1:  entry.Ring1Addr,
		NodeID: entry.ID,
	})
	return err
}

func (c *NATSClient) RemoveMember(ctx context.Context, node, member string) error {
	_, err := c.request(ctx, node, "remove_member", nodeRequest{Member: member})
	return err
}

func (c *NATSClient) RunAction(ctx context.Context, node, action string) error {
	switch action {
	case ActionStart, ActionStop, ActionEnable, ActionDisable, ActionDestroy, ActionKill:
	default:
		return fmt.Errorf("action %q: %w", action, ErrBadEndpoint)
	}
	_, err := c.request(ctx, node, action, nodeRequest{})
	return err
}

func (c *NATSClient) Status(ctx context.Context, node string) (NodeStatus, error) {
	data, err := c.request(ctx, node, "status", nodeRequest{})
	if err != nil {
		return NodeStatus{}, err
	}
	var status NodeStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return NodeStatus{}, fmt.Errorf("%s: malformed status: %w", node, err)
	}
	return status, nil
}

func (c *NATSClient) QuorumTool(ctx context.Context, node string) (string, error) {
	return c.request(ctx, node, "quorumtool", nodeRequest{})
}
