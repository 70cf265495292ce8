package corofleet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

// Agent is the per-node responder. It owns the local configuration, the
// local services and nothing else; cluster-wide decisions stay with the
// coordinator.
type Agent struct {
	node     string
	conn     *nats.Conn
	logger   *slog.Logger
	store    ConfigStore
	services ServiceManager
	runner   CommandRunner

	subs []*nats.Subscription
}

// AgentOption adjusts an Agent.
type AgentOption func(*Agent)

// WithAgentStore overrides the configuration store.
func WithAgentStore(store ConfigStore) AgentOption {
	return func(a *Agent) { a.store = store }
}

// WithAgentServices overrides the service manager.
func WithAgentServices(services ServiceManager) AgentOption {
	return func(a *Agent) { a.services = services }
}

// WithAgentRunner overrides the command runner.
func WithAgentRunner(runner CommandRunner) AgentOption {
	return func(a *Agent) { a.runner = runner }
}

// NewAgent builds the responder for node, which must be the address other
// members know this host by.
func NewAgent(node string, conn *nats.Conn, logger *slog.Logger, opts ...AgentOption) (*Agent, error) {
	if node == "" {
		return nil, fmt.Errorf("agent needs a node address")
	}
	if logger == nil {
		logger = slog.Default()
	}
	runner := ExecRunner{}
	a := &Agent{
		node:     node,
		conn:     conn,
		logger:   logger.With("component", "agent", "node", node),
		store:    NewFileStore(),
		services: &SysVServiceManager{Runner: runner},
		runner:   runner,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type agentHandler func(ctx context.Context, req nodeRequest) (string, error)

// Start subscribes the agent on its subject tree. Handlers run until Stop.
func (a *Agent) Start(ctx context.Context) error {
	handlers := map[string]agentHandler{
		"check_auth":     func(context.Context, nodeRequest) (string, error) { return "", nil },
		"node_available": a.handleAvailable,
		"set_config":     a.handleSetConfig,
		"set_aux":        a.handleSetAux,
		"get_config":     a.handleGetConfig,
		"add_member":     a.handleAddMember,
		"remove_member":  a.handleRemoveMember,
		"status":         a.handleStatus,
		"quorumtool":     a.handleQuorumTool,
		ActionStart:      a.serviceAction(ActionStart),
		ActionStop:       a.serviceAction(ActionStop),
		ActionEnable:     a.serviceAction(ActionEnable),
		ActionDisable:    a.serviceAction(ActionDisable),
		ActionDestroy:    a.handleDestroy,
		ActionKill:       a.handleKill,
	}

	for verb, handler := range handlers {
		sub, err := a.conn.Subscribe(nodeSubject(a.node, verb), a.respond(ctx, verb, handler))
		if err != nil {
			a.shutdown()
			return fmt.Errorf("subscribing %s: %w", verb, err)
		}
		a.subs = append(a.subs, sub)
	}
	a.logger.Info("agent listening")
	return nil
}

// Stop drains the subscriptions.
func (a *Agent) Stop() {
	a.shutdown()
	a.logger.Info("agent stopped")
}

func (a *Agent) shutdown() {
	for _, sub := range a.subs {
		_ = sub.Unsubscribe()
	}
	a.subs = nil
}

func (a *Agent) respond(ctx context.Context, verb string, handler agentHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var req nodeRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				a.reply(msg, nodeReply{Status: statusError, Data: "malformed request"})
				return
			}
		}
		data, err := handler(ctx, req)
		if err != nil {
			a.logger.Warn("request failed", "verb", verb, "error", err)
			a.reply(msg, nodeReply{Status: statusError, Data: err.Error()})
			return
		}
		a.reply(msg, nodeReply{Status: statusOK, Data: data})
	}
}

func (a *Agent) reply(msg *nats.Msg, reply nodeReply) {
	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	if err := msg.Respond(payload); err != nil {
		a.logger.Warn("reply failed", "error", err)
	}
}

// handleAvailable reports what cluster state already exists on this host.
// An empty answer means the node is free to join.
func (a *Agent) handleAvailable(context.Context, nodeRequest) (string, error) {
	var found []string
	if a.store.Exists() {
		found = append(found, a.store.Path()+" exists")
	}
	if a.store.CIBExists() {
		found = append(found, "cluster information base exists")
	}
	return strings.Join(found, ", "), nil
}

func (a *Agent) handleSetConfig(_ context.Context, req nodeRequest) (string, error) {
	if req.Config == "" {
		return "", fmt.Errorf("empty configuration")
	}
	return "", a.store.Write(req.Config)
}

func (a *Agent) handleSetAux(_ context.Context, req nodeRequest) (string, error) {
	if req.Kind == "" {
		return "", fmt.Errorf("missing auxiliary config kind")
	}
	return "", a.store.WriteAux(req.Kind, req.Config)
}

func (a *Agent) handleGetConfig(context.Context, nodeRequest) (string, error) {
	return a.store.Read()
}

// handleAddMember splices a new member into the local configuration and
// reloads the transport so the change takes effect without a restart.
func (a *Agent) handleAddMember(ctx context.Context, req nodeRequest) (string, error) {
	if req.Member == "" {
		return "", fmt.Errorf("missing member address")
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return "", err
	}
	entry, err := cfg.AddNode(req.Member, req.Ring1)
	if err != nil {
		return "", err
	}
	// Every member must record the id the coordinator assigned, not one it
	// derived locally.
	if req.NodeID != 0 && req.NodeID != entry.ID {
		cfg.Nodes[len(cfg.Nodes)-1].ID = req.NodeID
	}
	return "", a.writeAndReload(ctx, cfg)
}

func (a *Agent) handleRemoveMember(ctx context.Context, req nodeRequest) (string, error) {
	if req.Member == "" {
		return "", fmt.Errorf("missing member address")
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return "", err
	}
	if err := cfg.RemoveNode(req.Member); err != nil {
		return "", err
	}
	return "", a.writeAndReload(ctx, cfg)
}

func (a *Agent) handleStatus(ctx context.Context, _ nodeRequest) (string, error) {
	corosync := a.services.IsRunning(ctx, "corosync")
	status := NodeStatus{
		Node:            a.node,
		CorosyncRunning: corosync,
		Pending:         corosync && !a.services.IsRunning(ctx, "pacemaker"),
		ConfigPresent:   a.store.Exists(),
		CIBPresent:      a.store.CIBExists(),
	}
	data, err := json.Marshal(status)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// handleQuorumTool hands back the raw tool output even when the tool exits
// nonzero. The coordinator's parser recognizes the offline marker in the
// output itself.
func (a *Agent) handleQuorumTool(ctx context.Context, _ nodeRequest) (string, error) {
	out, _ := a.runner.Run(ctx, "corosync-quorumtool", "-p", "-s")
	return out, nil
}

func (a *Agent) serviceAction(action string) agentHandler {
	return func(ctx context.Context, _ nodeRequest) (string, error) {
		switch action {
		case ActionStart:
			for _, svc := range clusterServices {
				if err := a.services.Start(ctx, svc); err != nil {
					return "", err
				}
			}
		case ActionStop:
			for i := len(clusterServices) - 1; i >= 0; i-- {
				if err := a.services.Stop(ctx, clusterServices[i]); err != nil {
					return "", err
				}
			}
		case ActionEnable:
			for _, svc := range clusterServices {
				if err := a.services.Enable(ctx, svc); err != nil {
					return "", err
				}
			}
		case ActionDisable:
			for _, svc := range clusterServices {
				if err := a.services.Disable(ctx, svc); err != nil {
					return "", err
				}
			}
		}
		return "", nil
	}
}

// handleDestroy tears the node down as far as it can get. Nothing here is
// allowed to fail the request; a destroy on a half-broken host must still
// clean up whatever is left.
func (a *Agent) handleDestroy(ctx context.Context, _ nodeRequest) (string, error) {
	for i := len(clusterServices) - 1; i >= 0; i-- {
		if err := a.services.Stop(ctx, clusterServices[i]); err != nil {
			a.logger.Warn("stop during destroy failed", "service", clusterServices[i], "error", err)
		}
	}
	_ = a.services.Stop(ctx, "corosync-qdevice")
	_ = a.services.Kill(ctx, daemonKillList...)
	if err := a.store.Remove(); err != nil {
		a.logger.Warn("config removal during destroy failed", "error", err)
	}
	_ = a.store.RemoveStateFiles()
	a.logger.Info("node destroyed")
	return "", nil
}

func (a *Agent) handleKill(ctx context.Context, _ nodeRequest) (string, error) {
	return "", a.services.Kill(ctx, daemonKillList...)
}

func (a *Agent) loadConfig() (*ClusterConfig, error) {
	text, err := a.store.Read()
	if err != nil {
		return nil, fmt.Errorf("reading local configuration: %w", err)
	}
	cfg, err := ParseClusterConfig(text)
	if err != nil {
		return nil, fmt.Errorf("parsing local configuration: %w", err)
	}
	return cfg, nil
}

func (a *Agent) writeAndReload(ctx context.Context, cfg *ClusterConfig) error {
	if err := a.store.Write(cfg.CorosyncConf().String()); err != nil {
		return err
	}
	if a.services.IsRunning(ctx, "corosync") {
		if out, err := a.runner.Run(ctx, "corosync-cfgtool", "-R"); err != nil {
			return fmt.Errorf("reloading corosync: %s", strings.TrimSpace(out))
		}
	}
	return nil
}
