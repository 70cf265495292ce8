package corofleet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/ozanturksever/corofleet/quorum"
)

// MembershipCoordinator drives cluster lifecycle operations across the
// fleet: creating the cluster, growing and shrinking the membership,
// starting and stopping nodes, and tearing everything down. It never talks
// to a remote host directly; all remote work goes through the RemoteClient
// and all local work through the system abstractions, so every operation is
// testable against fakes.
type MembershipCoordinator struct {
	logger   *slog.Logger
	client   RemoteClient
	store    ConfigStore
	services ServiceManager
	runner   CommandRunner
	resolver HostResolver
	fanout   *NodeFanout
	waiter   *ConvergenceWaiter
	metrics  *Metrics

	localNode   string
	fanoutLimit int
	waiterOpts  []WaiterOption
}

// HostResolver checks that a node address resolves to a host.
type HostResolver func(ctx context.Context, host string) error

// CoordinatorOption adjusts a MembershipCoordinator.
type CoordinatorOption func(*MembershipCoordinator)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *MembershipCoordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStore overrides the local configuration store.
func WithStore(store ConfigStore) CoordinatorOption {
	return func(c *MembershipCoordinator) { c.store = store }
}

// WithServices overrides the local service manager.
func WithServices(services ServiceManager) CoordinatorOption {
	return func(c *MembershipCoordinator) { c.services = services }
}

// WithRunner overrides the local command runner.
func WithRunner(runner CommandRunner) CoordinatorOption {
	return func(c *MembershipCoordinator) { c.runner = runner }
}

// WithResolver overrides the node address resolution check.
func WithResolver(resolver HostResolver) CoordinatorOption {
	return func(c *MembershipCoordinator) {
		if resolver != nil {
			c.resolver = resolver
		}
	}
}

// WithFanoutLimit bounds parallel node operations.
func WithFanoutLimit(limit int) CoordinatorOption {
	return func(c *MembershipCoordinator) { c.fanoutLimit = limit }
}

// WithMetrics attaches a metrics manager.
func WithMetrics(metrics *Metrics) CoordinatorOption {
	return func(c *MembershipCoordinator) { c.metrics = metrics }
}

// WithWaiterOptions adjusts the convergence waiter.
func WithWaiterOptions(opts ...WaiterOption) CoordinatorOption {
	return func(c *MembershipCoordinator) { c.waiterOpts = opts }
}

// NewCoordinator builds a coordinator for the local node address. The
// defaults talk to the real host; tests swap in fakes through the options.
func NewCoordinator(localNode string, client RemoteClient, opts ...CoordinatorOption) (*MembershipCoordinator, error) {
	if localNode == "" {
		return nil, fmt.Errorf("coordinator needs the local node address")
	}
	if client == nil {
		return nil, fmt.Errorf("coordinator needs a remote client")
	}
	runner := ExecRunner{}
	c := &MembershipCoordinator{
		logger:   slog.Default(),
		client:   client,
		store:    NewFileStore(),
		services: &SysVServiceManager{Runner: runner},
		runner:   runner,
		resolver: func(ctx context.Context, host string) error {
			_, err := net.DefaultResolver.LookupHost(ctx, host)
			return err
		},
		localNode: localNode,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "coordinator")
	c.fanout = NewNodeFanout(c.logger, c.fanoutLimit)
	c.waiter = NewConvergenceWaiter(c.logger, c.fanout, c.waiterOpts...)
	return c, nil
}

// SetupRequest describes a cluster creation.
type SetupRequest struct {
	Name    string
	Nodes   []string
	Options SetupOptions

	// Aux maps an auxiliary config kind (watchdog, ticket) to the payload
	// distributed to every node. Distribution failures are warnings.
	Aux map[string]string

	// Legacy selects the command-sequence configuration path instead of
	// the structured corosync.conf format.
	Legacy bool

	// LocalOnly writes the configuration to this host only instead of
	// distributing it to every member.
	LocalOnly bool

	Enable bool
	Start  bool
	Wait   bool
}

// Setup creates the cluster configuration and distributes it to every
// member. An existing configuration on this host blocks the operation
// unless forced.
func (c *MembershipCoordinator) Setup(ctx context.Context, req SetupRequest) (Reports, error) {
	start := time.Now()
	reports, err := c.setup(ctx, req)
	c.observeOp("setup", start, err)
	return reports, err
}

func (c *MembershipCoordinator) setup(ctx context.Context, req SetupRequest) (Reports, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("cluster name is required")
	}
	if len(req.Nodes) == 0 {
		return nil, fmt.Errorf("at least one node is required")
	}
	if !req.Options.Force {
		if c.store.Exists() {
			return nil, fmt.Errorf("%s exists, run with --force to overwrite: %w",
				c.store.Path(), ErrClusterExists)
		}
		if c.store.CIBExists() {
			return nil, fmt.Errorf("cluster information base exists, run with --force to overwrite: %w",
				ErrClusterExists)
		}
	}

	var reports Reports
	for _, spec := range req.Nodes {
		ring0, ring1 := ParseNodeAddress(spec)
		for _, addr := range []string{ring0, ring1} {
			if addr == "" {
				continue
			}
			if err := c.resolver(ctx, addr); err != nil {
				reports = append(reports, Report{
					Severity: severityUnlessForced(req.Options.Force),
					Message:  fmt.Sprintf("unable to resolve %s: %v", addr, err),
					Node:     addr,
				})
			}
		}
	}
	if err := reports.Err(); err != nil {
		return reports, err
	}

	var text string
	if req.Legacy {
		legacyText, rep, err := BuildLegacyClusterConf(ctx, c.runner, req.Name, req.Nodes, req.Options)
		reports = append(reports, rep...)
		if err != nil {
			return reports, err
		}
		text = legacyText
	} else {
		cfg, rep, err := NewClusterConfig(req.Name, req.Nodes, req.Options)
		reports = append(reports, rep...)
		if err != nil {
			return reports, err
		}
		text = cfg.CorosyncConf().String()
		if c.metrics != nil {
			c.metrics.SetMembersTotal(len(cfg.Nodes))
		}
	}

	if req.LocalOnly {
		if req.Options.Force && (c.store.Exists() || c.store.CIBExists()) {
			reports = append(reports, c.DestroyLocal(ctx)...)
		}
		if err := c.store.Write(text); err != nil {
			return reports, err
		}
		c.logger.Info("cluster configuration written", "cluster", req.Name, "path", c.store.Path())
		return reports, nil
	}

	nodes := make([]string, len(req.Nodes))
	for i, spec := range req.Nodes {
		nodes[i], _ = ParseNodeAddress(spec)
	}

	// Refuse to overwrite a node that already belongs to a cluster.
	results, _ := c.fanout.Run(ctx, "check nodes", nodes, func(ctx context.Context, node string) error {
		if err := c.client.CheckAuth(ctx, node); err != nil {
			return err
		}
		return c.client.CanJoin(ctx, node)
	})
	occupied := results.Failed()
	for _, res := range occupied {
		reports = append(reports, Report{
			Severity: severityUnlessForced(req.Options.Force),
			Message:  res.Message,
			Node:     res.Node,
		})
	}
	if err := reports.Err(); err != nil {
		return reports, err
	}
	if req.Options.Force {
		// a forced setup levels every target before the new configuration lands
		wiped, _ := c.fanout.Run(ctx, "destroy", nodes, func(ctx context.Context, node string) error {
			return c.client.RunAction(ctx, node, ActionDestroy)
		})
		for _, res := range wiped.Failed() {
			reports = append(reports, Report{Severity: SeverityWarning, Message: res.Message, Node: res.Node})
		}
	}

	// Auxiliary config failures stay warnings. When none are given the
	// local host's copies are distributed.
	aux := req.Aux
	if aux == nil {
		aux = make(map[string]string)
		for _, kind := range []string{AuxWatchdog, AuxTicket} {
			if payload, err := c.store.ReadAux(kind); err == nil && payload != "" {
				aux[kind] = payload
			}
		}
	}
	for kind, payload := range aux {
		auxResults, _ := c.fanout.Run(ctx, "distribute "+kind+" configuration", nodes, func(ctx context.Context, node string) error {
			return c.client.PushAux(ctx, node, kind, payload)
		})
		for _, res := range auxResults.Failed() {
			reports = append(reports, Report{Severity: SeverityWarning, Message: res.Message, Node: res.Node})
		}
	}

	results, _ = c.fanout.Run(ctx, "distribute configuration", nodes, func(ctx context.Context, node string) error {
		return c.client.PushConfig(ctx, node, text)
	})
	c.observeNodes("setup", results)
	if err := results.Err("unable to distribute cluster configuration"); err != nil {
		return reports, err
	}
	c.logger.Info("cluster created", "cluster", req.Name, "nodes", len(nodes))

	if req.Enable {
		if _, err := c.EnableNodes(ctx, nodes); err != nil {
			return reports, err
		}
	}
	if req.Start {
		if _, err := c.StartNodes(ctx, nodes, req.Wait); err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// AddNodeRequest describes a membership grow.
type AddNodeRequest struct {
	// Node is the new member as "ring0[,ring1]".
	Node string

	Enable bool
	Start  bool
	Wait   bool
	Force  bool
}

// AddNode grows the membership by one node. Every existing member is told
// about the new entry first; the transaction stands as long as at least one
// member accepted it, with warnings for the rest. Then the full
// configuration lands on the new node itself.
func (c *MembershipCoordinator) AddNode(ctx context.Context, req AddNodeRequest) (Reports, error) {
	start := time.Now()
	reports, err := c.addNode(ctx, req)
	c.observeOp("node add", start, err)
	return reports, err
}

func (c *MembershipCoordinator) addNode(ctx context.Context, req AddNodeRequest) (Reports, error) {
	ring0, ring1 := ParseNodeAddress(req.Node)
	if ring0 == "" {
		return nil, fmt.Errorf("missing ring 0 address in node %q", req.Node)
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	members := cfg.NodeAddresses()

	var reports Reports
	if err := c.client.CheckAuth(ctx, ring0); err != nil {
		return nil, err
	}
	if err := c.client.CanJoin(ctx, ring0); err != nil {
		if !req.Force {
			return nil, err
		}
		reports = append(reports, Report{Severity: SeverityWarning, Message: err.Error(), Node: ring0})
	}

	entry, err := cfg.AddNode(ring0, ring1)
	if err != nil {
		return reports, err
	}

	reports = append(reports, c.syncAuxConfigs(ctx, ring0)...)

	results, _ := c.fanout.Run(ctx, "update members", members, func(ctx context.Context, node string) error {
		return c.client.AddMember(ctx, node, entry)
	})
	c.observeNodes("node add", results)
	if len(results.Succeeded()) == 0 {
		return reports, fmt.Errorf("%w\n%s", ErrNoNodeUpdated, resultLines(results.Failed()))
	}
	for _, res := range results.Failed() {
		reports = append(reports, Report{Severity: SeverityWarning, Message: res.Message, Node: res.Node})
	}

	text := cfg.CorosyncConf().String()
	if err := c.client.PushConfig(ctx, ring0, text); err != nil {
		return reports, fmt.Errorf("unable to send updated configuration to %s: %w", ring0, err)
	}
	if cfg.QuorumDeviceModel() == "net" {
		if out, err := c.runner.Run(ctx, "corosync-qdevice-net-certutil", "-r", "-n", cfg.Name); err != nil {
			reports = append(reports, Report{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("unable to register %s with the quorum device: %s", ring0, strings.TrimSpace(out)),
			})
		}
	}
	if cfg.HasNode(c.localNode) {
		if err := c.store.Write(text); err != nil {
			return reports, err
		}
	}
	if c.metrics != nil {
		c.metrics.SetMembersTotal(len(cfg.Nodes))
	}
	c.logger.Info("node added", "node", ring0, "nodeid", entry.ID)

	if req.Enable {
		if _, err := c.EnableNodes(ctx, []string{ring0}); err != nil {
			return reports, err
		}
	}
	if req.Start {
		if _, err := c.StartNodes(ctx, []string{ring0}, req.Wait); err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// RemoveNodeRequest describes a membership shrink.
type RemoveNodeRequest struct {
	Node string

	// Force skips the quorum safety check and tolerates an unreachable
	// target.
	Force bool
}

// RemoveNode shrinks the membership by one node. The target is torn down
// before any member forgets about it, so a stale daemon cannot linger inside
// a membership that no longer lists it. Removals that would cost the cluster
// its quorum are refused unless forced.
func (c *MembershipCoordinator) RemoveNode(ctx context.Context, req RemoveNodeRequest) (Reports, error) {
	start := time.Now()
	reports, err := c.removeNode(ctx, req)
	c.observeOp("node remove", start, err)
	return reports, err
}

func (c *MembershipCoordinator) removeNode(ctx context.Context, req RemoveNodeRequest) (Reports, error) {
	if req.Node == "" {
		return nil, fmt.Errorf("node address is required")
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.HasNode(req.Node) {
		return nil, fmt.Errorf("node '%s' does not appear to exist in configuration", req.Node)
	}

	var reports Reports
	if !req.Force {
		if err := c.checkQuorumSafety(ctx, "node remove", []string{req.Node}); err != nil {
			return nil, err
		}
	}

	// Tear the target down first.
	if err := c.client.RunAction(ctx, req.Node, ActionDestroy); err != nil {
		if !req.Force {
			return reports, fmt.Errorf("unable to destroy cluster on %s, use --force to remove it anyway: %w", req.Node, err)
		}
		reports = append(reports, Report{Severity: SeverityWarning, Message: err.Error(), Node: req.Node})
	}

	if err := cfg.RemoveNode(req.Node); err != nil {
		return reports, err
	}
	remaining := cfg.NodeAddresses()

	results, _ := c.fanout.Run(ctx, "update members", remaining, func(ctx context.Context, node string) error {
		return c.client.RemoveMember(ctx, node, req.Node)
	})
	c.observeNodes("node remove", results)
	if len(remaining) > 0 && len(results.Succeeded()) == 0 {
		return reports, fmt.Errorf("%w\n%s", ErrNoNodeUpdated, resultLines(results.Failed()))
	}
	for _, res := range results.Failed() {
		reports = append(reports, Report{Severity: SeverityWarning, Message: res.Message, Node: res.Node})
	}

	if cfg.HasNode(c.localNode) {
		if err := c.store.Write(cfg.CorosyncConf().String()); err != nil {
			return reports, err
		}
	}

	// evict the node from the resource manager's view as well
	if out, err := c.runner.Run(ctx, "crm_node", "--force", "-R", req.Node); err != nil {
		reports = append(reports, Report{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("unable to evict %s from the cluster state: %s", req.Node, strings.TrimSpace(out)),
		})
	}

	if c.metrics != nil {
		c.metrics.SetMembersTotal(len(cfg.Nodes))
	}
	c.logger.Info("node removed", "node", req.Node)
	return reports, nil
}

// StartLocal starts the cluster services on this host, in order.
func (c *MembershipCoordinator) StartLocal(ctx context.Context) error {
	for _, svc := range clusterServices {
		if err := c.services.Start(ctx, svc); err != nil {
			return err
		}
	}
	c.logger.Info("cluster services started")
	return nil
}

// StopLocal stops the cluster services on this host, in reverse order. The
// quorum check runs first unless forced.
func (c *MembershipCoordinator) StopLocal(ctx context.Context, force bool) error {
	if !force {
		if err := c.checkQuorumSafety(ctx, "stop", nil); err != nil {
			return err
		}
	}
	for i := len(clusterServices) - 1; i >= 0; i-- {
		if err := c.services.Stop(ctx, clusterServices[i]); err != nil {
			return err
		}
	}
	c.logger.Info("cluster services stopped")
	return nil
}

// ensureMembers rejects nodes the configuration does not know. When no
// configuration is readable locally the check is skipped; the agents will
// refuse on their own.
func (c *MembershipCoordinator) ensureMembers(nodes []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil
	}
	for _, node := range nodes {
		if !cfg.HasNode(node) {
			return fmt.Errorf("node '%s' does not appear to exist in configuration", node)
		}
	}
	return nil
}

// StartNodes starts the cluster services on the given nodes, optionally
// waiting for them to come up.
func (c *MembershipCoordinator) StartNodes(ctx context.Context, nodes []string, wait bool) (Results, error) {
	start := time.Now()
	if err := c.ensureMembers(nodes); err != nil {
		return nil, err
	}
	results, _ := c.fanout.Run(ctx, "start", nodes, func(ctx context.Context, node string) error {
		return c.client.RunAction(ctx, node, ActionStart)
	})
	c.observeNodes("start", results)
	if err := results.Err("unable to start some nodes"); err != nil {
		c.observeOp("start", start, err)
		return results, err
	}
	if wait {
		waitStart := time.Now()
		waited, err := c.waiter.WaitNodes(ctx, "start", nodes, c.probeRunning(true))
		if c.metrics != nil {
			c.metrics.ObserveWait("start", time.Since(waitStart))
		}
		if err != nil {
			c.observeOp("start", start, err)
			return waited, err
		}
	}
	c.observeOp("start", start, nil)
	return results, nil
}

// StopNodes stops the cluster services on the given nodes. Unless forced or
// stopping everything, the stop is refused when the departing votes would
// drop the rest of the cluster below its quorum threshold. Listing every
// member explicitly counts as stopping everything.
func (c *MembershipCoordinator) StopNodes(ctx context.Context, nodes []string, all, force, wait bool) (Results, error) {
	start := time.Now()
	if err := c.ensureMembers(nodes); err != nil {
		return nil, err
	}
	stoppingAll := all
	if !stoppingAll {
		if cfg, err := c.loadConfig(); err == nil {
			stoppingAll = coversMembership(nodes, cfg.NodeAddresses())
		}
	}
	if !force && !stoppingAll {
		if err := c.checkQuorumSafety(ctx, "stop", nodes); err != nil {
			c.observeOp("stop", start, err)
			return nil, err
		}
	}
	results, _ := c.fanout.Run(ctx, "stop", nodes, func(ctx context.Context, node string) error {
		return c.client.RunAction(ctx, node, ActionStop)
	})
	c.observeNodes("stop", results)
	if err := results.Err("unable to stop some nodes"); err != nil {
		c.observeOp("stop", start, err)
		return results, err
	}
	if wait {
		waitStart := time.Now()
		waited, err := c.waiter.WaitNodes(ctx, "stop", nodes, c.probeRunning(false))
		if c.metrics != nil {
			c.metrics.ObserveWait("stop", time.Since(waitStart))
		}
		if err != nil {
			c.observeOp("stop", start, err)
			return waited, err
		}
	}
	c.observeOp("stop", start, nil)
	return results, nil
}

// EnableNodes enables the cluster services on boot for the given nodes.
func (c *MembershipCoordinator) EnableNodes(ctx context.Context, nodes []string) (Results, error) {
	results, _ := c.fanout.Run(ctx, "enable", nodes, func(ctx context.Context, node string) error {
		return c.client.RunAction(ctx, node, ActionEnable)
	})
	c.observeNodes("enable", results)
	return results, results.Err("unable to enable some nodes")
}

// DisableNodes disables the cluster services on boot for the given nodes.
func (c *MembershipCoordinator) DisableNodes(ctx context.Context, nodes []string) (Results, error) {
	results, _ := c.fanout.Run(ctx, "disable", nodes, func(ctx context.Context, node string) error {
		return c.client.RunAction(ctx, node, ActionDisable)
	})
	c.observeNodes("disable", results)
	return results, results.Err("unable to disable some nodes")
}

// EnableLocal enables the cluster services on boot for this host.
func (c *MembershipCoordinator) EnableLocal(ctx context.Context) error {
	for _, svc := range clusterServices {
		if err := c.services.Enable(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

// DisableLocal disables the cluster services on boot for this host.
func (c *MembershipCoordinator) DisableLocal(ctx context.Context) error {
	for _, svc := range clusterServices {
		if err := c.services.Disable(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

// DestroyLocal tears down the cluster on this host: stop what can be
// stopped, kill what cannot, then purge the configuration and state files.
// Destroy never fails; a half-broken host must still end up clean.
func (c *MembershipCoordinator) DestroyLocal(ctx context.Context) Reports {
	var reports Reports
	for i := len(clusterServices) - 1; i >= 0; i-- {
		if err := c.services.Stop(ctx, clusterServices[i]); err != nil {
			reports = append(reports, Report{Severity: SeverityWarning, Message: err.Error()})
		}
	}
	_ = c.services.Stop(ctx, "corosync-qdevice")
	_ = c.services.Kill(ctx, daemonKillList...)
	if err := c.store.Remove(); err != nil {
		reports = append(reports, Report{Severity: SeverityWarning, Message: err.Error()})
	}
	_ = c.store.RemoveStateFiles()
	c.logger.Info("cluster destroyed on local node")
	return reports
}

// DestroyAll tears down the cluster on every member, remote nodes first,
// this host last. Unreachable nodes produce warnings, never failures.
func (c *MembershipCoordinator) DestroyAll(ctx context.Context) Reports {
	var reports Reports
	cfg, err := c.loadConfig()
	if err == nil {
		var remote []string
		for _, addr := range cfg.NodeAddresses() {
			if addr != c.localNode {
				remote = append(remote, addr)
			}
		}
		results, _ := c.fanout.Run(ctx, "destroy", remote, func(ctx context.Context, node string) error {
			return c.client.RunAction(ctx, node, ActionDestroy)
		})
		c.observeNodes("destroy", results)
		for _, res := range results.Failed() {
			reports = append(reports, Report{Severity: SeverityWarning, Message: res.Message, Node: res.Node})
		}
	} else {
		reports = append(reports, Report{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("unable to read cluster configuration, destroying local node only: %v", err),
		})
	}
	return append(reports, c.DestroyLocal(ctx)...)
}

// Sync pushes this host's configuration to every other member.
func (c *MembershipCoordinator) Sync(ctx context.Context) (Results, error) {
	text, err := c.store.Read()
	if err != nil {
		return nil, fmt.Errorf("reading local configuration: %w", err)
	}
	cfg, err := ParseClusterConfig(text)
	if err != nil {
		return nil, fmt.Errorf("parsing local configuration: %w", err)
	}
	var peers []string
	for _, addr := range cfg.NodeAddresses() {
		if addr != c.localNode {
			peers = append(peers, addr)
		}
	}
	results, _ := c.fanout.Run(ctx, "sync", peers, func(ctx context.Context, node string) error {
		return c.client.PushConfig(ctx, node, text)
	})
	c.observeNodes("sync", results)
	return results, results.Err("unable to sync configuration to some nodes")
}

// CorosyncConf returns the transport configuration of a node, or of this
// host when node is empty.
func (c *MembershipCoordinator) CorosyncConf(ctx context.Context, node string) (string, error) {
	if node == "" || node == c.localNode {
		return c.store.Read()
	}
	return c.client.PullConfig(ctx, node)
}

// ReloadCorosync tells the local transport daemon to re-read its
// configuration.
func (c *MembershipCoordinator) ReloadCorosync(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, "corosync-cfgtool", "-R")
	if err != nil {
		return out, fmt.Errorf("unable to reload corosync: %s", strings.TrimSpace(out))
	}
	return out, nil
}

// Verify checks the cluster information base for errors. An empty path
// verifies the live cluster.
func (c *MembershipCoordinator) Verify(ctx context.Context, cibPath string, verbose bool) (string, error) {
	args := []string{}
	if verbose {
		args = append(args, "-V")
	}
	if cibPath == "" {
		args = append(args, "-L")
	} else {
		args = append(args, "--xml-file", cibPath)
	}
	out, err := c.runner.Run(ctx, "crm_verify", args...)
	if err != nil {
		return out, fmt.Errorf("cluster verification failed: %s", strings.TrimSpace(out))
	}
	return out, nil
}

// Report collects diagnostics into a tarball at dest. From and to bound the
// covered time range; a zero from defaults to the last 24 hours.
func (c *MembershipCoordinator) Report(ctx context.Context, dest string, from, to time.Time) (string, error) {
	if dest == "" {
		return "", fmt.Errorf("report destination is required")
	}
	if from.IsZero() {
		from = time.Now().Add(-24 * time.Hour)
	}
	args := []string{"-f", from.Format("2006-01-02 15:04:05")}
	if !to.IsZero() {
		if to.Before(from) {
			return "", fmt.Errorf("report end time precedes start time")
		}
		args = append(args, "-t", to.Format("2006-01-02 15:04:05"))
	}
	args = append(args, dest)
	out, err := c.runner.Run(ctx, "crm_report", args...)
	if err != nil {
		return out, fmt.Errorf("unable to create report: %s", strings.TrimSpace(out))
	}
	return out, nil
}

// KillLocal forcibly terminates every cluster daemon on this host.
func (c *MembershipCoordinator) KillLocal(ctx context.Context) error {
	return c.services.Kill(ctx, daemonKillList...)
}

// LocalNodeAdd splices a member into this host's configuration only. It is
// the building block remote coordinators call on every member during a grow.
func (c *MembershipCoordinator) LocalNodeAdd(ctx context.Context, spec string) (NodeEntry, error) {
	ring0, ring1 := ParseNodeAddress(spec)
	if ring0 == "" {
		return NodeEntry{}, fmt.Errorf("missing ring 0 address in node %q", spec)
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return NodeEntry{}, err
	}
	entry, err := cfg.AddNode(ring0, ring1)
	if err != nil {
		return NodeEntry{}, err
	}
	if err := c.writeAndMaybeReload(ctx, cfg); err != nil {
		return NodeEntry{}, err
	}
	return entry, nil
}

// LocalNodeRemove drops a member from this host's configuration only.
func (c *MembershipCoordinator) LocalNodeRemove(ctx context.Context, addr string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RemoveNode(addr); err != nil {
		return err
	}
	return c.writeAndMaybeReload(ctx, cfg)
}

// QuorumSnapshot fetches and parses the current quorum state, preferring
// the local vantage point and falling back to other members when this host
// is not running the transport.
func (c *MembershipCoordinator) QuorumSnapshot(ctx context.Context) (quorum.Snapshot, error) {
	snap, _, err := c.quorumSnapshot(ctx)
	return snap, err
}

// quorumSnapshot additionally reports whether the snapshot came from the
// local quorum tool. The (local) marker in a peer's output denotes that
// peer, so only a local snapshot can answer a local-scope check.
func (c *MembershipCoordinator) quorumSnapshot(ctx context.Context) (quorum.Snapshot, bool, error) {
	out, _ := c.runner.Run(ctx, "corosync-quorumtool", "-p", "-s")
	if !quorum.NodeOffline(out) {
		snap := *quorum.ParseQuorumTool(out)
		c.observeQuorum(snap)
		return snap, true, nil
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return quorum.Snapshot{}, false, err
	}
	for _, addr := range cfg.NodeAddresses() {
		if addr == c.localNode {
			continue
		}
		out, err := c.client.QuorumTool(ctx, addr)
		if err != nil || quorum.NodeOffline(out) {
			continue
		}
		snap := *quorum.ParseQuorumTool(out)
		c.observeQuorum(snap)
		return snap, false, nil
	}
	return quorum.Snapshot{}, false, ErrQuorumUnknown
}

// checkQuorumSafety refuses an operation that would drop the cluster below
// its quorum threshold. An empty node list means this host is leaving.
func (c *MembershipCoordinator) checkQuorumSafety(ctx context.Context, op string, nodes []string) error {
	snap, localVantage, err := c.quorumSnapshot(ctx)
	if len(nodes) == 0 && !localVantage {
		// a host whose transport is already down holds no vote, so
		// stopping it cannot cost the cluster its quorum
		return nil
	}
	if err != nil || !snap.Determinable {
		return fmt.Errorf("%w, use --force to proceed anyway", ErrQuorumUnknown)
	}
	var lost bool
	if len(nodes) == 0 {
		lost = snap.WouldLoseQuorum(quorum.ScopeLocal, nil)
	} else {
		lost = snap.WouldLoseQuorum(quorum.ScopeNodes, nodes)
	}
	if lost {
		if c.metrics != nil {
			c.metrics.IncQuorumBlocked(op)
		}
		return fmt.Errorf("%w, use --force to proceed anyway", ErrQuorumLoss)
	}
	return nil
}

// syncAuxConfigs copies this host's auxiliary subsystem configs to a new
// member. Missing files and push failures are warnings; the membership
// transaction does not depend on them.
func (c *MembershipCoordinator) syncAuxConfigs(ctx context.Context, node string) Reports {
	var reports Reports
	for _, kind := range []string{AuxWatchdog, AuxTicket} {
		payload, err := c.store.ReadAux(kind)
		if err != nil || payload == "" {
			continue
		}
		if err := c.client.PushAux(ctx, node, kind, payload); err != nil {
			reports = append(reports, Report{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("unable to send %s configuration: %v", kind, err),
				Node:     node,
			})
		}
	}
	return reports
}

// probeRunning converges a start only once the node is both online and done
// joining; a stop converges as soon as the transport is down.
func (c *MembershipCoordinator) probeRunning(want bool) Probe {
	return func(ctx context.Context, node string) error {
		status, err := c.client.Status(ctx, node)
		if err != nil {
			return err
		}
		if want {
			if !status.CorosyncRunning {
				return fmt.Errorf("%s: cluster not running yet", node)
			}
			if status.Pending {
				return fmt.Errorf("%s: node is still joining", node)
			}
			return nil
		}
		if status.CorosyncRunning {
			return fmt.Errorf("%s: cluster still running", node)
		}
		return nil
	}
}

func (c *MembershipCoordinator) loadConfig() (*ClusterConfig, error) {
	text, err := c.store.Read()
	if err != nil {
		return nil, fmt.Errorf("reading cluster configuration: %w", err)
	}
	cfg, err := ParseClusterConfig(text)
	if err != nil {
		return nil, fmt.Errorf("parsing cluster configuration: %w", err)
	}
	return cfg, nil
}

func (c *MembershipCoordinator) writeAndMaybeReload(ctx context.Context, cfg *ClusterConfig) error {
	if err := c.store.Write(cfg.CorosyncConf().String()); err != nil {
		return err
	}
	if c.services.IsRunning(ctx, "corosync") {
		if _, err := c.ReloadCorosync(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *MembershipCoordinator) observeOp(op string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObserveOp(op, time.Since(start), err)
	}
}

func (c *MembershipCoordinator) observeNodes(op string, results Results) {
	if c.metrics != nil {
		c.metrics.ObserveNodes(op, results)
	}
}

func (c *MembershipCoordinator) observeQuorum(snap quorum.Snapshot) {
	if c.metrics != nil && snap.Determinable {
		c.metrics.ObserveQuorum(snap.VotesPresent(), snap.Quorate)
	}
}

// coversMembership reports whether nodes includes every known member.
func coversMembership(nodes, members []string) bool {
	if len(members) == 0 {
		return false
	}
	set := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		set[node] = true
	}
	for _, member := range members {
		if !set[member] {
			return false
		}
	}
	return true
}

func severityUnlessForced(forced bool) Severity {
	if forced {
		return SeverityWarning
	}
	return SeverityError
}

func resultLines(failed Results) string {
	lines := make([]string, len(failed))
	for i, res := range failed {
		lines[i] = res.Node + ": " + res.Message
	}
	return strings.Join(lines, "\n")
}
