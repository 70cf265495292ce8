package corofleet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ozanturksever/corofleet/conf"
)

// Transport kinds understood by the membership layer.
const (
	TransportUDP  = "udp"
	TransportUDPU = "udpu"
)

// RRP modes for dual-ring configurations.
const (
	RRPPassive = "passive"
	RRPActive  = "active"
)

const defaultMcastPort = "5405"

// defaultMcastAddr returns the deterministic multicast group for ring i.
func defaultMcastAddr(ring int) string {
	return fmt.Sprintf("239.255.%d.1", ring+1)
}

// RingOptions holds per-ring transport settings (udp transport only).
type RingOptions struct {
	BindAddr  string
	Broadcast bool
	McastAddr string
	McastPort string
	TTL       string
}

// TransportOptions describes how the membership layer moves traffic.
// Broadcast is only meaningful on the legacy stack, where it applies to the
// whole cluster rather than per ring.
type TransportOptions struct {
	Transport string
	RRPMode   string
	IPVersion string
	Broadcast bool
	Rings     []RingOptions
}

// NodeEntry is one member of the cluster. Ring1Addr is set only for
// redundant-ring (RRP) clusters.
type NodeEntry struct {
	ID        int
	Ring0Addr string
	Ring1Addr string
}

// ClusterConfig is the in-memory form of the cluster membership
// configuration. It is created once at setup and mutated in place by node
// add/remove.
type ClusterConfig struct {
	Name      string
	Transport TransportOptions
	Totem     map[string]string
	Quorum    map[string]string

	// Device carries the quorum device settings verbatim. The device is
	// managed elsewhere; this layer only preserves it and reads its model.
	Device map[string]string

	Nodes []NodeEntry
}

// totemOptionNames fixes the emission order of totem timing parameters.
var totemOptionNames = []string{
	"token",
	"token_coefficient",
	"join",
	"consensus",
	"miss_count_const",
	"fail_recv_const",
}

// quorumOptionNames fixes the emission order of quorum-behavior flags.
var quorumOptionNames = []string{
	"wait_for_all",
	"auto_tie_breaker",
	"last_man_standing",
	"last_man_standing_window",
}

// quorumBoolOptions must carry "0" or "1".
var quorumBoolOptions = []string{
	"wait_for_all",
	"auto_tie_breaker",
	"last_man_standing",
}

// SetupOptions are the raw cluster-creation inputs before validation.
type SetupOptions struct {
	Transport string
	RRPMode   string
	IPv6      bool

	Addr0, Addr1           string
	Broadcast0, Broadcast1 bool
	Mcast0, Mcast1         string
	McastPort0, McastPort1 string
	TTL0, TTL1             string

	Totem  map[string]string
	Quorum map[string]string

	// Force downgrades most validation errors to warnings.
	Force bool
}

// ParseNodeAddress splits a "ring0[,ring1]" node argument.
func ParseNodeAddress(spec string) (ring0, ring1 string) {
	parts := strings.SplitN(spec, ",", 2)
	ring0 = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		ring1 = strings.TrimSpace(parts[1])
	}
	return ring0, ring1
}

// parseSetupOptions validates and completes the option bundle shared by both
// config generation paths. Findings are accumulated as reports; any
// error-severity finding makes the bundle unusable.
func parseSetupOptions(o SetupOptions) (TransportOptions, map[string]string, map[string]string, Reports) {
	var reports Reports

	transport := o.Transport
	if transport == "" {
		transport = TransportUDPU
	}
	if transport != TransportUDP && transport != TransportUDPU {
		reports = append(reports, report(o.Force, fmt.Sprintf(
			"invalid transport %q, allowed values are: udp, udpu", transport)))
	}

	topts := TransportOptions{Transport: transport}

	if transport == TransportUDPU && (o.Addr0 != "" || o.Addr1 != "") {
		reports = append(reports, report(o.Force,
			"ring addresses (--addr0, --addr1) are not used with udpu transport"))
	}

	if o.RRPMode != "" || o.Addr0 != "" {
		rrpmode := o.RRPMode
		if rrpmode == "" {
			rrpmode = RRPPassive
		}
		if rrpmode != RRPPassive && rrpmode != RRPActive {
			reports = append(reports, report(o.Force, fmt.Sprintf(
				"invalid RRP mode %q, allowed values are: passive, active", rrpmode)))
		}
		if rrpmode == RRPActive {
			reports = append(reports, report(o.Force, "using RRP active mode is not supported"))
		}
		topts.RRPMode = rrpmode
	}

	if transport == TransportUDP {
		rings := []struct {
			addr      string
			broadcast bool
			mcast     string
			port      string
			ttl       string
		}{
			{o.Addr0, o.Broadcast0, o.Mcast0, o.McastPort0, o.TTL0},
			{o.Addr1, o.Broadcast1, o.Mcast1, o.McastPort1, o.TTL1},
		}
		for i, ring := range rings {
			if ring.addr == "" {
				break
			}
			ropts := RingOptions{BindAddr: ring.addr}
			if ring.broadcast {
				ropts.Broadcast = true
			} else {
				ropts.McastAddr = ring.mcast
				if ropts.McastAddr == "" {
					ropts.McastAddr = defaultMcastAddr(i)
				}
				ropts.McastPort = ring.port
				if ropts.McastPort == "" {
					ropts.McastPort = defaultMcastPort
				}
				ropts.TTL = ring.ttl
			}
			topts.Rings = append(topts.Rings, ropts)
		}
	}

	if o.IPv6 {
		topts.IPVersion = "ipv6"
	}

	totem := make(map[string]string)
	for _, name := range totemOptionNames {
		if value, ok := o.Totem[name]; ok {
			totem[name] = value
		}
	}

	quorumOpts := make(map[string]string)
	for _, name := range quorumOptionNames {
		if value, ok := o.Quorum[name]; ok {
			quorumOpts[name] = value
		}
	}
	for _, name := range quorumBoolOptions {
		if value, ok := quorumOpts[name]; ok && value != "0" && value != "1" {
			// a bad flag value is never meaningful, not forceable
			reports = append(reports, Report{
				Severity: SeverityError,
				Message:  fmt.Sprintf("invalid %s value %q, allowed values are: 0, 1", name, value),
			})
		}
	}

	return topts, totem, quorumOpts, reports
}

// NewClusterConfig builds a validated ClusterConfig from raw node address
// specs and setup options. Node ids are assigned sequentially from 1 in
// declaration order.
func NewClusterConfig(name string, nodeSpecs []string, opts SetupOptions) (*ClusterConfig, Reports, error) {
	topts, totem, quorumOpts, reports := parseSetupOptions(opts)

	var nodes []NodeEntry
	rrp := false
	for i, spec := range nodeSpecs {
		ring0, ring1 := ParseNodeAddress(spec)
		if ring0 == "" {
			reports = append(reports, Report{
				Severity: SeverityError,
				Message:  fmt.Sprintf("missing ring 0 address in node %q", spec),
			})
			continue
		}
		if ring1 != "" {
			rrp = true
		}
		nodes = append(nodes, NodeEntry{ID: i + 1, Ring0Addr: ring0, Ring1Addr: ring1})
	}
	if rrp {
		for _, node := range nodes {
			if node.Ring1Addr == "" {
				reports = append(reports, Report{
					Severity: SeverityError,
					Message:  "if one node is configured for RRP, all nodes must be configured for RRP",
				})
				break
			}
		}
		if topts.RRPMode == "" {
			topts.RRPMode = RRPPassive
		}
	}

	if err := reports.Err(); err != nil {
		return nil, reports, err
	}

	cfg := &ClusterConfig{
		Name:      name,
		Transport: topts,
		Totem:     totem,
		Quorum:    quorumOpts,
		Nodes:     nodes,
	}
	if err := cfg.Validate(); err != nil {
		return nil, reports, err
	}
	return cfg, reports, nil
}

// Validate checks the structural invariants of the config.
func (c *ClusterConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("cluster name is required")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}
	seenID := make(map[int]bool, len(c.Nodes))
	seenAddr := make(map[string]bool, len(c.Nodes))
	rrp := false
	for _, node := range c.Nodes {
		if node.Ring0Addr == "" {
			return fmt.Errorf("node %d: ring 0 address is required", node.ID)
		}
		if seenID[node.ID] {
			return fmt.Errorf("duplicate node id %d", node.ID)
		}
		seenID[node.ID] = true
		if seenAddr[node.Ring0Addr] {
			return fmt.Errorf("duplicate node address %s", node.Ring0Addr)
		}
		seenAddr[node.Ring0Addr] = true
		if node.Ring1Addr != "" {
			rrp = true
		}
	}
	if rrp {
		for _, node := range c.Nodes {
			if node.Ring1Addr == "" {
				return fmt.Errorf("node %s has no ring 1 address but the cluster uses RRP", node.Ring0Addr)
			}
		}
	}
	if c.Transport.Transport == TransportUDPU {
		for _, ring := range c.Transport.Rings {
			if ring.BindAddr != "" {
				return fmt.Errorf("ring bind addresses cannot be used with udpu transport")
			}
		}
	}
	return nil
}

// AutoTieBreaker reports whether the tie-breaker flag is active.
func (c *ClusterConfig) AutoTieBreaker() bool {
	return c.Quorum["auto_tie_breaker"] == "1"
}

// TwoNode reports whether the two-node safety marker must be emitted:
// exactly two members and no tie-breaker.
func (c *ClusterConfig) TwoNode() bool {
	return len(c.Nodes) == 2 && !c.AutoTieBreaker()
}

// QuorumDeviceModel returns the configured quorum device model, empty when no
// device is configured.
func (c *ClusterConfig) QuorumDeviceModel() string {
	return c.Device["model"]
}

// NodeAddresses returns the ring 0 address of every member in order.
func (c *ClusterConfig) NodeAddresses() []string {
	addrs := make([]string, len(c.Nodes))
	for i, node := range c.Nodes {
		addrs[i] = node.Ring0Addr
	}
	return addrs
}

// HasNode reports whether addr is a member's ring 0 address.
func (c *ClusterConfig) HasNode(addr string) bool {
	for _, node := range c.Nodes {
		if node.Ring0Addr == addr {
			return true
		}
	}
	return false
}

// RRP reports whether the cluster runs dual rings.
func (c *ClusterConfig) RRP() bool {
	for _, node := range c.Nodes {
		if node.Ring1Addr != "" {
			return true
		}
	}
	return false
}

// CorosyncConf renders the config as a corosync.conf section tree. Top-level
// sections appear as totem, nodelist, quorum, logging, in that order.
func (c *ClusterConfig) CorosyncConf() *conf.Section {
	root := conf.NewRoot()

	totem := conf.NewSection("totem")
	nodelist := conf.NewSection("nodelist")
	quorumSec := conf.NewSection("quorum")
	logging := conf.NewSection("logging")
	root.AddSection(totem)
	root.AddSection(nodelist)
	root.AddSection(quorumSec)
	root.AddSection(logging)

	totem.AddAttribute("version", "2")
	totem.AddAttribute("secauth", "off")
	totem.AddAttribute("cluster_name", c.Name)
	if c.Transport.Transport != "" {
		totem.AddAttribute("transport", c.Transport.Transport)
	}
	if c.Transport.RRPMode != "" {
		totem.AddAttribute("rrp_mode", c.Transport.RRPMode)
	}
	if c.Transport.IPVersion != "" {
		totem.AddAttribute("ip_version", c.Transport.IPVersion)
	}
	for _, name := range totemOptionNames {
		if value, ok := c.Totem[name]; ok {
			totem.AddAttribute(name, value)
		}
	}
	if c.Transport.Transport == TransportUDP {
		for ring, ropts := range c.Transport.Rings {
			iface := conf.NewSection("interface")
			totem.AddSection(iface)
			iface.AddAttribute("ringnumber", strconv.Itoa(ring))
			if ropts.BindAddr != "" {
				iface.AddAttribute("bindnetaddr", ropts.BindAddr)
			}
			if ropts.Broadcast {
				iface.AddAttribute("broadcast", "yes")
				continue
			}
			if ropts.McastAddr != "" {
				iface.AddAttribute("mcastaddr", ropts.McastAddr)
			}
			if ropts.McastPort != "" {
				iface.AddAttribute("mcastport", ropts.McastPort)
			}
			if ropts.TTL != "" {
				iface.AddAttribute("ttl", ropts.TTL)
			}
		}
	}

	for _, node := range c.Nodes {
		sec := conf.NewSection("node")
		nodelist.AddSection(sec)
		sec.AddAttribute("ring0_addr", node.Ring0Addr)
		if node.Ring1Addr != "" {
			sec.AddAttribute("ring1_addr", node.Ring1Addr)
		}
		sec.AddAttribute("nodeid", strconv.Itoa(node.ID))
	}

	quorumSec.AddAttribute("provider", "corosync_votequorum")
	for _, name := range quorumOptionNames {
		if value, ok := c.Quorum[name]; ok {
			quorumSec.AddAttribute(name, value)
		}
	}
	if c.TwoNode() {
		quorumSec.AddAttribute("two_node", "1")
	}
	if len(c.Device) > 0 {
		device := conf.NewSection("device")
		quorumSec.AddSection(device)
		if model, ok := c.Device["model"]; ok {
			device.AddAttribute("model", model)
		}
		keys := make([]string, 0, len(c.Device))
		for key := range c.Device {
			if key != "model" {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			device.AddAttribute(key, c.Device[key])
		}
	}

	logging.AddAttribute("to_logfile", "yes")
	logging.AddAttribute("logfile", "/var/log/cluster/corosync.log")
	logging.AddAttribute("to_syslog", "yes")

	return root
}

// ParseClusterConfig rebuilds a ClusterConfig from corosync.conf text. It is
// the inverse of CorosyncConf for configs this package generates.
func ParseClusterConfig(text string) (*ClusterConfig, error) {
	root, err := conf.Parse(text)
	if err != nil {
		return nil, err
	}

	cfg := &ClusterConfig{
		Totem:  make(map[string]string),
		Quorum: make(map[string]string),
	}

	if totem, ok := root.Section("totem"); ok {
		cfg.Name, _ = totem.Attribute("cluster_name")
		cfg.Transport.Transport, _ = totem.Attribute("transport")
		cfg.Transport.RRPMode, _ = totem.Attribute("rrp_mode")
		cfg.Transport.IPVersion, _ = totem.Attribute("ip_version")
		for _, name := range totemOptionNames {
			if value, ok := totem.Attribute(name); ok {
				cfg.Totem[name] = value
			}
		}
		for _, iface := range totem.Sections("interface") {
			ring := RingOptions{}
			ring.BindAddr, _ = iface.Attribute("bindnetaddr")
			if bcast, ok := iface.Attribute("broadcast"); ok && bcast == "yes" {
				ring.Broadcast = true
			}
			ring.McastAddr, _ = iface.Attribute("mcastaddr")
			ring.McastPort, _ = iface.Attribute("mcastport")
			ring.TTL, _ = iface.Attribute("ttl")
			cfg.Transport.Rings = append(cfg.Transport.Rings, ring)
		}
	}

	if nodelist, ok := root.Section("nodelist"); ok {
		for _, sec := range nodelist.Sections("node") {
			node := NodeEntry{}
			node.Ring0Addr, _ = sec.Attribute("ring0_addr")
			node.Ring1Addr, _ = sec.Attribute("ring1_addr")
			if id, ok := sec.Attribute("nodeid"); ok {
				node.ID, err = strconv.Atoi(id)
				if err != nil {
					return nil, fmt.Errorf("invalid nodeid %q: %w", id, err)
				}
			}
			cfg.Nodes = append(cfg.Nodes, node)
		}
	}

	if quorumSec, ok := root.Section("quorum"); ok {
		for _, name := range quorumOptionNames {
			if value, ok := quorumSec.Attribute(name); ok {
				cfg.Quorum[name] = value
			}
		}
		if device, ok := quorumSec.Section("device"); ok {
			cfg.Device = make(map[string]string)
			for _, attr := range device.Attributes() {
				cfg.Device[attr.Name] = attr.Value
			}
		}
	}

	return cfg, nil
}

// nextNodeID returns the lowest unused node id, counting from 1.
func (c *ClusterConfig) nextNodeID() int {
	used := make(map[int]bool, len(c.Nodes))
	for _, node := range c.Nodes {
		used[node.ID] = true
	}
	id := 1
	for used[id] {
		id++
	}
	return id
}

// AddNode appends a member with the next free id. The new entry must match
// the cluster's RRP posture.
func (c *ClusterConfig) AddNode(ring0, ring1 string) (NodeEntry, error) {
	if c.HasNode(ring0) {
		return NodeEntry{}, fmt.Errorf("node %s already exists in configuration", ring0)
	}
	if c.RRP() && ring1 == "" {
		return NodeEntry{}, fmt.Errorf("cluster is configured for RRP, you have to specify ring 1 address for the node")
	}
	if !c.RRP() && ring1 != "" {
		return NodeEntry{}, fmt.Errorf("cluster is not configured for RRP, you must not specify ring 1 address for the node")
	}
	node := NodeEntry{ID: c.nextNodeID(), Ring0Addr: ring0, Ring1Addr: ring1}
	c.Nodes = append(c.Nodes, node)
	return node, nil
}

// RemoveNode deletes the member with the given ring 0 address.
func (c *ClusterConfig) RemoveNode(addr string) error {
	for i, node := range c.Nodes {
		if node.Ring0Addr == addr {
			c.Nodes = append(c.Nodes[:i], c.Nodes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("node '%s' does not appear to exist in configuration", addr)
}
