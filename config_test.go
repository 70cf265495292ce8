package corofleet

import (
	"strings"
	"testing"
)

func TestNewClusterConfigRendering(t *testing.T) {
	cfg, reports, err := NewClusterConfig("demo", []string{"node-a", "node-b", "node-c"}, SetupOptions{})
	if err != nil {
		t.Fatalf("NewClusterConfig() error: %v\n%s", err, reports)
	}

	want := `totem {
    version: 2
    secauth: off
    cluster_name: demo
    transport: udpu
}

nodelist {
    node {
        ring0_addr: node-a
        nodeid: 1
    }
    node {
        ring0_addr: node-b
        nodeid: 2
    }
    node {
        ring0_addr: node-c
        nodeid: 3
    }
}

quorum {
    provider: corosync_votequorum
}

logging {
    to_logfile: yes
    logfile: /var/log/cluster/corosync.log
    to_syslog: yes
}
`
	if got := cfg.CorosyncConf().String(); got != want {
		t.Errorf("rendered configuration mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestTwoNodeMarker(t *testing.T) {
	cfg, _, err := NewClusterConfig("demo", []string{"node-a", "node-b"}, SetupOptions{})
	if err != nil {
		t.Fatalf("NewClusterConfig() error: %v", err)
	}
	if !cfg.TwoNode() {
		t.Error("two node cluster must carry the two_node marker")
	}
	text := cfg.CorosyncConf().String()
	if !strings.Contains(text, "two_node: 1") {
		t.Error("two_node missing from rendered configuration")
	}

	// the tie breaker replaces the marker
	cfg, _, err = NewClusterConfig("demo", []string{"node-a", "node-b"}, SetupOptions{
		Quorum: map[string]string{"auto_tie_breaker": "1"},
	})
	if err != nil {
		t.Fatalf("NewClusterConfig() error: %v", err)
	}
	if cfg.TwoNode() {
		t.Error("auto_tie_breaker must suppress the two_node marker")
	}
	if strings.Contains(cfg.CorosyncConf().String(), "two_node") {
		t.Error("two_node rendered despite auto_tie_breaker")
	}

	// three nodes never get the marker
	cfg, _, err = NewClusterConfig("demo", []string{"node-a", "node-b", "node-c"}, SetupOptions{})
	if err != nil {
		t.Fatalf("NewClusterConfig() error: %v", err)
	}
	if cfg.TwoNode() {
		t.Error("three node cluster must not carry the two_node marker")
	}
}

func TestSetupOptionValidation(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		opts  SetupOptions
	}{
		{
			name:  "invalid transport",
			nodes: []string{"node-a", "node-b"},
			opts:  SetupOptions{Transport: "sctp"},
		},
		{
			name:  "ring address with udpu",
			nodes: []string{"node-a", "node-b"},
			opts:  SetupOptions{Addr0: "192.168.1.0"},
		},
		{
			name:  "invalid rrp mode",
			nodes: []string{"node-a,node-a2", "node-b,node-b2"},
			opts:  SetupOptions{RRPMode: "round-robin"},
		},
		{
			name:  "mixed rrp posture",
			nodes: []string{"node-a,node-a2", "node-b"},
		},
		{
			name:  "bad quorum flag value",
			nodes: []string{"node-a", "node-b"},
			opts:  SetupOptions{Quorum: map[string]string{"auto_tie_breaker": "yes"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := NewClusterConfig("demo", tt.nodes, tt.opts); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestSetupOptionForce(t *testing.T) {
	// forced invalid transport becomes a warning
	_, reports, err := NewClusterConfig("demo", []string{"node-a", "node-b"},
		SetupOptions{Transport: "sctp", Force: true})
	if err != nil {
		t.Fatalf("forced setup failed: %v", err)
	}
	if len(reports.Warnings()) == 0 {
		t.Error("forced invalid transport must leave a warning")
	}

	// a bad quorum flag value stays fatal even when forced
	_, _, err = NewClusterConfig("demo", []string{"node-a", "node-b"},
		SetupOptions{Quorum: map[string]string{"wait_for_all": "yes"}, Force: true})
	if err == nil {
		t.Error("bad quorum flag value must not be forceable")
	}
}

func TestUDPRingDefaults(t *testing.T) {
	cfg, _, err := NewClusterConfig("demo", []string{"node-a", "node-b"}, SetupOptions{
		Transport: TransportUDP,
		Addr0:     "192.168.1.0",
		Addr1:     "192.168.2.0",
	})
	if err != nil {
		t.Fatalf("NewClusterConfig() error: %v", err)
	}
	rings := cfg.Transport.Rings
	if len(rings) != 2 {
		t.Fatalf("got %d rings, want 2", len(rings))
	}
	if rings[0].McastAddr != "239.255.1.1" || rings[1].McastAddr != "239.255.2.1" {
		t.Errorf("multicast defaults = %s, %s", rings[0].McastAddr, rings[1].McastAddr)
	}
	if rings[0].McastPort != "5405" {
		t.Errorf("multicast port default = %s, want 5405", rings[0].McastPort)
	}
	if cfg.Transport.RRPMode != RRPPassive {
		t.Errorf("RRP mode = %q, want passive when ring addresses are set", cfg.Transport.RRPMode)
	}

	text := cfg.CorosyncConf().String()
	for _, want := range []string{"ringnumber: 0", "bindnetaddr: 192.168.1.0", "mcastaddr: 239.255.1.1", "mcastport: 5405"} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered configuration missing %q", want)
		}
	}
}

func TestParseClusterConfigRoundTrip(t *testing.T) {
	cfg, _, err := NewClusterConfig("demo", []string{"node-a,alt-a", "node-b,alt-b"}, SetupOptions{
		Totem:  map[string]string{"token": "3000"},
		Quorum: map[string]string{"wait_for_all": "1"},
	})
	if err != nil {
		t.Fatalf("NewClusterConfig() error: %v", err)
	}
	text := cfg.CorosyncConf().String()

	parsed, err := ParseClusterConfig(text)
	if err != nil {
		t.Fatalf("ParseClusterConfig() error: %v", err)
	}
	if parsed.Name != "demo" {
		t.Errorf("Name = %q, want demo", parsed.Name)
	}
	if len(parsed.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(parsed.Nodes))
	}
	if parsed.Nodes[0].Ring1Addr != "alt-a" {
		t.Errorf("ring1 = %q, want alt-a", parsed.Nodes[0].Ring1Addr)
	}
	if parsed.Totem["token"] != "3000" {
		t.Errorf("token = %q, want 3000", parsed.Totem["token"])
	}
	if parsed.Quorum["wait_for_all"] != "1" {
		t.Errorf("wait_for_all = %q, want 1", parsed.Quorum["wait_for_all"])
	}
	if got := parsed.CorosyncConf().String(); got != text {
		t.Errorf("round trip mismatch:\ngot:\n%s\nwant:\n%s", got, text)
	}
}

func TestQuorumDevicePreserved(t *testing.T) {
	cfg, _, err := NewClusterConfig("demo", []string{"node-a", "node-b", "node-c"}, SetupOptions{})
	if err != nil {
		t.Fatalf("NewClusterConfig() error: %v", err)
	}
	cfg.Device = map[string]string{"model": "net", "algorithm": "ffsplit", "host": "arbiter"}

	text := cfg.CorosyncConf().String()
	for _, want := range []string{"device {", "model: net", "algorithm: ffsplit", "host: arbiter"} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered configuration missing %q", want)
		}
	}

	parsed, err := ParseClusterConfig(text)
	if err != nil {
		t.Fatalf("ParseClusterConfig() error: %v", err)
	}
	if parsed.QuorumDeviceModel() != "net" {
		t.Errorf("QuorumDeviceModel() = %q, want net", parsed.QuorumDeviceModel())
	}
	if got := parsed.CorosyncConf().String(); got != text {
		t.Errorf("device section not stable across a round trip:\ngot:\n%s\nwant:\n%s", got, text)
	}

	if cfg.QuorumDeviceModel() != "net" {
		t.Errorf("QuorumDeviceModel() = %q, want net", cfg.QuorumDeviceModel())
	}
	if plain, _, _ := NewClusterConfig("demo", []string{"node-a"}, SetupOptions{}); plain.QuorumDeviceModel() != "" {
		t.Error("a cluster without a device section must report no model")
	}
}

func TestAddNode(t *testing.T) {
	cfg, _, err := NewClusterConfig("demo", []string{"node-a", "node-b"}, SetupOptions{})
	if err != nil {
		t.Fatalf("NewClusterConfig() error: %v", err)
	}

	entry, err := cfg.AddNode("node-c", "")
	if err != nil {
		t.Fatalf("AddNode() error: %v", err)
	}
	if entry.ID != 3 {
		t.Errorf("new node id = %d, want 3", entry.ID)
	}
	if cfg.TwoNode() {
		t.Error("three node cluster still reports two_node")
	}

	if _, err := cfg.AddNode("node-c", ""); err == nil {
		t.Error("adding an existing node must fail")
	}
	if _, err := cfg.AddNode("node-d", "alt-d"); err == nil {
		t.Error("ring 1 address on a single ring cluster must fail")
	}
}

func TestAddNodeRRP(t *testing.T) {
	cfg, _, err := NewClusterConfig("demo", []string{"node-a,alt-a", "node-b,alt-b"}, SetupOptions{})
	if err != nil {
		t.Fatalf("NewClusterConfig() error: %v", err)
	}
	if _, err := cfg.AddNode("node-c", ""); err == nil {
		t.Error("missing ring 1 address on an RRP cluster must fail")
	}
	if _, err := cfg.AddNode("node-c", "alt-c"); err != nil {
		t.Errorf("AddNode() error: %v", err)
	}
}

func TestRemoveNodeAndIDReuse(t *testing.T) {
	cfg, _, err := NewClusterConfig("demo", []string{"node-a", "node-b", "node-c"}, SetupOptions{})
	if err != nil {
		t.Fatalf("NewClusterConfig() error: %v", err)
	}

	if err := cfg.RemoveNode("node-b"); err != nil {
		t.Fatalf("RemoveNode() error: %v", err)
	}
	if cfg.HasNode("node-b") {
		t.Error("node-b still present after removal")
	}
	if err := cfg.RemoveNode("node-x"); err == nil {
		t.Error("removing an unknown node must fail")
	}

	// the freed id is reused by the next addition
	entry, err := cfg.AddNode("node-d", "")
	if err != nil {
		t.Fatalf("AddNode() error: %v", err)
	}
	if entry.ID != 2 {
		t.Errorf("reused id = %d, want 2", entry.ID)
	}
}

func TestParseNodeAddress(t *testing.T) {
	tests := []struct {
		spec  string
		ring0 string
		ring1 string
	}{
		{"node-a", "node-a", ""},
		{"node-a,alt-a", "node-a", "alt-a"},
		{" node-a , alt-a ", "node-a", "alt-a"},
		{"", "", ""},
	}
	for _, tt := range tests {
		ring0, ring1 := ParseNodeAddress(tt.spec)
		if ring0 != tt.ring0 || ring1 != tt.ring1 {
			t.Errorf("ParseNodeAddress(%q) = %q, %q, want %q, %q",
				tt.spec, ring0, ring1, tt.ring0, tt.ring1)
		}
	}
}
