package quorum

import "testing"

const quorumToolOutput = `Quorum information
------------------
Date:             Fri Aug 29 10:08:12 2025
Quorum provider:  corosync_votequorum
Nodes:            3
Node ID:          1
Ring ID:          1/8272
Quorate:          Yes

Votequorum information
----------------------
Expected votes:   3
Highest expected: 3
Total votes:      3
Quorum:           2
Flags:            Quorate

Membership information
----------------------
    Nodeid      Votes Name
         1          1 node-a (local)
         2          1 node-b
         3          1 node-c
`

const quorumToolQdeviceOutput = `Quorum information
------------------
Quorate:          Yes

Votequorum information
----------------------
Expected votes:   4
Total votes:      4
Quorum:           3
Flags:            Quorate Qdevice

Membership information
----------------------
    Nodeid      Votes    Qdevice Name
         1          1    A,V,NMW node-a (local)
         2          1    A,V,NMW node-b
`

const cmanOutput = `Version: 6.2.0
Config Version: 10
Cluster Name: testcluster
Membership state: Cluster-Member
Nodes: 2
Expected votes: 2
Total votes: 2
Node votes: 1
Quorum: 2
Node name: node-a
Node ID: 1
---Votes---
1 M 1 node-a
2 M 1 node-b
3 X 1 node-c
`

func TestParseQuorumTool(t *testing.T) {
	snap := ParseQuorumTool(quorumToolOutput)
	if !snap.Determinable {
		t.Fatal("expected a determinable snapshot")
	}
	if !snap.Quorate {
		t.Error("expected quorate")
	}
	if snap.VotesExpected != 3 {
		t.Errorf("VotesExpected = %d, want 3", snap.VotesExpected)
	}
	if snap.Threshold != 2 {
		t.Errorf("Threshold = %d, want 2", snap.Threshold)
	}
	if len(snap.Nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(snap.Nodes))
	}
	if snap.Nodes[0].Name != "node-a" || !snap.Nodes[0].Local {
		t.Errorf("first node = %+v, want node-a marked local", snap.Nodes[0])
	}
	if snap.Nodes[2].Name != "node-c" || snap.Nodes[2].Local {
		t.Errorf("third node = %+v, want node-c not local", snap.Nodes[2])
	}
}

func TestParseQuorumToolQdevice(t *testing.T) {
	snap := ParseQuorumTool(quorumToolQdeviceOutput)
	if !snap.Determinable {
		t.Fatal("expected a determinable snapshot")
	}
	if len(snap.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(snap.Nodes))
	}
	if snap.Nodes[0].Name != "node-a" {
		t.Errorf("first node name = %q, want node-a", snap.Nodes[0].Name)
	}
	if !snap.Nodes[0].Local {
		t.Error("first node must be local")
	}
	if snap.Nodes[1].Name != "node-b" {
		t.Errorf("second node name = %q, want node-b", snap.Nodes[1].Name)
	}
}

func TestParseQuorumToolFlags(t *testing.T) {
	out := `Quorate:          Yes
Expected votes:   4
Quorum:           2
Flags:            Quorate AutoTieBreaker LastManStanding

Membership information
----------------------
    Nodeid      Votes Name
         1          1 node-a (local)
         2          1 node-b
`
	snap := ParseQuorumTool(out)
	if !snap.Flags.AutoTieBreaker {
		t.Error("expected AutoTieBreaker flag")
	}
	if !snap.Flags.LastManStanding {
		t.Error("expected LastManStanding flag")
	}
}

func TestParseQuorumToolMalformed(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"empty", ""},
		{"garbage", "this is not quorum output"},
		{"missing members", "Quorate: Yes\nExpected votes: 3\nQuorum: 2\n"},
		{
			"bad votes",
			"Quorate: Yes\nExpected votes: 3\nQuorum: 2\n\nMembership information\n----\nNodeid Votes Name\n1 x node-a\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := ParseQuorumTool(tt.output)
			if snap.Determinable {
				t.Error("malformed output must not be determinable")
			}
		})
	}
}

func TestNodeOffline(t *testing.T) {
	if !NodeOffline("Cannot initialize CMAP service\n") {
		t.Error("offline marker not recognized")
	}
	if NodeOffline(quorumToolOutput) {
		t.Error("regular output misread as offline")
	}
}

func TestParseCMAN(t *testing.T) {
	snap := ParseCMAN(cmanOutput)
	if !snap.Determinable {
		t.Fatal("expected a determinable snapshot")
	}
	if !snap.Quorate {
		t.Error("expected quorate")
	}
	if snap.Threshold != 2 {
		t.Errorf("Threshold = %d, want 2", snap.Threshold)
	}
	// the X entry is not a member and holds no vote
	if len(snap.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(snap.Nodes))
	}
	if !snap.Nodes[0].Local {
		t.Error("node id 1 must be marked local")
	}
	if snap.Nodes[1].Local {
		t.Error("node id 2 must not be local")
	}
}

func TestParseCMANNotMember(t *testing.T) {
	out := `Membership state: Not-in-Cluster
Expected votes: 2
Quorum: 2
Node ID: 1
---Votes---
1 M 1 node-a
`
	snap := ParseCMAN(out)
	if !snap.Determinable {
		t.Fatal("expected a determinable snapshot")
	}
	if snap.Quorate {
		t.Error("a node outside the cluster cannot be quorate")
	}
}
