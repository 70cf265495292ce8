package quorum

import "testing"

func threeNodeSnapshot() *Snapshot {
	return &Snapshot{
		Quorate:       true,
		VotesExpected: 3,
		Threshold:     2,
		Nodes: []NodeVotes{
			{Name: "node-a", Votes: 1, Local: true},
			{Name: "node-b", Votes: 1},
			{Name: "node-c", Votes: 1},
		},
		Determinable: true,
	}
}

func TestEffectiveThreshold(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want int
	}{
		{
			name: "reported threshold wins",
			snap: Snapshot{VotesExpected: 5, Threshold: 3},
			want: 3,
		},
		{
			name: "majority fallback odd",
			snap: Snapshot{VotesExpected: 5},
			want: 3,
		},
		{
			name: "majority fallback even",
			snap: Snapshot{VotesExpected: 4},
			want: 3,
		},
		{
			name: "tie breaker relaxes even clusters",
			snap: Snapshot{VotesExpected: 4, Flags: Flags{AutoTieBreaker: true}},
			want: 2,
		},
		{
			name: "tie breaker ignored on odd clusters",
			snap: Snapshot{VotesExpected: 5, Flags: Flags{AutoTieBreaker: true}},
			want: 3,
		},
		{
			name: "last man standing relaxes by one",
			snap: Snapshot{VotesExpected: 5, Flags: Flags{LastManStanding: true}},
			want: 2,
		},
		{
			name: "last man standing also applies to reported threshold",
			snap: Snapshot{VotesExpected: 5, Threshold: 3, Flags: Flags{LastManStanding: true}},
			want: 2,
		},
		{
			name: "threshold never drops below one",
			snap: Snapshot{VotesExpected: 1, Flags: Flags{LastManStanding: true}},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.EffectiveThreshold(); got != tt.want {
				t.Errorf("EffectiveThreshold() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWouldLoseQuorum(t *testing.T) {
	t.Run("removing one of three is safe", func(t *testing.T) {
		snap := threeNodeSnapshot()
		if snap.WouldLoseQuorum(ScopeNodes, []string{"node-b"}) {
			t.Error("removing one node from a three node cluster must keep quorum")
		}
	})

	t.Run("removing two of three loses quorum", func(t *testing.T) {
		snap := threeNodeSnapshot()
		if !snap.WouldLoseQuorum(ScopeNodes, []string{"node-b", "node-c"}) {
			t.Error("removing two nodes from a three node cluster must lose quorum")
		}
	})

	t.Run("local scope uses the local marker", func(t *testing.T) {
		snap := threeNodeSnapshot()
		if snap.WouldLoseQuorum(ScopeLocal, nil) {
			t.Error("stopping one node of three must keep quorum")
		}
		snap.Nodes[1].Votes = 0
		snap.Nodes[2].Votes = 0
		if !snap.WouldLoseQuorum(ScopeLocal, nil) {
			t.Error("stopping the only voting node must lose quorum")
		}
	})

	t.Run("not quorate means nothing to lose", func(t *testing.T) {
		snap := threeNodeSnapshot()
		snap.Quorate = false
		if snap.WouldLoseQuorum(ScopeNodes, []string{"node-a", "node-b", "node-c"}) {
			t.Error("a cluster without quorum cannot lose it")
		}
	})

	t.Run("undeterminable is reported as loss", func(t *testing.T) {
		snap := &Snapshot{}
		if !snap.WouldLoseQuorum(ScopeNodes, []string{"node-a"}) {
			t.Error("an unparseable state must never be treated as safe")
		}
	})

	t.Run("unknown nodes do not change the outcome", func(t *testing.T) {
		snap := threeNodeSnapshot()
		if snap.WouldLoseQuorum(ScopeNodes, []string{"node-x"}) {
			t.Error("removing a node the tool does not know must keep quorum")
		}
	})

	t.Run("weighted votes", func(t *testing.T) {
		snap := &Snapshot{
			Quorate:       true,
			VotesExpected: 4,
			Threshold:     3,
			Nodes: []NodeVotes{
				{Name: "node-a", Votes: 2},
				{Name: "node-b", Votes: 1},
				{Name: "node-c", Votes: 1},
			},
			Determinable: true,
		}
		if !snap.WouldLoseQuorum(ScopeNodes, []string{"node-a"}) {
			t.Error("removing the two vote node must lose quorum")
		}
		if snap.WouldLoseQuorum(ScopeNodes, []string{"node-b"}) {
			t.Error("removing a one vote node must keep quorum")
		}
	})
}

func TestVotesPresent(t *testing.T) {
	snap := threeNodeSnapshot()
	if got := snap.VotesPresent(); got != 3 {
		t.Errorf("VotesPresent() = %d, want 3", got)
	}
	snap.Nodes[0].Votes = 3
	if got := snap.VotesPresent(); got != 5 {
		t.Errorf("VotesPresent() = %d, want 5", got)
	}
}
