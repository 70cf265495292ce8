// Package quorum normalizes the output of the cluster quorum tools into a
// single snapshot and answers whether stopping or removing nodes would drop
// the cluster below its quorum threshold.
//
// Two text formats are supported: the current corosync-quorumtool output and
// the legacy cman_tool output. Each has its own parser; both produce the same
// Snapshot shape so the decision logic is written once.
package quorum

// Scope selects which nodes a quorum-loss check is about.
type Scope int

const (
	// ScopeLocal checks the effect of stopping the local node only.
	ScopeLocal Scope = iota
	// ScopeNodes checks the effect of stopping an explicit node set.
	ScopeNodes
)

// NodeVotes is one cluster member as reported by the quorum tool.
type NodeVotes struct {
	Name  string
	Votes int
	Local bool
}

// Flags are quorum-behavior options that relax the vote threshold.
type Flags struct {
	AutoTieBreaker  bool
	LastManStanding bool
}

// Snapshot is a normalized view of the cluster's quorum state.
//
// Determinable is false when the tool output could not be parsed; callers
// must treat that as "unknown", never as "safe".
type Snapshot struct {
	Quorate       bool
	VotesExpected int
	Threshold     int
	Nodes         []NodeVotes
	Flags         Flags
	Determinable  bool
}

// VotesPresent is the sum of votes of all members in the snapshot.
func (s *Snapshot) VotesPresent() int {
	total := 0
	for _, n := range s.Nodes {
		total += n.Votes
	}
	return total
}

// EffectiveThreshold returns the vote count required to keep quorum. The
// threshold reported by the tool wins; otherwise a majority of the expected
// votes is used, relaxed by the tie-breaker and last-man-standing flags.
func (s *Snapshot) EffectiveThreshold() int {
	threshold := s.Threshold
	if threshold == 0 {
		threshold = s.VotesExpected/2 + 1
		if s.Flags.AutoTieBreaker && s.VotesExpected%2 == 0 {
			threshold--
		}
	}
	if s.Flags.LastManStanding && threshold > 1 {
		threshold--
	}
	if threshold < 1 {
		threshold = 1
	}
	return threshold
}

// WouldLoseQuorum reports whether removing the given nodes from the cluster
// drops the remaining votes below the quorum threshold. For ScopeLocal the
// removed set is the node marked local in the snapshot and the nodes argument
// is ignored. A cluster that is already not quorate has nothing to lose.
func (s *Snapshot) WouldLoseQuorum(scope Scope, nodes []string) bool {
	if !s.Determinable {
		// unknown state is resolved by the caller, not guessed here
		return true
	}
	if !s.Quorate {
		return false
	}

	removed := make(map[string]bool, len(nodes))
	for _, name := range nodes {
		removed[name] = true
	}

	remaining := 0
	for _, n := range s.Nodes {
		leaving := false
		switch scope {
		case ScopeLocal:
			leaving = n.Local
		case ScopeNodes:
			leaving = removed[n.Name]
		}
		if !leaving {
			remaining += n.Votes
		}
	}
	return remaining < s.EffectiveThreshold()
}
