package quorum

import (
	"strconv"
	"strings"
)

// offlineMarker is what corosync-quorumtool prints when corosync is down.
const offlineMarker = "Cannot initialize CMAP service"

// NodeOffline reports whether the quorum tool output indicates the membership
// layer is not running on the node at all.
func NodeOffline(output string) bool {
	return strings.TrimSpace(output) == offlineMarker
}

// ParseQuorumTool normalizes `corosync-quorumtool -p -s` output. The returned
// snapshot has Determinable=false when required fields are missing or
// malformed.
func ParseQuorumTool(output string) *Snapshot {
	snap := &Snapshot{}
	haveQuorate := false
	haveQuorum := false

	inMembers := false
	nameIndex := 2
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if inMembers {
			if strings.HasPrefix(line, "-") {
				continue
			}
			if strings.HasPrefix(line, "Nodeid") {
				// the Qdevice column shifts the name over
				if strings.Contains(line, "Qdevice") {
					nameIndex = 3
				}
				continue
			}
			fields := strings.Fields(line)
			if len(fields) <= nameIndex {
				return &Snapshot{}
			}
			votes, err := strconv.Atoi(fields[1])
			if err != nil {
				return &Snapshot{}
			}
			node := NodeVotes{
				Name:  fields[nameIndex],
				Votes: votes,
				Local: fields[len(fields)-1] == "(local)",
			}
			snap.Nodes = append(snap.Nodes, node)
			continue
		}

		if line == "Membership information" {
			inMembers = true
			continue
		}
		key, value, ok := splitField(line)
		if !ok {
			continue
		}
		switch key {
		case "Quorate":
			snap.Quorate = strings.EqualFold(value, "yes")
			haveQuorate = true
		case "Expected votes":
			n, err := strconv.Atoi(value)
			if err != nil {
				return &Snapshot{}
			}
			snap.VotesExpected = n
		case "Quorum":
			// value may carry a suffix, e.g. "2 Activity blocked"
			n, err := strconv.Atoi(strings.Fields(value)[0])
			if err != nil {
				return &Snapshot{}
			}
			snap.Threshold = n
			haveQuorum = true
		case "Flags":
			snap.Flags = parseFlags(value)
		}
	}

	if !haveQuorate || !haveQuorum || len(snap.Nodes) == 0 {
		return &Snapshot{}
	}
	snap.Determinable = true
	return snap
}

// ParseCMAN normalizes the combined `cman_tool status` output followed by a
// `---Votes---` marker and `cman_tool nodes -F id,type,votes,name` lines.
func ParseCMAN(output string) *Snapshot {
	snap := &Snapshot{}
	haveQuorate := false
	haveQuorum := false

	inVotes := false
	localID := ""
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if inVotes {
			fields := strings.Fields(line)
			if len(fields) < 4 {
				return &Snapshot{}
			}
			if fields[1] != "M" {
				// only actual members hold votes
				continue
			}
			votes, err := strconv.Atoi(fields[2])
			if err != nil {
				return &Snapshot{}
			}
			snap.Nodes = append(snap.Nodes, NodeVotes{
				Name:  fields[3],
				Votes: votes,
				Local: localID != "" && fields[0] == localID,
			})
			continue
		}

		if line == "---Votes---" {
			inVotes = true
			continue
		}
		key, value, ok := splitField(line)
		if !ok {
			continue
		}
		switch key {
		case "Membership state":
			snap.Quorate = value == "Cluster-Member"
			haveQuorate = true
		case "Expected votes":
			n, err := strconv.Atoi(value)
			if err != nil {
				return &Snapshot{}
			}
			snap.VotesExpected = n
		case "Quorum":
			n, err := strconv.Atoi(strings.Fields(value)[0])
			if err != nil {
				return &Snapshot{}
			}
			snap.Threshold = n
			haveQuorum = true
		case "Node ID":
			localID = value
		}
	}

	if !haveQuorate || !haveQuorum || len(snap.Nodes) == 0 {
		return &Snapshot{}
	}
	snap.Determinable = true
	return snap
}

func splitField(line string) (key, value string, ok bool) {
	i := strings.Index(line, ":")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

func parseFlags(value string) Flags {
	var f Flags
	for _, field := range strings.Fields(value) {
		switch field {
		case "AutoTieBreaker":
			f.AutoTieBreaker = true
		case "LastManStanding":
			f.LastManStanding = true
		}
	}
	return f
}
