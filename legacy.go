package corofleet

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TransportUDPB is the broadcast transport of the legacy membership
// substrate.
const TransportUDPB = "udpb"

// ToolCommand is one invocation of the legacy cluster configuration tool.
type ToolCommand struct {
	Args   []string
	ErrMsg string
}

// legacyIgnoredOptions have no effect on the legacy substrate and are
// reported instead of silently dropped.
var legacyIgnoredOptions = []string{
	"wait_for_all",
	"auto_tie_breaker",
	"last_man_standing",
	"last_man_standing_window",
}

// parseLegacySetupOptions validates the option bundle for the legacy
// substrate. It accepts the same inputs as parseSetupOptions and rejects the
// same invalid combinations, plus the legacy-only rules around broadcast and
// unsupported quorum flags.
func parseLegacySetupOptions(o SetupOptions) (TransportOptions, map[string]string, Reports) {
	var reports Reports
	topts := TransportOptions{}

	broadcast := o.Broadcast0 || o.Broadcast1
	if broadcast {
		topts.Transport = TransportUDPB
		topts.Broadcast = true
		if !o.Broadcast0 || !o.Broadcast1 {
			reports = append(reports, Report{
				Severity: SeverityError,
				Message:  "broadcast must be enabled for all rings when used",
			})
		}
	} else {
		transport := o.Transport
		if transport == "" {
			transport = TransportUDP
		}
		if transport != TransportUDP && transport != TransportUDPU {
			reports = append(reports, report(o.Force, fmt.Sprintf(
				"invalid transport %q, allowed values are: udp, udpu", transport)))
		}
		topts.Transport = transport
	}

	if topts.Transport == TransportUDPU {
		reports = append(reports, Report{
			Severity: SeverityWarning,
			Message:  "using udpu transport on a legacy cluster, cluster restart is required after node changes",
		})
		if o.Addr0 != "" || o.Addr1 != "" {
			reports = append(reports, report(o.Force,
				"ring addresses (--addr0, --addr1) are not used with udpu transport"))
		}
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

	totem := make(map[string]string)
	for _, name := range totemOptionNames {
		if name == "token_coefficient" {
			continue
		}
		if value, ok := o.Totem[name]; ok {
			totem[name] = value
		}
	}

	if !broadcast {
		rings := []struct {
			addr  string
			mcast string
			port  string
			ttl   string
		}{
			{o.Addr0, o.Mcast0, o.McastPort0, o.TTL0},
			{o.Addr1, o.Mcast1, o.McastPort1, o.TTL1},
		}
		for i, ring := range rings {
			if ring.addr == "" {
				continue
			}
			ropts := RingOptions{BindAddr: ring.addr, McastAddr: ring.mcast}
			if ropts.McastAddr == "" {
				ropts.McastAddr = defaultMcastAddr(i)
			}
			ropts.McastPort = ring.port
			ropts.TTL = ring.ttl
			topts.Rings = append(topts.Rings, ropts)
		}
	}

	for _, name := range legacyIgnoredOptions {
		if _, ok := o.Quorum[name]; ok {
			reports = append(reports, Report{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("%s ignored on legacy clusters", name),
			})
		}
	}
	if _, ok := o.Totem["token_coefficient"]; ok {
		reports = append(reports, Report{
			Severity: SeverityWarning,
			Message:  "token_coefficient ignored on legacy clusters",
		})
	}
	if o.IPv6 {
		reports = append(reports, Report{
			Severity: SeverityWarning,
			Message:  "ipv6 ignored on legacy clusters",
		})
	}

	return topts, totem, reports
}

// buildLegacyCommands produces the ordered tool invocations that create the
// legacy cluster configuration for the given members. There is no structured
// text format on this substrate; the command sequence is the configuration.
func buildLegacyCommands(name string, nodes []NodeEntry, topts TransportOptions, totem map[string]string) []ToolCommand {
	var commands []ToolCommand
	commands = append(commands, ToolCommand{
		Args:   []string{"-i", "--createcluster", name},
		ErrMsg: fmt.Sprintf("error creating cluster: %s", name),
	})
	commands = append(commands, ToolCommand{
		Args:   []string{"-i", "--addfencedev", "pcmk-redirect", "agent=fence_pcmk"},
		ErrMsg: fmt.Sprintf("error creating fence dev: %s", name),
	})

	cmanOpts := []string{}
	if topts.Transport != "" && topts.Transport != TransportUDPB {
		cmanOpts = append(cmanOpts, "transport="+topts.Transport)
	}
	if topts.Broadcast {
		cmanOpts = append(cmanOpts, "broadcast=yes")
	} else {
		cmanOpts = append(cmanOpts, "broadcast=no")
	}
	if len(nodes) == 2 {
		cmanOpts = append(cmanOpts, "two_node=1", "expected_votes=1")
	}
	commands = append(commands, ToolCommand{
		Args:   append([]string{"--setcman"}, cmanOpts...),
		ErrMsg: "error setting cman options",
	})

	for _, node := range nodes {
		commands = append(commands, ToolCommand{
			Args:   []string{"--addnode", node.Ring0Addr},
			ErrMsg: fmt.Sprintf("error adding node: %s", node.Ring0Addr),
		})
		if node.Ring1Addr != "" {
			commands = append(commands, ToolCommand{
				Args:   []string{"--addalt", node.Ring0Addr, node.Ring1Addr},
				ErrMsg: fmt.Sprintf("error adding alternative address for node: %s", node.Ring0Addr),
			})
		}
		commands = append(commands, ToolCommand{
			Args:   []string{"-i", "--addmethod", "pcmk-method", node.Ring0Addr},
			ErrMsg: fmt.Sprintf("error adding fence method: %s", node.Ring0Addr),
		})
		commands = append(commands, ToolCommand{
			Args: []string{
				"-i", "--addfenceinst", "pcmk-redirect", node.Ring0Addr,
				"pcmk-method", "port=" + node.Ring0Addr,
			},
			ErrMsg: fmt.Sprintf("error adding fence instance: %s", node.Ring0Addr),
		})
	}

	if !topts.Broadcast {
		for ring, ropts := range topts.Rings {
			mcastOpts := []string{}
			if ropts.McastAddr != "" {
				mcastOpts = append(mcastOpts, ropts.McastAddr)
			}
			if ropts.McastPort != "" {
				mcastOpts = append(mcastOpts, "port="+ropts.McastPort)
			}
			if ropts.TTL != "" {
				mcastOpts = append(mcastOpts, "ttl="+ropts.TTL)
			}
			cmdName := "--setmulticast"
			if ring > 0 {
				cmdName = "--setaltmulticast"
			}
			commands = append(commands, ToolCommand{
				Args:   append([]string{cmdName}, mcastOpts...),
				ErrMsg: fmt.Sprintf("error adding ring%d settings", ring),
			})
		}
	}

	totemOpts := []string{}
	for _, name := range totemOptionNames {
		if name == "token_coefficient" {
			continue
		}
		if value, ok := totem[name]; ok {
			totemOpts = append(totemOpts, name+"="+value)
		}
	}
	if topts.RRPMode != "" {
		totemOpts = append(totemOpts, "rrp_mode="+topts.RRPMode)
	}
	if len(totemOpts) > 0 {
		commands = append(commands, ToolCommand{
			Args:   append([]string{"--settotem"}, totemOpts...),
			ErrMsg: "error setting totem options",
		})
	}

	return commands
}

// BuildLegacyClusterConf runs the legacy configuration tool sequence against
// a scratch file and returns the resulting configuration text.
func BuildLegacyClusterConf(ctx context.Context, runner CommandRunner, name string, nodeSpecs []string, opts SetupOptions) (string, Reports, error) {
	topts, totem, reports := parseLegacySetupOptions(opts)

	var nodes []NodeEntry
	for i, spec := range nodeSpecs {
		ring0, ring1 := ParseNodeAddress(spec)
		if ring0 == "" {
			reports = append(reports, Report{
				Severity: SeverityError,
				Message:  fmt.Sprintf("missing ring 0 address in node %q", spec),
			})
			continue
		}
		nodes = append(nodes, NodeEntry{ID: i + 1, Ring0Addr: ring0, Ring1Addr: ring1})
	}
	if err := reports.Err(); err != nil {
		return "", reports, err
	}

	scratch, err := os.CreateTemp("", "corofleet-*.conf")
	if err != nil {
		return "", reports, fmt.Errorf("unable to create scratch config: %w", err)
	}
	defer os.Remove(scratch.Name())
	scratch.Close()

	for _, cmd := range buildLegacyCommands(name, nodes, topts, totem) {
		args := append([]string{"-f", scratch.Name()}, cmd.Args...)
		output, err := runner.Run(ctx, "ccs", args...)
		if err != nil {
			if output = strings.TrimSpace(output); output != "" {
				return "", reports, fmt.Errorf("%s: %s", cmd.ErrMsg, output)
			}
			return "", reports, fmt.Errorf("%s: %w", cmd.ErrMsg, err)
		}
	}

	data, err := os.ReadFile(scratch.Name())
	if err != nil {
		return "", reports, fmt.Errorf("unable to read generated config: %w", err)
	}
	return string(data), reports, nil
}
