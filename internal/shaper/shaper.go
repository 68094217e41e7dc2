// Package shaper translates ChannelMetrics into kernel traffic-control
// (tc/netem/HTB) commands and executes them inside a target network
// namespace (spec.md §4.8, component C9). Commands are built as plain
// []string argument lists and run through a narrow Executor interface,
// covering both shaping modes spec.md calls for: point-to-point and
// per-destination shared-bridge.
package shaper

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/joshuamhtsang/sine/internal/cerrors"
)

const (
	minRateMbps  = 0.1
	minDelayMs   = 0.1
	minBurstKbit = 32.0
)

// NetemParams is the netem-facing subset of a ChannelMetrics record.
type NetemParams struct {
	DelayMs     float64
	JitterMs    float64
	LossPercent float64
	RateMbps    float64
}

// clip applies spec.md §4.8's minimums so a degraded or near-zero
// ChannelMetrics never produces a kernel-rejected or nonsensical command.
func (p NetemParams) clip() NetemParams {
	p.RateMbps = math.Max(p.RateMbps, minRateMbps)
	p.DelayMs = math.Max(p.DelayMs, minDelayMs)
	return p
}

// burstKbit is the rate-limiter burst size spec.md §4.8 requires to
// satisfy kernel HZ quantisation.
func burstKbit(rateMbps float64) float64 {
	return math.Max(minBurstKbit, rateMbps*1000/250)
}

// Executor runs a tc command inside the network namespace of the process
// identified by pid. Implementations typically shell out to
// `nsenter -t <pid> -n tc ...` (or enter the namespace directly via
// setns on Linux); the shaper never assumes which.
type Executor interface {
	Exec(ctx context.Context, pid int, cmd []string) (string, error)
}

// Shaper applies and removes tc configuration via an Executor.
type Shaper struct {
	Exec Executor
}

// New returns a Shaper backed by exec.
func New(exec Executor) *Shaper {
	return &Shaper{Exec: exec}
}

// Failure is one interface's failed shaping command, recorded rather
// than raised per spec.md §4.8 ("errors during add are fatal for that
// interface and must be recorded in a failure list, not raised").
type Failure struct {
	Node      string
	Interface string
	Command   []string
	Err       error
}

// reset removes any existing qdisc hierarchy on iface. Errors are
// ignored: the interface may not have one yet (spec.md §4.8, "replace
// not mutate").
func (s *Shaper) reset(ctx context.Context, pid int, iface string) {
	_, _ = s.Exec.Exec(ctx, pid, []string{"tc", "qdisc", "del", "dev", iface, "root"})
}

// ApplyPointToPoint installs a netem qdisc plus a rate-limiting token
// bucket child on iface, per spec.md §4.8 mode 2. node/ifaceName are
// used only to label a returned Failure.
func (s *Shaper) ApplyPointToPoint(ctx context.Context, pid int, node, ifaceName string, params NetemParams) *Failure {
	s.reset(ctx, pid, ifaceName)

	p := params.clip()
	commands := pointToPointCommands(ifaceName, p)
	for _, cmd := range commands {
		if _, err := s.Exec.Exec(ctx, pid, cmd); err != nil {
			return &Failure{Node: node, Interface: ifaceName, Command: cmd, Err: cerrors.New(cerrors.KindShaper, "shaper.ApplyPointToPoint", err)}
		}
	}
	return nil
}

func pointToPointCommands(iface string, p NetemParams) [][]string {
	netemOpts := []string{"delay", fmt.Sprintf("%.2fms", p.DelayMs)}
	if p.JitterMs > 0 {
		netemOpts = append(netemOpts, fmt.Sprintf("%.2fms", p.JitterMs))
	}
	if p.LossPercent > 0 {
		netemOpts = append(netemOpts, "loss", fmt.Sprintf("%.4f%%", p.LossPercent))
	}

	netemCmd := append([]string{"tc", "qdisc", "add", "dev", iface, "root", "handle", "1:", "netem"}, netemOpts...)

	tbfCmd := []string{
		"tc", "qdisc", "add", "dev", iface, "parent", "1:", "handle", "2:", "tbf",
		"rate", fmt.Sprintf("%.4fmbit", p.RateMbps),
		"burst", fmt.Sprintf("%.0fkbit", burstKbit(p.RateMbps)),
		"latency", "50ms",
	}

	return [][]string{netemCmd, tbfCmd}
}

// PerDestination is the per-peer-destination shaping input for one
// shared-bridge interface (spec.md §4.8 mode 1).
type PerDestination struct {
	Default NetemParams
	// Dest maps a peer's destination IP to its own NetemParams.
	Dest map[string]NetemParams
}

// ApplyPerDestination installs the HTB hierarchy described in spec.md
// §4.8 mode 1: a default class for broadcast/multicast, and one rate
// limited + netem-shaped class per peer destination IP, classified via
// a flower filter. Destination IPs are iterated in sorted order so the
// generated class IDs (and command sequence) are deterministic across
// runs, which matters for tests and for diffing tc dumps.
func (s *Shaper) ApplyPerDestination(ctx context.Context, pid int, node, ifaceName string, cfg PerDestination) *Failure {
	s.reset(ctx, pid, ifaceName)

	commands := perDestinationCommands(ifaceName, cfg)
	for _, cmd := range commands {
		if _, err := s.Exec.Exec(ctx, pid, cmd); err != nil {
			return &Failure{Node: node, Interface: ifaceName, Command: cmd, Err: cerrors.New(cerrors.KindShaper, "shaper.ApplyPerDestination", err)}
		}
	}
	return nil
}

func perDestinationCommands(iface string, cfg PerDestination) [][]string {
	var commands [][]string

	commands = append(commands,
		[]string{"tc", "qdisc", "add", "dev", iface, "root", "handle", "1:", "htb", "default", "99"},
		[]string{"tc", "class", "add", "dev", iface, "parent", "1:", "classid", "1:1", "htb", "rate", "1000mbit"},
		[]string{"tc", "class", "add", "dev", iface, "parent", "1:1", "classid", "1:99", "htb", "rate", "1000mbit"},
	)

	def := cfg.Default.clip()
	defaultNetemOpts := []string{"delay", fmt.Sprintf("%.2fms", def.DelayMs)}
	if def.JitterMs > 0 {
		defaultNetemOpts = append(defaultNetemOpts, fmt.Sprintf("%.2fms", def.JitterMs))
	}
	commands = append(commands, append([]string{
		"tc", "qdisc", "add", "dev", iface, "parent", "1:99", "handle", "99:", "netem",
	}, defaultNetemOpts...))

	destIPs := make([]string, 0, len(cfg.Dest))
	for ip := range cfg.Dest {
		destIPs = append(destIPs, ip)
	}
	sort.Strings(destIPs)

	classID := 10
	for _, ip := range destIPs {
		p := cfg.Dest[ip].clip()
		classid := fmt.Sprintf("1:%d", classID)
		// The netem child's handle reuses classID as its major number
		// (spec.md §6.3): classID starts at 10 and climbs by 10 per
		// destination, so it never collides with the root qdisc's
		// handle 1: or the default class's netem handle 99:, unlike the
		// peer's plain iteration slot would.
		handle := fmt.Sprintf("%d:", classID)

		commands = append(commands,
			[]string{"tc", "class", "add", "dev", iface, "parent", "1:1", "classid", classid, "htb", "rate", fmt.Sprintf("%.4fmbit", p.RateMbps)},
		)

		netemOpts := []string{"delay", fmt.Sprintf("%.2fms", p.DelayMs)}
		if p.JitterMs > 0 {
			netemOpts = append(netemOpts, fmt.Sprintf("%.2fms", p.JitterMs))
		}
		if p.LossPercent > 0 {
			netemOpts = append(netemOpts, "loss", fmt.Sprintf("%.4f%%", p.LossPercent))
		}
		commands = append(commands, append([]string{
			"tc", "qdisc", "add", "dev", iface, "parent", classid, "handle", handle, "netem",
		}, netemOpts...))

		commands = append(commands, []string{
			"tc", "filter", "add", "dev", iface, "protocol", "ip", "parent", "1:0", "prio", "1",
			"flower", "dst_ip", ip, "action", "pass", "flowid", classid,
		})

		classID += 10
	}

	return commands
}
