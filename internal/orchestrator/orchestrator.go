// Package orchestrator drives the top-level lifecycle described in
// spec.md §4.9 (component C10): load topology, wire the discovered
// container mapping, compute and apply the channel once at startup, then
// poll for mobility/activity changes and recompute on demand. Shared
// runtime state is mutex-guarded and the poll loop shuts down cleanly
// off a stop channel.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joshuamhtsang/sine/internal/cerrors"
	"github.com/joshuamhtsang/sine/internal/linkbudget"
	"github.com/joshuamhtsang/sine/internal/logging"
	"github.com/joshuamhtsang/sine/internal/pipeline"
	"github.com/joshuamhtsang/sine/internal/shaper"
	"github.com/joshuamhtsang/sine/internal/topology"
)

// PointToPointLink is one discovered directed container link (spec.md
// §6.2): two wireless interfaces connected outside any shared bridge.
type PointToPointLink struct {
	NodeA, IfaceA string
	NodeB, IfaceB string
}

// Discovery is everything the container orchestrator layer (§6.2) must
// supply before Orchestrator can compute or shape anything.
type Discovery struct {
	// PID maps node name to its container's process ID, for entering its
	// network namespace.
	PID map[string]int
	// LocalInterfaceName maps "node/iface" (topology names) to the
	// host/namespace-visible interface name the shaper must act on.
	LocalInterfaceName map[string]string
	// PointToPoint lists every directly-wired wireless pair outside a
	// shared bridge.
	PointToPoint []PointToPointLink
}

func localIfaceKey(node, iface string) string { return node + "/" + iface }

// LocalInterface resolves a topology (node, iface) pair to its
// discovery-supplied local name, falling back to the topology name
// itself when discovery has nothing more specific (useful in tests and
// for a bare veth setup where the names already match).
func (d Discovery) LocalInterface(node, iface string) string {
	if name, ok := d.LocalInterfaceName[localIfaceKey(node, iface)]; ok {
		return name
	}
	return iface
}

// Snapshot is the externally-visible result of the most recently
// completed recompute, read by the control surface (C11). It is swapped
// in as a whole so callers never observe a partially-updated batch
// (spec.md §4.9 step 5).
type Snapshot struct {
	Metrics     map[topology.LinkID]pipeline.ChannelMetrics
	Failures    []pipeline.LinkFailure
	ShaperFails []shaper.Failure
	ComputedAt  int64 // unix seconds, stamped by the caller after RunBatch returns

	// RecomputeID tags this batch for correlating log lines with the
	// /recompute response.
	RecomputeID string
}

// Orchestrator owns the mutable runtime state around an immutable
// Topology: discovered container wiring, the channel pipeline context,
// the shaper, and the last-published Snapshot.
type Orchestrator struct {
	mu  sync.RWMutex
	log *logging.Logger

	// recomputeMu serializes Recompute end to end (spec.md §5): the poll
	// loop, SetPositionXYZ, SetInterfaceActive, and the control surface's
	// forced recompute all call Recompute from independent goroutines,
	// and pipeline.RunBatch/applyShaping touch shared, non-concurrent-safe
	// state (the solver cache, the MCS hysteresis table, and per-interface
	// tc commands) that must never run as two overlapping batches.
	recomputeMu sync.Mutex

	topo      *topology.Topology
	discovery Discovery
	ctx       *pipeline.ChannelContext
	shaper    *shaper.Shaper

	sceneFreqHz, sceneBwHz float64

	snapshot Snapshot

	pollInterval time.Duration
	stopCh       chan struct{}
	stopped      bool
	started      bool
}

// Config configures a new Orchestrator.
type Config struct {
	Topology     *topology.Topology
	Discovery    Discovery
	ChannelCtx   *pipeline.ChannelContext
	Shaper       *shaper.Shaper
	SceneFreqHz  float64
	SceneBwHz    float64
	PollInterval time.Duration // defaults to 100ms, spec.md §4.9 step 5
	Logger       *logging.Logger
}

// New validates the topology and returns a ready Orchestrator. It does
// not yet compute or shape anything; call Start for that.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Topology == nil {
		return nil, cerrors.New(cerrors.KindConfig, "orchestrator.New", fmt.Errorf("topology is required"))
	}
	if err := cfg.Topology.Validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	return &Orchestrator{
		log:          log,
		topo:         cfg.Topology,
		discovery:    cfg.Discovery,
		ctx:          cfg.ChannelCtx,
		shaper:       cfg.Shaper,
		sceneFreqHz:  cfg.SceneFreqHz,
		sceneBwHz:    cfg.SceneBwHz,
		pollInterval: cfg.PollInterval,
		stopCh:       make(chan struct{}),
	}, nil
}

// Topology returns the orchestrator's (mutable, orchestrator-owned)
// topology. Callers must go through SetPositionXYZ/SetInterfaceActive to
// mutate it so recompute stays consistent with the published snapshot.
func (o *Orchestrator) Topology() *topology.Topology {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.topo
}

// Snapshot returns the most recently published recompute result.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot
}

// Position returns node's current position, derived from its first
// (sorted by interface name) wireless interface, per GET /position/{node}.
func (o *Orchestrator) Position(node string) (linkbudget.Vec3, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	n, ok := o.topo.Nodes[node]
	if !ok {
		return linkbudget.Vec3{}, cerrors.New(cerrors.KindUnknownEntity, "orchestrator.Position", fmt.Errorf("unknown node %q", node))
	}
	names := make([]string, 0, len(n.Interfaces))
	for name := range n.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		iface := n.Interfaces[name]
		if iface.Kind == topology.InterfaceWireless {
			return iface.Wireless.Position, nil
		}
	}
	return linkbudget.Vec3{}, cerrors.New(cerrors.KindInvalidRequest, "orchestrator.Position", fmt.Errorf("node %q has no wireless interfaces", node))
}

// InterfaceActive returns a wireless interface's current activity flag,
// per GET /interface/{node}/{iface}.
func (o *Orchestrator) InterfaceActive(node, iface string) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	wireless, ok := o.topo.Iface(node, iface)
	if !ok {
		return false, cerrors.New(cerrors.KindUnknownEntity, "orchestrator.InterfaceActive", fmt.Errorf("unknown interface %s/%s", node, iface))
	}
	if wireless.Kind != topology.InterfaceWireless {
		return false, cerrors.New(cerrors.KindInvalidRequest, "orchestrator.InterfaceActive", fmt.Errorf("%s/%s is not a wireless interface", node, iface))
	}
	return wireless.Wireless.IsActive, nil
}

// NodeSummary is one row of the GET /nodes listing.
type NodeSummary struct {
	Name     string
	Position linkbudget.Vec3
}

// Nodes lists every node with its current position, per GET /nodes.
func (o *Orchestrator) Nodes() []NodeSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	names := make([]string, 0, len(o.topo.Nodes))
	for name := range o.topo.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]NodeSummary, 0, len(names))
	for _, name := range names {
		pos, err := o.positionLocked(name)
		if err != nil {
			continue
		}
		summaries = append(summaries, NodeSummary{Name: name, Position: pos})
	}
	return summaries
}

// positionLocked is Position's body without re-acquiring the lock, for
// use by callers that already hold it (e.g. Nodes).
func (o *Orchestrator) positionLocked(node string) (linkbudget.Vec3, error) {
	n, ok := o.topo.Nodes[node]
	if !ok {
		return linkbudget.Vec3{}, fmt.Errorf("unknown node %q", node)
	}
	names := make([]string, 0, len(n.Interfaces))
	for name := range n.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		iface := n.Interfaces[name]
		if iface.Kind == topology.InterfaceWireless {
			return iface.Wireless.Position, nil
		}
	}
	return linkbudget.Vec3{}, fmt.Errorf("node %q has no wireless interfaces", node)
}

// links derives the full directed link list for one batch: every
// point-to-point pair (both directions) plus every ordered pair within
// each shared bridge, restricted to nodes that carry an interface named
// after the bridge — the convention this orchestrator uses to bind a
// node to a bridge, since SharedBridge names nodes but not interfaces
// (spec.md §3 leaves that binding to the deployment).
func (o *Orchestrator) links() []topology.LinkID {
	var links []topology.LinkID

	for _, p := range o.discovery.PointToPoint {
		links = append(links,
			topology.LinkID{TxNode: p.NodeA, TxIface: p.IfaceA, RxNode: p.NodeB, RxIface: p.IfaceB},
			topology.LinkID{TxNode: p.NodeB, TxIface: p.IfaceB, RxNode: p.NodeA, RxIface: p.IfaceA},
		)
	}

	for _, bridge := range o.topo.SharedBridges {
		members := make([]string, 0, len(bridge.Nodes))
		for _, node := range bridge.Nodes {
			if _, ok := o.topo.Iface(node, bridge.Name); ok {
				members = append(members, node)
			}
		}
		sort.Strings(members)
		for _, tx := range members {
			for _, rx := range members {
				if tx == rx {
					continue
				}
				links = append(links, topology.LinkID{TxNode: tx, TxIface: bridge.Name, RxNode: rx, RxIface: bridge.Name})
			}
		}
	}

	return links
}

// Recompute runs one full batch: compute every link's ChannelMetrics
// (C8), then apply shaping to every tx interface (C9), then publishes a
// single new Snapshot (spec.md §4.9 step 5's atomicity requirement).
func (o *Orchestrator) Recompute(ctx context.Context) (Snapshot, error) {
	o.recomputeMu.Lock()
	defer o.recomputeMu.Unlock()
	return o.recomputeLocked(ctx)
}

// recomputeLocked is Recompute's body for callers that already hold
// recomputeMu. SetPositionXYZ and SetInterfaceActive take it before
// mutating the topology so their mutation and the batch it triggers
// appear atomic to every other Recompute caller.
func (o *Orchestrator) recomputeLocked(ctx context.Context) (Snapshot, error) {
	o.mu.RLock()
	topo := o.topo
	links := o.links()
	o.mu.RUnlock()

	result, err := pipeline.RunBatch(topo, o.ctx, links, o.sceneFreqHz, o.sceneBwHz)
	if err != nil {
		return Snapshot{}, err
	}

	shaperFailures := o.applyShaping(ctx, links, result)

	recomputeID := uuid.NewString()
	snapshot := Snapshot{
		Metrics:     result.Metrics,
		Failures:    result.Failures,
		ShaperFails: shaperFailures,
		ComputedAt:  time.Now().Unix(),
		RecomputeID: recomputeID,
	}

	o.mu.Lock()
	o.snapshot = snapshot
	o.mu.Unlock()

	o.log.Debug("batch recompute completed", "recompute_id", recomputeID, "links", len(links))
	if len(result.Failures) > 0 {
		o.log.Warn("batch recompute completed with per-link failures", "recompute_id", recomputeID, "count", len(result.Failures))
	}
	if len(shaperFailures) > 0 {
		o.log.Warn("batch recompute completed with shaper failures", "recompute_id", recomputeID, "count", len(shaperFailures))
	}

	return snapshot, nil
}

// applyShaping installs point-to-point shaping for every directed link
// in this batch. Per-destination (shared-bridge) shaping is applied once
// per (node, bridge-interface) by grouping this batch's links by their
// tx side, so one HTB hierarchy is installed per physical interface
// rather than once per peer.
func (o *Orchestrator) applyShaping(ctx context.Context, links []topology.LinkID, result pipeline.Result) []shaper.Failure {
	type txKey struct{ node, iface string }
	grouped := make(map[txKey][]topology.LinkID)
	for _, link := range links {
		k := txKey{link.TxNode, link.TxIface}
		grouped[k] = append(grouped[k], link)
	}

	keys := make([]txKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].node != keys[j].node {
			return keys[i].node < keys[j].node
		}
		return keys[i].iface < keys[j].iface
	})

	var failures []shaper.Failure
	for _, k := range keys {
		peers := grouped[k]
		pid := o.discovery.PID[k.node]
		localIface := o.discovery.LocalInterface(k.node, k.iface)

		if len(peers) == 1 {
			metrics := result.Metrics[peers[0]]
			if f := o.shaper.ApplyPointToPoint(ctx, pid, k.node, localIface, toNetemParams(metrics)); f != nil {
				failures = append(failures, *f)
			}
			continue
		}

		cfg := shaper.PerDestination{Dest: make(map[string]shaper.NetemParams, len(peers))}
		for _, link := range peers {
			rxIface, ok := o.topo.Iface(link.RxNode, link.RxIface)
			if !ok || rxIface.IPAddress == "" {
				continue
			}
			cfg.Dest[rxIface.IPAddress] = toNetemParams(result.Metrics[link])
		}
		if f := o.shaper.ApplyPerDestination(ctx, pid, k.node, localIface, cfg); f != nil {
			failures = append(failures, *f)
		}
	}
	return failures
}

func toNetemParams(m pipeline.ChannelMetrics) shaper.NetemParams {
	return shaper.NetemParams{
		DelayMs:     m.DelayMs,
		JitterMs:    m.JitterMs,
		LossPercent: m.LossPercent,
		RateMbps:    m.RateMbps,
	}
}

// SetPositionXYZ updates every wireless interface of node to (x, y, z)
// and triggers a recompute, per the control surface's POST /position
// (spec.md §4.10).
func (o *Orchestrator) SetPositionXYZ(ctx context.Context, node string, x, y, z float64) error {
	o.recomputeMu.Lock()
	defer o.recomputeMu.Unlock()

	o.mu.Lock()
	n, ok := o.topo.Nodes[node]
	if !ok {
		o.mu.Unlock()
		return cerrors.New(cerrors.KindUnknownEntity, "orchestrator.SetPositionXYZ", fmt.Errorf("unknown node %q", node))
	}
	touched := false
	for _, iface := range n.Interfaces {
		if iface.Kind == topology.InterfaceWireless {
			iface.Wireless.Position.X, iface.Wireless.Position.Y, iface.Wireless.Position.Z = x, y, z
			touched = true
		}
	}
	o.mu.Unlock()

	if !touched {
		return cerrors.New(cerrors.KindInvalidRequest, "orchestrator.SetPositionXYZ", fmt.Errorf("node %q has no wireless interfaces", node))
	}
	_, err := o.recomputeLocked(ctx)
	return err
}

// SetInterfaceActive flips the is_active flag of a wireless interface and
// triggers a recompute, per the control surface's POST /interface.
func (o *Orchestrator) SetInterfaceActive(ctx context.Context, node, iface string, active bool) error {
	o.recomputeMu.Lock()
	defer o.recomputeMu.Unlock()

	o.mu.Lock()
	wireless, ok := o.topo.Iface(node, iface)
	if !ok {
		o.mu.Unlock()
		return cerrors.New(cerrors.KindUnknownEntity, "orchestrator.SetInterfaceActive", fmt.Errorf("unknown interface %s/%s", node, iface))
	}
	if wireless.Kind != topology.InterfaceWireless {
		o.mu.Unlock()
		return cerrors.New(cerrors.KindInvalidRequest, "orchestrator.SetInterfaceActive", fmt.Errorf("%s/%s is not a wireless interface", node, iface))
	}
	wireless.Wireless.IsActive = active
	o.mu.Unlock()

	_, err := o.recomputeLocked(ctx)
	return err
}

// Start computes and shapes the initial batch, then launches the
// mobility/activity polling loop in the background (spec.md §4.9 steps
// 4-5). It returns once the initial batch has completed.
func (o *Orchestrator) Start(ctx context.Context) error {
	if _, err := o.Recompute(ctx); err != nil {
		return err
	}
	o.mu.Lock()
	o.started = true
	o.mu.Unlock()
	go o.pollLoop(ctx)
	return nil
}

// Running reports whether Start has completed its initial batch and the
// poll loop has not been stopped, per the control surface's GET /health.
func (o *Orchestrator) Running() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.started && !o.stopped
}

func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if _, err := o.Recompute(ctx); err != nil {
				o.log.Error("poll-triggered recompute failed", "error", err.Error())
			}
		}
	}
}

// Stop halts the polling loop. It does not clear kernel shaping; callers
// that need a clean teardown should follow with per-interface
// shaper.Shaper resets (spec.md §4.9 step 6), which requires discovery
// data this package does not retain ownership of tearing down.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	o.stopped = true
	close(o.stopCh)
}
