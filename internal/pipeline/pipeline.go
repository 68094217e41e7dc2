// Package pipeline orchestrates the per-link channel computation (spec.md
// §4.7, component C8): for a batch of directed links it drives path
// solving (C3), interference aggregation (C4), SINR (C5), the MAC model
// (C6), and MCS selection (C7) into a ChannelMetrics record ready for
// the shaper emitter (C9).
package pipeline

import (
	"fmt"

	"github.com/joshuamhtsang/sine/internal/cerrors"
	"github.com/joshuamhtsang/sine/internal/interference"
	"github.com/joshuamhtsang/sine/internal/linkbudget"
	"github.com/joshuamhtsang/sine/internal/logging"
	"github.com/joshuamhtsang/sine/internal/mac"
	"github.com/joshuamhtsang/sine/internal/modulation"
	"github.com/joshuamhtsang/sine/internal/pathsolver"
	"github.com/joshuamhtsang/sine/internal/sinr"
	"github.com/joshuamhtsang/sine/internal/topology"
)

// ChannelMetrics is the per-directed-link output described in spec.md
// §3: everything the shaper emitter needs to render netem parameters.
type ChannelMetrics struct {
	RxPowerDBm float64
	SNRdB      float64
	SINRdB     float64
	BER        float64
	PER        float64

	Modulation modulation.Scheme
	CodeRate   float64
	FEC        modulation.FEC

	DelayMs     float64
	JitterMs    float64
	LossPercent float64
	RateMbps    float64

	Regime   sinr.Regime
	Degraded bool
}

// degradedMetrics is the synthetic record spec.md §4.7 step 6 and §7
// ("PathComputeError ... synthesise degraded PathResult") require when a
// link's computation fails: maximal loss, floor rate, so the shaper
// still has something installable rather than leaving a stale rule.
func degradedMetrics() ChannelMetrics {
	return ChannelMetrics{
		RxPowerDBm:  -200,
		SNRdB:       -200,
		SINRdB:      -200,
		BER:         0.5,
		PER:         1.0,
		LossPercent: 100,
		RateMbps:    0.1,
		Regime:      sinr.RegimeUnusable,
		Degraded:    true,
	}
}

// ChannelContext carries the stateful collaborators the pipeline reuses
// across batches: the cached path solver and the base SINR sensitivity
// configuration. Per spec.md's REDESIGN FLAGS, this replaces implicit
// global state for "the current interference engine, SINR calculator,
// and scene key" with an explicit struct passed by reference.
type ChannelContext struct {
	Solver        *pathsolver.CachedSolver
	CaptureEffect bool
	CaptureMargin float64
	Logger        *logging.Logger
}

// NewChannelContext wraps solver with the SINR defaults of spec.md §4.5.
func NewChannelContext(solver *pathsolver.CachedSolver, log *logging.Logger) *ChannelContext {
	if log == nil {
		log = logging.Nop()
	}
	return &ChannelContext{Solver: solver, CaptureMargin: 6.0, Logger: log}
}

// LinkFailure records a recovered per-link error (spec.md §4.7 step 6).
type LinkFailure struct {
	Link topology.LinkID
	Err  error
}

// Result is the outcome of one batch recompute.
type Result struct {
	Metrics  map[topology.LinkID]ChannelMetrics
	Failures []LinkFailure
}

// interfaceEntry is one row of the per-batch interface index built in
// step 3 of spec.md §4.7.
type interfaceEntry struct {
	node   string
	iface  string
	params *topology.WirelessParams
}

func sourceKey(node, iface string) string { return node + "/" + iface }

// RunBatch computes ChannelMetrics for every link in links, in the given
// order, against topo and ctx. sceneFreqHz/sceneBwHz are the scene-wide
// carrier parameters used to decide whether the solver needs reloading
// (spec.md §4.7 step 2); individual links may still carry their own TX
// frequency/bandwidth for path-loss and ACLR purposes.
func RunBatch(topo *topology.Topology, ctx *ChannelContext, links []topology.LinkID, sceneFreqHz, sceneBwHz float64) (Result, error) {
	// Step 1: reset hysteresis on every MCS table in the topology.
	for _, table := range topo.MCSTables {
		table.ResetHysteresis()
	}

	// Step 2: reload the solver only if the scene key changed.
	if err := ctx.Solver.EnsureScene(topo.SceneRef, sceneFreqHz, sceneBwHz); err != nil {
		return Result{}, cerrors.New(cerrors.KindPathCompute, "pipeline.RunBatch", fmt.Errorf("loading scene %q: %w", topo.SceneRef, err))
	}

	// Step 3: build the interface-keyed index.
	index := buildInterfaceIndex(topo)

	result := Result{Metrics: make(map[topology.LinkID]ChannelMetrics, len(links))}

	for _, link := range links {
		metrics, err := computeLink(topo, ctx, index, link)
		if err != nil {
			ctx.Logger.Warn("link computation failed, using degraded metrics", "tx", link.TxNode+"/"+link.TxIface, "rx", link.RxNode+"/"+link.RxIface, "error", err.Error())
			result.Failures = append(result.Failures, LinkFailure{Link: link, Err: err})
			result.Metrics[link] = degradedMetrics()
			continue
		}
		result.Metrics[link] = metrics
	}

	return result, nil
}

func buildInterfaceIndex(topo *topology.Topology) map[string]interfaceEntry {
	index := make(map[string]interfaceEntry)
	for _, ref := range topo.WirelessInterfaces() {
		iface, _ := topo.Iface(ref.Node, ref.Interface)
		index[sourceKey(ref.Node, ref.Interface)] = interfaceEntry{
			node:   ref.Node,
			iface:  ref.Interface,
			params: iface.Wireless,
		}
	}
	return index
}

func computeLink(topo *topology.Topology, ctx *ChannelContext, index map[string]interfaceEntry, link topology.LinkID) (ChannelMetrics, error) {
	op := "pipeline.computeLink"

	txEntry, ok := index[sourceKey(link.TxNode, link.TxIface)]
	if !ok {
		return ChannelMetrics{}, cerrors.New(cerrors.KindUnknownEntity, op, fmt.Errorf("unknown tx interface %s/%s", link.TxNode, link.TxIface))
	}
	rxEntry, ok := index[sourceKey(link.RxNode, link.RxIface)]
	if !ok {
		return ChannelMetrics{}, cerrors.New(cerrors.KindUnknownEntity, op, fmt.Errorf("unknown rx interface %s/%s", link.RxNode, link.RxIface))
	}
	tx, rx := txEntry.params, rxEntry.params

	// 5a. Solve the signal path (cached).
	txDevice := pathsolver.Device{Name: link.TxIface, Position: tx.Position, Antenna: tx.Antenna(), Polarization: pathsolver.Polarization(tx.Polarization)}
	rxDevice := pathsolver.Device{Name: link.RxIface, Position: rx.Position, Antenna: rx.Antenna(), Polarization: pathsolver.Polarization(rx.Polarization)}

	rxFreqHz, rxBwHz := rx.FrequencyHz, rx.BandwidthHz
	if rxFreqHz == 0 {
		rxFreqHz = tx.FrequencyHz
	}
	if rxBwHz == 0 {
		rxBwHz = tx.BandwidthHz
	}

	path, err := ctx.Solver.ComputePair(txDevice, rxDevice, topo.SceneRef, tx.FrequencyHz, tx.BandwidthHz)
	if err != nil {
		return ChannelMetrics{}, cerrors.New(cerrors.KindPathCompute, op, err)
	}

	// 5b. Link budget.
	txGain, rxGain := antennaGainDB(tx), antennaGainDB(rx)
	signalPowerDBm := linkbudget.RxPowerDBm(tx.TxPowerDBm, txGain, rxGain, path.PathLossDB, path.GainsEmbedded)
	noiseDBm := linkbudget.ThermalNoise(rxBwHz, 290, rx.NoiseFigureDB)
	snrDB := signalPowerDBm - noiseDBm

	// 5c. Build the interferer candidate set.
	candidates := make([]string, 0, len(index))
	for key, entry := range index {
		if key == sourceKey(link.TxNode, link.TxIface) || key == sourceKey(link.RxNode, link.RxIface) {
			continue
		}
		if entry.node == link.RxNode {
			continue // same-node as victim: handled by self_isolation_db on the bridge, not here
		}
		if !entry.params.IsActive {
			continue
		}
		candidates = append(candidates, key)
	}

	// 5d. MAC model transmission probabilities.
	probs, err := macProbabilities(tx, link, candidates, index)
	if err != nil {
		return ChannelMetrics{}, cerrors.New(cerrors.KindConfig, op, err)
	}

	// 5e. Interference aggregation. Source is the interferer's node name
	// (not its interface key) so the MAC model's per-node probabilities
	// (5d) line up with interference.Term.Source below; TxProbability is
	// left at 1 here deliberately — the actual MAC weighting is applied
	// once, by CalculateWithProbabilities, rather than twice.
	interferers := make([]interference.Interferer, 0, len(candidates))
	for _, key := range candidates {
		entry := index[key]
		ifaceTx := entry.params
		interPath, err := ctx.Solver.ComputePair(
			pathsolver.Device{Name: entry.iface, Position: ifaceTx.Position, Antenna: ifaceTx.Antenna(), Polarization: pathsolver.Polarization(ifaceTx.Polarization)},
			rxDevice, topo.SceneRef, ifaceTx.FrequencyHz, ifaceTx.BandwidthHz)
		if err != nil {
			continue // one bad interferer path does not fail the link; it is simply dropped
		}
		interferers = append(interferers, interference.Interferer{
			Source:        entry.node,
			TxPowerDBm:    ifaceTx.TxPowerDBm,
			TxGainDB:      antennaGainDB(ifaceTx),
			RxGainDB:      rxGain,
			PathLossDB:    interPath.PathLossDB,
			GainsEmbedded: interPath.GainsEmbedded,
			FreqHz:        ifaceTx.FrequencyHz,
			BwHz:          ifaceTx.BandwidthHz,
			TxProbability: 1.0,
		})
	}
	aggregated := interference.Aggregate(rxFreqHz, rxBwHz, interferers)

	// 5f. SINR, weighted by the MAC model's per-node transmit
	// probabilities (probs holds 1.0 for every interferer when the MAC
	// model is None, which reduces to the deterministic case).
	calc := &sinr.Calculator{RxSensitivityDBm: rx.RxSensitivityDBm, ApplyCaptureEffect: ctx.CaptureEffect, CaptureThresholdDB: ctx.CaptureMargin}
	sinrResult := calc.CalculateWithProbabilities(link.TxNode+"/"+link.TxIface, link.RxNode+"/"+link.RxIface, signalPowerDBm, noiseDBm, aggregated.Terms, probs)

	// 5g. Feed SNR or SINR into MCS selection depending on enable_sinr.
	effectiveSNR := snrDB
	if topo.EnableSINR {
		effectiveSNR = sinrResult.SINRdB
	}

	entry, err := selectMCS(topo, tx, link, effectiveSNR)
	if err != nil {
		return ChannelMetrics{}, cerrors.New(cerrors.KindConfig, op, err)
	}

	// 5h. BER/BLER/PER at the effective SNR. BER is reported uncoded;
	// PER folds in the FEC coding gain via BLER over a 1500-byte packet.
	const packetBits = 1500 * 8
	ber := modulation.TheoreticalBER(entry.Modulation, effectiveSNR)
	per := modulation.BLER(entry.Modulation, entry.FEC, entry.CodeRate, effectiveSNR, packetBits)

	// 5i. netem parameters.
	delayMs, jitterMs := modulation.DelayJitterMs(path.MinDelayNs, path.RMSDelayNs)
	rateMbps := modulation.EffectiveRateMbps(tx.BandwidthHz/1e6, entry.BitsPerSymbol, entry.CodeRate, per)
	if tx.MAC != nil && tx.MAC.Kind == topology.MACTdma {
		multiplier, err := tdmaThroughputMultiplier(tx.MAC.Tdma, link.TxNode)
		if err == nil {
			rateMbps *= multiplier
			if rateMbps < 0.1 {
				rateMbps = 0.1
			}
		}
	}

	return ChannelMetrics{
		RxPowerDBm:  signalPowerDBm,
		SNRdB:       snrDB,
		SINRdB:      sinrResult.SINRdB,
		BER:         ber,
		PER:         per,
		Modulation:  entry.Modulation,
		CodeRate:    entry.CodeRate,
		FEC:         entry.FEC,
		DelayMs:     delayMs,
		JitterMs:    jitterMs,
		LossPercent: per * 100,
		RateMbps:    rateMbps,
		Regime:      sinrResult.Regime,
	}, nil
}

func antennaGainDB(w *topology.WirelessParams) float64 {
	if w.AntennaGainDBi != nil {
		return *w.AntennaGainDBi
	}
	return 0 // embedded in path_loss_db by the solver when a pattern is used
}

// selectMCS resolves either the interface's fixed modulation or its MCS
// table entry, applying per-link hysteresis in the latter case.
func selectMCS(topo *topology.Topology, tx *topology.WirelessParams, link topology.LinkID, effectiveSNR float64) (modulation.MCSEntry, error) {
	if tx.Modulation != nil {
		rate := 1.0
		if tx.CodeRate != nil {
			rate = *tx.CodeRate
		}
		fec := modulation.FECNone
		if tx.FEC != nil {
			fec = *tx.FEC
		}
		bits := modulation.BitsPerSymbol[*tx.Modulation]
		return modulation.MCSEntry{
			Modulation:         *tx.Modulation,
			CodeRate:           rate,
			FEC:                fec,
			BitsPerSymbol:      bits,
			SpectralEfficiency: float64(bits) * rate,
		}, nil
	}

	table, ok := topo.MCSTables[tx.MCSTableRef]
	if !ok {
		return modulation.MCSEntry{}, fmt.Errorf("mcs table %q not found for link %s/%s -> %s/%s", tx.MCSTableRef, link.TxNode, link.TxIface, link.RxNode, link.RxIface)
	}
	linkID := fmt.Sprintf("%s/%s->%s/%s", link.TxNode, link.TxIface, link.RxNode, link.RxIface)
	return table.SelectWithHysteresis(linkID, effectiveSNR), nil
}

func macProbabilities(tx *topology.WirelessParams, link topology.LinkID, candidates []string, index map[string]interfaceEntry) (map[string]float64, error) {
	nodeSet := make(map[string]bool)
	for _, key := range candidates {
		nodeSet[index[key].node] = true
	}
	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}

	if tx.MAC == nil || tx.MAC.Kind == topology.MACNone {
		model := mac.None{}
		return model.TxProbabilities(link.TxNode, link.RxNode, nodes)
	}

	switch tx.MAC.Kind {
	case topology.MACCsma:
		positions := make(map[string]mac.Position, len(index)+1)
		positions[link.TxNode] = tx.Position
		for _, key := range candidates {
			positions[index[key].node] = index[key].params.Position
		}
		budget := mac.LinkBudgetParams{
			TxPowerDBm:  tx.TxPowerDBm,
			TxGainDB:    antennaGainDB(tx),
			NoiseDBm:    linkbudget.ThermalNoise(tx.BandwidthHz, 290, tx.NoiseFigureDB),
			MinSNRDB:    10, // conservative default communication-range margin
			FrequencyHz: tx.FrequencyHz,
		}
		model := mac.NewCSMA(mac.CSMAParams{
			CarrierSenseMultiplier: tx.MAC.Csma.CarrierSenseMultiplier,
			TrafficLoad:            tx.MAC.Csma.TrafficLoad,
		}, positions, budget)
		return model.TxProbabilities(link.TxNode, link.RxNode, nodes)
	case topology.MACTdma:
		model, err := mac.NewTDMA(mac.TDMAParams{
			FrameMs:         tx.MAC.Tdma.FrameMs,
			NumSlots:        tx.MAC.Tdma.NumSlots,
			SlotMode:        tx.MAC.Tdma.SlotMode,
			FixedSlotMap:    tx.MAC.Tdma.FixedSlotMap,
			SlotProbability: tx.MAC.Tdma.SlotProbability,
			AllNodes:        append(nodes, link.TxNode, link.RxNode),
		})
		if err != nil {
			return nil, err
		}
		return model.TxProbabilities(link.TxNode, link.RxNode, nodes)
	default:
		return nil, fmt.Errorf("unknown mac model kind %q", tx.MAC.Kind)
	}
}

func tdmaThroughputMultiplier(cfg topology.TDMAConfig, node string) (float64, error) {
	model, err := mac.NewTDMA(mac.TDMAParams{
		FrameMs:         cfg.FrameMs,
		NumSlots:        cfg.NumSlots,
		SlotMode:        cfg.SlotMode,
		FixedSlotMap:    cfg.FixedSlotMap,
		SlotProbability: cfg.SlotProbability,
		AllNodes:        allNodesFromSlotMap(cfg, node),
	})
	if err != nil {
		return 1.0, err
	}
	return model.ThroughputMultiplier(node)
}

// allNodesFromSlotMap returns a node list sufficient to validate
// round_robin mode even when only the throughput-multiplier call site
// (not the full candidate set) is available.
func allNodesFromSlotMap(cfg topology.TDMAConfig, node string) []string {
	if cfg.SlotMode != mac.SlotRoundRobin {
		return nil
	}
	nodes := make([]string, 0, len(cfg.FixedSlotMap)+1)
	seen := map[string]bool{node: true}
	nodes = append(nodes, node)
	for n := range cfg.FixedSlotMap {
		if !seen[n] {
			nodes = append(nodes, n)
			seen[n] = true
		}
	}
	return nodes
}
