// Package mac implements the statistical MAC models (spec.md §4.6):
// None, CSMA carrier-sense, and TDMA slot ownership. Each model turns a
// set of candidate interferers into per-interferer transmission
// probabilities and a throughput multiplier for the link's own node,
// without discrete-event simulation — grounded in sine's TDMAModel and
// the CSMA carrier-sense description in spec.md §4.6.
package mac

import (
	"fmt"
	"math"

	"github.com/joshuamhtsang/sine/internal/cerrors"
	"github.com/joshuamhtsang/sine/internal/linkbudget"
)

// Model is a MAC statistical model. TxProbabilities returns, for a
// transmitter tx and receiver rx, the probability that each named
// interferer is transmitting concurrently. ThroughputMultiplier returns
// the fraction of time node can use the medium.
type Model interface {
	TxProbabilities(tx, rx string, interferers []string) (map[string]float64, error)
	ThroughputMultiplier(node string) (float64, error)
	Name() string
}

// None is the MAC model for an always-on channel: every interferer is
// assumed to transmit whenever the victim does (p=1), and throughput is
// unconstrained by medium access (multiplier 1).
type None struct{}

func (None) Name() string { return "none" }

func (None) TxProbabilities(tx, rx string, interferers []string) (map[string]float64, error) {
	probs := make(map[string]float64, len(interferers))
	for _, node := range interferers {
		if node == tx || node == rx {
			continue
		}
		probs[node] = 1.0
	}
	return probs, nil
}

func (None) ThroughputMultiplier(node string) (float64, error) {
	return 1.0, nil
}

// CSMAParams configures the carrier-sense model (spec.md §4.6).
type CSMAParams struct {
	// CarrierSenseMultiplier scales the link-budget-derived communication
	// range to get the carrier-sense range. Defaults to 2.5.
	CarrierSenseMultiplier float64
	// TrafficLoad is the transmission probability assigned to hidden
	// nodes (outside carrier-sense range). Defaults to 0.3.
	TrafficLoad float64
}

// LinkBudgetParams are the inputs needed to invert the link budget into
// a communication range, so CSMA's carrier-sense range can be derived
// without a PathSolver call per candidate interferer.
type LinkBudgetParams struct {
	TxPowerDBm    float64
	TxGainDB      float64
	RxGainDB      float64
	NoiseDBm      float64
	MinSNRDB      float64
	FrequencyHz   float64
}

// Position is re-exported from linkbudget so callers need not import
// both packages for a simple Vec3.
type Position = linkbudget.Vec3

// CSMA is the carrier-sense multiple access model. Interferers within
// the carrier-sense range of tx are assumed to defer (p=0); all others
// ("hidden nodes") transmit with TrafficLoad probability.
type CSMA struct {
	Params CSMAParams

	// NodePositions maps node name to position, used to test each
	// interferer against the carrier-sense range.
	NodePositions map[string]Position

	// Budget supplies the link-budget terms used to invert FSPL into a
	// communication range; the range is recomputed from it on every
	// TxProbabilities call.
	Budget LinkBudgetParams
}

// NewCSMA returns a CSMA model with spec.md §4.6 defaults applied to any
// zero fields (carrier_sense_multiplier=2.5, traffic_load=0.3).
func NewCSMA(params CSMAParams, positions map[string]Position, budget LinkBudgetParams) *CSMA {
	if params.CarrierSenseMultiplier == 0 {
		params.CarrierSenseMultiplier = 2.5
	}
	if params.TrafficLoad == 0 {
		params.TrafficLoad = 0.3
	}
	return &CSMA{Params: params, NodePositions: positions, Budget: budget}
}

func (c *CSMA) Name() string { return "csma" }

// communicationRangeM inverts FSPL to find the distance at which
// rx_power equals noise+min_snr_db (spec.md §4.6: "solve FSPL for the
// distance at which tx_power + gains − fspl ≥ noise + min_snr_db").
// FSPL(d) = 20*log10(d) + 20*log10(f) - 147.55, so solving for the loss
// budget that exactly balances the inequality gives d directly.
func (c *CSMA) communicationRangeM() float64 {
	budget := c.Budget
	allowedLossDB := budget.TxPowerDBm + budget.TxGainDB + budget.RxGainDB - (budget.NoiseDBm + budget.MinSNRDB)
	// allowedLossDB = 20*log10(d) + 20*log10(f) - 147.55
	exponent := (allowedLossDB - 20*math.Log10(budget.FrequencyHz) + 147.55) / 20
	return math.Pow(10, exponent)
}

// TxProbabilities classifies each interferer as deferring (within
// carrier-sense range of tx, p=0) or hidden (outside, p=traffic_load).
func (c *CSMA) TxProbabilities(tx, rx string, interferers []string) (map[string]float64, error) {
	txPos, ok := c.NodePositions[tx]
	if !ok {
		return nil, cerrors.New(cerrors.KindConfig, "mac.csma.TxProbabilities", fmt.Errorf("no position recorded for transmitter %q", tx))
	}

	csRange := c.communicationRangeM() * c.Params.CarrierSenseMultiplier

	probs := make(map[string]float64, len(interferers))
	for _, node := range interferers {
		if node == tx || node == rx {
			continue
		}
		pos, ok := c.NodePositions[node]
		if !ok {
			return nil, cerrors.New(cerrors.KindConfig, "mac.csma.TxProbabilities", fmt.Errorf("no position recorded for interferer %q", node))
		}
		distance := linkbudget.Distance(txPos, pos)
		if distance <= csRange {
			probs[node] = 0 // defers: inside carrier-sense range
		} else {
			probs[node] = c.Params.TrafficLoad // hidden node
		}
	}
	return probs, nil
}

// ThroughputMultiplier is always 1 for CSMA: the medium is shared but
// not slotted, so no fixed fraction is reserved for node.
func (c *CSMA) ThroughputMultiplier(node string) (float64, error) {
	return 1.0, nil
}

// SlotMode selects a TDMA slot-assignment strategy (spec.md §4.6).
type SlotMode string

const (
	SlotFixed       SlotMode = "fixed"
	SlotRoundRobin  SlotMode = "round_robin"
	SlotRandom      SlotMode = "random"
	SlotDistributed SlotMode = "distributed"
)

// TDMAParams configures the TDMA model.
type TDMAParams struct {
	FrameMs         float64
	NumSlots        int
	SlotMode        SlotMode
	FixedSlotMap    map[string][]int // node -> owned slot indices, required for SlotFixed
	SlotProbability float64          // required for random/distributed
	AllNodes        []string         // required for round_robin, to derive 1/num_nodes
}

// TDMA is the fixed-schedule MAC model. Unlike CSMA, interference is
// either fully deterministic (fixed/round_robin) or governed by a
// configured collision probability (random/distributed) — there is no
// carrier-sense range because time slots, not signal detection, arbitrate
// access.
type TDMA struct {
	Params TDMAParams
}

// NewTDMA validates params per spec.md §4.6 ("fixed requires a non-null
// fixed_slot_map; round_robin requires the orchestrator to supply the
// full node list") and returns a ready TDMA model.
func NewTDMA(params TDMAParams) (*TDMA, error) {
	switch params.SlotMode {
	case SlotFixed:
		if params.FixedSlotMap == nil {
			return nil, cerrors.New(cerrors.KindConfig, "mac.NewTDMA", fmt.Errorf("fixed slot mode requires a non-null fixed_slot_map"))
		}
	case SlotRoundRobin:
		if len(params.AllNodes) == 0 {
			return nil, cerrors.New(cerrors.KindConfig, "mac.NewTDMA", fmt.Errorf("round_robin mode requires the full node list"))
		}
	case SlotRandom, SlotDistributed:
		// slot_probability may legitimately be 0; no further validation.
	default:
		return nil, cerrors.New(cerrors.KindConfig, "mac.NewTDMA", fmt.Errorf("unknown slot assignment mode %q", params.SlotMode))
	}
	if params.NumSlots == 0 {
		params.NumSlots = 10
	}
	if params.FrameMs == 0 {
		params.FrameMs = 10
	}
	return &TDMA{Params: params}, nil
}

func (t *TDMA) Name() string { return "tdma" }

// TxProbabilities implements the per-slot-mode collision formulas of
// spec.md §4.6.
func (t *TDMA) TxProbabilities(tx, rx string, interferers []string) (map[string]float64, error) {
	probs := make(map[string]float64, len(interferers))
	for _, node := range interferers {
		if node == tx || node == rx {
			continue
		}
		p, err := t.pairProbability(tx, node)
		if err != nil {
			return nil, err
		}
		probs[node] = p
	}
	return probs, nil
}

func (t *TDMA) pairProbability(tx, interferer string) (float64, error) {
	switch t.Params.SlotMode {
	case SlotFixed:
		txSlots := toSlotSet(t.Params.FixedSlotMap[tx])
		ifSlots := toSlotSet(t.Params.FixedSlotMap[interferer])
		overlap := 0
		for slot := range txSlots {
			if ifSlots[slot] {
				overlap++
			}
		}
		return float64(overlap) / float64(t.Params.NumSlots), nil
	case SlotRoundRobin:
		return 0, nil
	case SlotRandom:
		return t.Params.SlotProbability, nil
	case SlotDistributed:
		return t.Params.SlotProbability * 0.5, nil
	default:
		return 0, cerrors.New(cerrors.KindConfig, "mac.TDMA.pairProbability", fmt.Errorf("unknown slot assignment mode %q", t.Params.SlotMode))
	}
}

func toSlotSet(slots []int) map[int]bool {
	set := make(map[int]bool, len(slots))
	for _, s := range slots {
		set[s] = true
	}
	return set
}

// ThroughputMultiplier implements the per-slot-mode fractions of
// spec.md §4.6.
func (t *TDMA) ThroughputMultiplier(node string) (float64, error) {
	switch t.Params.SlotMode {
	case SlotFixed:
		owned := len(t.Params.FixedSlotMap[node])
		return float64(owned) / float64(t.Params.NumSlots), nil
	case SlotRoundRobin:
		return 1.0 / float64(len(t.Params.AllNodes)), nil
	case SlotRandom, SlotDistributed:
		return t.Params.SlotProbability, nil
	default:
		return 0, cerrors.New(cerrors.KindConfig, "mac.TDMA.ThroughputMultiplier", fmt.Errorf("unknown slot assignment mode %q", t.Params.SlotMode))
	}
}

// SlotDurationMs returns the duration of a single TDMA slot.
func SlotDurationMs(frameDurationMs float64, numSlots int) float64 {
	return frameDurationMs / float64(numSlots)
}
