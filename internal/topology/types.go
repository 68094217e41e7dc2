// Package topology holds the declarative network model (spec.md §3):
// nodes, their interfaces, wireless parameters, MAC-model descriptors,
// and shared-bridge groupings, plus the YAML loader that builds it
// (spec.md §6.4).
package topology

import (
	"github.com/joshuamhtsang/sine/internal/linkbudget"
	"github.com/joshuamhtsang/sine/internal/mac"
	"github.com/joshuamhtsang/sine/internal/modulation"
	"github.com/joshuamhtsang/sine/internal/pathsolver"
)

// AntennaPattern names a canned antenna radiation pattern.
type AntennaPattern string

const (
	PatternISO            AntennaPattern = "iso"
	PatternDipole         AntennaPattern = "dipole"
	PatternHalfwaveDipole AntennaPattern = "halfwave_dipole"
	PatternSector3GPP     AntennaPattern = "sector_3gpp"
)

// Polarization names an antenna's polarization.
type Polarization string

const (
	PolV     Polarization = "V"
	PolH     Polarization = "H"
	PolVH    Polarization = "VH"
	PolCross Polarization = "cross"
)

// MACKind tags which MAC-model case a descriptor holds.
type MACKind string

const (
	MACNone MACKind = "none"
	MACCsma MACKind = "csma"
	MACTdma MACKind = "tdma"
)

// MACModelDescriptor is the tagged variant described in spec.md §3.
// Exactly one of Csma/Tdma is populated when Kind selects it.
type MACModelDescriptor struct {
	Kind MACKind
	Csma CSMAConfig
	Tdma TDMAConfig
}

// CSMAConfig mirrors mac.CSMAParams at the topology-file level.
type CSMAConfig struct {
	CarrierSenseMultiplier float64
	TrafficLoad            float64
}

// TDMAConfig mirrors mac.TDMAParams at the topology-file level.
type TDMAConfig struct {
	FrameMs         float64
	NumSlots        int
	SlotMode        mac.SlotMode
	FixedSlotMap    map[string][]int
	SlotProbability float64
}

// FECType names a forward-error-correction scheme at the topology-file
// level, mirrored from modulation.FEC.
type FECType = modulation.FEC

// WirelessParams describes the RF characteristics of one wireless
// interface (spec.md §3). Exactly one of AntennaGainDBi/AntennaPattern
// is set, and exactly one of (Modulation, FEC, CodeRate) / MCSTableRef
// is set — enforced by Validate, not in the hot path.
type WirelessParams struct {
	Position       linkbudget.Vec3
	TxPowerDBm     float64
	FrequencyHz    float64
	BandwidthHz    float64

	AntennaGainDBi    *float64
	AntennaPattern    *AntennaPattern
	Polarization      Polarization

	NoiseFigureDB      float64
	RxSensitivityDBm   float64

	Modulation  *modulation.Scheme
	FEC         *FECType
	CodeRate    *float64
	MCSTableRef string

	IsActive bool

	MAC *MACModelDescriptor
}

// Antenna converts a WirelessParams' antenna fields into a
// pathsolver.Antenna, for handing to a PathSolver.
func (w WirelessParams) Antenna() pathsolver.Antenna {
	if w.AntennaPattern != nil {
		return pathsolver.Antenna{Kind: pathsolver.AntennaPattern, Pattern: string(*w.AntennaPattern)}
	}
	gain := 0.0
	if w.AntennaGainDBi != nil {
		gain = *w.AntennaGainDBi
	}
	return pathsolver.Antenna{Kind: pathsolver.AntennaGain, GainDBi: gain}
}

// FixedNetem is the alternative to WirelessParams for an interface that
// is not wireless: a static delay/jitter/loss/rate tuple applied
// regardless of topology.
type FixedNetem struct {
	DelayMs   float64
	JitterMs  float64
	LossPct   float64
	RateMbps  float64
}

// InterfaceKind tags whether an Interface carries wireless params or a
// fixed netem profile.
type InterfaceKind string

const (
	InterfaceWireless InterfaceKind = "wireless"
	InterfaceFixed    InterfaceKind = "fixed"
)

// Interface is one network interface on a Node (spec.md §3).
type Interface struct {
	Name      string
	Kind      InterfaceKind
	Wireless  *WirelessParams
	Fixed     *FixedNetem
	IPAddress string

	// LocalInterfaceName is the veth/bridge-facing name inside the node's
	// container, as opposed to Name, the topology-file identifier. Nothing
	// in this module sets it; the shaper resolves names through
	// orchestrator.Discovery.LocalInterface, which falls back to Name.
	LocalInterfaceName string
}

// Node is a named bundle of interfaces.
type Node struct {
	Name       string
	Interfaces map[string]*Interface
}

// SharedBridge groups interfaces on a shared broadcast domain (spec.md
// §3, §4.4's "self_isolation_db" note).
type SharedBridge struct {
	Name             string
	Nodes            []string
	SelfIsolationDB  float64
}

// Topology is the full declarative input (spec.md §3): immutable after
// load except for the orchestrator's own update endpoints.
type Topology struct {
	Name          string
	SceneRef      string
	EnableSINR    bool
	Nodes         map[string]*Node
	SharedBridges []SharedBridge
	MCSTables     map[string]*modulation.Table
}

// Iface looks up a (node, interface) pair.
func (t *Topology) Iface(node, iface string) (*Interface, bool) {
	n, ok := t.Nodes[node]
	if !ok {
		return nil, false
	}
	i, ok := n.Interfaces[iface]
	return i, ok
}

// WirelessInterfaces returns every wireless interface in the topology,
// keyed by "node/iface", in deterministic (sorted) node-then-interface
// order.
func (t *Topology) WirelessInterfaces() []InterfaceRef {
	refs := make([]InterfaceRef, 0)
	for _, nodeName := range t.sortedNodeNames() {
		node := t.Nodes[nodeName]
		for _, ifaceName := range sortedKeys(node.Interfaces) {
			iface := node.Interfaces[ifaceName]
			if iface.Kind == InterfaceWireless {
				refs = append(refs, InterfaceRef{Node: nodeName, Interface: ifaceName})
			}
		}
	}
	return refs
}

// InterfaceRef identifies one interface by (node, interface) name.
type InterfaceRef struct {
	Node      string
	Interface string
}

// LinkID is the MCS-hysteresis and shaping key described in spec.md
// §4.11: (tx_node, tx_iface, rx_node, rx_iface).
type LinkID struct {
	TxNode, TxIface, RxNode, RxIface string
}

func (t *Topology) sortedNodeNames() []string {
	return sortedKeys(t.Nodes)
}
