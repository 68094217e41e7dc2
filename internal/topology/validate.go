package topology

import (
	"fmt"

	"github.com/joshuamhtsang/sine/internal/cerrors"
)

// Validate checks every invariant spec.md §3 requires at load time, so
// the hot path never has to re-check them (spec.md §4.6 "Validate at
// load, never inside the hot path").
func (t *Topology) Validate() error {
	if t.Name == "" {
		return cerrors.New(cerrors.KindConfig, "topology.Validate", fmt.Errorf("topology name is required"))
	}
	if len(t.Nodes) == 0 {
		return cerrors.New(cerrors.KindConfig, "topology.Validate", fmt.Errorf("topology must declare at least one node"))
	}

	for nodeName, node := range t.Nodes {
		if len(node.Interfaces) == 0 {
			return cerrors.New(cerrors.KindConfig, "topology.Validate", fmt.Errorf("node %q has no interfaces", nodeName))
		}
		for ifaceName, iface := range node.Interfaces {
			if err := t.validateInterface(nodeName, ifaceName, iface); err != nil {
				return err
			}
		}
	}

	for _, bridge := range t.SharedBridges {
		if bridge.Name == "" {
			return cerrors.New(cerrors.KindConfig, "topology.Validate", fmt.Errorf("shared_bridge entry missing name"))
		}
		for _, n := range bridge.Nodes {
			if _, ok := t.Nodes[n]; !ok {
				return cerrors.New(cerrors.KindConfig, "topology.Validate", fmt.Errorf("shared_bridge %q references unknown node %q", bridge.Name, n))
			}
		}
	}

	if !t.EnableSINR {
		for nodeName, node := range t.Nodes {
			for ifaceName, iface := range node.Interfaces {
				if iface.Kind == InterfaceWireless && iface.Wireless.MAC != nil && iface.Wireless.MAC.Kind != MACNone {
					// Non-fatal: spec.md §4.9 step 1 calls this a warning,
					// not a validation failure, since SNR-only mode still
					// computes sensible metrics without MAC probabilities.
					_ = fmt.Sprintf("warning: %s/%s declares a MAC model but enable_sinr is false", nodeName, ifaceName)
				}
			}
		}
	}

	return nil
}

func (t *Topology) validateInterface(nodeName, ifaceName string, iface *Interface) error {
	switch iface.Kind {
	case InterfaceFixed:
		if iface.Fixed == nil {
			return cerrors.New(cerrors.KindConfig, "topology.Validate", fmt.Errorf("%s/%s: kind=fixed requires fixed_netem", nodeName, ifaceName))
		}
		return nil
	case InterfaceWireless:
		return t.validateWireless(nodeName, ifaceName, iface.Wireless)
	default:
		return cerrors.New(cerrors.KindConfig, "topology.Validate", fmt.Errorf("%s/%s: unknown interface kind %q", nodeName, ifaceName, iface.Kind))
	}
}

func (t *Topology) validateWireless(nodeName, ifaceName string, w *WirelessParams) error {
	op := "topology.Validate"
	if w == nil {
		return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: kind=wireless requires wireless params", nodeName, ifaceName))
	}

	hasGain := w.AntennaGainDBi != nil
	hasPattern := w.AntennaPattern != nil
	if hasGain == hasPattern {
		return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: exactly one of antenna_gain_dbi and antenna_pattern must be set", nodeName, ifaceName))
	}
	if hasPattern {
		switch *w.AntennaPattern {
		case PatternISO, PatternDipole, PatternHalfwaveDipole, PatternSector3GPP:
		default:
			return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: unknown antenna_pattern %q", nodeName, ifaceName, *w.AntennaPattern))
		}
	}

	switch w.Polarization {
	case PolV, PolH, PolVH, PolCross:
	default:
		return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: unknown polarization %q", nodeName, ifaceName, w.Polarization))
	}

	if w.NoiseFigureDB < 0 || w.NoiseFigureDB > 20 {
		return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: noise_figure_db %v out of range [0, 20]", nodeName, ifaceName, w.NoiseFigureDB))
	}
	if w.RxSensitivityDBm < -150 || w.RxSensitivityDBm > 0 {
		return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: rx_sensitivity_dbm %v out of range [-150, 0]", nodeName, ifaceName, w.RxSensitivityDBm))
	}

	hasFixedModulation := w.Modulation != nil
	hasMCSRef := w.MCSTableRef != ""
	if hasFixedModulation == hasMCSRef {
		return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: exactly one of fixed modulation and mcs_table must be set", nodeName, ifaceName))
	}
	if hasMCSRef {
		if _, ok := t.MCSTables[w.MCSTableRef]; !ok {
			return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: mcs_table %q not loaded", nodeName, ifaceName, w.MCSTableRef))
		}
	}

	if w.MAC != nil {
		if err := validateMAC(nodeName, ifaceName, w.MAC); err != nil {
			return err
		}
	}

	return nil
}

func validateMAC(nodeName, ifaceName string, m *MACModelDescriptor) error {
	op := "topology.Validate"
	switch m.Kind {
	case MACNone:
		return nil
	case MACCsma:
		return nil
	case MACTdma:
		switch m.Tdma.SlotMode {
		case "fixed":
			if m.Tdma.FixedSlotMap == nil {
				return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: tdma fixed mode requires fixed_slot_map", nodeName, ifaceName))
			}
		case "round_robin", "random", "distributed":
		default:
			return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: unknown tdma slot_mode %q", nodeName, ifaceName, m.Tdma.SlotMode))
		}
		return nil
	default:
		return cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: unknown mac model kind %q", nodeName, ifaceName, m.Kind))
	}
}
