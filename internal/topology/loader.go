package topology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuamhtsang/sine/internal/cerrors"
	"github.com/joshuamhtsang/sine/internal/linkbudget"
	"github.com/joshuamhtsang/sine/internal/mac"
	"github.com/joshuamhtsang/sine/internal/modulation"
)

// yamlFile mirrors the topology file schema of spec.md §6.4. Field
// names follow the file's own snake_case keys; conversion into the
// tagged-union Topology types happens in toTopology.
type yamlFile struct {
	Name     string       `yaml:"name"`
	Topology yamlTopology `yaml:"topology"`
	// MCSTables maps table name to a file path, loaded eagerly so
	// WirelessParams.MCSTableRef can be validated at load time.
	MCSTables map[string]string `yaml:"mcs_tables"`
}

type yamlTopology struct {
	Scene          yamlScene          `yaml:"scene"`
	EnableSINR     bool               `yaml:"enable_sinr"`
	SharedBridge   []yamlSharedBridge `yaml:"shared_bridge"`
	Nodes          map[string]yamlNode `yaml:"nodes"`
}

type yamlScene struct {
	File string `yaml:"file"`
}

type yamlSharedBridge struct {
	Name            string   `yaml:"name"`
	Nodes           []string `yaml:"nodes"`
	SelfIsolationDB float64  `yaml:"self_isolation_db"`
}

type yamlNode struct {
	Interfaces map[string]yamlInterface `yaml:"interfaces"`
}

type yamlInterface struct {
	IPAddress  string            `yaml:"ip_address"`
	Wireless   *yamlWireless     `yaml:"wireless"`
	FixedNetem *yamlFixedNetem   `yaml:"fixed_netem"`
}

type yamlWireless struct {
	Position         yamlPosition `yaml:"position"`
	RFPowerDBm       float64      `yaml:"rf_power_dbm"`
	FrequencyGHz     float64      `yaml:"frequency_ghz"`
	BandwidthMHz     float64      `yaml:"bandwidth_mhz"`
	AntennaPattern   string       `yaml:"antenna_pattern"`
	AntennaGainDBi   *float64     `yaml:"antenna_gain_dbi"`
	Polarization     string       `yaml:"polarization"`
	Modulation       string       `yaml:"modulation"`
	MCSTable         string       `yaml:"mcs_table"`
	FECType          string       `yaml:"fec_type"`
	FECCodeRate      *float64     `yaml:"fec_code_rate"`
	NoiseFigureDB    float64      `yaml:"noise_figure_db"`
	RxSensitivityDBm float64      `yaml:"rx_sensitivity_dbm"`
	IsActive         *bool        `yaml:"is_active"`
	Csma             *yamlCsma    `yaml:"csma"`
	Tdma             *yamlTdma    `yaml:"tdma"`
}

type yamlPosition struct {
	X, Y, Z float64
}

type yamlCsma struct {
	CarrierSenseMultiplier float64 `yaml:"carrier_sense_multiplier"`
	TrafficLoad            float64 `yaml:"traffic_load"`
}

type yamlTdma struct {
	FrameMs         float64          `yaml:"frame_ms"`
	NumSlots        int              `yaml:"num_slots"`
	SlotMode        string           `yaml:"slot_mode"`
	FixedSlotMap    map[string][]int `yaml:"fixed_slot_map"`
	SlotProbability float64          `yaml:"slot_probability"`
}

type yamlFixedNetem struct {
	DelayMs  float64 `yaml:"delay_ms"`
	JitterMs float64 `yaml:"jitter_ms"`
	LossPct  float64 `yaml:"loss_pct"`
	RateMbps float64 `yaml:"rate_mbps"`
}

// Load reads a topology YAML file (spec.md §6.4), resolves any
// referenced MCS table files relative to mcsTableBaseDir, validates the
// result, and returns the assembled Topology. Validation failures are
// KindConfig and fatal to startup, per spec.md §7.
func Load(path string, mcsTableBaseDir string) (*Topology, error) {
	const op = "topology.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("reading topology file %q: %w", path, err))
	}

	var raw yamlFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("parsing topology file %q: %w", path, err))
	}

	t, err := toTopology(raw, mcsTableBaseDir)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func toTopology(raw yamlFile, mcsTableBaseDir string) (*Topology, error) {
	const op = "topology.Load"

	t := &Topology{
		Name:       raw.Name,
		SceneRef:   raw.Topology.Scene.File,
		EnableSINR: raw.Topology.EnableSINR,
		Nodes:      make(map[string]*Node, len(raw.Topology.Nodes)),
		MCSTables:  make(map[string]*modulation.Table, len(raw.MCSTables)),
	}

	for tableName, relPath := range raw.MCSTables {
		fullPath := relPath
		if mcsTableBaseDir != "" {
			fullPath = mcsTableBaseDir + "/" + relPath
		}
		f, err := os.Open(fullPath)
		if err != nil {
			return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("opening mcs table %q (%s): %w", tableName, fullPath, err))
		}
		table, err := LoadMCSTable(f, 0)
		f.Close()
		if err != nil {
			return nil, err
		}
		t.MCSTables[tableName] = table
	}

	for _, bridge := range raw.Topology.SharedBridge {
		isolation := bridge.SelfIsolationDB
		if isolation == 0 {
			isolation = 30
		}
		t.SharedBridges = append(t.SharedBridges, SharedBridge{
			Name:            bridge.Name,
			Nodes:           bridge.Nodes,
			SelfIsolationDB: isolation,
		})
	}

	for nodeName, yn := range raw.Topology.Nodes {
		node := &Node{Name: nodeName, Interfaces: make(map[string]*Interface, len(yn.Interfaces))}
		for ifaceName, yi := range yn.Interfaces {
			iface, err := toInterface(nodeName, ifaceName, yi)
			if err != nil {
				return nil, err
			}
			node.Interfaces[ifaceName] = iface
		}
		t.Nodes[nodeName] = node
	}

	return t, nil
}

func toInterface(nodeName, ifaceName string, yi yamlInterface) (*Interface, error) {
	const op = "topology.Load"

	iface := &Interface{Name: ifaceName, IPAddress: yi.IPAddress}

	switch {
	case yi.Wireless != nil && yi.FixedNetem != nil:
		return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: an interface cannot be both wireless and fixed", nodeName, ifaceName))
	case yi.Wireless != nil:
		iface.Kind = InterfaceWireless
		w, err := toWireless(nodeName, ifaceName, yi.Wireless)
		if err != nil {
			return nil, err
		}
		iface.Wireless = w
	case yi.FixedNetem != nil:
		iface.Kind = InterfaceFixed
		iface.Fixed = &FixedNetem{
			DelayMs:  yi.FixedNetem.DelayMs,
			JitterMs: yi.FixedNetem.JitterMs,
			LossPct:  yi.FixedNetem.LossPct,
			RateMbps: yi.FixedNetem.RateMbps,
		}
	default:
		return nil, cerrors.New(cerrors.KindConfig, op, fmt.Errorf("%s/%s: interface must declare either wireless or fixed_netem", nodeName, ifaceName))
	}

	return iface, nil
}

func toWireless(nodeName, ifaceName string, yw *yamlWireless) (*WirelessParams, error) {
	w := &WirelessParams{
		Position:         linkbudget.Vec3{X: yw.Position.X, Y: yw.Position.Y, Z: yw.Position.Z},
		TxPowerDBm:       yw.RFPowerDBm,
		FrequencyHz:      yw.FrequencyGHz * 1e9,
		BandwidthHz:      yw.BandwidthMHz * 1e6,
		Polarization:     Polarization(yw.Polarization),
		NoiseFigureDB:    yw.NoiseFigureDB,
		RxSensitivityDBm: yw.RxSensitivityDBm,
		MCSTableRef:      yw.MCSTable,
		IsActive:         true,
	}
	if yw.IsActive != nil {
		w.IsActive = *yw.IsActive
	}
	if yw.AntennaPattern != "" {
		p := AntennaPattern(yw.AntennaPattern)
		w.AntennaPattern = &p
	}
	if yw.AntennaGainDBi != nil {
		w.AntennaGainDBi = yw.AntennaGainDBi
	}
	if yw.Modulation != "" {
		scheme := modulation.Scheme(yw.Modulation)
		w.Modulation = &scheme
		fec := modulation.FECNone
		if yw.FECType != "" {
			fec = modulation.FEC(yw.FECType)
		}
		w.FEC = &fec
		rate := 1.0
		if yw.FECCodeRate != nil {
			rate = *yw.FECCodeRate
		}
		w.CodeRate = &rate
	}

	if yw.Csma != nil {
		w.MAC = &MACModelDescriptor{
			Kind: MACCsma,
			Csma: CSMAConfig{
				CarrierSenseMultiplier: yw.Csma.CarrierSenseMultiplier,
				TrafficLoad:            yw.Csma.TrafficLoad,
			},
		}
	} else if yw.Tdma != nil {
		w.MAC = &MACModelDescriptor{
			Kind: MACTdma,
			Tdma: TDMAConfig{
				FrameMs:         yw.Tdma.FrameMs,
				NumSlots:        yw.Tdma.NumSlots,
				SlotMode:        mac.SlotMode(yw.Tdma.SlotMode),
				FixedSlotMap:    yw.Tdma.FixedSlotMap,
				SlotProbability: yw.Tdma.SlotProbability,
			},
		}
	} else {
		w.MAC = &MACModelDescriptor{Kind: MACNone}
	}

	return w, nil
}
