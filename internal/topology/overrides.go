package topology

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyOverride applies a single dotted-path "--set" override (CLI
// `sine run --set nodes.node1.wlan0.tx_power_dbm=17`) to topo. Overrides
// are applied before Validate so a bad path or value is still caught.
func ApplyOverride(topo *Topology, key, value string) error {
	parts := strings.Split(key, ".")
	if len(parts) != 4 || parts[0] != "nodes" {
		return fmt.Errorf("topology: unsupported override key %q, expected nodes.<node>.<iface>.<field>", key)
	}
	nodeName, ifaceName, field := parts[1], parts[2], parts[3]

	node, ok := topo.Nodes[nodeName]
	if !ok {
		return fmt.Errorf("topology: override references unknown node %q", nodeName)
	}
	iface, ok := node.Interfaces[ifaceName]
	if !ok {
		return fmt.Errorf("topology: override references unknown interface %q on node %q", ifaceName, nodeName)
	}
	if iface.Wireless == nil {
		return fmt.Errorf("topology: override targets non-wireless interface %q on node %q", ifaceName, nodeName)
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("topology: override %q requires a numeric value, got %q: %w", key, value, err)
	}

	switch field {
	case "tx_power_dbm":
		iface.Wireless.TxPowerDBm = f
	case "frequency_hz":
		iface.Wireless.FrequencyHz = f
	case "bandwidth_hz":
		iface.Wireless.BandwidthHz = f
	case "noise_figure_db":
		iface.Wireless.NoiseFigureDB = f
	case "rx_sensitivity_dbm":
		iface.Wireless.RxSensitivityDBm = f
	case "antenna_gain_dbi":
		iface.Wireless.AntennaGainDBi = &f
	default:
		return fmt.Errorf("topology: unsupported override field %q", field)
	}
	return nil
}

// ApplyOverrides applies every key=value pair in overrides in an
// unspecified order; the first failing override aborts with its error.
func ApplyOverrides(topo *Topology, overrides map[string]string) error {
	for key, value := range overrides {
		if err := ApplyOverride(topo, key, value); err != nil {
			return err
		}
	}
	return nil
}
