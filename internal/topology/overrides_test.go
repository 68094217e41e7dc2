package topology

import "testing"

func TestApplyOverrideSetsTxPower(t *testing.T) {
	topo := baseTopology()
	if err := ApplyOverride(topo, "nodes.a.wlan0.tx_power_dbm", "17"); err != nil {
		t.Fatalf("ApplyOverride: %v", err)
	}
	if got := topo.Nodes["a"].Interfaces["wlan0"].Wireless.TxPowerDBm; got != 17 {
		t.Fatalf("expected tx power 17, got %v", got)
	}
}

func TestApplyOverrideRejectsUnknownNode(t *testing.T) {
	topo := baseTopology()
	if err := ApplyOverride(topo, "nodes.missing.wlan0.tx_power_dbm", "17"); err == nil {
		t.Fatal("expected error for unknown node")
	}
}

func TestApplyOverrideRejectsUnknownField(t *testing.T) {
	topo := baseTopology()
	if err := ApplyOverride(topo, "nodes.a.wlan0.bogus_field", "17"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestApplyOverridesAppliesAll(t *testing.T) {
	topo := baseTopology()
	overrides := map[string]string{
		"nodes.a.wlan0.tx_power_dbm":  "15",
		"nodes.a.wlan0.frequency_hz": "2.4e9",
	}
	if err := ApplyOverrides(topo, overrides); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	w := topo.Nodes["a"].Interfaces["wlan0"].Wireless
	if w.TxPowerDBm != 15 || w.FrequencyHz != 2.4e9 {
		t.Fatalf("overrides not applied: %+v", w)
	}
}
