package mac

import (
	"math"
	"testing"
)

func TestNoneAlwaysTransmits(t *testing.T) {
	m := None{}
	probs, err := m.TxProbabilities("a", "b", []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("TxProbabilities: %v", err)
	}
	if len(probs) != 2 {
		t.Fatalf("expected 2 interferers (c, d), got %d", len(probs))
	}
	for node, p := range probs {
		if p != 1.0 {
			t.Fatalf("node %s probability = %v, want 1.0", node, p)
		}
	}
	mult, err := m.ThroughputMultiplier("a")
	if err != nil || mult != 1.0 {
		t.Fatalf("throughput multiplier = %v, %v, want 1.0, nil", mult, err)
	}
}

func TestCSMADefersWithinRange(t *testing.T) {
	budget := LinkBudgetParams{
		TxPowerDBm:  20,
		TxGainDB:    0,
		RxGainDB:    0,
		NoiseDBm:    -90,
		MinSNRDB:    10,
		FrequencyHz: 5.18e9,
	}
	positions := map[string]Position{
		"tx":     {X: 0, Y: 0, Z: 0},
		"rx":     {X: 10, Y: 0, Z: 0},
		"near":   {X: 5, Y: 0, Z: 0},
		"far":    {X: 100000, Y: 0, Z: 0},
	}
	csma := NewCSMA(CSMAParams{}, positions, budget)
	if csma.Params.CarrierSenseMultiplier != 2.5 {
		t.Fatalf("default carrier sense multiplier = %v, want 2.5", csma.Params.CarrierSenseMultiplier)
	}
	if csma.Params.TrafficLoad != 0.3 {
		t.Fatalf("default traffic load = %v, want 0.3", csma.Params.TrafficLoad)
	}

	probs, err := csma.TxProbabilities("tx", "rx", []string{"near", "far"})
	if err != nil {
		t.Fatalf("TxProbabilities: %v", err)
	}
	if probs["near"] != 0 {
		t.Fatalf("near node should defer (p=0), got %v", probs["near"])
	}
	if probs["far"] != 0.3 {
		t.Fatalf("far hidden node should get traffic_load probability, got %v", probs["far"])
	}

	mult, err := csma.ThroughputMultiplier("tx")
	if err != nil || mult != 1.0 {
		t.Fatalf("CSMA throughput multiplier = %v, %v, want 1.0, nil", mult, err)
	}
}

func TestCSMAUnknownNodeErrors(t *testing.T) {
	budget := LinkBudgetParams{TxPowerDBm: 20, NoiseDBm: -90, MinSNRDB: 10, FrequencyHz: 5.18e9}
	csma := NewCSMA(CSMAParams{}, map[string]Position{"tx": {}}, budget)
	if _, err := csma.TxProbabilities("ghost", "rx", nil); err == nil {
		t.Fatalf("expected error for unrecorded transmitter position")
	}
}

func TestTDMAFixedModeRequiresSlotMap(t *testing.T) {
	_, err := NewTDMA(TDMAParams{SlotMode: SlotFixed})
	if err == nil {
		t.Fatalf("expected validation error when fixed_slot_map is nil")
	}
}

func TestTDMARoundRobinRequiresNodeList(t *testing.T) {
	_, err := NewTDMA(TDMAParams{SlotMode: SlotRoundRobin})
	if err == nil {
		t.Fatalf("expected validation error when all_nodes is empty")
	}
}

func TestTDMAFixedCollisionProbability(t *testing.T) {
	model, err := NewTDMA(TDMAParams{
		SlotMode: SlotFixed,
		NumSlots: 10,
		FixedSlotMap: map[string][]int{
			"tx": {0, 1, 2},
			"a":  {2, 3}, // 1 slot overlap with tx -> p = 1/10
			"b":  {5, 6}, // no overlap -> p = 0
		},
	})
	if err != nil {
		t.Fatalf("NewTDMA: %v", err)
	}
	probs, err := model.TxProbabilities("tx", "rx", []string{"a", "b"})
	if err != nil {
		t.Fatalf("TxProbabilities: %v", err)
	}
	if math.Abs(probs["a"]-0.1) > 1e-9 {
		t.Fatalf("overlap probability = %v, want 0.1", probs["a"])
	}
	if probs["b"] != 0 {
		t.Fatalf("orthogonal slots probability = %v, want 0", probs["b"])
	}
}

func TestTDMARoundRobinIsOrthogonal(t *testing.T) {
	model, err := NewTDMA(TDMAParams{SlotMode: SlotRoundRobin, AllNodes: []string{"tx", "rx", "a", "b"}})
	if err != nil {
		t.Fatalf("NewTDMA: %v", err)
	}
	probs, err := model.TxProbabilities("tx", "rx", []string{"a", "b"})
	if err != nil {
		t.Fatalf("TxProbabilities: %v", err)
	}
	for node, p := range probs {
		if p != 0 {
			t.Fatalf("round_robin probability for %s = %v, want 0", node, p)
		}
	}
	mult, err := model.ThroughputMultiplier("tx")
	if err != nil || math.Abs(mult-0.25) > 1e-9 {
		t.Fatalf("round_robin multiplier = %v, %v, want 0.25, nil", mult, err)
	}
}

func TestTDMARandomAndDistributed(t *testing.T) {
	random, err := NewTDMA(TDMAParams{SlotMode: SlotRandom, SlotProbability: 0.2})
	if err != nil {
		t.Fatalf("NewTDMA random: %v", err)
	}
	probs, _ := random.TxProbabilities("tx", "rx", []string{"a"})
	if probs["a"] != 0.2 {
		t.Fatalf("random probability = %v, want 0.2", probs["a"])
	}

	distributed, err := NewTDMA(TDMAParams{SlotMode: SlotDistributed, SlotProbability: 0.2})
	if err != nil {
		t.Fatalf("NewTDMA distributed: %v", err)
	}
	probs, _ = distributed.TxProbabilities("tx", "rx", []string{"a"})
	if math.Abs(probs["a"]-0.1) > 1e-9 {
		t.Fatalf("distributed probability = %v, want 0.1 (half of random)", probs["a"])
	}
}

func TestTDMAThroughputMultiplierFixed(t *testing.T) {
	model, err := NewTDMA(TDMAParams{
		SlotMode: SlotFixed,
		NumSlots: 10,
		FixedSlotMap: map[string][]int{
			"tx": {0, 1, 2},
		},
	})
	if err != nil {
		t.Fatalf("NewTDMA: %v", err)
	}
	mult, err := model.ThroughputMultiplier("tx")
	if err != nil || math.Abs(mult-0.3) > 1e-9 {
		t.Fatalf("fixed multiplier = %v, %v, want 0.3, nil", mult, err)
	}
}

func TestSlotDurationMs(t *testing.T) {
	if got := SlotDurationMs(10, 10); got != 1 {
		t.Fatalf("slot duration = %v, want 1ms", got)
	}
}
