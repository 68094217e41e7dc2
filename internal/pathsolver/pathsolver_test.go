package pathsolver

import (
	"math"
	"testing"
)

func TestFallbackVacuum20m(t *testing.T) {
	fb := NewFallback(false)
	tx := Device{Name: "tx", Position: Position{X: 0, Y: 0, Z: 1}, Antenna: Antenna{Kind: AntennaGain, GainDBi: 0}, Polarization: PolV}
	rx := Device{Name: "rx", Position: Position{X: 20, Y: 0, Z: 1}, Antenna: Antenna{Kind: AntennaGain, GainDBi: 0}, Polarization: PolV}

	result, err := fb.ComputePair(tx, rx, "scene", 5.18e9, 80e6)
	if err != nil {
		t.Fatalf("ComputePair: %v", err)
	}
	if math.Abs(result.PathLossDB-72.75) > 0.5 {
		t.Fatalf("path loss = %v, want ~72.75", result.PathLossDB)
	}
	if result.GainsEmbedded {
		t.Fatalf("explicit gain antennas must not report embedded gains")
	}
	if result.DominantKind != DominantFSPLEstimate {
		t.Fatalf("dominant kind = %v, want fspl_estimate", result.DominantKind)
	}
}

func TestFallbackPatternEmbedsGain(t *testing.T) {
	fb := NewFallback(false)
	tx := Device{Position: Position{X: 0, Y: 0, Z: 1}, Antenna: Antenna{Kind: AntennaPattern, Pattern: PatternHalfwaveDipole}}
	rx := Device{Position: Position{X: 20, Y: 0, Z: 1}, Antenna: Antenna{Kind: AntennaPattern, Pattern: PatternISO}}

	result, err := fb.ComputePair(tx, rx, "scene", 5.18e9, 80e6)
	if err != nil {
		t.Fatalf("ComputePair: %v", err)
	}
	if !result.GainsEmbedded {
		t.Fatalf("pattern antennas must report embedded gains")
	}
}

func TestFallbackDistanceZeroClamped(t *testing.T) {
	fb := NewFallback(false)
	tx := Device{Position: Position{X: 0, Y: 0, Z: 0}, Antenna: Antenna{Kind: AntennaGain}}
	rx := Device{Position: Position{X: 0, Y: 0, Z: 0.00001}, Antenna: Antenna{Kind: AntennaGain}}
	result, err := fb.ComputePair(tx, rx, "scene", 5.18e9, 80e6)
	if err != nil {
		t.Fatalf("ComputePair: %v", err)
	}
	if math.IsInf(result.PathLossDB, 0) || math.IsNaN(result.PathLossDB) {
		t.Fatalf("near-zero distance produced non-finite path loss: %v", result.PathLossDB)
	}
}

func TestFallbackZeroPositionsIsUsageError(t *testing.T) {
	fb := NewFallback(false)
	tx := Device{Antenna: Antenna{Kind: AntennaGain}}
	rx := Device{Antenna: Antenna{Kind: AntennaGain}}
	if _, err := fb.ComputePair(tx, rx, "scene", 5.18e9, 80e6); err == nil {
		t.Fatalf("expected usage error for zero tx and rx positions")
	}
}

func TestEngineSelection(t *testing.T) {
	fb := NewFallback(false)

	solver, err := Select(EngineFallback, ModeNormal, nil, fb)
	if err != nil || solver != fb {
		t.Fatalf("EngineFallback should always return fallback, got %v, %v", solver, err)
	}

	_, err = Select(EngineSolver, ModeNormal, nil, fb)
	if err == nil {
		t.Fatalf("EngineSolver with no registered solver should error")
	}

	_, err = Select(EngineSolver, ModeForceFallback, fb, fb)
	if err == nil {
		t.Fatalf("force_fallback mode must reject explicit solver requests")
	}

	solver, err = Select(EngineAuto, ModeNormal, nil, fb)
	if err != nil || solver != fb {
		t.Fatalf("auto with no rt solver should fall back, got %v, %v", solver, err)
	}
}

func TestCachedSolverHitsCacheWithoutRecompute(t *testing.T) {
	calls := 0
	spy := &countingSolver{Fallback: NewFallback(false), calls: &calls}
	cs := NewCachedSolver(spy)
	if err := cs.EnsureScene("scene1", 5.18e9, 80e6); err != nil {
		t.Fatalf("EnsureScene: %v", err)
	}

	tx := Device{Position: Position{X: 0, Y: 0, Z: 1}, Antenna: Antenna{Kind: AntennaGain}}
	rx := Device{Position: Position{X: 20, Y: 0, Z: 1}, Antenna: Antenna{Kind: AntennaGain}}

	r1, err := cs.ComputePair(tx, rx, "scene1", 5.18e9, 80e6)
	if err != nil {
		t.Fatalf("ComputePair: %v", err)
	}
	r2, err := cs.ComputePair(tx, rx, "scene1", 5.18e9, 80e6)
	if err != nil {
		t.Fatalf("ComputePair: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("cached result differs from first computation")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 underlying solver call, got %d", calls)
	}
}

func TestCachedSolverClearsOnSceneChange(t *testing.T) {
	cs := NewCachedSolver(NewFallback(false))
	if err := cs.EnsureScene("scene1", 5.18e9, 80e6); err != nil {
		t.Fatalf("EnsureScene: %v", err)
	}
	tx := Device{Position: Position{X: 0, Y: 0, Z: 1}, Antenna: Antenna{Kind: AntennaGain}}
	rx := Device{Position: Position{X: 20, Y: 0, Z: 1}, Antenna: Antenna{Kind: AntennaGain}}
	if _, err := cs.ComputePair(tx, rx, "scene1", 5.18e9, 80e6); err != nil {
		t.Fatalf("ComputePair: %v", err)
	}
	if cs.CacheLen() != 1 {
		t.Fatalf("expected 1 cache entry, got %d", cs.CacheLen())
	}
	if err := cs.EnsureScene("scene2", 5.18e9, 80e6); err != nil {
		t.Fatalf("EnsureScene: %v", err)
	}
	if cs.CacheLen() != 0 {
		t.Fatalf("scene change should clear cache, got %d entries", cs.CacheLen())
	}
}

type countingSolver struct {
	*Fallback
	calls *int
}

func (c *countingSolver) ComputePair(tx, rx Device, sceneRef string, freqHz, bwHz float64) (PathResult, error) {
	*c.calls++
	return c.Fallback.ComputePair(tx, rx, sceneRef, freqHz, bwHz)
}
