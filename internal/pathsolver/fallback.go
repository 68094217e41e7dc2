package pathsolver

import (
	"fmt"

	"github.com/joshuamhtsang/sine/internal/linkbudget"
)

// Fallback is the always-available closed-form PathSolver: Friis
// free-space loss plus an optional fixed indoor-loss constant. It
// ignores the scene entirely; dominant kind is always fspl_estimate.
type Fallback struct {
	// IndoorLossDB is added to the FSPL estimate when IndoorMode is set.
	// Defaults to 10 dB when IndoorMode is true and IndoorLossDB is left
	// at zero.
	IndoorMode   bool
	IndoorLossDB float64

	sceneRef string
	freqHz   float64
	bwHz     float64
	devices  []Device
}

// NewFallback constructs a Fallback engine. indoorMode enables the fixed
// indoor-loss constant (10 dB default).
func NewFallback(indoorMode bool) *Fallback {
	return &Fallback{IndoorMode: indoorMode}
}

func (f *Fallback) Name() string { return "fspl_fallback" }

func (f *Fallback) LoadScene(sceneRef string, freqHz, bwHz float64) error {
	// Fallback ignores scene content but still tracks the key so a
	// caller can detect "no scene loaded yet" and to mirror the
	// reload-on-scene-change contract real solvers must honor.
	f.sceneRef = sceneRef
	f.freqHz = freqHz
	f.bwHz = bwHz
	f.devices = nil
	return nil
}

func (f *Fallback) ClearDevices() { f.devices = nil }

func (f *Fallback) AddTransmitter(d Device) error {
	f.devices = append(f.devices, d)
	return nil
}

func (f *Fallback) AddReceiver(d Device) error {
	f.devices = append(f.devices, d)
	return nil
}

// ComputePaths computes the path between the two most recently added
// devices (transmitter, then receiver), matching the stateful Solver
// contract; ComputePair is the preferred entry point for the per-link
// pipeline.
func (f *Fallback) ComputePaths() (PathResult, error) {
	if len(f.devices) < 2 {
		return PathResult{}, fmt.Errorf("pathsolver: fallback requires a transmitter and a receiver, got %d devices", len(f.devices))
	}
	tx := f.devices[len(f.devices)-2]
	rx := f.devices[len(f.devices)-1]
	return f.ComputePair(tx, rx, f.sceneRef, f.freqHz, f.bwHz)
}

func (f *Fallback) GetPathDetails() (PathDetails, error) {
	// The fallback synthesizes a single LOS ray: there is nothing to
	// trace, but the interface must never return a nil/empty-breakdown
	// surprise to a debugging caller.
	if len(f.devices) < 2 {
		return PathDetails{}, fmt.Errorf("pathsolver: no computed pair to describe")
	}
	tx := f.devices[len(f.devices)-2]
	rx := f.devices[len(f.devices)-1]
	result, err := f.ComputePair(tx, rx, f.sceneRef, f.freqHz, f.bwHz)
	if err != nil {
		return PathDetails{}, err
	}
	return PathDetails{Rays: []RayInteraction{{
		Kind:    result.DominantKind,
		LossDB:  result.PathLossDB,
		DelayNs: result.MinDelayNs,
	}}}, nil
}

// fixedDelaySpreadNs is the fallback's constant delay spread, per
// spec.md §4.3.
const fixedDelaySpreadNs = 5.0

// ComputePair computes path loss and delay directly from two devices,
// ignoring sceneRef content (the fallback has no geometry beyond tx/rx
// position). Zero positions for both tx and rx is treated as the usage
// error spec.md §4.3 calls out; distance itself still clamps at 0.1 m.
func (f *Fallback) ComputePair(tx, rx Device, sceneRef string, freqHz, bwHz float64) (PathResult, error) {
	if tx.Position == (Position{}) && rx.Position == (Position{}) {
		return PathResult{}, fmt.Errorf("pathsolver: fallback requires at least one non-zero tx/rx position")
	}

	distanceM := linkbudget.Distance(tx.Position, rx.Position)
	lossDB := linkbudget.FSPL(distanceM, freqHz)

	gainsEmbedded := tx.Antenna.Kind == AntennaPattern || rx.Antenna.Kind == AntennaPattern
	if gainsEmbedded {
		lossDB -= patternGainDB(tx.Antenna) + patternGainDB(rx.Antenna)
	}

	if f.IndoorMode {
		indoor := f.IndoorLossDB
		if indoor == 0 {
			indoor = 10
		}
		lossDB += indoor
	}

	delayNs := 1e9 * distanceM / linkbudget.SpeedOfLight

	return PathResult{
		PathLossDB:    lossDB,
		MinDelayNs:    delayNs,
		MaxDelayNs:    delayNs + fixedDelaySpreadNs,
		RMSDelayNs:    fixedDelaySpreadNs,
		NumPaths:      1,
		DominantKind:  DominantFSPLEstimate,
		GainsEmbedded: gainsEmbedded,
	}, nil
}

// patternGainDB is a coarse directional-gain model for named antenna
// patterns used only by the fallback, which has no ray tracer to derive
// real pattern gain from. Gains roughly follow the pattern's typical
// peak: isotropic is 0 dBi by definition, dipoles have a small
// broadside gain, and a 3GPP sector antenna is modeled at its nominal
// boresight gain.
func patternGainDB(a Antenna) float64 {
	if a.Kind != AntennaPattern {
		return 0
	}
	switch a.Pattern {
	case PatternISO:
		return 0
	case PatternDipole, PatternHalfwaveDipole:
		return 2.15
	case PatternSector3GPP:
		return 15
	default:
		return 0
	}
}
