// Package pathsolver defines the PathSolver contract (spec.md §4.3, §6.1)
// and ships the FSPL fallback implementation that must always be
// available. A ray-tracing engine is an external collaborator reached
// through the same interface; this package never assumes one exists.
package pathsolver

import (
	"fmt"

	"github.com/joshuamhtsang/sine/internal/linkbudget"
)

// Position is a 3D position in meters.
type Position = linkbudget.Vec3

// AntennaKind distinguishes an explicit dBi gain from a named pattern
// that a ray-tracing engine can embed directionally.
type AntennaKind int

const (
	AntennaGain AntennaKind = iota
	AntennaPattern
)

// AntennaPattern tags, per spec.md §3.
const (
	PatternISO             = "iso"
	PatternDipole          = "dipole"
	PatternHalfwaveDipole  = "halfwave_dipole"
	PatternSector3GPP      = "sector_3gpp"
)

// Antenna is a tagged variant: exactly one of GainDBi (when Kind ==
// AntennaGain) or Pattern (when Kind == AntennaPattern) is meaningful.
type Antenna struct {
	Kind    AntennaKind
	GainDBi float64
	Pattern string
}

// Polarization tag, per spec.md §3.
type Polarization string

const (
	PolV     Polarization = "V"
	PolH     Polarization = "H"
	PolVH    Polarization = "VH"
	PolCross Polarization = "cross"
)

// DominantKind classifies which propagation mechanism dominated a path
// computation.
type DominantKind string

const (
	DominantLOS          DominantKind = "los"
	DominantNLOS         DominantKind = "nlos"
	DominantDiffraction  DominantKind = "diffraction"
	DominantFSPLEstimate DominantKind = "fspl_estimate"
	DominantNone         DominantKind = "none"
)

// PathResult is the output of a PathSolver for one directed
// (tx, rx, tx_antenna, rx_antenna, scene) tuple.
type PathResult struct {
	PathLossDB   float64
	MinDelayNs   float64
	MaxDelayNs   float64
	RMSDelayNs   float64
	NumPaths     int
	DominantKind DominantKind

	// GainsEmbedded is true when the solver used antenna patterns and
	// therefore already folded pattern gain into PathLossDB. This is
	// load-bearing for the link budget (spec.md §3, "this distinction is
	// load-bearing for C8"): callers must not add antenna gain again.
	GainsEmbedded bool
}

// Degraded returns the synthesized PathResult a caller should substitute
// when the solver fails for one pair, per spec.md §4.7 step 6 / §7.
func Degraded() PathResult {
	return PathResult{
		PathLossDB:   200,
		NumPaths:     0,
		DominantKind: DominantNone,
	}
}

// RayInteraction is one hop of a synthetic or traced ray, used only for
// debugging via GetPathDetails.
type RayInteraction struct {
	Kind        DominantKind
	LossDB      float64
	DelayNs     float64
}

// PathDetails is the per-ray breakdown behind a PathResult, for
// debugging (spec.md §4.3).
type PathDetails struct {
	Rays []RayInteraction
}

// Device is a transmitter or receiver registered with a solver.
type Device struct {
	Name         string
	Position     Position
	Antenna      Antenna
	Polarization Polarization
}

// Solver is the abstract dependency every per-link pipeline computation
// goes through; a ray-tracing engine and the FSPL fallback both
// implement it. All methods are total: failure is returned, never
// thrown.
type Solver interface {
	// LoadScene initializes or switches scene; must invalidate any
	// internal caches derived from the previous scene.
	LoadScene(sceneRef string, freqHz, bwHz float64) error

	ClearDevices()

	AddTransmitter(d Device) error
	AddReceiver(d Device) error

	// ComputePaths computes the path between the most recently added
	// transmitter and receiver pair. Implementations that model multiple
	// simultaneous devices may instead expose a richer per-pair API; the
	// fallback below computes directly from two Devices via ComputePair.
	ComputePaths() (PathResult, error)

	GetPathDetails() (PathDetails, error)

	// Name identifies the engine for logs and the Engine selector.
	Name() string
}

// PairSolver is an optional capability: solvers that can compute a path
// directly from two devices without the stateful
// AddTransmitter/AddReceiver/ComputePaths dance. The FSPL fallback
// implements this; the cache (§4.11) is built against this narrower
// surface since it is what the per-link pipeline actually drives.
type PairSolver interface {
	Solver
	ComputePair(tx, rx Device, sceneRef string, freqHz, bwHz float64) (PathResult, error)
}

// Engine selects which solver implementation a caller wants.
type Engine string

const (
	EngineAuto     Engine = "auto"
	EngineSolver   Engine = "solver"
	EngineFallback Engine = "fallback"
)

// ProcessMode constrains which engines Select will honor.
type ProcessMode string

const (
	ModeNormal         ProcessMode = "normal"
	ModeForceFallback  ProcessMode = "force_fallback"
)

// ErrSolverUnavailable is returned by Select when an explicit solver
// engine was requested but none is registered, or when ModeForceFallback
// rejects an explicit solver request.
type ErrSolverUnavailable struct {
	Reason string
}

func (e *ErrSolverUnavailable) Error() string {
	return fmt.Sprintf("pathsolver: solver unavailable: %s", e.Reason)
}

// Select resolves which PairSolver to use for a request, per spec.md
// §4.3 "Engine selection". rtSolver may be nil when no ray-tracing
// engine is registered.
func Select(requested Engine, mode ProcessMode, rtSolver PairSolver, fallback PairSolver) (PairSolver, error) {
	switch requested {
	case EngineFallback:
		return fallback, nil
	case EngineSolver:
		if mode == ModeForceFallback {
			return nil, &ErrSolverUnavailable{Reason: "process mode force_fallback rejects explicit solver requests"}
		}
		if rtSolver == nil {
			return nil, &ErrSolverUnavailable{Reason: "no ray-tracing solver registered"}
		}
		return rtSolver, nil
	case EngineAuto, "":
		if mode != ModeForceFallback && rtSolver != nil {
			return rtSolver, nil
		}
		return fallback, nil
	default:
		return nil, &ErrSolverUnavailable{Reason: fmt.Sprintf("unknown engine %q", requested)}
	}
}
