// Package sinr computes signal-to-interference-plus-noise ratio for a
// single link and classifies its regime (spec.md §4.5), grounded in
// sine's SINRCalculator.
package sinr

import (
	"math"

	"github.com/joshuamhtsang/sine/internal/interference"
	"github.com/joshuamhtsang/sine/internal/linkbudget"
)

// Regime names the dominant impairment on a link.
type Regime string

const (
	RegimeNoiseLimited        Regime = "noise-limited"
	RegimeInterferenceLimited Regime = "interference-limited"
	RegimeMixed               Regime = "mixed"
	RegimeUnusable            Regime = "unusable"
)

// sentinelNoInterferenceDBm mirrors interference.Aggregate's sentinel so a
// "no interference survived" result classifies as noise-limited rather
// than tripping the -10/+10 dB regime thresholds.
const sentinelNoInterferenceDBm = -200.0

// regimeThresholdDB is the I/N margin used to separate noise-limited,
// mixed, and interference-limited regimes (spec.md §4.5 step 5).
const regimeThresholdDB = 10.0

// Result is the outcome of a single SINR calculation.
type Result struct {
	TxNode, RxNode string

	SignalPowerDBm      float64
	NoisePowerDBm       float64
	TotalInterferenceDBm float64

	SNRdB  float64
	SINRdB float64

	NumInterferers     int
	InterferenceTerms  []interference.Term

	Regime Regime

	CaptureEffectApplied     bool
	NumSuppressedInterferers int
}

// unusable builds the degraded result returned when the signal itself is
// below the receiver's sensitivity floor; no SNR/SINR is meaningful.
func unusable(txNode, rxNode string, signalPowerDBm, noisePowerDBm float64) Result {
	return Result{
		TxNode:                txNode,
		RxNode:                rxNode,
		SignalPowerDBm:        signalPowerDBm,
		NoisePowerDBm:         noisePowerDBm,
		TotalInterferenceDBm:  math.Inf(-1),
		SNRdB:                 math.Inf(-1),
		SINRdB:                math.Inf(-1),
		Regime:                RegimeUnusable,
	}
}

// Calculator evaluates SINR for individual links against a fixed
// sensitivity floor and an optional capture-effect model.
type Calculator struct {
	RxSensitivityDBm  float64
	ApplyCaptureEffect bool
	CaptureThresholdDB float64
}

// NewCalculator returns a Calculator with spec.md §4.5 defaults
// (-80 dBm sensitivity, capture effect off, 6 dB capture threshold).
func NewCalculator() *Calculator {
	return &Calculator{
		RxSensitivityDBm:   -80.0,
		ApplyCaptureEffect: false,
		CaptureThresholdDB: 6.0,
	}
}

// Calculate computes SINR for a single link using deterministic
// interference terms (every interferer assumed always transmitting,
// i.e. MAC model None). signalPowerDBm and noisePowerDBm are the
// receiver-referred signal and thermal noise powers.
func (c *Calculator) Calculate(txNode, rxNode string, signalPowerDBm, noisePowerDBm float64, terms []interference.Term) Result {
	if signalPowerDBm < c.RxSensitivityDBm {
		return unusable(txNode, rxNode, signalPowerDBm, noisePowerDBm)
	}

	snrDB := signalPowerDBm - noisePowerDBm

	filtered := make([]interference.Term, 0, len(terms))
	for _, term := range terms {
		if term.PowerDBm >= c.RxSensitivityDBm {
			filtered = append(filtered, term)
		}
	}

	numSuppressed := 0
	if c.ApplyCaptureEffect && len(filtered) > 0 {
		filtered, numSuppressed = c.applyCaptureEffect(signalPowerDBm, filtered)
	}

	interferenceLinear := 0.0
	for _, term := range filtered {
		interferenceLinear += linkbudget.DBToLinear(term.PowerDBm)
	}

	totalInterferenceDBm := sentinelNoInterferenceDBm
	if interferenceLinear > 0 {
		totalInterferenceDBm = linkbudget.LinearToDB(interferenceLinear)
	}

	noiseLinear := linkbudget.DBToLinear(noisePowerDBm)
	totalNoisePlusInterference := noiseLinear + interferenceLinear

	sinrDB := snrDB
	if totalNoisePlusInterference > 0 {
		sinrDB = signalPowerDBm - linkbudget.LinearToDB(totalNoisePlusInterference)
	}

	return Result{
		TxNode:                   txNode,
		RxNode:                   rxNode,
		SignalPowerDBm:           signalPowerDBm,
		NoisePowerDBm:            noisePowerDBm,
		TotalInterferenceDBm:     totalInterferenceDBm,
		SNRdB:                    snrDB,
		SINRdB:                   sinrDB,
		NumInterferers:           len(filtered),
		InterferenceTerms:        filtered,
		Regime:                   c.classifyRegime(noisePowerDBm, totalInterferenceDBm),
		CaptureEffectApplied:     c.ApplyCaptureEffect,
		NumSuppressedInterferers: numSuppressed,
	}
}

// CalculateWithProbabilities computes SINR using per-interferer
// transmission probabilities from a MAC model (CSMA or TDMA, spec.md
// §4.6): expected interference = Σ Pr[TX_i] × I_i in the linear domain.
// probs maps interference.Term.Source to its transmission probability;
// sources absent from probs are treated as never transmitting (p=0).
func (c *Calculator) CalculateWithProbabilities(txNode, rxNode string, signalPowerDBm, noisePowerDBm float64, terms []interference.Term, probs map[string]float64) Result {
	if signalPowerDBm < c.RxSensitivityDBm {
		return unusable(txNode, rxNode, signalPowerDBm, noisePowerDBm)
	}

	snrDB := signalPowerDBm - noisePowerDBm

	filtered := make([]interference.Term, 0, len(terms))
	for _, term := range terms {
		if term.PowerDBm >= c.RxSensitivityDBm {
			filtered = append(filtered, term)
		}
	}

	expectedInterferenceLinear := 0.0
	for _, term := range filtered {
		prob := probs[term.Source]
		expectedInterferenceLinear += prob * linkbudget.DBToLinear(term.PowerDBm)
	}

	totalInterferenceDBm := sentinelNoInterferenceDBm
	if expectedInterferenceLinear > 0 {
		totalInterferenceDBm = linkbudget.LinearToDB(expectedInterferenceLinear)
	}

	noiseLinear := linkbudget.DBToLinear(noisePowerDBm)
	totalNoisePlusInterference := noiseLinear + expectedInterferenceLinear

	sinrDB := snrDB
	if totalNoisePlusInterference > 0 {
		sinrDB = signalPowerDBm - linkbudget.LinearToDB(totalNoisePlusInterference)
	}

	return Result{
		TxNode:               txNode,
		RxNode:               rxNode,
		SignalPowerDBm:       signalPowerDBm,
		NoisePowerDBm:        noisePowerDBm,
		TotalInterferenceDBm: totalInterferenceDBm,
		SNRdB:                snrDB,
		SINRdB:               sinrDB,
		NumInterferers:       len(filtered),
		InterferenceTerms:    filtered,
		Regime:               c.classifyRegime(noisePowerDBm, totalInterferenceDBm),
	}
}

// applyCaptureEffect drops interferers weaker than the signal by at
// least CaptureThresholdDB, modeling a receiver's ability to lock onto
// the stronger of two colliding transmissions.
func (c *Calculator) applyCaptureEffect(signalPowerDBm float64, terms []interference.Term) ([]interference.Term, int) {
	kept := make([]interference.Term, 0, len(terms))
	suppressed := 0
	for _, term := range terms {
		signalToInterferenceDB := signalPowerDBm - term.PowerDBm
		if signalToInterferenceDB >= c.CaptureThresholdDB {
			suppressed++
			continue
		}
		kept = append(kept, term)
	}
	return kept, suppressed
}

// classifyRegime labels a link by which impairment dominates it, per
// spec.md §4.5 step 5.
func (c *Calculator) classifyRegime(noisePowerDBm, totalInterferenceDBm float64) Regime {
	if totalInterferenceDBm <= sentinelNoInterferenceDBm {
		return RegimeNoiseLimited
	}
	iOverN := totalInterferenceDBm - noisePowerDBm
	switch {
	case iOverN < -regimeThresholdDB:
		return RegimeNoiseLimited
	case iOverN > regimeThresholdDB:
		return RegimeInterferenceLimited
	default:
		return RegimeMixed
	}
}

// ThermalNoiseDBm is re-exported for callers that only have sinr
// imported; it delegates to linkbudget.ThermalNoise so the pipeline can
// depend on a single noise formula.
func ThermalNoiseDBm(bandwidthHz, temperatureK, noiseFigureDB float64) float64 {
	return linkbudget.ThermalNoise(bandwidthHz, temperatureK, noiseFigureDB)
}
