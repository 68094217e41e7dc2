// Package interference implements the ACLR spectral mask and the
// per-receiver interference aggregator (spec.md §4.4), grounded in
// sine's interference_calculator.py IEEE 802.11ax mask model.
package interference

import (
	"math"

	"github.com/joshuamhtsang/sine/internal/linkbudget"
)

// sentinelNoInterferenceDBm stands in for -Inf when no interferer
// survives, so results stay JSON-serializable (spec.md §4.4 step 7).
const sentinelNoInterferenceDBm = -200.0

// orthogonalMarginHz is added to half the TX bandwidth to get the drop
// threshold (spec.md §4.4 step 2).
const orthogonalMarginHz = 80e6

// ACLRdB returns the adjacent-channel leakage rejection in dB for a
// frequency separation freqSepHz given the TX channel bandwidth
// txBwHz, per the IEEE 802.11ax mask (spec.md §4.4 step 3). rxBwHz is
// accepted for API symmetry with the spec but the mask, like the
// reference implementation, keys entirely off TX bandwidth (a spectral
// mask is a transmitter property).
func ACLRdB(freqSepHz, txBwHz, rxBwHz float64) float64 {
	sep := math.Abs(freqSepHz)
	halfTxBw := txBwHz / 2

	switch {
	case sep < halfTxBw:
		return 0
	case sep < halfTxBw+40e6:
		frac := (sep - halfTxBw) / 40e6
		return 20 + frac*8
	case sep < halfTxBw+80e6:
		return 40
	default:
		return 45
	}
}

// Orthogonal reports whether an interferer at freqSepHz from the
// victim's center frequency is excluded entirely from the aggregate
// (spec.md §4.4 step 2).
func Orthogonal(freqSepHz, txBwHz float64) bool {
	return math.Abs(freqSepHz) > txBwHz/2+orthogonalMarginHz
}

// Interferer is one candidate interfering transmitter, already filtered
// for activity and self-isolation by the caller (spec.md §4.4,
// "Activity filter").
type Interferer struct {
	Source         string
	TxPowerDBm     float64
	TxGainDB       float64
	RxGainDB       float64
	PathLossDB     float64
	GainsEmbedded  bool
	FreqHz         float64
	BwHz           float64
	TxProbability  float64 // p_i from the MAC model; 1 when no MAC model
}

// Term is one surviving interference contribution at the victim
// receiver.
type Term struct {
	Source           string
	PowerDBm         float64
	FrequencyHz      float64
	FrequencySepHz   float64
	ACLRdB           float64
}

// Result is the aggregated interference at one victim receiver.
type Result struct {
	TotalDBm float64
	Terms    []Term
}

// Aggregate computes total interference at a victim with center
// frequency rxFreqHz and bandwidth rxBwHz from candidates, per spec.md
// §4.4 steps 1-7. Order of candidates never affects the result to
// within 0.1 dB (linear summation is associative).
func Aggregate(rxFreqHz, rxBwHz float64, candidates []Interferer) Result {
	var linearSum float64
	terms := make([]Term, 0, len(candidates))

	for _, c := range candidates {
		sep := c.FreqHz - rxFreqHz
		if Orthogonal(sep, c.BwHz) {
			continue
		}

		aclr := ACLRdB(sep, c.BwHz, rxBwHz)

		powerDBm := c.TxPowerDBm - c.PathLossDB - aclr
		if !c.GainsEmbedded {
			powerDBm += c.TxGainDB + c.RxGainDB
		}

		p := c.TxProbability
		if p <= 0 {
			continue
		}

		linearSum += p * linkbudget.DBToLinear(powerDBm)
		terms = append(terms, Term{
			Source:         c.Source,
			PowerDBm:       powerDBm,
			FrequencyHz:    c.FreqHz,
			FrequencySepHz: sep,
			ACLRdB:         aclr,
		})
	}

	total := sentinelNoInterferenceDBm
	if linearSum > 0 {
		total = linkbudget.LinearToDB(linearSum)
	}

	return Result{TotalDBm: total, Terms: terms}
}
