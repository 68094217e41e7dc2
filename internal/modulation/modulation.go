// Package modulation implements the theoretical BER/BLER/PER formulas and
// the MCS table abstraction, grounded in sine's modulation.py: fixed
// bits-per-symbol table, AWGN bit-error formulas for BPSK/QPSK and square
// M-QAM, a coding-gain model for LDPC/Polar/Turbo, and the netem-facing
// effective-rate formula.
package modulation

import "math"

// Scheme is a modulation tag.
type Scheme string

const (
	BPSK    Scheme = "bpsk"
	QPSK    Scheme = "qpsk"
	QAM16   Scheme = "16qam"
	QAM64   Scheme = "64qam"
	QAM256  Scheme = "256qam"
	QAM1024 Scheme = "1024qam"
)

// BitsPerSymbol is the fixed modulation -> bits/symbol mapping.
var BitsPerSymbol = map[Scheme]int{
	BPSK:    1,
	QPSK:    2,
	QAM16:   4,
	QAM64:   6,
	QAM256:  8,
	QAM1024: 10,
}

// FEC is a forward-error-correction family.
type FEC string

const (
	FECNone  FEC = "none"
	FECLDPC  FEC = "ldpc"
	FECPolar FEC = "polar"
	FECTurbo FEC = "turbo"
)

// codingGainDB is the fixed coding-gain offset per FEC family at code
// rate 0.5, per spec.md §4.2.
var codingGainDB = map[FEC]float64{
	FECNone:  0,
	FECLDPC:  8,
	FECPolar: 7.5,
	FECTurbo: 7,
}

const (
	berFloor   = 1e-12
	berCeiling = 0.5
)

// erfc is the complementary error function, via math.Erfc.
func erfc(x float64) float64 { return math.Erfc(x) }

// qFunction is Q(x) = 0.5*erfc(x/sqrt(2)).
func qFunction(x float64) float64 { return 0.5 * erfc(x/math.Sqrt2) }

// TheoreticalBER returns the theoretical bit-error rate in an AWGN
// channel for scheme at snrDB, clamped to [1e-12, 0.5].
func TheoreticalBER(scheme Scheme, snrDB float64) float64 {
	bits, ok := BitsPerSymbol[scheme]
	if !ok {
		bits = 1
	}
	snrLinear := math.Pow(10, snrDB/10)
	ebN0 := snrLinear / float64(bits)

	var ber float64
	switch scheme {
	case BPSK, QPSK:
		ber = 0.5 * erfc(math.Sqrt(ebN0))
	default:
		m := math.Pow(2, float64(bits))
		arg := math.Sqrt(3 * snrLinear / (m - 1))
		ps := 4 * (1 - 1/math.Sqrt(m)) * qFunction(arg)
		ber = ps / float64(bits)
	}

	return clamp(ber, berFloor, berCeiling)
}

// BLER returns the block-error rate for scheme under fec at code rate
// codeRate, for a block of infoBits information bits, per spec.md §4.2:
// a fixed coding-gain offset shifts the effective SNR, then
// BLER = 1 - (1-BER)^k.
func BLER(scheme Scheme, fec FEC, codeRate, snrDB float64, infoBits int) float64 {
	gain, ok := codingGainDB[fec]
	if !ok {
		gain = 0
	}
	rateFactor := 1 - 0.5*(codeRate-0.5)
	effectiveSNR := snrDB + gain*rateFactor
	ber := TheoreticalBER(scheme, effectiveSNR)

	if ber < 1e-10 {
		// Linearise for very small BER to avoid (1-ber)^k underflowing to 1.
		return clamp(ber*float64(infoBits), 0, 1)
	}
	return clamp(1-math.Pow(1-ber, float64(infoBits)), 0, 1)
}

// PER returns the packet-error rate given a bit-error rate and packet
// length in bits, per spec.md §4.2.
func PER(ber float64, packetBits int) float64 {
	if ber < 1e-10 {
		return clamp(ber*float64(packetBits), 0, 1)
	}
	return clamp(1-math.Pow(1-ber, float64(packetBits)), 0, 1)
}

// PERFromBER is an alias kept for readability at call sites that already
// have a BER in hand (e.g. from a BLER computation) and want the
// packet-level figure for a different packet length.
func PERFromBER(ber float64, packetBits int) float64 { return PER(ber, packetBits) }

const minRateMbps = 0.1

// EffectiveRateMbps returns the shaper-facing throughput for a channel
// with bandwidth bwMHz, modulation carrying bitsPerSymbol bits/symbol, at
// codeRate, experiencing packet error rate per. Floored at 0.1 Mbps.
func EffectiveRateMbps(bwMHz float64, bitsPerSymbol int, codeRate, per float64) float64 {
	rate := bwMHz * float64(bitsPerSymbol) * codeRate * 0.8 * (1 - per)
	return math.Max(rate, minRateMbps)
}

// DelayJitterMs converts minDelayNs/delaySpreadNs (path solver output) to
// netem delay/jitter in ms.
func DelayJitterMs(minDelayNs, delaySpreadNs float64) (delayMs, jitterMs float64) {
	return minDelayNs / 1e6, delaySpreadNs / 1e6
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
