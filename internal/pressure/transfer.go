package pressure

import "math"

// ChargeTransfer moves gas from the source volume into the sink volume.
// The pressure drop on the source side is limited to maxRate*dt and to the
// drop that would bring both sides to equalization, so the pair never
// overshoots. Gas quantity (pressure × volume) is conserved. Nothing moves
// when dt <= 0 or the source is not above the sink.
func ChargeTransfer(src, srcVol, sink, sinkVol, maxRate, dt float64) (float64, float64) {
	if dt <= 0 || src <= sink {
		return src, sink
	}
	srcVol = EffectiveVolume(srcVol)
	sinkVol = EffectiveVolume(sinkVol)

	dp := (src - sink) * sinkVol / (srcVol + sinkVol)
	if !math.IsInf(maxRate, 1) {
		dp = math.Min(dp, math.Max(maxRate, 0)*dt)
	}
	return src - dp, sink + dp*srcVol/sinkVol
}

// Equalize moves a fraction (0..1) of the way towards the volume-weighted
// equilibrium of the two sides, in whichever direction gas flows.
func Equalize(a, volA, b, volB, fraction float64) (float64, float64) {
	fraction = Clamp(fraction, 0, 1)
	if fraction == 0 || a == b {
		return a, b
	}
	volA = EffectiveVolume(volA)
	volB = EffectiveVolume(volB)
	if a > b {
		dp := fraction * (a - b) * volB / (volA + volB)
		return a - dp, b + dp*volA/volB
	}
	dp := fraction * (b - a) * volA / (volA + volB)
	return a + dp*volB/volA, b - dp
}

// Vent lowers p towards floor at rate*dt, never below floor.
func Vent(p, floor, rate, dt float64) float64 {
	if dt <= 0 || p <= floor {
		return p
	}
	return math.Max(floor, p-rate*dt)
}
