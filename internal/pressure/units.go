// Package pressure holds the unit conversions and the lumped-volume charge
// transfer used by every brake component.
package pressure

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Air pressures are gauge psi. Vacuum pressures are absolute psi.
const (
	OneAtmospherePSI = 14.696
	PSIPerInHg       = 0.4911541
	PSIPerBar        = 14.5037738
	PSIPerKPa        = 0.145037738
	M3PerFt3         = 0.0283168466
	M3PerIn3         = 1.6387064e-5

	// MinVolumeM3 is the smallest volume used as a weight in transfers.
	MinVolumeM3 = 1e-6
)

func FromBar(bar float64) float64   { return bar * PSIPerBar }
func FromKPa(kpa float64) float64   { return kpa * PSIPerKPa }
func FromInHg(inHg float64) float64 { return inHg * PSIPerInHg }
func ToInHg(psi float64) float64    { return psi / PSIPerInHg }

func Ft3ToM3(ft3 float64) float64 { return ft3 * M3PerFt3 }
func In3ToM3(in3 float64) float64 { return in3 * M3PerIn3 }

// VacuumToAbsolute converts a vacuum reading in inHg below atmosphere to
// absolute psi.
func VacuumToAbsolute(inHg float64) float64 {
	return OneAtmospherePSI - FromInHg(inHg)
}

// AbsoluteToVacuum converts absolute psi to inHg of vacuum.
func AbsoluteToVacuum(psia float64) float64 {
	return ToInHg(OneAtmospherePSI - psia)
}

// PipeVolumeM3 is the internal volume of a pipe of the given diameter and
// length, both in metres.
func PipeVolumeM3(diameterM, lengthM float64) float64 {
	r := diameterM / 2
	return math.Pi * r * r * lengthM
}

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Lerp interpolates between a and b, with t clamped to [0, 1].
func Lerp[T constraints.Float](a, b, t T) T {
	t = Clamp(t, 0, 1)
	return a + (b-a)*t
}

// EffectiveVolume returns v, or MinVolumeM3 when v is too small to use as a
// divisor.
func EffectiveVolume(v float64) float64 {
	if v < MinVolumeM3 || math.IsNaN(v) {
		return MinVolumeM3
	}
	return v
}
