// Package overlay adjusts a car's service brake with the handbrake, the
// retainer valve and wheel-slide protection.
package overlay

import (
	"fmt"
	"math"

	"github.com/OCAP2/brakesim/internal/pressure"
)

// Handbrake returns the larger of the service force and the handbrake's
// share of its maximum force. percent is clamped to 0..100.
func Handbrake(serviceForce, handbrakeMaxForce, percent float64) float64 {
	hb := handbrakeMaxForce * pressure.Clamp(percent, 0, 100) / 100
	return math.Max(serviceForce, hb)
}

// Retainer is the handle position of a retaining valve.
type Retainer int

const (
	RetainerExhaust Retainer = iota
	RetainerHighPressure
	RetainerLowPressure
	RetainerSlowDirect
)

func (r Retainer) String() string {
	switch r {
	case RetainerExhaust:
		return "EX"
	case RetainerHighPressure:
		return "HP"
	case RetainerLowPressure:
		return "LP"
	case RetainerSlowDirect:
		return "SD"
	default:
		return fmt.Sprintf("Retainer(%d)", int(r))
	}
}

// ParseRetainer accepts the short names produced by String.
func ParseRetainer(s string) (Retainer, error) {
	for r := RetainerExhaust; r <= RetainerSlowDirect; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return RetainerExhaust, fmt.Errorf("unknown retainer setting %q", s)
}

// RetainerLimit is the release floor and rate imposed by a retainer.
type RetainerLimit struct {
	Threshold   float64 // psi the cylinder may not release below
	ReleaseRate float64 // psi/s
}

// ApplyRetainer resolves a requested setting against the number of
// positions the car's valve has, returning the setting actually engaged and
// its limits. Exhaust always leaves the car's own release rate in place.
func ApplyRetainer(want Retainer, positions int, maxReleaseRate float64) (Retainer, RetainerLimit) {
	switch want {
	case RetainerLowPressure:
		if positions > 3 {
			return RetainerLowPressure, RetainerLimit{Threshold: 10, ReleaseRate: (50 - 10) / 60.0}
		}
		return ApplyRetainer(RetainerHighPressure, positions, maxReleaseRate)
	case RetainerHighPressure:
		if positions > 0 {
			return RetainerHighPressure, RetainerLimit{Threshold: 20, ReleaseRate: (50 - 20) / 90.0}
		}
	case RetainerSlowDirect:
		if positions > 2 {
			return RetainerSlowDirect, RetainerLimit{Threshold: 0, ReleaseRate: (50 - 10) / 86.0}
		}
	}
	return RetainerExhaust, RetainerLimit{Threshold: 0, ReleaseRate: maxReleaseRate}
}
