package brake

import (
	"math"

	"github.com/OCAP2/brakesim/internal/pressure"
	"github.com/OCAP2/brakesim/internal/valve"
)

// Manual brakes have no pipe: the brakeman's wheel sets the force.

func initializeManual(s *System, _, _ float64, _ bool) {
	s.st.ManualFraction = 0
	s.st.Valve = valve.Release
}

func updateManual(s *System, dt float64) {
	p, st := &s.params, &s.st
	target := s.in.Brakeman
	switch {
	case st.ManualFraction < target:
		st.ManualFraction = math.Min(st.ManualFraction+p.ManualApplyRate*dt, target)
		st.Valve = valve.Apply
	case st.ManualFraction > target:
		st.ManualFraction = math.Max(st.ManualFraction-p.ManualReleaseRate*dt, target)
		st.Valve = valve.Release
	default:
		st.Valve = valve.Lap
	}
}

func manualForce(s *System) float64 { return s.params.MaxBrakeForceN * s.st.ManualFraction }

func manualBraking(s *System) bool { return s.st.ManualFraction > 0.3 }

func manualSchema(st *State, b *binder) {
	commonSchema(st, b)
	b.Float("manualFraction", &st.ManualFraction)
	bindEnum(b, "valve", &st.Valve)
}

// Piped cars only carry the pipe through; the handbrake is their only
// brake.

func initializePiped(s *System, maxPressure, _ float64, _ bool) {
	s.st.BrakePipe = maxPressure
	s.st.MainRes.Set(s.params.MaxMainResPressure)
	s.st.Valve = valve.Release
}

func initializeVacuumPiped(s *System, maxVacuumInHg, _ float64, _ bool) {
	s.st.BrakePipe = pressure.VacuumToAbsolute(maxVacuumInHg)
	s.st.Valve = valve.Release
}

func initMovingPiped(s *System, pipe float64) {
	s.st.BrakePipe = pipe
	s.st.MainRes.Set(s.params.MaxMainResPressure)
	s.st.Valve = valve.Release
}

func updatePiped(*System, float64) {}

func settlePiped(s *System, _ float64) {
	st := &s.st
	hi := math.Max(s.params.MaxMainResPressure, s.st.MaxPressure)
	st.BrakePipe = pressure.Clamp(st.BrakePipe, 0, hi)
	if v, ok := st.MainRes.Get(); ok {
		st.MainRes.Set(pressure.Clamp(v, 0, hi))
	}
}

func noForce(*System) float64 { return 0 }

func neverBraking(*System) bool { return false }

func pipedSchema(st *State, b *binder) {
	commonSchema(st, b)
	b.Optional("mainRes", &st.MainRes)
}
