package brake

import (
	"math"

	"github.com/OCAP2/brakesim/internal/pressure"
	"github.com/OCAP2/brakesim/internal/valve"
)

// Vacuum pressures are absolute psi: a released train has its pipe
// evacuated well below atmosphere, an application admits air.

func initializeVacuum(s *System, maxVacuumInHg, fullServVacuumInHg float64, immediateRelease bool) {
	st := &s.st
	st.BrakePipe = pressure.VacuumToAbsolute(fullServVacuumInHg)
	st.Cylinder = st.BrakePipe
	st.VacuumRes.Set(pressure.VacuumToAbsolute(maxVacuumInHg))
	st.Valve = valve.Lap
	if immediateRelease {
		st.BrakePipe = pressure.VacuumToAbsolute(maxVacuumInHg)
		st.Cylinder = st.BrakePipe
		st.Valve = valve.Release
	}
}

func initMovingVacuum(s *System, pipe float64) {
	st := &s.st
	st.BrakePipe = pipe
	st.Cylinder = pipe
	st.VacuumRes.Set(pipe)
	st.Valve = valve.Release
}

func vacuumThresholds(p *Params) valve.VacuumThresholds {
	th := valve.DefaultVacuum
	th.EmergencyRate = p.EmergencyValveActuationRate
	return th
}

func updateVacuum(s *System, dt float64) {
	p, st := &s.params, &s.st
	atm := pressure.OneAtmospherePSI
	vacRes, _ := st.VacuumRes.Get()
	pipeVol := pressure.EffectiveVolume(p.BrakePipeVolumeM3)
	cylVol := pressure.EffectiveVolume(st.CylinderVolumeM3)
	resVol := pressure.EffectiveVolume(p.VacResVolumeM3)

	if st.BleedOff {
		vacRes = math.Min(vacRes+p.MaxApplicationRate*dt, atm)
		st.Cylinder = math.Min(st.Cylinder+p.MaxApplicationRate*dt, atm)
		st.VacuumRes.Set(vacRes)
		st.Valve = valve.Release
		if vacRes >= atm && st.Cylinder >= atm {
			st.BleedOff = false
		}
		return
	}

	st.Valve = valve.EvaluateVacuum(valve.Inputs{
		State:     st.Valve,
		BrakePipe: st.BrakePipe,
		Cylinder:  st.Cylinder,
		PipeRate:  s.rate.Rate(),
		Holding:   s.in.Holding,
	}, vacuumThresholds(p))

	switch st.Valve {
	case valve.Release:
		if st.BrakePipe < vacRes {
			// the reservoir is exhausted through the pipe
			var pipe float64
			rate := p.MaxApplicationRate * cylVol / resVol
			vacRes, pipe = pressure.ChargeTransfer(vacRes, resVol, st.BrakePipe, pipeVol, rate, dt)
			if !s.in.IsLead {
				st.BrakePipe = pipe
			}
			st.VacuumRes.Set(vacRes)
			st.Cylinder = vacRes
		} else {
			st.Cylinder, st.BrakePipe = pressure.ChargeTransfer(st.Cylinder, cylVol, st.BrakePipe, pipeVol, p.MaxReleaseRate, dt)
		}
	case valve.Apply, valve.Emergency:
		if p.DirectAdmissionValve {
			st.Cylinder += math.Min(p.MaxApplicationRate*dt, math.Max(st.BrakePipe-st.Cylinder, 0))
		} else {
			st.BrakePipe, st.Cylinder = pressure.ChargeTransfer(st.BrakePipe, pipeVol, st.Cylinder, cylVol, p.MaxApplicationRate*cylVol/pipeVol, dt)
		}
	}
}

func settleVacuum(s *System, _ float64) {
	st := &s.st
	atm := pressure.OneAtmospherePSI
	st.BrakePipe = pressure.Clamp(st.BrakePipe, 0, atm)
	st.Cylinder = pressure.Clamp(st.Cylinder, 0, atm)
	if v, ok := st.VacuumRes.Get(); ok {
		st.VacuumRes.Set(pressure.Clamp(v, 0, atm))
	}
}

func vacuumFraction(s *System) float64 {
	vacRes := s.st.VacuumRes.Or(0)
	if s.st.Cylinder <= vacRes {
		return 0
	}
	return math.Min((s.st.Cylinder-vacRes)/s.params.VacuumMaxForcePressure, 1)
}

func vacuumForce(s *System) float64 { return s.params.MaxBrakeForceN * vacuumFraction(s) }

func vacuumBraking(s *System) bool { return vacuumFraction(s) > 0.3 }

func vacuumSchema(st *State, b *binder) {
	commonSchema(st, b)
	b.Optional("vacuumRes", &st.VacuumRes)
	bindEnum(b, "valve", &st.Valve)
}

// Straight vacuum has no reservoir: the cylinder simply follows the pipe.

func initializeStraightVacuum(s *System, maxVacuumInHg, fullServVacuumInHg float64, immediateRelease bool) {
	st := &s.st
	v := fullServVacuumInHg
	if immediateRelease {
		v = maxVacuumInHg
	}
	st.BrakePipe = pressure.VacuumToAbsolute(v)
	st.Cylinder = st.BrakePipe
	st.Valve = valve.Lap
}

func initMovingStraightVacuum(s *System, pipe float64) {
	s.st.BrakePipe = pipe
	s.st.Cylinder = pipe
	s.st.Valve = valve.Release
}

func updateStraightVacuum(s *System, dt float64) {
	p, st := &s.params, &s.st
	switch {
	case st.BrakePipe < st.Cylinder:
		st.Cylinder -= math.Min(p.MaxReleaseRate*dt, st.Cylinder-st.BrakePipe)
		st.Valve = valve.Release
	case st.BrakePipe > st.Cylinder:
		st.Cylinder += math.Min(p.MaxApplicationRate*dt, st.BrakePipe-st.Cylinder)
		st.Valve = valve.Apply
	default:
		st.Valve = valve.Lap
	}
}

func straightVacuumFraction(s *System) float64 {
	f := 1 - (pressure.OneAtmospherePSI-s.st.Cylinder)/s.params.VacuumMaxForcePressure
	return pressure.Clamp(f, 0, 1)
}

func straightVacuumForce(s *System) float64 {
	return s.params.MaxBrakeForceN * straightVacuumFraction(s)
}

func straightVacuumBraking(s *System) bool { return straightVacuumFraction(s) > 0.3 }

func straightVacuumSchema(st *State, b *binder) {
	commonSchema(st, b)
	bindEnum(b, "valve", &st.Valve)
}
