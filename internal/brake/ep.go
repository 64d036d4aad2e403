package brake

import (
	"math"

	"github.com/OCAP2/brakesim/internal/pressure"
	"github.com/OCAP2/brakesim/internal/valve"
)

// epOverlay drives the cylinder from the main reservoir pipe while the
// train wire is live. The pneumatic valve still runs and wins whenever it
// demands more. With the wire dead the car is plain twin-pipe air.
var epOverlay = overlayStrategy{
	before: func(s *System, _ float64) {
		s.epFloor = 0
		if !s.in.EPLive {
			return
		}
		target := s.epTarget()
		s.epFloor = target
		if s.st.AutoCylinder > target && s.st.Valve == valve.Lap {
			s.st.Valve = valve.Release
		}
	},
	after: func(s *System, dt float64) {
		if !s.in.EPLive || s.in.Holding {
			return
		}
		applyFromMainResPipe(s, dt, s.epTarget())
	},
}

// smeOverlay replaces the triple valve entirely while the wire is live:
// the cylinder is self-lapping on the commanded fraction.
var smeOverlay = overlayStrategy{
	bypass: func(s *System) bool { return s.in.EPLive },
	before: func(s *System, _ float64) { s.epFloor = 0 },
	after: func(s *System, dt float64) {
		if !s.in.EPLive {
			return
		}
		st := &s.st
		if s.in.Holding {
			st.Valve = valve.Lap
			return
		}
		target := s.epTarget()
		switch {
		case st.AutoCylinder < target:
			applyFromMainResPipe(s, dt, target)
			st.Valve = valve.Apply
		case st.AutoCylinder > target:
			st.AutoCylinder = pressure.Vent(st.AutoCylinder, target, s.params.MaxReleaseRate, dt)
			st.Valve = valve.Release
		default:
			st.Valve = valve.Lap
		}
		chargeReservoirs(s, dt)
	},
}

func (s *System) epTarget() float64 {
	return s.in.EPFraction * s.params.MaxCylPressure
}

func applyFromMainResPipe(s *System, dt, target float64) {
	st := &s.st
	line2, ok := st.MainResPipe.Get()
	if !ok {
		return
	}
	rise := math.Min(s.params.MaxApplicationRate*dt, target-st.AutoCylinder)
	if rise <= 0 {
		return
	}
	line2, st.AutoCylinder = pressure.ChargeTransfer(line2, 1, st.AutoCylinder, 1, rise/dt, dt)
	st.MainResPipe.Set(line2)
}
