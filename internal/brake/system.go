// Package brake models the brake equipment of a single car: its
// reservoirs, valve and cylinder, for every supported architecture.
//
// A System is driven by its consist once per tick: propagation first
// writes the pipes through Lines, then Update runs the car's own valve
// and reservoir equations. Nothing here blocks, logs or fails at run time.
package brake

import (
	"fmt"
	"math"

	"github.com/OCAP2/brakesim/internal/event"
	"github.com/OCAP2/brakesim/internal/overlay"
	"github.com/OCAP2/brakesim/internal/pressure"
	"github.com/OCAP2/brakesim/internal/valve"
)

// minWheelSlidePipe keeps the dump valve shut during emergency reductions.
const minWheelSlidePipe = 36.25

// Event thresholds in psi per sampling window.
const (
	cylinderEventThreshold   = 0.1
	airPipeEventThreshold    = 0.1
	vacuumPipeEventThreshold = 0.05
)

// System is the brake of one car.
type System struct {
	id     string
	params Params
	strat  *strategy

	st State
	in Inputs

	thresholds valve.AirThresholds
	rate       valve.RateTracker
	slide      overlay.WheelSlide
	retainer   overlay.RetainerLimit
	epFloor    float64
	force      float64

	cylMon  *event.Monitor
	pipeMon *event.Monitor
	events  []event.Event
}

// New builds the brake of car id. The params are validated first; a car
// is never built from an invalid record.
func New(id string, p Params) (*System, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("car %s: %w", id, err)
	}
	strat, ok := strategies[p.Kind]
	if !ok {
		return nil, fmt.Errorf("car %s: no strategy for %s", id, p.Kind)
	}
	pipeThreshold := airPipeEventThreshold
	if p.Kind.Family() == FamilyVacuum {
		pipeThreshold = vacuumPipeEventThreshold
	}
	s := &System{
		id:         id,
		params:     p,
		strat:      strat,
		thresholds: p.airThresholds(),
		slide:      overlay.WheelSlide{LockoutAfter: p.WheelSlideLockout, MinPipe: minWheelSlidePipe},
		retainer:   overlay.RetainerLimit{ReleaseRate: p.MaxReleaseRate},
		cylMon:     event.NewMonitor(event.Cylinder, cylinderEventThreshold),
		pipeMon:    event.NewMonitor(event.Pipe, pipeThreshold),
	}
	s.st = s.freshState()
	return s, nil
}

func (s *System) freshState() State {
	p := s.params
	st := State{
		FrontHoseConnected: true,
		AngleCockA:         true,
		AngleCockB:         true,
		AngleCockAAmount:   1,
		AngleCockBAmount:   1,
		CylinderVolumeM3:   p.CylinderVolumeM3,
		Aux:                pressure.None(),
		Emergency:          pressure.None(),
		Control:            pressure.None(),
		VacuumRes:          pressure.None(),
	}
	st.MainResPipe = pressure.None()
	st.EngineBrake = pressure.None()
	st.MainRes = pressure.None()

	switch p.Kind {
	case AirSinglePipe, AirTwinPipe, ElectroPneumatic, SelfLappingEP:
		st.Aux = pressure.Some(0)
		if p.HasEmergencyReservoir() {
			st.Emergency = pressure.Some(0)
		}
		if p.ValveType == valve.Distributor {
			st.Control = pressure.Some(0)
		}
	case VacuumSinglePipe:
		st.VacuumRes = pressure.Some(0)
	}
	if p.Kind.TwoPipes() {
		st.MainResPipe = pressure.Some(0)
	}
	if p.IsLocomotive() && p.Kind.Family() == FamilyAir {
		st.MainRes = pressure.Some(0)
		st.EngineBrake = pressure.Some(0)
	}
	return st
}

func (s *System) ID() string         { return s.id }
func (s *System) Kind() Kind         { return s.params.Kind }
func (s *System) Family() Family     { return s.params.Kind.Family() }
func (s *System) TwoPipes() bool     { return s.params.Kind.TwoPipes() }
func (s *System) Params() Params     { return s.params }
func (s *System) IsLocomotive() bool { return s.params.IsLocomotive() }

// State returns a copy of the car's brake state.
func (s *System) State() State { return s.st }

// Lines exposes the pipes to train propagation, which owns every car's
// pipes for the duration of a tick.
func (s *System) Lines() *Lines { return &s.st.Lines }

// Initialize sets resting pressures. Unless immediateRelease is set the car
// starts with a full service application held. For vacuum kinds
// maxPressure and fullServPressure are inHg of vacuum; for air kinds psi.
func (s *System) Initialize(handbrakeOn bool, maxPressure, fullServPressure float64, immediateRelease bool) {
	s.st = s.freshState()
	s.st.MaxPressure = maxPressure
	s.st.FullServicePressure = fullServPressure
	s.rate.Reset()
	s.strat.initialize(s, maxPressure, fullServPressure, immediateRelease)
	if handbrakeOn && s.params.MaxHandbrakeForceN > 0 {
		s.st.HandbrakePercent = 100
	}
	s.settle(0)
	s.primeMonitors()
}

// InitializeMoving sets an equilibrium with the pipe at pipePressure and no
// application in progress.
func (s *System) InitializeMoving(pipePressure float64) {
	maxP, fullP := s.st.MaxPressure, s.st.FullServicePressure
	s.st = s.freshState()
	s.st.MaxPressure, s.st.FullServicePressure = maxP, fullP
	s.rate.Reset()
	s.strat.initMoving(s, pipePressure)
	s.settle(0)
	s.primeMonitors()
}

// Update advances the car's valve and reservoirs by dt seconds. A zero or
// negative dt changes nothing.
func (s *System) Update(dt float64) {
	if dt <= 0 {
		return
	}
	s.rate.Observe(s.st.BrakePipe, dt)

	ov := s.strat.overlay
	if ov != nil && ov.before != nil {
		ov.before(s, dt)
	}
	if ov == nil || ov.bypass == nil || !ov.bypass(s) {
		s.strat.update(s, dt)
	}
	if ov != nil && ov.after != nil {
		ov.after(s, dt)
	}
	s.settle(dt)
	s.observe(dt)
}

func (s *System) settle(dt float64) {
	if s.strat.settle != nil {
		s.strat.settle(s, dt)
	}
	s.force = overlay.Handbrake(s.strat.force(s), s.params.MaxHandbrakeForceN, s.st.HandbrakePercent)
}

func (s *System) observe(dt float64) {
	if ev, ok := s.cylMon.Observe(s.st.Cylinder, dt); ok {
		ev.CarID = s.id
		s.events = append(s.events, ev)
	}
	if ev, ok := s.pipeMon.Observe(s.st.BrakePipe, dt); ok {
		ev.CarID = s.id
		s.events = append(s.events, ev)
	}
}

// primeMonitors restarts event detection from the current pressures and
// drops events raised before the state was replaced.
func (s *System) primeMonitors() {
	s.cylMon.Prime(s.st.Cylinder)
	s.pipeMon.Prime(s.st.BrakePipe)
	s.events = nil
}

// DrainEvents returns and clears the pending pressure-change events.
func (s *System) DrainEvents() []event.Event {
	out := s.events
	s.events = nil
	return out
}

// SetHandbrakePercent clamps to 0..100. Cars without a handbrake keep 0.
func (s *System) SetHandbrakePercent(pct float64) {
	if s.params.MaxHandbrakeForceN <= 0 {
		s.st.HandbrakePercent = 0
		return
	}
	s.st.HandbrakePercent = pressure.Clamp(pct, 0, 100)
	s.force = overlay.Handbrake(s.strat.force(s), s.params.MaxHandbrakeForceN, s.st.HandbrakePercent)
}

// SetRetainer engages the nearest setting the car's valve supports and
// returns it.
func (s *System) SetRetainer(r overlay.Retainer) overlay.Retainer {
	got, lim := overlay.ApplyRetainer(r, s.params.RetainerPositions, s.params.MaxReleaseRate)
	s.st.Retainer = got
	s.retainer = lim
	return got
}

func (s *System) SetBleedOff(open bool)        { s.st.BleedOff = open }
func (s *System) SetFrontHoseConnected(c bool) { s.st.FrontHoseConnected = c }

// SetAngleCock opens or closes the front (A) or rear (B) cock. Closing is
// immediate; opening is ramped by propagation.
func (s *System) SetAngleCock(front, open bool) {
	if front {
		s.st.AngleCockA = open
		if !open {
			s.st.AngleCockAAmount = 0
		}
		return
	}
	s.st.AngleCockB = open
	if !open {
		s.st.AngleCockBAmount = 0
	}
}

// Coupling is the state of a car's pipe ends as seen by propagation.
type Coupling struct {
	HoseConnected bool    // front hose to the previous car
	FrontOpen     float64 // angle cock A open amount, 0..1
	RearOpen      float64 // angle cock B open amount, 0..1
}

func (s *System) Coupling() Coupling {
	return Coupling{
		HoseConnected: s.st.FrontHoseConnected,
		FrontOpen:     s.st.AngleCockAAmount,
		RearOpen:      s.st.AngleCockBAmount,
	}
}

// StepAngleCocks ramps open cocks to 0.3 over openingTime seconds and then
// to fully open over a further 5 seconds.
func (s *System) StepAngleCocks(dt, openingTime float64) {
	if dt <= 0 {
		return
	}
	s.st.AngleCockAAmount = stepCock(s.st.AngleCockA, s.st.AngleCockAAmount, dt, openingTime)
	s.st.AngleCockBAmount = stepCock(s.st.AngleCockB, s.st.AngleCockBAmount, dt, openingTime)
}

const (
	cockFirstStage     = 0.3
	cockSecondStageSec = 5.0
)

func stepCock(open bool, amount, dt, openingTime float64) float64 {
	if !open {
		return 0
	}
	if amount >= 1 {
		return 1
	}
	if openingTime <= 0 {
		return 1
	}
	if amount < cockFirstStage {
		return math.Min(amount+cockFirstStage*dt/openingTime, cockFirstStage)
	}
	return math.Min(amount+(1-cockFirstStage)*dt/cockSecondStageSec, 1)
}

// Per-tick signals.

func (s *System) SetLead(lead bool) { s.in.IsLead = lead }

// SetEP sets the electro-pneumatic demand (0..1 of full service) and
// whether the train wire is live.
func (s *System) SetEP(fraction float64, live bool) {
	s.in.EPFraction = pressure.Clamp(fraction, 0, 1)
	s.in.EPLive = live
}

// SetBrakeman sets the manual brake demand, 0..1.
func (s *System) SetBrakeman(fraction float64) { s.in.Brakeman = pressure.Clamp(fraction, 0, 1) }

func (s *System) SetSkid(skid bool)       { s.in.Skid = skid }
func (s *System) SetHolding(holding bool) { s.in.Holding = holding }
func (s *System) SetBailOff(bailOff bool) { s.in.BailOff = bailOff }

// Queries.

// CylinderPressure is the larger of the automatic and engine brake demand.
func (s *System) CylinderPressure() float64 { return s.st.Cylinder }

// RetardForce is the brake force in newtons including the handbrake.
func (s *System) RetardForce() float64 { return s.force }

// IsBraking reports a cylinder above 30% of its reference pressure, or the
// equivalent force fraction for non-air kinds.
func (s *System) IsBraking() bool { return s.strat.braking(s) }

// WheelSlideLockedOut reports whether the dump valve has locked out.
func (s *System) WheelSlideLockedOut() bool { return s.st.WheelSlide.LockedOut }

// AISetPercent returns the desired pipe pressure for an autopilot demand
// of pct percent of full service, in the units passed to Initialize.
func (s *System) AISetPercent(pct float64) float64 {
	pct = pressure.Clamp(pct, 0, 100)
	return s.st.MaxPressure - (s.st.MaxPressure-s.st.FullServicePressure)*pct/100
}

// Status summarises the car for telemetry.
func (s *System) Status() Status {
	st := s.st
	status := Status{
		CarID:       s.id,
		Kind:        s.params.Kind.String(),
		BrakePipe:   st.BrakePipe,
		MainResPipe: optPtr(st.MainResPipe),
		EngineBrake: optPtr(st.EngineBrake),
		MainRes:     optPtr(st.MainRes),
		Aux:         optPtr(st.Aux),
		Emergency:   optPtr(st.Emergency),
		Control:     optPtr(st.Control),
		VacuumRes:   optPtr(st.VacuumRes),
		Cylinder:    st.Cylinder,
		Valve:       st.Valve.String(),
		Force:       s.force,
		Handbrake:   st.HandbrakePercent,
		Braking:     s.IsBraking(),
	}
	if s.Family() == FamilyVacuum {
		inHg := pressure.AbsoluteToVacuum(st.BrakePipe)
		status.BrakePipeInHg = &inHg
	}
	return status
}
