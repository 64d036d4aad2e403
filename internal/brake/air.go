package brake

import (
	"math"

	"github.com/OCAP2/brakesim/internal/pressure"
	"github.com/OCAP2/brakesim/internal/valve"
)

// Thresholds for softening the application near equalization, in psi.
const (
	applySoftenBand = 20.0
	pipeSoftenBand  = 1.0
	releaseSoften   = 1.0
)

func initializeAir(s *System, maxPressure, fullServPressure float64, immediateRelease bool) {
	p, st := &s.params, &s.st
	st.BrakePipe = maxPressure
	st.Control.Set(maxPressure)
	st.AutoCylinder = 0
	if !immediateRelease {
		st.BrakePipe = math.Min(fullServPressure, maxPressure)
		st.AutoCylinder = math.Min((maxPressure-st.BrakePipe)*p.AuxCylVolumeRatio, p.MaxCylPressure)
	}
	aux := maxPressure - st.AutoCylinder/p.AuxCylVolumeRatio
	if p.Kind.TwoPipes() {
		aux = maxPressure
	}
	st.Aux.Set(math.Max(aux, st.BrakePipe))
	st.Emergency.Set(math.Max(st.Aux.Or(0), maxPressure))
	st.MainResPipe.Set(p.MaxMainResPipePressure)
	st.MainRes.Set(p.MaxMainResPressure)
	st.EngineBrake.Set(0)
	st.Valve = valve.Lap
	if st.AutoCylinder < 1 {
		st.Valve = valve.Release
	}
}

func initMovingAir(s *System, pipe float64) {
	p, st := &s.params, &s.st
	st.BrakePipe = pipe
	st.Control.Set(pipe)
	st.Aux.Set(pipe)
	st.Emergency.Set(pipe)
	st.MainResPipe.Set(p.MaxMainResPipePressure)
	st.MainRes.Set(p.MaxMainResPressure)
	st.EngineBrake.Set(0)
	st.AutoCylinder = 0
	st.Valve = valve.Release
}

func updateAir(s *System, dt float64) {
	p, st := &s.params, &s.st

	if st.BleedOff {
		bleedOff(s, dt)
	}

	prev := st.Valve
	in := valve.Inputs{
		State:     st.Valve,
		BrakePipe: st.BrakePipe,
		Aux:       st.Aux.Or(0),
		Control:   st.Control.Or(0),
		Cylinder:  st.AutoCylinder,
		PipeRate:  s.rate.Rate(),
		Holding:   s.in.Holding,
		BailOff:   s.in.BailOff,
	}
	if p.ValveType == valve.Distributor {
		st.Valve = valve.EvaluateDistributor(in, s.thresholds)
	} else {
		st.Valve = valve.EvaluateTripleValve(in, s.thresholds)
	}
	if st.Valve == valve.Emergency && prev != valve.Emergency {
		st.DumpActive = p.EmergencyDumpValveRate > 0
		st.DumpTimer = p.EmergencyDumpValveTimer
	}

	threshold := s.cylinderThreshold()
	switch st.Valve {
	case valve.Apply, valve.Emergency:
		applyFromAux(s, dt, threshold)
	case valve.Release:
		releaseCylinder(s, dt, threshold)
	}

	chargeReservoirs(s, dt)
	if st.DumpActive {
		emergencyDump(s, dt)
	}
}

// cylinderThreshold is the pressure the cylinder is driven towards: the
// application limit in Apply and the release floor in Release.
func (s *System) cylinderThreshold() float64 {
	p, st := &s.params, &s.st
	var t float64
	switch {
	case st.Valve == valve.Emergency:
		t = p.MaxCylPressure
	case p.ValveType == valve.Distributor:
		application := st.Control.Or(0) - st.BrakePipe
		if application >= p.InitialApplicationThreshold {
			t = math.Max(application*p.AuxCylVolumeRatio, 0)
		}
	case st.Valve != valve.Release:
		t = p.MaxCylPressure
	}
	t = math.Max(t, s.retainer.Threshold)
	t = math.Max(t, s.epFloor)
	return math.Min(t, p.MaxCylPressure)
}

func applyFromAux(s *System, dt, threshold float64) {
	p, st := &s.params, &s.st
	aux, ok := st.Aux.Get()
	if !ok {
		return
	}
	r := p.AuxCylVolumeRatio
	emergency := st.Valve == valve.Emergency

	rise := p.MaxApplicationRate * dt
	if d := aux - st.AutoCylinder; d < applySoftenBand {
		rise *= math.Max(d, 0) / applySoftenBand
	}
	if !emergency && st.BrakePipe > aux-pipeSoftenBand {
		rise *= pressure.Lerp(0.1, 1, aux-st.BrakePipe)
	}
	rise = math.Min(rise, threshold-st.AutoCylinder)
	if !emergency {
		// aux never drops below the pipe in a service application
		rise = math.Min(rise, (aux-st.BrakePipe)*r)
	}
	if rise <= 0 {
		return
	}
	aux, st.AutoCylinder = pressure.ChargeTransfer(aux, r, st.AutoCylinder, 1, rise/r/dt, dt)
	st.Aux.Set(aux)
}

func releaseCylinder(s *System, dt, floor float64) {
	st := &s.st
	if st.AutoCylinder <= floor {
		return
	}
	rate := s.retainer.ReleaseRate
	if d := st.AutoCylinder - floor; d < releaseSoften {
		rate *= pressure.Lerp(0.1, 1, d)
	}
	st.AutoCylinder = pressure.Vent(st.AutoCylinder, floor, rate, dt)
}

// chargeInto raises a reservoir from a line by at most rate*dt and never
// above ceiling. ratio is reservoir volume over line volume.
func chargeInto(line, res, ratio, rate, ceiling, dt float64) (float64, float64) {
	rise := math.Min(rate*dt, ceiling-res)
	if rise <= 0 || line <= res {
		return line, res
	}
	return pressure.ChargeTransfer(line, 1, res, ratio, rise*ratio/dt, dt)
}

func chargeReservoirs(s *System, dt float64) {
	p, st := &s.params, &s.st
	aux, ok := st.Aux.Get()
	if !ok || st.BleedOff || st.Valve == valve.Emergency {
		if st.Valve == valve.Emergency {
			feedAuxFromEmergency(s, dt)
		}
		return
	}
	distributor := p.ValveType == valve.Distributor

	ceiling := st.BrakePipe
	if distributor {
		ceiling = math.Max(ceiling, st.Control.Or(0))
	}
	line2, twin := st.MainResPipe.Get()
	switch {
	case twin && line2 > st.BrakePipe:
		line2, aux = chargeInto(line2, aux, p.AuxBrakeLineVolumeRatio, p.MaxAuxChargingRate, ceiling, dt)
		st.MainResPipe.Set(line2)
	case st.BrakePipe > aux && (st.Valve == valve.Release || distributor && st.Valve != valve.Apply):
		st.BrakePipe, aux = chargeInto(st.BrakePipe, aux, p.AuxBrakeLineVolumeRatio, p.MaxAuxChargingRate, math.Inf(1), dt)
	}

	if st.Valve == valve.Release {
		if distributor {
			ctrl := st.Control.Or(0)
			if ctrl < st.BrakePipe {
				st.Control.Set(st.BrakePipe)
			} else if p.BrakeInsensitivityRate > 0 && ctrl < st.BrakePipe+1 {
				st.Control.Set(math.Max(ctrl-p.BrakeInsensitivityRate*dt, st.BrakePipe))
			}
		}
		if p.BrakeInsensitivityRate > 0 && aux > st.BrakePipe {
			aux, st.BrakePipe = pressure.ChargeTransfer(aux, p.AuxBrakeLineVolumeRatio, st.BrakePipe, 1, p.BrakeInsensitivityRate, dt)
		}
		if emerg, ok := st.Emergency.Get(); ok && st.BrakePipe > emerg {
			st.BrakePipe, emerg = chargeInto(st.BrakePipe, emerg, p.emergBrakeLineVolumeRatio(), p.EmergResChargingRate, math.Inf(1), dt)
			st.Emergency.Set(emerg)
		}
	}
	st.Aux.Set(aux)
}

func feedAuxFromEmergency(s *System, dt float64) {
	p, st := &s.params, &s.st
	emerg, ok := st.Emergency.Get()
	aux, hasAux := st.Aux.Get()
	if !ok || !hasAux || emerg <= aux {
		return
	}
	emerg, aux = pressure.ChargeTransfer(emerg, p.EmergAuxVolumeRatio, aux, 1, p.MaxApplicationRate, dt)
	st.Emergency.Set(emerg)
	st.Aux.Set(aux)
}

// emergencyDumpClosePipe is the pipe pressure below which a dump valve
// without a timer closes.
const emergencyDumpClosePipe = 1.0

func emergencyDump(s *System, dt float64) {
	p, st := &s.params, &s.st
	st.BrakePipe = pressure.Vent(st.BrakePipe, 0, p.EmergencyDumpValveRate, dt)
	if p.EmergencyDumpValveTimer > 0 {
		st.DumpTimer = math.Max(st.DumpTimer-dt, 0)
		st.DumpActive = st.DumpTimer > 0
		return
	}
	st.DumpActive = st.BrakePipe >= emergencyDumpClosePipe
}

// bleedOff: a distributor forgets its reference pressure and closes; a
// triple valve car vents its reservoirs until empty.
func bleedOff(s *System, dt float64) {
	p, st := &s.params, &s.st
	if p.ValveType == valve.Distributor {
		st.Control.Set(0)
		st.BleedOff = false
		return
	}
	aux := pressure.Vent(st.Aux.Or(0), 0, p.MaxReleaseRate, dt)
	emerg := pressure.Vent(st.Emergency.Or(0), 0, p.MaxReleaseRate, dt)
	st.Aux.Set(aux)
	st.Emergency.Set(emerg)
	if aux <= 0 && emerg <= 0 {
		st.BleedOff = false
	}
}

// StepCompressor runs a locomotive's compressor: it cuts in below the
// restart pressure and charges the main reservoir until the maximum.
func (s *System) StepCompressor(dt float64) {
	p, st := &s.params, &s.st
	mr, ok := st.MainRes.Get()
	if !ok || dt <= 0 {
		return
	}
	if mr < p.CompressorRestartPressure {
		st.CompressorOn = true
	}
	if !st.CompressorOn {
		return
	}
	mr = math.Min(mr+p.CompressorChargingRate*dt, p.MaxMainResPressure)
	st.MainRes.Set(mr)
	if mr >= p.MaxMainResPressure {
		st.CompressorOn = false
	}
}

func settleAir(s *System, dt float64) {
	p, st := &s.params, &s.st

	if s.in.BailOff && st.AutoCylinder > 0 {
		st.AutoCylinder = pressure.Vent(st.AutoCylinder, 0, p.MaxReleaseRate, dt)
	}

	hi := math.Max(p.MaxMainResPressure, s.st.MaxPressure)
	st.BrakePipe = pressure.Clamp(st.BrakePipe, 0, hi)
	for _, o := range []*pressure.Optional{&st.Aux, &st.Emergency, &st.Control, &st.MainResPipe, &st.EngineBrake, &st.MainRes} {
		if v, ok := o.Get(); ok {
			o.Set(pressure.Clamp(v, 0, hi))
		}
	}
	st.AutoCylinder = pressure.Clamp(st.AutoCylinder, 0, p.MaxCylPressure)

	cyl := math.Max(st.AutoCylinder, st.EngineBrake.Or(0))
	if p.WheelSlideProtection && s.slide.Step(&st.WheelSlide, s.in.Skid, cyl, st.BrakePipe, dt) {
		st.AutoCylinder = pressure.Vent(st.AutoCylinder, 0, p.MaxReleaseRate, dt)
		cyl = st.AutoCylinder
	}
	st.Cylinder = math.Min(cyl, hi)
}

func airForce(s *System) float64 {
	p := &s.params
	return p.MaxBrakeForceN * math.Max(s.st.Cylinder/p.ReferencePressure, 0)
}

func airBraking(s *System) bool {
	return s.st.Cylinder > 0.3*s.params.ReferencePressure
}

func airSchema(st *State, b *binder) {
	commonSchema(st, b)
	b.Optional("mainResPipe", &st.MainResPipe)
	b.Optional("engineBrake", &st.EngineBrake)
	b.Optional("mainRes", &st.MainRes)
	b.Optional("aux", &st.Aux)
	b.Optional("emergency", &st.Emergency)
	b.Optional("control", &st.Control)
	b.Float("autoCylinder", &st.AutoCylinder)
	bindEnum(b, "valve", &st.Valve)
	bindEnum(b, "retainer", &st.Retainer)
	b.Bool("dumpActive", &st.DumpActive)
	b.Float("dumpTimer", &st.DumpTimer)
	b.Bool("compressorOn", &st.CompressorOn)
	b.Float("wheelSlideTimer", &st.WheelSlide.Timer)
	b.Bool("wheelSlideLockedOut", &st.WheelSlide.LockedOut)
}
