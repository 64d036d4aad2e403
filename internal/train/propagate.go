package train

import (
	"math"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/pressure"
)

const (
	// maxStepFraction caps the lead's exhaust per sub-step.
	maxStepFraction = 0.95
	// serviceSoftenBand is the psi above target within which a service
	// reduction slows down.
	serviceSoftenBand = 5.0
)

// subSteps splits dt into steps no longer than the pipe time factor. The
// count depends only on dt and tf.
func subSteps(dt, tf float64) int {
	n := int(dt/tf + 1)
	if n < 1 {
		n = 1
	}
	return n
}

// PropagateBrakePressure moves the lead's target along the pipes for dt
// seconds, then pools main reservoirs and drives the engine brake line. It
// does not run the cars' own updates; Tick does both.
func (c *Consist) PropagateBrakePressure(dt float64) {
	if dt <= 0 {
		return
	}
	for _, car := range c.cars {
		car.StepAngleCocks(dt, c.ref.AngleCockOpeningTime)
		car.StepCompressor(dt)
	}

	switch c.family {
	case brake.FamilyAir:
		c.propagateAir(dt)
	case brake.FamilyVacuum:
		c.propagateVacuum(dt)
	}

	c.poolMainReservoirs()
	c.propagateEngineBrake(dt)
}

func (c *Consist) disabledGradient() bool {
	return c.ref.BrakePipeChargingRate >= brake.DisabledGradientRate && !c.controls.Emergency
}

func (c *Consist) propagateAir(dt float64) {
	target := c.controls.EqualizingPressure
	if c.disabledGradient() {
		c.setPipesInstantly(target)
		return
	}

	n := subSteps(dt, c.ref.BrakePipeTimeFactor)
	sub := dt / float64(n)
	for k := 0; k < n; k++ {
		if c.lead != NoLead && c.info[c.lead].family == brake.FamilyAir {
			c.driveLeadAir(target, sub)
		}
		c.feedMainResPipes(sub)
		c.pipeStep(sub, 0)
	}
	c.clampPipes(0, math.Inf(1))
}

// driveLeadAir charges the lead's pipe from its main reservoir, or exhausts
// it for a service or emergency reduction. A lead without a main reservoir
// charges from an unlimited supply.
func (c *Consist) driveLeadAir(target, sub float64) {
	lead, in := c.cars[c.lead], c.info[c.lead]
	l := lead.Lines()
	bp := l.BrakePipe

	switch {
	case c.controls.Emergency:
		l.BrakePipe = bp - math.Min(sub/c.ref.BrakeEmergencyTimeFactor, maxStepFraction)*bp
	case bp < target:
		rise := math.Min(in.chargeRate*sub, target-bp)
		mr, ok := l.MainRes.Get()
		if !ok {
			l.BrakePipe = bp + rise
			return
		}
		mrVol := pressure.EffectiveVolume(in.mainResVol)
		pipeVol := pressure.EffectiveVolume(in.pipeVol)
		mr, l.BrakePipe = pressure.ChargeTransfer(mr, mrVol, bp, pipeVol, rise*pipeVol/mrVol/sub, sub)
		l.MainRes.Set(mr)
	case bp > target:
		over := bp - target
		drop := math.Min(sub/c.ref.BrakeServiceTimeFactor, maxStepFraction) * bp
		if over < serviceSoftenBand {
			drop *= math.Sqrt(over / serviceSoftenBand)
		}
		l.BrakePipe = bp - math.Min(drop, over)
	}
}

// feedMainResPipes keeps line 2 of every twin-pipe locomotive charged from
// its main reservoir.
func (c *Consist) feedMainResPipes(sub float64) {
	for i, car := range c.cars {
		l := car.Lines()
		mr, ok := l.MainRes.Get()
		line2, twin := l.MainResPipe.Get()
		if !ok || !twin {
			continue
		}
		in := c.info[i]
		ceiling := math.Min(in.maxLine2, mr)
		if line2 >= ceiling {
			continue
		}
		rise := math.Min(in.chargeRate*sub, ceiling-line2)
		mrVol := pressure.EffectiveVolume(in.mainResVol)
		pipeVol := pressure.EffectiveVolume(in.pipeVol)
		mr, line2 = pressure.ChargeTransfer(mr, mrVol, line2, pipeVol, rise*pipeVol/mrVol/sub, sub)
		l.MainRes.Set(mr)
		l.MainResPipe.Set(line2)
	}
}

// linked reports whether the pipes of car i and car i+1 are joined and
// returns the open fraction of the joint.
func (c *Consist) linked(i int) (float64, bool) {
	if i+1 >= len(c.cars) {
		return 0, false
	}
	a, b := c.info[i], c.info[i+1]
	if !a.pipe || !b.pipe || a.family != b.family {
		return 0, false
	}
	rear, front := c.cars[i].Coupling(), c.cars[i+1].Coupling()
	if !front.HoseConnected {
		return 0, false
	}
	open := rear.RearOpen * front.FrontOpen
	return open, open > 0
}

// pipeStep runs one sub-step of leakage, pairwise equalization and venting
// at open ends. ambient is atmosphere in the pipe's own units.
func (c *Consist) pipeStep(sub, ambient float64) {
	frac := math.Min(sub/c.ref.BrakePipeTimeFactor, 1)
	leak := c.ref.TrainPipeLeakRate * sub
	last := len(c.cars) - 1

	for i, car := range c.cars {
		in := c.info[i]
		if !in.pipe || in.family != c.family {
			continue
		}
		l := car.Lines()
		if leak > 0 {
			l.BrakePipe = towards(l.BrakePipe, ambient, leak)
		}

		if open, ok := c.linked(i); ok {
			f := frac * open * open
			nl := c.cars[i+1].Lines()
			va, vb := in.pipeVol, c.info[i+1].pipeVol
			l.BrakePipe, nl.BrakePipe = pressure.Equalize(l.BrakePipe, va, nl.BrakePipe, vb, f)

			a, okA := l.MainResPipe.Get()
			b, okB := nl.MainResPipe.Get()
			if okA && okB {
				a, b = pressure.Equalize(a, va, b, vb, f)
				l.MainResPipe.Set(a)
				nl.MainResPipe.Set(b)
			}
		}

		cp := car.Coupling()
		if cp.FrontOpen > 0 && (i == 0 || !cp.HoseConnected) {
			c.vent(l, ambient, frac*cp.FrontOpen*cp.FrontOpen)
		}
		if cp.RearOpen > 0 && (i == last || !c.cars[i+1].Coupling().HoseConnected) {
			c.vent(l, ambient, frac*cp.RearOpen*cp.RearOpen)
		}
	}
}

func (c *Consist) vent(l *brake.Lines, ambient, f float64) {
	l.BrakePipe += (ambient - l.BrakePipe) * f
	if v, ok := l.MainResPipe.Get(); ok {
		l.MainResPipe.Set(v + (ambient-v)*f)
	}
}

func towards(p, target, step float64) float64 {
	if p > target {
		return math.Max(p-step, target)
	}
	return math.Min(p+step, target)
}

func (c *Consist) clampPipes(lo, hi float64) {
	for i, car := range c.cars {
		if !c.info[i].pipe {
			continue
		}
		l := car.Lines()
		l.BrakePipe = pressure.Clamp(l.BrakePipe, lo, hi)
		if v, ok := l.MainResPipe.Get(); ok {
			l.MainResPipe.Set(pressure.Clamp(v, lo, hi))
		}
	}
}

// setPipesInstantly is the disabled-gradient mode: every pipe joined to the
// lead takes the target at once, and line 2 its locomotive's ceiling.
func (c *Consist) setPipesInstantly(target float64) {
	if !c.gradientLogged {
		c.log.Debug("brake pipe gradient disabled", "chargingRate", c.ref.BrakePipeChargingRate)
		c.gradientLogged = true
	}
	if c.lead == NoLead {
		return
	}
	if c.family == brake.FamilyVacuum {
		target = pressure.VacuumToAbsolute(target)
	}
	lo, hi := c.lead, c.lead
	for lo > 0 {
		if _, ok := c.linked(lo - 1); !ok {
			break
		}
		lo--
	}
	for hi < len(c.cars)-1 {
		if _, ok := c.linked(hi); !ok {
			break
		}
		hi++
	}
	line2 := c.info[c.lead].maxLine2
	if mr, ok := c.cars[c.lead].Lines().MainRes.Get(); ok {
		line2 = math.Min(line2, mr)
	}
	for i := lo; i <= hi; i++ {
		l := c.cars[i].Lines()
		l.BrakePipe = target
		l.MainResPipe.Set(line2)
	}
}

func (c *Consist) propagateVacuum(dt float64) {
	if c.disabledGradient() {
		c.setPipesInstantly(c.controls.EqualizingPressure)
		return
	}
	atm := pressure.OneAtmospherePSI
	desired := pressure.Clamp(pressure.VacuumToAbsolute(c.controls.EqualizingPressure), 0, atm)

	n := subSteps(dt, c.ref.BrakePipeTimeFactor)
	sub := dt / float64(n)
	for k := 0; k < n; k++ {
		if c.lead != NoLead && c.info[c.lead].family == brake.FamilyVacuum {
			c.driveLeadVacuum(desired, sub)
		}
		c.pipeStep(sub, atm)
	}
	c.clampPipes(0, atm)
}

// driveLeadVacuum evacuates the lead's pipe with the ejector on release and
// admits air on application. Pressures are absolute psi.
func (c *Consist) driveLeadVacuum(desired, sub float64) {
	l := c.cars[c.lead].Lines()
	atm := pressure.OneAtmospherePSI
	bp := l.BrakePipe

	switch {
	case c.controls.Emergency:
		l.BrakePipe = bp + math.Min(sub/c.ref.BrakeEmergencyTimeFactor, maxStepFraction)*(atm-bp)
	case bp > desired:
		l.BrakePipe = bp - math.Min(c.ref.VacuumChargingRate*sub, bp-desired)
	case bp < desired:
		rise := math.Min(sub/c.ref.BrakeServiceTimeFactor, maxStepFraction) * (atm - bp)
		l.BrakePipe = bp + math.Min(rise, desired-bp)
	}
}

// poolMainReservoirs shares air between main reservoirs of coupled
// locomotives, weighted by volume.
func (c *Consist) poolMainReservoirs() {
	c.forEachGroup(func(l *brake.Lines) bool { return l.MainRes.Present() }, func(from, to int) {
		var sum, vol float64
		for i := from; i <= to; i++ {
			v := pressure.EffectiveVolume(c.info[i].mainResVol)
			sum += c.cars[i].Lines().MainRes.Or(0) * v
			vol += v
		}
		avg := sum / vol
		for i := from; i <= to; i++ {
			c.cars[i].Lines().MainRes.Set(avg)
		}
	})
}

// propagateEngineBrake drives line 3 of the lead's locomotive group toward
// the engine brake demand, drawing on the lead's own main reservoir, and
// shares the result across the group.
func (c *Consist) propagateEngineBrake(dt float64) {
	c.forEachGroup(func(l *brake.Lines) bool { return l.EngineBrake.Present() }, func(from, to int) {
		if c.lead == NoLead || c.lead < from || c.lead > to {
			return
		}
		lead, in := c.cars[c.lead], c.info[c.lead]
		l := lead.Lines()
		line3 := l.EngineBrake.Or(0)
		demand := pressure.Clamp(c.controls.EngineBrake, 0, lead.Params().MaxCylPressure)

		switch {
		case line3 < demand:
			rise := math.Min(in.applyRate*dt, demand-line3)
			if mr, ok := l.MainRes.Get(); ok {
				mrVol := pressure.EffectiveVolume(in.mainResVol)
				cylVol := pressure.EffectiveVolume(in.cylVol)
				mr, line3 = pressure.ChargeTransfer(mr, mrVol, line3, cylVol, rise*cylVol/mrVol/dt, dt)
				l.MainRes.Set(mr)
			} else {
				line3 += rise
			}
		case line3 > demand:
			line3 = pressure.Vent(line3, demand, in.releaseRate, dt)
		}
		for i := from; i <= to; i++ {
			c.cars[i].Lines().EngineBrake.Set(line3)
		}
	})
}

// forEachGroup calls fn for every maximal run of cars that satisfy member
// and are joined by connected hoses.
func (c *Consist) forEachGroup(member func(*brake.Lines) bool, fn func(from, to int)) {
	for i := 0; i < len(c.cars); {
		if !member(c.cars[i].Lines()) {
			i++
			continue
		}
		j := i
		for j+1 < len(c.cars) && member(c.cars[j+1].Lines()) && c.cars[j+1].Coupling().HoseConnected {
			j++
		}
		fn(i, j)
		i = j + 1
	}
}
