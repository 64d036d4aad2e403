// Package train advances the brakes of a whole consist once per tick:
// pipe propagation from the lead unit, main reservoir pooling and the
// engine brake line, then every car's own update.
package train

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/cache"
	"github.com/OCAP2/brakesim/internal/event"
	"github.com/OCAP2/brakesim/internal/pressure"
	"github.com/OCAP2/brakesim/internal/queue"
	"github.com/OCAP2/brakesim/internal/valve"
)

// NoLead marks a consist without a controlling unit.
const NoLead = -1

// DefaultEventCapacity bounds the event queue of a consist.
const DefaultEventCapacity = 4096

var ErrNoCars = errors.New("consist has no cars")

// Controls are the lead unit's commands, held until changed.
type Controls struct {
	// EqualizingPressure is the desired pipe pressure: gauge psi on an air
	// train, inHg of vacuum on a vacuum train.
	EqualizingPressure float64 `json:"equalizingPressure"`
	Emergency          bool    `json:"emergency"`
	// EngineBrake is the line 3 demand in psi.
	EngineBrake float64 `json:"engineBrake"`
	EPFraction  float64 `json:"epFraction"`
	EPLive      bool    `json:"epLive"`
	Brakeman    float64 `json:"brakeman"`
	Holding     bool    `json:"holding"`
	BailOff     bool    `json:"bailOff"`
}

// carInfo caches the constants propagation reads every sub-step.
type carInfo struct {
	pipe        bool
	family      brake.Family
	pipeVol     float64
	mainResVol  float64
	cylVol      float64
	maxLine2    float64
	chargeRate  float64
	applyRate   float64
	releaseRate float64
}

// Consist is an ordered train of cars. It is not safe for concurrent use:
// one caller advances the whole train each tick.
type Consist struct {
	cars   []*brake.System
	index  *cache.CarIndex
	info   []carInfo
	lead   int
	family brake.Family
	ref    brake.Params

	controls Controls
	simTime  float64

	events *queue.Queue[event.Event]
	log    *slog.Logger

	lastValve      []valve.State
	lockedOut      []bool
	gradientLogged bool
}

// Option configures a Consist.
type Option func(*Consist)

// WithLogger sets the logger for emergency trips, wheel-slide lockouts and
// disabled-gradient mode. Records are written at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Consist) {
		if l != nil {
			c.log = l
		}
	}
}

// WithEventQueue replaces the consist's own bounded event queue.
func WithEventQueue(q *queue.Queue[event.Event]) Option {
	return func(c *Consist) {
		if q != nil {
			c.events = q
		}
	}
}

// New assembles a consist from cars in train order. lead is the index of
// the controlling unit or NoLead. The front cock of the first car and the
// rear cock of the last car are closed.
func New(cars []*brake.System, lead int, opts ...Option) (*Consist, error) {
	if len(cars) == 0 {
		return nil, ErrNoCars
	}
	if lead < NoLead || lead >= len(cars) {
		return nil, fmt.Errorf("lead index %d out of range for %d cars", lead, len(cars))
	}
	index := cache.NewCarIndex()
	for i, car := range cars {
		if car == nil {
			return nil, fmt.Errorf("car %d is nil", i)
		}
		if _, dup := index.Get(car.ID()); dup {
			return nil, fmt.Errorf("duplicate car id %q", car.ID())
		}
		index.Set(car.ID(), i)
	}

	c := &Consist{
		cars:      cars,
		index:     index,
		lead:      lead,
		events:    queue.NewBounded[event.Event](DefaultEventCapacity),
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		lastValve: make([]valve.State, len(cars)),
		lockedOut: make([]bool, len(cars)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.refresh()

	cars[0].SetAngleCock(true, false)
	cars[len(cars)-1].SetAngleCock(false, false)
	return c, nil
}

// refresh recomputes everything derived from the cars' parameters.
func (c *Consist) refresh() {
	c.info = make([]carInfo, len(c.cars))
	for i, car := range c.cars {
		p := car.Params()
		c.info[i] = carInfo{
			pipe:        car.Family() != brake.FamilyNone,
			family:      car.Family(),
			pipeVol:     p.BrakePipeVolumeM3,
			mainResVol:  p.MainResVolumeM3,
			cylVol:      p.CylinderVolumeM3,
			maxLine2:    p.MaxMainResPipePressure,
			chargeRate:  p.BrakePipeChargingRate,
			applyRate:   p.EngineBrakeApplyRate,
			releaseRate: p.EngineBrakeReleaseRate,
		}
		c.lastValve[i] = car.State().Valve
	}

	c.family = brake.FamilyNone
	refIdx := 0
	if c.lead != NoLead && c.info[c.lead].pipe {
		c.family = c.info[c.lead].family
		refIdx = c.lead
	} else {
		for i, in := range c.info {
			if in.pipe {
				c.family, refIdx = in.family, i
				break
			}
		}
	}
	c.ref = c.cars[refIdx].Params()
}

func (c *Consist) Len() int                          { return len(c.cars) }
func (c *Consist) Car(i int) *brake.System           { return c.cars[i] }
func (c *Consist) Cars() []*brake.System             { return c.cars }
func (c *Consist) LeadIndex() int                    { return c.lead }
func (c *Consist) Family() brake.Family              { return c.family }
func (c *Consist) Controls() Controls                { return c.controls }
func (c *Consist) SimTime() float64                  { return c.simTime }
func (c *Consist) Events() *queue.Queue[event.Event] { return c.events }

// Lead returns the controlling unit, or nil.
func (c *Consist) Lead() *brake.System {
	if c.lead == NoLead {
		return nil
	}
	return c.cars[c.lead]
}

// CarByID finds a car by its id.
func (c *Consist) CarByID(id string) (int, *brake.System, bool) {
	i, ok := c.index.Get(id)
	if !ok {
		return 0, nil, false
	}
	return i, c.cars[i], true
}

// SetControls replaces every command at once. Fractions are clamped.
func (c *Consist) SetControls(ctl Controls) {
	ctl.EPFraction = pressure.Clamp(ctl.EPFraction, 0, 1)
	ctl.Brakeman = pressure.Clamp(ctl.Brakeman, 0, 1)
	ctl.EngineBrake = max(ctl.EngineBrake, 0)
	ctl.EqualizingPressure = max(ctl.EqualizingPressure, 0)
	c.controls = ctl
}

func (c *Consist) SetEqualizingPressure(p float64) {
	c.controls.EqualizingPressure = max(p, 0)
}

func (c *Consist) SetEmergency(on bool)       { c.controls.Emergency = on }
func (c *Consist) SetEngineBrake(psi float64) { c.controls.EngineBrake = max(psi, 0) }
func (c *Consist) SetBrakeman(f float64)      { c.controls.Brakeman = pressure.Clamp(f, 0, 1) }
func (c *Consist) SetHolding(on bool)         { c.controls.Holding = on }
func (c *Consist) SetBailOff(on bool)         { c.controls.BailOff = on }

// SetEP sets the electro-pneumatic demand and whether the train wire is
// energised.
func (c *Consist) SetEP(fraction float64, live bool) {
	c.controls.EPFraction = pressure.Clamp(fraction, 0, 1)
	c.controls.EPLive = live
}

// AISetPercent sets the desired pipe pressure for an autopilot demand of
// pct percent of full service and returns it.
func (c *Consist) AISetPercent(pct float64) float64 {
	car := c.Lead()
	if car == nil {
		car = c.cars[0]
	}
	v := car.AISetPercent(pct)
	c.controls.EqualizingPressure = v
	return v
}

// Initialize brings every car to rest. The desired pipe pressure becomes
// maxPressure, or fullServicePressure when the train starts braked.
func (c *Consist) Initialize(handbrakeOn bool, maxPressure, fullServicePressure float64, immediateRelease bool) {
	for _, car := range c.cars {
		car.Initialize(handbrakeOn, maxPressure, fullServicePressure, immediateRelease)
	}
	c.controls = Controls{EqualizingPressure: maxPressure}
	if !immediateRelease {
		c.controls.EqualizingPressure = fullServicePressure
	}
	c.afterInit()
}

// InitializeMoving starts a running train: every pipe charged to
// maxPressure and no application in progress.
func (c *Consist) InitializeMoving(maxPressure, fullServicePressure float64) {
	for _, car := range c.cars {
		car.Initialize(false, maxPressure, fullServicePressure, true)
		pipe := maxPressure
		if car.Family() == brake.FamilyVacuum {
			pipe = pressure.VacuumToAbsolute(maxPressure)
		}
		car.InitializeMoving(pipe)
	}
	c.controls = Controls{EqualizingPressure: maxPressure}
	c.afterInit()
}

func (c *Consist) afterInit() {
	c.simTime = 0
	c.events.Clear()
	c.gradientLogged = false
	c.cars[0].SetAngleCock(true, false)
	c.cars[len(c.cars)-1].SetAngleCock(false, false)
	for i, car := range c.cars {
		car.DrainEvents()
		c.lastValve[i] = car.State().Valve
		c.lockedOut[i] = false
	}
}

// Tick advances the whole train by dt seconds: propagation first, then each
// car in consist order. Events are stamped with the simulation time and
// queued.
func (c *Consist) Tick(dt float64) {
	if dt <= 0 {
		return
	}
	c.PropagateBrakePressure(dt)
	c.simTime += dt

	wired := c.wired()
	ctl := c.controls
	for i, car := range c.cars {
		car.SetLead(i == c.lead)
		car.SetEP(ctl.EPFraction, ctl.EPLive && wired[i])
		car.SetBrakeman(ctl.Brakeman)
		car.SetHolding(ctl.Holding && wired[i])
		car.SetBailOff(ctl.BailOff && wired[i] && car.IsLocomotive())
		car.Update(dt)
		c.observe(i, car)
	}
}

func (c *Consist) observe(i int, car *brake.System) {
	v := car.State().Valve
	if v == valve.Emergency && c.lastValve[i] != valve.Emergency {
		c.log.Debug("emergency application", "car", car.ID(), "simTime", c.simTime)
	}
	c.lastValve[i] = v

	locked := car.WheelSlideLockedOut()
	if locked && !c.lockedOut[i] {
		c.log.Debug("wheel slide protection locked out", "car", car.ID(), "simTime", c.simTime)
	}
	c.lockedOut[i] = locked

	for _, ev := range car.DrainEvents() {
		ev.SimTime = c.simTime
		c.events.Push(ev)
	}
}

// wired reports which cars share the lead's train wire: the run of cars
// joined by connected hoses that contains the lead.
func (c *Consist) wired() []bool {
	out := make([]bool, len(c.cars))
	if c.lead == NoLead {
		return out
	}
	out[c.lead] = true
	for i := c.lead; i > 0 && c.cars[i].Coupling().HoseConnected; i-- {
		out[i-1] = true
	}
	for i := c.lead + 1; i < len(c.cars) && c.cars[i].Coupling().HoseConnected; i++ {
		out[i] = true
	}
	return out
}

// RetardForce is the sum of every car's brake force in newtons.
func (c *Consist) RetardForce() float64 {
	var f float64
	for _, car := range c.cars {
		f += car.RetardForce()
	}
	return f
}

// BrakingCars counts the cars whose brakes are applied.
func (c *Consist) BrakingCars() int {
	n := 0
	for _, car := range c.cars {
		if car.IsBraking() {
			n++
		}
	}
	return n
}

// Status summarises every car in consist order.
func (c *Consist) Status() []brake.Status {
	out := make([]brake.Status, len(c.cars))
	for i, car := range c.cars {
		out[i] = car.Status()
	}
	return out
}
