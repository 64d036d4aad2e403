// Package sim runs a configured consist: it builds the cars, plays a
// schedule of operator actions at a fixed tick and publishes events,
// samples and snapshots through the dispatcher.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/cache"
	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/internal/dispatcher"
	"github.com/OCAP2/brakesim/internal/event"
	"github.com/OCAP2/brakesim/internal/logging"
	"github.com/OCAP2/brakesim/internal/parser"
	"github.com/OCAP2/brakesim/internal/session"
	"github.com/OCAP2/brakesim/internal/train"
	"github.com/OCAP2/brakesim/pkg/core"
)

const instrumentationName = "github.com/OCAP2/brakesim/internal/sim"

// Starting pressures when the settings leave them at zero. Air values are
// psi, vacuum values inHg of vacuum.
const (
	DefaultAirMaxPressure            = 90
	DefaultAirFullServicePressure    = 64
	DefaultVacuumMaxPressure         = 21
	DefaultVacuumFullServicePressure = 10
)

// timeEpsilon absorbs float drift when comparing accumulated tick times.
const timeEpsilon = 1e-9

// Dependencies holds all dependencies for the runner.
type Dependencies struct {
	LogManager     *logging.SlogManager
	SessionContext *session.Context
	Dispatcher     *dispatcher.Dispatcher
	Meter          metric.Meter
	// Status is called every StatusEvery of simulation time.
	Status func()
}

// Runner owns one consist for the length of a run. Ticks, SimTime and
// PendingEvents may be read from other goroutines; everything else runs
// on the goroutine that calls Run.
type Runner struct {
	deps    Dependencies
	cfg     config.SimConfig
	name    string
	consist *train.Consist
	steps   []step
	next    int

	maxPressure  float64
	fullService  float64
	initialized  bool
	nextSnapshot float64
	nextSample   float64
	nextStatus   float64
	snapshots    int
	snapshotAt   float64

	ticks   atomic.Uint64
	simTime atomic.Uint64

	tickCounter  metric.Int64Counter
	eventCounter metric.Int64Counter
}

// New builds the consist described by cc.
func New(deps Dependencies, cfg config.SimConfig, cc config.ConsistConfig) (*Runner, error) {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.SessionContext == nil {
		deps.SessionContext = session.NewContext()
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("runner needs a dispatcher")
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter(instrumentationName)
	}
	if cfg.TickSeconds <= 0 || math.IsNaN(cfg.TickSeconds) {
		return nil, fmt.Errorf("tick must be positive, got %g", cfg.TickSeconds)
	}

	log := deps.LogManager.Logger()
	params := cache.NewParamCache()
	cars, err := BuildCars(cc, parser.NewParser(log), params)
	if err != nil {
		return nil, err
	}
	lead := cc.Lead
	if lead < 0 {
		lead = train.NoLead
	}
	consist, err := train.New(cars, lead, train.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("consist %q: %w", cc.Name, err)
	}
	steps, err := compileSchedule(cc.Schedule, consist)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		deps:    deps,
		cfg:     cfg,
		name:    cc.Name,
		consist: consist,
		steps:   steps,
	}
	r.maxPressure, r.fullService = startPressures(cfg, consist.Family())

	r.tickCounter, err = deps.Meter.Int64Counter("brakesim.sim.ticks",
		metric.WithDescription("Simulation ticks advanced"))
	if err != nil {
		return nil, fmt.Errorf("failed to create tick counter: %w", err)
	}
	r.eventCounter, err = deps.Meter.Int64Counter("brakesim.sim.brake_events",
		metric.WithDescription("Brake events emitted by the consist"))
	if err != nil {
		return nil, fmt.Errorf("failed to create event counter: %w", err)
	}

	log.Info("Consist built",
		"consist", cc.Name,
		"cars", consist.Len(),
		"family", consist.Family().String(),
		"templatesParsed", params.Parses(),
		"scheduled", len(steps))
	return r, nil
}

func startPressures(cfg config.SimConfig, f brake.Family) (maxP, fullP float64) {
	maxP, fullP = DefaultAirMaxPressure, DefaultAirFullServicePressure
	if f == brake.FamilyVacuum {
		maxP, fullP = DefaultVacuumMaxPressure, DefaultVacuumFullServicePressure
	}
	if cfg.MaxPressure > 0 {
		maxP = cfg.MaxPressure
	}
	if cfg.FullServicePressure > 0 {
		fullP = cfg.FullServicePressure
	}
	return maxP, min(fullP, maxP)
}

// Consist returns the train. It must not be touched while Run is active.
func (r *Runner) Consist() *train.Consist { return r.consist }

// Ticks returns the number of ticks advanced so far.
func (r *Runner) Ticks() uint64 { return r.ticks.Load() }

// SimTime returns the simulation clock in seconds.
func (r *Runner) SimTime() float64 { return math.Float64frombits(r.simTime.Load()) }

// PendingEvents returns the events emitted but not yet dispatched.
func (r *Runner) PendingEvents() int { return r.consist.Events().Len() }

// Initialize brings the consist to its starting state: at rest, or running
// with charged pipes when the settings ask for a moving start.
func (r *Runner) Initialize() {
	if r.cfg.StartMoving {
		r.consist.InitializeMoving(r.maxPressure, r.fullService)
	} else {
		r.consist.Initialize(r.cfg.HandbrakeOn, r.maxPressure, r.fullService, r.cfg.ImmediateRelease)
	}
	r.resetClock()
	r.initialized = true
}

// Restore loads every car from a stored snapshot. Schedule entries at or
// before the snapshot's time are skipped. Nothing changes when any car
// record does not match its car.
func (r *Runner) Restore(s core.Snapshot) error {
	if !r.initialized {
		r.Initialize()
	}
	rec, err := ToRecord(s)
	if err != nil {
		return err
	}
	if err := r.consist.Restore(rec); err != nil {
		return fmt.Errorf("failed to restore snapshot %d: %w", s.ID, err)
	}
	r.resetClock()
	r.deps.LogManager.Logger().Info("Snapshot restored",
		"snapshot", s.ID,
		"fromSession", s.SessionID,
		"simTime", s.SimTime)
	return nil
}

func (r *Runner) resetClock() {
	now := r.consist.SimTime()
	r.simTime.Store(math.Float64bits(now))
	r.next = 0
	for r.next < len(r.steps) && r.steps[r.next].at <= now+timeEpsilon && now > 0 {
		r.next++
	}
	r.nextSnapshot = now
	r.nextSample = now
	r.nextStatus = now
	r.snapshots = 0
}

// Run opens a session and advances the consist for the configured
// duration, or until ctx is cancelled. The session is closed with a final
// snapshot in both cases; cancellation is reported as ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	if !r.initialized {
		r.Initialize()
	}
	log := r.deps.LogManager.Logger()

	s := r.deps.SessionContext.Start(r.name, r.cfg.TickSeconds,
		r.consist.LeadIndex(), r.consist.Len(), r.consist.Family().String())
	r.dispatch(dispatcher.TopicSessionStart, s)
	log.Info("Session started", "session", s.ID, "consist", s.Consist, "simTime", r.SimTime())

	end := r.consist.SimTime() + r.cfg.DurationSeconds
	var pace <-chan time.Time
	if r.cfg.RealTime {
		t := time.NewTicker(time.Duration(r.cfg.TickSeconds * float64(time.Second)))
		defer t.Stop()
		pace = t.C
	}

	var runErr error
	r.publish(true)
loop:
	for r.consist.SimTime() < end-timeEpsilon {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		default:
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				runErr = ctx.Err()
				break loop
			case <-pace:
			}
		}
		r.Step()
	}

	if r.snapshots == 0 || r.snapshotAt != r.consist.SimTime() {
		r.snapshot()
	}
	r.deps.SessionContext.End()
	r.dispatch(dispatcher.TopicSessionEnd, r.deps.SessionContext.Get())
	log.Info("Session ended",
		"session", s.ID,
		"ticks", r.Ticks(),
		"simTime", r.SimTime(),
		"retardForceN", r.consist.RetardForce(),
		"braking", r.consist.BrakingCars())
	return runErr
}

// Step applies the schedule entries that are due, advances one tick and
// publishes what the tick produced.
func (r *Runner) Step() {
	now := r.consist.SimTime()
	for r.next < len(r.steps) && r.steps[r.next].at <= now+timeEpsilon {
		st := r.steps[r.next]
		st.apply(r.consist)
		r.deps.LogManager.Logger().Debug("Schedule action",
			"action", st.raw.Action,
			"car", st.raw.Car,
			"at", st.at,
			"simTime", now)
		r.next++
	}

	r.consist.Tick(r.cfg.TickSeconds)
	r.ticks.Add(1)
	r.simTime.Store(math.Float64bits(r.consist.SimTime()))
	r.tickCounter.Add(context.Background(), 1)

	r.drainEvents()
	r.publish(false)
}

func (r *Runner) drainEvents() {
	events := r.consist.Events().Drain()
	if len(events) == 0 {
		return
	}
	r.eventCounter.Add(context.Background(), int64(len(events)))
	id := r.deps.SessionContext.ID()
	for _, ev := range events {
		r.dispatch(dispatcher.TopicBrakeEvent, toBrakeEvent(id, ev))
	}
}

func toBrakeEvent(sessionID string, ev event.Event) core.BrakeEvent {
	return core.BrakeEvent{
		SessionID: sessionID,
		CarID:     ev.CarID,
		Kind:      ev.Kind.String(),
		Pressure:  ev.Pressure,
		SimTime:   ev.SimTime,
	}
}

// publish emits the interval outputs that are due. force emits all of
// them regardless of the clock.
func (r *Runner) publish(force bool) {
	now := r.consist.SimTime()
	if due(&r.nextSample, r.cfg.TelemetryEvery, now, force) {
		r.dispatch(dispatcher.TopicCarStatus, r.consist.Status())
	}
	if due(&r.nextSnapshot, r.cfg.SnapshotEvery, now, force) {
		r.snapshot()
	}
	if due(&r.nextStatus, r.cfg.StatusEvery, now, force) && r.deps.Status != nil {
		r.deps.Status()
	}
}

// due reports whether an output scheduled at *next is due at now and moves
// *next past now. A non-positive interval is never due.
func due(next *float64, every time.Duration, now float64, force bool) bool {
	if every <= 0 {
		return false
	}
	if !force && now+timeEpsilon < *next {
		return false
	}
	step := every.Seconds()
	for *next <= now+timeEpsilon {
		*next += step
	}
	return true
}

func (r *Runner) snapshot() {
	r.snapshots++
	r.snapshotAt = r.consist.SimTime()
	snap := ToSnapshot(r.deps.SessionContext.ID(), r.consist.Save(), r.consist.Status(), time.Now().UTC())
	r.dispatch(dispatcher.TopicSnapshot, &snap)
}

func (r *Runner) dispatch(topic string, payload any) {
	err := r.deps.Dispatcher.Dispatch(dispatcher.Event{
		Topic:   topic,
		SimTime: r.consist.SimTime(),
		Payload: payload,
	})
	if err != nil {
		r.deps.LogManager.Logger().Error("Dispatch failed", "topic", topic, "error", err)
	}
}
