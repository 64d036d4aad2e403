// Package event turns pressure samples into debounced change notifications
// for sound and animation consumers.
package event

import (
	"fmt"
	"math"
)

// Kind names a pressure change.
type Kind int

const (
	CylinderIncrease Kind = iota
	CylinderDecrease
	CylinderSteady
	PipeIncrease
	PipeDecrease
	PipeSteady
)

var kindNames = [...]string{
	CylinderIncrease: "TrainBrakePressureIncrease",
	CylinderDecrease: "TrainBrakePressureDecrease",
	CylinderSteady:   "TrainBrakePressureStoppedChanging",
	PipeIncrease:     "BrakePipePressureIncrease",
	PipeDecrease:     "BrakePipePressureDecrease",
	PipeSteady:       "BrakePipePressureStoppedChanging",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds lists every kind, in declaration order.
func Kinds() []Kind {
	return []Kind{CylinderIncrease, CylinderDecrease, CylinderSteady, PipeIncrease, PipeDecrease, PipeSteady}
}

// Event is one notification. CarID and SimTime are filled in by the consist.
type Event struct {
	Kind     Kind
	CarID    string
	Pressure float64
	SimTime  float64
}

// Quantity selects which pressure a Monitor watches.
type Quantity int

const (
	Cylinder Quantity = iota
	Pipe
)

// Window is the sampling period of a Monitor, in seconds.
const Window = 0.5

// Monitor samples a pressure every Window seconds and reports a change of
// direction once.
type Monitor struct {
	quantity  Quantity
	threshold float64

	elapsed float64
	last    float64
	primed  bool
	trend   int
}

// NewMonitor watches quantity; differences within threshold psi over one
// window count as steady.
func NewMonitor(q Quantity, threshold float64) *Monitor {
	return &Monitor{quantity: q, threshold: threshold}
}

// Prime restarts the monitor at pressure p with no trend, e.g. after the
// car's state was replaced.
func (m *Monitor) Prime(p float64) {
	m.elapsed, m.last, m.primed, m.trend = 0, p, true, 0
}

// Observe feeds the pressure after a tick of dt seconds.
func (m *Monitor) Observe(p, dt float64) (Event, bool) {
	if !m.primed {
		m.last, m.primed = p, true
		return Event{}, false
	}
	if dt <= 0 {
		return Event{}, false
	}
	m.elapsed += dt
	if m.elapsed < Window {
		return Event{}, false
	}
	m.elapsed = math.Mod(m.elapsed, Window)

	delta := p - m.last
	m.last = p
	trend := 0
	switch {
	case delta > m.threshold:
		trend = 1
	case delta < -m.threshold:
		trend = -1
	}
	if trend == m.trend {
		return Event{}, false
	}
	m.trend = trend
	return Event{Kind: m.kind(trend), Pressure: p}, true
}

func (m *Monitor) kind(trend int) Kind {
	base := CylinderIncrease
	if m.quantity == Pipe {
		base = PipeIncrease
	}
	switch trend {
	case 1:
		return base
	case -1:
		return base + 1
	default:
		return base + 2
	}
}
