package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func feed(m *Monitor, samples []float64, dt float64) []Kind {
	var out []Kind
	for _, p := range samples {
		if ev, ok := m.Observe(p, dt); ok {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func TestMonitor_OncePerDirectionChange(t *testing.T) {
	m := NewMonitor(Cylinder, 0.1)
	var samples []float64
	p := 0.0
	samples = append(samples, p)
	for i := 0; i < 30; i++ { // rising 1 psi per tick
		p++
		samples = append(samples, p)
	}
	for i := 0; i < 30; i++ { // holding
		samples = append(samples, p)
	}
	for i := 0; i < 30; i++ { // falling
		p -= 0.5
		samples = append(samples, p)
	}

	got := feed(m, samples, 0.1)
	assert.Equal(t, []Kind{CylinderIncrease, CylinderSteady, CylinderDecrease}, got)
}

func TestMonitor_NoEventsAtRest(t *testing.T) {
	m := NewMonitor(Pipe, 0.1)
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = 90 + 0.001*float64(i%2)
	}
	assert.Empty(t, feed(m, samples, 0.1))
}

func TestMonitor_PipeKinds(t *testing.T) {
	m := NewMonitor(Pipe, 0.1)
	got := feed(m, []float64{90, 80, 70, 60, 50, 40, 30}, 0.25)
	assert.Equal(t, []Kind{PipeDecrease}, got)
}

func TestMonitor_PrimeForgetsTrend(t *testing.T) {
	rising := []float64{0, 10, 20, 30}
	holding := []float64{30, 30, 30, 30}

	m := NewMonitor(Cylinder, 0.1)
	assert.Equal(t, []Kind{CylinderIncrease}, feed(m, rising, 0.5))
	assert.Equal(t, []Kind{CylinderSteady}, feed(m, holding, 0.5))

	m = NewMonitor(Cylinder, 0.1)
	feed(m, rising, 0.5)
	m.Prime(30)
	assert.Empty(t, feed(m, holding, 0.5))
}

func TestMonitor_ZeroDt(t *testing.T) {
	m := NewMonitor(Cylinder, 0.1)
	m.Observe(0, 0.1)
	_, ok := m.Observe(50, 0)
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "BrakePipePressureStoppedChanging", PipeSteady.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
	assert.Len(t, Kinds(), 6)
}
