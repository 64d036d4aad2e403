package valve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "Emergency", Emergency.String())
	assert.Equal(t, "State(9)", State(9).String())

	st, err := ParseState("Lap")
	require.NoError(t, err)
	assert.Equal(t, Lap, st)

	_, err = ParseState("Bogus")
	assert.Error(t, err)
}

func TestParseType(t *testing.T) {
	typ, ok := ParseType("Distributing_Valve")
	assert.True(t, ok)
	assert.Equal(t, Distributor, typ)

	typ, ok = ParseType("whatever")
	assert.False(t, ok)
	assert.Equal(t, TripleValve, typ)
}

func TestTripleValve_ApplyThenLap(t *testing.T) {
	th := DefaultTripleValve
	in := Inputs{State: Release, BrakePipe: 50, Aux: 64}
	assert.Equal(t, Apply, EvaluateTripleValve(in, th))

	in.State = Apply
	in.Aux = 50
	assert.Equal(t, Lap, EvaluateTripleValve(in, th))
}

func TestTripleValve_InitialThresholdFromRelease(t *testing.T) {
	th := AirThresholds{Sensitivity: 1, InitialApplication: 3}
	in := Inputs{State: Release, BrakePipe: 62, Aux: 64}
	assert.Equal(t, Release, EvaluateTripleValve(in, th))

	in.BrakePipe = 60.5
	assert.Equal(t, Apply, EvaluateTripleValve(in, th))
}

func TestTripleValve_HysteresisBand(t *testing.T) {
	th := DefaultTripleValve
	state := Apply
	// Pipe oscillates inside the band around aux: never releases.
	for i, bp := range []float64{59.5, 61.2, 59.8, 61.4, 60.0, 60.9} {
		state = EvaluateTripleValve(Inputs{State: state, BrakePipe: bp, Aux: 60}, th)
		assert.NotEqual(t, Release, state, "step %d", i)
	}
	state = EvaluateTripleValve(Inputs{State: state, BrakePipe: 61.6, Aux: 60}, th)
	assert.Equal(t, Release, state)
}

func TestTripleValve_Emergency(t *testing.T) {
	th := DefaultTripleValve
	th.EmergencyRate = 15
	in := Inputs{State: Release, BrakePipe: 80, Aux: 90, PipeRate: -40}
	assert.Equal(t, Emergency, EvaluateTripleValve(in, th))

	// Stays in emergency while the pipe is below aux.
	in = Inputs{State: Emergency, BrakePipe: 10, Aux: 30}
	assert.Equal(t, Emergency, EvaluateTripleValve(in, th))

	in.BrakePipe = 35
	assert.Equal(t, Release, EvaluateTripleValve(in, th))
}

func TestTripleValve_ZeroRateDisablesEmergency(t *testing.T) {
	in := Inputs{State: Release, BrakePipe: 0, Aux: 90, PipeRate: -1000}
	assert.Equal(t, Apply, EvaluateTripleValve(in, DefaultTripleValve))
}

func TestTripleValve_HoldingAndBailOff(t *testing.T) {
	in := Inputs{State: Release, BrakePipe: 50, Aux: 64, Holding: true}
	assert.Equal(t, Lap, EvaluateTripleValve(in, DefaultTripleValve))

	in = Inputs{State: Lap, BrakePipe: 50, Aux: 64, BailOff: true}
	assert.Equal(t, Lap, EvaluateTripleValve(in, DefaultTripleValve))
}

func TestDistributor_GraduatedRelease(t *testing.T) {
	th := DefaultDistributor
	in := Inputs{State: Release, BrakePipe: 80, Control: 90, Aux: 90}
	assert.Equal(t, Apply, EvaluateDistributor(in, th), "10 psi reduction")

	in.State = Apply
	in.Cylinder = 25
	assert.Equal(t, Lap, EvaluateDistributor(in, th))

	// Partial recharge lowers the target below the cylinder: graduated release.
	in.State = Lap
	in.BrakePipe = 86
	assert.Equal(t, Release, EvaluateDistributor(in, th))

	// Below the initial application threshold the distributor fully releases.
	in.BrakePipe = 89
	in.Cylinder = 0
	assert.Equal(t, Release, EvaluateDistributor(in, th))
}

func TestDistributor_HysteresisBand(t *testing.T) {
	th := DefaultDistributor
	state := Lap
	for _, cyl := range []float64{23, 27, 24, 26.5} {
		// target is (90-80)*2.5 = 25, band is 3.5
		state = EvaluateDistributor(Inputs{State: state, BrakePipe: 80, Control: 90, Cylinder: cyl}, th)
		assert.Equal(t, Lap, state)
	}
}

func TestVacuum_ApplyReleaseLap(t *testing.T) {
	th := DefaultVacuum
	in := Inputs{State: Release, BrakePipe: 8, Cylinder: 4.5}
	assert.Equal(t, Apply, EvaluateVacuum(in, th))

	in = Inputs{State: Apply, BrakePipe: 8, Cylinder: 8}
	assert.Equal(t, Lap, EvaluateVacuum(in, th))

	in = Inputs{State: Lap, BrakePipe: 4.5, Cylinder: 8}
	assert.Equal(t, Release, EvaluateVacuum(in, th))

	in = Inputs{State: Lap, BrakePipe: 8.03, Cylinder: 8}
	assert.Equal(t, Lap, EvaluateVacuum(in, th))
}

func TestRateTracker(t *testing.T) {
	var r RateTracker
	assert.Equal(t, 0.0, r.Observe(90, 0.1))
	for i := 0; i < 50; i++ {
		r.Observe(90-float64(i+1)*2, 0.1)
	}
	assert.InDelta(t, -20, r.Rate(), 0.5)

	before := r.Rate()
	assert.Equal(t, before, r.Observe(0, 0))

	r.Reset()
	assert.Equal(t, 0.0, r.Rate())
}
