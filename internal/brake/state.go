package brake

import (
	"github.com/OCAP2/brakesim/internal/overlay"
	"github.com/OCAP2/brakesim/internal/pressure"
	"github.com/OCAP2/brakesim/internal/valve"
)

// Lines are the pressures that train propagation reads and writes.
type Lines struct {
	BrakePipe   float64           // line 1
	MainResPipe pressure.Optional // line 2, twin-pipe cars
	EngineBrake pressure.Optional // line 3, locomotives
	MainRes     pressure.Optional // locomotive main reservoir
}

// State is everything a car's brake owns.
type State struct {
	Lines

	Aux       pressure.Optional
	Emergency pressure.Optional
	Control   pressure.Optional
	VacuumRes pressure.Optional

	AutoCylinder float64
	Cylinder     float64
	Valve        valve.State

	HandbrakePercent float64
	Retainer         overlay.Retainer
	BleedOff         bool

	FrontHoseConnected bool
	AngleCockA         bool
	AngleCockB         bool
	AngleCockAAmount   float64
	AngleCockBAmount   float64

	// MaxPressure and FullServicePressure are the controller range given
	// to Initialize.
	MaxPressure         float64
	FullServicePressure float64

	CompressorOn     bool
	CylinderVolumeM3 float64
	ManualFraction   float64

	// DumpActive is set when the valve enters Emergency and cleared when
	// DumpTimer runs out, or with no timer once the pipe is below 1 psi.
	DumpActive bool
	DumpTimer  float64
	WheelSlide overlay.SlideState
}

// Inputs are per-tick signals from outside the car's own pneumatics.
type Inputs struct {
	IsLead     bool
	EPFraction float64
	EPLive     bool
	Brakeman   float64
	Skid       bool
	Holding    bool
	BailOff    bool
}

// Status is a read-only summary used by telemetry and the event stream.
type Status struct {
	CarID       string   `json:"carId"`
	Kind        string   `json:"kind"`
	BrakePipe   float64  `json:"brakePipe"`
	MainResPipe *float64 `json:"mainResPipe,omitempty"`
	EngineBrake *float64 `json:"engineBrake,omitempty"`
	MainRes     *float64 `json:"mainRes,omitempty"`
	Aux         *float64 `json:"aux,omitempty"`
	Emergency   *float64 `json:"emergency,omitempty"`
	Control     *float64 `json:"control,omitempty"`
	VacuumRes   *float64 `json:"vacuumRes,omitempty"`
	Cylinder    float64  `json:"cylinder"`
	Valve       string   `json:"valve"`
	Force       float64  `json:"forceN"`
	Handbrake   float64  `json:"handbrakePercent"`
	Braking     bool     `json:"braking"`

	// BrakePipeInHg is the pipe as a vacuum gauge reads it, vacuum kinds
	// only.
	BrakePipeInHg *float64 `json:"brakePipeInHg,omitempty"`
}

func optPtr(o pressure.Optional) *float64 {
	v, ok := o.Get()
	if !ok {
		return nil
	}
	return &v
}
