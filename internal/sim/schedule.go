package sim

import (
	"fmt"
	"slices"
	"strings"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/internal/overlay"
	"github.com/OCAP2/brakesim/internal/train"
)

// Schedule actions.
const (
	ActionSetPipe     = "setPipe"
	ActionAIPercent   = "aiPercent"
	ActionEmergency   = "emergency"
	ActionRelease     = "release"
	ActionEngineBrake = "engineBrake"
	ActionEPFraction  = "epFraction"
	ActionBrakeman    = "brakeman"
	ActionHandbrake   = "handbrake"
	ActionRetainer    = "retainer"
	ActionSkid        = "skid"
	ActionHose        = "hose"
	ActionAngleCock   = "angleCock"
	ActionBleedOff    = "bleedOff"
	ActionHolding     = "holding"
	ActionBailOff     = "bailOff"
)

// step is one validated schedule entry.
type step struct {
	at  float64
	raw config.ScheduleEntry
	// apply changes the consist. It runs on the simulation goroutine.
	apply func(c *train.Consist)
}

// compileSchedule validates every entry against the consist and orders
// them by time. Entries with equal times keep their configured order.
func compileSchedule(entries []config.ScheduleEntry, c *train.Consist) ([]step, error) {
	steps := make([]step, 0, len(entries))
	for i, e := range entries {
		fn, err := compileEntry(e, c)
		if err != nil {
			return nil, fmt.Errorf("schedule entry %d (%s at %gs): %w", i, e.Action, e.At, err)
		}
		steps = append(steps, step{at: e.At, raw: e, apply: fn})
	}
	slices.SortStableFunc(steps, func(a, b step) int {
		switch {
		case a.at < b.at:
			return -1
		case a.at > b.at:
			return 1
		}
		return 0
	})
	return steps, nil
}

func compileEntry(e config.ScheduleEntry, c *train.Consist) (func(*train.Consist), error) {
	if e.At < 0 {
		return nil, fmt.Errorf("negative time")
	}

	switch e.Action {
	case ActionSetPipe:
		return func(c *train.Consist) { c.SetEqualizingPressure(e.Value) }, nil
	case ActionAIPercent:
		return func(c *train.Consist) { c.AISetPercent(e.Value) }, nil
	case ActionEmergency:
		return func(c *train.Consist) { c.SetEmergency(e.On) }, nil
	case ActionRelease:
		return func(c *train.Consist) {
			c.SetEmergency(false)
			c.AISetPercent(0)
		}, nil
	case ActionEngineBrake:
		return func(c *train.Consist) { c.SetEngineBrake(e.Value) }, nil
	case ActionEPFraction:
		return func(c *train.Consist) { c.SetEP(e.Value, e.Value > 0) }, nil
	case ActionBrakeman:
		return func(c *train.Consist) { c.SetBrakeman(e.Value) }, nil
	case ActionHolding:
		return func(c *train.Consist) { c.SetHolding(e.On) }, nil
	case ActionBailOff:
		return func(c *train.Consist) { c.SetBailOff(e.On) }, nil
	}

	cars, err := targets(e.Car, c)
	if err != nil {
		return nil, err
	}
	each := func(fn func(*brake.System)) func(*train.Consist) {
		return func(*train.Consist) {
			for _, car := range cars {
				fn(car)
			}
		}
	}

	switch e.Action {
	case ActionHandbrake:
		return each(func(car *brake.System) { car.SetHandbrakePercent(e.Value) }), nil
	case ActionRetainer:
		r, err := overlay.ParseRetainer(strings.ToUpper(e.Setting))
		if err != nil {
			return nil, err
		}
		return each(func(car *brake.System) { car.SetRetainer(r) }), nil
	case ActionSkid:
		return each(func(car *brake.System) { car.SetSkid(e.On) }), nil
	case ActionHose:
		return each(func(car *brake.System) { car.SetFrontHoseConnected(e.On) }), nil
	case ActionAngleCock:
		var front bool
		switch strings.ToLower(e.Setting) {
		case "front", "a":
			front = true
		case "rear", "b":
		default:
			return nil, fmt.Errorf("angle cock must be front or rear, got %q", e.Setting)
		}
		return each(func(car *brake.System) { car.SetAngleCock(front, e.On) }), nil
	case ActionBleedOff:
		return each(func(car *brake.System) { car.SetBleedOff(e.On) }), nil
	}
	return nil, fmt.Errorf("unknown action %q", e.Action)
}

// targets resolves the car of a per-car action. An empty ID means every
// car.
func targets(id string, c *train.Consist) ([]*brake.System, error) {
	if id == "" {
		return c.Cars(), nil
	}
	_, car, ok := c.CarByID(id)
	if !ok {
		return nil, fmt.Errorf("unknown car %q", id)
	}
	return []*brake.System{car}, nil
}
