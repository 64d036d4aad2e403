package train

import (
	"fmt"

	"github.com/OCAP2/brakesim/internal/brake"
)

// CarRecord is the saved brake of one car.
type CarRecord struct {
	ID     string       `json:"id"`
	Record brake.Record `json:"record"`
}

// Record is a save of the whole consist at one tick.
type Record struct {
	SimTime  float64     `json:"simTime"`
	Controls Controls    `json:"controls"`
	Cars     []CarRecord `json:"cars"`
}

// Save captures every car and the controls.
func (c *Consist) Save() Record {
	rec := Record{
		SimTime:  c.simTime,
		Controls: c.controls,
		Cars:     make([]CarRecord, len(c.cars)),
	}
	for i, car := range c.cars {
		rec.Cars[i] = CarRecord{ID: car.ID(), Record: car.Save()}
	}
	return rec
}

// Restore loads rec into the consist. Every car record is checked against
// its car before any car changes, so a failed restore leaves the consist
// as it was.
func (c *Consist) Restore(rec Record) error {
	if len(rec.Cars) != len(c.cars) {
		return fmt.Errorf("record has %d cars, consist has %d", len(rec.Cars), len(c.cars))
	}
	for i, car := range c.cars {
		cr := rec.Cars[i]
		if cr.ID != car.ID() {
			return fmt.Errorf("car %d: record is for %q, consist has %q", i, cr.ID, car.ID())
		}
		probe, err := brake.New(car.ID(), car.Params())
		if err != nil {
			return err
		}
		if err := probe.Restore(cr.Record); err != nil {
			return err
		}
	}
	for i, car := range c.cars {
		if err := car.Restore(rec.Cars[i].Record); err != nil {
			return err
		}
	}
	c.SetControls(rec.Controls)
	c.simTime = rec.SimTime
	c.events.Clear()
	for i, car := range c.cars {
		c.lastValve[i] = car.State().Valve
		c.lockedOut[i] = false
	}
	return nil
}
