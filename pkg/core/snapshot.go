package core

import "time"

// Field is one primitive of a car's flat save.
type Field struct {
	Name  string
	Type  uint8
	Value float64
}

// CarSnapshot is the state of one car. The summary pressures duplicate
// values from Fields so they can be queried without decoding the record.
type CarSnapshot struct {
	Index     int
	CarID     string
	Kind      string
	Valve     string
	BrakePipe float64
	Cylinder  float64
	ForceN    float64
	Fields    []Field
}

// Snapshot is the whole consist at one simulation time.
type Snapshot struct {
	ID        uint
	SessionID string
	SimTime   float64
	TakenAt   time.Time
	Controls  Controls
	Cars      []CarSnapshot
}

// BrakeEvent is a pressure-change event of one car.
type BrakeEvent struct {
	SessionID string
	CarID     string
	Kind      string
	Pressure  float64
	SimTime   float64
}
