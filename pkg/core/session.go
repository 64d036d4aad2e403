// Package core holds the storage-agnostic records of a simulation run.
// Backends convert them to and from their own representation.
package core

import "time"

// Session is one simulation run of a consist.
type Session struct {
	ID          string
	Consist     string
	StartedAt   time.Time
	EndedAt     time.Time
	TickSeconds float64
	Lead        int
	CarCount    int
	Family      string
}

// Controls is the driver's side of the train at a snapshot.
type Controls struct {
	EqualizingPressure float64
	Emergency          bool
	EngineBrake        float64
	EPFraction         float64
	EPLive             bool
	Brakeman           float64
	Holding            bool
	BailOff            bool
}
