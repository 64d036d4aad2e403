// Package v1 contains the v1 export format for a simulation session: the
// session header, every snapshot and every brake event in one JSON
// document.
package v1

// FormatVersion is written to every export and checked on decode.
const FormatVersion = 1

// Export is the root JSON structure for v1 format
type Export struct {
	Version   int        `json:"version"`
	Session   Session    `json:"session"`
	Snapshots []Snapshot `json:"snapshots"`
	Events    []Event    `json:"events"`
}

// Session is the run header.
type Session struct {
	ID          string  `json:"id"`
	Consist     string  `json:"consist"`
	StartedAt   string  `json:"startedAt"`
	EndedAt     string  `json:"endedAt,omitempty"`
	TickSeconds float64 `json:"tickSeconds"`
	Lead        int     `json:"lead"`
	CarCount    int     `json:"carCount"`
	Family      string  `json:"family"`
}

// Controls mirrors the lead unit's commands at a snapshot.
type Controls struct {
	EqualizingPressure float64 `json:"equalizingPressure"`
	Emergency          bool    `json:"emergency"`
	EngineBrake        float64 `json:"engineBrake"`
	EPFraction         float64 `json:"epFraction"`
	EPLive             bool    `json:"epLive"`
	Brakeman           float64 `json:"brakeman"`
	Holding            bool    `json:"holding"`
	BailOff            bool    `json:"bailOff"`
}

// Snapshot is the consist at one simulation time.
type Snapshot struct {
	ID       uint     `json:"id"`
	SimTime  float64  `json:"simTime"`
	TakenAt  string   `json:"takenAt"`
	Controls Controls `json:"controls"`
	Cars     []Car    `json:"cars"`
}

// Car is one car of a snapshot. Fields are [name, type, value] triples.
type Car struct {
	Index     int     `json:"index"`
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Valve     string  `json:"valve"`
	BrakePipe float64 `json:"brakePipe"`
	Cylinder  float64 `json:"cylinder"`
	ForceN    float64 `json:"forceN"`
	Fields    [][]any `json:"fields"`
}

// Event is [simTime, carId, kind, pressure].
type Event [4]any
