package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&Snapshot{},
	&CarSnapshot{},
	&BrakeEvent{},
}

// Session is one simulation run of a consist.
type Session struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Consist     string    `json:"consist" gorm:"size:127"`
	StartedAt   time.Time `json:"startedAt" gorm:"index:idx_session_started_at"`
	EndedAt     time.Time `json:"endedAt"`
	TickSeconds float64   `json:"tickSeconds"`
	Lead        int       `json:"lead"`
	CarCount    int       `json:"carCount"`
	Family      string    `json:"family" gorm:"size:16"`

	Snapshots   []Snapshot
	BrakeEvents []BrakeEvent
}

func (*Session) TableName() string {
	return "sessions"
}

// Controls is the lead unit's commands at a snapshot, stored inline.
type Controls struct {
	EqualizingPressure float64 `json:"equalizingPressure"`
	Emergency          bool    `json:"emergency" gorm:"default:false"`
	EngineBrake        float64 `json:"engineBrake"`
	EPFraction         float64 `json:"epFraction"`
	EPLive             bool    `json:"epLive" gorm:"default:false"`
	Brakeman           float64 `json:"brakeman"`
	Holding            bool    `json:"holding" gorm:"default:false"`
	BailOff            bool    `json:"bailOff" gorm:"default:false"`
}

// Snapshot is the whole consist at one simulation time.
type Snapshot struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_snapshot_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	SimTime   float64   `json:"simTime" gorm:"index:idx_snapshot_sim_time"`
	TakenAt   time.Time `json:"takenAt"`
	Controls  Controls  `json:"controls" gorm:"embedded;embeddedPrefix:controls_"`

	Cars []CarSnapshot `json:"cars"`
}

func (*Snapshot) TableName() string {
	return "snapshots"
}

// CarSnapshot is one car of a snapshot. Position is the car's index in the
// consist. Fields holds the flat record as a JSON array of
// {name, type, value}.
type CarSnapshot struct {
	ID         uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SnapshotID uint           `json:"snapshotId" gorm:"index:idx_carsnapshot_snapshot_id"`
	Snapshot   Snapshot       `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SnapshotID;"`
	Position   int            `json:"position" gorm:"index:idx_carsnapshot_position"`
	CarID      string         `json:"carId" gorm:"size:64;index:idx_carsnapshot_car_id"`
	Kind       string         `json:"kind" gorm:"size:32"`
	Valve      string         `json:"valve" gorm:"size:16"`
	BrakePipe  float64        `json:"brakePipe"`
	Cylinder   float64        `json:"cylinder"`
	ForceN     float64        `json:"forceN"`
	Fields     datatypes.JSON `json:"fields"`
}

func (*CarSnapshot) TableName() string {
	return "car_snapshots"
}

// BrakeEvent is a pressure-change event of one car.
type BrakeEvent struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_brakeevent_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CarID     string    `json:"carId" gorm:"size:64"`
	Kind      string    `json:"kind" gorm:"size:64"`
	Pressure  float64   `json:"pressure"`
	SimTime   float64   `json:"simTime" gorm:"index:idx_brakeevent_sim_time"`
}

func (*BrakeEvent) TableName() string {
	return "brake_events"
}
