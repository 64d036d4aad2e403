// Package streaming defines the messages published on the live
// Server-Sent Events stream of a simulation run.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/OCAP2/brakesim/pkg/core"
)

// Stream IDs. Clients select one with the "stream" query parameter.
const (
	StreamEvents = "events"
	StreamStatus = "status"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeBrakeEvent   = "brake_event"
	TypeCarStatus    = "car_status"
)

// Envelope wraps all messages sent over the stream.
type Envelope struct {
	Type    string          `json:"type"`
	SimTime float64         `json:"simTime"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ string, simTime float64, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, SimTime: simTime, Payload: data}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// SessionPayload announces the start or end of a run.
type SessionPayload struct {
	ID          string    `json:"id"`
	Consist     string    `json:"consist"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt,omitzero"`
	TickSeconds float64   `json:"tickSeconds"`
	Lead        int       `json:"lead"`
	CarCount    int       `json:"carCount"`
	Family      string    `json:"family"`
}

// NewSessionPayload converts a core.Session.
func NewSessionPayload(s core.Session) SessionPayload {
	return SessionPayload(s)
}

// BrakeEventPayload is one pressure-change event: the cue an audio or
// animation client plays.
type BrakeEventPayload struct {
	CarID    string  `json:"carId"`
	Kind     string  `json:"kind"`
	Pressure float64 `json:"pressure"`
}

// CarStatusPayload is the per-car state of the whole consist. Each entry
// is the car's status object as produced by the simulator.
type CarStatusPayload struct {
	Cars []json.RawMessage `json:"cars"`
}
