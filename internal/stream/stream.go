// Package stream publishes brake events and car states to Server-Sent
// Events clients while a run is in progress.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/pkg/core"
	"github.com/OCAP2/brakesim/pkg/streaming"
	"github.com/r3labs/sse/v2"
)

// ErrDropped is returned when a stream does not exist or its buffer
// cannot take another message.
var ErrDropped = errors.New("stream message dropped")

// Server is an SSE endpoint with one stream for events and one for status.
type Server struct {
	s      *sse.Server
	log    *slog.Logger
	mu     sync.Mutex
	http   *http.Server
	ln     net.Listener
	closed bool
}

// New creates the SSE server and its streams.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := sse.New()
	s.AutoReplay = false
	s.CreateStream(streaming.StreamEvents)
	s.CreateStream(streaming.StreamStatus)
	return &Server{s: s, log: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.s.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("stream listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/events", s)
	s.mu.Lock()
	s.ln = ln
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	srv := s.http
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Stream server stopped", "error", err)
		}
	}()
	s.log.Info("Streaming brake events", "address", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Publish sends an envelope to one stream without blocking.
func (s *Server) Publish(stream string, env streaming.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	if !s.s.TryPublish(stream, &sse.Event{Event: []byte(env.Type), Data: data}) {
		return fmt.Errorf("%w: %s", ErrDropped, stream)
	}
	return nil
}

// PublishEvent sends one brake event.
func (s *Server) PublishEvent(e core.BrakeEvent) error {
	env, err := streaming.NewEnvelope(streaming.TypeBrakeEvent, e.SimTime, streaming.BrakeEventPayload{
		CarID:    e.CarID,
		Kind:     e.Kind,
		Pressure: e.Pressure,
	})
	if err != nil {
		return err
	}
	return s.Publish(streaming.StreamEvents, env)
}

// PublishStatus sends the state of every car.
func (s *Server) PublishStatus(simTime float64, cars []brake.Status) error {
	payload := streaming.CarStatusPayload{Cars: make([]json.RawMessage, 0, len(cars))}
	for _, c := range cars {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal car %s: %w", c.CarID, err)
		}
		payload.Cars = append(payload.Cars, data)
	}
	env, err := streaming.NewEnvelope(streaming.TypeCarStatus, simTime, payload)
	if err != nil {
		return err
	}
	return s.Publish(streaming.StreamStatus, env)
}

// PublishSession announces a run starting (TypeStartSession) or ending
// (TypeEndSession) on both streams.
func (s *Server) PublishSession(typ string, sess core.Session) error {
	env, err := streaming.NewEnvelope(typ, 0, streaming.NewSessionPayload(sess))
	if err != nil {
		return err
	}
	return errors.Join(
		s.Publish(streaming.StreamEvents, env),
		s.Publish(streaming.StreamStatus, env),
	)
}

// Close stops the HTTP server, if started, and disconnects every client.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.http
	s.mu.Unlock()

	s.s.Close()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
