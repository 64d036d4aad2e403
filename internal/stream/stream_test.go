package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/pkg/core"
	"github.com/OCAP2/brakesim/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// subscribe opens a stream and returns a function reading the next data
// line as an envelope.
func subscribe(t *testing.T, url, stream string) func() streaming.Envelope {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"?stream="+stream, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				select {
				case lines <- data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return func() streaming.Envelope {
		select {
		case data := <-lines:
			var env streaming.Envelope
			require.NoError(t, json.Unmarshal([]byte(data), &env))
			return env
		case <-time.After(2 * time.Second):
			t.Fatal("no message received")
			return streaming.Envelope{}
		}
	}
}

func TestPublishEvent(t *testing.T) {
	s := New(nil)
	ts := httptest.NewServer(s)
	defer ts.Close()
	defer s.Close(context.Background())

	next := subscribe(t, ts.URL, streaming.StreamEvents)
	require.NoError(t, s.PublishEvent(core.BrakeEvent{CarID: "W3", Kind: "TrainBrakePressureIncrease", Pressure: 22.5, SimTime: 7}))

	env := next()
	assert.Equal(t, streaming.TypeBrakeEvent, env.Type)
	assert.Equal(t, 7.0, env.SimTime)
	var p streaming.BrakeEventPayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, streaming.BrakeEventPayload{CarID: "W3", Kind: "TrainBrakePressureIncrease", Pressure: 22.5}, p)
}

func TestPublishStatus(t *testing.T) {
	s := New(nil)
	ts := httptest.NewServer(s)
	defer ts.Close()
	defer s.Close(context.Background())

	next := subscribe(t, ts.URL, streaming.StreamStatus)
	aux := 68.0
	require.NoError(t, s.PublishStatus(3, []brake.Status{
		{CarID: "W1", Kind: "air_single_pipe", BrakePipe: 70, Aux: &aux, Valve: "Release"},
	}))

	env := next()
	assert.Equal(t, streaming.TypeCarStatus, env.Type)
	var p streaming.CarStatusPayload
	require.NoError(t, env.Decode(&p))
	require.Len(t, p.Cars, 1)
	var car brake.Status
	require.NoError(t, json.Unmarshal(p.Cars[0], &car))
	assert.Equal(t, "W1", car.CarID)
	require.NotNil(t, car.Aux)
	assert.Equal(t, 68.0, *car.Aux)
	assert.Nil(t, car.VacuumRes)
}

func TestPublishSession_BothStreams(t *testing.T) {
	s := New(nil)
	ts := httptest.NewServer(s)
	defer ts.Close()
	defer s.Close(context.Background())

	events := subscribe(t, ts.URL, streaming.StreamEvents)
	status := subscribe(t, ts.URL, streaming.StreamStatus)
	require.NoError(t, s.PublishSession(streaming.TypeStartSession, core.Session{ID: "abc", Consist: "local"}))

	assert.Equal(t, streaming.TypeStartSession, events().Type)
	env := status()
	var p streaming.SessionPayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, "abc", p.ID)
}

func TestPublish_UnknownStream(t *testing.T) {
	s := New(nil)
	defer s.Close(context.Background())
	assert.ErrorIs(t, s.Publish("nope", streaming.Envelope{Type: "x"}), ErrDropped)
}

func TestStartAndClose(t *testing.T) {
	s := New(nil)
	assert.Empty(t, s.Addr())
	require.NoError(t, s.Start("127.0.0.1:0"))
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
}
