package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger, nil)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestDispatcher_FanOut(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got []string
	d.Register(TopicBrakeEvent, "a", func(e Event) error {
		got = append(got, "a:"+e.Payload.(string))
		return nil
	})
	d.Register(TopicBrakeEvent, "b", func(e Event) error {
		got = append(got, "b:"+e.Payload.(string))
		return nil
	})

	if err := d.Dispatch(Event{Topic: TopicBrakeEvent, Payload: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "a:x" || got[1] != "b:x" {
		t.Errorf("unexpected deliveries: %v", got)
	}
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	d, _ := newTestDispatcher(t)

	if err := d.Dispatch(Event{Topic: "nobody"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDispatcher_StampsTimestamp(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var seen time.Time
	d.Register(TopicSnapshot, "s", func(e Event) error {
		seen = e.Timestamp
		return nil
	})
	_ = d.Dispatch(Event{Topic: TopicSnapshot})
	if seen.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestDispatcher_JoinsErrors(t *testing.T) {
	d, _ := newTestDispatcher(t)

	boom := errors.New("boom")
	d.Register(TopicCarStatus, "bad", func(e Event) error { return boom })
	d.Register(TopicCarStatus, "good", func(e Event) error { return nil })

	err := d.Dispatch(Event{Topic: TopicCarStatus})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("expected subscriber name in %q", err)
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register(TopicBrakeEvent, "buffered", func(e Event) error {
		processed.Add(1)
		wg.Done()
		return nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		if err := d.Dispatch(Event{Topic: TopicBrakeEvent}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
	d.Close()
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(TopicBrakeEvent, "full", func(e Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(2))

	_ = d.Dispatch(Event{Topic: TopicBrakeEvent})
	<-started // first event is being processed
	_ = d.Dispatch(Event{Topic: TopicBrakeEvent})
	_ = d.Dispatch(Event{Topic: TopicBrakeEvent})

	err := d.Dispatch(Event{Topic: TopicBrakeEvent})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(block)
	d.Close()
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(TopicBrakeEvent, "blocking", func(e Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(1), Blocking())

	_ = d.Dispatch(Event{Topic: TopicBrakeEvent})
	<-started
	_ = d.Dispatch(Event{Topic: TopicBrakeEvent})

	done := make(chan struct{})
	go func() {
		_ = d.Dispatch(Event{Topic: TopicBrakeEvent})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
	d.Close()
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(TopicSnapshot, "logged", func(e Event) error { return nil }, Logged())
	_ = d.Dispatch(Event{Topic: TopicSnapshot, SimTime: 3})

	if n := logger.count("DEBUG"); n < 2 {
		t.Errorf("expected at least 2 debug messages, got %d", n)
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(TopicSnapshot, "failing", func(e Event) error {
		return fmt.Errorf("test error")
	}, Logged())

	_ = d.Dispatch(Event{Topic: TopicSnapshot})

	if logger.count("ERROR") == 0 {
		t.Error("expected error log message")
	}
}

func TestDispatcher_BufferedErrorIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(TopicCarStatus, "async", func(e Event) error {
		return fmt.Errorf("sink down")
	}, Buffered(4))

	_ = d.Dispatch(Event{Topic: TopicCarStatus})
	d.Close()

	if logger.count("ERROR") != 1 {
		t.Errorf("expected one error message, got %d", logger.count("ERROR"))
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(TopicBrakeEvent, "x", func(e Event) error { return nil })

	if !d.HasHandler(TopicBrakeEvent) {
		t.Error("expected handler to exist")
	}
	if d.HasHandler(TopicSnapshot) {
		t.Error("expected handler to not exist")
	}
}

func TestDispatcher_CloseRejectsEvents(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Close()
	d.Close()

	if err := d.Dispatch(Event{Topic: TopicBrakeEvent}); err == nil {
		t.Error("expected error after close")
	}
}
