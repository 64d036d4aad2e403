// Package dispatcher fans simulation output (brake events, car samples,
// snapshots) out to the sinks subscribed to each topic.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/brakesim/internal/channel"
)

// Topics published by the run loop.
const (
	TopicSessionStart = "session.start"
	TopicSessionEnd   = "session.end"
	TopicBrakeEvent   = "brake.event"
	TopicCarStatus    = "car.status"
	TopicSnapshot     = "snapshot"
)

// ErrQueueFull is returned when a non-blocking buffered subscriber drops an event.
var ErrQueueFull = errors.New("queue full")

// Event is one item published on a topic.
type Event struct {
	Topic     string
	SimTime   float64
	Payload   any
	Timestamp time.Time
}

// HandlerFunc consumes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *options) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *options) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *options) {
		c.logged = true
	}
}

type subscriber struct {
	name string
	h    HandlerFunc
}

// Dispatcher routes events to the subscribers of their topic.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]subscriber
	buffers  map[string]channel.Channel[Event] // keyed by topic/name
	logger   Logger
	wg       sync.WaitGroup
	closed   bool

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
}

// New creates a Dispatcher. A nil meter uses the global OTel meter, which
// is a no-op unless a provider is installed.
func New(logger Logger, m metric.Meter) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string][]subscriber),
		buffers:  make(map[string]channel.Channel[Event]),
		logger:   logger,
	}
	if m == nil {
		m = meter()
	}

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events queued per subscriber"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for key, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(buf.Len()),
					metric.WithAttributes(attribute.String("subscriber", key)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register subscribes h, under name, to topic.
func (d *Dispatcher) Register(topic, name string, h HandlerFunc, opts ...Option) {
	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	key := topic + "/" + name
	handler := h

	if cfg.logged {
		handler = d.withLogging(key, handler)
	}
	if cfg.bufferSize > 0 {
		handler = d.withBuffer(key, cfg.bufferSize, cfg.blocking, handler)
	}

	d.mu.Lock()
	d.handlers[topic] = append(d.handlers[topic], subscriber{name: name, h: handler})
	d.mu.Unlock()
}

// Dispatch delivers e to every subscriber of its topic. A topic with no
// subscribers is not an error. Subscriber errors are joined.
func (d *Dispatcher) Dispatch(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	d.mu.RLock()
	subs := d.handlers[e.Topic]
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return fmt.Errorf("dispatcher closed")
	}

	var errs []error
	for _, s := range subs {
		if err := s.h(e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// HasHandler returns true if anything subscribes to topic.
func (d *Dispatcher) HasHandler(topic string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[topic]) > 0
}

// Close stops accepting events and waits for buffered subscribers to
// drain their queues. Call it after the last Dispatch.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		buf.Close()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) withBuffer(key string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := channel.New[Event](size)

	d.mu.Lock()
	d.buffers[key] = buffer
	d.mu.Unlock()

	attr := metric.WithAttributes(attribute.String("subscriber", key))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range buffer.Receive() {
			if err := h(e); err != nil {
				d.logger.Error("buffered handler failed", "subscriber", key, "error", err)
			}
			d.processed.Add(context.Background(), 1, attr)
		}
	}()

	if blocking {
		return func(e Event) error {
			buffer.Send(e)
			return nil
		}
	}

	return func(e Event) error {
		if buffer.TrySend(e) {
			return nil
		}
		d.dropped.Add(context.Background(), 1, attr)
		return fmt.Errorf("%w: %s", ErrQueueFull, key)
	}
}

func (d *Dispatcher) withLogging(key string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "subscriber", key, "simTime", e.SimTime)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "subscriber", key, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "subscriber", key, "duration", time.Since(start))
		}

		return err
	}
}
