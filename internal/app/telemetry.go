package app

import (
	"context"
	"log"
	"sync"
	"time"

	"studyhub-quiz-service/internal/domain"
)

// TelemetrySink delivers events to an analytics backend.
type TelemetrySink interface {
	Send(ctx context.Context, event domain.TelemetryEvent) error
}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Send(_ context.Context, event domain.TelemetryEvent) error {
	log.Printf("event tracked: %s %v", event.Name, event.Properties)
	return nil
}

// Telemetry queues events for a sink on a background worker. Track never blocks:
// when the queue is full the event is dropped. Sink failures are logged and swallowed.
// A nil *Telemetry is a valid no-op tracker.
type Telemetry struct {
	sink    TelemetrySink
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan domain.TelemetryEvent
	done   chan struct{}
}

func NewTelemetry(sink TelemetrySink, buffer int, timeout time.Duration) *Telemetry {
	if buffer <= 0 {
		buffer = 64
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	t := &Telemetry{
		sink:    sink,
		timeout: timeout,
		now:     time.Now,
		queue:   make(chan domain.TelemetryEvent, buffer),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// Track enqueues an event.
func (t *Telemetry) Track(name string, props map[string]any) {
	if t == nil {
		return
	}
	event := domain.TelemetryEvent{Name: name, Properties: props, At: t.now()}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- event:
	default:
		log.Printf("telemetry queue full, dropping %s", name)
	}
}

// Close flushes queued events and stops the worker.
func (t *Telemetry) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()
	<-t.done
}

func (t *Telemetry) run() {
	defer close(t.done)
	for event := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		if err := t.sink.Send(ctx, event); err != nil {
			log.Printf("telemetry send %s failed: %v", event.Name, err)
		}
		cancel()
	}
}
