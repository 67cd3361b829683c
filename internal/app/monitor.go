package app

import (
	"sync"
	"sync/atomic"

	"studyhub-quiz-service/internal/domain"
)

// SignalSource delivers tamper signals to attached handlers until detached.
type SignalSource interface {
	Attach(handler func(domain.Signal)) (detach func())
}

// SignalBus is the in-process SignalSource a session owns. The transport emits
// raw signals into it.
type SignalBus struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(domain.Signal)
}

func NewSignalBus() *SignalBus {
	return &SignalBus{handlers: make(map[int]func(domain.Signal))}
}

func (b *SignalBus) Attach(handler func(domain.Signal)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Emit notifies every attached handler once and returns how many were notified.
// Handlers run outside the bus lock.
func (b *SignalBus) Emit(signal domain.Signal) int {
	b.mu.Lock()
	handlers := make([]func(domain.Signal), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(signal)
	}
	return len(handlers)
}

// Attached reports the number of attached handlers.
func (b *SignalBus) Attached() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

// MonitorTags identify the session in violation telemetry.
type MonitorTags struct {
	SessionID string
	UserID    string
	CourseID  string
}

// Monitor counts tamper signals for exactly one session lifecycle.
type Monitor struct {
	count       atomic.Int64
	telemetry   *Telemetry
	tags        MonitorTags
	onViolation func(count int)

	mu     sync.Mutex
	armed  bool
	used   bool
	detach func()
}

func NewMonitor(telemetry *Telemetry, tags MonitorTags, onViolation func(count int)) *Monitor {
	return &Monitor{telemetry: telemetry, tags: tags, onViolation: onViolation}
}

// Arm attaches the monitor to src. It returns false when the monitor is already
// armed or has been disarmed; a monitor is never attached twice.
func (m *Monitor) Arm(src SignalSource) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used {
		return false
	}
	m.used = true
	m.armed = true
	m.detach = src.Attach(m.handle)
	return true
}

// Disarm detaches from the source. Signals delivered afterwards are not counted.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	m.armed = false
	detach := m.detach
	m.detach = nil
	m.mu.Unlock()

	if detach != nil {
		detach()
	}
}

// Count returns the number of violations observed so far.
func (m *Monitor) Count() int {
	return int(m.count.Load())
}

func (m *Monitor) handle(signal domain.Signal) {
	m.mu.Lock()
	if !m.armed {
		m.mu.Unlock()
		return
	}
	n := m.count.Add(1)
	m.mu.Unlock()

	m.telemetry.Track("integrity_violation", map[string]any{
		"type":      string(signal.Kind),
		"userId":    m.tags.UserID,
		"courseId":  m.tags.CourseID,
		"sessionId": m.tags.SessionID,
	})
	if m.onViolation != nil {
		m.onViolation(int(n))
	}
}
