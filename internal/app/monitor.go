package app

import (
	"sync"
	"time"
)

// Event types streamed to teacher dashboards.
const (
	EventRegistered      = "registered"
	EventRestorePending  = "restorePending"
	EventRestoreApproved = "restoreApproved"
	EventScore           = "score"
)

// Event is one dashboard update for a participation.
type Event struct {
	Type         string    `json:"type"`
	StudentID    string    `json:"studentId,omitempty"`
	Variant      string    `json:"variant,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	ApprovalCode string    `json:"approvalCode,omitempty"`
	Score        *int      `json:"score,omitempty"`
	At           time.Time `json:"at"`
}

// MonitorRepository abstracts how participation monitors are tracked
// (in-memory, Redis-marked, etc).
type MonitorRepository interface {
	GetOrCreate(participationID string) *Monitor
	Get(participationID string) (*Monitor, bool)
	DeleteIfEmpty(participationID string)
}

// Monitor fans registration and scoring events out to dashboard
// subscribers of one participation.
type Monitor struct {
	id          string
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewMonitor is exported for infrastructure layers that need to seed monitors.
func NewMonitor(participationID string) *Monitor {
	return &Monitor{
		id:          participationID,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Publish delivers an event to every subscriber. Slow consumers lose
// their oldest buffered event rather than blocking the publisher.
func (m *Monitor) Publish(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribe returns a channel of events. The caller must invoke the
// returned cancel function to avoid leaks.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// IsEmpty reports whether the monitor has no subscribers.
func (m *Monitor) IsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers) == 0
}
