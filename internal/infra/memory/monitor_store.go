package memory

import (
	"sync"

	"contest-variant-service/internal/app"
)

// MonitorStore is an in-memory implementation of app.MonitorRepository.
type MonitorStore struct {
	mu       sync.RWMutex
	monitors map[string]*app.Monitor
}

func NewMonitorStore() *MonitorStore {
	return &MonitorStore{
		monitors: make(map[string]*app.Monitor),
	}
}

func (s *MonitorStore) GetOrCreate(participationID string) *app.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if monitor, ok := s.monitors[participationID]; ok {
		return monitor
	}
	monitor := app.NewMonitor(participationID)
	s.monitors[participationID] = monitor
	return monitor
}

func (s *MonitorStore) Get(participationID string) (*app.Monitor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	monitor, ok := s.monitors[participationID]
	return monitor, ok
}

func (s *MonitorStore) DeleteIfEmpty(participationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	monitor, ok := s.monitors[participationID]
	if !ok {
		return
	}
	if monitor.IsEmpty() {
		delete(s.monitors, participationID)
	}
}
