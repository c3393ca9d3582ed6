package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"contest-variant-service/internal/app"
)

// MonitorStore is a Redis-aware implementation of app.MonitorRepository.
// Notes:
//   - It keeps a local in-memory map of monitors to reuse the in-process
//     broadcast logic.
//   - Redis marks which participations currently have a live dashboard
//     (and could be extended to route cross-instance pub/sub).
type MonitorStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	monitors map[string]*app.Monitor
}

func NewMonitorStore(client *redis.Client, ttl time.Duration) *MonitorStore {
	return &MonitorStore{
		client:   client,
		ttl:      ttl,
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
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(participationID), "1", s.ttl).Err()
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
		_ = s.client.Del(context.Background(), s.key(participationID)).Err()
	}
}

func (s *MonitorStore) key(participationID string) string {
	return "participation:monitor:" + participationID
}
