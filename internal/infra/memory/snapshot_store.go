package memory

import (
	"context"
	"sync"

	"drivingschool-console/internal/domain"
)

// SnapshotStore keeps the last fetched collection per resource in process memory.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string][]domain.Record
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string][]domain.Record)}
}

func (s *SnapshotStore) Load(_ context.Context, resource string) ([]domain.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.snapshots[resource]
	if !ok {
		return nil, false, nil
	}
	out := make([]domain.Record, len(records))
	copy(out, records)
	return out, true, nil
}

func (s *SnapshotStore) Save(_ context.Context, resource string, records []domain.Record) error {
	out := make([]domain.Record, len(records))
	copy(out, records)
	s.mu.Lock()
	s.snapshots[resource] = out
	s.mu.Unlock()
	return nil
}
