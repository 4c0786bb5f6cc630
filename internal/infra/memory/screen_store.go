package memory

import (
	"sync"

	"drivingschool-console/internal/app"
)

// ScreenStore is an in-memory implementation of app.ScreenRepository.
type ScreenStore struct {
	mu      sync.RWMutex
	screens map[string]*app.Controller
}

func NewScreenStore() *ScreenStore {
	return &ScreenStore{
		screens: make(map[string]*app.Controller),
	}
}

func (s *ScreenStore) GetOrCreate(key string, create func() *app.Controller) (*app.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if screen, ok := s.screens[key]; ok {
		return screen, false
	}
	screen := create()
	s.screens[key] = screen
	return screen, true
}

func (s *ScreenStore) Get(key string) (*app.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	screen, ok := s.screens[key]
	return screen, ok
}

func (s *ScreenStore) DeleteIfIdle(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	screen, ok := s.screens[key]
	if !ok {
		return
	}
	if screen.Idle() {
		delete(s.screens, key)
	}
}
