package app

import "sync"

// AppState is shared by every handler for the lifetime of the server.
type AppState struct {
	mu    sync.Mutex
	count uint32
}

// NewAppState returns a zeroed AppState
func NewAppState() *AppState {
	return &AppState{}
}

// Increment bumps the request counter and returns the new value
func (s *AppState) Increment() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return s.count
}

// Count returns the current counter value
func (s *AppState) Count() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
