package music

import (
	"context"
	"sync"
)

// MemorySettings keeps loop flags in process memory. It is the store used
// when redis is not configured.
type MemorySettings struct {
	mu    sync.RWMutex
	loops map[string]bool
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{loops: make(map[string]bool)}
}

func (s *MemorySettings) Loop(_ context.Context, guildID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loops[guildID], nil
}

func (s *MemorySettings) SetLoop(_ context.Context, guildID string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.loops[guildID] = true
	} else {
		delete(s.loops, guildID)
	}
	return nil
}

func (s *MemorySettings) Forget(_ context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loops, guildID)
	return nil
}
