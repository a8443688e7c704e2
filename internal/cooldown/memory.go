// Package cooldown implements domain.EscalationState backends.
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
)

var _ domain.EscalationState = (*MemoryState)(nil)

// MemoryState keeps the last escalation per source in process memory.
type MemoryState struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryState returns a state with no prior escalations.
func NewMemoryState() *MemoryState {
	return &MemoryState{last: make(map[string]time.Time)}
}

// TryAcquire implements domain.EscalationState.
func (s *MemoryState) TryAcquire(_ context.Context, sourceID string, now time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.last[sourceID]; ok && now.Sub(last) < window {
		return false, nil
	}
	s.last[sourceID] = now
	return true, nil
}

// Last returns the last escalation time for a source.
func (s *MemoryState) Last(sourceID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.last[sourceID]
	return t, ok
}
