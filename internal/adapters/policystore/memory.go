package policystore

import (
	"context"
	"sync"

	"github.com/mikey/image-mod-relay/internal/policy"
)

// MemoryStore keeps policy state for the life of the process only
type MemoryStore struct {
	mu    sync.Mutex
	state *policy.State
	saves int
}

var _ policy.Persister = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*policy.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state), nil
}

func (s *MemoryStore) Save(ctx context.Context, state *policy.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = cloneState(state)
	s.saves++
	return nil
}

// Saves returns how many times the state was saved
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneState(state *policy.State) *policy.State {
	if state == nil {
		return nil
	}
	return &policy.State{
		WhitelistGroups:   append([]string(nil), state.WhitelistGroups...),
		AutoRecallGroups:  append([]string(nil), state.AutoRecallGroups...),
		ViolationKeywords: append([]string(nil), state.ViolationKeywords...),
	}
}
