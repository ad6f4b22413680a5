package token

import (
	"context"
	"sync"

	"pix-gateway/internal/domain"
)

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token domain.Token
	set   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (domain.Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set, nil
}

func (s *MemoryStore) Save(_ context.Context, tok domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok
	s.set = true
	return nil
}

func (s *MemoryStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = domain.Token{}
	s.set = false
	return nil
}

var _ domain.TokenStore = (*MemoryStore)(nil)
