package credstore

import (
	"context"
	"sync"

	"github.com/kilimopesa/internal/domain"
)

// MemoryStore keeps the credential for the life of the process
type MemoryStore struct {
	mu    sync.Mutex
	value string
	set   bool
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return "", domain.ErrCredentialNotFound
	}
	return s.value, nil
}

func (s *MemoryStore) Save(ctx context.Context, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.set = credential, true
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.set = "", false
	return nil
}

func (s *MemoryStore) Close() error { return nil }
