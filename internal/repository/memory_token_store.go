package repository

import (
	"context"
	"sync"

	"github.com/noah-isme/sma-adp-portal/internal/models"
)

// MemoryTokenStore keeps the token pair in process memory. Sessions do not survive a restart.
type MemoryTokenStore struct {
	mu   sync.RWMutex
	pair models.TokenPair
}

// NewMemoryTokenStore constructs an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Load returns the stored pair, or an empty pair when nothing is stored.
func (s *MemoryTokenStore) Load(ctx context.Context) (models.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, nil
}

// Save replaces the stored pair.
func (s *MemoryTokenStore) Save(ctx context.Context, pair models.TokenPair) error {
	if !pair.Complete() {
		return ErrPartialTokenPair
	}
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()
	return nil
}

// Clear removes the stored pair.
func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.pair = models.TokenPair{}
	s.mu.Unlock()
	return nil
}
