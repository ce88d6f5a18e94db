package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-portal/internal/models"
)

// FileTokenStore persists the token pair as a single JSON object on disk, the agent's
// counterpart of the browser's durable storage.
type FileTokenStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileTokenStore constructs a file-backed store at path.
func NewFileTokenStore(path string, logger *zap.Logger) *FileTokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileTokenStore{path: path, logger: logger}
}

// Load reads the pair from disk. A missing file is an empty pair; a partial pair is removed
// and reported as empty.
func (s *FileTokenStore) Load(ctx context.Context) (models.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.TokenPair{}, nil
		}
		return models.TokenPair{}, fmt.Errorf("read token file %s: %w", s.path, err)
	}

	var pair models.TokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return models.TokenPair{}, fmt.Errorf("decode token file %s: %w", s.path, err)
	}
	if !pair.Complete() {
		if !pair.Empty() {
			s.logger.Warn("discarding partial token pair", zap.String("path", s.path))
		}
		if err := s.removeLocked(); err != nil {
			return models.TokenPair{}, err
		}
		return models.TokenPair{}, nil
	}
	return pair, nil
}

// Save writes the pair atomically with owner-only permissions.
func (s *FileTokenStore) Save(ctx context.Context, pair models.TokenPair) error {
	if !pair.Complete() {
		return ErrPartialTokenPair
	}
	payload, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode token pair: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir %s: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write token file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace token file %s: %w", s.path, err)
	}
	return nil
}

// Clear deletes the token file.
func (s *FileTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked()
}

func (s *FileTokenStore) removeLocked() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file %s: %w", s.path, err)
	}
	return nil
}
