package store

import (
	"context"
	"sync"
	"time"

	"github.com/sportscouncil/tournament-gateway/internal/auth"
)

// MemoryStore keeps records in a map. Intended for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	byUsername map[string]auth.CredentialRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUsername: map[string]auth.CredentialRecord{}}
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (*auth.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byUsername[username]
	if !ok {
		return nil, auth.ErrCredentialNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Create(ctx context.Context, rec *auth.CredentialRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[rec.Username]; exists {
		return auth.ErrCredentialExists
	}
	clone := *rec
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.byUsername[rec.Username] = clone
	return nil
}

func (s *MemoryStore) SetDisabled(ctx context.Context, username string, disabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byUsername[username]
	if !ok {
		return auth.ErrCredentialNotFound
	}
	rec.Disabled = disabled
	s.byUsername[username] = rec
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close(context.Context) error { return nil }
