package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
)

type refreshEntry struct {
	session   model.RefreshSession
	expiresAt time.Time
}

type refreshTokenStore struct {
	mu      sync.Mutex
	entries map[string]refreshEntry
	now     func() time.Time
}

// NewRefreshTokenStore is used when no Redis address is configured.
func NewRefreshTokenStore() repository.RefreshTokenStore {
	return &refreshTokenStore{
		entries: make(map[string]refreshEntry),
		now:     time.Now,
	}
}

func (s *refreshTokenStore) Save(ctx context.Context, digest string, session *model.RefreshSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[digest] = refreshEntry{session: *session, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *refreshTokenStore) Consume(ctx context.Context, digest string) (*model.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[digest]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.entries, digest)
	if !s.now().Before(entry.expiresAt) {
		return nil, repository.ErrNotFound
	}
	session := entry.session
	return &session, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, digest)
	return nil
}
