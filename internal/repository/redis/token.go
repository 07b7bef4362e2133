package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
)

const keyPrefix = "registry:refresh:"

type refreshTokenStore struct {
	client *redis.Client
}

func NewRefreshTokenStore(client *redis.Client) repository.RefreshTokenStore {
	return &refreshTokenStore{client: client}
}

func (s *refreshTokenStore) Save(ctx context.Context, digest string, session *model.RefreshSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+digest, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh session: %w", err)
	}
	return nil
}

// Consume uses GETDEL so a token can be redeemed once.
func (s *refreshTokenStore) Consume(ctx context.Context, digest string) (*model.RefreshSession, error) {
	data, err := s.client.GetDel(ctx, keyPrefix+digest).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume refresh session: %w", err)
	}

	var session model.RefreshSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode refresh session: %w", err)
	}
	return &session, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, digest string) error {
	if err := s.client.Del(ctx, keyPrefix+digest).Err(); err != nil {
		return fmt.Errorf("failed to revoke refresh session: %w", err)
	}
	return nil
}
