package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pix-gateway/internal/domain"
)

// RedisTokenStore implements domain.TokenStore through Redis so that every
// replica shares one provider token.
type RedisTokenStore struct {
	client *redis.Client
	key    string
}

// NewRedisTokenStore creates a store under key.
func NewRedisTokenStore(client *redis.Client, key string) *RedisTokenStore {
	return &RedisTokenStore{client: client, key: key}
}

// Load returns the stored token.
func (s *RedisTokenStore) Load(ctx context.Context) (domain.Token, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Token{}, false, nil
	}
	if err != nil {
		return domain.Token{}, false, fmt.Errorf("redis get: %w", err)
	}
	var tok domain.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return domain.Token{}, false, fmt.Errorf("decode token: %w", err)
	}
	return tok, true, nil
}

// Save stores the token until it expires.
func (s *RedisTokenStore) Save(ctx context.Context, tok domain.Token) error {
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return s.client.Set(ctx, s.key, raw, ttl).Err()
}

// Delete removes the token.
func (s *RedisTokenStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

var _ domain.TokenStore = (*RedisTokenStore)(nil)
