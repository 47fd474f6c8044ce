package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

const (
	gatewayTokenKey = "payment:gateway_token"

	// refreshGrace keeps an expired token around so its refresh token can
	// still be used.
	refreshGrace = time.Hour
)

var (
	_ TokenStore = (*MemoryTokenStore)(nil)
	_ TokenStore = (*RedisTokenStore)(nil)
)

// MemoryTokenStore keeps the gateway token in process memory. It is only
// correct for a single service instance.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token *models.AuthToken
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get(_ context.Context) (*models.AuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, nil
	}
	t := *s.token
	return &t, nil
}

func (s *MemoryTokenStore) Set(_ context.Context, token *models.AuthToken) error {
	t := *token
	s.mu.Lock()
	s.token = &t
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context) error {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
	return nil
}

// RedisTokenStore shares the gateway token between instances. The key
// outlives the token by refreshGrace.
type RedisTokenStore struct {
	client redis.UniversalClient
	key    string
	now    func() time.Time
}

func NewRedisTokenStore(client redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{client: client, key: gatewayTokenKey, now: time.Now}
}

func (s *RedisTokenStore) Get(ctx context.Context) (*models.AuthToken, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var token models.AuthToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *RedisTokenStore) Set(ctx context.Context, token *models.AuthToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	ttl := token.ExpiresAt.Sub(s.now()) + refreshGrace
	if ttl <= 0 {
		return s.Delete(ctx)
	}
	return s.client.Set(ctx, s.key, data, ttl).Err()
}

func (s *RedisTokenStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
