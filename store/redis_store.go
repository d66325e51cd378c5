package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-lstech-balance/internal/config"
	ierrors "github.com/jrsteele09/go-lstech-balance/internal/errors"
	"github.com/jrsteele09/go-lstech-balance/session"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session state as JSON strings under prefix+account.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedisStore connects with the configured address and checks the server answers.
func OpenRedisStore(ctx context.Context, cfg config.StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store.OpenRedisStore Ping %s: %w", cfg.GetRedisAddr(), err)
	}
	return NewRedisStore(client, cfg.GetStoreKeyPrefix()), nil
}

func (s *RedisStore) key(account string) string {
	return s.prefix + account
}

func (s *RedisStore) Load(ctx context.Context, account string) (session.PersistedState, error) {
	b, err := s.client.Get(ctx, s.key(account)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.PersistedState{}, ierrors.ErrNotFound
	}
	if err != nil {
		return session.PersistedState{}, fmt.Errorf("store.RedisStore.Load: %w", err)
	}

	var st session.PersistedState
	if err := json.Unmarshal(b, &st); err != nil {
		return session.PersistedState{}, fmt.Errorf("store.RedisStore.Load Unmarshal: %w", err)
	}
	return st, nil
}

func (s *RedisStore) Save(ctx context.Context, account string, state session.PersistedState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store.RedisStore.Save Marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(account), b, 0).Err(); err != nil {
		return fmt.Errorf("store.RedisStore.Save: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, account string) error {
	n, err := s.client.Del(ctx, s.key(account)).Result()
	if err != nil {
		return fmt.Errorf("store.RedisStore.Delete: %w", err)
	}
	if n == 0 {
		return ierrors.ErrNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
