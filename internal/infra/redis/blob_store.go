package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medprep-study-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// BlobStore keeps every record as a plain Redis string.
// A zero ttl stores keys without expiry.
type BlobStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBlobStore(client *redis.Client, ttl time.Duration) *BlobStore {
	return &BlobStore{client: client, ttl: ttl}
}

func (s *BlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *BlobStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
