package redis

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"medprep-study-service/internal/app"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedStore caches blobs of a slower backend (Postgres) in Redis and falls
// back to the backend on cache miss. Cached copies live under cache:{key}.
// Writes go to the backend first; the cached copy is then replaced.
type CachedStore struct {
	client  *redis.Client
	backend app.BlobStore
	ttl     time.Duration
	sf      singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCachedStore(client *redis.Client, backend app.BlobStore, ttl time.Duration) *CachedStore {
	return &CachedStore{
		client:  client,
		backend: backend,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *CachedStore) Load(ctx context.Context, key string) ([]byte, error) {
	cacheKey := s.cacheKey(key)

	data, err := s.client.Get(ctx, cacheKey).Bytes()
	if err == nil {
		return data, nil
	}

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		data, err := s.client.Get(ctx, cacheKey).Bytes()
		if err == nil {
			return data, nil
		}

		data, err = s.backend.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		// SetNX: a Save that raced this read has already cached newer data.
		s.fill(ctx, cacheKey, data, false)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (s *CachedStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.backend.Save(ctx, key, data); err != nil {
		_ = s.client.Del(ctx, s.cacheKey(key)).Err()
		return err
	}
	s.fill(ctx, s.cacheKey(key), data, true)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.cacheKey(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return s.backend.Delete(ctx, key)
}

// fill is best effort: a failed cache write only costs a later miss.
func (s *CachedStore) fill(ctx context.Context, cacheKey string, data []byte, overwrite bool) {
	ttl := s.ttlWithJitter()
	if ttl <= 0 {
		return
	}
	if overwrite {
		_ = s.client.Set(ctx, cacheKey, data, ttl).Err()
		return
	}
	_ = s.client.SetNX(ctx, cacheKey, data, ttl).Err()
}

func (s *CachedStore) cacheKey(key string) string {
	return "cache:" + key
}

func (s *CachedStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
