package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"medprep-study-service/internal/app"

	"golang.org/x/sync/singleflight"
)

// CachedStore caches blobs of a slower backend with a TTL. Writes go to the
// backend first and then replace the cached copy. Every write bumps the key's
// version; a load that raced a write does not cache what it read.
type CachedStore struct {
	backend app.BlobStore
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu       sync.RWMutex
	cache    map[string]cachedBlob
	versions map[string]uint64
}

type cachedBlob struct {
	data      []byte
	expiresAt time.Time
}

func NewCachedStore(backend app.BlobStore, ttl time.Duration) *CachedStore {
	return &CachedStore{
		backend: backend,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:    make(map[string]cachedBlob),
		versions: make(map[string]uint64),
	}
}

func (s *CachedStore) Load(ctx context.Context, key string) ([]byte, error) {
	if data, ok := s.cached(key, s.clock()); ok {
		return data, nil
	}

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		now := s.clock()
		if data, ok := s.cached(key, now); ok {
			return data, nil
		}

		seen := s.version(key)
		data, err := s.backend.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		s.fill(key, data, now, seen)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), result.([]byte)...), nil
}

func (s *CachedStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.backend.Save(ctx, key, data); err != nil {
		s.forget(key)
		return err
	}
	s.replace(key, append([]byte(nil), data...), s.clock())
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, key string) error {
	err := s.backend.Delete(ctx, key)
	s.forget(key)
	return err
}

func (s *CachedStore) cached(key string, now time.Time) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false
	}
	return append([]byte(nil), entry.data...), true
}

func (s *CachedStore) version(key string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[key]
}

// fill caches data read from the backend unless a write to key happened
// since the read started.
func (s *CachedStore) fill(key string, data []byte, now time.Time, seen uint64) {
	if s.ttl <= 0 {
		return
	}
	ttl := s.ttlWithJitter()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[key] != seen {
		return
	}
	s.cache[key] = cachedBlob{data: data, expiresAt: now.Add(ttl)}
}

func (s *CachedStore) replace(key string, data []byte, now time.Time) {
	var ttl time.Duration
	if s.ttl > 0 {
		ttl = s.ttlWithJitter()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[key]++
	if ttl > 0 {
		s.cache[key] = cachedBlob{data: data, expiresAt: now.Add(ttl)}
	}
}

func (s *CachedStore) forget(key string) {
	s.mu.Lock()
	s.versions[key]++
	delete(s.cache, key)
	s.mu.Unlock()
}

func (s *CachedStore) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
