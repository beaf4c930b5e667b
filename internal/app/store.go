package app

import (
	"context"
	"errors"
	"sync"

	"medprep-study-service/internal/domain"
)

// BlobStore abstracts where serialized records live (in-memory, Redis, Postgres).
// Writes replace the whole value; Load returns domain.ErrNotFound for unknown keys.
type BlobStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

const keyPrefix = "medprep:"

// UserKey is the identity record key of a user.
func UserKey(userID string) string { return keyPrefix + "user:" + userID }

// ProgressKey is the progress record key of a user.
func ProgressKey(userID string) string { return keyPrefix + "progress:" + userID }

// ProgressStore reads and writes progress records. Mutations of one user are
// serialized: each runs load → apply → persist under that user's lock, so
// two in-flight mutations never interleave and a failed apply or persist
// leaves the stored record untouched.
type ProgressStore struct {
	blobs BlobStore

	mu    sync.Mutex
	users map[string]*userEntry
}

type userEntry struct {
	write sync.Mutex

	subMu       sync.Mutex
	subscribers map[chan domain.ProgressRecord]struct{}
}

func NewProgressStore(blobs BlobStore) *ProgressStore {
	return &ProgressStore{blobs: blobs, users: make(map[string]*userEntry)}
}

func (s *ProgressStore) entry(userID string) *userEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.users[userID]; ok {
		return e
	}
	e := &userEntry{subscribers: make(map[chan domain.ProgressRecord]struct{})}
	s.users[userID] = e
	return e
}

// Get loads the current record. Unknown users yield domain.ErrUserNotFound.
func (s *ProgressStore) Get(ctx context.Context, userID string) (domain.ProgressRecord, error) {
	data, err := s.blobs.Load(ctx, ProgressKey(userID))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ProgressRecord{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	return domain.DecodeProgress(data)
}

// Create writes rec for a user that has no record yet. An existing record is
// returned untouched with created=false.
func (s *ProgressStore) Create(ctx context.Context, userID string, rec domain.ProgressRecord) (domain.ProgressRecord, bool, error) {
	e := s.entry(userID)
	e.write.Lock()
	defer e.write.Unlock()

	existing, err := s.Get(ctx, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.ProgressRecord{}, false, err
	}
	if err := s.save(ctx, userID, rec); err != nil {
		return domain.ProgressRecord{}, false, err
	}
	e.broadcast(rec)
	return rec, true, nil
}

// Update applies fn to the user's record and persists the result. When fn
// fails nothing is written and fn's error is returned.
func (s *ProgressStore) Update(ctx context.Context, userID string, fn func(*domain.ProgressRecord) error) (domain.ProgressRecord, error) {
	e := s.entry(userID)
	e.write.Lock()
	defer e.write.Unlock()

	rec, err := s.Get(ctx, userID)
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	if err := fn(&rec); err != nil {
		return domain.ProgressRecord{}, err
	}
	if err := s.save(ctx, userID, rec); err != nil {
		return domain.ProgressRecord{}, err
	}
	e.broadcast(rec)
	return rec, nil
}

func (s *ProgressStore) save(ctx context.Context, userID string, rec domain.ProgressRecord) error {
	data, err := domain.EncodeProgress(rec)
	if err != nil {
		return err
	}
	return s.blobs.Save(ctx, ProgressKey(userID), data)
}

// Subscribe returns a channel that first receives the user's current record
// and then the record after every successful write. Slow readers only see the
// latest record. The caller must invoke cancel to release the subscription.
func (s *ProgressStore) Subscribe(ctx context.Context, userID string) (<-chan domain.ProgressRecord, func(), error) {
	e := s.entry(userID)
	e.write.Lock()
	defer e.write.Unlock()

	initial, err := s.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.ProgressRecord, 1)
	ch <- initial

	e.subMu.Lock()
	e.subscribers[ch] = struct{}{}
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.subMu.Unlock()
	}
	return ch, cancel, nil
}

func (e *userEntry) broadcast(rec domain.ProgressRecord) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subscribers {
		update := rec.Clone()
		select {
		case ch <- update:
		default:
			// replace the stale update a slow reader has not consumed yet
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}
