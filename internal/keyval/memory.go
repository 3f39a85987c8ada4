package keyval

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests instead of redis.
// TTLs are honored lazily: an expired entry is dropped on next access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// Now is the clock for TTL checks, replaceable in tests.
	// Defaults to time.Now.
	Now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		Now:     time.Now,
	}
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.get(key); ok {
		return false, nil
	}

	s.set(key, value, ttl)
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.get(key)
	if !ok {
		return "", ErrKeyNotFound
	}
	return entry.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.get(key)
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.incr(key, n)
}

func (s *MemoryStore) DecrBy(_ context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.incr(key, -n)
}

// TTL returns the remaining lifetime of the key. Test helper, not part
// of the Store interface.
func (s *MemoryStore) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.get(key)
	if !ok || entry.expiresAt.IsZero() {
		return 0, false
	}
	return entry.expiresAt.Sub(s.Now()), true
}

// get returns a live entry. Caller must hold s.mu.
func (s *MemoryStore) get(key string) (memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return entry, false
	}

	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.Now()) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}

	return entry, true
}

// set stores the entry. Caller must hold s.mu.
func (s *MemoryStore) set(key string, value string, ttl time.Duration) {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.Now().Add(ttl)
	}
	s.entries[key] = entry
}

// incr adjusts the counter at key. Caller must hold s.mu.
func (s *MemoryStore) incr(key string, n int64) (int64, error) {
	var current int64
	if entry, ok := s.get(key); ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}

	current += n
	entry := s.entries[key]
	entry.value = strconv.FormatInt(current, 10)
	s.entries[key] = entry

	return current, nil
}
