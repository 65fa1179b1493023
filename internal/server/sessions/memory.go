package sessions

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryStore is a process-local Store. It only works when every request of
// a login flow reaches the same server instance.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func memoryKey(sessionID, key string) string {
	return sessionID + "\x00" + key
}

func (s *MemoryStore) Put(_ context.Context, sessionID, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	s.entries[memoryKey(sessionID, key)] = memoryEntry{value: value, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, sessionID, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey(sessionID, key)
	e, ok := s.entries[k]
	if !ok {
		return "", false, nil
	}
	delete(s.entries, k)

	if !s.now().Before(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	return nil
}

// sweepLocked drops expired entries. Abandoned flows would otherwise pile
// up forever.
func (s *MemoryStore) sweepLocked(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
}
