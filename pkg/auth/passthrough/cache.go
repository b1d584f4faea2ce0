package passthrough

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// Cache store kinds accepted in config.PasswordCacheConfig.Store.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// CachedPassword is a remotely verified password, encoded with a local
// storage scheme.
type CachedPassword struct {
	Encoded  []byte
	StoredAt time.Time
}

func (c CachedPassword) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.StoredAt) >= ttl
}

// Store persists cached passwords keyed by normalized local DN.
type Store interface {
	Get(key string) (CachedPassword, bool, error)
	Put(key string, value CachedPassword, ttl time.Duration) error
	Delete(key string) error
	Close() error
}

// cachedPasswordLen is the encoded timestamp size.
const cachedPasswordLen = 8

func marshalCachedPassword(c CachedPassword) []byte {
	buf := make([]byte, cachedPasswordLen, cachedPasswordLen+len(c.Encoded))
	binary.BigEndian.PutUint64(buf, uint64(c.StoredAt.UnixNano()))
	return append(buf, c.Encoded...)
}

func unmarshalCachedPassword(b []byte) (CachedPassword, error) {
	if len(b) <= cachedPasswordLen {
		return CachedPassword{}, errors.New("cached password record too short")
	}
	encoded := make([]byte, len(b)-cachedPasswordLen)
	copy(encoded, b[cachedPasswordLen:])
	return CachedPassword{
		StoredAt: time.Unix(0, int64(binary.BigEndian.Uint64(b))),
		Encoded:  encoded,
	}, nil
}

// MemoryStore keeps cached passwords in process memory.
type MemoryStore struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   CachedPassword
	expires time.Time
}

// NewMemoryStore returns an empty store. now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(key string) (CachedPassword, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return CachedPassword{}, false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return CachedPassword{}, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Put(key string, value CachedPassword, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expires: value.StoredAt.Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error { return nil }

// openStore opens the store named by kind.
func openStore(kind, path string, now func() time.Time) (Store, error) {
	switch kind {
	case "", StoreMemory:
		return NewMemoryStore(now), nil
	case StoreBadger:
		return OpenBadgerStore(path)
	default:
		return nil, fmt.Errorf("%w: unknown password cache store %q", auth.ErrConfiguration, kind)
	}
}
