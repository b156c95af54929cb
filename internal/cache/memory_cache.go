package cache

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL is used when Set is called with ttl <= 0 and no
	// store-wide default was configured.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxSize bounds the memory store when no size was configured.
	DefaultMaxSize = 100
)

type memEntry struct {
	payload   []byte
	createdAt time.Time
	expiresAt time.Time
}

// MemoryStore implements Store in memory with TTL expiry and
// insertion-ordered eviction. When the store is full, the oldest
// inserted key is removed first, regardless of how recently it was read.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memEntry
	order      []string // insertion order, oldest first
	maxSize    int
	defaultTTL time.Duration
}

// NewMemory creates a memory store. maxSize <= 0 and defaultTTL <= 0
// fall back to DefaultMaxSize and DefaultTTL.
func NewMemory(maxSize int, defaultTTL time.Duration) *MemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &MemoryStore{
		entries:    make(map[string]*memEntry),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
	}
}

// Get retrieves the cached payload if it exists and is not expired.
// Expired entries are removed on read.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}

	if !time.Now().Before(e.expiresAt) {
		m.removeLocked(key)
		logrus.Debugf("Cache entry expired: %s", key)
		return nil, nil
	}

	return e.payload, nil
}

// Set inserts or overwrites an entry. If the key is new and the store is
// at capacity, the oldest inserted entry is evicted first. Overwriting an
// existing key keeps its original insertion position.
func (m *MemoryStore) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if e, ok := m.entries[key]; ok {
		e.payload = value
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		return nil
	}

	if len(m.entries) >= m.maxSize {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
		logrus.Debugf("Cache full, evicted oldest entry: %s", oldest)
	}

	m.entries[key] = &memEntry{
		payload:   value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	m.order = append(m.order, key)
	return nil
}

// Delete unconditionally removes a key.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
	return nil
}

// Clear removes all entries.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memEntry)
	m.order = nil
	return nil
}

// InvalidatePattern removes every entry whose key contains pattern.
func (m *MemoryStore) InvalidatePattern(pattern string) (int, error) {
	return m.invalidate(func(key string) bool {
		return strings.Contains(key, pattern)
	})
}

// InvalidateRegexp removes every entry whose key matches re.
func (m *MemoryStore) InvalidateRegexp(re *regexp.Regexp) (int, error) {
	return m.invalidate(re.MatchString)
}

func (m *MemoryStore) invalidate(match func(string) bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []string
	for key := range m.entries {
		if match(key) {
			matched = append(matched, key)
		}
	}
	for _, key := range matched {
		m.removeLocked(key)
	}
	return len(matched), nil
}

// Len returns the number of live entries, counting entries that have
// expired but were not read since.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// MaxSize returns the configured entry bound.
func (m *MemoryStore) MaxSize() int {
	return m.maxSize
}

// Init is a no-op for the memory backend.
func (m *MemoryStore) Init() error {
	return nil
}

// removeLocked removes key from both the map and the insertion queue.
// Callers must hold m.mu.
func (m *MemoryStore) removeLocked(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
