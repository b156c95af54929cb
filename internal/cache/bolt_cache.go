package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("entries")

// BoltStore implements Store on a bbolt database so cached payloads
// survive restarts. Value layout: 8 bytes big endian expiresAt (unix
// seconds) followed by the raw payload.
type BoltStore struct {
	db         *bolt.DB
	defaultTTL time.Duration
}

// NewBolt opens (or creates) a bolt database at path.
func NewBolt(path string, defaultTTL time.Duration) (*BoltStore, error) {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	store := &BoltStore{db: db, defaultTTL: defaultTTL}
	if err := store.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// Get retrieves cached payload if it exists and is not expired
func (b *BoltStore) Get(key string) ([]byte, error) {
	var out []byte
	var expired bool
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		expiresAt := int64(binary.BigEndian.Uint64(v[:8]))
		if time.Now().Unix() >= expiresAt {
			expired = true
			return nil
		}
		out = append([]byte(nil), v[8:]...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	if expired {
		// Cache expired, remove it
		if err := b.Delete(key); err != nil {
			logrus.Errorf("Failed to remove expired cache entry %s: %v", key, err)
		}
		return nil, nil
	}
	return out, nil
}

// Set stores a payload in the cache
func (b *BoltStore) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = b.defaultTTL
	}
	expiresAt := time.Now().Add(ttl).Unix()

	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt))
	copy(buf[8:], value)

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), buf)
	})
}

// Delete unconditionally removes a key.
func (b *BoltStore) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
}

// Clear drops and recreates the bucket.
func (b *BoltStore) Clear() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(boltBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(boltBucket)
		return err
	})
}

// InvalidatePattern removes every entry whose key contains pattern.
func (b *BoltStore) InvalidatePattern(pattern string) (int, error) {
	return b.invalidate(func(key string) bool {
		return strings.Contains(key, pattern)
	})
}

// InvalidateRegexp removes every entry whose key matches re.
func (b *BoltStore) InvalidateRegexp(re *regexp.Regexp) (int, error) {
	return b.invalidate(re.MatchString)
}

func (b *BoltStore) invalidate(match func(string) bool) (int, error) {
	removed := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		c := bucket.Cursor()

		var matched [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if match(string(k)) {
				matched = append(matched, bytes.Clone(k))
			}
		}
		for _, k := range matched {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Len counts stored entries, including expired ones not yet read.
func (b *BoltStore) Len() int {
	count := 0
	_ = b.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(boltBucket).Stats().KeyN
		return nil
	})
	return count
}

// MaxSize returns 0: the bolt backend is unbounded.
func (b *BoltStore) MaxSize() int {
	return 0
}

// Init creates the entries bucket.
func (b *BoltStore) Init() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
}
