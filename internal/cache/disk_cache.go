package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DiskStore implements Store on the filesystem, one file per key.
// Files carry a small header (the original key and the absolute expiry)
// so that pattern invalidation can match on keys rather than filenames.
type DiskStore struct {
	cacheDir   string
	defaultTTL time.Duration
}

// NewDisk creates a disk store rooted at cacheDir.
func NewDisk(cacheDir string, defaultTTL time.Duration) *DiskStore {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &DiskStore{
		cacheDir:   cacheDir,
		defaultTTL: defaultTTL,
	}
}

// filePath hashes the key into a stable filename under the cache dir.
func (d *DiskStore) filePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(d.cacheDir, hex.EncodeToString(hash[:])[:16]+".bin")
}

// Get retrieves cached payload if it exists and is not expired
func (d *DiskStore) Get(key string) ([]byte, error) {
	path := d.filePath(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	storedKey, expiresAt, payload, err := splitEntry(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt cache file %s: %w", path, err)
	}
	if storedKey != key {
		// Filename hash collision, treat as a miss
		return nil, nil
	}

	if time.Now().Unix() >= expiresAt {
		// Cache expired, remove it
		if err := os.Remove(path); err != nil {
			logrus.Errorf("Failed to remove expired cache file %s: %v", path, err)
		}
		return nil, nil
	}

	return payload, nil
}

// Set stores a payload in the cache
func (d *DiskStore) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = d.defaultTTL
	}
	path := d.filePath(key)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	expiresAt := time.Now().Add(ttl).Unix()
	header := fmt.Sprintf("%s\n%d\n", key, expiresAt)
	if err := os.WriteFile(path, append([]byte(header), value...), 0644); err != nil {
		return err
	}

	logrus.Debugf("Cached payload: %s", path)
	return nil
}

// Delete unconditionally removes a key.
func (d *DiskStore) Delete(key string) error {
	err := os.Remove(d.filePath(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear removes the whole cache directory and recreates it.
func (d *DiskStore) Clear() error {
	if err := os.RemoveAll(d.cacheDir); err != nil {
		return err
	}
	return d.Init()
}

// InvalidatePattern removes every entry whose key contains pattern.
func (d *DiskStore) InvalidatePattern(pattern string) (int, error) {
	return d.invalidate(func(key string) bool {
		return strings.Contains(key, pattern)
	})
}

// InvalidateRegexp removes every entry whose key matches re.
func (d *DiskStore) InvalidateRegexp(re *regexp.Regexp) (int, error) {
	return d.invalidate(re.MatchString)
}

func (d *DiskStore) invalidate(match func(string) bool) (int, error) {
	removed := 0
	err := filepath.Walk(d.cacheDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil // entry may have been removed concurrently
		}
		key, _, _, err := splitEntry(data)
		if err != nil {
			return nil
		}
		if match(key) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if os.IsNotExist(err) {
		return removed, nil
	}
	return removed, err
}

// Len counts entry files currently on disk.
func (d *DiskStore) Len() int {
	count := 0
	_ = filepath.Walk(d.cacheDir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			count++
		}
		return nil
	})
	return count
}

// MaxSize returns 0: the disk backend is unbounded.
func (d *DiskStore) MaxSize() int {
	return 0
}

// Init ensures the cache directory exists
func (d *DiskStore) Init() error {
	return os.MkdirAll(d.cacheDir, 0755)
}

// splitEntry parses the "key\nexpiresAt\n" header off a cache file.
func splitEntry(data []byte) (key string, expiresAt int64, payload []byte, err error) {
	first := bytes.IndexByte(data, '\n')
	if first < 0 {
		return "", 0, nil, fmt.Errorf("missing key header")
	}
	second := bytes.IndexByte(data[first+1:], '\n')
	if second < 0 {
		return "", 0, nil, fmt.Errorf("missing expiry header")
	}
	second += first + 1

	key = string(data[:first])
	expiresAt, err = strconv.ParseInt(string(data[first+1:second]), 10, 64)
	if err != nil {
		return "", 0, nil, fmt.Errorf("invalid expiry header: %w", err)
	}
	return key, expiresAt, data[second+1:], nil
}
