package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiskSetAndGet(t *testing.T) {
	tempDir := t.TempDir()
	store := NewDisk(tempDir, time.Hour)

	if err := store.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	testData := []byte("test response data")
	if err := store.Set("GET:/api/users:", testData, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	data, err := store.Get("GET:/api/users:")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if data == nil {
		t.Fatalf("Get() returned nil data, want cached data")
	}
	if string(data) != string(testData) {
		t.Errorf("Get() data = %s, want %s", string(data), string(testData))
	}
}

func TestDiskGetExpired(t *testing.T) {
	tempDir := t.TempDir()
	store := NewDisk(tempDir, time.Hour)

	if err := store.Set("k", []byte("test data"), 1*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Expiry is stored at second granularity, wait past it
	time.Sleep(1100 * time.Millisecond)

	data, err := store.Get("k")
	if err != nil {
		t.Errorf("Get() error = %v", err)
	}
	if data != nil {
		t.Errorf("Get() returned data for expired cache, want nil")
	}

	// Verify file was deleted
	if store.Len() != 0 {
		t.Errorf("Len() = %d after expiry, want 0", store.Len())
	}
}

func TestDiskInvalidatePattern(t *testing.T) {
	tempDir := t.TempDir()
	store := NewDisk(tempDir, time.Hour)

	if err := store.Set("GET:/api/users:", []byte("users"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set("GET:/api/products:", []byte("products"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	removed, err := store.InvalidatePattern("/api/users")
	if err != nil {
		t.Fatalf("InvalidatePattern() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("InvalidatePattern() removed = %d, want 1", removed)
	}
	if data, _ := store.Get("GET:/api/products:"); data == nil {
		t.Errorf("products entry should have been left intact")
	}
}

func TestDiskClear(t *testing.T) {
	tempDir := t.TempDir()
	store := NewDisk(tempDir, time.Hour)

	if err := store.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after Clear(), want 0", store.Len())
	}

	// Directory must still exist after a clear
	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Errorf("cache directory missing after Clear()")
	}
}

func TestDiskInit(t *testing.T) {
	tempDir := t.TempDir()
	cacheDir := filepath.Join(tempDir, "new", "cache", "dir")

	store := NewDisk(cacheDir, time.Hour)

	if err := store.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// Verify directory was created
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		t.Fatalf("Cache directory was not created")
	}
}
