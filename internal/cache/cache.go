package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is a cached markup snapshot with metadata.
type Entry struct {
	Address   string    `json:"address"`
	Markup    string    `json:"markup"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache provides disk-based caching of rendered pages, one file per address.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
}

// New creates a new disk-based cache.
func New(cacheDir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, err
	}
	return &Cache{
		dir: cacheDir,
		ttl: ttl,
		now: time.Now,
	}, nil
}

// Get retrieves the cached markup for an address if it exists and isn't expired.
func (c *Cache) Get(address string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.filePath(address))
	if err != nil {
		return "", false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", false
	}
	if entry.Address != address {
		return "", false
	}

	if c.now().Sub(entry.FetchedAt) > c.ttl {
		return "", false
	}

	return entry.Markup, true
}

// Set stores markup for an address.
func (c *Cache) Set(address, markup string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{
		Address:   address,
		Markup:    markup,
		FetchedAt: c.now(),
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath(address), data, 0644)
}

// Invalidate removes the cached markup of an address.
func (c *Cache) Invalidate(address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.filePath(address)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// filePath names the entry after the sha256 of the address, so distinct
// addresses never share a file.
func (c *Cache) filePath(address string) string {
	hash := sha256.Sum256([]byte(address))
	return filepath.Join(c.dir, hex.EncodeToString(hash[:16])+".json")
}
