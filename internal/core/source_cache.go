package core

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSourceCacheSize is the number of files a SourceCache keeps.
const DefaultSourceCacheSize = 256

type sourceEntry struct {
	data    []byte
	modTime time.Time
	size    int64
}

// SourceCache keeps recently read file contents so that the text strategies
// of several rules do not re-read a file the source index does not hold. An
// entry is dropped when the file's size or modification time changes.
type SourceCache struct {
	entries *lru.Cache[string, sourceEntry]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewSourceCache creates a cache holding up to size files.
func NewSourceCache(size int) *SourceCache {
	if size < 1 {
		size = DefaultSourceCacheSize
	}
	entries, err := lru.New[string, sourceEntry](size)
	if err != nil {
		panic(err) // only fails for size <= 0
	}
	return &SourceCache{entries: entries}
}

// Read returns the contents of path, from the cache when still current.
func (c *SourceCache) Read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if e, ok := c.entries.Get(path); ok && e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
		c.hits.Add(1)
		return e.data, nil
	}

	c.misses.Add(1)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	c.entries.Add(path, sourceEntry{data: data, modTime: info.ModTime(), size: info.Size()})
	return data, nil
}

// Stats returns the hit and miss counts.
func (c *SourceCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached files.
func (c *SourceCache) Len() int {
	return c.entries.Len()
}
