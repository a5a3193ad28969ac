// Package ramcache keeps copies of small, frequently read files in RAM.
//
// Entries are populated on demand and only go away when explicitly cleared:
// there is no eviction. Callers bound the memory used by the cache through
// its Allocator.
package ramcache

import (
	"sort"
	"strings"
	"sync"

	"github.com/oneconcern/flashfs/pkg/dlogger"
	"github.com/oneconcern/flashfs/pkg/metrics"
	"github.com/oneconcern/flashfs/pkg/ramcache/status"
	"go.uber.org/zap"
)

// Source is where cached files are read from.
//
// Read follows the log store convention: with a nil buffer, it returns
// the size of the file.
type Source interface {
	Read(name string, buf []byte) (int, error)
}

var cacheableExtensions = []string{".cache", ".bin", ".txt"}

// Cacheable is the default filter: cache files, binary and text files
func Cacheable(name string) bool {
	for _, ext := range cacheableExtensions {
		if strings.HasSuffix(name, ext) && len(name) > len(ext) {
			return true
		}
	}
	return false
}

// Cache maps file names to copies of their content in RAM.
//
// It is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	src       Source
	alloc     Allocator
	cacheable func(string) bool
	entries   map[string]*Buffer
	size      int

	l *zap.Logger
	m *metrics.Cache
}

// New cache populated from src
func New(src Source, opts ...Option) *Cache {
	c := &Cache{
		src:       src,
		cacheable: Cacheable,
		entries:   make(map[string]*Buffer),
		l:         dlogger.MustGetLogger(dlogger.LogLevelInfo),
		m:         metrics.Discard().Cache,
	}
	for _, apply := range opts {
		apply(c)
	}
	if c.alloc == nil {
		c.alloc = NewBudget(DefaultBudget)
	}
	return c
}

// CacheFile loads a copy of name in RAM. Caching a file twice is a no-op.
func (c *Cache) CacheFile(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[name]; ok {
		return nil
	}
	if !c.cacheable(name) {
		return status.ErrNotCacheable.WrapMessage("%q", name)
	}

	size, err := c.src.Read(name, nil)
	if err != nil {
		return err
	}
	buf, err := c.alloc.Alloc(size)
	if err != nil {
		c.m.AllocFailures.Inc()
		c.l.Warn("cannot cache file", zap.String("name", name), zap.Int("size", size), zap.Error(err))
		return status.ErrNoMemory.Wrap(err)
	}
	n, err := c.src.Read(name, buf)
	if err != nil {
		c.alloc.Free(buf)
		return err
	}

	c.entries[name] = &Buffer{data: buf[:n], alloc: c.alloc}
	c.size += n
	c.m.Usage(len(c.entries), c.size)
	c.l.Debug("cached file", zap.String("name", name), zap.Int("size", n))
	return nil
}

// Get returns the cached content of name. It never reads the source.
//
// The returned bytes belong to the cache: they must not be modified, nor
// used after the entry is cleared.
func (c *Cache) Get(name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.entries[name]
	c.m.Lookup(ok)
	if !ok {
		return nil, false
	}
	return b.Bytes(), true
}

// Clear releases the cached copy of name, if any
func (c *Cache) Clear(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.entries[name]
	if !ok {
		return false
	}
	c.size -= b.Len()
	b.release()
	delete(c.entries, name)
	c.m.Usage(len(c.entries), c.size)
	return true
}

// ClearAll releases every cached copy
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, b := range c.entries {
		b.release()
		delete(c.entries, name)
	}
	c.size = 0
	c.m.Usage(0, 0)
}

// Len is the number of cached files
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size is the number of bytes held by the cache
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Names of the cached files, sorted
func (c *Cache) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
