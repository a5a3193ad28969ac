package ramcache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/oneconcern/flashfs/pkg/errors"
	"github.com/oneconcern/flashfs/pkg/metrics"
	"github.com/oneconcern/flashfs/pkg/ramcache/status"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var errNotFound = errors.New("not found")

// mapSource serves files from a map, counting reads
type mapSource struct {
	mu    sync.Mutex
	files map[string][]byte
	reads int
}

func (s *mapSource) Read(name string, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	data, ok := s.files[name]
	if !ok {
		return 0, errNotFound
	}
	if buf == nil {
		return len(data), nil
	}
	return copy(buf, data), nil
}

// countingAllocator records allocations
type countingAllocator struct {
	*Budget
	allocs int
}

func (a *countingAllocator) Alloc(size int) ([]byte, error) {
	a.allocs++
	return a.Budget.Alloc(size)
}

func setupCache(t testing.TB, opts ...Option) (*Cache, *mapSource) {
	src := &mapSource{files: map[string][]byte{
		"logo.bin":     []byte("binary"),
		"readme.txt":   []byte("hello"),
		"model.cache":  make([]byte, 1024),
		"boot.config":  []byte("config"),
		"secrets.ptxt": []byte("secret"),
	}}
	return New(src, opts...), src
}

func TestCacheFileIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	alloc := &countingAllocator{Budget: NewBudget(DefaultBudget)}
	c, src := setupCache(t, WithAllocator(alloc))

	require.NoError(t, c.CacheFile("logo.bin"))
	first, ok := c.Get("logo.bin")
	require.True(t, ok)
	reads := src.reads

	require.NoError(t, c.CacheFile("logo.bin"))
	second, ok := c.Get("logo.bin")
	require.True(t, ok)

	assert.Equal(t, "binary", string(second))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, alloc.allocs, "no double allocation")
	assert.Equal(t, reads, src.reads, "no flash access once cached")
	assert.Equal(t, 6, alloc.Used())
}

func TestCacheFileErrors(t *testing.T) {
	c, _ := setupCache(t)

	err := c.CacheFile("boot.config")
	assert.True(t, errors.Is(err, status.ErrNotCacheable))
	err = c.CacheFile("secrets.ptxt")
	assert.True(t, errors.Is(err, status.ErrNotCacheable))
	err = c.CacheFile(".bin")
	assert.True(t, errors.Is(err, status.ErrNotCacheable))

	err = c.CacheFile("missing.txt")
	assert.True(t, errors.Is(err, errNotFound))
	assert.Zero(t, c.Len())
}

func TestCacheBudget(t *testing.T) {
	m := metrics.Discard().Cache
	budget := NewBudget(1030)
	c, _ := setupCache(t, WithAllocator(budget), Metrics(m))

	require.NoError(t, c.CacheFile("model.cache"))
	require.NoError(t, c.CacheFile("readme.txt"))

	// allocation failures are reported, the cache remains usable
	err := c.CacheFile("logo.bin")
	assert.True(t, errors.Is(err, status.ErrNoMemory))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AllocFailures))
	_, ok := c.Get("logo.bin")
	assert.False(t, ok)

	assert.True(t, c.Clear("model.cache"))
	assert.Equal(t, 5, budget.Used())
	require.NoError(t, c.CacheFile("logo.bin"))
	assert.Equal(t, 11, budget.Used())
	assert.Equal(t, 11, c.Size())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Entries))
}

func TestClear(t *testing.T) {
	m := metrics.Discard().Cache
	budget := NewBudget(DefaultBudget)
	c, src := setupCache(t, WithAllocator(budget), Metrics(m))

	require.NoError(t, c.CacheFile("logo.bin"))
	require.NoError(t, c.CacheFile("readme.txt"))
	assert.Equal(t, []string{"logo.bin", "readme.txt"}, c.Names())

	assert.True(t, c.Clear("logo.bin"))
	assert.False(t, c.Clear("logo.bin"))
	_, ok := c.Get("logo.bin")
	assert.False(t, ok)

	// cleared entries are read again from the source
	src.files["logo.bin"] = []byte("updated")
	require.NoError(t, c.CacheFile("logo.bin"))
	data, _ := c.Get("logo.bin")
	assert.Equal(t, "updated", string(data))

	c.ClearAll()
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Size())
	assert.Zero(t, budget.Used())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Misses))
}

func TestConcurrentCacheFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	alloc := &countingAllocator{Budget: NewBudget(DefaultBudget)}
	src := &mapSource{files: make(map[string][]byte)}
	for i := 0; i < 10; i++ {
		src.files[fmt.Sprintf("file%d.txt", i)] = []byte(fmt.Sprintf("content %d", i))
	}
	c := New(src, WithAllocator(alloc))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, c.CacheFile(fmt.Sprintf("file%d.txt", i)))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, c.Len())
	assert.Equal(t, 10, alloc.allocs)
	for i := 0; i < 10; i++ {
		data, ok := c.Get(fmt.Sprintf("file%d.txt", i))
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("content %d", i), string(data))
	}
}

func TestBudget(t *testing.T) {
	b := NewBudget(100)

	_, err := b.Alloc(-1)
	assert.True(t, errors.Is(err, status.ErrInvalidSize))

	empty, err := b.Alloc(0)
	require.NoError(t, err)
	b.Free(empty)

	buf, err := b.Alloc(60)
	require.NoError(t, err)
	assert.Len(t, buf, 60)
	_, err = b.Alloc(60)
	assert.True(t, errors.Is(err, status.ErrNoMemory))

	// foreign buffers are not accounted for
	b.Free(make([]byte, 60))
	assert.Equal(t, 60, b.Used())

	b.Free(buf)
	b.Free(buf)
	assert.Zero(t, b.Used())
	assert.Equal(t, 100, b.Limit())
}

func TestCacheable(t *testing.T) {
	assert.True(t, Cacheable("a.cache"))
	assert.True(t, Cacheable("a.bin"))
	assert.True(t, Cacheable("a.txt"))
	assert.False(t, Cacheable("a.config"))
	assert.False(t, Cacheable("a.ptxt"))
	assert.False(t, Cacheable("a"))
}
