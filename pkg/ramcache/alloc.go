package ramcache

import (
	"sync"

	"github.com/docker/go-units"
	"github.com/oneconcern/flashfs/pkg/ramcache/status"
)

// DefaultBudget is the default amount of RAM available to the cache
const DefaultBudget = 128 * units.KiB

// Allocator provides buffers to the cache.
//
// Allocation failures are not fatal: the cache reports them and stays usable.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free([]byte)
}

var _ Allocator = &Budget{}

// Budget is an allocator capping the total size of live buffers.
//
// Every buffer handed out is tracked, so that Free only returns to the budget
// what was actually allocated.
type Budget struct {
	mu    sync.Mutex
	limit int
	used  int
	live  map[*byte]int
}

// NewBudget builds an allocator capped to limit bytes
func NewBudget(limit int) *Budget {
	return &Budget{
		limit: limit,
		live:  make(map[*byte]int),
	}
}

// Alloc a zeroed buffer of size bytes
func (b *Budget) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, status.ErrInvalidSize.WrapMessage("%d bytes", size)
	}
	if size == 0 {
		return []byte{}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used+size > b.limit {
		return nil, status.ErrNoMemory.WrapMessage("%s requested, %s left",
			units.BytesSize(float64(size)), units.BytesSize(float64(b.limit-b.used)))
	}
	buf := make([]byte, size)
	b.live[&buf[0]] = size
	b.used += size
	return buf, nil
}

// Free returns a buffer to the budget. Unknown buffers are ignored.
func (b *Budget) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	head := &buf[:1][0]

	b.mu.Lock()
	defer b.mu.Unlock()
	size, ok := b.live[head]
	if !ok {
		return
	}
	delete(b.live, head)
	b.used -= size
}

// Used is the number of bytes currently allocated
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Limit of the budget
func (b *Budget) Limit() int {
	return b.limit
}

// Buffer is a cached copy of a file, owned by the cache.
//
// The memory goes back to the allocator when the buffer is released.
type Buffer struct {
	data  []byte
	alloc Allocator
}

// Bytes held by the buffer. They must not be modified.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len of the buffer
func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) release() {
	if b.alloc != nil {
		b.alloc.Free(b.data)
	}
	b.data = nil
	b.alloc = nil
}
