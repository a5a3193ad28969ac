// Package status declares error constants returned by the RAM cache.
package status

import "github.com/oneconcern/flashfs/pkg/errors"

var (
	// ErrNotCacheable indicates a file which does not belong to a cacheable family
	ErrNotCacheable = errors.New("file is not cacheable")

	// ErrNoMemory indicates that the allocator could not provide a buffer
	ErrNoMemory = errors.New("out of memory")

	// ErrInvalidSize indicates a negative allocation request
	ErrInvalidSize = errors.New("invalid allocation size")
)
