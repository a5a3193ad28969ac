package ramcache

import (
	"github.com/oneconcern/flashfs/pkg/metrics"
	"go.uber.org/zap"
)

// Option configures the cache
type Option func(*Cache)

// WithAllocator sets the allocator providing cache buffers
func WithAllocator(a Allocator) Option {
	return func(c *Cache) {
		if a != nil {
			c.alloc = a
		}
	}
}

// Filter sets the predicate telling which files may be cached
func Filter(cacheable func(name string) bool) Option {
	return func(c *Cache) {
		if cacheable != nil {
			c.cacheable = cacheable
		}
	}
}

// Logger sets a logger for the cache
func Logger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.l = l
		}
	}
}

// Metrics sets the metrics collected by the cache
func Metrics(m *metrics.Cache) Option {
	return func(c *Cache) {
		if m != nil {
			c.m = m
		}
	}
}
