package logstore

import (
	"github.com/oneconcern/flashfs/pkg/flash"
	"github.com/oneconcern/flashfs/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultMinGCSpacing is the default number of writes between two opportunistic collections
	DefaultMinGCSpacing = 32
)

// Option configures a log store
type Option func(*Store)

// Logger sets a logger for the store
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.l = l
		}
	}
}

// Metrics sets the metrics collected by the store
func Metrics(m *metrics.Store) Option {
	return func(s *Store) {
		if m != nil {
			s.m = m
		}
	}
}

// Halt sets the Halter invoked on flash contract violations and on
// unrecoverable mount failures
func Halt(h flash.Halter) Option {
	return func(s *Store) {
		if h != nil {
			s.halt = h
		}
	}
}

// MinGCSpacing sets the minimum number of writes between two opportunistic
// collections. It does not apply when a record does not fit.
func MinGCSpacing(writes int) Option {
	return func(s *Store) {
		if writes >= 0 {
			s.minGCSpacing = writes
		}
	}
}

// LowWater sets the free space under which a write may trigger an
// opportunistic collection. It defaults to 1/8 of the capacity.
func LowWater(size uint32) Option {
	return func(s *Store) {
		s.lowWater = size
		s.lowWaterSet = true
	}
}

// Compression stores data snappy encoded, whenever this saves space
func Compression(enabled bool) Option {
	return func(s *Store) {
		s.compress = enabled
	}
}
