// Package metrics collects counters and gauges about flash, log store and
// RAM cache activity, exposed as prometheus collectors.
//
// Components are handed a *M (or one of its groups) through an option.
// When none is provided, they get a Discard() instance: collectors are
// still live, they are just not registered anywhere.
package metrics

import (
	"github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// KB stands for kilo bytes (1024 bytes)
	KB = units.KiB

	// MB stands for mega bytes (1024 kilo bytes)
	MB = units.MiB

	namespace = "flashfs"
)

// M describes all metrics collected by flashfs
type M struct {
	Flash *Flash
	Store *Store
	Cache *Cache
}

// New builds the metrics tree and registers all collectors on reg.
//
// A nil registerer leaves the collectors unregistered.
func New(reg prometheus.Registerer) *M {
	m := &M{
		Flash: newFlash(),
		Store: newStore(),
		Cache: newCache(),
	}
	if reg != nil {
		reg.MustRegister(m.Flash.collectors()...)
		reg.MustRegister(m.Store.collectors()...)
		reg.MustRegister(m.Cache.collectors()...)
	}
	return m
}

// Discard returns metrics that are collected but never exported
func Discard() *M {
	return New(nil)
}

// Flash reports about the physical operations on the flash device
type Flash struct {
	Erases          prometheus.Counter
	ErasedBytes     prometheus.Counter
	WordsProgrammed prometheus.Counter
	WordsSkipped    prometheus.Counter
	Rejections      *prometheus.CounterVec
}

func newFlash() *Flash {
	return &Flash{
		Erases:          counter("flash", "erases_total", "number of erased pages"),
		ErasedBytes:     counter("flash", "erased_bytes_total", "number of erased bytes"),
		WordsProgrammed: counter("flash", "words_programmed_total", "number of 32-bit words programmed"),
		WordsSkipped:    counter("flash", "words_skipped_total", "number of all-ones words skipped while programming"),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flash",
			Name:      "rejections_total",
			Help:      "number of erase or program requests rejected before reaching the hardware",
		}, []string{"reason"}),
	}
}

func (f *Flash) collectors() []prometheus.Collector {
	return []prometheus.Collector{f.Erases, f.ErasedBytes, f.WordsProgrammed, f.WordsSkipped, f.Rejections}
}

// Erase records a page erase
func (f *Flash) Erase(size uint32) {
	f.Erases.Inc()
	f.ErasedBytes.Add(float64(size))
}

// Program records the outcome of a program operation
func (f *Flash) Program(programmed, skipped int) {
	f.WordsProgrammed.Add(float64(programmed))
	f.WordsSkipped.Add(float64(skipped))
}

// Reject records a rejected operation
func (f *Flash) Reject(reason string) {
	f.Rejections.WithLabelValues(reason).Inc()
}

// Store reports about the log store
type Store struct {
	Operations   *prometheus.CounterVec
	Mounts       *prometheus.CounterVec
	Formats      prometheus.Counter
	GCRuns       *prometheus.CounterVec
	GCReclaimed  prometheus.Counter
	AppendedSize prometheus.Counter
	FreeBytes    prometheus.Gauge
}

func newStore() *Store {
	return &Store{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logstore",
			Name:      "operations_total",
			Help:      "number of log store operations",
		}, []string{"operation"}),
		Mounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logstore",
			Name:      "mounts_total",
			Help:      "number of mount attempts",
		}, []string{"result"}),
		Formats: counter("logstore", "formats_total", "number of formats"),
		GCRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logstore",
			Name:      "gc_runs_total",
			Help:      "number of garbage collections",
		}, []string{"trigger"}),
		GCReclaimed:  counter("logstore", "gc_reclaimed_bytes_total", "bytes reclaimed by garbage collection"),
		AppendedSize: counter("logstore", "appended_bytes_total", "bytes appended to the log"),
		FreeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "logstore",
			Name:      "free_bytes",
			Help:      "free bytes left in the active bank",
		}),
	}
}

func (s *Store) collectors() []prometheus.Collector {
	return []prometheus.Collector{s.Operations, s.Mounts, s.Formats, s.GCRuns, s.GCReclaimed, s.AppendedSize, s.FreeBytes}
}

// Op records a log store operation
func (s *Store) Op(operation string) {
	s.Operations.WithLabelValues(operation).Inc()
}

// Mount records the outcome of a mount attempt
func (s *Store) Mount(ok bool) {
	if ok {
		s.Mounts.WithLabelValues("success").Inc()
		return
	}
	s.Mounts.WithLabelValues("failure").Inc()
}

// GC records a garbage collection run
func (s *Store) GC(trigger string, reclaimed uint32) {
	s.GCRuns.WithLabelValues(trigger).Inc()
	s.GCReclaimed.Add(float64(reclaimed))
}

// Append records some bytes appended to the log
func (s *Store) Append(size uint32) {
	s.AppendedSize.Add(float64(size))
}

// Free sets the current free space
func (s *Store) Free(size uint32) {
	s.FreeBytes.Set(float64(size))
}

// Cache reports about the RAM cache
type Cache struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	AllocFailures prometheus.Counter
	Entries       prometheus.Gauge
	Bytes         prometheus.Gauge
}

func newCache() *Cache {
	return &Cache{
		Hits:          counter("cache", "hits_total", "number of cache lookups served from RAM"),
		Misses:        counter("cache", "misses_total", "number of cache lookups not served from RAM"),
		AllocFailures: counter("cache", "alloc_failures_total", "number of cache populations that failed to allocate RAM"),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "number of cached files",
		}),
		Bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "bytes",
			Help:      "RAM held by cached files",
		}),
	}
}

func (c *Cache) collectors() []prometheus.Collector {
	return []prometheus.Collector{c.Hits, c.Misses, c.AllocFailures, c.Entries, c.Bytes}
}

// Lookup records a cache hit or miss
func (c *Cache) Lookup(hit bool) {
	if hit {
		c.Hits.Inc()
		return
	}
	c.Misses.Inc()
}

// Usage sets the current cache occupancy
func (c *Cache) Usage(entries int, size int) {
	c.Entries.Set(float64(entries))
	c.Bytes.Set(float64(size))
}

func counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}
