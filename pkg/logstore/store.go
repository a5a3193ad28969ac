package logstore

import (
	"fmt"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/oneconcern/flashfs/pkg/dlogger"
	"github.com/oneconcern/flashfs/pkg/errors"
	"github.com/oneconcern/flashfs/pkg/flash"
	"github.com/oneconcern/flashfs/pkg/logstore/status"
	"github.com/oneconcern/flashfs/pkg/metrics"
	"go.uber.org/zap"
)

// State of a log store
type State uint8

// Lifecycle of a store: Unmounted -> Mounting -> Mounted, Mounted -> Formatting -> Mounted
const (
	Unmounted State = iota
	Mounting
	Mounted
	Formatting
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounting:
		return "mounting"
	case Mounted:
		return "mounted"
	case Formatting:
		return "formatting"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type bank struct {
	flash.Region
	pages []flash.Page
}

// Store is a log-structured key/value store over a flash region.
//
// A Store is owned by a single goroutine: none of its methods may be called concurrently.
type Store struct {
	dev    flash.Device
	region flash.Region
	banks  [2]bank
	usable uint32

	state      State
	active     int
	generation uint32
	tail       uint32
	dirty      bool
	records    int
	live       uint32
	dir        *iradix.Tree
	cursor     *iradix.Iterator

	writesSinceGC int

	minGCSpacing int
	lowWater     uint32
	lowWaterSet  bool
	compress     bool

	halt flash.Halter
	l    *zap.Logger
	m    *metrics.Store
}

// New log store over a region of a flash device.
//
// The region must start and end on page boundaries and span at least two pages.
// The store is not mounted: this happens on first access, or with TryMount.
func New(dev flash.Device, region flash.Region, opts ...Option) (*Store, error) {
	s := &Store{
		dev:          dev,
		region:       region,
		dir:          iradix.New(),
		minGCSpacing: DefaultMinGCSpacing,
		halt:         flash.Panic,
		l:            dlogger.MustGetLogger(dlogger.LogLevelInfo),
		m:            metrics.Discard().Store,
	}
	for _, apply := range opts {
		apply(s)
	}

	pages, err := flash.Pages(dev, region)
	if err != nil {
		return nil, status.ErrBadRegion.Wrap(err)
	}
	if len(pages) < 2 {
		return nil, status.ErrBadRegion.WrapMessage("region %v has a single page", region)
	}

	// split at the first page boundary past the middle of the region
	var k int
	half := region.Size / 2
	for acc := uint32(0); k < len(pages)-1 && acc < half; k++ {
		acc += pages[k].Size
	}
	s.banks[0] = newBank(pages[:k])
	s.banks[1] = newBank(pages[k:])

	s.usable = s.banks[0].Size
	if s.banks[1].Size < s.usable {
		s.usable = s.banks[1].Size
	}
	if s.usable <= bankHeaderSize+recordHeaderSize {
		return nil, status.ErrBadRegion.WrapMessage("banks of region %v are too small", region)
	}
	if !s.lowWaterSet {
		s.lowWater = s.TotalSize() / 8
	}

	s.l.Debug("log store banks",
		zap.Stringer("region", region),
		zap.Stringer("bank0", s.banks[0].Region),
		zap.Stringer("bank1", s.banks[1].Region),
		zap.Uint32("usable", s.usable),
	)
	return s, nil
}

func newBank(pages []flash.Page) bank {
	b := bank{pages: pages, Region: flash.Region{Start: pages[0].Start}}
	for _, p := range pages {
		b.Size += p.Size
	}
	return b
}

// String representation of the store
func (s *Store) String() string {
	return fmt.Sprintf("logstore%v", s.region)
}

// State of the store
func (s *Store) State() State {
	return s.state
}

// TotalSize is the number of bytes available to records
func (s *Store) TotalSize() uint32 {
	return s.usable - bankHeaderSize
}

// FreeSize is the number of bytes left for new records in the active bank
func (s *Store) FreeSize() uint32 {
	if s.state != Mounted {
		return 0
	}
	return s.usable - s.tail
}

// Stats about a mounted store
type Stats struct {
	State      string `json:"state" yaml:"state"`
	Total      uint32 `json:"total" yaml:"total"`
	Free       uint32 `json:"free" yaml:"free"`
	Live       uint32 `json:"live" yaml:"live"`
	Keys       int    `json:"keys" yaml:"keys"`
	Records    int    `json:"records" yaml:"records"`
	Generation uint32 `json:"generation" yaml:"generation"`
	Bank       int    `json:"bank" yaml:"bank"`
	Dirty      bool   `json:"dirty" yaml:"dirty"`
}

// Stats of the store
func (s *Store) Stats() Stats {
	return Stats{
		State:      s.state.String(),
		Total:      s.TotalSize(),
		Free:       s.FreeSize(),
		Live:       s.live,
		Keys:       s.dir.Len(),
		Records:    s.records,
		Generation: s.generation,
		Bank:       s.active,
		Dirty:      s.dirty,
	}
}

// TryMount looks for a valid bank and builds the directory from its log.
//
// A failure leaves the store unmounted.
func (s *Store) TryMount() error {
	switch s.state {
	case Mounted:
		return nil
	case Mounting, Formatting:
		return status.ErrMountInProgress
	}
	s.state = Mounting
	defer func() {
		// a halt may unwind the mount
		if s.state == Mounting {
			s.state = Unmounted
		}
	}()
	err := s.mount()
	s.m.Mount(err == nil)
	if err != nil {
		s.state = Unmounted
		s.l.Info("log store mount failed", zap.Stringer("store", s), zap.Error(err))
		return err
	}
	s.state = Mounted
	s.l.Info("log store mounted",
		zap.Stringer("store", s),
		zap.Int("bank", s.active),
		zap.Uint32("generation", s.generation),
		zap.Int("keys", s.dir.Len()),
		zap.Uint32("free", s.FreeSize()),
	)
	return nil
}

func (s *Store) mount() error {
	active, generation := -1, uint32(0)
	hdr := make([]byte, bankHeaderSize)
	for i := range s.banks {
		if err := s.dev.Read(s.banks[i].Start, hdr); err != nil {
			return s.fail(err)
		}
		gen, ok := decodeBankHeader(hdr)
		if ok && (active < 0 || gen > generation) {
			active, generation = i, gen
		}
	}
	if active < 0 {
		return status.ErrNotFormatted.WrapMessage("no valid bank header in %v", s.region)
	}
	return s.load(active, generation)
}

// load makes a bank active, rebuilding the directory from its log
func (s *Store) load(active int, generation uint32) error {
	p, err := Scan(s.reader(active), s.usable)
	if err != nil {
		return s.fail(err)
	}
	if p.Dirty {
		s.l.Warn("log store has a damaged tail, it will be compacted before the next write",
			zap.Int("bank", active), zap.Uint32("tail", p.Tail))
	}
	s.active = active
	s.generation = generation
	s.tail = p.Tail
	s.dirty = p.Dirty
	s.records = p.Records
	s.live = p.Live
	s.dir = p.Dir
	s.m.Free(s.usable - s.tail)
	return nil
}

// Format erases the whole region and starts an empty log.
func (s *Store) Format() error {
	if s.state == Mounting || s.state == Formatting {
		return status.ErrMountInProgress
	}
	s.state = Formatting
	s.l.Info("formatting log store", zap.Stringer("store", s))

	for i := range s.banks {
		if err := s.eraseBank(i); err != nil {
			s.state = Unmounted
			return err
		}
	}
	if err := s.dev.WriteBytes(s.banks[0].Start, encodeBankHeader(1)); err != nil {
		s.state = Unmounted
		return s.fail(err)
	}
	s.m.Formats.Inc()
	s.state = Unmounted
	s.writesSinceGC = 0
	return s.TryMount()
}

// MountOrFormat mounts the store, formatting the region if it cannot be mounted.
//
// When the region can't be mounted even after a format, the store halts.
func (s *Store) MountOrFormat() error {
	if s.state == Mounted {
		return nil
	}
	err := s.TryMount()
	if err == nil || errors.Is(err, status.ErrMountInProgress) {
		return err
	}
	if err = s.Format(); err == nil {
		return nil
	}
	err = status.ErrNotMounted.Wrap(err)
	s.l.Error("log store cannot be mounted nor formatted", zap.Stringer("store", s), zap.Error(err))
	s.halt(err)
	return err
}

func (s *Store) eraseBank(i int) error {
	for _, p := range s.banks[i].pages {
		if err := s.dev.ErasePage(p.Start); err != nil {
			return s.fail(err)
		}
	}
	return nil
}

// fail escalates a device error
func (s *Store) fail(err error) error {
	err = status.ErrFlash.Wrap(err)
	s.l.Error("flash failure", zap.Stringer("store", s), zap.Error(err))
	s.halt(err)
	return err
}

func (s *Store) reader(i int) *bankReader {
	return &bankReader{dev: s.dev, start: s.banks[i].Start}
}

// bankReader reads a bank with offsets relative to its start
type bankReader struct {
	dev   flash.Device
	start uint32
}

func (r *bankReader) ReadAt(p []byte, off int64) (int, error) {
	if err := r.dev.Read(r.start+uint32(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}
