package flash

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"unsafe"

	"github.com/oneconcern/flashfs/pkg/dlogger"
	"github.com/oneconcern/flashfs/pkg/flash/status"
	"github.com/oneconcern/flashfs/pkg/metrics"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var _ Device = &Emulator{}

// Emulator is a NOR flash part backed by an image file.
//
// The image holds the whole part, from Base up to its capacity. A missing
// or empty image is created as a blank part (all ones).
type Emulator struct {
	geo    Geometry
	sizeKB uint16
	path   string
	image  afero.File
	halt   Halter
	l      *zap.Logger
	m      *metrics.Flash
	cache  dataCache
}

// dataCache mirrors the controller data cache: it holds the last page read.
// It must be reset after an erase.
type dataCache struct {
	valid bool
	start uint32
	data  []byte
}

func (c *dataCache) invalidate() {
	c.valid = false
}

// NewEmulator opens (or creates) a flash image at path on fs
func NewEmulator(fs afero.Fs, path string, geo Geometry, opts ...Option) (*Emulator, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	e := &Emulator{
		geo:    geo,
		sizeKB: uint16(geo.Capacity() / 1024),
		path:   path,
		halt:   Panic,
		l:      dlogger.MustGetLogger(dlogger.LogLevelInfo),
		m:      metrics.Discard().Flash,
	}
	for _, apply := range opts {
		apply(e)
	}
	if e.TotalSize() > geo.Capacity() {
		return nil, status.ErrGeometry.WrapMessage("size register reports %d KiB, page table covers %d bytes", e.sizeKB, geo.Capacity())
	}

	image, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, status.ErrImage.Wrap(err)
	}
	info, err := image.Stat()
	if err != nil {
		_ = image.Close()
		return nil, status.ErrImage.Wrap(err)
	}
	e.image = image

	switch info.Size() {
	case int64(geo.Capacity()):
	case 0:
		e.l.Info("creating blank flash image", zap.String("image", path), zap.Uint32("capacity", geo.Capacity()))
		if err := e.blank(); err != nil {
			_ = image.Close()
			return nil, err
		}
	default:
		_ = image.Close()
		return nil, status.ErrGeometry.WrapMessage("image %s has %d bytes, page table expects %d", path, info.Size(), geo.Capacity())
	}
	return e, nil
}

// Close the backing image
func (e *Emulator) Close() error {
	if e.image == nil {
		return nil
	}
	err := e.image.Close()
	e.image = nil
	if err != nil {
		return status.ErrImage.Wrap(err)
	}
	return nil
}

func (e *Emulator) String() string {
	return "flash@" + e.path
}

// Geometry of the emulated part
func (e *Emulator) Geometry() Geometry {
	return e.geo
}

// Base address of the part
func (e *Emulator) Base() uint32 {
	return e.geo.Base
}

// TotalSize reads the device identification register
func (e *Emulator) TotalSize() uint32 {
	return uint32(e.sizeKB) * 1024
}

// PageSize returns the erase size of the page covering address
func (e *Emulator) PageSize(address uint32) uint32 {
	start, size, ok := e.geo.page(address)
	if !ok || e.geo.offset(start) >= e.TotalSize() {
		e.halt(status.ErrOutOfRange.WrapMessage("no page at %#08x", address))
		return 0
	}
	return size
}

// ErasePage sets the page covering address to all ones
func (e *Emulator) ErasePage(address uint32) error {
	size := e.PageSize(address)
	if size == 0 {
		e.m.Reject("range")
		return status.ErrOutOfRange.WrapMessage("no page at %#08x", address)
	}
	start, _, _ := e.geo.page(address)
	if e.geo.Protected(start) {
		e.m.Reject("protected")
		return status.ErrProtectedRegion.WrapMessage("erase page at %#08x", start)
	}

	if _, err := e.image.WriteAt(bytes.Repeat([]byte{erased}, int(size)), int64(e.geo.offset(start))); err != nil {
		return status.ErrImage.Wrap(err)
	}

	// erasing leaves stale lines in the data cache, programming does not
	e.cache.invalidate()

	e.m.Erase(size)
	e.l.Debug("erased flash page", zap.Uint32("address", start), zap.Uint32("size", size))
	return nil
}

// WriteBytes programs src at dst, one word at a time
func (e *Emulator) WriteBytes(dst uint32, src []byte) error {
	e.l.Debug("WR flash", zap.Uint32("address", dst), zap.Int("len", len(src)))

	if !aligned(dst, src) {
		e.m.Reject("misaligned")
		return status.ErrMisaligned.WrapMessage("dst=%#08x len=%d", dst, len(src))
	}
	if len(src) == 0 {
		return nil
	}
	off := e.geo.offset(dst)
	if uint64(off)+uint64(len(src)) > uint64(e.TotalSize()) {
		e.m.Reject("range")
		return status.ErrOutOfRange.WrapMessage("write %d bytes at %#08x", len(src), dst)
	}
	if e.geo.Protected(dst) {
		e.m.Reject("protected")
		return status.ErrProtectedRegion.WrapMessage("write at %#08x", dst)
	}

	current := make([]byte, len(src))
	if err := e.readImage(off, current); err != nil {
		return err
	}
	for i := range src {
		if current[i] != erased && src[i] != erased {
			e.m.Reject("bitset")
			return status.ErrBitSet.WrapMessage("at %#08x", dst+uint32(i))
		}
	}

	var programmed, skipped int
	word := make([]byte, wordSize)
	for w := 0; w < len(src); w += wordSize {
		if binary.LittleEndian.Uint32(src[w:]) == 0xffffffff {
			skipped++
			continue
		}
		for i := 0; i < wordSize; i++ {
			word[i] = current[w+i] & src[w+i]
		}
		if _, err := e.image.WriteAt(word, int64(off)+int64(w)); err != nil {
			e.m.Program(programmed, skipped)
			return status.ErrImage.Wrap(err)
		}
		e.cache.update(dst+uint32(w), word)
		programmed++
	}

	e.m.Program(programmed, skipped)
	e.l.Debug("WR flash OK", zap.Int("programmed", programmed), zap.Int("skipped", skipped))
	return nil
}

// Read copies len(p) bytes starting at address
func (e *Emulator) Read(address uint32, p []byte) error {
	off := e.geo.offset(address)
	if uint64(off)+uint64(len(p)) > uint64(e.TotalSize()) {
		return status.ErrOutOfRange.WrapMessage("read %d bytes at %#08x", len(p), address)
	}
	if len(p) == 0 {
		return nil
	}

	start, size, _ := e.geo.page(address)
	if address-start+uint32(len(p)) > size {
		// spans several pages: bypass the cache
		return e.readImage(off, p)
	}
	if !e.cache.valid || e.cache.start != start {
		if cap(e.cache.data) < int(size) {
			e.cache.data = make([]byte, size)
		}
		e.cache.data = e.cache.data[:size]
		if err := e.readImage(e.geo.offset(start), e.cache.data); err != nil {
			e.cache.invalidate()
			return err
		}
		e.cache.start = start
		e.cache.valid = true
	}
	copy(p, e.cache.data[address-start:])
	return nil
}

func (e *Emulator) readImage(off uint32, p []byte) error {
	n, err := e.image.ReadAt(p, int64(off))
	if err != nil && !(err == io.EOF && n == len(p)) {
		return status.ErrImage.Wrap(err)
	}
	return nil
}

func (e *Emulator) blank() error {
	const chunk = 16 * 1024
	buf := bytes.Repeat([]byte{erased}, chunk)
	capacity := int64(e.geo.Capacity())
	for pos := int64(0); pos < capacity; pos += chunk {
		n := capacity - pos
		if n > chunk {
			n = chunk
		}
		if _, err := e.image.WriteAt(buf[:n], pos); err != nil {
			return status.ErrImage.Wrap(err)
		}
	}
	return nil
}

func (c *dataCache) update(address uint32, word []byte) {
	if !c.valid || address < c.start || address+uint32(len(word)) > c.start+uint32(len(c.data)) {
		return
	}
	copy(c.data[address-c.start:], word)
}

func aligned(dst uint32, src []byte) bool {
	if dst%wordSize != 0 || len(src)%wordSize != 0 {
		return false
	}
	if len(src) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&src[0]))%wordSize == 0
}
