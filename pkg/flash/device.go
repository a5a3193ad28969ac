package flash

import (
	"fmt"
	"unsafe"

	"github.com/oneconcern/flashfs/pkg/flash/status"
)

const (
	wordSize = 4
	erased   = 0xff
)

// Device is the contract of a NOR flash part.
//
// All operations are synchronous: they return once the controller reports
// completion.
type Device interface {
	// Base is the address the part is mapped at
	Base() uint32

	// PageSize returns the erase size of the page covering address.
	// An address past the capacity of the part is a fatal error.
	PageSize(address uint32) uint32

	// TotalSize returns the capacity of the part, as reported by the device identification register
	TotalSize() uint32

	// ErasePage sets every byte of the page covering address to 0xff
	ErasePage(address uint32) error

	// WriteBytes programs src at dst. dst, src and len(src) must be 4-byte aligned,
	// and every destination byte must be erased unless the source byte is 0xff.
	WriteBytes(dst uint32, src []byte) error

	// Read copies len(p) bytes starting at address
	Read(address uint32, p []byte) error
}

// Halter stops the device after a violation of the flash contract.
//
// A Halter is not expected to return. If it does, the operation that
// triggered it fails.
type Halter func(error)

// FatalError is raised by the default Halter
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("flash: device halted: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Panic is the default Halter: it panics with a *FatalError
func Panic(err error) {
	panic(&FatalError{Err: err})
}

// Page is an erase unit
type Page struct {
	Start uint32
	Size  uint32
}

// End address (excluded) of the page
func (p Page) End() uint32 {
	return p.Start + p.Size
}

// Region is a range of flash addresses
type Region struct {
	Start uint32 `json:"start" yaml:"start"`
	Size  uint32 `json:"size" yaml:"size"`
}

// End address (excluded) of the region
func (r Region) End() uint32 {
	return r.Start + r.Size
}

// IsZero tells if the region is empty
func (r Region) IsZero() bool {
	return r.Size == 0
}

// Contains tells if address lies in the region
func (r Region) Contains(address uint32) bool {
	return address >= r.Start && address < r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("[%#08x, %#08x)", r.Start, r.End())
}

// Pages lists the pages covering a region.
//
// The region must start and end on page boundaries. Pages are located by
// walking the page table from the bottom of the part, the way the
// controller numbers sectors.
func Pages(d Device, r Region) ([]Page, error) {
	if r.IsZero() {
		return nil, status.ErrGeometry.WrapMessage("empty region")
	}
	base := d.Base()
	if r.Start < base || r.End() > base+d.TotalSize() {
		return nil, status.ErrOutOfRange.WrapMessage("region %v", r)
	}

	addr := base
	for addr < r.Start {
		size := d.PageSize(addr)
		if size == 0 {
			return nil, status.ErrGeometry.WrapMessage("page table exhausted at %#08x", addr)
		}
		addr += size
	}
	if addr != r.Start {
		return nil, status.ErrGeometry.WrapMessage("region %v does not start on a page boundary", r)
	}

	var pages []Page
	for addr < r.End() {
		size := d.PageSize(addr)
		if size == 0 {
			return nil, status.ErrGeometry.WrapMessage("page table exhausted at %#08x", addr)
		}
		pages = append(pages, Page{Start: addr, Size: size})
		addr += size
	}
	if addr != r.End() {
		return nil, status.ErrGeometry.WrapMessage("region %v does not end on a page boundary", r)
	}
	return pages, nil
}

// Buffer allocates a byte slice suitable as a WriteBytes source: its
// backing array is word aligned, which a plain []byte does not guarantee.
func Buffer(size int) []byte {
	if size <= 0 {
		return []byte{}
	}
	w := make([]uint32, (size+wordSize-1)/wordSize)
	return unsafe.Slice((*byte)(unsafe.Pointer(&w[0])), size)
}
