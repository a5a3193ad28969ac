// Package status declares error constants returned by the flash driver.
package status

import "github.com/oneconcern/flashfs/pkg/errors"

var (
	// ErrMisaligned indicates that a write destination, source or length is not a multiple of 4 bytes
	ErrMisaligned = errors.New("misaligned flash write")

	// ErrBitSet indicates an attempt to program a 1 bit over a programmed 0 bit
	ErrBitSet = errors.New("flash write would set programmed bits")

	// ErrProtectedRegion indicates an erase or write that intersects the boot region
	ErrProtectedRegion = errors.New("flash operation touches the protected boot region")

	// ErrOutOfRange indicates an address past the capacity of the flash part
	ErrOutOfRange = errors.New("flash address out of range")

	// ErrGeometry indicates an invalid page table or image size
	ErrGeometry = errors.New("invalid flash geometry")

	// ErrImage indicates a failure when accessing the backing image of an emulated part
	ErrImage = errors.New("flash image I/O error")
)
