package flash

import "github.com/docker/go-units"

// LargeStoreSize is the size of the region reserved at the top of flash
// for large binary objects, e.g. ML models
const LargeStoreSize = 128 * units.KiB

// LargeStore returns the region at the top of the part reserved for large
// objects. The area may already be occupied by the program, whose image
// ends at programEnd: the returned region is then empty.
func LargeStore(d Device, programEnd uint32) Region {
	if d.TotalSize() < LargeStoreSize {
		return Region{}
	}
	top := d.Base() + d.TotalSize()
	if top-LargeStoreSize < programEnd {
		return Region{}
	}
	return Region{Start: top - LargeStoreSize, Size: LargeStoreSize}
}
