package flash

import (
	"github.com/docker/go-units"
	"github.com/oneconcern/flashfs/pkg/flash/status"
)

// Sector describes a run of pages sharing the same erase size
type Sector struct {
	Size  uint32 `json:"size" yaml:"size"`
	Count int    `json:"count" yaml:"count"`
}

// Geometry is the page table of a flash part.
//
// Pages are listed from the bottom of the part upward. The first BootSize
// bytes hold the bootloader and are never erased or programmed.
type Geometry struct {
	Base     uint32   `json:"base" yaml:"base"`
	Sectors  []Sector `json:"sectors" yaml:"sectors"`
	BootSize uint32   `json:"bootSize" yaml:"bootSize"`
}

// STM32F4 is the page table of a 1MB STM32F4 part: 4 x 16KiB, 1 x 64KiB
// then 7 x 128KiB, mapped at 0x08000000, with an 8KiB boot region.
var STM32F4 = Geometry{
	Base: 0x08000000,
	Sectors: []Sector{
		{Size: 16 * units.KiB, Count: 4},
		{Size: 64 * units.KiB, Count: 1},
		{Size: 128 * units.KiB, Count: 7},
	},
	BootSize: 0x2000,
}

// Capacity is the sum of all page sizes
func (g Geometry) Capacity() uint32 {
	var total uint32
	for _, s := range g.Sectors {
		total += s.Size * uint32(s.Count)
	}
	return total
}

// Validate the page table
func (g Geometry) Validate() error {
	if len(g.Sectors) == 0 {
		return status.ErrGeometry.WrapMessage("empty page table")
	}
	for _, s := range g.Sectors {
		if s.Size == 0 || s.Size%wordSize != 0 || s.Count <= 0 {
			return status.ErrGeometry.WrapMessage("invalid sector %d x %d bytes", s.Count, s.Size)
		}
	}
	if g.BootSize >= g.Capacity() {
		return status.ErrGeometry.WrapMessage("boot region covers the whole part")
	}
	return nil
}

// offset turns an absolute address into an offset from the bottom of the part.
// Addresses below Base are already offsets.
func (g Geometry) offset(address uint32) uint32 {
	if address >= g.Base {
		return address - g.Base
	}
	return address
}

// page returns the absolute start address and the size of the page covering address
func (g Geometry) page(address uint32) (uint32, uint32, bool) {
	off := g.offset(address)
	var pos uint32
	for _, s := range g.Sectors {
		for i := 0; i < s.Count; i++ {
			if off < pos+s.Size {
				return g.Base + pos, s.Size, true
			}
			pos += s.Size
		}
	}
	return 0, 0, false
}

// Protected tells if a range starting at address intersects the boot region
func (g Geometry) Protected(address uint32) bool {
	if g.BootSize == 0 {
		return false
	}
	// the boot region starts at the bottom of the part
	return g.offset(address) < g.BootSize
}
