// Package flash exposes NOR flash as erase and program primitives.
//
// A NOR part only clears bits when programmed: an erase sets a whole page
// to all ones, a program may then turn any 1 bit into a 0, never the
// opposite. Pages are the erase unit and their size depends on the address
// (small sectors at the bottom of the part, larger ones above).
//
// The Device interface captures this contract. Emulator implements it over
// an afero file, so that flash images can live on disk or in memory.
//
// Violations of the contract (misaligned writes, attempts to set a bit,
// touching the boot region, addressing past the part) are programming errors.
// The driver rejects them before any state is changed and reports them as
// errors; addressing a page past the capacity of the part invokes the Halter.
package flash
