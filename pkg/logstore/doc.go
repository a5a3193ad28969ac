/*
Package logstore implements a log-structured key/value store over a region of NOR flash.

# Layout

The region is split in two banks, on a page boundary. Only one bank is
active at a time: the one carrying a valid header with the highest
generation. Records are appended to the active bank, right after its header:

	bank header (16 bytes)
	  magic "FLKV" | version | reserved | generation | crc32
	record header (16 bytes, little endian)
	  magic 0x4c52, flags | key length, reserved | data length | crc32
	key, padded to 4 bytes
	data, padded to 4 bytes

A record is never modified once written. The latest record for a key wins,
and a tombstone record marks the key as removed.

# Directory

The directory is a projection of the log, rebuilt by Scan each time a bank
is mounted. It is held in RAM as an immutable radix tree, so iterators keep
a consistent snapshot while the log moves on.

# Garbage collection

A collection erases the inactive bank, copies the current records worth
keeping, then writes the bank header with the next generation. Until this
last write, the previous bank remains the active one: a power loss during
a collection loses nothing.

# Errors

Logical errors (not found, no space) are returned to the caller. Errors
reported by the flash device are violations of the flash contract: they
are escalated to the Halter.
*/
package logstore
