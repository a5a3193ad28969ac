package logstore

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/oneconcern/flashfs/pkg/flash"
)

const (
	// MaxKeyLen is the maximum length of a key, in bytes
	MaxKeyLen = 64

	// FormatVersion is written in every bank header. Banks with another version do not mount.
	FormatVersion uint16 = 1

	bankHeaderSize   = 16
	recordHeaderSize = 16

	bankMagic   uint32 = 0x464c4b56 // FLKV
	recordMagic uint16 = 0x4c52

	flagTombstone uint16 = 1 << 0
	flagSnappy    uint16 = 1 << 1

	erasedWord uint32 = 0xffffffff
)

func pad(n uint32) uint32 {
	return (n + 3) &^ 3
}

func recordLen(keyLen, dataLen uint32) uint32 {
	return recordHeaderSize + pad(keyLen) + pad(dataLen)
}

type recordHeader struct {
	flags   uint16
	keyLen  uint16
	dataLen uint32
	crc     uint32
}

func (h recordHeader) len() uint32 {
	return recordLen(uint32(h.keyLen), h.dataLen)
}

func (h recordHeader) tombstone() bool {
	return h.flags&flagTombstone != 0
}

func (h recordHeader) compressed() bool {
	return h.flags&flagSnappy != 0
}

// decodeRecordHeader validates a record header followed by room bytes of bank.
// Lengths of a torn header may be erased, so they are bounded before any
// padding arithmetic.
func decodeRecordHeader(b []byte, room uint32) (recordHeader, bool) {
	word0 := binary.LittleEndian.Uint32(b[0:])
	if uint16(word0) != recordMagic {
		return recordHeader{}, false
	}
	h := recordHeader{
		flags:   uint16(word0 >> 16),
		keyLen:  binary.LittleEndian.Uint16(b[4:]),
		dataLen: binary.LittleEndian.Uint32(b[8:]),
		crc:     binary.LittleEndian.Uint32(b[12:]),
	}
	if h.keyLen == 0 || h.keyLen > MaxKeyLen {
		return recordHeader{}, false
	}
	if h.flags&^(flagTombstone|flagSnappy) != 0 {
		return recordHeader{}, false
	}
	if uint64(pad(uint32(h.keyLen)))+(uint64(h.dataLen)+3)&^3 > uint64(room) {
		return recordHeader{}, false
	}
	return h, true
}

func checksum(header, key, data []byte) uint32 {
	c := crc32.NewIEEE()
	_, _ = c.Write(header[:12])
	_, _ = c.Write(key)
	_, _ = c.Write(data)
	return c.Sum32()
}

// encodeRecord lays out a record in a word aligned buffer, ready to program
func encodeRecord(key string, data []byte, flags uint16) []byte {
	keyLen, dataLen := uint32(len(key)), uint32(len(data))
	b := flash.Buffer(int(recordLen(keyLen, dataLen)))

	binary.LittleEndian.PutUint32(b[0:], uint32(recordMagic)|uint32(flags)<<16)
	binary.LittleEndian.PutUint16(b[4:], uint16(keyLen))
	binary.LittleEndian.PutUint32(b[8:], dataLen)
	k := b[recordHeaderSize : recordHeaderSize+keyLen]
	copy(k, key)
	d := b[recordHeaderSize+pad(keyLen) : recordHeaderSize+pad(keyLen)+dataLen]
	copy(d, data)
	binary.LittleEndian.PutUint32(b[12:], checksum(b, k, d))
	return b
}

func encodeBankHeader(generation uint32) []byte {
	b := flash.Buffer(bankHeaderSize)
	binary.LittleEndian.PutUint32(b[0:], bankMagic)
	binary.LittleEndian.PutUint16(b[4:], FormatVersion)
	binary.LittleEndian.PutUint32(b[8:], generation)
	binary.LittleEndian.PutUint32(b[12:], crc32.ChecksumIEEE(b[:12]))
	return b
}

func decodeBankHeader(b []byte) (uint32, bool) {
	if binary.LittleEndian.Uint32(b[0:]) != bankMagic {
		return 0, false
	}
	if binary.LittleEndian.Uint16(b[4:]) != FormatVersion {
		return 0, false
	}
	if binary.LittleEndian.Uint32(b[12:]) != crc32.ChecksumIEEE(b[:12]) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[8:]), true
}
