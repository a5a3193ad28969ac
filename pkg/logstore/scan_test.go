package logstore

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBank lays out a bank image in memory
func buildBank(size int, generation uint32, records ...[]byte) []byte {
	b := bytes.Repeat([]byte{0xff}, size)
	copy(b, encodeBankHeader(generation))
	off := bankHeaderSize
	for _, rec := range records {
		copy(b[off:], rec)
		off += len(rec)
	}
	return b
}

func TestScan(t *testing.T) {
	img := buildBank(1024, 7,
		encodeRecord("a", []byte("1"), 0),
		encodeRecord("b", []byte("22"), 0),
		encodeRecord("a", []byte("333"), 0),
		encodeRecord("b", nil, flagTombstone),
		encodeRecord("c", []byte("4444"), 0),
	)

	gen, ok := decodeBankHeader(img)
	require.True(t, ok)
	assert.Equal(t, uint32(7), gen)

	p, err := Scan(bytes.NewReader(img), 1024)
	require.NoError(t, err)
	assert.False(t, p.Dirty)
	assert.Equal(t, 5, p.Records)
	assert.Equal(t, 2, p.Dir.Len())
	assert.Equal(t, uint32(bankHeaderSize+4*24+20), p.Tail)
	assert.Equal(t, uint32(48), p.Live)

	v, ok := p.Dir.Get([]byte("a"))
	require.True(t, ok)
	e := v.(Entry)
	assert.Equal(t, uint32(3), e.Size)
	assert.Equal(t, uint32(bankHeaderSize+48), e.Offset)

	_, ok = p.Dir.Get([]byte("b"))
	assert.False(t, ok)
}

func TestScanCorruption(t *testing.T) {
	good := encodeRecord("a", []byte("1"), 0)
	bad := encodeRecord("b", []byte("2"), 0)
	bad[len(bad)-4] ^= 0x01 // flip a data bit

	img := buildBank(1024, 1, good, bad, encodeRecord("c", []byte("3"), 0))
	p, err := Scan(bytes.NewReader(img), 1024)
	require.NoError(t, err)
	assert.True(t, p.Dirty)
	assert.Equal(t, 1, p.Records)
	assert.Equal(t, uint32(bankHeaderSize+len(good)), p.Tail)

	// record overflowing the bank
	img = buildBank(64, 1, encodeRecord("key", make([]byte, 40), 0))
	p, err = Scan(bytes.NewReader(img), 64)
	require.NoError(t, err)
	assert.True(t, p.Dirty)
	assert.Zero(t, p.Dir.Len())

	// header torn after its first two words: data length and checksum still erased
	torn := []byte{0x52, 0x4c, 0, 0, 1, 0, 0, 0, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	img = buildBank(1024, 1, good, torn)
	require.NotPanics(t, func() {
		p, err = Scan(bytes.NewReader(img), 1024)
	})
	require.NoError(t, err)
	assert.True(t, p.Dirty)
	assert.Equal(t, 1, p.Records)
	assert.Equal(t, uint32(bankHeaderSize+len(good)), p.Tail)
}

func TestDecodeRecordHeaderBounds(t *testing.T) {
	rec := encodeRecord("key", make([]byte, 40), 0)
	need := uint32(len(rec) - recordHeaderSize)

	_, ok := decodeRecordHeader(rec, need)
	assert.True(t, ok)
	_, ok = decodeRecordHeader(rec, need-1)
	assert.False(t, ok)

	for _, dataLen := range []uint32{0xfffffffd, 0xfffffffe, 0xffffffff} {
		hdr := append([]byte(nil), rec[:recordHeaderSize]...)
		binary.LittleEndian.PutUint32(hdr[8:], dataLen)
		_, ok = decodeRecordHeader(hdr, 1<<20)
		assert.False(t, ok, "data length %#x", dataLen)
	}
}

func TestScanEmpty(t *testing.T) {
	img := buildBank(256, 1)
	p, err := Scan(bytes.NewReader(img), 256)
	require.NoError(t, err)
	assert.False(t, p.Dirty)
	assert.Zero(t, p.Records)
	assert.Equal(t, uint32(bankHeaderSize), p.Tail)
}

func TestBankHeader(t *testing.T) {
	h := encodeBankHeader(42)
	gen, ok := decodeBankHeader(h)
	assert.True(t, ok)
	assert.Equal(t, uint32(42), gen)

	h[8] = 43
	_, ok = decodeBankHeader(h)
	assert.False(t, ok, "checksum mismatch")

	_, ok = decodeBankHeader(bytes.Repeat([]byte{0xff}, bankHeaderSize))
	assert.False(t, ok, "erased")
}
