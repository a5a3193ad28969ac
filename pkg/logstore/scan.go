package logstore

import (
	"encoding/binary"
	"io"

	"github.com/golang/snappy"
	iradix "github.com/hashicorp/go-immutable-radix"
)

// Entry describes the current record of a key
type Entry struct {
	Key string

	// Size of the data, as returned by Read
	Size uint32

	// Offset of the record in its bank
	Offset uint32

	// Compressed is set when data is stored snappy encoded
	Compressed bool

	stored uint32
	length uint32
}

// StoredSize is the number of data bytes stored in flash
func (e Entry) StoredSize() uint32 {
	return e.stored
}

// Projection is the view of the log resulting from a scan
type Projection struct {
	// Dir maps keys to their current Entry
	Dir *iradix.Tree

	// Tail is the offset where the next record is appended
	Tail uint32

	// Records counts all valid records, including superseded ones and tombstones
	Records int

	// Live is the number of bytes occupied by current records
	Live uint32

	// Dirty is set when the scan stopped on something other than erased flash.
	// The bank must be compacted before anything is appended.
	Dirty bool
}

// Scan replays the records of a bank of the given size, oldest first, and
// projects them as a directory.
//
// The scan stops at the first erased word where a record header is expected,
// or at the first invalid record. Anything found past this point makes the
// projection dirty.
func Scan(r io.ReaderAt, size uint32) (*Projection, error) {
	txn := iradix.New().Txn()
	p := &Projection{Tail: bankHeaderSize}

	hdr := make([]byte, recordHeaderSize)
	off := uint32(bankHeaderSize)
	for off+recordHeaderSize <= size {
		if _, err := r.ReadAt(hdr, int64(off)); err != nil {
			return nil, err
		}
		if binary.LittleEndian.Uint32(hdr) == erasedWord {
			break
		}
		h, ok := decodeRecordHeader(hdr, size-off-recordHeaderSize)
		if !ok {
			p.Dirty = true
			break
		}
		body := make([]byte, h.len()-recordHeaderSize)
		if _, err := r.ReadAt(body, int64(off+recordHeaderSize)); err != nil {
			return nil, err
		}
		key := body[:h.keyLen]
		data := body[pad(uint32(h.keyLen)) : pad(uint32(h.keyLen))+h.dataLen]
		if checksum(hdr, key, data) != h.crc {
			p.Dirty = true
			break
		}

		p.Records++
		if h.tombstone() {
			txn.Delete(key)
		} else {
			e := Entry{
				Key:        string(key),
				Size:       h.dataLen,
				Offset:     off,
				Compressed: h.compressed(),
				stored:     h.dataLen,
				length:     h.len(),
			}
			if e.Compressed {
				n, err := snappy.DecodedLen(data)
				if err != nil {
					p.Records--
					p.Dirty = true
					break
				}
				e.Size = uint32(n)
			}
			txn.Insert(key, e)
		}
		off += h.len()
	}
	p.Tail = off

	if !p.Dirty {
		clean, err := erasedFrom(r, off, size)
		if err != nil {
			return nil, err
		}
		p.Dirty = !clean
	}

	p.Dir = txn.Commit()
	p.Dir.Root().Walk(func(_ []byte, v interface{}) bool {
		p.Live += v.(Entry).length
		return false
	})
	return p, nil
}

// erasedFrom checks that [from, to) is erased
func erasedFrom(r io.ReaderAt, from, to uint32) (bool, error) {
	const chunk = 1024
	buf := make([]byte, chunk)
	for pos := from; pos < to; pos += chunk {
		n := to - pos
		if n > chunk {
			n = chunk
		}
		if _, err := r.ReadAt(buf[:n], int64(pos)); err != nil {
			return false, err
		}
		for _, b := range buf[:n] {
			if b != 0xff {
				return false, nil
			}
		}
	}
	return true, nil
}
