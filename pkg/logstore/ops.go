package logstore

import (
	"github.com/golang/snappy"
	"github.com/oneconcern/flashfs/pkg/logstore/status"
	"go.uber.org/zap"
)

func validKey(key string) error {
	if len(key) == 0 || len(key) > MaxKeyLen {
		return status.ErrInvalidKey.WrapMessage("%q: keys are 1 to %d bytes long", key, MaxKeyLen)
	}
	return nil
}

// Write appends a record for key. Any previous record for the key is superseded.
//
// The store is compacted first when the record does not fit in the free
// space, or when free space runs low and enough writes happened since the
// last collection.
func (s *Store) Write(key string, data []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.MountOrFormat(); err != nil {
		return err
	}
	s.m.Op("write")

	flags := uint16(0)
	if s.compress && len(data) > 0 {
		if packed := snappy.Encode(nil, data); len(packed) < len(data) {
			data = packed
			flags |= flagSnappy
		}
	}
	return s.append(key, data, flags)
}

// Remove appends a tombstone for key
func (s *Store) Remove(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.MountOrFormat(); err != nil {
		return err
	}
	s.m.Op("remove")

	if _, ok := s.dir.Get([]byte(key)); !ok {
		return status.ErrNotFound.WrapMessage("%q", key)
	}
	return s.append(key, nil, flagTombstone)
}

func (s *Store) append(key string, data []byte, flags uint16) error {
	size := recordLen(uint32(len(key)), uint32(len(data)))
	if size > s.TotalSize() {
		return status.ErrTooLarge.WrapMessage("%q needs %d bytes, capacity is %d", key, size, s.TotalSize())
	}

	switch {
	case s.dirty:
		if err := s.gc("recovery", nil); err != nil {
			return err
		}
	case size > s.FreeSize():
		if err := s.gc("full", nil); err != nil {
			return err
		}
	case s.FreeSize()-size < s.lowWater && s.writesSinceGC >= s.minGCSpacing && s.tail-bankHeaderSize > s.live:
		if err := s.gc("lowwater", nil); err != nil {
			return err
		}
	}
	if size > s.FreeSize() {
		return status.ErrNoSpace.WrapMessage("%q needs %d bytes, %d left after compaction", key, size, s.FreeSize())
	}

	rec := encodeRecord(key, data, flags)
	offset := s.tail
	if err := s.dev.WriteBytes(s.banks[s.active].Start+offset, rec); err != nil {
		// the tail may be partially programmed
		s.dirty = true
		return s.fail(err)
	}
	s.tail += size
	s.records++
	s.writesSinceGC++

	if previous, ok := s.dir.Get([]byte(key)); ok {
		s.live -= previous.(Entry).length
	}
	if flags&flagTombstone != 0 {
		s.dir, _, _ = s.dir.Delete([]byte(key))
	} else {
		e := Entry{
			Key:        key,
			Size:       uint32(len(data)),
			Offset:     offset,
			Compressed: flags&flagSnappy != 0,
			stored:     uint32(len(data)),
			length:     size,
		}
		if e.Compressed {
			n, _ := snappy.DecodedLen(data)
			e.Size = uint32(n)
		}
		s.dir, _, _ = s.dir.Insert([]byte(key), e)
		s.live += size
	}

	s.m.Append(size)
	s.m.Free(s.FreeSize())
	s.l.Debug("appended record",
		zap.String("key", key),
		zap.Uint32("offset", offset),
		zap.Uint32("size", size),
		zap.Bool("tombstone", flags&flagTombstone != 0),
	)
	return nil
}

// Lookup returns the current entry for key
func (s *Store) Lookup(key string) (Entry, bool) {
	if s.MountOrFormat() != nil {
		return Entry{}, false
	}
	v, ok := s.dir.Get([]byte(key))
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Exists tells if a current record exists for key
func (s *Store) Exists(key string) bool {
	_, ok := s.Lookup(key)
	return ok
}

// Read copies the data of the current record for key into buf, and returns
// the number of bytes copied.
//
// With a nil buf, Read copies nothing and returns the size of the data, so
// that callers may allocate a buffer to fit.
func (s *Store) Read(key string, buf []byte) (int, error) {
	if err := s.MountOrFormat(); err != nil {
		return 0, err
	}
	s.m.Op("read")

	v, ok := s.dir.Get([]byte(key))
	if !ok {
		return 0, status.ErrNotFound.WrapMessage("%q", key)
	}
	e := v.(Entry)
	if buf == nil {
		return int(e.Size), nil
	}

	dataOffset := s.banks[s.active].Start + e.Offset + recordHeaderSize + pad(uint32(len(e.Key)))
	if !e.Compressed {
		n := len(buf)
		if n > int(e.Size) {
			n = int(e.Size)
		}
		if err := s.dev.Read(dataOffset, buf[:n]); err != nil {
			return 0, s.fail(err)
		}
		return n, nil
	}

	packed := make([]byte, e.stored)
	if err := s.dev.Read(dataOffset, packed); err != nil {
		return 0, s.fail(err)
	}
	data, err := snappy.Decode(nil, packed)
	if err != nil {
		return 0, status.ErrFlash.Wrap(err)
	}
	return copy(buf, data), nil
}

// Get returns a copy of the data of the current record for key
func (s *Store) Get(key string) ([]byte, error) {
	size, err := s.Read(key, nil)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := s.Read(key, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// DirRewind restarts the iteration over the directory.
//
// The iteration works on a snapshot of the directory taken by DirRewind:
// records written afterwards are not visited.
func (s *Store) DirRewind() error {
	if err := s.MountOrFormat(); err != nil {
		return err
	}
	s.cursor = s.dir.Root().Iterator()
	return nil
}

// DirRead returns the next entry of the directory, in key order.
// It returns false once all entries are visited.
func (s *Store) DirRead() (Entry, bool) {
	if s.cursor == nil {
		return Entry{}, false
	}
	_, v, ok := s.cursor.Next()
	if !ok {
		s.cursor = nil
		return Entry{}, false
	}
	return v.(Entry), true
}

// Walk visits, in key order, the current entries whose key starts with prefix.
// Walking stops when fn returns false.
func (s *Store) Walk(prefix string, fn func(Entry) bool) error {
	if err := s.MountOrFormat(); err != nil {
		return err
	}
	s.dir.Root().WalkPrefix([]byte(prefix), func(_ []byte, v interface{}) bool {
		return !fn(v.(Entry))
	})
	return nil
}
