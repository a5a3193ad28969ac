package logstore

import (
	"github.com/oneconcern/flashfs/pkg/flash"
	"go.uber.org/zap"
)

// ForceGC compacts the log, keeping the current records of the keys for
// which keep returns true. All other keys are dropped.
//
// A nil keep retains all current records.
func (s *Store) ForceGC(keep func(key string) bool) error {
	if err := s.MountOrFormat(); err != nil {
		return err
	}
	s.m.Op("gc")
	return s.gc("forced", keep)
}

func (s *Store) gc(trigger string, keep func(string) bool) error {
	from, to := s.active, 1-s.active
	before := s.tail
	s.l.Info("compacting log store",
		zap.String("trigger", trigger),
		zap.Int("from", from),
		zap.Int("to", to),
		zap.Uint32("used", s.tail-bankHeaderSize),
		zap.Uint32("live", s.live),
	)

	if err := s.eraseBank(to); err != nil {
		return err
	}

	var (
		dst     = uint32(bankHeaderSize)
		dropped int
		err     error
	)
	src, dstStart := s.banks[from].Start, s.banks[to].Start
	s.dir.Root().Walk(func(_ []byte, v interface{}) bool {
		e := v.(Entry)
		if keep != nil && !keep(e.Key) {
			dropped++
			return false
		}
		rec := flash.Buffer(int(e.length))
		if err = s.dev.Read(src+e.Offset, rec); err != nil {
			return true
		}
		if err = s.dev.WriteBytes(dstStart+dst, rec); err != nil {
			return true
		}
		dst += e.length
		return false
	})
	if err != nil {
		return s.fail(err)
	}

	// commit: the new bank supersedes the old one only once its header is written
	generation := s.generation + 1
	if err := s.dev.WriteBytes(dstStart, encodeBankHeader(generation)); err != nil {
		return s.fail(err)
	}
	if err := s.load(to, generation); err != nil {
		return err
	}
	s.writesSinceGC = 0

	var reclaimed uint32
	if before > s.tail {
		reclaimed = before - s.tail
	}
	s.m.GC(trigger, reclaimed)
	s.l.Info("log store compacted",
		zap.String("trigger", trigger),
		zap.Int("bank", s.active),
		zap.Uint32("generation", s.generation),
		zap.Int("dropped", dropped),
		zap.Uint32("reclaimed", reclaimed),
		zap.Uint32("free", s.FreeSize()),
	)
	return nil
}
