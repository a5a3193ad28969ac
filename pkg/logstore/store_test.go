package logstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/oneconcern/flashfs/internal/rand"
	"github.com/oneconcern/flashfs/pkg/errors"
	"github.com/oneconcern/flashfs/pkg/flash"
	"github.com/oneconcern/flashfs/pkg/logstore/status"
	"github.com/oneconcern/flashfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// 4 x 1KiB, 4 x 4KiB: the store uses the 4KiB pages, 8KiB per bank
var (
	testGeometry = flash.Geometry{
		Base: 0x08000000,
		Sectors: []flash.Sector{
			{Size: 1024, Count: 4},
			{Size: 4096, Count: 4},
		},
		BootSize: 1024,
	}
	testRegion = flash.Region{Start: 0x08001000, Size: 0x4000}
)

const testCapacity = 8192 - bankHeaderSize

func setupDevice(t testing.TB) *flash.Emulator {
	dev, err := flash.NewEmulator(afero.NewMemMapFs(), "/flash.img", testGeometry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func setupStore(t testing.TB, opts ...Option) (*Store, flash.Device) {
	dev := setupDevice(t)
	s, err := New(dev, testRegion, opts...)
	require.NoError(t, err)
	require.NoError(t, s.MountOrFormat())
	return s, dev
}

func TestNew(t *testing.T) {
	dev := setupDevice(t)

	s, err := New(dev, testRegion)
	require.NoError(t, err)
	assert.Equal(t, Unmounted, s.State())
	assert.Equal(t, uint32(testCapacity), s.TotalSize())
	assert.Equal(t, flash.Region{Start: 0x08001000, Size: 0x2000}, s.banks[0].Region)
	assert.Equal(t, flash.Region{Start: 0x08003000, Size: 0x2000}, s.banks[1].Region)

	_, err = New(dev, flash.Region{Start: 0x08001000, Size: 0x1000})
	assert.True(t, errors.Is(err, status.ErrBadRegion), "a single page")

	_, err = New(dev, flash.Region{Start: 0x08001100, Size: 0x1000})
	assert.True(t, errors.Is(err, status.ErrBadRegion), "not on a page boundary")

	// uneven pages: 1KiB + 1KiB | 4KiB, the smaller bank bounds the capacity
	s, err = New(dev, flash.Region{Start: 0x08000800, Size: 0x1800})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x800), s.banks[0].Size)
	assert.Equal(t, uint32(0x1000), s.banks[1].Size)
	assert.Equal(t, uint32(0x800-bankHeaderSize), s.TotalSize())
}

func TestMountBlank(t *testing.T) {
	dev := setupDevice(t)
	s, err := New(dev, testRegion)
	require.NoError(t, err)

	err = s.TryMount()
	assert.True(t, errors.Is(err, status.ErrNotFormatted))
	assert.Equal(t, Unmounted, s.State())
	assert.Zero(t, s.FreeSize())

	// first access formats the region
	assert.False(t, s.Exists("a.config"))
	assert.Equal(t, Mounted, s.State())
	assert.Equal(t, uint32(testCapacity), s.FreeSize())

	stats := s.Stats()
	assert.Equal(t, uint32(1), stats.Generation)
	assert.Equal(t, 0, stats.Bank)
	assert.Equal(t, "mounted", stats.State)
}

func TestScenarioConfig(t *testing.T) {
	s, _ := setupStore(t)

	require.NoError(t, s.Write("a.config", []byte{1, 2, 3}))
	data, err := s.Get("a.config")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	require.NoError(t, s.Remove("a.config"))
	assert.False(t, s.Exists("a.config"))
	_, err = s.Get("a.config")
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func TestRoundTrip(t *testing.T) {
	s, _ := setupStore(t)

	expected := make(map[string][]byte)
	for _, key := range rand.Names(20, 8, ".bin") {
		data := rand.Bytes(rand.Intn(200))
		expected[key] = data
		require.NoError(t, s.Write(key, data))
	}
	for key, data := range expected {
		actual, err := s.Get(key)
		require.NoError(t, err)
		assert.Equal(t, data, actual, key)
	}
}

func TestOverwrite(t *testing.T) {
	s, _ := setupStore(t)

	require.NoError(t, s.Write("k", []byte("v1")))
	require.NoError(t, s.Write("k", []byte("version 2")))
	data, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "version 2", string(data))

	stats := s.Stats()
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Keys)
	assert.Equal(t, recordLen(1, 9), stats.Live)
}

func TestRead(t *testing.T) {
	s, _ := setupStore(t)
	require.NoError(t, s.Write("k", []byte("0123456789")))

	n, err := s.Read("k", nil)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	buf := make([]byte, 4)
	n, err = s.Read("k", buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123", string(buf))

	buf = make([]byte, 20)
	n, err = s.Read("k", buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	require.NoError(t, s.Write("empty", nil))
	data, err := s.Get("empty")
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.True(t, s.Exists("empty"))

	_, err = s.Read("missing", nil)
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func TestInvalidKeys(t *testing.T) {
	s, _ := setupStore(t)

	assert.True(t, errors.Is(s.Write("", []byte("x")), status.ErrInvalidKey))
	assert.True(t, errors.Is(s.Write(rand.LetterString(MaxKeyLen+1), []byte("x")), status.ErrInvalidKey))
	assert.NoError(t, s.Write(rand.LetterString(MaxKeyLen), []byte("x")))

	assert.True(t, errors.Is(s.Write("big", make([]byte, testCapacity)), status.ErrTooLarge))
	assert.True(t, errors.Is(s.Remove("missing"), status.ErrNotFound))
}

func TestTombstone(t *testing.T) {
	s, dev := setupStore(t)

	require.NoError(t, s.Write("a", []byte("A")))
	require.NoError(t, s.Write("b", []byte("B")))
	require.NoError(t, s.Remove("a"))
	assert.False(t, s.Exists("a"))
	assert.True(t, s.Exists("b"))

	// tombstones survive a remount
	s2, err := New(dev, testRegion)
	require.NoError(t, err)
	require.NoError(t, s2.TryMount())
	assert.False(t, s2.Exists("a"))
	assert.True(t, s2.Exists("b"))
	assert.Equal(t, 3, s2.Stats().Records)

	// a removed key may be written again
	require.NoError(t, s2.Write("a", []byte("A2")))
	data, err := s2.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "A2", string(data))
}

func TestDirIteration(t *testing.T) {
	s, _ := setupStore(t)

	for _, key := range []string{"c", "a", "b", "d"} {
		require.NoError(t, s.Write(key, []byte(key)))
	}
	require.NoError(t, s.Write("a", []byte("a2")))
	require.NoError(t, s.Remove("b"))

	collect := func() []string {
		var keys []string
		require.NoError(t, s.DirRewind())
		for e, ok := s.DirRead(); ok; e, ok = s.DirRead() {
			keys = append(keys, e.Key)
		}
		return keys
	}
	assert.Equal(t, []string{"a", "c", "d"}, collect())

	// restartable, and a snapshot of the directory at rewind time
	require.NoError(t, s.DirRewind())
	e, ok := s.DirRead()
	require.True(t, ok)
	assert.Equal(t, "a", e.Key)
	assert.Equal(t, uint32(2), e.Size)
	require.NoError(t, s.Write("e", []byte("e")))
	var rest []string
	for e, ok := s.DirRead(); ok; e, ok = s.DirRead() {
		rest = append(rest, e.Key)
	}
	assert.Equal(t, []string{"c", "d"}, rest)

	assert.Equal(t, []string{"a", "c", "d", "e"}, collect())

	_, ok = s.DirRead()
	assert.False(t, ok, "exhausted iterator")
}

func TestWalk(t *testing.T) {
	s, _ := setupStore(t)
	for _, key := range []string{"#dir/pics", "#dir/docs", "#att/x.bin", "x.bin"} {
		require.NoError(t, s.Write(key, []byte("1")))
	}

	var keys []string
	require.NoError(t, s.Walk("#dir/", func(e Entry) bool {
		keys = append(keys, e.Key)
		return true
	}))
	assert.Equal(t, []string{"#dir/docs", "#dir/pics"}, keys)

	keys = nil
	require.NoError(t, s.Walk("", func(e Entry) bool {
		keys = append(keys, e.Key)
		return len(keys) < 2
	}))
	assert.Len(t, keys, 2)
}

func TestForceGC(t *testing.T) {
	m := metrics.Discard().Store
	s, dev := setupStore(t, Metrics(m))

	require.NoError(t, s.Write("#sys", []byte("system")))
	require.NoError(t, s.Write("user.txt", []byte("user")))
	require.NoError(t, s.Write("other.txt", []byte("v1")))
	require.NoError(t, s.Write("other.txt", []byte("v2")))
	require.NoError(t, s.Write("gone.txt", []byte("gone")))
	require.NoError(t, s.Remove("gone.txt"))
	before := s.FreeSize()

	keep := func(key string) bool { return key != "user.txt" }
	require.NoError(t, s.ForceGC(keep))

	assert.False(t, s.Exists("user.txt"))
	assert.False(t, s.Exists("gone.txt"))
	data, err := s.Get("#sys")
	require.NoError(t, err)
	assert.Equal(t, "system", string(data))
	data, err = s.Get("other.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	stats := s.Stats()
	assert.Equal(t, 1, stats.Bank)
	assert.Equal(t, uint32(2), stats.Generation)
	assert.Equal(t, 2, stats.Records)
	assert.False(t, stats.Dirty)
	assert.Greater(t, s.FreeSize(), before)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GCRuns.WithLabelValues("forced")))

	// the compacted bank wins on remount
	s2, err := New(dev, testRegion)
	require.NoError(t, err)
	require.NoError(t, s2.TryMount())
	assert.Equal(t, 1, s2.Stats().Bank)
	assert.True(t, s2.Exists("#sys"))
	assert.False(t, s2.Exists("user.txt"))

	// collect again: back to the first bank
	require.NoError(t, s2.ForceGC(nil))
	assert.Equal(t, 0, s2.Stats().Bank)
	assert.Equal(t, uint32(3), s2.Stats().Generation)
	assert.True(t, s2.Exists("other.txt"))
}

func TestAutoGC(t *testing.T) {
	m := metrics.Discard().Store
	s, _ := setupStore(t, Metrics(m))

	payload := bytes.Repeat([]byte{0x5a}, 100)
	for i := 0; i < 200; i++ {
		payload[0] = byte(i)
		require.NoError(t, s.Write("counter", payload))
	}
	data, err := s.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, byte(199), data[0])
	assert.Greater(t, s.Stats().Generation, uint32(1))
	assert.Equal(t, 1, s.Stats().Keys)

	runs := testutil.ToFloat64(m.GCRuns.WithLabelValues("full")) + testutil.ToFloat64(m.GCRuns.WithLabelValues("lowwater"))
	assert.Greater(t, runs, float64(0))
}

func TestLowWaterCooldown(t *testing.T) {
	m := metrics.Discard().Store
	s, _ := setupStore(t, Metrics(m), LowWater(testCapacity), MinGCSpacing(4))

	// every write is under the low water mark, but collections are spaced
	for i := 0; i < 8; i++ {
		require.NoError(t, s.Write("k", []byte(fmt.Sprintf("v%d", i))))
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GCRuns.WithLabelValues("lowwater")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.GCRuns.WithLabelValues("full")))
}

func TestNoSpace(t *testing.T) {
	s, _ := setupStore(t)

	var (
		written []string
		err     error
	)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("file%02d", i)
		if err = s.Write(key, make([]byte, 500)); err != nil {
			break
		}
		written = append(written, key)
	}
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNoSpace))
	assert.Len(t, written, 15)

	for _, key := range written {
		assert.True(t, s.Exists(key))
	}

	// removing some files makes room again
	require.NoError(t, s.Remove(written[0]))
	require.NoError(t, s.Write("last", make([]byte, 500)))
}

func TestCompression(t *testing.T) {
	s, dev := setupStore(t, Compression(true))

	payload := bytes.Repeat([]byte("compressible "), 200)
	require.NoError(t, s.Write("big.txt", payload))

	e, ok := s.Lookup("big.txt")
	require.True(t, ok)
	assert.True(t, e.Compressed)
	assert.Equal(t, uint32(len(payload)), e.Size)
	assert.Less(t, s.Stats().Live, uint32(len(payload)))

	n, err := s.Read("big.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	data, err := s.Get("big.txt")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	// incompressible data is stored as is
	require.NoError(t, s.Write("random.bin", []byte{1, 2, 3}))
	e, _ = s.Lookup("random.bin")
	assert.False(t, e.Compressed)

	// compressed records survive a remount and a compaction without the option
	s2, err := New(dev, testRegion)
	require.NoError(t, err)
	require.NoError(t, s2.ForceGC(nil))
	data, err = s2.Get("big.txt")
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDamagedTail(t *testing.T) {
	m := metrics.Discard().Store
	s, dev := setupStore(t, Metrics(m))

	require.NoError(t, s.Write("a", []byte("AAAA")))
	require.NoError(t, s.Write("b", []byte("BBBB")))

	// a torn record: valid header shape, bad checksum
	tail := s.banks[0].Start + s.usable - s.FreeSize()
	torn := flash.Buffer(recordHeaderSize)
	copy(torn, []byte{0x52, 0x4c, 0, 0, 1, 0, 0, 0, 4, 0, 0, 0, 0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, dev.WriteBytes(tail, torn))

	s2, err := New(dev, testRegion, Metrics(m))
	require.NoError(t, err)
	require.NoError(t, s2.TryMount())
	assert.True(t, s2.Stats().Dirty)
	assert.True(t, s2.Exists("a"))
	assert.True(t, s2.Exists("b"))

	// next write compacts first
	require.NoError(t, s2.Write("c", []byte("CCCC")))
	assert.False(t, s2.Stats().Dirty)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GCRuns.WithLabelValues("recovery")))
	for _, key := range []string{"a", "b", "c"} {
		assert.True(t, s2.Exists(key), key)
	}
}

func TestTornHeaderAtTail(t *testing.T) {
	s, dev := setupStore(t)
	require.NoError(t, s.Write("a", []byte("AAAA")))

	// power lost after the first two header words: erased words are not programmed
	tail := s.banks[0].Start + s.usable - s.FreeSize()
	torn := flash.Buffer(recordHeaderSize)
	for i, word := range []uint32{uint32(recordMagic), 1, erasedWord, erasedWord} {
		binary.LittleEndian.PutUint32(torn[4*i:], word)
	}
	require.NoError(t, dev.WriteBytes(tail, torn))

	s2, err := New(dev, testRegion)
	require.NoError(t, err)
	require.NotPanics(t, func() { err = s2.TryMount() })
	require.NoError(t, err)
	assert.Equal(t, Mounted, s2.State())
	assert.True(t, s2.Stats().Dirty)
	assert.True(t, s2.Exists("a"))

	require.NoError(t, s2.Write("b", []byte("BBBB")))
	assert.False(t, s2.Stats().Dirty)
	assert.True(t, s2.Exists("a"))
}

func TestHaltDuringMount(t *testing.T) {
	dev := &faultyDevice{Device: setupDevice(t)}
	s, err := New(dev, testRegion)
	require.NoError(t, err)
	require.NoError(t, s.MountOrFormat())

	dev.failReads = true
	s2, err := New(dev, testRegion)
	require.NoError(t, err)
	assert.Panics(t, func() { _ = s2.TryMount() })
	assert.Equal(t, Unmounted, s2.State())

	dev.failReads = false
	require.NoError(t, s2.TryMount())
	assert.Equal(t, Mounted, s2.State())
}

func TestGarbageAfterTail(t *testing.T) {
	s, dev := setupStore(t)
	require.NoError(t, s.Write("a", []byte("AAAA")))

	// stray programmed word further in the bank
	stray := flash.Buffer(4)
	require.NoError(t, dev.WriteBytes(s.banks[0].Start+0x1000, stray))

	s2, err := New(dev, testRegion)
	require.NoError(t, err)
	require.NoError(t, s2.TryMount())
	assert.True(t, s2.Stats().Dirty)
	assert.True(t, s2.Exists("a"))
}

func TestInterruptedGC(t *testing.T) {
	s, dev := setupStore(t)
	require.NoError(t, s.Write("a", []byte("AAAA")))

	// a collection that copied a record but never wrote its bank header
	rec := encodeRecord("a", []byte("ZZZZ"), 0)
	require.NoError(t, dev.WriteBytes(s.banks[1].Start+bankHeaderSize, rec))

	s2, err := New(dev, testRegion)
	require.NoError(t, err)
	require.NoError(t, s2.TryMount())
	assert.Equal(t, 0, s2.Stats().Bank)
	data, err := s2.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(data))

	// the half written bank is erased by the next collection
	require.NoError(t, s2.ForceGC(nil))
	assert.Equal(t, 1, s2.Stats().Bank)
	data, err = s2.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(data))
}

func TestFormat(t *testing.T) {
	m := metrics.Discard().Store
	s, _ := setupStore(t, Metrics(m))
	require.NoError(t, s.Write("a", []byte("AAAA")))
	require.NoError(t, s.ForceGC(nil))

	require.NoError(t, s.Format())
	assert.Equal(t, Mounted, s.State())
	assert.False(t, s.Exists("a"))
	assert.Equal(t, uint32(1), s.Stats().Generation)
	assert.Equal(t, uint32(testCapacity), s.FreeSize())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Formats))
}

// faultyDevice rejects every program operation, and reads when asked to
type faultyDevice struct {
	flash.Device
	fail      bool
	failReads bool
}

func (d *faultyDevice) Read(address uint32, p []byte) error {
	if d.failReads {
		return errors.New("read failure")
	}
	return d.Device.Read(address, p)
}

func (d *faultyDevice) WriteBytes(dst uint32, src []byte) error {
	if d.fail {
		return errors.New("program failure")
	}
	return d.Device.WriteBytes(dst, src)
}

func TestFlashErrorsHalt(t *testing.T) {
	dev := &faultyDevice{Device: setupDevice(t)}
	var halted []error
	s, err := New(dev, testRegion, Halt(func(err error) { halted = append(halted, err) }))
	require.NoError(t, err)
	require.NoError(t, s.MountOrFormat())
	require.Empty(t, halted)

	dev.fail = true
	err = s.Write("a", []byte("AAAA"))
	assert.True(t, errors.Is(err, status.ErrFlash))
	require.Len(t, halted, 1)
	assert.True(t, errors.Is(halted[0], status.ErrFlash))
}

func TestMountOrFormatHalts(t *testing.T) {
	dev := &faultyDevice{Device: setupDevice(t), fail: true}
	var halted []error
	s, err := New(dev, testRegion, Halt(func(err error) { halted = append(halted, err) }))
	require.NoError(t, err)

	err = s.MountOrFormat()
	assert.True(t, errors.Is(err, status.ErrNotMounted))
	require.NotEmpty(t, halted)
	assert.True(t, errors.Is(halted[len(halted)-1], status.ErrNotMounted))
	assert.Equal(t, Unmounted, s.State())
}
