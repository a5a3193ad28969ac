// Package files exposes named files over the log store.
//
// Names are plain log store keys. Their extension selects a family which
// decides how the content is laid out and which operations apply: cache
// files, config files, protected files owned by an application, and generic
// files for everything else.
//
// Folders and folder membership are metadata records, stored beside the
// files under reserved system names.
package files

import (
	"github.com/oneconcern/flashfs/pkg/dlogger"
	"github.com/oneconcern/flashfs/pkg/errors"
	"github.com/oneconcern/flashfs/pkg/files/status"
	"github.com/oneconcern/flashfs/pkg/logstore"
	lstatus "github.com/oneconcern/flashfs/pkg/logstore/status"
	"github.com/oneconcern/flashfs/pkg/ramcache"
	"go.uber.org/zap"
)

// Log is the record store backing files
type Log interface {
	MountOrFormat() error
	Exists(key string) bool
	Read(key string, buf []byte) (int, error)
	Get(key string) ([]byte, error)
	Write(key string, data []byte) error
	Remove(key string) error
	Walk(prefix string, fn func(logstore.Entry) bool) error
	ForceGC(keep func(key string) bool) error
	Format() error
	FreeSize() uint32
	TotalSize() uint32
}

var _ Log = &logstore.Store{}

// Option configures a file system
type Option func(*FileSystem)

// Logger sets a logger for the file system
func Logger(l *zap.Logger) Option {
	return func(fs *FileSystem) {
		if l != nil {
			fs.l = l
		}
	}
}

// Cache sets the RAM cache consulted on reads. It must be populated from the same log.
func Cache(c *ramcache.Cache) Option {
	return func(fs *FileSystem) {
		if c != nil {
			fs.cache = c
		}
	}
}

// FileSystem maps file names to log store records
type FileSystem struct {
	log   Log
	cache *ramcache.Cache
	l     *zap.Logger
}

// New file system over a log store. The store is mounted on first access.
func New(log Log, opts ...Option) *FileSystem {
	fs := &FileSystem{
		log: log,
		l:   dlogger.MustGetLogger(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(fs)
	}
	if fs.cache == nil {
		fs.cache = ramcache.New(log, ramcache.Logger(fs.l))
	}
	return fs
}

// Open a file system over a mounted store, formatting the store if needed
func Open(log Log, opts ...Option) (*FileSystem, error) {
	if err := log.MountOrFormat(); err != nil {
		return nil, err
	}
	return New(log, opts...), nil
}

// Log store backing the file system
func (fs *FileSystem) Log() Log {
	return fs.log
}

// RAM cache of the file system
func (fs *FileSystem) RAMCache() *ramcache.Cache {
	return fs.cache
}

func notFound(name string, err error) error {
	if errors.Is(err, lstatus.ErrNotFound) {
		return status.ErrNotFound.WrapMessage("%q", name)
	}
	return err
}

func checkName(name string) error {
	if len(name) == 0 || len(name) > logstore.MaxKeyLen {
		return status.ErrInvalidName.WrapMessage("%q", name)
	}
	if reserved(name) {
		return status.ErrReserved.WrapMessage("%q", name)
	}
	return nil
}

// checkFamily validates a name for an operation restricted to a family
func checkFamily(name string, family Family) error {
	if err := checkName(name); err != nil {
		return err
	}
	if f := FamilyOf(name); f != family {
		return status.ErrWrongFamily.WrapMessage("%q is a %v file, expected %v", name, f, family)
	}
	return nil
}

// checkGeneric validates a name for unrestricted operations: all families
// but protected files, which always go through owner checks
func checkGeneric(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if FamilyOf(name) == ProtectedFamily {
		return status.ErrWrongFamily.WrapMessage("%q is a protected file", name)
	}
	return nil
}

// Exists tells if a file exists
func (fs *FileSystem) Exists(name string) bool {
	return fs.log.Exists(name)
}

// Read the content of a file. Cached copies are served first.
func (fs *FileSystem) Read(name string) ([]byte, error) {
	if err := checkGeneric(name); err != nil {
		return nil, err
	}
	return fs.read(name)
}

func (fs *FileSystem) read(name string) ([]byte, error) {
	if cached, ok := fs.cache.Get(name); ok {
		data := make([]byte, len(cached))
		copy(data, cached)
		return data, nil
	}
	data, err := fs.log.Get(name)
	if err != nil {
		return nil, notFound(name, err)
	}
	return data, nil
}

// Write the content of a file, replacing any previous content
func (fs *FileSystem) Write(name string, data []byte) error {
	if err := checkGeneric(name); err != nil {
		return err
	}
	return fs.write(name, data)
}

func (fs *FileSystem) write(name string, data []byte) error {
	fs.cache.Clear(name)
	if err := fs.log.Write(name, data); err != nil {
		return err
	}
	fs.l.Debug("wrote file", zap.String("name", name), zap.Int("size", len(data)))
	return nil
}

func (fs *FileSystem) create(name string, data []byte) error {
	if fs.log.Exists(name) {
		return status.ErrExists.WrapMessage("%q", name)
	}
	return fs.write(name, data)
}

// Remove a file, its cached copy and its folder membership
func (fs *FileSystem) Remove(name string) error {
	if err := checkGeneric(name); err != nil {
		return err
	}
	return fs.remove(name)
}

func (fs *FileSystem) remove(name string) error {
	fs.cache.Clear(name)
	if err := fs.log.Remove(name); err != nil {
		return notFound(name, err)
	}
	if err := fs.detach(name); err != nil {
		return err
	}
	fs.l.Debug("removed file", zap.String("name", name))
	return nil
}

// CacheFile loads a copy of a file in RAM
func (fs *FileSystem) CacheFile(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return notFound(name, fs.cache.CacheFile(name))
}

// Cached returns the cached copy of a file, without reading flash
func (fs *FileSystem) Cached(name string) ([]byte, bool) {
	return fs.cache.Get(name)
}

// ClearCache releases the cached copy of a file
func (fs *FileSystem) ClearCache(name string) bool {
	return fs.cache.Clear(name)
}

// ClearAllCache releases all cached copies
func (fs *FileSystem) ClearAllCache() {
	fs.cache.ClearAll()
}
