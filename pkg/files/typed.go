package files

import (
	"encoding/binary"

	"github.com/oneconcern/flashfs/pkg/errors"
	"github.com/oneconcern/flashfs/pkg/files/status"
)

// ReadCacheFile reads a cache file, from RAM when it is cached
func (fs *FileSystem) ReadCacheFile(name string) ([]byte, error) {
	if err := checkFamily(name, CacheFamily); err != nil {
		return nil, err
	}
	return fs.read(name)
}

// WriteCacheFile writes a cache file
func (fs *FileSystem) WriteCacheFile(name string, data []byte) error {
	if err := checkFamily(name, CacheFamily); err != nil {
		return err
	}
	return fs.write(name, data)
}

// CreateCacheFile writes a new cache file
func (fs *FileSystem) CreateCacheFile(name string, data []byte) error {
	if err := checkFamily(name, CacheFamily); err != nil {
		return err
	}
	return fs.create(name, data)
}

// ReadConfig reads a config file
func (fs *FileSystem) ReadConfig(name string) ([]byte, error) {
	if err := checkFamily(name, ConfigFamily); err != nil {
		return nil, err
	}
	return fs.read(name)
}

// WriteConfig writes a config file
func (fs *FileSystem) WriteConfig(name string, data []byte) error {
	if err := checkFamily(name, ConfigFamily); err != nil {
		return err
	}
	return fs.write(name, data)
}

// CreateConfig writes a new config file
func (fs *FileSystem) CreateConfig(name string, data []byte) error {
	if err := checkFamily(name, ConfigFamily); err != nil {
		return err
	}
	return fs.create(name, data)
}

const ownerSize = 4

func encodeProtected(appID uint32, data []byte) []byte {
	payload := make([]byte, ownerSize+len(data))
	binary.LittleEndian.PutUint32(payload, appID)
	copy(payload[ownerSize:], data)
	return payload
}

// owner reads the application owning a protected file
func (fs *FileSystem) owner(name string) (uint32, bool, error) {
	var head [ownerSize]byte
	n, err := fs.log.Read(name, head[:])
	if err != nil {
		if err = notFound(name, err); errors.Is(err, status.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if n < ownerSize {
		return 0, false, status.ErrCorrupt.WrapMessage("protected file %q has no owner", name)
	}
	return binary.LittleEndian.Uint32(head[:]), true, nil
}

// ReadProtected reads a protected file owned by appID.
//
// A file owned by another application is reported as not found.
func (fs *FileSystem) ReadProtected(name string, appID uint32) ([]byte, error) {
	if err := checkFamily(name, ProtectedFamily); err != nil {
		return nil, err
	}
	payload, err := fs.log.Get(name)
	if err != nil {
		return nil, notFound(name, err)
	}
	if len(payload) < ownerSize {
		return nil, status.ErrCorrupt.WrapMessage("protected file %q has no owner", name)
	}
	if binary.LittleEndian.Uint32(payload) != appID {
		return nil, status.ErrNotFound.WrapMessage("%q", name)
	}
	return payload[ownerSize:], nil
}

// WriteProtected writes a protected file on behalf of appID.
//
// A new file is owned by appID. An existing file owned by another
// application is reported as not found.
func (fs *FileSystem) WriteProtected(name string, appID uint32, data []byte) error {
	if err := checkFamily(name, ProtectedFamily); err != nil {
		return err
	}
	owner, exists, err := fs.owner(name)
	if err != nil {
		return err
	}
	if exists && owner != appID {
		return status.ErrNotFound.WrapMessage("%q", name)
	}
	return fs.write(name, encodeProtected(appID, data))
}

// CreateProtected writes a new protected file owned by appID.
//
// The name of a file owned by another application is reported as not found,
// as for the other protected operations.
func (fs *FileSystem) CreateProtected(name string, appID uint32, data []byte) error {
	if err := checkFamily(name, ProtectedFamily); err != nil {
		return err
	}
	owner, exists, err := fs.owner(name)
	if err != nil {
		return err
	}
	if exists {
		if owner != appID {
			return status.ErrNotFound.WrapMessage("%q", name)
		}
		return status.ErrExists.WrapMessage("%q", name)
	}
	return fs.write(name, encodeProtected(appID, data))
}

// RemoveProtected removes a protected file owned by appID
func (fs *FileSystem) RemoveProtected(name string, appID uint32) error {
	if err := checkFamily(name, ProtectedFamily); err != nil {
		return err
	}
	owner, exists, err := fs.owner(name)
	if err != nil {
		return err
	}
	if !exists || owner != appID {
		return status.ErrNotFound.WrapMessage("%q", name)
	}
	return fs.remove(name)
}
