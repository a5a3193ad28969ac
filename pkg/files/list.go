package files

import (
	"encoding/binary"

	"github.com/oneconcern/flashfs/pkg/files/status"
	"github.com/oneconcern/flashfs/pkg/logstore"
)

// List the names starting with prefix, in lexical order.
//
// System files are only listed when the prefix itself designates system files.
func (fs *FileSystem) List(prefix string, caps Caps) ([]string, error) {
	if !caps.Has(CapList) {
		return nil, status.ErrPermission.WrapMessage("listing requires the list capability")
	}
	showSystem := IsSystem(prefix)
	var names []string
	err := fs.log.Walk(prefix, func(e logstore.Entry) bool {
		if showSystem || !IsSystem(e.Key) {
			names = append(names, e.Key)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// FilesOwnedBy lists the protected files owned by an application
func (fs *FileSystem) FilesOwnedBy(appID uint32, caps Caps) ([]string, error) {
	if !caps.Has(CapList) {
		return nil, status.ErrPermission.WrapMessage("listing requires the list capability")
	}
	var (
		names []string
		err   error
	)
	head := make([]byte, ownerSize)
	werr := fs.log.Walk("", func(e logstore.Entry) bool {
		if FamilyOf(e.Key) != ProtectedFamily {
			return true
		}
		var n int
		if n, err = fs.log.Read(e.Key, head); err != nil {
			return false
		}
		if n == ownerSize && binary.LittleEndian.Uint32(head) == appID {
			names = append(names, e.Key)
		}
		return true
	})
	if werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Info describes a file
type Info struct {
	Name   string `json:"name" yaml:"name"`
	Family string `json:"family" yaml:"family"`
	Size   int    `json:"size" yaml:"size"`
	Stored uint32 `json:"stored" yaml:"stored"`
	Folder uint32 `json:"folder,omitempty" yaml:"folder,omitempty"`
	Owner  uint32 `json:"owner,omitempty" yaml:"owner,omitempty"`
	Cached bool   `json:"cached" yaml:"cached"`
}

// Stat describes a file
func (fs *FileSystem) Stat(name string) (Info, error) {
	var (
		entry logstore.Entry
		found bool
	)
	if err := fs.log.Walk(name, func(e logstore.Entry) bool {
		if e.Key == name {
			entry, found = e, true
		}
		return false
	}); err != nil {
		return Info{}, err
	}
	if !found {
		return Info{}, status.ErrNotFound.WrapMessage("%q", name)
	}

	family := FamilyOf(name)
	info := Info{
		Name:   name,
		Family: family.String(),
		Size:   int(entry.Size),
		Stored: entry.StoredSize(),
	}
	_, info.Cached = fs.cache.Get(name)

	if family == ProtectedFamily {
		owner, ok, err := fs.owner(name)
		if err != nil {
			return Info{}, err
		}
		if ok {
			info.Owner = owner
			info.Size -= ownerSize
		}
	}
	folder, ok, err := fs.FolderOf(name)
	if err != nil {
		return Info{}, err
	}
	if ok {
		info.Folder = folder
	}
	return info, nil
}
