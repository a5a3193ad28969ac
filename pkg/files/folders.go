package files

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/oneconcern/flashfs/pkg/files/status"
	"github.com/oneconcern/flashfs/pkg/logstore"
	"go.uber.org/zap"
)

// Root is the ID of the root folder. It has no record.
const Root uint32 = 0

// Folder groups files
type Folder struct {
	ID     uint32 `json:"id" yaml:"id"`
	Parent uint32 `json:"parent" yaml:"parent"`
	Name   string `json:"name" yaml:"name"`
}

func encodeFolder(id, parent uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], id)
	binary.LittleEndian.PutUint32(b[4:], parent)
	return b
}

func encodeFolderID(id uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, id)
	return b
}

// Folders lists all folders, ordered by ID
func (fs *FileSystem) Folders() ([]Folder, error) {
	var keys []string
	if err := fs.log.Walk(folderPrefix, func(e logstore.Entry) bool {
		keys = append(keys, e.Key)
		return true
	}); err != nil {
		return nil, err
	}

	folders := make([]Folder, 0, len(keys))
	for _, key := range keys {
		payload, err := fs.log.Get(key)
		if err != nil {
			return nil, err
		}
		if len(payload) != 8 {
			return nil, status.ErrCorrupt.WrapMessage("folder record %q", key)
		}
		folders = append(folders, Folder{
			ID:     binary.LittleEndian.Uint32(payload[0:]),
			Parent: binary.LittleEndian.Uint32(payload[4:]),
			Name:   strings.TrimPrefix(key, folderPrefix),
		})
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].ID < folders[j].ID })
	return folders, nil
}

// Folder looks up a folder by ID
func (fs *FileSystem) Folder(id uint32) (Folder, error) {
	if id == Root {
		return Folder{ID: Root}, nil
	}
	folders, err := fs.Folders()
	if err != nil {
		return Folder{}, err
	}
	for _, f := range folders {
		if f.ID == id {
			return f, nil
		}
	}
	return Folder{}, status.ErrNotFound.WrapMessage("folder %d", id)
}

// CreateFolder creates a folder under parent and returns its ID.
//
// IDs start at 1 and grow: a new folder gets the largest existing ID plus one.
func (fs *FileSystem) CreateFolder(name string, parent uint32) (uint32, error) {
	key := folderPrefix + name
	if name == "" || strings.Contains(name, "/") || len(key) > logstore.MaxKeyLen {
		return 0, status.ErrInvalidName.WrapMessage("folder %q", name)
	}

	folders, err := fs.Folders()
	if err != nil {
		return 0, err
	}
	var (
		next        uint32 = Root + 1
		knownParent        = parent == Root
	)
	for _, f := range folders {
		if f.Name == name {
			return 0, status.ErrExists.WrapMessage("folder %q", name)
		}
		if f.ID >= next {
			next = f.ID + 1
		}
		if f.ID == parent {
			knownParent = true
		}
	}
	if !knownParent {
		return 0, status.ErrNotFound.WrapMessage("parent folder %d", parent)
	}

	if err := fs.log.Write(key, encodeFolder(next, parent)); err != nil {
		return 0, err
	}
	fs.l.Debug("created folder", zap.String("name", name), zap.Uint32("id", next), zap.Uint32("parent", parent))
	return next, nil
}

// AttachFileToFolder records that a file belongs to a folder.
//
// Membership is stored beside the file: the file content is left untouched,
// and the file does not need to exist yet.
func (fs *FileSystem) AttachFileToFolder(name string, folder uint32) error {
	if err := checkName(name); err != nil {
		return err
	}
	key := attachPrefix + name
	if len(key) > logstore.MaxKeyLen {
		return status.ErrInvalidName.WrapMessage("%q is too long to be attached", name)
	}
	if _, err := fs.Folder(folder); err != nil {
		return err
	}
	return fs.log.Write(key, encodeFolderID(folder))
}

// FolderOf returns the folder a file is attached to, if any
func (fs *FileSystem) FolderOf(name string) (uint32, bool, error) {
	key := attachPrefix + name
	if !fs.log.Exists(key) {
		return 0, false, nil
	}
	payload, err := fs.log.Get(key)
	if err != nil {
		return 0, false, err
	}
	if len(payload) != 4 {
		return 0, false, status.ErrCorrupt.WrapMessage("attachment record %q", key)
	}
	return binary.LittleEndian.Uint32(payload), true, nil
}

// FilesInFolder lists the files attached to a folder
func (fs *FileSystem) FilesInFolder(folder uint32) ([]string, error) {
	want := encodeFolderID(folder)
	var (
		names []string
		err   error
	)
	head := make([]byte, 4)
	if werr := fs.log.Walk(attachPrefix, func(e logstore.Entry) bool {
		var n int
		if n, err = fs.log.Read(e.Key, head); err != nil {
			return false
		}
		if n == 4 && string(head) == string(want) {
			names = append(names, strings.TrimPrefix(e.Key, attachPrefix))
		}
		return true
	}); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (fs *FileSystem) detach(name string) error {
	key := attachPrefix + name
	if !fs.log.Exists(key) {
		return nil
	}
	return fs.log.Remove(key)
}

// DeleteFolder removes a folder with all the files attached to it.
//
// Protected files are only detached, since removing them takes their owner.
// Folders with sub-folders are not deleted.
func (fs *FileSystem) DeleteFolder(id uint32) error {
	if id == Root {
		return status.ErrInvalidFolder.WrapMessage("the root folder cannot be deleted")
	}
	folders, err := fs.Folders()
	if err != nil {
		return err
	}
	var (
		target Folder
		found  bool
	)
	for _, f := range folders {
		if f.ID == id {
			target, found = f, true
		}
		if f.Parent == id {
			return status.ErrFolderNotEmpty.WrapMessage("folder %d contains %q", id, f.Name)
		}
	}
	if !found {
		return status.ErrNotFound.WrapMessage("folder %d", id)
	}

	names, err := fs.FilesInFolder(id)
	if err != nil {
		return err
	}
	for _, name := range names {
		if FamilyOf(name) == ProtectedFamily {
			if err := fs.detach(name); err != nil {
				return err
			}
			continue
		}
		fs.cache.Clear(name)
		if fs.log.Exists(name) {
			if err := fs.log.Remove(name); err != nil {
				return err
			}
		}
		if err := fs.detach(name); err != nil {
			return err
		}
	}
	if err := fs.log.Remove(folderPrefix + target.Name); err != nil {
		return err
	}
	fs.l.Debug("deleted folder", zap.String("name", target.Name), zap.Uint32("id", id), zap.Int("files", len(names)))
	return nil
}
