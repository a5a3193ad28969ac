package files

import (
	"strings"

	"go.uber.org/zap"
)

// UserClean drops all user files, keeping system files only.
//
// Folder memberships go away with the user files. When system files still
// use more than 3/4 of the capacity, the store is formatted. It reports
// whether a format happened.
func (fs *FileSystem) UserClean() (bool, error) {
	keep := func(key string) bool {
		return IsSystem(key) && !strings.HasPrefix(key, attachPrefix)
	}
	fs.cache.ClearAll()
	if err := fs.log.ForceGC(keep); err != nil {
		return false, err
	}

	free, total := fs.log.FreeSize(), fs.log.TotalSize()
	if free >= total/4 {
		fs.l.Info("user files cleaned", zap.Uint32("free", free), zap.Uint32("total", total))
		return false, nil
	}
	fs.l.Warn("system files use most of the store, formatting", zap.Uint32("free", free), zap.Uint32("total", total))
	if err := fs.log.Format(); err != nil {
		return false, err
	}
	return true, nil
}
