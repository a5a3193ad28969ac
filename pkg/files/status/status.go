// Package status declares error constants returned by the file system.
package status

import "github.com/oneconcern/flashfs/pkg/errors"

var (
	// ErrNotFound indicates a missing file or folder, or a protected file owned by another application
	ErrNotFound = errors.New("not found")

	// ErrExists indicates that a file or folder already exists
	ErrExists = errors.New("already exists")

	// ErrWrongFamily indicates an operation which does not apply to the family of a file
	ErrWrongFamily = errors.New("operation not supported for this file type")

	// ErrReserved indicates a name reserved for file system metadata
	ErrReserved = errors.New("reserved name")

	// ErrInvalidName indicates an empty or too long name
	ErrInvalidName = errors.New("invalid name")

	// ErrPermission indicates that the caller lacks a capability
	ErrPermission = errors.New("permission denied")

	// ErrInvalidFolder indicates an operation not applicable to a folder ID
	ErrInvalidFolder = errors.New("invalid folder")

	// ErrFolderNotEmpty indicates a folder which still has sub-folders
	ErrFolderNotEmpty = errors.New("folder has sub-folders")

	// ErrCorrupt indicates metadata that cannot be decoded
	ErrCorrupt = errors.New("corrupt metadata")
)
