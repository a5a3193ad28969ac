// Package status declares error constants returned by the log store.
package status

import "github.com/oneconcern/flashfs/pkg/errors"

var (
	// ErrNotFound indicates that no current record exists for a key
	ErrNotFound = errors.New("key not found")

	// ErrNoSpace indicates that a record does not fit, even after garbage collection
	ErrNoSpace = errors.New("no space left in log store")

	// ErrTooLarge indicates that a record could never fit in a bank
	ErrTooLarge = errors.New("record too large for log store")

	// ErrInvalidKey indicates an empty or too long key
	ErrInvalidKey = errors.New("invalid key")

	// ErrNotFormatted indicates that no valid bank header was found when mounting
	ErrNotFormatted = errors.New("log store not formatted")

	// ErrNotMounted indicates that the store could neither be mounted nor formatted
	ErrNotMounted = errors.New("log store not mounted")

	// ErrMountInProgress indicates a reentrant mount attempt
	ErrMountInProgress = errors.New("log store mount already in progress")

	// ErrBadRegion indicates a flash region unfit to hold two banks
	ErrBadRegion = errors.New("invalid log store region")

	// ErrFlash indicates a failure reported by the flash device
	ErrFlash = errors.New("flash device error")
)
