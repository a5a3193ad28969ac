// Package storage provides a common interface to copy objects in and out of flash images.
//
// This package supports the following backends:
//   - local file system, or any afero file system (localfs)
//   - the file system of a flash image (flashstore)
package storage
