// Package flashstore exposes the files of a flash file system as a storage.Store.
//
// Only generic, cache and config files are exposed: protected files need an
// owner and system files are private to the file system.
package flashstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/oneconcern/flashfs/pkg/errors"
	"github.com/oneconcern/flashfs/pkg/files"
	fstatus "github.com/oneconcern/flashfs/pkg/files/status"
	lstatus "github.com/oneconcern/flashfs/pkg/logstore/status"
	"github.com/oneconcern/flashfs/pkg/storage"
	"github.com/oneconcern/flashfs/pkg/storage/status"
)

// New store over a flash file system
func New(fs *files.FileSystem) storage.Store {
	return &flashStore{fs: fs}
}

type flashStore struct {
	fs *files.FileSystem
}

func exposed(key string) error {
	if files.IsSystem(key) || files.FamilyOf(key) == files.ProtectedFamily {
		return status.ErrInvalidResource.WrapMessage("%q is not exposed", key)
	}
	return nil
}

func translate(key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fstatus.ErrNotFound):
		return status.ErrNotExists.WrapMessage("%q", key)
	case errors.Is(err, fstatus.ErrExists):
		return status.ErrExists.WrapMessage("%q", key)
	case errors.Is(err, lstatus.ErrTooLarge):
		return status.ErrObjectTooBig.Wrap(err)
	case errors.Is(err, fstatus.ErrInvalidName), errors.Is(err, fstatus.ErrReserved):
		return status.ErrInvalidResource.Wrap(err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}

func (f *flashStore) String() string {
	if s, ok := f.fs.Log().(fmt.Stringer); ok {
		return "flash@" + s.String()
	}
	return "flash"
}

func (f *flashStore) Has(ctx context.Context, key string) (bool, error) {
	if err := exposed(key); err != nil {
		return false, err
	}
	return f.fs.Exists(key), nil
}

func (f *flashStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := exposed(key); err != nil {
		return nil, err
	}
	data, err := f.fs.Read(key)
	if err != nil {
		return nil, translate(key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *flashStore) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	if err := exposed(key); err != nil {
		return err
	}
	// the record header and key also take room: the log store has the last word
	limit := int64(f.fs.Log().TotalSize())
	data, err := io.ReadAll(io.LimitReader(source, limit+1))
	if err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	if int64(len(data)) > limit {
		return status.ErrObjectTooBig.WrapMessage("%q exceeds %d bytes", key, limit)
	}
	if exclusive && f.fs.Exists(key) {
		return status.ErrExists.WrapMessage("%q", key)
	}
	return translate(key, f.fs.Write(key, data))
}

func (f *flashStore) Delete(ctx context.Context, key string) error {
	if err := exposed(key); err != nil {
		return err
	}
	err := f.fs.Remove(key)
	if errors.Is(err, fstatus.ErrNotFound) {
		return nil
	}
	return translate(key, err)
}

func (f *flashStore) Keys(ctx context.Context) ([]string, error) {
	names, err := f.fs.List("", files.CapList)
	if err != nil {
		return nil, translate("", err)
	}
	keys := names[:0]
	for _, name := range names {
		if exposed(name) == nil {
			keys = append(keys, name)
		}
	}
	return keys, nil
}

func (f *flashStore) Clear(ctx context.Context) error {
	keys, err := f.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := f.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
