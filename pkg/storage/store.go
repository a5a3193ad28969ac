package storage

import (
	"bytes"
	"context"
	"io"
)

const (
	// OverWrite lets Put replace an existing object
	OverWrite = false

	// NoOverWrite makes Put fail on an existing object
	NoOverWrite = true
)

// Store implementations know how to write entries to a K/V model.
//
// Implementations of this interface are assumed to be fairly simple.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader, bool) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
	Clear(context.Context) error
}

// ReadTee reads from a source and duplicates the output to another destination store
func ReadTee(ctx context.Context, sStore Store, source string, dStore Store, destination string, exclusive bool) ([]byte, error) {
	reader, err := sStore.Get(ctx, source)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	object, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if err = dStore.Put(ctx, destination, bytes.NewReader(object), exclusive); err != nil {
		return nil, err
	}
	return object, nil
}

// CopyResult sums up a Copy
type CopyResult struct {
	Keys  []string
	Bytes int
}

// Copy all objects from sStore to dStore, under the same keys.
//
// A nil filter copies everything. Copy stops at the first error.
func Copy(ctx context.Context, sStore, dStore Store, filter func(string) bool, exclusive bool) (CopyResult, error) {
	var res CopyResult
	keys, err := sStore.Keys(ctx)
	if err != nil {
		return res, err
	}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if filter != nil && !filter(key) {
			continue
		}
		object, err := ReadTee(ctx, sStore, key, dStore, key, exclusive)
		if err != nil {
			return res, err
		}
		res.Keys = append(res.Keys, key)
		res.Bytes += len(object)
	}
	return res, nil
}
