// Package kvstore is the local key-value persistence used by the local-first
// state manager.
package kvstore

import (
	"context"
	"errors"
)

// ErrClosed is returned by SQLite after Close.
var ErrClosed = errors.New("kvstore: store closed")

// Store is a byte-oriented key-value store. A missing key is reported with
// ok == false, never as an error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
