// Package storage abstracts the object store behind a get/put/list
// contract. Per-case state is addressed only by key convention; there is
// no transactional multi-key consistency and callers must not assume any.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("storage: object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	Updated time.Time
}

// ObjectStore is the read/write contract the pipeline needs. Get must
// observe a preceding Put of the same key (read-after-write), which both
// implementations provide.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
