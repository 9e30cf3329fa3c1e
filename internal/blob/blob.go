// Package blob defines the artifact storage port used for batch export documents.
package blob

import (
	"context"
	"errors"
	"time"
)

// Driver identifies a blob storage backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverS3     Driver = "s3"
)

// ErrNotFound is returned by Get when no object is stored under the key.
var ErrNotFound = errors.New("blob not found")

// Info describes a stored object.
type Info struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Store keeps whole objects by key. Put replaces an existing object.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (Info, []byte, error)
	Driver() Driver
}
