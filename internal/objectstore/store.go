package objectstore

import (
	"context"
	"time"
)

// Store defines the interface for design document storage. Paths are
// keyed by application id, so no two applications contend for the same
// object.
type Store interface {
	// Upload stores an object at the given path within the bucket
	Upload(ctx context.Context, path string, data []byte, contentType string) error

	// Remove deletes the given objects
	Remove(ctx context.Context, paths []string) error

	// SignedURL returns a short-lived link to an object. Callers must
	// not cache the link beyond its TTL.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}
