// Package store is the compiler's pluggable artifact backend:
// `chaind serve` writes each compiled Bundle (internal/artifact) under
// a key; no command reads bundles back from the store, and agents get
// theirs over internal/wire. A configured store type selects a local or
// S3 backend behind one interface.
package store

import "context"

// Backend persists and retrieves compiled chain artifacts by key. Both
// backends treat the key as opaque bytes addressing; `chaind serve`
// uses "chain-" followed by the target triple.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Type selects which Backend New constructs.
type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
)

// Config configures whichever Backend Type selects.
type Config struct {
	Type Type

	// Local
	Dir string

	// S3
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}
