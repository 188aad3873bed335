// Package cache is the compiler's content-addressed compile cache: a
// build whose NF source tree and declared map layout hash to a key
// already present in the store is served from disk instead of
// re-invoking the external toolchain. BadgerDB underneath: a prefixed
// key namespace over a single KV store, transactional get/set, opened
// once per process.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const (
	prefixArtifact = "a:" // a:<hash> -> compiled artifact bytes
	prefixStamp    = "t:" // t:<hash> -> unix nano of last store
)

// Cache is a content-addressed store of compiled chain artifacts.
type Cache struct {
	db *badger.DB
}

// Open opens (creating if absent) the on-disk cache at dir.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open compile cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached artifact for key, if present.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(artifactKey(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Put stores a compiled artifact under key, overwriting any prior
// entry (e.g. a rebuild of the same source+maps against a newer
// toolchain).
func (c *Cache) Put(ctx context.Context, key string, artifact []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(artifactKey(key), artifact); err != nil {
			return err
		}
		return txn.Set(stampKey(key), encodeUnixNano(time.Now()))
	})
}

func artifactKey(key string) []byte { return []byte(prefixArtifact + key) }
func stampKey(key string) []byte    { return []byte(prefixStamp + key) }

func encodeUnixNano(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return buf
}

// HashInputs derives a cache key from an NF's source files and its
// declared map layout. File names are sorted first so key derivation is
// independent of directory-walk order.
func HashInputs(sources map[string][]byte, mapSignature string) string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(sources[name])
		h.Write([]byte{0})
	}
	h.Write([]byte(mapSignature))
	return hex.EncodeToString(h.Sum(nil))
}
