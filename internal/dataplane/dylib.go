package dataplane

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"

	"github.com/google/uuid"

	"github.com/nfgraph/nfgraph/internal/chain"
	"github.com/nfgraph/nfgraph/internal/nf"
)

// DylibStore owns the agent's loaded user-space NF plugins, keyed by
// NF id. Each NF's dylib bytes are unpacked to a private temp
// directory and opened through Go's plugin package.
type DylibStore struct {
	dir     string
	symbols map[uuid.UUID]nf.UserNFFunc
}

// NewDylibStore creates the private unpack directory the store will
// write NF plugin files into.
func NewDylibStore() (*DylibStore, error) {
	dir, err := os.MkdirTemp("", "nfgraph-nf-*")
	if err != nil {
		return nil, fmt.Errorf("create dylib unpack dir: %w", err)
	}
	return &DylibStore{dir: dir, symbols: make(map[uuid.UUID]nf.UserNFFunc)}, nil
}

// LoadAll unpacks and opens every NF's dylib payload, skipping NFs with
// no Elf bytes (in-kernel-only NFs never reach user-space).
func (s *DylibStore) LoadAll(nfs map[string]chain.InstalledFunction) error {
	for key, f := range nfs {
		if f.Elf == nil {
			continue
		}
		path := filepath.Join(s.dir, key+".so")
		if err := os.WriteFile(path, f.Elf, 0o755); err != nil {
			return fmt.Errorf("write dylib %s: %w", key, err)
		}
		p, err := plugin.Open(path)
		if err != nil {
			return fmt.Errorf("open dylib %s: %w", key, err)
		}
		sym, err := p.Lookup(nf.UserNFSymbol)
		if err != nil {
			return fmt.Errorf("lookup %s in %s: %w", nf.UserNFSymbol, key, err)
		}
		fn, ok := sym.(*nf.UserNFFunc)
		if !ok {
			return fmt.Errorf("dylib %s: %s has unexpected type %T", key, nf.UserNFSymbol, sym)
		}
		s.symbols[f.ID] = *fn
	}
	return nil
}

// Lookup returns the loaded user-space NF function for id, if any.
func (s *DylibStore) Lookup(id uuid.UUID) (nf.UserNFFunc, bool) {
	fn, ok := s.symbols[id]
	return fn, ok
}

// Cleanup removes the store's temp unpack directory.
func (s *DylibStore) Cleanup() error {
	return os.RemoveAll(s.dir)
}
