package chain

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// LoadFile parses a chain.toml file into a Chain.
func LoadFile(path string) (*Chain, error) {
	var c Chain
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("decode chain.toml %q: %w", path, err)
	}
	if c.Functions == nil {
		c.Functions = map[string]Function{}
	}
	if c.Maps == nil {
		c.Maps = map[string]Map{}
	}
	return &c, nil
}

// UnmarshalTOML implements toml.Unmarshaler for LocalMap's untagged
// union: a LocalMap table with a "type" key decodes as Owned; a bare
// string value decodes as Shared(name).
func (m *LocalMap) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		m.Shared = v
		return nil
	case map[string]interface{}:
		typ, _ := v["type"].(string)
		size, _ := toUint64(v["size"])
		mp := Map{Type: MapType(typ), Size: size}
		m.Owned = &mp
		return nil
	default:
		return fmt.Errorf("maps: unsupported local map encoding %T", data)
	}
}

func toUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case int64:
		return uint64(n), true
	case int:
		return uint64(n), true
	case uint64:
		return n, true
	default:
		return 0, false
	}
}
