// Package schema generates JSON Schema documents for nfgraph's two
// user-facing document shapes — the daemon/agent Config
// (internal/config) and a chain.toml description (internal/chain) —
// for IDE autocompletion and file validation.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/nfgraph/nfgraph/internal/chain"
	"github.com/nfgraph/nfgraph/internal/config"
)

// Kind selects which document Generate reflects a schema for.
type Kind string

const (
	KindDaemon Kind = "daemon"
	KindChain  Kind = "chain"
)

// Generate returns the pretty-printed JSON Schema for kind.
func Generate(kind Kind) ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var (
		root  *jsonschema.Schema
		title string
		desc  string
	)

	switch kind {
	case KindDaemon:
		root = reflector.Reflect(&config.Config{})
		title = "nfgraph daemon/agent configuration"
		desc = "Configuration schema shared by chaind and chainagent"
	case KindChain:
		root = reflector.Reflect(&chain.Chain{})
		title = "nfgraph chain description"
		desc = "Schema for chain.toml, the NF chain topology input to chaind build"
	default:
		return nil, fmt.Errorf("unknown schema kind: %s", kind)
	}

	root.Version = "https://json-schema.org/draft/2020-12/schema"
	root.Title = title
	root.Description = desc

	out, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return out, nil
}
