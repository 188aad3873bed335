package chain

import (
	"strings"

	"github.com/google/uuid"
)

// Build runs the chain builder and
// produces the typed XdpLink graph the installer consumes. analyses
// holds the per-NF source-analyzer output, keyed by NF name;
// ids holds the persistent identity assigned to each NF (normally
// freshly minted with uuid.New() at compile time, kept stable across
// calls so Build is deterministic given the same id table).
func Build(c *Chain, analyses map[string]FnAnalysis, ids map[string]uuid.UUID) (map[uuid.UUID]*XdpLink, error) {
	if err := validateMapBindings(c, analyses); err != nil {
		return nil, err
	}
	if err := validateSharedMaps(c); err != nil {
		return nil, err
	}

	links := make(map[uuid.UUID]*XdpLink, len(c.Functions))
	byName := make(map[string]uuid.UUID, len(c.Functions))
	for name, fn := range c.Functions {
		id, ok := ids[name]
		if !ok {
			id = uuid.New()
		}
		byName[name] = id
		links[id] = &XdpLink{
			ID:         id,
			DisableXDP: fn.DisableXDP,
			MapNames:   sortedMapNames(fn.Maps),
		}
	}

	rxCount := 0
	for i := range c.Links {
		l := &c.Links[i]
		if l.From == SentinelRx {
			rxCount++
			for _, dest := range l.To {
				if dest == SentinelRx {
					return nil, &BuildError{Stage: BuildUndefinedTarget, Link: l, NF: dest}
				}
				id, ok := byName[dest]
				if !ok {
					return nil, &BuildError{Stage: BuildUndefinedTarget, Link: l, NF: dest}
				}
				links[id].Root = true
			}
			continue
		}

		srcID, ok := byName[l.From]
		if !ok {
			return nil, &BuildError{Stage: BuildUndefinedSource, Link: l, NF: l.From}
		}

		if len(l.To) == 1 && l.To[0] == SentinelTx {
			links[srcID].State = XdpLinkState{Tail: true}
			continue
		}

		analysis := analyses[l.From]
		needed := analysis.ReturnType.Len()
		given := len(l.To)
		if given != needed {
			return nil, &BuildError{Stage: BuildBranchMismatch, NF: l.From, Given: given, Needed: needed}
		}

		tableSize := NextPowerOfTwo(needed)
		actions := make([]LinkAction, tableSize)
		for i := range actions {
			// Open question: every slot of the power-of-two table
			// is explicitly initialized; an unpopulated slot defaults
			// to Tx rather than leaving the zero-value ambiguous.
			actions[i] = LinkAction{Kind: ActionTx}
		}

		for i, rawDest := range l.To {
			action, err := resolveAction(rawDest, byName, links, l)
			if err != nil {
				return nil, err
			}
			actions[i] = action
		}

		links[srcID].State = XdpLinkState{Actions: actions}
	}

	switch rxCount {
	case 0:
		return nil, &BuildError{Stage: BuildNoRoot}
	case 1:
		// ok
	default:
		return nil, &BuildError{Stage: BuildMultipleRoots}
	}

	return links, nil
}

// resolveAction resolves one destination name to a LinkAction: strip a
// leading '!' (forced upcall), try an NF-name lookup first, and fall
// back to the sentinel action names on lookup failure.
func resolveAction(raw string, byName map[string]uuid.UUID, links map[uuid.UUID]*XdpLink, l *Link) (LinkAction, error) {
	forced := strings.HasPrefix(raw, "!")
	name := strings.TrimPrefix(raw, "!")

	if id, ok := byName[name]; ok {
		target := links[id]
		if forced || target.DisableXDP {
			return LinkAction{Kind: ActionUpcall, Next: id}, nil
		}
		return LinkAction{Kind: ActionTailcall, Next: id}, nil
	}

	switch name {
	case SentinelTx:
		return LinkAction{Kind: ActionTx}, nil
	case SentinelDrop:
		return LinkAction{Kind: ActionDrop}, nil
	case SentinelPass:
		return LinkAction{Kind: ActionPass}, nil
	case SentinelAbort:
		return LinkAction{Kind: ActionAbort}, nil
	default:
		return LinkAction{}, &BuildError{Stage: BuildUndefinedTarget, Link: l, NF: name}
	}
}

func validateMapBindings(c *Chain, analyses map[string]FnAnalysis) error {
	for name, fn := range c.Functions {
		hasParam := analyses[name].MapTypeName != ""
		hasBindings := len(fn.Maps) > 0
		if hasParam != hasBindings {
			return &BuildError{Stage: BuildMapArityMismatch, NF: name}
		}
	}
	return nil
}

func validateSharedMaps(c *Chain) error {
	for name, fn := range c.Functions {
		for mapName, lm := range fn.Maps {
			if lm.Owned != nil {
				continue
			}
			if _, ok := c.Maps[lm.Shared]; !ok {
				return &BuildError{Stage: BuildSharedMapUndefined, NF: name + "." + mapName}
			}
		}
	}
	return nil
}

func sortedMapNames(maps map[string]LocalMap) []string {
	names := make([]string, 0, len(maps))
	for name := range maps {
		names = append(names, name)
	}
	// Declaration order isn't recoverable from a decoded TOML map; a
	// stable lexical order keeps codegen and the installer's map-vector
	// rebinding deterministic across runs.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}
