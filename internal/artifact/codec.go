package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"

	"github.com/nfgraph/nfgraph/internal/chain"
)

// Encode serializes a Bundle into the compact binary format carried
// over the wire: explicit length-prefixed fields, written in a fixed,
// deterministic order (map keys sorted) so that Encode(Decode(b)) == b
// byte-for-byte.
func Encode(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer

	if err := writeU32(&buf, uint32(len(b.Links))); err != nil {
		return nil, fmt.Errorf("encode links length: %w", err)
	}
	for i := range b.Links {
		if err := encodeLink(&buf, &b.Links[i]); err != nil {
			return nil, fmt.Errorf("encode link %d: %w", i, err)
		}
	}

	keys := make([]string, 0, len(b.NFs))
	for k := range b.NFs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := writeU32(&buf, uint32(len(keys))); err != nil {
		return nil, fmt.Errorf("encode nfs length: %w", err)
	}
	for _, k := range keys {
		nf := b.NFs[k]
		if err := encodeInstalledFunction(&buf, &nf); err != nil {
			return nil, fmt.Errorf("encode nf %s: %w", k, err)
		}
	}

	return buf.Bytes(), nil
}

// Decode deserializes a Bundle previously produced by Encode.
func Decode(data []byte) (*Bundle, error) {
	r := bytes.NewReader(data)

	numLinks, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("decode links length: %w", err)
	}
	links := make([]chain.XdpLink, numLinks)
	for i := range links {
		l, err := decodeLink(r)
		if err != nil {
			return nil, fmt.Errorf("decode link %d: %w", i, err)
		}
		links[i] = l
	}

	numNFs, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("decode nfs length: %w", err)
	}
	nfs := make(map[string]chain.InstalledFunction, numNFs)
	for i := 0; i < int(numNFs); i++ {
		nf, err := decodeInstalledFunction(r)
		if err != nil {
			return nil, fmt.Errorf("decode nf %d: %w", i, err)
		}
		nfs[nf.ID.String()] = nf
	}

	return &Bundle{Links: links, NFs: nfs}, nil
}

func encodeLink(buf *bytes.Buffer, l *chain.XdpLink) error {
	if err := writeUUID(buf, l.ID); err != nil {
		return err
	}
	if err := writeBool(buf, l.Root); err != nil {
		return err
	}
	if err := writeBool(buf, l.DisableXDP); err != nil {
		return err
	}
	if err := writeU32(buf, uint32(len(l.MapNames))); err != nil {
		return err
	}
	for _, n := range l.MapNames {
		if err := writeString(buf, n); err != nil {
			return err
		}
	}
	if err := writeBool(buf, l.State.Tail); err != nil {
		return err
	}
	if !l.State.Tail {
		if err := writeU32(buf, uint32(len(l.State.Actions))); err != nil {
			return err
		}
		for _, a := range l.State.Actions {
			if err := buf.WriteByte(byte(a.Kind)); err != nil {
				return err
			}
			if err := writeUUID(buf, a.Next); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeLink(r *bytes.Reader) (chain.XdpLink, error) {
	var l chain.XdpLink
	var err error

	if l.ID, err = readUUID(r); err != nil {
		return l, err
	}
	if l.Root, err = readBool(r); err != nil {
		return l, err
	}
	if l.DisableXDP, err = readBool(r); err != nil {
		return l, err
	}
	numMaps, err := readU32(r)
	if err != nil {
		return l, err
	}
	l.MapNames = make([]string, numMaps)
	for i := range l.MapNames {
		if l.MapNames[i], err = readString(r); err != nil {
			return l, err
		}
	}
	tail, err := readBool(r)
	if err != nil {
		return l, err
	}
	if tail {
		l.State = chain.XdpLinkState{Tail: true}
		return l, nil
	}
	numActions, err := readU32(r)
	if err != nil {
		return l, err
	}
	actions := make([]chain.LinkAction, numActions)
	for i := range actions {
		kindByte, err := r.ReadByte()
		if err != nil {
			return l, err
		}
		next, err := readUUID(r)
		if err != nil {
			return l, err
		}
		actions[i] = chain.LinkAction{Kind: chain.ActionKind(kindByte), Next: next}
	}
	l.State = chain.XdpLinkState{Actions: actions}
	return l, nil
}

func encodeInstalledFunction(buf *bytes.Buffer, f *chain.InstalledFunction) error {
	if err := writeUUID(buf, f.ID); err != nil {
		return err
	}
	if err := writeBool(buf, f.EBPF != nil); err != nil {
		return err
	}
	if f.EBPF != nil {
		if err := writeBytes(buf, f.EBPF.LinkForm); err != nil {
			return err
		}
		if err := writeBytes(buf, f.EBPF.TailForm); err != nil {
			return err
		}
	}
	if err := writeBool(buf, f.Elf != nil); err != nil {
		return err
	}
	if f.Elf != nil {
		if err := writeBytes(buf, f.Elf); err != nil {
			return err
		}
	}
	if err := writeU32(buf, uint32(len(f.MapNames))); err != nil {
		return err
	}
	for _, n := range f.MapNames {
		if err := writeString(buf, n); err != nil {
			return err
		}
	}
	return nil
}

func decodeInstalledFunction(r *bytes.Reader) (chain.InstalledFunction, error) {
	var f chain.InstalledFunction
	var err error

	if f.ID, err = readUUID(r); err != nil {
		return f, err
	}
	hasEBPF, err := readBool(r)
	if err != nil {
		return f, err
	}
	if hasEBPF {
		linkForm, err := readBytes(r)
		if err != nil {
			return f, err
		}
		tailForm, err := readBytes(r)
		if err != nil {
			return f, err
		}
		f.EBPF = &chain.EBPFPayload{LinkForm: linkForm, TailForm: tailForm}
	}
	hasElf, err := readBool(r)
	if err != nil {
		return f, err
	}
	if hasElf {
		if f.Elf, err = readBytes(r); err != nil {
			return f, err
		}
	}
	numMaps, err := readU32(r)
	if err != nil {
		return f, err
	}
	f.MapNames = make([]string, numMaps)
	for i := range f.MapNames {
		if f.MapNames[i], err = readString(r); err != nil {
			return f, err
		}
	}
	return f, nil
}

// --- primitive wire helpers ---

func writeU32(w *bytes.Buffer, v uint32) error {
	return binary.Write(w, binary.BigEndian, v)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeBool(w *bytes.Buffer, v bool) error {
	var b byte
	if v {
		b = 1
	}
	return w.WriteByte(b)
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func writeBytes(w *bytes.Buffer, v []byte) error {
	if err := writeU32(w, uint32(len(v))); err != nil {
		return err
	}
	_, err := w.Write(v)
	return err
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeString(w *bytes.Buffer, s string) error {
	return writeBytes(w, []byte(s))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func writeUUID(w *bytes.Buffer, id uuid.UUID) error {
	_, err := w.Write(id[:])
	return err
}

func readUUID(r *bytes.Reader) (uuid.UUID, error) {
	var id uuid.UUID
	_, err := io.ReadFull(r, id[:])
	return id, err
}
