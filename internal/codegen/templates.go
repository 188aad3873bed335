// Package codegen emits the three wrapper shapes from templates, given
// one NF's analyzed signature and its declared maps. The templates are
// text/template sources; C's single braces never collide with the
// "{{" / "}}" action delimiters, so the wrapper bodies need no escaping
// convention.
package codegen

import "text/template"

// linkWrapperSrc is the in-kernel "link" wrapper: an NF whose
// chain position has explicit branches. It defines the four well-known
// per-instance side tables and dispatches on the NF's returned index.
const linkWrapperSrc = `// Code generated by the nfgraph compiler. DO NOT EDIT.
// NF: {{.NFName}}
#include <linux/bpf.h>
#include <bpf/bpf_helpers.h>

{{.MapDefs}}

struct {
	__uint(type, BPF_MAP_TYPE_ARRAY);
	__uint(max_entries, {{.BranchTableSize}});
	__type(key, __u32);
	__type(value, __u8);
} acts_map SEC(".maps");

struct {
	__uint(type, BPF_MAP_TYPE_PROG_ARRAY);
	__uint(max_entries, {{.BranchTableSize}});
	__type(key, __u32);
	__type(value, __u32);
} progs_map SEC(".maps");

struct dataplane_state {
	__u32 prog_id;
	__u32 num_cores;
};

struct {
	__uint(type, BPF_MAP_TYPE_ARRAY);
	__uint(max_entries, 1);
	__type(key, __u32);
	__type(value, struct dataplane_state);
} my_state_map SEC(".maps");

struct {
	__uint(type, BPF_MAP_TYPE_XSKMAP);
	__uint(max_entries, 8);
	__type(key, __u32);
	__type(value, __u32);
} xsk_map SEC(".maps");

struct upcall_meta {
	__u32 prog_id;
	__u32 return_index;
};

SEC("xdp")
int outer_xdp_sock_prog(struct xdp_md *ctx)
{
	{{.MapStructInit}}
	__u32 idx = {{.NFName}}_packet(ctx{{.MapParamToken}});
	__u32 zero = 0;
	__u8 *kind = bpf_map_lookup_elem(&acts_map, &idx);
	if (!kind)
		return XDP_ABORTED;

	switch (*kind) {
	case 0: // Tx
		return XDP_TX;
	case 1: // Drop
		return XDP_DROP;
	case 2: // Abort
		return XDP_ABORTED;
	case 3: { // Upcall
		struct dataplane_state *st = bpf_map_lookup_elem(&my_state_map, &zero);
		if (!st)
			return XDP_ABORTED;
		if (bpf_xdp_adjust_meta(ctx, -(int)sizeof(struct upcall_meta)))
			return XDP_ABORTED;
		void *meta = (void *)(long)ctx->data_meta;
		void *data = (void *)(long)ctx->data;
		if (meta + sizeof(struct upcall_meta) > data)
			return XDP_ABORTED;
		struct upcall_meta *m = meta;
		m->prog_id = st->prog_id;
		m->return_index = idx;
		__u32 core = bpf_get_prandom_u32() % st->num_cores;
		return bpf_redirect_map(&xsk_map, core, 0);
	}
	case 4: { // Tailcall
		bpf_tail_call(ctx, &progs_map, idx);
		return XDP_ABORTED; // tail-call returned; treat as abort
	}
	case 5: // Pass
		return XDP_PASS;
	default:
		return XDP_ABORTED;
	}
}

char _license[] SEC("license") = "Dual BSD/GPL";
`

// tailWrapperSrc is the in-kernel "tail" wrapper: like the link
// wrapper, but the NF's only outgoing link is tx, so it always
// transmits after invoking the NF.
const tailWrapperSrc = `// Code generated by the nfgraph compiler. DO NOT EDIT.
// NF: {{.NFName}} (tail form)
#include <linux/bpf.h>
#include <bpf/bpf_helpers.h>

{{.MapDefs}}

SEC("xdp")
int outer_xdp_sock_prog(struct xdp_md *ctx)
{
	{{.MapStructInit}}
	{{.NFName}}_packet(ctx{{.MapParamToken}});
	return XDP_TX;
}

char _license[] SEC("license") = "Dual BSD/GPL";
`

// userspaceWrapperSrc is the user-space wrapper: a Go source
// file exposing UserNFProgram, the fixed C-ABI-equivalent symbol the
// dylib store loads via plugin.Lookup.
const userspaceWrapperSrc = `// Code generated by the nfgraph compiler. DO NOT EDIT.
package main

import (
	"github.com/cilium/ebpf"
	"github.com/nfgraph/nfgraph/internal/nf"
	nfmod "{{.ImportPath}}"
)

// UserNFProgram rebinds the positional raw-map vector into {{.NFName}}'s
// declared map struct by position, calls its Packet entry point, and
// returns the raw variant index.
var UserNFProgram nf.UserNFFunc = func(pkt []byte, maps []*ebpf.Map) int {
{{- if .MapParamToken}}
	if len(maps) != {{len .MapFields}} {
		return -1 // arity-mismatch sentinel
	}
	m := &nfmod.{{.MapStructName}}{}
{{- range $i, $f := .MapFields}}
	m.{{$f.Name}} = nf.NewRawMap[{{$f.KeyType}}, {{$f.ValueType}}](maps[{{$i}}])
{{- end}}
	return int(nfmod.Packet(nf.NewBytesPacket(pkt), m))
{{- else}}
	return int(nfmod.Packet(nf.NewBytesPacket(pkt)))
{{- end}}
}
`

var (
	linkWrapperTmpl       = template.Must(template.New("link").Parse(linkWrapperSrc))
	tailWrapperTmpl       = template.Must(template.New("tail").Parse(tailWrapperSrc))
	userspaceWrapperTmpl  = template.Must(template.New("userspace").Parse(userspaceWrapperSrc))
)
