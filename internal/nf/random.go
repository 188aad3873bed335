package nf

import "math/rand"

// RandomU32 returns a pseudo-random 32-bit value for use inside a
// user-space NF. The in-kernel wrapper's equivalent decision instead
// emits a literal bpf_get_prandom_u32() call as source text in the
// codegen templates; it never runs through this package.
func RandomU32() uint32 {
	return rand.Uint32()
}
