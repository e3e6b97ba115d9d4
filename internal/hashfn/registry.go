// Package hashfn is the (family, variant) → hash function registry the
// Worker main loop dispatches through; the multiway batch size is not part
// of the key. It resolves a runtime
// key to a callable, a scratchpad size, and a self-test reference vector;
// it never owns scheduling or nonce state.
package hashfn

import (
	"fmt"

	"github.com/cnrx/miner/internal/algorithm"
)

// HashSize is the fixed output size of every registered hash function.
const HashSize = 32

// Context is the per-worker hashing context a HashFn reads from and writes
// scratch state into across calls. The CryptoNight-family stand-ins use
// its scratchpad buffer; no registered entry reads or sets the RandomX
// field.
type Context struct {
	Scratchpad []byte
	RandomX    RandomXContext
}

// RandomXContext describes a RandomX hashing context reachable through
// Context. No type in this package implements it: neither the cgo-backed VM
// (randomx_cgo.go) nor the stub (randomx_stub.go) has an EnsureDataset
// method.
type RandomXContext interface {
	// EnsureDataset blocks until the shared dataset for seedHash is ready
	// (delegating to the dataset coordinator) and binds this context's VM
	// to it.
	EnsureDataset(seedHash [32]byte, totalWays int) error
	// CalculateHash computes one RandomX hash of input into a 32-byte
	// output.
	CalculateHash(input []byte, out []byte) error
}

// HashFn computes one hash of input (a blob slice) into out (exactly
// HashSize bytes), using and possibly mutating ctx, at the given block
// height (some variants are height-dependent).
type HashFn func(input []byte, out []byte, ctx *Context, height uint64) error

// Key identifies one registry entry.
type Key struct {
	Family  algorithm.Family
	Variant algorithm.Variant
}

type entry struct {
	fn              HashFn
	scratchpadBytes int
	refInput        []byte
	refOutput       [HashSize]byte
}

// Registry resolves (family, variant) pairs to hash functions and exposes
// self-test reference vectors.
type Registry struct {
	entries map[Key]entry
}

// ErrUnsupported is returned by Resolve when no entry exists for the key.
type ErrUnsupported Key

func (e ErrUnsupported) Error() string {
	return fmt.Sprintf("hashfn: no registered function for family=%v variant=%v", e.Family, e.Variant)
}

// NewRegistry builds the default registry: one stand-in CryptoNight-family
// hash per legal (family, variant) pair backed by blake3 (see
// cn_blake3.go), plus the RandomX entry from the build-tag-selected backend:
// randomx_cgo.go registers one, randomx_stub.go registers none.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[Key]entry)}
	registerCNFamily(r)
	registerRandomX(r)
	return r
}

func (r *Registry) register(family algorithm.Family, variant algorithm.Variant, scratchpadBytes int, fn HashFn) {
	key := Key{Family: family, Variant: variant}
	testInput := referenceInput(key)
	var out [HashSize]byte
	ctx := &Context{Scratchpad: make([]byte, scratchpadBytes)}
	// Errors here would mean the stand-in implementation itself is broken;
	// that is a programmer error, not a runtime condition, so it panics at
	// registry construction rather than surfacing as a self-test failure.
	if err := fn(testInput, out[:], ctx, 0); err != nil {
		panic(fmt.Sprintf("hashfn: reference vector computation failed for %v/%v: %v", family, variant, err))
	}
	r.entries[key] = entry{fn: fn, scratchpadBytes: scratchpadBytes, refInput: testInput, refOutput: out}
}

// referenceInput derives a deterministic, key-specific self-test input so
// distinct (family, variant) pairs don't share a reference vector.
func referenceInput(key Key) []byte {
	in := make([]byte, 76)
	in[0] = byte(key.Family)
	in[1] = byte(key.Variant)
	for i := 2; i < len(in); i++ {
		in[i] = byte(i * 31)
	}
	return in
}

// Resolve returns the hash function and scratchpad size for key.
func (r *Registry) Resolve(key Key) (HashFn, int, error) {
	e, ok := r.entries[key]
	if !ok {
		return nil, 0, ErrUnsupported(key)
	}
	return e.fn, e.scratchpadBytes, nil
}

// ScratchpadBytes returns the scratchpad size for a family, independent of
// variant (all variants of a CryptoNight family share one scratchpad size).
func (r *Registry) ScratchpadBytes(family algorithm.Family) int {
	for k, e := range r.entries {
		if k.Family == family {
			return e.scratchpadBytes
		}
	}
	return 0
}

// DefaultVariant exposes the registry's AUTO-variant selection rule,
// delegating to algorithm.ResolveAuto.
func (r *Registry) DefaultVariant(family algorithm.Family, blobByte0 byte) algorithm.Variant {
	return algorithm.ResolveAuto(family, blobByte0)
}

// SelfTest re-runs the registered function for key against its stored
// input and compares the output to the stored reference vector. It is the
// runtime analogue of the build-time panic in register: an operational
// failure here (e.g. a corrupted VM) is reported to the caller rather than
// panicking, since it happens on the Worker startup path.
func (r *Registry) SelfTest(key Key, ctx *Context) error {
	e, ok := r.entries[key]
	if !ok {
		return ErrUnsupported(key)
	}
	var out [HashSize]byte
	if err := e.fn(e.refInput, out[:], ctx, 0); err != nil {
		return fmt.Errorf("hashfn: self-test invocation failed for %v/%v: %w", key.Family, key.Variant, err)
	}
	if out != e.refOutput {
		return fmt.Errorf("hashfn: self-test vector mismatch for %v/%v", key.Family, key.Variant)
	}
	return nil
}

// Variants returns every variant registered for family, for use by Worker
// startup self-test (which must verify every variant the configured family
// supports, not just the one currently selected).
func (r *Registry) Variants(family algorithm.Family) []algorithm.Variant {
	var out []algorithm.Variant
	for k := range r.entries {
		if k.Family == family {
			out = append(out, k.Variant)
		}
	}
	return out
}
