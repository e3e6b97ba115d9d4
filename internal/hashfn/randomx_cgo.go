//go:build cgo && randomx

// Package hashfn — RandomX backend. Bindings to the reference RandomX C
// library, adapted from common/randomx/randomx.go: a Cache wraps
// randomx_cache, a Dataset wraps randomx_dataset (sized and range-filled by
// the dataset coordinator's barrier, not by this file), and a VM wraps
// randomx_vm bound to one or the other.
package hashfn

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/randomx/include
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/randomx/lib -lrandomx -lstdc++ -lm
#cgo linux LDFLAGS: -lpthread

#include <stdlib.h>
#include <randomx.h>
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/cnrx/miner/internal/algorithm"
)

var (
	errCacheAlloc   = errors.New("hashfn: randomx cache allocation failed")
	errDatasetAlloc = errors.New("hashfn: randomx dataset allocation failed")
	errVMCreate     = errors.New("hashfn: randomx VM creation failed")
)

// flagsForSeed returns the flags the dataset coordinator uses: the
// library's recommended flags (hardware AES when available) plus full
// dataset mode and JIT. There is no large-page flag and no fallback flag
// set; an allocation that fails with these flags fails outright.
func flagsForSeed() C.randomx_flags {
	return C.randomx_get_flags() | C.RANDOMX_FLAG_FULL_MEM | C.RANDOMX_FLAG_JIT
}

// Cache wraps randomx_cache, keyed by seed hash.
type Cache struct {
	ptr *C.randomx_cache
}

// NewCache allocates and initializes a cache from a 32-byte seed.
func NewCache(seed [32]byte) (*Cache, error) {
	ptr := C.randomx_alloc_cache(flagsForSeed())
	if ptr == nil {
		return nil, errCacheAlloc
	}
	C.randomx_init_cache(ptr, unsafe.Pointer(&seed[0]), C.size_t(len(seed)))
	return &Cache{ptr: ptr}, nil
}

// Close releases the cache. Safe to call once only.
func (c *Cache) Close() {
	if c.ptr != nil {
		C.randomx_release_cache(c.ptr)
		c.ptr = nil
	}
}

// Dataset wraps randomx_dataset. It is allocated once and its items are
// filled in disjoint ranges by every worker thread under the dataset
// coordinator's barrier (see internal/dataset).
type Dataset struct {
	ptr *C.randomx_dataset
}

// NewDataset allocates (but does not initialize) a full dataset.
func NewDataset() (*Dataset, error) {
	ptr := C.randomx_alloc_dataset(flagsForSeed())
	if ptr == nil {
		return nil, errDatasetAlloc
	}
	return &Dataset{ptr: ptr}, nil
}

// ItemCount returns the total number of dataset items, used by the
// coordinator to compute each thread's [start, start+count) range.
func ItemCount() uint64 {
	return uint64(C.randomx_dataset_item_count())
}

// InitRange initializes dataset items [start, start+count) from cache.
// Called once per thread per seed change, inside the coordinator's Phase B.
func (d *Dataset) InitRange(cache *Cache, start, count uint64) {
	C.randomx_init_dataset(d.ptr, cache.ptr, C.ulong(start), C.ulong(count))
}

// Close releases the dataset. Safe to call once only.
func (d *Dataset) Close() {
	if d.ptr != nil {
		C.randomx_release_dataset(d.ptr)
		d.ptr = nil
	}
}

// VM wraps randomx_vm, bound either to a dataset (mining/full-memory mode)
// or a cache alone (light mode, used only for self-test).
type VM struct {
	ptr *C.randomx_vm
}

// NewVM creates a full-memory VM bound to dataset, backed by cache for the
// scratchpad-independent parts of initialization.
func NewVM(cache *Cache, dataset *Dataset) (*VM, error) {
	var ptr *C.randomx_vm
	if dataset != nil {
		ptr = C.randomx_create_vm(flagsForSeed(), cache.ptr, dataset.ptr)
	} else {
		ptr = C.randomx_create_vm(C.randomx_get_flags(), cache.ptr, nil)
	}
	if ptr == nil {
		return nil, errVMCreate
	}
	return &VM{ptr: ptr}, nil
}

// CalculateHash computes one RandomX hash of input into a 32-byte output.
func (v *VM) CalculateHash(input []byte, out []byte) error {
	if len(out) < HashSize {
		return errors.New("hashfn: randomx output buffer too small")
	}
	var inPtr unsafe.Pointer
	if len(input) > 0 {
		inPtr = unsafe.Pointer(&input[0])
	}
	C.randomx_calculate_hash(v.ptr, inPtr, C.size_t(len(input)), unsafe.Pointer(&out[0]))
	return nil
}

// Close releases the VM. Safe to call once only.
func (v *VM) Close() {
	if v.ptr != nil {
		C.randomx_destroy_vm(v.ptr)
		v.ptr = nil
	}
}

// registerRandomX registers a self-test-only RANDOM_X entry: a throwaway
// light-mode (cache, no dataset) VM built from the reference seed. The
// production path never goes through this function — the Worker main loop
// dispatches RX_DEFYX directly against a VM bound to the dataset
// coordinator's shared dataset, per the design note that RandomX's dataset
// barrier is orchestrated outside the generic registry.
func registerRandomX(r *Registry) {
	r.register(algorithm.RandomX, algorithm.VariantRXDefyx, 0, func(input []byte, out []byte, ctx *Context, height uint64) error {
		var seed [32]byte
		copy(seed[:], input)
		cache, err := NewCache(seed)
		if err != nil {
			return err
		}
		defer cache.Close()
		vm, err := NewVM(cache, nil)
		if err != nil {
			return err
		}
		defer vm.Close()
		return vm.CalculateHash(input, out)
	})
}
