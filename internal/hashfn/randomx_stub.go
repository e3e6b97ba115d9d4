//go:build !cgo || !randomx

package hashfn

import "errors"

// errNoRandomX is returned by every RandomX type in this build: it was
// compiled without CGO or without the randomx build tag.
var errNoRandomX = errors.New("hashfn: built without RandomX support (requires CGO and -tags randomx)")

// registerRandomX is a no-op when built without CGO or the randomx build
// tag: no RANDOM_X entry is registered, and Resolve/SelfTest for it report
// ErrUnsupported rather than the package failing to build. Mirrors the
// worker_stub.go pattern of degrading gracefully instead of requiring every
// build to link the C library.
func registerRandomX(r *Registry) {}

// Cache stubs the cgo-backed RandomX cache so callers (internal/dataset)
// compile identically regardless of build tags.
type Cache struct{}

// NewCache always fails in this build.
func NewCache(seed [32]byte) (*Cache, error) { return nil, errNoRandomX }

// Close is a no-op stub.
func (c *Cache) Close() {}

// Dataset stubs the cgo-backed RandomX dataset.
type Dataset struct{}

// NewDataset always fails in this build.
func NewDataset() (*Dataset, error) { return nil, errNoRandomX }

// ItemCount returns 0 in this build.
func ItemCount() uint64 { return 0 }

// InitRange is a no-op stub.
func (d *Dataset) InitRange(cache *Cache, start, count uint64) {}

// Close is a no-op stub.
func (d *Dataset) Close() {}

// VM stubs the cgo-backed RandomX VM.
type VM struct{}

// NewVM always fails in this build.
func NewVM(cache *Cache, dataset *Dataset) (*VM, error) { return nil, errNoRandomX }

// CalculateHash always fails in this build.
func (v *VM) CalculateHash(input []byte, out []byte) error { return errNoRandomX }

// Close is a no-op stub.
func (v *VM) Close() {}
