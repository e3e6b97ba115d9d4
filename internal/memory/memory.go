// Package memory allocates the aligned, ideally huge-page-backed scratchpad
// regions each Worker hashes into.
package memory

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PageSize is the standard 4 KiB small-page size of the non-huge-page
// fallback mapping.
const PageSize = 4096

// Region is a single allocated scratchpad backing store. Release frees it;
// calling Release again, or on a zero Region, is a safe no-op.
type Region struct {
	data         []byte
	hugePages    int
	requested    int
	locked       bool
	useHugePages bool
}

// Bytes returns the backing slice. Its length is always the originally
// requested size, regardless of which allocation path succeeded.
func (r *Region) Bytes() []byte { return r.data }

// HugePagesGranted returns how many of the requested huge pages were
// actually backed by huge pages (0 if the fallback path was used).
func (r *Region) HugePagesGranted() int { return r.hugePages }

// RequestedPages returns how many huge pages this region's caller asked
// for, regardless of whether the huge-page or fallback path was used.
func (r *Region) RequestedPages() int { return r.requested }

// Locked reports whether the region's pages were successfully locked into
// RAM with mlock.
func (r *Region) Locked() bool { return r.locked }

// Allocate requests an aligned region of size bytes, sized to back `pages`
// huge pages if hugePages is requested. It tries a huge-page-backed mapping
// first (MAP_HUGETLB|MAP_POPULATE), falls back to a standard anonymous
// mapping on failure, prefaults and advises the kernel the access pattern
// is random, and attempts to mlock the result. Only a failure of the 4 KiB
// fallback itself is reported as an error.
//
// Ported from Mem::allocate (Mem_unix.cpp): huge pages first, recursive
// fallback to a plain allocation, madvise, then best-effort mlock.
func Allocate(size int, pages int, hugePages bool) (*Region, error) {
	if hugePages {
		if data, err := mmapHugePages(size); err == nil {
			r := &Region{data: data, hugePages: pages, requested: pages, useHugePages: true}
			adviseAndLock(r)
			return r, nil
		}
	}

	data, err := mmapPlain(size)
	if err != nil {
		return nil, fmt.Errorf("memory: fallback allocation of %d bytes failed: %w", size, err)
	}
	r := &Region{data: data, hugePages: 0, requested: pages}
	adviseAndLock(r)
	return r, nil
}

func adviseAndLock(r *Region) {
	if len(r.data) == 0 {
		return
	}
	_ = unix.Madvise(r.data, unix.MADV_RANDOM)
	_ = unix.Madvise(r.data, unix.MADV_WILLNEED)
	if unix.Mlock(r.data) == nil {
		r.locked = true
	}
}

func mmapHugePages(size int) ([]byte, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB|unix.MAP_POPULATE)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func mmapPlain(size int) ([]byte, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Release unmaps the region, symmetrically unlocking first if it was
// locked. Idempotent-safe: calling it twice, or on a Region whose
// allocation never succeeded, does not panic.
func Release(r *Region) error {
	if r == nil || len(r.data) == 0 {
		return nil
	}
	if r.locked {
		_ = unix.Munlock(r.data)
		r.locked = false
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
