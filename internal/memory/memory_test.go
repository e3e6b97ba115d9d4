package memory

import "testing"

func TestAllocateFallsBackWithoutHugePages(t *testing.T) {
	r, err := Allocate(PageSize, 1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer Release(r)

	if len(r.Bytes()) != PageSize {
		t.Fatalf("Bytes() length = %d, want %d", len(r.Bytes()), PageSize)
	}
	if r.HugePagesGranted() != 0 {
		t.Fatalf("HugePagesGranted() = %d, want 0 for non-huge-page request", r.HugePagesGranted())
	}
}

func TestAllocateHugePagesDegradesGracefully(t *testing.T) {
	// Huge pages may be unavailable in the test sandbox; Allocate must
	// still succeed via the 4 KiB fallback rather than erroring.
	r, err := Allocate(2*1024*1024, 1, true)
	if err != nil {
		t.Fatalf("Allocate with huge pages requested must still succeed via fallback: %v", err)
	}
	defer Release(r)

	if len(r.Bytes()) != 2*1024*1024 {
		t.Fatalf("Bytes() length = %d, want 2 MiB", len(r.Bytes()))
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	r, err := Allocate(PageSize, 1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := Release(r); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := Release(r); err != nil {
		t.Fatalf("second Release must be a no-op, got: %v", err)
	}
}

func TestReleaseNilRegion(t *testing.T) {
	if err := Release(nil); err != nil {
		t.Fatalf("Release(nil) must be a no-op, got: %v", err)
	}
}
