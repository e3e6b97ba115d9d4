package worker

import (
	"encoding/hex"
	"testing"

	"github.com/cnrx/miner/internal/algorithm"
	"github.com/cnrx/miner/internal/dataset"
	"github.com/cnrx/miner/internal/hashfn"
	"github.com/cnrx/miner/internal/job"
)

func makeBlobHex(size int, nonce uint32) string {
	b := make([]byte, size)
	b[nonceOffset] = byte(nonce)
	b[nonceOffset+1] = byte(nonce >> 8)
	b[nonceOffset+2] = byte(nonce >> 16)
	b[nonceOffset+3] = byte(nonce >> 24)
	return hex.EncodeToString(b)
}

func newTestWorker(threadID, ways, offset, totalWays int) *Worker {
	reg := hashfn.NewRegistry()
	w, err := New(threadID, ways, offset, totalWays, algorithm.CN, reg, dataset.NewCoordinator(), nil, false)
	if err != nil {
		panic(err)
	}
	return w
}

func makeJob(t *testing.T, id string, poolID int, nonce uint32, nicehash bool) job.Job {
	t.Helper()
	var j job.Job
	j.ID = id
	j.PoolID = poolID
	j.Algo = algorithm.Algorithm{Family: algorithm.CN, Variant: algorithm.VariantHalf}
	if err := j.SetBlob(makeBlobHex(76, nonce)); err != nil {
		t.Fatal(err)
	}
	if nicehash {
		j.Nicehash = true
	}
	if err := j.SetTarget("ffffffff"); err != nil {
		t.Fatal(err)
	}
	return j
}

// TestSeedNonceS1 is scenario S1: W=4, N=1, non-nicehash. Four single-way
// workers at offsets 0..3 must seed nonces {0, 0x3FFFFFFF, 0x7FFFFFFE,
// 0xBFFFFFFD}.
func TestSeedNonceS1(t *testing.T) {
	j := makeJob(t, "job1", 0, 0, false)
	want := []uint32{0, 0x3FFFFFFF, 0x7FFFFFFE, 0xBFFFFFFD}
	for offset, w := range want {
		worker := newTestWorker(0, 1, offset, 4)
		got := worker.seedNonce(j, 0)
		if got != w {
			t.Fatalf("offset %d: seedNonce = %#x, want %#x", offset, got, w)
		}
	}
}

// TestSeedNonceS2 is scenario S2: two workers with N=2 each (TotalWays=4),
// nicehash with arriving nonce 0xAB000000. Slot nonces must preserve the
// high byte 0xAB and use floor(0xFFFFFF/4) strides across the four total
// slots {0,1,2,3}.
func TestSeedNonceS2(t *testing.T) {
	j := makeJob(t, "job2", 0, 0xAB000000, true)

	w0 := newTestWorker(0, 2, 0, 4)
	if got := w0.seedNonce(j, 0); got != 0xAB000000 {
		t.Fatalf("slot 0: seedNonce = %#x, want 0xAB000000", got)
	}
	if got := w0.seedNonce(j, 1); got != 0xAB000000|0x3FFFFF {
		t.Fatalf("slot 1: seedNonce = %#x, want %#x", got, 0xAB000000|0x3FFFFF)
	}

	w1 := newTestWorker(1, 2, 2, 4)
	if got := w1.seedNonce(j, 0); got != 0xAB000000|0x7FFFFE {
		t.Fatalf("slot 2: seedNonce = %#x, want %#x", got, 0xAB000000|0x7FFFFE)
	}
	if got := w1.seedNonce(j, 1); got != 0xAB000000|0xBFFFFD {
		t.Fatalf("slot 3: seedNonce = %#x, want %#x", got, 0xAB000000|0xBFFFFD)
	}
}

// TestConsumeJobSeedsFreshOnNewJob verifies a brand new job id seeds nonce
// cursors from scratch.
func TestConsumeJobSeedsFreshOnNewJob(t *testing.T) {
	w := newTestWorker(0, 1, 0, 4)
	j1 := makeJob(t, "job1", 0, 0, false)
	w.consumeJob(j1)
	if !w.cur.hasJob {
		t.Fatal("expected a job to be adopted")
	}
	if w.cur.nonceCursors[0] != 0 {
		t.Fatalf("nonce cursor = %#x, want 0", w.cur.nonceCursors[0])
	}
}

// TestConsumeJobDonationRoundTrip is scenario S6: a worker mining a real
// job, handed a donation job, then handed back a job with the same id as
// the one it was mining before donation, must resume with its nonce
// cursors exactly where they left off.
func TestConsumeJobDonationRoundTrip(t *testing.T) {
	w := newTestWorker(0, 1, 1, 4)
	real := makeJob(t, "real-job", 3, 0, false)
	w.consumeJob(real)

	const advancedNonce = 0x12345
	w.cur.nonceCursors[0] = advancedNonce

	donation := makeJob(t, "donation-job", job.Donation, 0, false)
	w.consumeJob(donation)
	if !w.hasPaused {
		t.Fatal("expected donation handoff to save the real job's state")
	}
	if w.cur.job.ID != "donation-job" {
		t.Fatalf("expected donation job to be adopted, got %q", w.cur.job.ID)
	}

	resumed := makeJob(t, "real-job", 3, 0, false)
	w.consumeJob(resumed)
	if w.hasPaused {
		t.Fatal("expected paused state to be cleared after resume")
	}
	if w.cur.job.ID != "real-job" {
		t.Fatalf("expected real job resumed, got %q", w.cur.job.ID)
	}
	if w.cur.nonceCursors[0] != advancedNonce {
		t.Fatalf("nonce cursor after resume = %#x, want %#x", w.cur.nonceCursors[0], advancedNonce)
	}
}

// TestConsumeJobIgnoresStaleIDWithoutActiveDonation guards against reusing
// pausedState when the worker isn't currently mining the donation job: a
// later real job whose id collides with an old, already-resumed paused
// job's id (pool job-id reuse after reconnect) must seed fresh, not
// silently restore stale nonce cursors.
func TestConsumeJobIgnoresStaleIDWithoutActiveDonation(t *testing.T) {
	w := newTestWorker(0, 1, 1, 4)
	real := makeJob(t, "real-job", 3, 0, false)
	w.consumeJob(real)

	const advancedNonce = 0x12345
	w.cur.nonceCursors[0] = advancedNonce

	donation := makeJob(t, "donation-job", job.Donation, 0, false)
	w.consumeJob(donation)

	resumed := makeJob(t, "real-job", 3, 0, false)
	w.consumeJob(resumed)
	if w.hasPaused {
		t.Fatal("expected paused state to be cleared after resume")
	}

	// The worker is no longer mining the donation job (it resumed real-job
	// above), so a later job that happens to reuse the old paused id must
	// not be treated as a donation resume.
	reusedID := makeJob(t, "real-job", 3, 999, false)
	w.consumeJob(reusedID)
	if w.cur.nonceCursors[0] == advancedNonce {
		t.Fatalf("stale paused state was restored for a job outside an active donation round")
	}
}

// TestConsumeJobSameJobPreservesNonce verifies that a re-published job that
// compares equal (same id/blob) does not reset nonce cursors.
func TestConsumeJobSameJobPreservesNonce(t *testing.T) {
	w := newTestWorker(0, 1, 0, 1)
	j := makeJob(t, "job1", 0, 0, false)
	w.consumeJob(j)
	w.cur.nonceCursors[0] = 999
	w.consumeJob(j)
	if w.cur.nonceCursors[0] != 999 {
		t.Fatalf("republishing an identical job must not reset nonce cursor, got %d", w.cur.nonceCursors[0])
	}
}

// TestHashOnceCNFamilySubmitsOnMeetTarget drives a single hashOnce call
// against a stand-in CN variant with a guaranteed-meeting target and
// confirms a solution is submitted and the nonce advances.
func TestHashOnceCNFamilySubmitsOnMeetTarget(t *testing.T) {
	w := newTestWorker(0, 1, 0, 1)
	j := makeJob(t, "job1", 0, 0, false)
	if err := j.SetTarget("ffffffffffffffff"); err != nil {
		t.Fatal(err)
	}
	w.consumeJob(j)

	disp := &fakeDispatcher{seq: 1, job: j}
	if err := w.hashOnce(disp); err != nil {
		t.Fatalf("hashOnce: %v", err)
	}
	if w.cur.nonceCursors[0] != 1 {
		t.Fatalf("nonce cursor after one hash = %d, want 1", w.cur.nonceCursors[0])
	}
	if len(disp.solutions) != 1 {
		t.Fatalf("expected exactly one solution submitted, got %d", len(disp.solutions))
	}
}

type fakeDispatcher struct {
	seq       uint64
	paused    bool
	job       job.Job
	solutions []job.Solution
}

func (f *fakeDispatcher) Sequence() uint64      { return f.seq }
func (f *fakeDispatcher) Paused() bool          { return f.paused }
func (f *fakeDispatcher) CurrentJob() job.Job   { return f.job }
func (f *fakeDispatcher) Submit(s job.Solution) { f.solutions = append(f.solutions, s) }
