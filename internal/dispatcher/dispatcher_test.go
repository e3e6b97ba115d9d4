package dispatcher

import (
	"testing"
	"time"

	"github.com/cnrx/miner/internal/algorithm"
	"github.com/cnrx/miner/internal/job"
)

func makeJob(t *testing.T, id string) job.Job {
	t.Helper()
	var j job.Job
	j.ID = id
	j.Algo = algorithm.Algorithm{Family: algorithm.CN, Variant: algorithm.VariantHalf}
	blob := make([]byte, 76)
	if err := j.SetBlob(hexEncode(blob)); err != nil {
		t.Fatal(err)
	}
	if err := j.SetTarget("ffffffffffffffff"); err != nil {
		t.Fatal(err)
	}
	return j
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}

// TestSetJobNeverCollidesWithCancellationSentinel is invariant 4: sequence
// must never land on 0 as a result of SetJob, only as the explicit result
// of Stop.
func TestSetJobNeverCollidesWithCancellationSentinel(t *testing.T) {
	d := New("cn", []int{1}, false, nil)
	for i := 0; i < 10; i++ {
		d.SetJob(makeJob(t, "job"), false)
		if d.Sequence() == 0 {
			t.Fatalf("sequence landed on the cancellation sentinel after %d SetJob calls", i+1)
		}
	}
}

// TestStartStopDrainsWorkersCleanly exercises one full start/submit/stop
// cycle against a single single-way worker mining a guaranteed-to-meet
// target, and confirms a solution is received and Stop returns promptly.
func TestStartStopDrainsWorkersCleanly(t *testing.T) {
	d := New("cn", []int{1}, false, nil)
	d.SetJob(makeJob(t, "job1"), false)
	d.Start()

	select {
	case sol, ok := <-d.Solutions():
		if !ok {
			t.Fatal("solutions channel closed before any solution arrived")
		}
		if sol.JobID != "job1" {
			t.Fatalf("solution JobID = %q, want job1", sol.JobID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no solution observed within timeout")
	}

	done := make(chan struct{})
	go func() { d.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
}

// TestSetEnabledAndPauseBumpSequence confirms both toggles advance sequence
// so a worker spinning in hashLoop (guarded only by a sequence comparison)
// notices without waiting for an unrelated job change. SetEnabled must be a
// no-op when the requested state already holds.
func TestSetEnabledAndPauseBumpSequence(t *testing.T) {
	d := New("cn", []int{1}, false, nil)
	d.SetJob(makeJob(t, "job"), false)
	seq0 := d.Sequence()

	d.SetEnabled(false)
	seq1 := d.Sequence()
	if seq1 == seq0 {
		t.Fatal("SetEnabled(false) did not bump sequence on an actual transition")
	}
	if !d.Paused() {
		t.Fatal("SetEnabled(false) did not set paused")
	}

	d.SetEnabled(false)
	if d.Sequence() != seq1 {
		t.Fatal("SetEnabled(false) bumped sequence again despite no state change")
	}

	d.SetEnabled(true)
	seq2 := d.Sequence()
	if seq2 == seq1 {
		t.Fatal("SetEnabled(true) did not bump sequence on an actual transition")
	}
	if d.Paused() {
		t.Fatal("SetEnabled(true) left paused set")
	}

	d.Pause()
	seq3 := d.Sequence()
	if seq3 == seq2 {
		t.Fatal("Pause did not bump sequence")
	}
	if !d.Paused() {
		t.Fatal("Pause did not set paused")
	}

	d.Pause()
	if d.Sequence() == seq3 {
		t.Fatal("Pause's second call did not bump sequence")
	}
}

// TestStatusReportsThreadCount verifies the launch summary.
func TestStatusReportsThreadCount(t *testing.T) {
	d := New("cn", []int{1, 2, 1}, false, nil)
	status := d.Status()
	if status.ThreadsConfigured != 3 {
		t.Fatalf("ThreadsConfigured = %d, want 3", status.ThreadsConfigured)
	}
	if status.ThreadsStarted != 3 {
		t.Fatalf("ThreadsStarted = %d, want 3", status.ThreadsStarted)
	}
}
