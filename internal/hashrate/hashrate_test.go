package hashrate

import (
	"testing"
	"time"
)

func TestCalcComputesRate(t *testing.T) {
	h := New()
	base := time.Now()
	h.Add(0, base, 0)
	h.Add(0, base.Add(1*time.Second), 1000)
	h.Add(0, base.Add(2*time.Second), 2000)

	rate := h.Calc(0, Short)
	if rate < 999 || rate > 1001 {
		t.Fatalf("Calc(Short) = %v, want ~1000", rate)
	}
}

func TestCalcInsufficientSamples(t *testing.T) {
	h := New()
	h.Add(0, time.Now(), 100)
	if rate := h.Calc(0, Short); rate != 0 {
		t.Fatalf("Calc with one sample must be 0, got %v", rate)
	}
	if rate := h.Calc(1, Short); rate != 0 {
		t.Fatalf("Calc for unknown thread must be 0, got %v", rate)
	}
}

func TestTotalSumsAcrossThreads(t *testing.T) {
	h := New()
	base := time.Now()
	h.Add(0, base, 0)
	h.Add(0, base.Add(time.Second), 1000)
	h.Add(1, base, 0)
	h.Add(1, base.Add(time.Second), 2000)

	total := h.Total(Short)
	if total < 2999 || total > 3001 {
		t.Fatalf("Total(Short) = %v, want ~3000", total)
	}
}

func TestHighestTracksPeak(t *testing.T) {
	h := New()
	base := time.Now()
	h.Add(0, base, 0)
	h.Add(0, base.Add(time.Second), 5000)
	h.UpdateHighest()
	if h.Highest() < 4999 {
		t.Fatalf("Highest() = %v, want >= ~5000", h.Highest())
	}

	h.Add(0, base.Add(2*time.Second), 5100) // rate drops
	h.UpdateHighest()
	if h.Highest() < 4999 {
		t.Fatalf("Highest() must not regress below the prior peak, got %v", h.Highest())
	}
}
