package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cnrx/miner/internal/dispatcher"
	"github.com/cnrx/miner/internal/hashrate"
	"github.com/cnrx/miner/internal/metrics"
)

func TestHandleSummaryReturnsExpectedShape(t *testing.T) {
	disp := dispatcher.New("cn", []int{1}, false, nil)
	rates := hashrate.New()
	m := metrics.New("miner_test")

	s := New(Config{Listen: "127.0.0.1:0", ID: "abc123", WorkerID: "rig-1"}, disp, rates, m, nil)

	req := httptest.NewRequest(http.MethodGet, "/1/summary", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ID != "abc123" || body.WorkerID != "rig-1" {
		t.Fatalf("unexpected identity fields: %+v", body)
	}
}

func TestHandleSummaryServedAtBothPaths(t *testing.T) {
	disp := dispatcher.New("cn", []int{1}, false, nil)
	s := New(Config{Listen: "127.0.0.1:0"}, disp, hashrate.New(), metrics.New("miner_test2"), nil)

	for _, path := range []string{"/1/summary", "/api.json"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}
