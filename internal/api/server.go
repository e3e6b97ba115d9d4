// Package api serves the HTTP introspection surface: GET /1/summary and
// GET /api.json, both returning the same document. Shape ported from
// tos-pool/internal/api/server.go's gin.Engine + http.Server pairing; the
// summary is computed on each request, not cached. Response fields are spec.md §6's summary
// document, sourced from Api.cpp's equivalent JSON writer.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cnrx/miner/internal/dispatcher"
	"github.com/cnrx/miner/internal/hashrate"
	"github.com/cnrx/miner/internal/identity"
	"github.com/cnrx/miner/internal/metrics"
)

// HashrateSummary is the hashrate object embedded in the summary document.
type HashrateSummary struct {
	Short   float64 `json:"short"`
	Medium  float64 `json:"medium"`
	Long    float64 `json:"long"`
	Highest float64 `json:"highest"`
}

// MemorySummary reports the core's memory allocation outcome.
type MemorySummary struct {
	Granted   int `json:"granted"`
	Requested int `json:"requested"`
}

// Summary is the full GET /1/summary and GET /api.json response body.
type Summary struct {
	ID            string          `json:"id"`
	WorkerID      string          `json:"worker_id"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Hashrate      HashrateSummary `json:"hashrate"`
	HugePages     [2]int          `json:"hugepages"`
	Memory        MemorySummary   `json:"memory"`
}

// Server is the HTTP introspection server.
type Server struct {
	router *gin.Engine
	server *http.Server

	disp    *dispatcher.Dispatcher
	rates   *hashrate.HashRate
	metrics *metrics.Metrics

	id       string
	workerID string
	start    time.Time
	logger   *slog.Logger
}

// Config carries the listen address and the identity strings; New derives
// an empty ID or WorkerID through internal/identity. The dispatcher and
// metrics registry are passed to New separately.
type Config struct {
	Listen   string
	ID       string
	WorkerID string
}

// New builds a Server. gin runs in release mode, matching the teacher's
// server construction, since the introspection surface never needs gin's
// debug request logging in production.
func New(cfg Config, disp *dispatcher.Dispatcher, rates *hashrate.HashRate, m *metrics.Metrics, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:   router,
		disp:     disp,
		rates:    rates,
		metrics:  m,
		id:       cfg.ID,
		workerID: cfg.WorkerID,
		start:    time.Now(),
		logger:   logger.With("component", "api"),
	}
	if s.id == "" {
		s.id = identity.GenID("", 0)
	}
	if s.workerID == "" {
		s.workerID = identity.GenWorkerID("")
	}

	s.router.GET("/1/summary", s.handleSummary)
	s.router.GET("/api.json", s.handleSummary)
	if m != nil {
		s.router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	s.server = &http.Server{Addr: cfg.Listen, Handler: router}
	return s
}

func (s *Server) handleSummary(c *gin.Context) {
	status := s.disp.Status()

	c.JSON(http.StatusOK, Summary{
		ID:            s.id,
		WorkerID:      s.workerID,
		UptimeSeconds: int64(time.Since(s.start).Seconds()),
		Hashrate: HashrateSummary{
			Short:   s.rates.Total(hashrate.Short),
			Medium:  s.rates.Total(hashrate.Medium),
			Long:    s.rates.Total(hashrate.Long),
			Highest: s.rates.Highest(),
		},
		HugePages: [2]int{status.HugePagesGranted, status.HugePagesRequested},
		Memory:    MemorySummary{Granted: status.HugePagesGranted, Requested: status.HugePagesRequested},
	})
}

// Start launches the HTTP server in a background goroutine, matching the
// teacher's fire-and-forget ListenAndServe pattern.
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server stopped", "error", err)
		}
	}()
	return nil
}

// Stop closes the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}
