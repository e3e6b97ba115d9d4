// Command miner is the CPU mining client entrypoint: load config, build
// the dispatcher and its workers, connect every enabled pool's JobSource,
// serve the HTTP introspection API, and run until a shutdown signal.
// Flag/logging/signal-handling shape ported from coopmine/cmd/worker/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/cnrx/miner/internal/api"
	"github.com/cnrx/miner/internal/config"
	"github.com/cnrx/miner/internal/dispatcher"
	"github.com/cnrx/miner/internal/hashrate"
	"github.com/cnrx/miner/internal/identity"
	"github.com/cnrx/miner/internal/job"
	"github.com/cnrx/miner/internal/jobsource"
	"github.com/cnrx/miner/internal/metrics"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
		apiID      = flag.String("api-id", "", "Override the HTTP API node id (auto-derived if empty)")
		workerID   = flag.String("worker-id", "", "Override the HTTP API worker id (hostname if empty)")
	)
	flag.Parse()

	opts := &slog.HandlerOptions{Level: parseLogLevel(*logLevel)}
	var handler slog.Handler
	if *logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	printBanner()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	family := ""
	if len(cfg.Pools) > 0 {
		family = cfg.Pools[0].Algo
	}

	disp := dispatcher.New(family, cfg.CPU.Threads, cfg.CPU.HugePages, logger)
	status := disp.Status()
	if len(status.Errors) > 0 {
		logger.Warn("worker self-test failures", "errors", status.Errors, "threads_started", status.ThreadsStarted, "threads_configured", status.ThreadsConfigured)
	}
	if status.ThreadsStarted == 0 {
		logger.Error("every worker failed self-test, nothing to mine with")
		os.Exit(1)
	}
	logger.Info("dispatcher ready",
		"threads_started", status.ThreadsStarted,
		"threads_configured", status.ThreadsConfigured,
		"algorithm", status.Algorithm,
		"variant", status.Variant,
		"huge_pages_granted", status.HugePagesGranted,
		"huge_pages_requested", status.HugePagesRequested,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sources := buildJobSources(cfg, logger)
	if len(sources) == 0 {
		logger.Error("no enabled pools configured")
		os.Exit(1)
	}
	tracker := &latestJob{}
	for _, src := range sources {
		go runJobSource(ctx, src, disp, tracker, logger)
	}
	go submitLoop(ctx, disp, sources, logger)
	go donationScheduler(ctx, disp, tracker, cfg.DonateLevel, logger)

	disp.Start()

	m := metrics.New("miner")
	id := identity.GenID(*apiID, 0)
	wid := identity.GenWorkerID(*workerID)
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.New(api.Config{Listen: cfg.API.Listen, ID: id, WorkerID: wid}, disp, disp.HashRate(), m, logger)
		if err := apiServer.Start(); err != nil {
			logger.Error("failed to start api server", "error", err)
			os.Exit(1)
		}
		logger.Info("api server listening", "addr", cfg.API.Listen)
	}

	go statsReporter(ctx, disp, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		cancel()
		for _, src := range sources {
			src.Close()
		}
		disp.Stop()
		if apiServer != nil {
			apiServer.Stop()
		}
		close(done)
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Error("shutdown timed out")
	case <-done:
		logger.Info("miner stopped gracefully")
	}
}

// buildJobSources constructs one JobSource per enabled pool. Each source's
// PoolID is its index in the returned slice, so solutions route back to
// their origin.
func buildJobSources(cfg *config.Config, logger *slog.Logger) []jobsource.JobSource {
	var sources []jobsource.JobSource
	for _, p := range cfg.Pools {
		if !p.Enabled {
			continue
		}
		sources = append(sources, jobsource.NewStratumClient(jobsource.StratumConfig{
			Addr:       p.URL,
			Login:      p.User,
			Pass:       p.Pass,
			RigID:      p.RigID,
			PoolID:     len(sources),
			Algo:       p.ResolvedAlgorithm(),
			Retries:    cfg.Retries,
			RetryPause: cfg.RetryPauseDuration(),
			Logger:     logger,
		}))
	}
	return sources
}

// runJobSource drives one JobSource until ctx is cancelled, publishing
// every delivered job to the dispatcher. Jobs from a JobSource are never
// themselves donation jobs; donation is purely a scheduling decision made
// by donationScheduler against the most recently published real job.
func runJobSource(ctx context.Context, src jobsource.JobSource, disp *dispatcher.Dispatcher, tracker *latestJob, logger *slog.Logger) {
	err := src.Run(ctx, func(j job.Job) {
		tracker.set(j)
		disp.SetJob(j, false)
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("job source exited", "error", err)
	}
}

// latestJob holds the most recently published real job, so donationScheduler
// has something to republish with isDonation=true without needing its own
// connection to an internal donation pool.
type latestJob struct {
	mu  sync.Mutex
	j   job.Job
	has bool
}

func (l *latestJob) set(j job.Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.j = j
	l.has = true
}

func (l *latestJob) get() (job.Job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.j, l.has
}

// donationScheduler periodically rotates the dispatcher's active job to the
// internal donation identity and back, per donate-level's percent-of-time
// share, matching setJob(job, isDonation)'s contract in spec.md §4.6: the
// donation job is a relabeled copy of the most recent real job (same id),
// so the round-trip back to the real job's id exercises the worker-side
// resume path and leaves in-flight nonce state untouched.
func donationScheduler(ctx context.Context, disp *dispatcher.Dispatcher, tracker *latestJob, donateLevel int, logger *slog.Logger) {
	if donateLevel <= 0 {
		return
	}
	const cycle = 100 * time.Second
	donateShare := cycle * time.Duration(donateLevel) / 100
	realShare := cycle - donateShare

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(realShare):
		}

		j, ok := tracker.get()
		if !ok {
			continue
		}
		logger.Debug("donation round starting", "job_id", j.ID, "duration", donateShare)
		disp.SetJob(j, true)

		select {
		case <-ctx.Done():
			return
		case <-time.After(donateShare):
		}

		j, ok = tracker.get()
		if !ok {
			continue
		}
		logger.Debug("donation round ending", "job_id", j.ID)
		disp.SetJob(j, false)
	}
}

// submitLoop drains the dispatcher's solution channel and reports each to
// its originating pool.
func submitLoop(ctx context.Context, disp *dispatcher.Dispatcher, sources []jobsource.JobSource, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sol, ok := <-disp.Solutions():
			if !ok {
				return
			}
			if sol.PoolID < 0 || sol.PoolID >= len(sources) {
				continue
			}
			accepted, err := sources[sol.PoolID].Submit(ctx, sol)
			if err != nil {
				logger.Error("share submission failed", "job_id", sol.JobID, "error", err)
				continue
			}
			logger.Info("share submitted", "job_id", sol.JobID, "accepted", accepted)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printBanner() {
	fmt.Println()
	fmt.Println("  CNRX MINER - CryptoNight / RandomX CPU mining client")
	fmt.Printf("  cpus=%d os=%s arch=%s\n", runtime.NumCPU(), runtime.GOOS, runtime.GOARCH)
	fmt.Println()
}

// statsReporter logs aggregate hashrate on a fixed tick, mirroring the
// teacher's statsReporter/formatHashrate cadence.
func statsReporter(ctx context.Context, disp *dispatcher.Dispatcher, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rates := disp.HashRate()
			rates.UpdateHighest()
			logger.Info("hashrate",
				"short", formatHashrate(rates.Total(hashrate.Short)),
				"medium", formatHashrate(rates.Total(hashrate.Medium)),
				"highest", formatHashrate(rates.Highest()),
			)
		}
	}
}

// formatHashrate scales h (hashes/second) into the largest unit that keeps
// the mantissa readable, matching the teacher's TH/GH/MH/KH/H ladder.
func formatHashrate(h float64) string {
	switch {
	case h >= 1e12:
		return fmt.Sprintf("%.2f TH/s", h/1e12)
	case h >= 1e9:
		return fmt.Sprintf("%.2f GH/s", h/1e9)
	case h >= 1e6:
		return fmt.Sprintf("%.2f MH/s", h/1e6)
	case h >= 1e3:
		return fmt.Sprintf("%.2f KH/s", h/1e3)
	default:
		return fmt.Sprintf("%.2f H/s", h)
	}
}
