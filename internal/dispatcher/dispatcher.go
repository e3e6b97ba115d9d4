// Package dispatcher owns the miner's shared coordination state: the
// currently published job, the sequence counter every worker spins on, the
// paused flag, and the channel of discovered solutions headed back to the
// active JobSource. It is the Go translation of the Workers singleton: a
// struct instance instead of process-global state, but the same
// sequence/paused handshake workers rely on.
package dispatcher

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cnrx/miner/internal/algorithm"
	"github.com/cnrx/miner/internal/dataset"
	"github.com/cnrx/miner/internal/hashfn"
	"github.com/cnrx/miner/internal/hashrate"
	"github.com/cnrx/miner/internal/job"
	"github.com/cnrx/miner/internal/worker"
)

// LaunchStatus summarizes the dispatcher's startup outcome for reporting
// via the HTTP API, matching spec.md §3's LaunchStatus fields.
type LaunchStatus struct {
	ThreadsConfigured  int
	ThreadsStarted     int
	HugePagesGranted   int
	HugePagesRequested int
	TotalWays          int
	Algorithm          string
	Variant            string
	Errors             []string
}

// Dispatcher coordinates every Worker goroutine against one published job.
// Sequence is the sole synchronization boundary: incrementing it signals
// every worker to reload the current job and re-seed its nonce range;
// setting it to 0 signals termination.
type Dispatcher struct {
	logger *slog.Logger

	workers  []*worker.Worker
	registry *hashfn.Registry
	dataset  *dataset.Coordinator
	rates    *hashrate.HashRate

	sequence atomic.Uint64
	paused   atomic.Bool

	jobMu      sync.RWMutex
	currentJob job.Job
	hasJob     bool

	solutions chan job.Solution

	statusMu sync.Mutex
	status   LaunchStatus

	wg sync.WaitGroup
}

// New builds a Dispatcher. threadWays gives each worker's multiway batch
// size in launch order; the dispatcher computes each worker's cumulative
// offset and the total W from it. hugePages requests huge-page-backed
// scratchpads for every worker (internal/memory reports, per worker, how
// many were actually granted).
//
// Per spec.md §4.3/§7: a worker whose construction or self-test fails is
// fatal for that worker alone — it is excluded from the running set, not
// started, and its error is reported in LaunchStatus. Only when every
// worker fails is the whole launch unusable; the caller (cmd/miner) treats
// ThreadsStarted == 0 as the fatal condition, not any individual error.
func New(family string, threadWays []int, hugePages bool, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	algo := algorithm.ParseAlgorithm(family)

	d := &Dispatcher{
		logger:    logger.With("component", "dispatcher"),
		registry:  hashfn.NewRegistry(),
		dataset:   dataset.NewCoordinator(),
		rates:     hashrate.New(),
		solutions: make(chan job.Solution, 64),
	}
	d.sequence.Store(1)

	total := 0
	for _, n := range threadWays {
		total += n
	}

	offset := 0
	var errs []string
	hugeGranted, hugeRequested := 0, 0
	for i, ways := range threadWays {
		w, err := worker.New(i, ways, offset, total, algo.Family, d.registry, d.dataset, logger, hugePages)
		offset += ways
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if err := w.SelfTest(); err != nil {
			errs = append(errs, err.Error())
			w.Close()
			continue
		}
		d.workers = append(d.workers, w)
		hugeGranted += w.HugePagesGranted()
		hugeRequested += w.HugePagesRequested()
	}

	d.status = LaunchStatus{
		ThreadsConfigured:  len(threadWays),
		ThreadsStarted:     len(d.workers),
		HugePagesGranted:   hugeGranted,
		HugePagesRequested: hugeRequested,
		TotalWays:          total,
		Algorithm:          algo.Family.String(),
		Variant:            algo.Variant.Name(),
		Errors:             errs,
	}
	return d
}

// Status returns the startup summary recorded at New.
func (d *Dispatcher) Status() LaunchStatus {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	return d.status
}

// HashRate exposes the shared rate tracker every worker publishes samples
// into, for the metrics and HTTP API layers to read.
func (d *Dispatcher) HashRate() *hashrate.HashRate {
	return d.rates
}

// Solutions returns the channel solutions are delivered on. A JobSource
// submission loop drains it.
func (d *Dispatcher) Solutions() <-chan job.Solution {
	return d.solutions
}

// Sequence implements worker.Dispatcher and dataset's sequenceSource.
func (d *Dispatcher) Sequence() uint64 { return d.sequence.Load() }

// Paused implements worker.Dispatcher.
func (d *Dispatcher) Paused() bool { return d.paused.Load() }

// CurrentJob implements worker.Dispatcher.
func (d *Dispatcher) CurrentJob() job.Job {
	d.jobMu.RLock()
	defer d.jobMu.RUnlock()
	return d.currentJob
}

// Submit implements worker.Dispatcher: a discovered solution is handed to
// the solutions channel, dropped only if the channel is full (a JobSource
// consumer that can't keep up shouldn't block the hashing hot path).
func (d *Dispatcher) Submit(s job.Solution) {
	select {
	case d.solutions <- s:
	default:
		d.logger.Warn("solution dropped, submission channel full", "job_id", s.JobID)
	}
}

// Start launches every worker's goroutine.
func (d *Dispatcher) Start() {
	for _, w := range d.workers {
		d.wg.Add(1)
		go func(w *worker.Worker) {
			defer d.wg.Done()
			w.Run(d, d.rates)
			w.Close()
		}(w)
	}
}

// SetJob publishes a new job and bumps the sequence counter so every
// worker reloads it, matching the original's setJob(job, isDonation):
// under the job lock the job is replaced (rewriting poolId to Donation
// when isDonation is set, so the worker-side save/resume machinery in
// internal/worker ever sees a donation job at all); outside the lock,
// paused is cleared and sequence bumped so mining resumes immediately.
func (d *Dispatcher) SetJob(j job.Job, isDonation bool) {
	if isDonation {
		j.PoolID = job.Donation
	}
	d.jobMu.Lock()
	d.currentJob = j
	d.hasJob = true
	d.jobMu.Unlock()

	d.paused.Store(false)
	d.bumpSequence()
}

// SetEnabled toggles the paused flag via a sequence increment, matching
// the original's setEnabled(bool): a no-op if the state doesn't actually
// change. The sequence bump (not just the flag store) is what lets a
// worker already spinning in hashLoop notice immediately instead of
// waiting for the next unrelated job change.
func (d *Dispatcher) SetEnabled(enabled bool) {
	wantPaused := !enabled
	if d.paused.Swap(wantPaused) == wantPaused {
		return
	}
	d.bumpSequence()
}

// Pause stops mining unconditionally, matching the original's pause():
// sets paused and bumps sequence regardless of the prior state.
func (d *Dispatcher) Pause() {
	d.paused.Store(true)
	d.bumpSequence()
}

// bumpSequence increments sequence, skipping over 0 (the cancellation
// sentinel) so a live sequence never collides with it.
func (d *Dispatcher) bumpSequence() {
	if d.sequence.Add(1) == 0 {
		d.sequence.Add(1)
	}
}

// Stop sets sequence to 0 (the cancellation sentinel every worker and the
// dataset barrier watch for) and waits for every worker goroutine to
// return.
func (d *Dispatcher) Stop() {
	d.sequence.Store(0)
	d.wg.Wait()
	d.dataset.Close()
	close(d.solutions)
}
