// Package worker implements the per-thread hashing state machine: consume
// the currently published job, partition and hash a disjoint nonce range,
// and submit any share meeting the job's target, pausing and resuming
// (including across donation round-trips) as the dispatcher's sequence
// counter dictates.
//
// Ported from MultiWorker<N>::start/consumeJob/save/resume in the original
// implementation. The compile-time multiway parameter N becomes the
// runtime Ways field on Worker, per the design note that the template
// expansion was a performance optimization, not a contract.
package worker

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/cnrx/miner/internal/algorithm"
	"github.com/cnrx/miner/internal/dataset"
	"github.com/cnrx/miner/internal/hashfn"
	"github.com/cnrx/miner/internal/hashrate"
	"github.com/cnrx/miner/internal/job"
	"github.com/cnrx/miner/internal/memory"
)

// pausedSleep is how long a paused worker sleeps between re-checks, per
// the component's main-loop step 1.
const pausedSleep = 200 * time.Millisecond

// nonceOffset mirrors job.Nonce's fixed wire offset; duplicated here
// (rather than exported from job) because it's only needed for the
// in-place nonce rewrite on the worker's local blob copies.
const nonceOffset = 39

// Dispatcher is the subset of the dispatcher a Worker depends on. Defined
// here (not imported from internal/dispatcher) because the dispatcher owns
// and constructs workers — the dependency points the other way.
type Dispatcher interface {
	// Sequence returns the current sequence counter. 0 means "terminate";
	// any other change means "reload the job and re-seed nonces".
	Sequence() uint64
	// Paused reports the paused flag. Checked independently of sequence so
	// a pause/resume cycle doesn't force a full re-seed.
	Paused() bool
	// CurrentJob returns a copy of the currently published job.
	CurrentJob() job.Job
	// Submit enqueues a discovered solution.
	Submit(job.Solution)
}

// state is the WorkerState value type: the job a worker is currently
// mining, its per-slot blob copies, hash outputs, and nonce cursors. A
// donation round-trip copies this verbatim into pausedState and back.
type state struct {
	job            job.Job
	effectiveVar   algorithm.Variant
	blobs          [][]byte
	hashes         [][32]byte
	nonceCursors   []uint32
	hasJob         bool
}

func (s state) clone() state {
	c := state{job: s.job, effectiveVar: s.effectiveVar, hasJob: s.hasJob}
	c.blobs = make([][]byte, len(s.blobs))
	for i, b := range s.blobs {
		c.blobs[i] = append([]byte(nil), b...)
	}
	c.hashes = append([][32]byte(nil), s.hashes...)
	c.nonceCursors = append([]uint32(nil), s.nonceCursors...)
	return c
}

// Worker is one hashing context: holds its own blob/hash/nonce state and,
// for RandomX, its VM, and runs the main hashing loop on its own
// goroutine (the translation of "one thread" for this component).
type Worker struct {
	ThreadID  int
	Ways      int // N, this worker's multiway batch size
	Offset    int // cumulative ways of every earlier worker
	TotalWays int // W, sum of every worker's Ways
	Family    algorithm.Family

	Registry *hashfn.Registry
	Dataset  *dataset.Coordinator
	Logger   *slog.Logger

	cur       state
	paused    state
	hasPaused bool

	mySequence uint64
	hashCount  uint64
	hashCtx    *hashfn.Context
	rxVM       *hashfn.VM
	memRegion  *memory.Region
}

// New constructs a Worker, allocating its CryptoNight-family scratchpad (if
// any — RandomX workers have a zero-sized scratchpad and instead draw on
// the shared dataset) via internal/memory.Allocate so huge-page requests
// and grants are real, not simulated. Per spec.md §4.1, Allocate only
// fails if its own 4 KiB fallback allocation fails; that failure is
// returned here and is fatal for this worker alone, same as a self-test
// failure.
func New(threadID, ways, offset, totalWays int, family algorithm.Family, registry *hashfn.Registry, ds *dataset.Coordinator, logger *slog.Logger, hugePages bool) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		ThreadID:  threadID,
		Ways:      ways,
		Offset:    offset,
		TotalWays: totalWays,
		Family:    family,
		Registry:  registry,
		Dataset:   ds,
		Logger:    logger,
	}

	scratchpadBytes := registry.ScratchpadBytes(family)
	if scratchpadBytes > 0 {
		const hugePageSize = 2 << 20 // 2 MiB huge pages
		pages := (scratchpadBytes + hugePageSize - 1) / hugePageSize
		region, err := memory.Allocate(scratchpadBytes, pages, hugePages)
		if err != nil {
			return nil, fmt.Errorf("worker %d: %w", threadID, err)
		}
		w.memRegion = region
		w.hashCtx = &hashfn.Context{Scratchpad: region.Bytes()}
	} else {
		w.hashCtx = &hashfn.Context{}
	}

	return w, nil
}

// HugePagesGranted reports how many huge pages actually back this worker's
// scratchpad allocation (0 for RandomX workers, which allocate none here).
func (w *Worker) HugePagesGranted() int {
	if w.memRegion == nil {
		return 0
	}
	return w.memRegion.HugePagesGranted()
}

// HugePagesRequested reports how many huge pages this worker's scratchpad
// would need, independent of whether the grant succeeded.
func (w *Worker) HugePagesRequested() int {
	if w.memRegion == nil {
		return 0
	}
	return w.memRegion.RequestedPages()
}

// SelfTest verifies the registry's reference vector for every variant the
// worker's configured family supports. Fatal for this worker if any
// mismatch; the RandomX variant is skipped here since its self-test would
// require the full dataset barrier — RandomX readiness is instead proven
// by successfully completing the first real hash in the main loop.
func (w *Worker) SelfTest() error {
	for _, v := range w.Registry.Variants(w.Family) {
		if v == algorithm.VariantRXDefyx {
			continue
		}
		if err := w.Registry.SelfTest(hashfn.Key{Family: w.Family, Variant: v}, w.hashCtx); err != nil {
			return fmt.Errorf("worker %d self-test: %w", w.ThreadID, err)
		}
	}
	return nil
}

// Run is the worker's main loop. It returns when the dispatcher's sequence
// reaches 0. hr receives a (threadID, now, hashCount) sample every 8
// iterations of the inner loop (each iteration hashes all Ways slots).
func (w *Worker) Run(disp Dispatcher, hr *hashrate.HashRate) {
	for {
		seq := disp.Sequence()
		if seq == 0 {
			return
		}

		if disp.Paused() {
			time.Sleep(pausedSleep)
			continue
		}

		w.consumeJob(disp.CurrentJob())
		w.mySequence = seq
		w.hashLoop(disp, hr)
	}
}

// consumeJob adopts the currently published job, applying the donation
// save/resume rules before deciding whether a fresh nonce seed is needed.
//
// Ported verbatim from MultiWorker::save/resume/consumeJob: save() fires
// when the previously-mined job was real (poolId >= 0) and the new one is
// donation (poolId == Donation); resume() fires only when the new job is
// real, a donation round is actually in progress (the worker's *current*
// job is the donation job — mirroring MultiWorker.cpp's
// `m_state.job.poolId() == -1` guard), and the paused job's id matches the
// new job, restoring every nonce cursor exactly as it stood at the moment
// donation began. A resume clears hasPaused, but a donation round that ends
// on a job with a different id leaves it set; without the "currently mining
// donation" guard, a later, unrelated job whose id happens to collide with
// the old paused job's id (pool job-id reuse after reconnect is common)
// would then restore stale nonce cursors instead of seeding fresh.
func (w *Worker) consumeJob(newJob job.Job) {
	if w.cur.hasJob && w.cur.job.PoolID >= 0 && newJob.PoolID == job.Donation {
		w.paused = w.cur.clone()
		w.hasPaused = true
	}

	miningDonation := w.cur.hasJob && w.cur.job.PoolID == job.Donation
	if newJob.PoolID >= 0 && w.hasPaused && miningDonation && w.paused.job.ID == newJob.ID {
		w.cur = w.paused.clone()
		w.hasPaused = false
		return
	}

	if w.cur.hasJob && w.cur.job.IsEqual(&newJob) {
		w.cur.job = newJob
		return
	}

	w.seedFresh(newJob)
}

func (w *Worker) seedFresh(newJob job.Job) {
	variant := newJob.Algo.Variant
	if variant == algorithm.VariantAuto {
		variant = w.Registry.DefaultVariant(newJob.Algo.Family, newJob.Blob[0])
	}

	s := state{job: newJob, effectiveVar: variant, hasJob: true}
	s.blobs = make([][]byte, w.Ways)
	s.hashes = make([][32]byte, w.Ways)
	s.nonceCursors = make([]uint32, w.Ways)
	for i := 0; i < w.Ways; i++ {
		b := make([]byte, newJob.Size)
		copy(b, newJob.Blob[:newJob.Size])
		s.blobs[i] = b
		s.nonceCursors[i] = w.seedNonce(newJob, i)
	}
	w.cur = s
}

// seedNonce computes slot i's initial nonce per the exact partitioning
// formula in §4.3: non-overlapping strides of floor(space/W) starting at
// (offset+i), preserving the pool-set high byte under nicehash.
func (w *Worker) seedNonce(j job.Job, slot int) uint32 {
	k := uint32(w.Offset + slot)
	if j.Nicehash {
		base := uint32(0xFFFFFF) / uint32(w.TotalWays)
		current := j.Nonce()
		return (current & 0xFF000000) | (base * k)
	}
	base := uint32(0xFFFFFFFF) / uint32(w.TotalWays)
	return base * k
}

// hashLoop is the inner loop: while the dispatcher's sequence still equals
// mySequence, hash every slot once, check its target, submit any share,
// advance its nonce, and yield.
func (w *Worker) hashLoop(disp Dispatcher, hr *hashrate.HashRate) {
	iterations := 0
	for disp.Sequence() == w.mySequence {
		iterations++
		if iterations%8 == 0 {
			hr.Add(w.ThreadID, time.Now(), w.hashCount)
		}

		if err := w.hashOnce(disp); err != nil {
			w.Logger.Error("worker hash failed", "thread", w.ThreadID, "error", err)
			return
		}

		runtime.Gosched()
	}
}

func (w *Worker) hashOnce(disp Dispatcher) error {
	key := hashfn.Key{Family: w.cur.job.Algo.Family, Variant: w.cur.effectiveVar}
	useRandomX := w.cur.effectiveVar == algorithm.VariantRXDefyx

	var fn hashfn.HashFn
	if !useRandomX {
		resolved, _, err := w.Registry.Resolve(key)
		if err != nil {
			return err
		}
		fn = resolved
	} else if err := w.Dataset.UpdateDataset(disp, w.cur.job.SeedHash, w.TotalWays); err != nil {
		return err
	}

	for i := 0; i < w.Ways; i++ {
		blob := w.cur.blobs[i]
		binary.LittleEndian.PutUint32(blob[nonceOffset:nonceOffset+4], w.cur.nonceCursors[i])

		var err error
		if useRandomX {
			err = w.hashRandomX(blob, w.cur.hashes[i][:])
		} else {
			err = fn(blob, w.cur.hashes[i][:], w.hashCtx, w.cur.job.Height)
		}
		if err != nil {
			return err
		}
		w.hashCount++

		if job.MeetsTarget(w.cur.hashes[i][:], w.cur.job.Target) {
			disp.Submit(job.Solution{
				PoolID:     w.cur.job.PoolID,
				JobID:      w.cur.job.ID,
				ClientID:   w.cur.job.ClientID,
				Nonce:      w.cur.nonceCursors[i],
				Hash:       w.cur.hashes[i],
				Difficulty: 0xFFFFFFFFFFFFFFFF / w.cur.job.Target,
				Algo:       w.cur.job.Algo,
			})
		}
		w.cur.nonceCursors[i]++
	}
	return nil
}

// hashRandomX ensures a VM bound to the coordinator's shared dataset
// exists, then computes one hash. The dataset barrier (UpdateDataset) must
// already have been run by the caller for the current seed.
func (w *Worker) hashRandomX(blob []byte, out []byte) error {
	if w.rxVM == nil {
		ds, err := w.Dataset.Dataset()
		if err != nil {
			return err
		}
		vm, err := hashfn.NewVM(w.Dataset.CacheHandle(), ds)
		if err != nil {
			return err
		}
		w.rxVM = vm
	}
	return w.rxVM.CalculateHash(blob, out)
}

// Close releases the worker's RandomX VM and scratchpad memory region, if
// either was created.
func (w *Worker) Close() {
	if w.rxVM != nil {
		w.rxVM.Close()
		w.rxVM = nil
	}
	if w.memRegion != nil {
		_ = memory.Release(w.memRegion)
		w.memRegion = nil
	}
}
