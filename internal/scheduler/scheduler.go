// Package scheduler owns the cooperative run loop that drives one job's
// ExecHandle to completion, pause, or failure (spec §5), and a worker-slot
// pool that runs many jobs' loops concurrently, one goroutine per slot.
// Grounded on the teacher's wazero CLI driver loop (cmd/wazero's "run to
// completion, check context" shape) generalized to the pause/resume/abort
// triad, with the slot pool built on golang.org/x/sync/errgroup the way the
// pack's grafana-k6 runs independent VU loops.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/reef-runtime/reef/internal/interpreter"
)

// Signal is the cooperative control value, held in an atomic int32, that the
// scheduler writes and the run loop reads at the top of every budget slice
// (spec §5 "Shared resources").
type Signal int32

const (
	// Continue keeps the job running.
	Continue Signal = iota
	// SaveState asks the loop to snapshot and return OutcomePaused after the
	// current budget slice.
	SaveState
	// Abort asks the loop to stop without completing the job.
	Abort
)

// CycleBudget is the max_cycles passed to ExecHandle.Run on each slice. A
// smaller budget makes the control signal more responsive at the cost of
// more per-call overhead.
const CycleBudget = 100_000

// Outcome is what a Job's run loop produced.
type Outcome int

const (
	// OutcomeDone means the job ran to completion.
	OutcomeDone Outcome = iota
	// OutcomePaused means SaveState was observed; the bytes Run returns
	// alongside it hold the serialized state. A host-requested pause
	// (reef.sleep) does not end Run: the loop re-enters the handle.
	OutcomePaused
	// OutcomeAborted means Abort was observed.
	OutcomeAborted
	// OutcomeErrored means the interpreter returned a trap or fatal error.
	OutcomeErrored
)

// Job is one job's handle and the signal slot its scheduler goroutine polls.
type Job struct {
	ID      string
	Handle  *interpreter.ExecHandle
	signal  atomic.Int32
	budget  uint64
}

// NewJob wraps handle for the run loop. budget overrides CycleBudget when
// non-zero, letting tests drive tiny slices.
func NewJob(id string, handle *interpreter.ExecHandle, budget uint64) *Job {
	if budget == 0 {
		budget = CycleBudget
	}
	return &Job{ID: id, Handle: handle, budget: budget}
}

// SetSignal is the writer side of the control-signal slot (spec §5: writer
// = scheduler, reader = interpreter's run loop).
func (j *Job) SetSignal(s Signal) { j.signal.Store(int32(s)) }

func (j *Job) loadSignal() Signal { return Signal(j.signal.Load()) }

// Run drives j's handle in CycleBudget slices until it completes, the
// signal requests SaveState/Abort, or a trap ends it. snapshotFn is called
// only when SaveState is observed, to produce the bytes returned with
// OutcomePaused for the caller to report upstream (spec §4.7: "the scheduler serializes only
// between run invocations").
func (j *Job) Run(ctx context.Context, snapshotFn func(h *interpreter.ExecHandle) ([]byte, error)) (Outcome, []byte, error) {
	for {
		select {
		case <-ctx.Done():
			return OutcomeAborted, nil, ctx.Err()
		default:
		}

		switch j.loadSignal() {
		case Abort:
			return OutcomeAborted, nil, nil
		case SaveState:
			data, err := snapshotFn(j.Handle)
			if err != nil {
				return OutcomeErrored, nil, fmt.Errorf("scheduler: snapshot: %w", err)
			}
			return OutcomePaused, data, nil
		}

		result, err := j.Handle.Run(j.budget)
		if err != nil {
			return OutcomeErrored, nil, err
		}
		switch result {
		case interpreter.Done:
			return OutcomeDone, nil, nil
		case interpreter.Incomplete:
			// Either the budget ran out (keep going) or a host import (e.g.
			// reef.sleep) asked for a pause: either way, the handle is
			// coherent and the loop top re-checks the signal and re-enters.
			if j.loadSignal() == SaveState {
				data, err := snapshotFn(j.Handle)
				if err != nil {
					return OutcomeErrored, nil, fmt.Errorf("scheduler: snapshot: %w", err)
				}
				return OutcomePaused, data, nil
			}
			continue
		}
	}
}

// Pool runs many jobs concurrently, one goroutine per worker slot (spec §5
// "Parallelism across jobs... one per worker slot; each owns its instance
// exclusively"). Slots bound the number of concurrent jobs a worker
// accepts.
type Pool struct {
	slots int
}

// NewPool returns a Pool accepting at most slots concurrent jobs.
func NewPool(slots int) *Pool {
	if slots <= 0 {
		slots = 1
	}
	return &Pool{slots: slots}
}

// RunAll runs fn for each job concurrently, bounded by the pool's slot
// count, and returns the first error encountered (if any); the others'
// results are discarded, matching errgroup's fail-fast semantics, since
// spec §5 guarantees no cross-job shared mutable state to reconcile.
func (p *Pool) RunAll(ctx context.Context, jobs []*Job, fn func(ctx context.Context, j *Job) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.slots)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			return fn(ctx, j)
		})
	}
	return g.Wait()
}
