// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfx

import (
	"runtime"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

const (
	// DefaultQueueSize is the job queue capacity when none is given.
	DefaultQueueSize = 4096

	// DefaultPoolSize is the job pool's initial capacity when none is
	// given. The pool grows by the same amount when exhausted.
	DefaultPoolSize = 4096
)

// JobSystem is a cooperative multi-worker job scheduler.
//
// All workers share one MPMC job queue and one job pool; there are no
// per-worker queues and no stealing. Workers pop jobs, run their
// payloads, and run the finish protocol: decrement the job's counter,
// decrement its unfinished count, and on zero return the job to the
// pool and propagate completion into the parent.
//
// Waiting is cooperative: WaitForCounter and WaitAll execute queued
// jobs on the calling goroutine instead of sleeping, so a waiter that
// is itself a worker (or a job waiting on its own children) cannot
// deadlock the system.
//
// Workers start in NewJobSystem and are joined in Close.
type JobSystem struct {
	queue   *MPMC[*Job]
	pool    *Pool[Job]
	running atomix.Bool
	pending atomix.Int64
	wg      sync.WaitGroup
	workers int
}

// NewJobSystem creates a job system and starts its workers.
//
// workers <= 0 selects one worker per CPU. queueSize and poolSize <= 0
// select [DefaultQueueSize] and [DefaultPoolSize]; queueSize rounds up
// to the next power of 2, and the job pool grows on demand.
func NewJobSystem(workers, queueSize, poolSize int) *JobSystem {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	s := &JobSystem{
		queue:   NewMPMC[*Job](queueSize),
		pool:    NewPool[Job](poolSize, true, 0),
		workers: workers,
	}
	s.running.Store(true)

	for range workers {
		s.wg.Add(1)
		go s.workerMain()
	}
	return s
}

// Schedule allocates a job running fn, increments counter if non-nil,
// and enqueues the job.
//
// Returns ErrWouldBlock when the job queue is full; the counter
// increment and the allocation are rolled back, so the caller can retry
// with backoff like any other producer. fn is captured by reference in
// the job and released when the job is reclaimed.
//
// If fn panics, the worker recovers the panic and still runs the finish
// protocol; the panic value is discarded.
func (s *JobSystem) Schedule(fn func(), counter *Counter) error {
	job := s.AllocateJob(fn, counter, nil)
	if job == nil {
		return ErrWouldBlock
	}
	if counter != nil {
		counter.Increment()
	}
	if err := s.ScheduleJob(job); err != nil {
		if counter != nil {
			counter.Decrement()
		}
		s.pool.Destroy(job)
		return err
	}
	return nil
}

// ScheduleJob enqueues an already-allocated job.
//
// The job must come from AllocateJob on this system. ScheduleJob does
// not touch the job's counter; Schedule is the convenience that pairs
// allocation with the increment. Returns ErrWouldBlock when the queue
// is full; the job remains valid and owned by the caller.
func (s *JobSystem) ScheduleJob(job *Job) error {
	s.pending.AddAcqRel(1)
	if err := s.queue.Enqueue(&job); err != nil {
		s.pending.AddAcqRel(-1)
		return err
	}
	return nil
}

// AllocateJob takes a job from the pool and initializes it.
//
// counter, if non-nil, is decremented once when the job's payload has
// run. parent, if non-nil, gains one unfinished child and will not be
// reclaimed until this job (and its own descendants) finish; the
// attachment must happen, as here, before the child is scheduled.
//
// Returns nil when the pool is exhausted. Every allocated job must be
// scheduled on this system or returned with DeallocateJob.
func (s *JobSystem) AllocateJob(fn func(), counter *Counter, parent *Job) *Job {
	job := s.pool.Allocate()
	if job == nil {
		return nil
	}
	job.fn = fn
	job.counter = counter
	job.parent = parent
	job.unfinished.Store(1)
	if parent != nil {
		parent.unfinished.AddAcqRel(1)
	}
	return job
}

// DeallocateJob returns an unscheduled job to the pool.
//
// Only jobs allocated by AllocateJob and never scheduled may be passed
// here; scheduled jobs are reclaimed by the finish protocol.
func (s *JobSystem) DeallocateJob(job *Job) {
	s.pool.Destroy(job)
}

// WaitForCounter blocks until the counter reaches zero, executing
// queued jobs cooperatively while it waits.
func (s *JobSystem) WaitForCounter(c *Counter) {
	backoff := iox.Backoff{}
	for !c.IsZero() {
		if s.runOne() {
			backoff.Reset()
		} else {
			backoff.Wait()
		}
	}
}

// WaitAll blocks until no scheduled jobs remain, executing queued jobs
// cooperatively while it waits.
func (s *JobSystem) WaitAll() {
	backoff := iox.Backoff{}
	for s.pending.Load() > 0 {
		if s.runOne() {
			backoff.Reset()
		} else {
			backoff.Wait()
		}
	}
}

// WorkerCount returns the number of worker goroutines.
func (s *JobSystem) WorkerCount() int {
	return s.workers
}

// PendingJobs returns the approximate number of scheduled jobs that
// have not fully finished.
func (s *JobSystem) PendingJobs() int {
	return int(s.pending.Load())
}

// Running reports whether the system accepts and executes jobs.
func (s *JobSystem) Running() bool {
	return s.running.Load()
}

// Close stops the workers, joins them, and reclaims jobs still queued.
// Jobs drained here never run; their counters keep the increments from
// Schedule, so do not wait on a counter after Close. Close is not safe
// to call concurrently with Schedule.
func (s *JobSystem) Close() {
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	s.wg.Wait()

	for {
		job, err := s.queue.Dequeue()
		if err != nil {
			break
		}
		s.pending.AddAcqRel(-1)
		s.pool.Destroy(job)
	}
}

// workerMain is the worker goroutine loop: pop, execute, finish, and
// back off while the queue is empty.
func (s *JobSystem) workerMain() {
	defer s.wg.Done()
	backoff := iox.Backoff{}
	for s.running.Load() {
		if s.runOne() {
			backoff.Reset()
		} else {
			backoff.Wait()
		}
	}
}

// runOne pops and completes a single job.
// Reports whether a job was obtained.
func (s *JobSystem) runOne() bool {
	job, err := s.queue.Dequeue()
	if err != nil {
		return false
	}
	s.execute(job)
	s.finish(job)
	return true
}

// execute runs the payload, containing panics so the finish protocol
// always follows.
func (s *JobSystem) execute(job *Job) {
	if job.fn == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	job.fn()
}

// finish runs after a job's payload has returned: the counter is
// decremented exactly once per job, here, and never again on the
// parent-propagation path.
func (s *JobSystem) finish(job *Job) {
	if job.counter != nil {
		job.counter.Decrement()
	}
	s.release(job)
}

// release drops one unfinished reference. The last drop reclaims the
// job, retires it from the pending count, and recurses into the parent,
// which may itself now be complete.
func (s *JobSystem) release(job *Job) {
	if job.unfinished.AddAcqRel(-1) != 0 {
		return
	}
	parent := job.parent
	s.pool.Destroy(job)
	s.pending.AddAcqRel(-1)
	if parent != nil {
		s.release(parent)
	}
}
