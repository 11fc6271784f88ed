// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfx

import "code.hybscloud.com/atomix"

// Counter tracks the outstanding jobs of a logical group.
//
// JobSystem.Schedule increments it once per job and the finish protocol
// decrements it exactly once per job, so the value is the number of
// scheduled-but-unfinished jobs in the group and reaches zero exactly
// when the group is complete.
//
// The zero value is ready to use. Callers own the Counter's storage;
// wait on it (WaitForCounter) before discarding it, because scheduled
// jobs hold a reference until they finish.
type Counter struct {
	value atomix.Int32
}

// NewCounter creates a counter with the given initial value.
func NewCounter(initial int32) *Counter {
	c := &Counter{}
	c.value.Store(initial)
	return c
}

// Increment adds one to the counter.
func (c *Counter) Increment() {
	c.value.AddRelaxed(1)
}

// Decrement subtracts one and reports whether the counter reached zero.
func (c *Counter) Decrement() bool {
	return c.value.AddAcqRel(-1) == 0
}

// IsZero reports whether the counter is zero.
func (c *Counter) IsZero() bool {
	return c.value.LoadAcquire() == 0
}

// Get returns the current value.
func (c *Counter) Get() int32 {
	return c.value.LoadAcquire()
}

// Job is one schedulable unit of work.
//
// A job's unfinished count starts at 1 for the job itself and grows by
// one for every child attached under it. The job is reclaimed, and its
// parent notified, only when its own payload has run and every
// descendant has finished.
//
// Jobs are pool-allocated: obtain them from JobSystem.AllocateJob (or
// implicitly via Schedule) and never construct them directly.
type Job struct {
	fn         func()
	counter    *Counter
	parent     *Job
	unfinished atomix.Int32
}

// Unfinished returns the job's current unfinished count: 1 for the job
// itself plus one per outstanding child. Approximate under concurrency.
func (j *Job) Unfinished() int32 {
	return j.unfinished.LoadAcquire()
}
