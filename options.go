// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfx

// Options configures job system creation.
type Options struct {
	// Worker goroutine count; <= 0 selects runtime.NumCPU.
	workers int

	// Job queue capacity (rounds up to next power of 2).
	queueSize int

	// Job pool initial capacity.
	poolSize int
}

// Builder creates job systems with fluent configuration.
//
// All knobs are optional; the zero configuration starts one worker per
// CPU with default queue and pool sizes.
//
// Example:
//
//	// One worker per CPU, default sizes
//	js := lfx.New().Build()
//
//	// Explicit sizing for a frame-loop scheduler
//	js := lfx.New().Workers(4).QueueSize(8192).PoolSize(8192).Build()
type Builder struct {
	opts Options
}

// New creates a job system builder.
func New() *Builder {
	return &Builder{}
}

// Workers sets the number of worker goroutines.
// Values <= 0 select one worker per CPU.
func (b *Builder) Workers(n int) *Builder {
	b.opts.workers = n
	return b
}

// QueueSize sets the job queue capacity.
// Rounds up to the next power of 2; values <= 0 select
// [DefaultQueueSize].
func (b *Builder) QueueSize(n int) *Builder {
	b.opts.queueSize = n
	return b
}

// PoolSize sets the job pool's initial capacity.
// Values <= 0 select [DefaultPoolSize]. The pool grows by the same
// amount when exhausted.
func (b *Builder) PoolSize(n int) *Builder {
	b.opts.poolSize = n
	return b
}

// Build creates the configured JobSystem and starts its workers.
func (b *Builder) Build() *JobSystem {
	return NewJobSystem(b.opts.workers, b.opts.queueSize, b.opts.poolSize)
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// padShort is padding to fill cache line after 8-byte field.
type padShort [64 - 8]byte
