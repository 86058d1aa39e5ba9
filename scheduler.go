// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Scheduler multiplexes fiber steps onto execution contexts. Implementations
// must be safe for concurrent use; a submitted task must eventually run.
type Scheduler interface {
	// ScheduleTask enqueues one unit of fiber work.
	ScheduleTask(task func())
}

// schedulerQueueSize bounds the PoolScheduler task channel. Overflow spills
// to a dedicated goroutine rather than blocking a worker, since a blocked
// worker could be the one the queued task is waiting on.
const schedulerQueueSize = 1024

// PoolScheduler runs tasks on a fixed pool of worker goroutines fed by a
// FIFO queue. It is the default scheduler of [NewRuntime].
type PoolScheduler struct {
	tasks  chan func()
	eg     errgroup.Group
	closed atomic.Bool
}

// NewPoolScheduler creates a scheduler with the given number of workers;
// workers <= 0 uses GOMAXPROCS.
func NewPoolScheduler(workers int) *PoolScheduler {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &PoolScheduler{tasks: make(chan func(), schedulerQueueSize)}
	for i := 0; i < workers; i++ {
		p.eg.Go(p.worker)
	}
	return p
}

func (p *PoolScheduler) worker() error {
	for task := range p.tasks {
		task()
	}
	return nil
}

// ScheduleTask implements [Scheduler]. Tasks submitted after Close, or while
// the queue is full, run on their own goroutine so fibers keep making
// progress instead of deadlocking the pool.
func (p *PoolScheduler) ScheduleTask(task func()) {
	if p.closed.Load() {
		go task()
		return
	}
	defer func() {
		// Lost the race with Close: the channel is gone, fall back.
		if recover() != nil {
			go task()
		}
	}()
	select {
	case p.tasks <- task:
	default:
		go task()
	}
}

// Close stops the workers after the queued tasks drain. Close is idempotent.
func (p *PoolScheduler) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.tasks)
	return p.eg.Wait()
}

// SyncScheduler runs every task on the goroutine that submitted the first
// one, draining FIFO until the queue empties. Execution is deterministic,
// which makes it the scheduler behind [RunSync] and deterministic tests.
//
// Tasks submitted re-entrantly (from inside a running task) are queued, not
// recursed into, so arbitrarily long task chains use constant native stack.
type SyncScheduler struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
}

// NewSyncScheduler creates an empty synchronous scheduler.
func NewSyncScheduler() *SyncScheduler { return &SyncScheduler{} }

// ScheduleTask implements [Scheduler].
func (s *SyncScheduler) ScheduleTask(task func()) {
	s.mu.Lock()
	s.queue = append(s.queue, task)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		next()
	}
}
