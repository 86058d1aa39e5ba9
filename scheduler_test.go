// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"code.hybscloud.com/efx"
)

func TestSyncSchedulerRunsFIFO(t *testing.T) {
	s := efx.NewSyncScheduler()
	var order []int
	s.ScheduleTask(func() {
		order = append(order, 1)
		s.ScheduleTask(func() { order = append(order, 3) })
		order = append(order, 2)
	})
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("got order %v, want [1 2 3]", order)
	}
}

func TestSyncSchedulerDrainsBeforeReturning(t *testing.T) {
	s := efx.NewSyncScheduler()
	count := 0
	var enqueue func(n int)
	enqueue = func(n int) {
		if n == 0 {
			return
		}
		s.ScheduleTask(func() {
			count++
			enqueue(n - 1)
		})
	}
	enqueue(10000)
	if count != 10000 {
		t.Fatalf("got %d tasks run, want 10000", count)
	}
}

func TestPoolSchedulerRunsAllTasks(t *testing.T) {
	p := efx.NewPoolScheduler(4)
	const n = 1000
	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.ScheduleTask(func() {
			count.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	if got := count.Load(); got != n {
		t.Fatalf("got %d tasks run, want %d", got, n)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPoolSchedulerCloseIdempotent(t *testing.T) {
	p := efx.NewPoolScheduler(1)
	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPoolSchedulerScheduleAfterClose(t *testing.T) {
	p := efx.NewPoolScheduler(1)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	done := make(chan struct{})
	p.ScheduleTask(func() { close(done) })
	<-done
}

func TestPoolSchedulerDefaultWorkers(t *testing.T) {
	p := efx.NewPoolScheduler(0)
	done := make(chan struct{})
	p.ScheduleTask(func() { close(done) })
	<-done
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
