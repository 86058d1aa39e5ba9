// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrorReporter receives unhandled failure Causes from terminated root
// fibers. Reporters run synchronously on the reporting fiber's scheduler
// context and must not block.
type ErrorReporter func(cause *Cause, fiber FiberID, at time.Time)

// reporterSeenLimit bounds the dedup window. Older cause ids are evicted
// FIFO; a Cause re-reported after eviction would fire again, which is
// acceptable for a diagnostics path.
const reporterSeenLimit = 1024

// reporterRegistry fans causes out to the registered reporters, dispatching
// each unique Cause at most once. Causes consisting solely of interruptions
// are not failures and are never reported.
type reporterRegistry struct {
	mu        sync.Mutex
	reporters []ErrorReporter
	seen      map[uint64]struct{}
	order     []uint64
}

func (r *reporterRegistry) add(rep ErrorReporter) {
	if rep == nil {
		return
	}
	r.mu.Lock()
	r.reporters = append(r.reporters, rep)
	r.mu.Unlock()
}

func (r *reporterRegistry) report(cause *Cause, fiber FiberID) {
	if cause == nil || cause.IsInterruptedOnly() {
		return
	}
	r.mu.Lock()
	if r.seen == nil {
		r.seen = make(map[uint64]struct{})
	}
	if _, dup := r.seen[cause.id]; dup {
		r.mu.Unlock()
		return
	}
	r.seen[cause.id] = struct{}{}
	r.order = append(r.order, cause.id)
	if len(r.order) > reporterSeenLimit {
		delete(r.seen, r.order[0])
		r.order = r.order[1:]
	}
	reps := make([]ErrorReporter, len(r.reporters))
	copy(reps, r.reporters)
	r.mu.Unlock()

	at := time.Now()
	for _, rep := range reps {
		rep(cause, fiber, at)
	}
}

// zerologReporter adapts a zerolog logger to the [ErrorReporter] interface.
func zerologReporter(logger zerolog.Logger) ErrorReporter {
	return func(cause *Cause, fiber FiberID, at time.Time) {
		ev := logger.Error().
			Str("fiber", string(fiber)).
			Time("at", at).
			Str("cause", cause.Error())
		if ds := cause.Defects(); len(ds) > 0 {
			ev = ev.Str("stack", ds[0].Stack)
		}
		ev.Msg("unhandled fiber failure")
	}
}
