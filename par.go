// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

import (
	"context"
	"sync"
	"sync/atomic"
)

// Parallel combinators. Siblings run as supervised child fibers of the
// calling fiber, so interrupting the caller transitively interrupts them
// and no combinator returns while a sibling is still live.
//
// Aggregate causes are folded in item order, never in completion order, so
// the final Cause is deterministic given which siblings failed.

// parAllNode runs sources on at most limit worker fibers (limit <= 0 means
// one worker per source). Worker w claims source indexes from a shared
// counter; exits[i] and settled[i] record the outcome per source. With
// failFast, the first failure stops further claims and interrupts the other
// workers; a source cancelled that way leaves settled[i] false.
func parAllNode(parent *fiberRuntime, sources []node, limit int, failFast bool, cont func(exits []Exit[any], settled []bool) node) node {
	n := len(sources)
	if n == 0 {
		return cont(nil, nil)
	}
	nw := n
	if limit > 0 && limit < n {
		nw = limit
	}
	exits := make([]Exit[any], n)
	settled := make([]bool, n)
	var next atomic.Int64
	var stop sync.Once
	workers := make([]*fiberRuntime, nw)

	haltSiblings := func(self int) {
		stop.Do(func() {
			next.Store(int64(n))
			cause := CauseInterrupt(parent.id)
			for w, wf := range workers {
				if w != self {
					wf.requestInterrupt(cause)
				}
			}
		})
	}

	makeWorker := func(slot int) func() node {
		var body func() node
		body = func() node {
			i := int(next.Add(1) - 1)
			if i >= n {
				return &succeedNode{value: Unit{}}
			}
			return &matchNode{
				source: sources[i],
				onSuccess: func(v any) node {
					exits[i] = exitSucceedAny(v)
					settled[i] = true
					return &suspendNode{make: body}
				},
				onFailure: func(c *Cause) node {
					exits[i] = Exit[any]{cause: c}
					settled[i] = true
					if failFast {
						haltSiblings(slot)
						return &succeedNode{value: Unit{}}
					}
					return &suspendNode{make: body}
				},
			}
		}
		return body
	}

	for w := range workers {
		workers[w] = parent.forkChildPaused(&suspendNode{make: makeWorker(w)})
	}
	for _, wf := range workers {
		parent.scheduler.ScheduleTask(wf.run)
	}

	return &flatMapNode{
		source: awaitFibersNode(workers),
		cont:   func(any) node { return cont(exits, settled) },
	}
}

// foldParCauses combines the causes of settled failures in item order.
func foldParCauses(exits []Exit[any], settled []bool) *Cause {
	var acc *Cause
	for i := range exits {
		if settled[i] && exits[i].cause != nil {
			acc = CauseBoth(acc, exits[i].cause)
		}
	}
	return acc
}

// ZipPar runs two effects concurrently and pairs their results. Both sides
// always run to completion: when both fail, the resulting Cause carries the
// reasons of both sides, independent of which finished first.
func ZipPar[A, B any](ma Effect[A], mb Effect[B]) Effect[Pair[A, B]] {
	return ZipWithPar(ma, mb, func(a A, b B) Pair[A, B] { return Pair[A, B]{Fst: a, Snd: b} })
}

// ZipWithPar runs two effects concurrently and combines their results
// with f.
func ZipWithPar[A, B, C any](ma Effect[A], mb Effect[B], f func(A, B) C) Effect[C] {
	return fiberEffect[C](func(fr *fiberRuntime) node {
		sources := []node{nodeOf(ma), nodeOf(mb)}
		return parAllNode(fr, sources, 0, false, func(exits []Exit[any], settled []bool) node {
			if c := foldParCauses(exits, settled); c != nil {
				return &failCauseNode{cause: c}
			}
			return &succeedNode{value: f(exits[0].value.(A), exits[1].value.(B))}
		})
	})
}

// ForEach applies f to every item sequentially, left to right, collecting
// the results. The first failure stops the traversal and propagates.
func ForEach[T, A any](items []T, f func(T) Effect[A]) Effect[[]A] {
	return Suspend(func() Effect[[]A] {
		results := make([]A, len(items))
		var step func(i int) Effect[[]A]
		step = func(i int) Effect[[]A] {
			if i >= len(items) {
				return Succeed(results)
			}
			return FlatMap(f(items[i]), func(a A) Effect[[]A] {
				results[i] = a
				return Suspend(func() Effect[[]A] { return step(i + 1) })
			})
		}
		return step(0)
	})
}

// ForEachPar applies f to every item on concurrent fibers, at most limit in
// flight at once (limit <= 0 means unbounded). The first failure interrupts
// the in-flight siblings, stops admission of new items, and the aggregate
// fails once every sibling has terminated, so no fiber outlives the call.
func ForEachPar[T, A any](items []T, limit int, f func(T) Effect[A]) Effect[[]A] {
	return fiberEffect[[]A](func(fr *fiberRuntime) node {
		sources := make([]node, len(items))
		for i, it := range items {
			sources[i] = &suspendNode{make: func() node { return nodeOf(f(it)) }}
		}
		return parAllNode(fr, sources, limit, true, func(exits []Exit[any], settled []bool) node {
			if c := foldParCauses(exits, settled); c != nil {
				return &failCauseNode{cause: c}
			}
			results := make([]A, len(exits))
			for i := range exits {
				results[i] = exits[i].value.(A)
			}
			return &succeedNode{value: results}
		})
	})
}

// ForEachParExits is the settled variant of [ForEachPar]: every item runs to
// completion regardless of sibling failures, and the per-item Exits are
// collected instead of aggregated.
func ForEachParExits[T, A any](items []T, limit int, f func(T) Effect[A]) Effect[[]Exit[A]] {
	return fiberEffect[[]Exit[A]](func(fr *fiberRuntime) node {
		sources := make([]node, len(items))
		for i, it := range items {
			sources[i] = &suspendNode{make: func() node { return nodeOf(f(it)) }}
		}
		return parAllNode(fr, sources, limit, false, func(exits []Exit[any], settled []bool) node {
			results := make([]Exit[A], len(exits))
			for i := range exits {
				if settled[i] {
					results[i] = exitAs[A](exits[i])
				} else {
					results[i] = ExitInterrupt[A](fr.id)
				}
			}
			return &succeedNode{value: results}
		})
	})
}

// CollectAllPar runs the effects concurrently with at most limit in flight
// (limit <= 0 means unbounded) and collects the results in input order. The
// first failure interrupts the in-flight siblings.
func CollectAllPar[A any](effects []Effect[A], limit int) Effect[[]A] {
	return ForEachPar(effects, limit, func(m Effect[A]) Effect[A] { return m })
}

// Race runs two effects concurrently; the first to terminate wins, whether
// it succeeded or failed. The loser is interrupted and awaited before the
// winner's outcome is adopted, so Race never leaves a fiber behind.
func Race[A any](ma, mb Effect[A]) Effect[A] {
	return fiberEffect[A](func(fr *fiberRuntime) node {
		fa := fr.forkChildPaused(nodeOf(ma))
		fb := fr.forkChildPaused(nodeOf(mb))
		fr.scheduler.ScheduleTask(fa.run)
		fr.scheduler.ScheduleTask(fb.run)

		winner := &asyncNode{register: func(_ context.Context, resume func(Exit[any])) {
			var once sync.Once
			watch := func(other *fiberRuntime) func(Exit[any]) {
				return func(e Exit[any]) {
					once.Do(func() {
						other.requestInterrupt(CauseInterrupt(fr.id))
						other.addObserver(func(Exit[any]) {
							resume(exitSucceedAny(e))
						})
					})
				}
			}
			fa.addObserver(watch(fb))
			fb.addObserver(watch(fa))
		}}
		return &flatMapNode{source: winner, cont: func(v any) node {
			e := v.(Exit[any])
			if e.cause != nil {
				return &failCauseNode{cause: e.cause}
			}
			return &succeedNode{value: e.value}
		}}
	})
}
