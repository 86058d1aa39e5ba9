// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package efx provides a structured-concurrency effect runtime in Go.
//
// The core type [Effect] is an immutable description of a computation:
// building one performs no work, and a [Runtime] interprets it on
// lightweight cooperative fibers. Failures are structured values ([Cause])
// rather than bare errors, resources are bound to scopes, and concurrency is
// supervised: a fiber never outlives the computation that started it.
//
// # Design Philosophy
//
// efx provides:
//   - Effects as plain values: build once, run any number of times
//   - A typed-failure/defect/interruption split, so expected domain errors,
//     programming bugs and cancellation travel on separate channels
//   - Defunctionalized evaluation: fibers interpret instruction trees on an
//     explicit frame stack, so deep FlatMap chains never grow the native
//     call stack
//
// # Core Operations
//
// Leaves:
//
//   - [Succeed], [Void]: lift pure values
//   - [Fail], [FailCause], [Die]: typed failure, full Cause, defect
//   - [Sync], [Try]: side-effecting thunks (panics become defects)
//   - [Async]: callback-style suspension with once-only resume
//   - [Suspend]: defer construction until evaluation
//   - [Sleep], [Never], [YieldNow]: timers, eternal suspension, fairness
//
// Composition:
//
//   - [FlatMap], [Map], [Then], [Zip], [ZipWith]: sequencing
//   - [MatchCause], [CatchCause], [Catch], [MapError]: recovery
//   - [OnExit], [Ensuring], [OnError]: finalization on every exit path
//   - [Uninterruptible], [Interruptible]: interrupt-masking regions
//
// # Failure Model
//
// A failed fiber carries a [Cause]: a flat aggregate of [FailReason]
// (recoverable, stops at [Catch]), [DieReason] (defect with captured stack,
// passes through Catch) and [InterruptReason] (cancellation, passes through
// Catch). Parallel and sequential aggregation flatten into one reason list,
// so the final Cause is independent of completion order. [Exit] pairs a
// terminal value with an optional Cause; Cause implements error and
// unwraps for errors.Is / errors.As.
//
// # Services
//
// [ServiceMap] is an immutable, type-indexed environment threaded through
// every fiber. [NewKey] creates required capabilities (missing lookups are
// defects), [NewRef] creates keys with default factories. [Provide] and
// [UpdateServices] scope bindings to a region; [Service] reads one.
//
// # Scopes and Resources
//
// A [Scope] holds finalizers and closes them in reverse registration order,
// exactly once, on every exit path. [Scoped] bounds resource lifetime to a
// region; [AcquireRelease] pairs acquisition with guaranteed release;
// [AddFinalizerEffect] registers cleanup with the ambient scope.
//
// # Fibers and Interruption
//
// [Fork] starts a supervised child fiber; [Fiber.Await], [Fiber.Join],
// [Fiber.Poll] and [Fiber.Wait] observe it. Interruption is cooperative:
// [Fiber.Interrupt] requests cancellation and returns only after the target
// and its children have terminated and run their finalizers. Inside
// [Uninterruptible] regions the request is queued until the next
// interruptible boundary.
//
// Parallel combinators ([ZipPar], [ForEachPar], [CollectAllPar], [Race])
// run siblings as supervised children: no combinator returns while a
// sibling is still live.
//
// # Runtimes and Schedulers
//
// [NewRuntime] wires a ServiceMap, a [Scheduler] and the error-reporter
// pipeline. [Run] blocks for an Exit, [RunFork] returns a fiber handle, and
// [RunSync] evaluates deterministically on the calling goroutine using a
// [SyncScheduler]. The default [PoolScheduler] multiplexes fibers over a
// fixed worker pool with FIFO fairness; fibers yield after a step budget.
//
// Unhandled causes from root fibers flow to registered [ErrorReporter]
// callbacks, each unique Cause at most once; the default reporter logs
// through zerolog.
//
// # Example
//
//	rt := efx.NewRuntime()
//	program := efx.FlatMap(
//		efx.AcquireRelease(openFile(path), closeFile),
//		readAll,
//	)
//	exit := efx.Run(rt, efx.Scoped(program))
//	if exit.IsFailure() {
//		log.Fatal(exit.Cause())
//	}
package efx
