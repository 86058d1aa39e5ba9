// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// FiberID identifies a fiber for diagnostics and interruption causes.
type FiberID string

func newFiberID() FiberID { return FiberID(ulid.Make().String()) }

// Status is the lifecycle state of a fiber.
type Status int32

const (
	// StatusRunning means the fiber is executing or queued on a scheduler.
	StatusRunning Status = iota
	// StatusSuspended means the fiber is parked on an asynchronous operation.
	StatusSuspended
	// StatusDone means the fiber has terminated and its Exit is available.
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusSuspended:
		return "Suspended"
	case StatusDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// stepBudget bounds the number of interpreter steps a fiber takes before
// rescheduling itself, so one busy fiber cannot starve its scheduler.
const stepBudget = 2048

// resumeToken guards a suspension: the first consumer (an async resume or an
// interrupt delivery) wins, every later attempt is a no-op. Guarded by the
// fiber mutex.
type resumeToken struct {
	consumed bool
}

// fiberRuntime interprets an instruction tree on an explicit frame stack.
//
// The loop-owned fields (stack, cur, operand, hasValue, failure, services,
// interruptible, interrupting, condemned, finalExit) are touched only by the
// goroutine currently driving the fiber; ownership is handed over through
// the mutex-guarded suspension protocol. The mutex guards the lifecycle
// fields below it.
type fiberRuntime struct {
	id        FiberID
	rt        *Runtime
	scheduler Scheduler
	parent    *fiberRuntime
	ctx       context.Context
	cancel    context.CancelCauseFunc

	stack         []frame
	cur           node
	operand       any
	hasValue      bool
	failure       *Cause
	services      ServiceMap
	interruptible bool
	interrupting  bool
	condemned     int
	finalExit     *Exit[any]

	mu                sync.Mutex
	status            Status
	exit              Exit[any]
	observers         []func(Exit[any])
	children          map[*fiberRuntime]struct{}
	suspToken         *resumeToken
	suspInterruptible bool
	registering       bool
	pendingResume     *Exit[any]

	interruptSignal atomic.Pointer[Cause]
}

func newFiberRuntime(rt *Runtime, sched Scheduler, services ServiceMap) *fiberRuntime {
	ctx, cancel := context.WithCancelCause(context.Background())
	f := &fiberRuntime{
		id:            newFiberID(),
		rt:            rt,
		scheduler:     sched,
		ctx:           ctx,
		cancel:        cancel,
		services:      services,
		interruptible: true,
		status:        StatusRunning,
	}
	if rt != nil {
		rt.fibersStarted.Add(1)
		rt.fibersActive.Add(1)
	}
	return f
}

// forkChild starts a child fiber interpreting n with the parent's current
// ServiceMap. The parent tracks the child until it terminates: a parent that
// finishes first interrupts and awaits its surviving children.
func (f *fiberRuntime) forkChild(n node) *fiberRuntime {
	child := f.forkChildPaused(n)
	f.scheduler.ScheduleTask(child.run)
	return child
}

// forkChildPaused creates and registers a child without scheduling it, so a
// caller can finish shared setup before any sibling starts running.
func (f *fiberRuntime) forkChildPaused(n node) *fiberRuntime {
	child := newFiberRuntime(f.rt, f.scheduler, f.services)
	child.parent = f
	child.cur = n
	f.mu.Lock()
	if f.children == nil {
		f.children = make(map[*fiberRuntime]struct{})
	}
	f.children[child] = struct{}{}
	f.mu.Unlock()
	return child
}

func (f *fiberRuntime) removeChild(c *fiberRuntime) {
	f.mu.Lock()
	delete(f.children, c)
	f.mu.Unlock()
}

func (f *fiberRuntime) causeFail(err error) *Cause {
	return newCause(FailReason{Err: err, Fiber: f.id})
}

func (f *fiberRuntime) causeDie(value any, stack string) *Cause {
	return newCause(DieReason{Value: value, Stack: stack, Fiber: f.id})
}

// run drives the interpreter until the fiber suspends, exhausts its step
// budget, or terminates.
func (f *fiberRuntime) run() {
	for budget := stepBudget; ; {
		switch {
		case f.failure != nil:
			if !f.unwindStep() {
				return
			}
		case f.hasValue:
			if !f.popStep() {
				return
			}
		case f.cur != nil:
			if f.interruptible && !f.interrupting {
				if c := f.interruptSignal.Load(); c != nil {
					f.beginInterrupt(c)
					continue
				}
			}
			if !f.stepNode() {
				return
			}
		default:
			return
		}
		budget--
		if budget <= 0 {
			f.scheduler.ScheduleTask(f.run)
			return
		}
	}
}

// stepNode interprets one instruction node. Returns false when the fiber
// suspends and the loop must stop.
func (f *fiberRuntime) stepNode() bool {
	cur := f.cur
	f.cur = nil
	switch n := cur.(type) {
	case *succeedNode:
		f.operand = n.value
		f.hasValue = true
	case *failNode:
		f.failure = f.causeFail(n.err)
	case *dieNode:
		f.failure = f.causeDie(n.value, captureStack())
	case *failCauseNode:
		if n.cause == nil {
			f.failure = f.causeDie("efx: nil cause", captureStack())
		} else {
			f.failure = n.cause
		}
	case *syncNode:
		f.cur = f.protect(func() node { return &succeedNode{value: n.thunk()} })
	case *tryNode:
		f.cur = f.protect(func() node {
			v, err := n.thunk()
			if err != nil {
				return &failNode{err: err}
			}
			return &succeedNode{value: v}
		})
	case *suspendNode:
		f.cur = f.protect(n.make)
	case *flatMapNode:
		f.stack = append(f.stack, &successFrame{apply: n.cont})
		f.cur = n.source
	case *matchNode:
		f.stack = append(f.stack, &matchFrame{onSuccess: n.onSuccess, onFailure: n.onFailure})
		f.cur = n.source
	case *finalizerNode:
		f.stack = append(f.stack, &exitFrame{finalizer: n.finalizer})
		f.cur = n.source
	case *maskNode:
		f.stack = append(f.stack, &maskFrame{prev: f.interruptible})
		f.interruptible = n.interruptible
		f.cur = n.source
	case *servicesNode:
		f.stack = append(f.stack, &servicesFrame{prev: f.services})
		f.cur = f.protect(func() node {
			f.services = n.transform(f.services)
			return n.source
		})
	case *fiberNode:
		f.cur = f.protect(func() node { return n.f(f) })
	case *yieldNode:
		f.operand = Unit{}
		f.hasValue = true
		f.scheduler.ScheduleTask(f.run)
		return false
	case *asyncNode:
		return f.suspendAsync(n.register)
	default:
		f.failure = f.causeDie("efx: unknown instruction", captureStack())
	}
	return true
}

// popStep consumes the current success value with the top frame.
func (f *fiberRuntime) popStep() bool {
	if len(f.stack) == 0 {
		return f.terminate(exitSucceedAny(f.operand))
	}
	fr := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	switch fr := fr.(type) {
	case *successFrame:
		v := f.takeValue()
		f.cur = f.protect(func() node { return fr.apply(v) })
	case *matchFrame:
		v := f.takeValue()
		f.cur = f.protect(func() node { return fr.onSuccess(v) })
	case *exitFrame:
		f.pushFinalizer(fr, exitSucceedAny(f.takeValue()))
	case *resumeFrame:
		f.takeValue()
		if fr.cause != nil {
			f.failure = fr.cause
		} else {
			f.operand = fr.value
			f.hasValue = true
		}
	case *maskFrame:
		f.interruptible = fr.prev
	case *servicesFrame:
		f.services = fr.prev
	}
	return true
}

// unwindStep propagates the current failure one frame down the stack.
// Success continuations are skipped; matchFrames catch the cause unless they
// are condemned by an in-progress self-interruption; exitFrames always run.
func (f *fiberRuntime) unwindStep() bool {
	if len(f.stack) == 0 {
		return f.terminate(Exit[any]{cause: f.failure})
	}
	fr := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	condemned := f.interrupting && len(f.stack) < f.condemned
	switch fr := fr.(type) {
	case *successFrame:
		// skipped on failure
	case *matchFrame:
		if condemned {
			break
		}
		cause := f.failure
		f.failure = nil
		f.cur = f.protect(func() node { return fr.onFailure(cause) })
	case *exitFrame:
		f.pushFinalizer(fr, Exit[any]{cause: f.failure})
	case *resumeFrame:
		// The finalizer itself failed: combine its cause with the outcome
		// that was in flight so neither is lost.
		f.failure = CauseBoth(fr.cause, f.failure)
	case *maskFrame:
		f.interruptible = fr.prev
	case *servicesFrame:
		f.services = fr.prev
	}
	return true
}

func (f *fiberRuntime) takeValue() any {
	v := f.operand
	f.operand = nil
	f.hasValue = false
	return v
}

// pushFinalizer switches the interpreter into a finalizer region: the
// outcome in flight is parked on a resumeFrame, interrupts are masked, and
// the finalizer effect becomes the current instruction. During an
// interruption unwind the condemned watermark is lowered so frames the
// finalizer pushes behave normally.
func (f *fiberRuntime) pushFinalizer(fr *exitFrame, e Exit[any]) {
	if f.interrupting && len(f.stack) < f.condemned {
		f.condemned = len(f.stack)
	}
	f.stack = append(f.stack, &maskFrame{prev: f.interruptible})
	f.interruptible = false
	f.stack = append(f.stack, &resumeFrame{value: e.value, cause: e.cause})
	f.failure = nil
	f.cur = f.protect(func() node { return fr.finalizer(e) })
}

// protect invokes a user continuation, converting a panic into a defect and
// a nil instruction into a defect rather than a stalled fiber.
func (f *fiberRuntime) protect(fn func() node) (out node) {
	defer func() {
		if r := recover(); r != nil {
			out = &failCauseNode{cause: f.causeDie(r, captureStack())}
		} else if out == nil {
			out = &failCauseNode{cause: f.causeDie("efx: nil instruction", captureStack())}
		}
	}()
	return fn()
}

// beginInterrupt switches the fiber into interruption unwinding: every frame
// currently on the stack is condemned, so only exit finalizers run on the
// way down, and the fiber's context is cancelled.
func (f *fiberRuntime) beginInterrupt(cause *Cause) {
	f.interrupting = true
	f.condemned = len(f.stack)
	f.cur = nil
	f.operand = nil
	f.hasValue = false
	f.failure = cause
	f.cancel(cause)
}

// suspendAsync parks the fiber on an asynchronous registration. Returns true
// when the operation resolved synchronously and the loop should continue.
func (f *fiberRuntime) suspendAsync(register func(context.Context, func(Exit[any]))) bool {
	f.mu.Lock()
	if f.interruptible && !f.interrupting {
		if c := f.interruptSignal.Load(); c != nil {
			f.mu.Unlock()
			f.beginInterrupt(c)
			return true
		}
	}
	token := &resumeToken{}
	f.suspToken = token
	f.suspInterruptible = f.interruptible && !f.interrupting
	f.pendingResume = nil
	f.registering = true
	f.status = StatusSuspended
	f.mu.Unlock()

	resume := f.makeResume(token)
	func() {
		defer func() {
			if r := recover(); r != nil {
				resume(Exit[any]{cause: f.causeDie(r, captureStack())})
			}
		}()
		register(f.ctx, resume)
	}()

	f.mu.Lock()
	f.registering = false
	if f.pendingResume != nil {
		e := *f.pendingResume
		f.pendingResume = nil
		f.suspToken = nil
		f.status = StatusRunning
		f.mu.Unlock()
		f.applyExit(e)
		return true
	}
	// An interrupt that arrived during registration could not be delivered
	// while this goroutine still owned the loop; deliver it now.
	if f.suspInterruptible && !token.consumed {
		if c := f.interruptSignal.Load(); c != nil {
			token.consumed = true
			f.suspToken = nil
			f.status = StatusRunning
			f.mu.Unlock()
			f.beginInterrupt(c)
			return true
		}
	}
	f.mu.Unlock()
	return false
}

// makeResume builds the once-only continuation for a suspension.
func (f *fiberRuntime) makeResume(token *resumeToken) func(Exit[any]) {
	return func(e Exit[any]) {
		f.mu.Lock()
		if token.consumed {
			f.mu.Unlock()
			return
		}
		token.consumed = true
		if f.registering {
			// Still inside register on the fiber's own goroutine: hand the
			// result back through pendingResume instead of rescheduling.
			f.pendingResume = &e
			f.mu.Unlock()
			return
		}
		f.suspToken = nil
		f.status = StatusRunning
		f.mu.Unlock()
		f.applyExit(e)
		f.scheduler.ScheduleTask(f.run)
	}
}

func (f *fiberRuntime) applyExit(e Exit[any]) {
	if e.cause != nil {
		f.failure = e.cause
	} else {
		f.operand = e.value
		f.hasValue = true
	}
}

// requestInterrupt records an interruption request. If the fiber is parked
// on an interruptible suspension the request is delivered immediately;
// otherwise it is delivered at the fiber's next interruptible boundary. The
// first request wins.
func (f *fiberRuntime) requestInterrupt(cause *Cause) {
	f.interruptSignal.CompareAndSwap(nil, cause)
	cause = f.interruptSignal.Load()

	f.mu.Lock()
	if f.status == StatusSuspended && !f.registering && f.suspInterruptible &&
		f.suspToken != nil && !f.suspToken.consumed {
		f.suspToken.consumed = true
		f.suspToken = nil
		f.status = StatusRunning
		f.mu.Unlock()
		c := cause
		f.scheduler.ScheduleTask(func() {
			f.beginInterrupt(c)
			f.run()
		})
		return
	}
	f.mu.Unlock()
}

// terminate runs when the frame stack is exhausted. The first call parks the
// final exit and, if the fiber still has live children, interrupts and
// awaits them before finishing; child causes other than plain interruptions
// are folded into the final exit.
func (f *fiberRuntime) terminate(exit Exit[any]) bool {
	if f.finalExit == nil {
		f.finalExit = &exit
		f.mu.Lock()
		kids := make([]*fiberRuntime, 0, len(f.children))
		for c := range f.children {
			kids = append(kids, c)
		}
		f.mu.Unlock()
		if len(kids) > 0 {
			cause := CauseInterrupt(f.id)
			for _, c := range kids {
				c.requestInterrupt(cause)
			}
			f.interrupting = false
			f.interruptible = false
			f.failure = nil
			f.operand = nil
			f.hasValue = false
			f.cur = &flatMapNode{
				source: awaitFibersNode(kids),
				cont: func(v any) node {
					var acc *Cause
					for _, e := range v.([]Exit[any]) {
						if e.cause != nil && !e.cause.IsInterruptedOnly() {
							acc = CauseBoth(acc, e.cause)
						}
					}
					if acc != nil {
						return &failCauseNode{cause: acc}
					}
					return &succeedNode{value: Unit{}}
				},
			}
			return true
		}
		f.finalize(exit)
		return false
	}
	final := *f.finalExit
	if exit.cause != nil {
		final = Exit[any]{cause: CauseBoth(final.cause, exit.cause)}
	}
	f.finalize(final)
	return false
}

// finalize publishes the exit, notifies observers exactly once and detaches
// the fiber from its parent and runtime.
func (f *fiberRuntime) finalize(exit Exit[any]) {
	f.mu.Lock()
	if f.status == StatusDone {
		f.mu.Unlock()
		return
	}
	f.status = StatusDone
	f.exit = exit
	obs := f.observers
	f.observers = nil
	f.mu.Unlock()

	f.cancel(context.Canceled)
	if f.parent != nil {
		f.parent.removeChild(f)
	}
	if f.rt != nil {
		f.rt.fibersActive.Add(-1)
		// Child causes fold into their parent's exit, so reporting only at
		// root fibers surfaces every unhandled cause exactly once.
		if f.parent == nil {
			f.rt.report(exit.cause, f.id)
		}
	}
	for _, o := range obs {
		o(exit)
	}
}

// addObserver registers a completion callback, invoking it immediately when
// the fiber is already done. Each observer fires exactly once.
func (f *fiberRuntime) addObserver(o func(Exit[any])) {
	f.mu.Lock()
	if f.status == StatusDone {
		exit := f.exit
		f.mu.Unlock()
		o(exit)
		return
	}
	f.observers = append(f.observers, o)
	f.mu.Unlock()
}

// awaitFibersNode suspends until every fiber in fs has terminated, then
// resumes with their exits in order ([]Exit[any]).
func awaitFibersNode(fs []*fiberRuntime) node {
	return &asyncNode{register: func(_ context.Context, resume func(Exit[any])) {
		exits := make([]Exit[any], len(fs))
		var pending atomic.Int64
		pending.Store(int64(len(fs)))
		for i, c := range fs {
			i := i
			c.addObserver(func(e Exit[any]) {
				exits[i] = e
				if pending.Add(-1) == 0 {
					resume(exitSucceedAny(exits))
				}
			})
		}
	}}
}

// Fiber is a handle to a running computation: a lightweight cooperative
// thread of execution produced by [Fork] or [RunFork].
type Fiber[A any] struct {
	fr *fiberRuntime
}

// Fork starts m on a new fiber sharing the parent's scheduler and
// ServiceMap and returns its handle without waiting. The child is supervised:
// a parent that terminates first interrupts and awaits its live children.
func Fork[A any](m Effect[A]) Effect[*Fiber[A]] {
	return fiberEffect[*Fiber[A]](func(f *fiberRuntime) node {
		return &succeedNode{value: &Fiber[A]{fr: f.forkChild(nodeOf(m))}}
	})
}

// ID returns the fiber's identity.
func (f *Fiber[A]) ID() FiberID { return f.fr.id }

// Status returns the fiber's current lifecycle state.
func (f *Fiber[A]) Status() Status {
	f.fr.mu.Lock()
	defer f.fr.mu.Unlock()
	return f.fr.status
}

// Poll returns the fiber's Exit and true when it has terminated, without
// blocking.
func (f *Fiber[A]) Poll() (Exit[A], bool) {
	f.fr.mu.Lock()
	defer f.fr.mu.Unlock()
	if f.fr.status != StatusDone {
		return Exit[A]{}, false
	}
	return exitAs[A](f.fr.exit), true
}

// Wait blocks the calling goroutine until the fiber terminates and returns
// its Exit. Inside an effect prefer [Fiber.Await].
func (f *Fiber[A]) Wait() Exit[A] {
	ch := make(chan Exit[any], 1)
	f.fr.addObserver(func(e Exit[any]) { ch <- e })
	return exitAs[A](<-ch)
}

// Await suspends the calling fiber until this fiber terminates and succeeds
// with its Exit, whatever the outcome. The wait itself is interruptible.
func (f *Fiber[A]) Await() Effect[Exit[A]] {
	return Async(func(_ context.Context, resume func(Exit[Exit[A]])) {
		f.fr.addObserver(func(e Exit[any]) {
			resume(ExitSucceed(exitAs[A](e)))
		})
	})
}

// Join awaits the fiber and adopts its outcome: the value on success, the
// Cause on failure.
func (f *Fiber[A]) Join() Effect[A] {
	return FlatMap(f.Await(), FromExit)
}

// Interrupt requests cooperative cancellation and awaits termination,
// returning the fiber's Exit. It returns only after the target's finalizers
// have run. Interrupting a completed fiber returns its Exit unchanged.
// A fiber interrupting itself cannot await its own termination; it receives
// the pending interrupted Exit and unwinds at the next interruptible step.
func (f *Fiber[A]) Interrupt() Effect[Exit[A]] {
	return Uninterruptible(fiberEffect[Exit[A]](func(caller *fiberRuntime) node {
		cause := CauseInterrupt(caller.id)
		f.fr.requestInterrupt(cause)
		if caller == f.fr {
			return &succeedNode{value: ExitFailCause[A](cause)}
		}
		return nodeOf(f.Await())
	}))
}

// RequestInterrupt records an interruption request without waiting for the
// fiber to terminate.
func (f *Fiber[A]) RequestInterrupt() Effect[Unit] {
	return fiberEffect[Unit](func(caller *fiberRuntime) node {
		f.fr.requestInterrupt(CauseInterrupt(caller.id))
		return &succeedNode{value: Unit{}}
	})
}

// InterruptSelf interrupts the calling fiber. An interruptible caller unwinds
// here and never resumes; inside an uninterruptible region the request is
// recorded, the effect succeeds, and delivery waits for the next
// interruptible step.
func InterruptSelf() Effect[Unit] {
	return fiberEffect[Unit](func(f *fiberRuntime) node {
		f.requestInterrupt(CauseInterrupt(f.id))
		return &asyncNode{register: func(_ context.Context, resume func(Exit[any])) {
			resume(exitSucceedAny(Unit{}))
		}}
	})
}
