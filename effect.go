// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

import (
	"context"
	"time"
)

// Effect is an immutable description of a computation that produces a value
// of type A when interpreted by a fiber. Constructing an Effect performs no
// work: evaluation happens only when the Effect is run (see [Run],
// [RunFork]) or forked ([Fork]). An Effect may be evaluated any number of
// times; evaluation never mutates the Effect value itself.
//
// Failures travel on a separate channel from values: typed failures
// ([Fail]) are recoverable via [Catch], while defects ([Die], recovered
// panics) and interruptions pass through Catch and are only observable via
// full-Cause handlers such as [CatchCause] and [MatchCause].
type Effect[A any] struct {
	node node
}

// Unit is the result type of effects evaluated for their side effects only.
type Unit struct{}

// node is the interface for instruction-tree nodes. The fiber interpreter
// dispatches on the concrete type; node is a pure marker interface.
type node interface {
	effectNode()
}

type succeedNode struct{ value any }

func (*succeedNode) effectNode() {}

type failNode struct{ err error }

func (*failNode) effectNode() {}

type dieNode struct{ value any }

func (*dieNode) effectNode() {}

type failCauseNode struct{ cause *Cause }

func (*failCauseNode) effectNode() {}

type syncNode struct{ thunk func() any }

func (*syncNode) effectNode() {}

type tryNode struct{ thunk func() (any, error) }

func (*tryNode) effectNode() {}

type suspendNode struct{ make func() node }

func (*suspendNode) effectNode() {}

// asyncNode suspends the fiber until resume is invoked. The context is
// cancelled when the fiber is interrupted or terminates, so registrations
// can abandon the underlying operation.
type asyncNode struct {
	register func(ctx context.Context, resume func(Exit[any]))
}

func (*asyncNode) effectNode() {}

type flatMapNode struct {
	source node
	cont   func(any) node
}

func (*flatMapNode) effectNode() {}

type matchNode struct {
	source    node
	onSuccess func(any) node
	onFailure func(*Cause) node
}

func (*matchNode) effectNode() {}

type finalizerNode struct {
	source    node
	finalizer func(Exit[any]) node
}

func (*finalizerNode) effectNode() {}

type maskNode struct {
	source        node
	interruptible bool
}

func (*maskNode) effectNode() {}

type servicesNode struct {
	source    node
	transform func(ServiceMap) ServiceMap
}

func (*servicesNode) effectNode() {}

// fiberNode grants the wrapped function access to the interpreting fiber.
// It is the internal escape hatch beneath Fork, Service and Scoped.
type fiberNode struct {
	f func(*fiberRuntime) node
}

func (*fiberNode) effectNode() {}

type yieldNode struct{}

func (*yieldNode) effectNode() {}

// nodeOf extracts the instruction node of an Effect, normalizing the zero
// Effect into a defect so a forgotten initialization surfaces as a Die
// cause instead of a hung fiber.
func nodeOf[A any](m Effect[A]) node {
	if m.node == nil {
		return &dieNode{value: "efx: zero Effect"}
	}
	return m.node
}

// fiberEffect wraps a fiber-accessing function as a typed Effect.
func fiberEffect[A any](f func(*fiberRuntime) node) Effect[A] {
	return Effect[A]{node: &fiberNode{f: f}}
}

// Succeed lifts a pure value into an Effect.
func Succeed[A any](value A) Effect[A] {
	return Effect[A]{node: &succeedNode{value: value}}
}

// Void is the unit effect: it succeeds with Unit and performs no work.
func Void() Effect[Unit] {
	return Succeed(Unit{})
}

// Fail creates an Effect that fails with a typed, recoverable error.
func Fail[A any](err error) Effect[A] {
	return Effect[A]{node: &failNode{err: err}}
}

// FailCause creates an Effect that fails with an existing Cause.
func FailCause[A any](cause *Cause) Effect[A] {
	return Effect[A]{node: &failCauseNode{cause: cause}}
}

// Die creates an Effect that fails with a defect. Defects represent
// programming errors: they pass through [Catch] and are only observable via
// full-Cause handlers.
func Die[A any](value any) Effect[A] {
	return Effect[A]{node: &dieNode{value: value}}
}

// Sync creates an Effect from a side-effecting thunk. The thunk runs each
// time the Effect is evaluated; a panic inside it becomes a Die cause.
func Sync[A any](thunk func() A) Effect[A] {
	return Effect[A]{node: &syncNode{thunk: func() any { return thunk() }}}
}

// Try creates an Effect from a fallible thunk. A non-nil error becomes a
// typed failure; a panic becomes a Die cause.
func Try[A any](thunk func() (A, error)) Effect[A] {
	return Effect[A]{node: &tryNode{thunk: func() (any, error) { return thunk() }}}
}

// Suspend defers construction of an Effect until evaluation time. Use it to
// allocate per-evaluation state or to build loops without growing the
// instruction tree eagerly.
func Suspend[A any](make func() Effect[A]) Effect[A] {
	return Effect[A]{node: &suspendNode{make: func() node { return nodeOf(make()) }}}
}

// Async creates an Effect from a callback-style operation. The register
// function is invoked when a fiber reaches the node; it must arrange for
// resume to be called exactly once with the operation's Exit. Calls after
// the first are ignored. The supplied context is cancelled when the fiber
// is interrupted or terminates.
//
// resume may be called synchronously from inside register.
func Async[A any](register func(ctx context.Context, resume func(Exit[A]))) Effect[A] {
	return Effect[A]{node: &asyncNode{register: func(ctx context.Context, resume func(Exit[any])) {
		register(ctx, func(e Exit[A]) { resume(exitErase(e)) })
	}}}
}

// Never creates an Effect that suspends forever. It completes only through
// interruption.
func Never[A any]() Effect[A] {
	return Effect[A]{node: &asyncNode{register: func(context.Context, func(Exit[any])) {}}}
}

// YieldNow inserts an explicit cooperative-yield point: the fiber
// reschedules itself and lets other fibers run before continuing.
func YieldNow() Effect[Unit] {
	return Effect[Unit]{node: &yieldNode{}}
}

// Sleep suspends the fiber for the given duration. Interruption cancels the
// timer.
func Sleep(d time.Duration) Effect[Unit] {
	return Async(func(ctx context.Context, resume func(Exit[Unit])) {
		t := time.AfterFunc(d, func() { resume(ExitSucceed(Unit{})) })
		context.AfterFunc(ctx, func() { t.Stop() })
	})
}

// FromExit lifts an Exit back into an Effect: a success value or the
// original Cause.
func FromExit[A any](e Exit[A]) Effect[A] {
	if e.cause != nil {
		return FailCause[A](e.cause)
	}
	return Succeed(e.value)
}
