// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

// Combinators over Effect values. Each combinator is a pure constructor:
// it builds a new instruction tree and performs no work until a fiber
// interprets it.

// FlatMap sequences two effects: run m, then pass its result to f and run
// the produced effect. If m fails, f never runs and the failure propagates
// unchanged.
func FlatMap[A, B any](m Effect[A], f func(A) Effect[B]) Effect[B] {
	return Effect[B]{node: &flatMapNode{
		source: nodeOf(m),
		cont:   func(v any) node { return nodeOf(f(v.(A))) },
	}}
}

// Map applies a pure transformation to the result of m. Map never observes
// failures: if m fails, f does not run.
func Map[A, B any](m Effect[A], f func(A) B) Effect[B] {
	return Effect[B]{node: &flatMapNode{
		source: nodeOf(m),
		cont:   func(v any) node { return &succeedNode{value: f(v.(A))} },
	}}
}

// Then sequences two effects, discarding the first result.
func Then[A, B any](m Effect[A], next Effect[B]) Effect[B] {
	return Effect[B]{node: &flatMapNode{
		source: nodeOf(m),
		cont:   func(any) node { return nodeOf(next) },
	}}
}

// AsUnit discards the result of m.
func AsUnit[A any](m Effect[A]) Effect[Unit] {
	return Map(m, func(A) Unit { return Unit{} })
}

// Pair holds two values.
type Pair[A, B any] struct {
	Fst A
	Snd B
}

// Zip runs two effects sequentially, left to right, and pairs their
// results. For the concurrent variant see [ZipPar].
func Zip[A, B any](ma Effect[A], mb Effect[B]) Effect[Pair[A, B]] {
	return ZipWith(ma, mb, func(a A, b B) Pair[A, B] { return Pair[A, B]{Fst: a, Snd: b} })
}

// ZipWith runs two effects sequentially and combines their results with f.
func ZipWith[A, B, C any](ma Effect[A], mb Effect[B], f func(A, B) C) Effect[C] {
	return FlatMap(ma, func(a A) Effect[C] {
		return Map(mb, func(b B) C { return f(a, b) })
	})
}

// MatchCause folds over the outcome of m with full Cause visibility: the
// failure branch observes typed failures, defects and child interruptions
// alike. A fiber's own interruption still unwinds past the fold so
// cancellation cannot be suppressed.
func MatchCause[A, B any](m Effect[A], onSuccess func(A) Effect[B], onFailure func(*Cause) Effect[B]) Effect[B] {
	return Effect[B]{node: &matchNode{
		source:    nodeOf(m),
		onSuccess: func(v any) node { return nodeOf(onSuccess(v.(A))) },
		onFailure: func(c *Cause) node { return nodeOf(onFailure(c)) },
	}}
}

// CatchCause recovers from any failure Cause of m, including defects.
func CatchCause[A any](m Effect[A], handler func(*Cause) Effect[A]) Effect[A] {
	return MatchCause(m, Succeed[A], handler)
}

// Catch recovers from typed failures of m. Causes containing defects or
// interruptions pass through untouched: Catch separates expected domain
// errors from programming bugs and cancellation.
func Catch[A any](m Effect[A], handler func(error) Effect[A]) Effect[A] {
	return CatchCause(m, func(c *Cause) Effect[A] {
		if !c.IsFailuresOnly() {
			return FailCause[A](c)
		}
		return handler(c.failureError())
	})
}

// MapError transforms the typed failure of m. Defects and interruptions are
// untouched.
func MapError[A any](m Effect[A], f func(error) error) Effect[A] {
	return Catch(m, func(err error) Effect[A] { return Fail[A](f(err)) })
}

// ToExit captures the outcome of m as a value: the resulting effect always
// succeeds, carrying m's Exit.
func ToExit[A any](m Effect[A]) Effect[Exit[A]] {
	return MatchCause(m,
		func(a A) Effect[Exit[A]] { return Succeed(ExitSucceed(a)) },
		func(c *Cause) Effect[Exit[A]] { return Succeed(ExitFailCause[A](c)) },
	)
}

// OnExit runs a finalizer on every exit path of m: success, failure, or
// interruption. The finalizer runs uninterruptibly; if it fails, its cause
// is combined with the prevailing outcome so no failure is lost.
func OnExit[A any](m Effect[A], finalizer func(Exit[A]) Effect[Unit]) Effect[A] {
	return Effect[A]{node: &finalizerNode{
		source:    nodeOf(m),
		finalizer: func(e Exit[any]) node { return nodeOf(finalizer(exitAs[A](e))) },
	}}
}

// Ensuring guarantees the finalizer effect runs on every exit path of m.
func Ensuring[A any](m Effect[A], finalizer Effect[Unit]) Effect[A] {
	return OnExit(m, func(Exit[A]) Effect[Unit] { return finalizer })
}

// OnError runs cleanup only when m fails (including interruption). The
// original cause still propagates afterward.
func OnError[A any](m Effect[A], cleanup func(*Cause) Effect[Unit]) Effect[A] {
	return OnExit(m, func(e Exit[A]) Effect[Unit] {
		if e.cause == nil {
			return Void()
		}
		return cleanup(e.cause)
	})
}

// Uninterruptible marks the enclosed region as deaf to interrupt signals.
// An interrupt requested while the region runs is queued and delivered at
// the next interruptible boundary.
func Uninterruptible[A any](m Effect[A]) Effect[A] {
	return Effect[A]{node: &maskNode{source: nodeOf(m), interruptible: false}}
}

// Interruptible re-enables interrupt delivery inside an uninterruptible
// region.
func Interruptible[A any](m Effect[A]) Effect[A] {
	return Effect[A]{node: &maskNode{source: nodeOf(m), interruptible: true}}
}

// Service reads a required capability from the ambient ServiceMap. A
// missing key without a default factory is a defect.
func Service[S any](k *Key[S]) Effect[S] {
	return fiberEffect[S](func(f *fiberRuntime) node {
		return &succeedNode{value: GetService(f.services, k)}
	})
}

// Provide binds a service for the duration of m. The previous binding (if
// any) is restored when m exits, on every path.
func Provide[A, S any](m Effect[A], k *Key[S], value S) Effect[A] {
	return UpdateServices(m, func(sm ServiceMap) ServiceMap {
		return AddService(sm, k, value)
	})
}

// UpdateServices runs m with a transformed ServiceMap, restoring the
// previous map when m exits.
func UpdateServices[A any](m Effect[A], transform func(ServiceMap) ServiceMap) Effect[A] {
	return Effect[A]{node: &servicesNode{source: nodeOf(m), transform: transform}}
}

// Services reads the fiber's current ServiceMap snapshot.
func Services() Effect[ServiceMap] {
	return fiberEffect[ServiceMap](func(f *fiberRuntime) node {
		return &succeedNode{value: f.services}
	})
}
