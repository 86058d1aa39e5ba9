// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

import "sync"

// Scope collects cleanup actions registered during a region of execution
// and runs them, in reverse registration order, exactly once when the
// region exits. Resource lifetime follows scope lifetime: a resource
// acquired in a scope is released when that scope closes, regardless of
// success, failure, or interruption.
//
// A Scope is safe for concurrent use.
type Scope struct {
	mu      sync.Mutex
	closed  bool
	nextID  uint64
	entries []scopeEntry

	removeFromParent func()
}

type scopeEntry struct {
	id  uint64
	fin func(Exit[any]) Effect[Unit]
}

// NewScope creates an empty, open Scope.
func NewScope() *Scope { return &Scope{} }

// AddFinalizer registers a cleanup action to run when the scope closes. The
// finalizer receives the Exit the scope is closing with. It returns a
// removal token and true, or false when the scope is already closed, in
// which case the caller is responsible for immediate cleanup.
//
// Removal is idempotent; removing after close is a no-op.
func (s *Scope) AddFinalizer(fin func(Exit[any]) Effect[Unit]) (remove func(), ok bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, false
	}
	id := s.nextID
	s.nextID++
	s.entries = append(s.entries, scopeEntry{id: id, fin: fin})
	s.mu.Unlock()
	return func() { s.removeFinalizer(id) }, true
}

func (s *Scope) removeFinalizer(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// IsClosed reports whether the scope has been closed.
func (s *Scope) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Fork creates a child scope. Closing the parent closes the child first;
// closing the child early detaches it from the parent so the parent never
// double-closes it.
func (s *Scope) Fork() (*Scope, bool) {
	child := &Scope{}
	remove, ok := s.AddFinalizer(func(e Exit[any]) Effect[Unit] {
		return child.CloseEffect(e)
	})
	if !ok {
		return nil, false
	}
	child.mu.Lock()
	child.removeFromParent = remove
	child.mu.Unlock()
	return child, true
}

// CloseEffect returns an effect that closes the scope with the given exit:
// it runs all registered finalizers in reverse registration order, each one
// uninterruptibly. A finalizer failure does not stop the remaining
// finalizers; all failure causes are combined and the close effect fails
// with the aggregate.
//
// Close is idempotent: concurrent and repeated closes run the finalizers at
// most once, and later calls succeed immediately.
func (s *Scope) CloseEffect(e Exit[any]) Effect[Unit] {
	return Uninterruptible(Suspend(func() Effect[Unit] {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Void()
		}
		s.closed = true
		entries := s.entries
		s.entries = nil
		remove := s.removeFromParent
		s.mu.Unlock()

		if remove != nil {
			remove()
		}
		return runFinalizers(entries, e, nil)
	}))
}

// runFinalizers runs entries newest-first, accumulating failure causes.
func runFinalizers(entries []scopeEntry, e Exit[any], acc *Cause) Effect[Unit] {
	if len(entries) == 0 {
		if acc != nil {
			return FailCause[Unit](acc)
		}
		return Void()
	}
	last := len(entries) - 1
	fin := entries[last].fin
	rest := entries[:last]
	return MatchCause(fin(e),
		func(Unit) Effect[Unit] { return runFinalizers(rest, e, acc) },
		func(c *Cause) Effect[Unit] { return runFinalizers(rest, e, CauseBoth(acc, c)) },
	)
}

// scopeKey threads the current scope through the ServiceMap.
var scopeKey = NewKey[*Scope]("efx.Scope")

// CurrentScope reads the fiber's current scope. Every fiber started through
// a [Runtime] has one; a missing scope is a defect.
func CurrentScope() Effect[*Scope] {
	return Service(scopeKey)
}

// AddFinalizerEffect registers a cleanup effect with the current scope. It
// defects if the scope is already closed.
func AddFinalizerEffect(fin func(Exit[any]) Effect[Unit]) Effect[Unit] {
	return FlatMap(CurrentScope(), func(s *Scope) Effect[Unit] {
		if _, ok := s.AddFinalizer(fin); !ok {
			return Die[Unit]("efx: AddFinalizer on closed scope")
		}
		return Void()
	})
}

// Scoped runs m in a fresh child of the current scope. Finalizers
// registered inside m run when m exits, not when the surrounding scope
// closes, bounding resource lifetime to the region.
func Scoped[A any](m Effect[A]) Effect[A] {
	return FlatMap(CurrentScope(), func(parent *Scope) Effect[A] {
		return Suspend(func() Effect[A] {
			child, ok := parent.Fork()
			if !ok {
				return Die[A]("efx: Scoped in closed scope")
			}
			return OnExit(
				Provide(m, scopeKey, child),
				func(e Exit[A]) Effect[Unit] { return child.CloseEffect(exitErase(e)) },
			)
		})
	})
}

// AcquireRelease acquires a resource and guarantees its release when the
// current scope closes. Acquisition runs uninterruptibly and registration
// happens before any interrupt can be delivered, so an acquired resource is
// never leaked.
func AcquireRelease[A any](acquire Effect[A], release func(A, Exit[any]) Effect[Unit]) Effect[A] {
	return Uninterruptible(FlatMap(CurrentScope(), func(s *Scope) Effect[A] {
		return FlatMap(acquire, func(a A) Effect[A] {
			if _, ok := s.AddFinalizer(func(e Exit[any]) Effect[Unit] {
				return release(a, e)
			}); !ok {
				return Die[A]("efx: AcquireRelease on closed scope")
			}
			return Succeed(a)
		})
	}))
}
