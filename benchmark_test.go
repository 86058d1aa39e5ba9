// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx_test

import (
	"fmt"
	"testing"

	"code.hybscloud.com/efx"
)

// BenchmarkRunSyncSucceed measures the fixed cost of running a pure value
// through a fresh root fiber.
func BenchmarkRunSyncSucceed(b *testing.B) {
	rt := newSyncRuntime()
	for b.Loop() {
		_ = efx.RunSync(rt, efx.Succeed(1))
	}
}

// BenchmarkFlatMapChain measures interpretation of a 100-step FlatMap chain.
func BenchmarkFlatMapChain(b *testing.B) {
	rt := newSyncRuntime()
	inc := func(x int) efx.Effect[int] { return efx.Succeed(x + 1) }
	chain := efx.Succeed(0)
	for i := 0; i < 100; i++ {
		chain = efx.FlatMap(chain, inc)
	}
	for b.Loop() {
		_ = efx.RunSync(rt, chain)
	}
}

// BenchmarkForkJoin measures the round trip of forking a child fiber and
// joining its result.
func BenchmarkForkJoin(b *testing.B) {
	rt := newSyncRuntime()
	m := efx.FlatMap(efx.Fork(efx.Succeed(7)), func(f *efx.Fiber[int]) efx.Effect[int] {
		return f.Join()
	})
	for b.Loop() {
		_ = efx.RunSync(rt, m)
	}
}

// BenchmarkServiceLookup measures a layered ServiceMap read through the
// Service effect.
func BenchmarkServiceLookup(b *testing.B) {
	k := efx.NewKey[int]("bench.Target")
	sm := efx.NewServiceMap()
	for i := 0; i < 16; i++ {
		sm = efx.AddService(sm, efx.NewKey[int](fmt.Sprintf("bench.Pad%d", i)), i)
	}
	sm = efx.AddService(sm, k, 42)
	rt := newSyncRuntime(efx.WithServices(sm))
	m := efx.Service(k)
	for b.Loop() {
		_ = efx.RunSync(rt, m)
	}
}

// BenchmarkScopedFinalizer measures scope open/close with one finalizer.
func BenchmarkScopedFinalizer(b *testing.B) {
	rt := newSyncRuntime()
	m := efx.Scoped(efx.Then(
		efx.AddFinalizerEffect(func(efx.Exit[any]) efx.Effect[efx.Unit] {
			return efx.Void()
		}),
		efx.Succeed(1),
	))
	for b.Loop() {
		_ = efx.RunSync(rt, m)
	}
}
