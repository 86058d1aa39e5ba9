// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

// Continuation frames make up a fiber's explicit execution stack. The
// interpreter pops one frame per propagation step, so arbitrarily deep
// FlatMap chains never grow the native call stack.
//
// Frame values are owned by a single fiber and are never shared.

// frame is the marker interface for continuation frames.
// Dispatch uses type switches; frame is a pure marker interface.
type frame interface {
	frame()
}

// successFrame continues with the result of the previous step.
// Skipped during failure unwinding.
type successFrame struct {
	apply func(any) node
}

func (*successFrame) frame() {}

// matchFrame is a full fold over the previous step's outcome: one branch
// for a success value, one for a failure Cause. It is the primitive beneath
// Catch, CatchCause and MatchCause.
type matchFrame struct {
	onSuccess func(any) node
	onFailure func(*Cause) node
}

func (*matchFrame) frame() {}

// exitFrame runs a finalizer on every exit path of the region it guards:
// success, failure, or interruption.
type exitFrame struct {
	finalizer func(Exit[any]) node
}

func (*exitFrame) frame() {}

// resumeFrame restores the outcome that was in flight before an exitFrame
// finalizer ran. A nil cause means the region completed with value; a
// non-nil cause means the region was unwinding. If the finalizer itself
// failed, its cause is combined with the stored one so no failure is lost.
type resumeFrame struct {
	value any
	cause *Cause
}

func (*resumeFrame) frame() {}

// maskFrame restores the interruptibility that was in force before an
// Interruptible/Uninterruptible region was entered.
type maskFrame struct {
	prev bool
}

func (*maskFrame) frame() {}

// servicesFrame restores the ServiceMap that was in force before a Provide
// region was entered.
type servicesFrame struct {
	prev ServiceMap
}

func (*servicesFrame) frame() {}
