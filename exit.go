// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

import "fmt"

// Exit is the terminal result of a fiber: either a success carrying a value
// of type A, or a failure carrying a [*Cause]. A fiber produces its Exit
// exactly once, at termination; the value is read-only afterward.
type Exit[A any] struct {
	value A
	cause *Cause
}

// ExitSucceed creates a successful Exit.
func ExitSucceed[A any](value A) Exit[A] {
	return Exit[A]{value: value}
}

// ExitFail creates a failed Exit carrying a typed failure.
func ExitFail[A any](err error) Exit[A] {
	return Exit[A]{cause: CauseFail(err)}
}

// ExitFailCause creates a failed Exit from an existing Cause.
func ExitFailCause[A any](cause *Cause) Exit[A] {
	if cause == nil {
		cause = CauseDie("efx: nil cause")
	}
	return Exit[A]{cause: cause}
}

// ExitDie creates a failed Exit carrying a defect.
func ExitDie[A any](value any) Exit[A] {
	return Exit[A]{cause: CauseDie(value)}
}

// ExitInterrupt creates a failed Exit recording an interruption requested by
// the given fiber.
func ExitInterrupt[A any](fiber FiberID) Exit[A] {
	return Exit[A]{cause: CauseInterrupt(fiber)}
}

// IsSuccess reports whether the Exit carries a value.
func (e Exit[A]) IsSuccess() bool { return e.cause == nil }

// IsFailure reports whether the Exit carries a Cause.
func (e Exit[A]) IsFailure() bool { return e.cause != nil }

// IsInterrupted reports whether the Exit failed solely due to interruption.
func (e Exit[A]) IsInterrupted() bool {
	return e.cause != nil && e.cause.IsInterruptedOnly()
}

// Value returns the success value, or the zero value if the Exit failed.
func (e Exit[A]) Value() A { return e.value }

// Cause returns the failure cause, or nil on success.
func (e Exit[A]) Cause() *Cause { return e.cause }

// Err returns nil on success and the Cause (which implements error) on
// failure.
func (e Exit[A]) Err() error {
	if e.cause == nil {
		return nil
	}
	return e.cause
}

func (e Exit[A]) String() string {
	if e.cause == nil {
		return fmt.Sprintf("Succeed(%v)", e.value)
	}
	return fmt.Sprintf("Failed(%s)", e.cause.Error())
}

// exitErase converts a typed Exit to the erased form used by the fiber
// interpreter.
func exitErase[A any](e Exit[A]) Exit[any] {
	if e.cause != nil {
		return Exit[any]{cause: e.cause}
	}
	return Exit[any]{value: e.value}
}

// exitAs recovers a typed Exit from the erased form. A nil success value
// becomes the zero value of A.
func exitAs[A any](e Exit[any]) Exit[A] {
	if e.cause != nil {
		return Exit[A]{cause: e.cause}
	}
	v, _ := e.value.(A)
	return Exit[A]{value: v}
}

func exitSucceedAny(v any) Exit[any] { return Exit[any]{value: v} }
