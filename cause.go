// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
)

// causeSeq stamps every Cause with a unique sequence number at creation.
// Error reporters use the sequence for once-only dispatch (see reporter.go).
var causeSeq atomic.Uint64

// Reason is one node of a [Cause]: a typed failure, a defect, or an
// interruption. Concrete types are [FailReason], [DieReason] and
// [InterruptReason].
type Reason interface {
	reason()

	// Origin returns the identity of the fiber on which the reason arose.
	Origin() FiberID
}

// FailReason carries a typed, recoverable failure.
// Typed failures stop at [Catch]-style combinators.
type FailReason struct {
	Err   error
	Fiber FiberID
}

func (FailReason) reason() {}

// Origin implements [Reason].
func (r FailReason) Origin() FiberID { return r.Fiber }

func (r FailReason) String() string { return "fail: " + r.Err.Error() }

// DieReason carries a defect: an unexpected programming error such as a
// recovered panic or a missing required service. Defects pass through
// [Catch] and are only observable via full-Cause handlers.
type DieReason struct {
	Value any
	Stack string
	Fiber FiberID
}

func (DieReason) reason() {}

// Origin implements [Reason].
func (r DieReason) Origin() FiberID { return r.Fiber }

func (r DieReason) String() string { return fmt.Sprintf("die: %v", r.Value) }

// InterruptReason records cooperative cancellation. Interrupt reasons are
// informational: reporters never surface causes consisting solely of them.
type InterruptReason struct {
	// Fiber is the fiber that requested the interruption.
	Fiber FiberID
}

func (InterruptReason) reason() {}

// Origin implements [Reason].
func (r InterruptReason) Origin() FiberID { return r.Fiber }

func (r InterruptReason) String() string { return "interrupt: " + string(r.Fiber) }

// Cause is a structured description of why a fiber failed. It holds one or
// more [Reason] values; multiple reasons represent aggregated failures from
// parallel composition or finalizer runs. A Cause is immutable once
// constructed and never empty.
type Cause struct {
	id      uint64
	reasons []Reason
}

func newCause(reasons ...Reason) *Cause {
	return &Cause{id: causeSeq.Add(1), reasons: reasons}
}

// CauseFail creates a single-reason Cause carrying a typed failure.
func CauseFail(err error) *Cause {
	if err == nil {
		err = errors.New("efx: nil error")
	}
	return newCause(FailReason{Err: err})
}

// CauseDie creates a single-reason Cause carrying a defect.
func CauseDie(value any) *Cause {
	return newCause(DieReason{Value: value, Stack: captureStack()})
}

// CauseInterrupt creates a single-reason Cause recording an interruption
// requested by the given fiber.
func CauseInterrupt(fiber FiberID) *Cause {
	return newCause(InterruptReason{Fiber: fiber})
}

// CauseBoth combines two causes produced by parallel composition.
// The operation is associative and commutative at the aggregate level:
// the resulting reason list contains every reason of both operands.
// Either operand may be nil.
func CauseBoth(a, b *Cause) *Cause {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	reasons := make([]Reason, 0, len(a.reasons)+len(b.reasons))
	reasons = append(reasons, a.reasons...)
	reasons = append(reasons, b.reasons...)
	return newCause(reasons...)
}

// CauseThen combines two causes produced by sequential composition,
// preserving left-to-right ordering of the reasons for diagnostics.
// Sequential and parallel combination flatten into the same reason list.
func CauseThen(first, second *Cause) *Cause {
	return CauseBoth(first, second)
}

// Reasons returns the reason list. The returned slice must not be mutated.
func (c *Cause) Reasons() []Reason { return c.reasons }

// Failures returns the errors of every [FailReason] in the cause.
func (c *Cause) Failures() []error {
	var errs []error
	for _, r := range c.reasons {
		if fr, ok := r.(FailReason); ok {
			errs = append(errs, fr.Err)
		}
	}
	return errs
}

// Defects returns every [DieReason] in the cause.
func (c *Cause) Defects() []DieReason {
	var ds []DieReason
	for _, r := range c.reasons {
		if dr, ok := r.(DieReason); ok {
			ds = append(ds, dr)
		}
	}
	return ds
}

// Interruptors returns the requesting fiber of every [InterruptReason].
func (c *Cause) Interruptors() []FiberID {
	var ids []FiberID
	for _, r := range c.reasons {
		if ir, ok := r.(InterruptReason); ok {
			ids = append(ids, ir.Fiber)
		}
	}
	return ids
}

// HasFailures reports whether the cause contains at least one typed failure.
func (c *Cause) HasFailures() bool {
	for _, r := range c.reasons {
		if _, ok := r.(FailReason); ok {
			return true
		}
	}
	return false
}

// HasDefects reports whether the cause contains at least one defect.
func (c *Cause) HasDefects() bool {
	for _, r := range c.reasons {
		if _, ok := r.(DieReason); ok {
			return true
		}
	}
	return false
}

// IsFailuresOnly reports whether every reason is a typed failure.
// Only such causes are recoverable via [Catch].
func (c *Cause) IsFailuresOnly() bool {
	if len(c.reasons) == 0 {
		return false
	}
	for _, r := range c.reasons {
		if _, ok := r.(FailReason); !ok {
			return false
		}
	}
	return true
}

// IsInterruptedOnly reports whether every reason is an interruption.
func (c *Cause) IsInterruptedOnly() bool {
	if len(c.reasons) == 0 {
		return false
	}
	for _, r := range c.reasons {
		if _, ok := r.(InterruptReason); !ok {
			return false
		}
	}
	return true
}

// IsInterrupted reports whether the cause contains an interruption reason.
func (c *Cause) IsInterrupted() bool {
	for _, r := range c.reasons {
		if _, ok := r.(InterruptReason); ok {
			return true
		}
	}
	return false
}

// failureError collapses the typed failures into a single error for
// Catch-style handlers: the sole error when there is exactly one, otherwise
// the errors joined.
func (c *Cause) failureError() error {
	errs := c.Failures()
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

// Error implements the error interface, rendering every reason.
func (c *Cause) Error() string {
	if len(c.reasons) == 1 {
		return reasonString(c.reasons[0])
	}
	parts := make([]string, len(c.reasons))
	for i, r := range c.reasons {
		parts[i] = reasonString(r)
	}
	return strings.Join(parts, "; ")
}

func reasonString(r Reason) string {
	if s, ok := r.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", r)
}

// Unwrap exposes the cause's failures and defects to errors.Is/errors.As.
// Defects carrying non-error values are wrapped in [*DefectError].
func (c *Cause) Unwrap() []error {
	var errs []error
	for _, r := range c.reasons {
		switch r := r.(type) {
		case FailReason:
			errs = append(errs, r.Err)
		case DieReason:
			if err, ok := r.Value.(error); ok {
				errs = append(errs, err)
			} else {
				errs = append(errs, &DefectError{Value: r.Value, Stack: r.Stack})
			}
		}
	}
	return errs
}

// DefectError adapts a non-error defect value to the error interface so it
// can travel through errors.As chains.
type DefectError struct {
	Value any
	Stack string
}

func (e *DefectError) Error() string { return fmt.Sprintf("defect: %v", e.Value) }

// captureStack records the current goroutine stack. 8 KiB is enough for
// most traces; runtime.Stack truncates gracefully if the buffer is small.
func captureStack() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
