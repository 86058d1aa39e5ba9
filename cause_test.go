// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/efx"
)

func TestCauseFailSingleReason(t *testing.T) {
	err := errors.New("boom")
	c := efx.CauseFail(err)
	if got := len(c.Reasons()); got != 1 {
		t.Fatalf("got %d reasons, want 1", got)
	}
	if !c.IsFailuresOnly() {
		t.Fatalf("IsFailuresOnly = false, want true")
	}
	if c.HasDefects() || c.IsInterrupted() {
		t.Fatalf("unexpected defect/interrupt in %v", c)
	}
}

func TestCauseBothFlattens(t *testing.T) {
	e1, e2, e3 := errors.New("e1"), errors.New("e2"), errors.New("e3")
	a := efx.CauseBoth(efx.CauseFail(e1), efx.CauseFail(e2))
	b := efx.CauseBoth(a, efx.CauseFail(e3))
	if got := len(b.Reasons()); got != 3 {
		t.Fatalf("got %d reasons, want 3", got)
	}
	fails := b.Failures()
	if len(fails) != 3 || fails[0] != e1 || fails[1] != e2 || fails[2] != e3 {
		t.Fatalf("got failures %v, want [e1 e2 e3]", fails)
	}
}

func TestCauseBothNilOperands(t *testing.T) {
	c := efx.CauseFail(errors.New("x"))
	if got := efx.CauseBoth(nil, c); got != c {
		t.Fatalf("CauseBoth(nil, c) = %v, want c", got)
	}
	if got := efx.CauseBoth(c, nil); got != c {
		t.Fatalf("CauseBoth(c, nil) = %v, want c", got)
	}
	if got := efx.CauseBoth(nil, nil); got != nil {
		t.Fatalf("CauseBoth(nil, nil) = %v, want nil", got)
	}
}

func TestCauseThenMatchesBothAggregate(t *testing.T) {
	e1, e2 := errors.New("e1"), errors.New("e2")
	seq := efx.CauseThen(efx.CauseFail(e1), efx.CauseFail(e2))
	par := efx.CauseBoth(efx.CauseFail(e1), efx.CauseFail(e2))
	if len(seq.Reasons()) != len(par.Reasons()) {
		t.Fatalf("sequential and parallel aggregates differ: %v vs %v", seq, par)
	}
}

func TestCauseMixedPredicates(t *testing.T) {
	c := efx.CauseBoth(efx.CauseFail(errors.New("boom")), efx.CauseDie("bug"))
	if c.IsFailuresOnly() {
		t.Fatalf("IsFailuresOnly = true for mixed cause")
	}
	if !c.HasFailures() || !c.HasDefects() {
		t.Fatalf("mixed cause lost a reason kind: %v", c)
	}
	if c.IsInterruptedOnly() {
		t.Fatalf("IsInterruptedOnly = true for mixed cause")
	}
}

func TestCauseInterruptOnly(t *testing.T) {
	c := efx.CauseInterrupt(efx.FiberID("f1"))
	if !c.IsInterruptedOnly() || !c.IsInterrupted() {
		t.Fatalf("interrupt cause predicates wrong: %v", c)
	}
	ids := c.Interruptors()
	if len(ids) != 1 || ids[0] != efx.FiberID("f1") {
		t.Fatalf("got interruptors %v, want [f1]", ids)
	}
}

func TestCauseErrorsIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	c := efx.CauseBoth(efx.CauseFail(sentinel), efx.CauseDie("bug"))
	if !errors.Is(c, sentinel) {
		t.Fatalf("errors.Is lost the typed failure")
	}
	var de *efx.DefectError
	if !errors.As(c, &de) {
		t.Fatalf("errors.As missed the defect")
	}
	if de.Value != "bug" {
		t.Fatalf("got defect value %v, want bug", de.Value)
	}
}

func TestCauseDieCapturesStack(t *testing.T) {
	c := efx.CauseDie("bug")
	ds := c.Defects()
	if len(ds) != 1 {
		t.Fatalf("got %d defects, want 1", len(ds))
	}
	if ds[0].Stack == "" {
		t.Fatalf("defect stack is empty")
	}
}

func TestCauseErrorRendersAllReasons(t *testing.T) {
	c := efx.CauseBoth(efx.CauseFail(errors.New("boom")), efx.CauseInterrupt(efx.FiberID("f1")))
	msg := c.Error()
	if msg == "" {
		t.Fatalf("empty cause message")
	}
	if len(c.Reasons()) != 2 {
		t.Fatalf("got %d reasons, want 2", len(c.Reasons()))
	}
}
