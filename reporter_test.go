// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx_test

import (
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/efx"
)

type causeRecord struct {
	cause *efx.Cause
	fiber efx.FiberID
	at    time.Time
}

// recordingReporter collects reported causes. Reporters run synchronously on
// the deterministic scheduler, so no locking is needed under newSyncRuntime.
func recordingReporter(out *[]causeRecord) efx.ErrorReporter {
	return func(c *efx.Cause, fiber efx.FiberID, at time.Time) {
		*out = append(*out, causeRecord{cause: c, fiber: fiber, at: at})
	}
}

func TestReporterReceivesUnhandledFailure(t *testing.T) {
	var got []causeRecord
	rt := newSyncRuntime(efx.WithErrorReporter(recordingReporter(&got)))
	boom := errors.New("boom")
	efx.RunSync(rt, efx.Fail[int](boom))
	if len(got) != 1 {
		t.Fatalf("got %d reports, want 1", len(got))
	}
	if !errors.Is(got[0].cause, boom) {
		t.Fatalf("got cause %v, want boom", got[0].cause)
	}
	if got[0].fiber == "" {
		t.Fatalf("report lost the fiber id")
	}
}

func TestSameCauseReportedOnce(t *testing.T) {
	var got []causeRecord
	rt := newSyncRuntime(efx.WithErrorReporter(recordingReporter(&got)))
	c := efx.CauseFail(errors.New("boom"))
	efx.RunSync(rt, efx.FailCause[int](c))
	efx.RunSync(rt, efx.FailCause[int](c))
	if len(got) != 1 {
		t.Fatalf("same cause reported %d times, want 1", len(got))
	}
}

func TestDistinctCausesReportedSeparately(t *testing.T) {
	var got []causeRecord
	rt := newSyncRuntime(efx.WithErrorReporter(recordingReporter(&got)))
	efx.RunSync(rt, efx.Fail[int](errors.New("one")))
	efx.RunSync(rt, efx.Fail[int](errors.New("two")))
	if len(got) != 2 {
		t.Fatalf("got %d reports, want 2", len(got))
	}
}

func TestInterruptionIsNotReported(t *testing.T) {
	var got []causeRecord
	rt := newSyncRuntime(efx.WithErrorReporter(recordingReporter(&got)))
	f := efx.RunFork(rt, efx.Never[int]())
	efx.Run(rt, f.Interrupt())
	if len(got) != 0 {
		t.Fatalf("interruption produced %d reports, want 0", len(got))
	}
}

func TestRecoveredFailureIsNotReported(t *testing.T) {
	var got []causeRecord
	rt := newSyncRuntime(efx.WithErrorReporter(recordingReporter(&got)))
	m := efx.Catch(efx.Fail[int](errors.New("boom")), func(error) efx.Effect[int] {
		return efx.Succeed(0)
	})
	if exit := efx.RunSync(rt, m); exit.IsFailure() {
		t.Fatalf("got %v, want recovery", exit)
	}
	if len(got) != 0 {
		t.Fatalf("recovered failure produced %d reports, want 0", len(got))
	}
}

func TestDefectIsReported(t *testing.T) {
	var got []causeRecord
	rt := newSyncRuntime(efx.WithErrorReporter(recordingReporter(&got)))
	efx.RunSync(rt, efx.Die[int]("bug"))
	if len(got) != 1 || !got[0].cause.HasDefects() {
		t.Fatalf("got reports %v, want one defect report", got)
	}
}

func TestChildFailureReportedOnceThroughRoot(t *testing.T) {
	var got []causeRecord
	rt := newSyncRuntime(efx.WithErrorReporter(recordingReporter(&got)))
	boom := errors.New("boom")
	m := efx.FlatMap(efx.Fork(efx.Fail[int](boom)), func(f *efx.Fiber[int]) efx.Effect[int] {
		return f.Join()
	})
	efx.RunSync(rt, m)
	if len(got) != 1 {
		t.Fatalf("child failure reported %d times, want 1", len(got))
	}
	if !errors.Is(got[0].cause, boom) {
		t.Fatalf("got cause %v, want boom", got[0].cause)
	}
}

func TestAddErrorReporterFansOut(t *testing.T) {
	var a, b []causeRecord
	rt := newSyncRuntime(efx.WithErrorReporter(recordingReporter(&a)))
	rt.AddErrorReporter(recordingReporter(&b))
	efx.RunSync(rt, efx.Fail[int](errors.New("boom")))
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("got %d/%d reports, want 1/1", len(a), len(b))
	}
}
