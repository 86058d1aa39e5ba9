// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package efx_test

import (
	"fmt"
	"strings"
	"testing"

	"code.hybscloud.com/efx"
)

func TestServiceMapAddLookup(t *testing.T) {
	k := efx.NewKey[int]("test.Int")
	sm := efx.AddService(efx.NewServiceMap(), k, 42)
	got, ok := efx.LookupService(sm, k)
	if !ok || got != 42 {
		t.Fatalf("got (%d, %v), want (42, true)", got, ok)
	}
}

func TestServiceMapImmutable(t *testing.T) {
	k := efx.NewKey[string]("test.Str")
	base := efx.NewServiceMap()
	derived := efx.AddService(base, k, "hello")
	if _, ok := efx.LookupService(base, k); ok {
		t.Fatalf("base map observed a binding added to a derived map")
	}
	if got, _ := efx.LookupService(derived, k); got != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestServiceMapNewestBindingWins(t *testing.T) {
	k := efx.NewKey[int]("test.Shadow")
	sm := efx.AddService(efx.NewServiceMap(), k, 1)
	sm = efx.AddService(sm, k, 2)
	if got, _ := efx.LookupService(sm, k); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestServiceMapKeysCompareByIdentity(t *testing.T) {
	k1 := efx.NewKey[int]("same.Name")
	k2 := efx.NewKey[int]("same.Name")
	sm := efx.AddService(efx.NewServiceMap(), k1, 7)
	if _, ok := efx.LookupService(sm, k2); ok {
		t.Fatalf("distinct keys with the same name must not alias")
	}
}

func TestServiceMapFlattenPreservesBindings(t *testing.T) {
	// Push well past the flatten threshold and verify every binding, with
	// shadowed keys resolving to the newest value.
	keys := make([]*efx.Key[int], 24)
	sm := efx.NewServiceMap()
	for i := range keys {
		keys[i] = efx.NewKey[int](fmt.Sprintf("flat.%d", i))
		sm = efx.AddService(sm, keys[i], i)
	}
	for i := 0; i < 24; i += 3 {
		sm = efx.AddService(sm, keys[i], i*100)
	}
	for i := range keys {
		want := i
		if i%3 == 0 {
			want = i * 100
		}
		if got, ok := efx.LookupService(sm, keys[i]); !ok || got != want {
			t.Fatalf("key %d: got (%d, %v), want (%d, true)", i, got, ok, want)
		}
	}
}

func TestServiceMapRefDefault(t *testing.T) {
	ref := efx.NewRef[int]("test.Ref", func() int { return 99 })
	got, ok := efx.LookupService(efx.NewServiceMap(), ref)
	if !ok || got != 99 {
		t.Fatalf("got (%d, %v), want (99, true)", got, ok)
	}
	if got := efx.GetService(efx.NewServiceMap(), ref); got != 99 {
		t.Fatalf("GetService got %d, want 99", got)
	}
}

func TestGetServiceMissingPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("GetService on a missing key did not panic")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "missing.Key") {
			t.Fatalf("panic %v does not name the key", r)
		}
	}()
	efx.GetService(efx.NewServiceMap(), efx.NewKey[int]("missing.Key"))
}

func TestNewKeyEmptyNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("NewKey with empty name did not panic")
		}
	}()
	efx.NewKey[int]("")
}

func TestMissingServiceIsDefect(t *testing.T) {
	rt := newSyncRuntime()
	exit := efx.RunSync(rt, efx.Service(efx.NewKey[int]("absent.Key")))
	if !exit.IsFailure() || !exit.Cause().HasDefects() {
		t.Fatalf("got %v, want a defect exit", exit)
	}
}
