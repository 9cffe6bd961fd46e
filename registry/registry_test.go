package registry_test

import (
	"testing"

	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/registry"
)

func TestLookupRoundTrip(t *testing.T) {
	r := registry.New().Register("widget", 42)

	got, ok := r.Lookup("widget")
	if !ok || got != 42 {
		t.Fatalf("Lookup(widget) = %v, %v, want 42, true", got, ok)
	}

	if _, ok := r.Lookup("missing"); ok {
		t.Fatal("Lookup(missing) = true, want false")
	}
}

func TestFreezeRejectsFurtherRegister(t *testing.T) {
	r := registry.New().Freeze()
	if !r.Frozen() {
		t.Fatal("Frozen() = false after Freeze")
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("Register after Freeze: want panic, got none")
		}
		ee, ok := rec.(*engine.EngineError)
		if !ok || ee.Code != "REGISTRY_FROZEN" {
			t.Fatalf("panic value = %#v, want *engine.EngineError{Code: REGISTRY_FROZEN}", rec)
		}
	}()
	r.Register("late", struct{}{})
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := registry.New().Register("widget", 1)

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("duplicate Register: want panic, got none")
		}
		ee, ok := rec.(*engine.EngineError)
		if !ok || ee.Code != "REGISTRY_DUPLICATE" {
			t.Fatalf("panic value = %#v, want *engine.EngineError{Code: REGISTRY_DUPLICATE}", rec)
		}
	}()
	r.Register("widget", 2)
}

func TestMustLookupPanicsWhenMissing(t *testing.T) {
	r := registry.New()

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("MustLookup(missing): want panic, got none")
		}
		ee, ok := rec.(*engine.EngineError)
		if !ok || ee.Code != "REGISTRY_MISSING_SERVICE" {
			t.Fatalf("panic value = %#v, want *engine.EngineError{Code: REGISTRY_MISSING_SERVICE}", rec)
		}
	}()
	r.MustLookup("nope")
}

func TestMustLookupReturnsRegisteredService(t *testing.T) {
	r := registry.New().Register("widget", "value")
	if got := r.MustLookup("widget"); got != "value" {
		t.Fatalf("MustLookup(widget) = %v, want value", got)
	}
}
