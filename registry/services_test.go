package registry_test

import (
	"testing"

	"github.com/dipeo/engine/bus"
	"github.com/dipeo/engine/cost"
	"github.com/dipeo/engine/registry"
)

func TestTypedAccessorsReturnRegisteredServices(t *testing.T) {
	b := bus.New(8)
	tracker := cost.New("e1", "USD")

	r := registry.New().
		Register(registry.ServiceBus, b).
		Register(registry.ServiceTracker, tracker).
		Freeze()

	if r.Bus() != b {
		t.Fatal("Bus() did not return the registered bus")
	}
	if r.Tracker() != tracker {
		t.Fatal("Tracker() did not return the registered tracker")
	}
	if r.Model() != nil {
		t.Fatal("Model() = non-nil, want nil (never registered)")
	}
	if r.DB() != nil {
		t.Fatal("DB() = non-nil, want nil (never registered)")
	}
	if r.Router() != nil {
		t.Fatal("Router() = non-nil, want nil (never registered)")
	}
}
