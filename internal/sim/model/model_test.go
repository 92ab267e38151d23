package model

import (
	"errors"
	"testing"
)

func TestPackageTransitions(t *testing.T) {
	p := &Package{ID: "pkg-000001", Status: StatusWaitingPickup}

	if err := p.Transition(StatusAssigned); err != nil {
		t.Fatalf("WAITING_PICKUP -> ASSIGNED: %v", err)
	}
	if err := p.Transition(StatusPickedUp); err != nil {
		t.Fatalf("ASSIGNED -> PICKED_UP: %v", err)
	}
	if err := p.Transition(StatusDelivered); err != nil {
		t.Fatalf("PICKED_UP -> DELIVERED: %v", err)
	}
	// Terminal: nothing moves a delivered package.
	if err := p.Transition(StatusExpired); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("DELIVERED -> EXPIRED: want ErrBadTransition, got %v", err)
	}
	if p.Status != StatusDelivered {
		t.Fatalf("status mutated on rejected transition: %s", p.Status)
	}
}

func TestPackageExpiryPaths(t *testing.T) {
	waiting := &Package{ID: "a", Status: StatusWaitingPickup}
	if err := waiting.Transition(StatusExpired); err != nil {
		t.Fatalf("WAITING_PICKUP -> EXPIRED: %v", err)
	}
	assigned := &Package{ID: "b", Status: StatusAssigned}
	if err := assigned.Transition(StatusExpired); err != nil {
		t.Fatalf("ASSIGNED -> EXPIRED: %v", err)
	}
	picked := &Package{ID: "c", Status: StatusPickedUp}
	if err := picked.Transition(StatusExpired); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("PICKED_UP -> EXPIRED should be rejected, got %v", err)
	}
}

func TestParkingCapacity(t *testing.T) {
	p := NewParking("n1", 1)

	if err := p.Enter("truck-001", "n1"); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	// Capacity 1 already holding one truck: the second attempt fails and the
	// occupant set stays untouched.
	err := p.Enter("truck-002", "n1")
	if !errors.Is(err, ErrParkingFull) {
		t.Fatalf("want ErrParkingFull, got %v", err)
	}
	if got := p.Occupants(); len(got) != 1 || got[0] != "truck-001" {
		t.Fatalf("occupants after rejected enter: %v", got)
	}

	if err := p.Leave("truck-001"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := p.Enter("truck-002", "n1"); err != nil {
		t.Fatalf("enter after slot freed: %v", err)
	}
}

func TestParkingNodeMismatch(t *testing.T) {
	p := NewParking("n1", 4)
	err := p.Enter("truck-001", "n2")
	if !errors.Is(err, ErrParkingNodeMismatch) {
		t.Fatalf("want ErrParkingNodeMismatch, got %v", err)
	}
	if len(p.Occupants()) != 0 {
		t.Fatalf("occupants mutated on node mismatch")
	}
}

func TestParkingEnterIdempotent(t *testing.T) {
	p := NewParking("n1", 1)
	if err := p.Enter("truck-001", "n1"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	// Re-entering while holding the slot is a no-op, not a capacity error.
	if err := p.Enter("truck-001", "n1"); err != nil {
		t.Fatalf("re-enter while holding slot: %v", err)
	}
	if p.Free() != 0 {
		t.Fatalf("free slots = %d, want 0", p.Free())
	}
}

func TestPayloadAccessors(t *testing.T) {
	// Sim-internal payloads carry native numbers; payloads that crossed JSON
	// carry float64. Both must read back the same way.
	native := map[string]any{"package_id": "pkg-000001", "tick": uint64(42), "size": 3, "on_time": true}
	wire := map[string]any{"package_id": "pkg-000001", "tick": float64(42), "size": float64(3), "on_time": true}

	for name, p := range map[string]map[string]any{"native": native, "wire": wire} {
		if s, ok := PayloadString(p, "package_id"); !ok || s != "pkg-000001" {
			t.Fatalf("%s: PayloadString = %q, %v", name, s, ok)
		}
		if n, ok := PayloadUint(p, "tick"); !ok || n != 42 {
			t.Fatalf("%s: PayloadUint = %d, %v", name, n, ok)
		}
		if f, ok := PayloadFloat(p, "size"); !ok || f != 3 {
			t.Fatalf("%s: PayloadFloat = %g, %v", name, f, ok)
		}
		if b, ok := PayloadBool(p, "on_time"); !ok || !b {
			t.Fatalf("%s: PayloadBool = %v, %v", name, b, ok)
		}
	}

	if _, ok := PayloadString(native, "missing"); ok {
		t.Fatalf("missing key reported present")
	}
	if _, ok := PayloadUint(map[string]any{"tick": float64(-1)}, "tick"); ok {
		t.Fatalf("negative wire number accepted as uint")
	}
}

func TestPackageSpecValidate(t *testing.T) {
	good := PackageSpec{OriginSite: "site-001", DestinationSite: "site-002", Size: 2, Value: 50, PickupAfter: 30, DeliveryAfter: 120}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	bad := []PackageSpec{
		{DestinationSite: "site-002", Size: 2, Value: 50, PickupAfter: 30, DeliveryAfter: 120},
		{OriginSite: "site-001", DestinationSite: "site-001", Size: 2, Value: 50, PickupAfter: 30, DeliveryAfter: 120},
		{OriginSite: "site-001", DestinationSite: "site-002", Size: 0, Value: 50, PickupAfter: 30, DeliveryAfter: 120},
		{OriginSite: "site-001", DestinationSite: "site-002", Size: 2, Value: 0, PickupAfter: 30, DeliveryAfter: 120},
		{OriginSite: "site-001", DestinationSite: "site-002", Size: 2, Value: 50, PickupAfter: 120, DeliveryAfter: 30},
	}
	for i, s := range bad {
		if err := s.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("spec %d: want ErrValidation, got %v", i, err)
		}
	}
}
