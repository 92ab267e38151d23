package model

import "fmt"

// PackageStatus is the delivery job lifecycle. DELIVERED and EXPIRED are
// terminal; every transition is checked by Package.Transition so a stale or
// duplicate message can never move a finished job.
type PackageStatus string

const (
	StatusWaitingPickup PackageStatus = "WAITING_PICKUP"
	StatusAssigned      PackageStatus = "ASSIGNED"
	StatusPickedUp      PackageStatus = "PICKED_UP"
	StatusDelivered     PackageStatus = "DELIVERED"
	StatusExpired       PackageStatus = "EXPIRED"
)

func (s PackageStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusExpired
}

// validNext maps each status to the set of statuses reachable from it.
var validNext = map[PackageStatus]map[PackageStatus]bool{
	StatusWaitingPickup: {StatusAssigned: true, StatusExpired: true},
	StatusAssigned:      {StatusPickedUp: true, StatusExpired: true},
	StatusPickedUp:      {StatusDelivered: true},
	StatusDelivered:     {},
	StatusExpired:       {},
}

// Package is one delivery job. Origin/Destination name the site agents that
// bound the job; the matching graph nodes are resolved once at spawn so trucks
// route without a site lookup. Deadlines are absolute ticks.
type Package struct {
	ID               PackageID
	OriginSite       AgentID
	DestinationSite  AgentID
	OriginNode       NodeID
	DestinationNode  NodeID
	Size             int
	Value            float64
	PickupDeadline   uint64
	DeliveryDeadline uint64
	Status           PackageStatus
	SpawnedAt        uint64
}

// Transition moves the package to next, or reports ErrBadTransition without
// touching the status.
func (p *Package) Transition(next PackageStatus) error {
	if validNext[p.Status][next] {
		p.Status = next
		return nil
	}
	return fmt.Errorf("%w: package %s %s -> %s", ErrBadTransition, p.ID, p.Status, next)
}

// PackageSpec is the spawn request a site hands to the world. The world mints
// the id, stamps the spawn tick, resolves absolute deadlines, and registers the
// package in WAITING_PICKUP.
type PackageSpec struct {
	OriginSite      AgentID
	DestinationSite AgentID
	Size            int
	Value           float64
	// Deadline offsets in ticks from the spawn tick.
	PickupAfter   uint64
	DeliveryAfter uint64
}

// Validate reports the first structural problem with the spec.
func (s PackageSpec) Validate() error {
	if s.OriginSite == "" || s.DestinationSite == "" {
		return fmt.Errorf("%w: package spec needs origin and destination sites", ErrValidation)
	}
	if s.OriginSite == s.DestinationSite {
		return fmt.Errorf("%w: package origin equals destination (%s)", ErrValidation, s.OriginSite)
	}
	if s.Size <= 0 {
		return fmt.Errorf("%w: package size must be positive, got %d", ErrValidation, s.Size)
	}
	if s.Value <= 0 {
		return fmt.Errorf("%w: package value must be positive, got %g", ErrValidation, s.Value)
	}
	if s.PickupAfter == 0 || s.DeliveryAfter <= s.PickupAfter {
		return fmt.Errorf("%w: package deadlines must satisfy 0 < pickup < delivery", ErrValidation)
	}
	return nil
}
