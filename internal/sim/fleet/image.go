package fleet

import (
	"fmt"

	"freightcraft.ai/internal/persistence/snapshot"
	"freightcraft.ai/internal/sim/graph"
	"freightcraft.ai/internal/sim/model"
)

// ExportImage captures the truck's full behavioral state for a snapshot.
func (t *Truck) ExportImage() snapshot.TruckV1 {
	v := snapshot.TruckV1{
		ID:          string(t.ID()),
		Node:        string(t.node),
		Speed:       t.speed,
		Capacity:    t.capacity,
		Phase:       t.phase,
		RouteIx:     t.routeIx,
		EdgePos:     t.edgePos,
		Cargo:       string(t.cargo),
		ParkedAt:    string(t.parkedAt),
		AcceptedPkg: string(t.acceptedPkg),
		AcceptedAt:  t.acceptedAt,
	}
	if t.route != nil {
		v.RouteNodes = make([]string, len(t.route.Nodes))
		for i, n := range t.route.Nodes {
			v.RouteNodes[i] = string(n)
		}
		v.RouteLength = t.route.Length
	}
	if t.assignment != nil {
		v.Assignment = &snapshot.AssignmentV1{
			Package:          string(t.assignment.pkg),
			OriginNode:       string(t.assignment.originNode),
			DestinationNode:  string(t.assignment.destinationNode),
			PickupDeadline:   t.assignment.pickupDeadline,
			DeliveryDeadline: t.assignment.deliveryDeadline,
		}
	}
	return v
}

// RestoreTruck rebuilds a truck from a snapshot, mid-route if it was one.
func RestoreTruck(v snapshot.TruckV1) (*Truck, error) {
	t, err := NewTruck(model.AgentID(v.ID), model.NodeID(v.Node), v.Capacity, v.Speed)
	if err != nil {
		return nil, fmt.Errorf("restore truck: %w", err)
	}
	if v.Phase != "" {
		t.phase = v.Phase
	}
	if len(v.RouteNodes) > 0 {
		nodes := make([]model.NodeID, len(v.RouteNodes))
		for i, n := range v.RouteNodes {
			nodes[i] = model.NodeID(n)
		}
		t.route = &graph.Route{Nodes: nodes, Length: v.RouteLength}
	}
	t.routeIx = v.RouteIx
	t.edgePos = v.EdgePos
	t.cargo = model.PackageID(v.Cargo)
	t.parkedAt = model.NodeID(v.ParkedAt)
	t.acceptedPkg = model.PackageID(v.AcceptedPkg)
	t.acceptedAt = v.AcceptedAt
	if v.Assignment != nil {
		t.assignment = &assignment{
			pkg:              model.PackageID(v.Assignment.Package),
			originNode:       model.NodeID(v.Assignment.OriginNode),
			destinationNode:  model.NodeID(v.Assignment.DestinationNode),
			pickupDeadline:   v.Assignment.PickupDeadline,
			deliveryDeadline: v.Assignment.DeliveryDeadline,
		}
	}
	t.publishTags()
	return t, nil
}

// ExportImage captures the site's schedule position for a snapshot.
func (s *Site) ExportImage() snapshot.SiteV1 {
	v := snapshot.SiteV1{
		ID:       string(s.ID()),
		Node:     string(s.node),
		Building: s.building,
		Cursor:   s.cursor,
		Spawned:  s.spawned,
	}
	if len(s.schedule) > 0 {
		v.Schedule = make([]snapshot.SpawnV1, len(s.schedule))
		for i, e := range s.schedule {
			v.Schedule[i] = snapshot.SpawnV1{
				Tick:          e.Tick,
				Destination:   string(e.Destination),
				Size:          e.Size,
				Value:         e.Value,
				PickupAfter:   e.PickupAfter,
				DeliveryAfter: e.DeliveryAfter,
			}
		}
	}
	return v
}

// RestoreSite rebuilds a site from a snapshot, including how far through its
// schedule it had spawned.
func RestoreSite(v snapshot.SiteV1) (*Site, error) {
	schedule := make([]SpawnEntry, len(v.Schedule))
	for i, e := range v.Schedule {
		schedule[i] = SpawnEntry{
			Tick:          e.Tick,
			Destination:   model.AgentID(e.Destination),
			Size:          e.Size,
			Value:         e.Value,
			PickupAfter:   e.PickupAfter,
			DeliveryAfter: e.DeliveryAfter,
		}
	}
	s, err := NewSite(model.AgentID(v.ID), model.NodeID(v.Node), v.Building, schedule)
	if err != nil {
		return nil, fmt.Errorf("restore site: %w", err)
	}
	if v.Cursor < 0 || v.Cursor > len(s.schedule) {
		return nil, fmt.Errorf("restore site %s: cursor %d out of range", v.ID, v.Cursor)
	}
	s.cursor = v.Cursor
	s.spawned = v.Spawned
	s.publishTags()
	return s, nil
}
