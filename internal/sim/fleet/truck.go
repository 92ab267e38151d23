// Package fleet holds the concrete behaviors living in the city: trucks that
// haul packages and sites that spawn them. Both embed agent.State and run
// entirely on the world loop goroutine.
package fleet

import (
	"fmt"

	"freightcraft.ai/internal/sim/agent"
	"freightcraft.ai/internal/sim/graph"
	"freightcraft.ai/internal/sim/model"
)

// confirmTimeoutTicks bounds how long an accepting truck waits for its
// assignment_confirmed before giving the slot up and going idle again.
const confirmTimeoutTicks = 10

type assignment struct {
	pkg              model.PackageID
	originNode       model.NodeID
	destinationNode  model.NodeID
	pickupDeadline   uint64
	deliveryDeadline uint64
}

// agentState aliases agent.State so embedding it yields a field name that
// does not shadow the promoted State() method required by agent.Agent.
type agentState = agent.State

// Truck hauls one package at a time. It evaluates proposals against capacity
// and pickup-deadline reachability, drives edge by edge at a fixed speed, and
// parks at the origin and destination buildings around the physical handover.
type Truck struct {
	*agentState

	speed    float64
	capacity int

	node    model.NodeID
	route   *graph.Route
	routeIx int
	edgePos float64

	phase      string
	assignment *assignment
	cargo      model.PackageID
	parkedAt   model.NodeID

	acceptedPkg model.PackageID
	acceptedAt  uint64
}

func NewTruck(id model.AgentID, start model.NodeID, capacity int, speed float64) (*Truck, error) {
	if id == "" {
		return nil, fmt.Errorf("truck needs an id")
	}
	if start == "" {
		return nil, fmt.Errorf("truck %s needs a start node", id)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("truck %s capacity must be positive, got %d", id, capacity)
	}
	if speed <= 0 {
		return nil, fmt.Errorf("truck %s speed must be positive, got %g", id, speed)
	}
	t := &Truck{
		agentState: agent.NewState(id, model.KindTruck),
		speed:      speed,
		capacity:   capacity,
		node:       start,
		phase:      model.TruckIdle,
	}
	t.publishTags()
	return t, nil
}

func (t *Truck) Decide(tick uint64, view agent.WorldView) error {
	for _, m := range t.TakeInbox() {
		switch m.Type {
		case model.MsgProposal:
			t.onProposal(tick, view, m)
		case model.MsgAssignmentConfirmed:
			t.onAssignmentConfirmed(tick, view, m)
		}
	}

	if t.phase == model.TruckCommitted && tick-t.acceptedAt > confirmTimeoutTicks {
		// The broker never confirmed (package expired mid-negotiation or the
		// accept went stale). Free the truck for the next proposal.
		t.phase = model.TruckIdle
		t.acceptedPkg = ""
	}

	switch t.phase {
	case model.TruckToPickup:
		t.drive(view)
		if t.arrived() {
			t.arriveAtPickup(tick, view)
		}
	case model.TruckAtPickup:
		t.departToDelivery(view)
	case model.TruckToDelivery:
		t.drive(view)
		if t.arrived() {
			t.arriveAtDelivery(tick, view)
		}
	case model.TruckAtDelivery:
		t.finishDelivery(view)
	}

	t.publishTags()
	return nil
}

func (t *Truck) onProposal(tick uint64, view agent.WorldView, m model.Msg) {
	pid, _ := model.PayloadString(m.Payload, "package_id")
	reject := func(reason string) {
		t.Send(model.NewMsg(model.MsgReject, t.ID(), m.Sender, map[string]any{
			"package_id":       pid,
			"rejection_reason": reason,
		}))
	}

	if t.phase != model.TruckIdle {
		reject("busy")
		return
	}
	size, ok := model.PayloadUint(m.Payload, "size")
	if !ok {
		reject("malformed")
		return
	}
	if int(size) > t.capacity {
		reject("too_small")
		return
	}
	originSite, _ := model.PayloadString(m.Payload, "origin_site_id")
	originNode, ok := view.SiteNode(model.AgentID(originSite))
	if !ok {
		reject("unknown_site")
		return
	}
	destSite, _ := model.PayloadString(m.Payload, "destination_site_id")
	destNode, ok := view.SiteNode(model.AgentID(destSite))
	if !ok {
		reject("unknown_site")
		return
	}

	toOrigin, err := view.Router().Route(t.node, originNode)
	if err != nil {
		reject("unreachable")
		return
	}
	toDest, err := view.Router().Route(originNode, destNode)
	if err != nil {
		reject("unreachable")
		return
	}

	pickupDeadline, _ := model.PayloadUint(m.Payload, "pickup_deadline")
	// One tick of message latency before the broker even reads the accept.
	pickupETA := tick + 1 + toOrigin.TravelTicks(t.speed)
	if pickupETA > pickupDeadline {
		reject("deadline_unreachable")
		return
	}
	deliveryETA := pickupETA + 1 + toDest.TravelTicks(t.speed)

	t.Send(model.NewMsg(model.MsgAccept, t.ID(), m.Sender, map[string]any{
		"package_id":              pid,
		"estimated_pickup_tick":   pickupETA,
		"estimated_delivery_tick": deliveryETA,
	}))
	t.phase = model.TruckCommitted
	t.acceptedPkg = model.PackageID(pid)
	t.acceptedAt = tick
}

func (t *Truck) onAssignmentConfirmed(tick uint64, view agent.WorldView, m model.Msg) {
	pid, _ := model.PayloadString(m.Payload, "package_id")
	if t.phase != model.TruckCommitted || model.PackageID(pid) != t.acceptedPkg {
		return
	}
	p, ok := view.Package(model.PackageID(pid))
	if !ok || p.Status != model.StatusAssigned {
		t.phase = model.TruckIdle
		t.acceptedPkg = ""
		return
	}
	t.assignment = &assignment{
		pkg:              p.ID,
		originNode:       p.OriginNode,
		destinationNode:  p.DestinationNode,
		pickupDeadline:   p.PickupDeadline,
		deliveryDeadline: p.DeliveryDeadline,
	}
	t.acceptedPkg = ""
	t.setRoute(view, t.assignment.originNode)
	t.phase = model.TruckToPickup
}

// setRoute freezes a cached route toward dest. Routes are shared and
// immutable; the truck tracks its own progress alongside.
func (t *Truck) setRoute(view agent.WorldView, dest model.NodeID) {
	rt, err := view.Router().Route(t.node, dest)
	if err != nil {
		// The proposal check accepted only reachable work, so a missing route
		// here means the assignment is not servable. Abandon.
		t.abandon()
		return
	}
	t.route = rt
	t.routeIx = 0
	t.edgePos = 0
}

func (t *Truck) arrived() bool {
	return t.route == nil || t.routeIx >= len(t.route.Nodes)-1
}

// drive advances up to speed length units along the frozen route, hopping
// whole edges as their remainders are consumed.
func (t *Truck) drive(view agent.WorldView) {
	if t.arrived() {
		return
	}
	g := view.Graph()
	budget := t.speed
	for budget > 0 && !t.arrived() {
		from := t.route.Nodes[t.routeIx]
		to := t.route.Nodes[t.routeIx+1]
		e, ok := g.EdgeBetween(from, to)
		if !ok {
			t.abandon()
			return
		}
		left := e.Length - t.edgePos
		if budget < left {
			t.edgePos += budget
			return
		}
		budget -= left
		t.edgePos = 0
		t.routeIx++
		t.node = to
	}
}

func (t *Truck) arriveAtPickup(tick uint64, view agent.WorldView) {
	if t.assignment == nil {
		t.abandon()
		return
	}
	if !t.tryPark(view) {
		return // lot full, retry next tick
	}
	p, ok := view.Package(t.assignment.pkg)
	if !ok || p.Status != model.StatusAssigned {
		// Expired (or otherwise gone) while we were driving.
		t.unpark(view)
		t.abandon()
		return
	}
	if tick > t.assignment.pickupDeadline {
		// Too late. Leave the package for the broker's expiry sweep rather
		// than loading it; the outcome then does not depend on whether the
		// broker or the truck decides first this tick.
		t.unpark(view)
		t.abandon()
		return
	}
	if err := p.Transition(model.StatusPickedUp); err != nil {
		t.unpark(view)
		t.abandon()
		return
	}
	t.cargo = p.ID
	t.Send(model.NewMsg(model.MsgPickupConfirmed, t.ID(), model.BrokerID, map[string]any{
		"package_id": string(p.ID),
	}))
	t.phase = model.TruckAtPickup
}

func (t *Truck) departToDelivery(view agent.WorldView) {
	t.unpark(view)
	if t.assignment == nil {
		t.abandon()
		return
	}
	t.setRoute(view, t.assignment.destinationNode)
	if t.phase == model.TruckIdle {
		return // setRoute abandoned
	}
	t.phase = model.TruckToDelivery
}

func (t *Truck) arriveAtDelivery(tick uint64, view agent.WorldView) {
	if t.assignment == nil || t.cargo == "" {
		t.abandon()
		return
	}
	if !t.tryPark(view) {
		return
	}
	p, ok := view.Package(t.cargo)
	if ok {
		if err := p.Transition(model.StatusDelivered); err == nil {
			onTime := tick <= t.assignment.deliveryDeadline
			t.Send(model.NewMsg(model.MsgDeliveryConfirmed, t.ID(), model.BrokerID, map[string]any{
				"package_id":    string(p.ID),
				"delivery_tick": tick,
				"on_time":       onTime,
			}))
		}
	}
	t.cargo = ""
	t.phase = model.TruckAtDelivery
}

func (t *Truck) finishDelivery(view agent.WorldView) {
	t.unpark(view)
	t.assignment = nil
	t.route = nil
	t.phase = model.TruckIdle
}

// tryPark claims a slot in the parking on the current node. Nodes without a
// parking resource (no building) do not gate the handover.
func (t *Truck) tryPark(view agent.WorldView) bool {
	lot, ok := view.Parking(t.node)
	if !ok {
		return true
	}
	if lot.Holds(t.ID()) {
		t.parkedAt = t.node
		return true
	}
	if err := lot.Enter(t.ID(), t.node); err != nil {
		return false
	}
	t.parkedAt = t.node
	return true
}

func (t *Truck) unpark(view agent.WorldView) {
	if t.parkedAt == "" {
		return
	}
	if lot, ok := view.Parking(t.parkedAt); ok && lot.Holds(t.ID()) {
		_ = lot.Leave(t.ID())
	}
	t.parkedAt = ""
}

func (t *Truck) abandon() {
	t.assignment = nil
	t.route = nil
	t.routeIx = 0
	t.edgePos = 0
	t.cargo = ""
	t.acceptedPkg = ""
	t.phase = model.TruckIdle
}

func (t *Truck) publishTags() {
	t.SetTag(model.TagNode, string(t.node))
	t.SetTag(model.TagStatus, t.phase)
	t.SetTag(model.TagCapacity, fmt.Sprintf("%d", t.capacity))
	switch {
	case t.cargo != "":
		t.SetTag(model.TagPackage, string(t.cargo))
	case t.assignment != nil:
		t.SetTag(model.TagPackage, string(t.assignment.pkg))
	case t.acceptedPkg != "":
		t.SetTag(model.TagPackage, string(t.acceptedPkg))
	default:
		t.SetTag(model.TagPackage, "")
	}
}

// Node is the truck's current (or most recently passed) graph node.
func (t *Truck) Node() model.NodeID { return t.node }

// Phase is the truck's current status tag value.
func (t *Truck) Phase() string { return t.phase }

// Carrying reports the loaded package, if any.
func (t *Truck) Carrying() (model.PackageID, bool) { return t.cargo, t.cargo != "" }
