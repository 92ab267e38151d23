package model

import (
	"fmt"
	"sort"
)

// Parking is the capacity resource attached to a building's node. Occupancy is
// mutated only by the truck whose decide call is executing, which only happens
// on the world loop goroutine, so the struct carries no lock.
type Parking struct {
	Node     NodeID
	Capacity int

	occupants map[AgentID]bool
}

func NewParking(node NodeID, capacity int) *Parking {
	if capacity < 0 {
		capacity = 0
	}
	return &Parking{Node: node, Capacity: capacity, occupants: map[AgentID]bool{}}
}

// Enter grants truck a slot. atNode is the truck's current graph node; a truck
// may only hold a slot in the parking on the node it stands on. On any error
// the occupant set is left unchanged.
func (p *Parking) Enter(truck AgentID, atNode NodeID) error {
	if atNode != p.Node {
		return fmt.Errorf("%w: truck %s at %s, parking at %s", ErrParkingNodeMismatch, truck, atNode, p.Node)
	}
	if p.occupants[truck] {
		return nil
	}
	if len(p.occupants) >= p.Capacity {
		return fmt.Errorf("%w: node %s capacity %d", ErrParkingFull, p.Node, p.Capacity)
	}
	p.occupants[truck] = true
	return nil
}

// Leave releases truck's slot.
func (p *Parking) Leave(truck AgentID) error {
	if !p.occupants[truck] {
		return fmt.Errorf("%w: truck %s at node %s", ErrNotOccupant, truck, p.Node)
	}
	delete(p.occupants, truck)
	return nil
}

func (p *Parking) Holds(truck AgentID) bool { return p.occupants[truck] }

func (p *Parking) Free() int { return p.Capacity - len(p.occupants) }

// Occupants returns the current holders in sorted order.
func (p *Parking) Occupants() []AgentID {
	out := make([]AgentID, 0, len(p.occupants))
	for id := range p.occupants {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetOccupants replaces the occupant set wholesale. Snapshot restore only.
func (p *Parking) SetOccupants(ids []AgentID) {
	p.occupants = make(map[AgentID]bool, len(ids))
	for _, id := range ids {
		p.occupants[id] = true
	}
}
