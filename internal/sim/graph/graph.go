// Package graph holds the read-only city topology: nodes with coordinates and
// optional buildings, directed edges with length and mode. The simulation
// treats a loaded graph as immutable; routing results may therefore be cached
// for the world's lifetime.
package graph

import (
	"fmt"
	"sort"

	"freightcraft.ai/internal/sim/model"
)

// Building is the structured payload embedded on a node that hosts a site.
type Building struct {
	Kind            string `json:"kind"`
	ParkingCapacity int    `json:"parking_capacity"`
}

type Node struct {
	ID model.NodeID
	X  float64
	Y  float64

	// Building is nil for plain junction nodes.
	Building *Building
}

type Edge struct {
	From   model.NodeID
	To     model.NodeID
	Length float64
	Mode   string
}

// ModeRoad is the default edge mode when a map does not specify one.
const ModeRoad = "road"

type Graph struct {
	nodes map[model.NodeID]*Node
	order []model.NodeID
	out   map[model.NodeID][]Edge
	edges int
}

func New() *Graph {
	return &Graph{
		nodes: map[model.NodeID]*Node{},
		out:   map[model.NodeID][]Edge{},
	}
}

func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("graph: empty node id")
	}
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("graph: duplicate node %s", n.ID)
	}
	cp := n
	g.nodes[n.ID] = &cp
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge inserts a directed edge. Adjacency lists are kept sorted by target
// id so traversal order never depends on insertion order.
func (g *Graph) AddEdge(e Edge) error {
	if e.From == "" || e.To == "" {
		return fmt.Errorf("graph: edge needs both endpoints")
	}
	if e.Length <= 0 {
		return fmt.Errorf("graph: edge %s->%s has non-positive length %g", e.From, e.To, e.Length)
	}
	if e.Mode == "" {
		e.Mode = ModeRoad
	}
	list := g.out[e.From]
	i := sort.Search(len(list), func(i int) bool { return list[i].To >= e.To })
	list = append(list, Edge{})
	copy(list[i+1:], list[i:])
	list[i] = e
	g.out[e.From] = list
	g.edges++
	return nil
}

func (g *Graph) Node(id model.NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Out returns the outgoing edges of id sorted by target. Callers must not
// mutate the returned slice.
func (g *Graph) Out(id model.NodeID) []Edge {
	return g.out[id]
}

// EdgeBetween resolves the directed edge from -> to, if present.
func (g *Graph) EdgeBetween(from, to model.NodeID) (Edge, bool) {
	list := g.out[from]
	i := sort.Search(len(list), func(i int) bool { return list[i].To >= to })
	if i < len(list) && list[i].To == to {
		return list[i], true
	}
	return Edge{}, false
}

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return g.edges }

// BuildingNodes returns the nodes carrying a building, in insertion order.
func (g *Graph) BuildingNodes() []*Node {
	var out []*Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.Building != nil {
			out = append(out, n)
		}
	}
	return out
}

// Validate checks structural invariants: every edge endpoint resolves to a
// node and every building has a non-negative parking capacity.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return fmt.Errorf("graph: no nodes")
	}
	for from, list := range g.out {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("graph: edge source %s is not a node", from)
		}
		for _, e := range list {
			if _, ok := g.nodes[e.To]; !ok {
				return fmt.Errorf("graph: edge %s->%s targets unknown node", e.From, e.To)
			}
		}
	}
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Building != nil && n.Building.ParkingCapacity < 0 {
			return fmt.Errorf("graph: node %s parking capacity %d", id, n.Building.ParkingCapacity)
		}
	}
	return nil
}
