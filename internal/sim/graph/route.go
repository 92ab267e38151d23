package graph

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/dgraph-io/ristretto/v2"

	"freightcraft.ai/internal/sim/model"
)

// Route is a shortest path between two nodes. Routes handed out by a Router
// may be cached and shared; callers must treat them as immutable.
type Route struct {
	Nodes  []model.NodeID
	Length float64
}

func (r *Route) Hops() int { return len(r.Nodes) - 1 }

// TravelTicks converts the route length into whole ticks at the given speed
// (length units per tick). Speed must be positive; fleet construction
// validates that before a truck ever routes.
func (r *Route) TravelTicks(speed float64) uint64 {
	if r.Length == 0 {
		return 0
	}
	return uint64(math.Ceil(r.Length / speed))
}

// ErrNoRoute is returned when the destination is unreachable from the origin.
var ErrNoRoute = fmt.Errorf("graph: no route")

type pqItem struct {
	node model.NodeID
	dist float64
}

type pq []pqItem

func (q pq) Len() int { return len(q) }
func (q pq) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].node < q[j].node
}
func (q pq) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *pq) Push(x any)   { *q = append(*q, x.(pqItem)) }
func (q *pq) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// ShortestPath runs Dijkstra over edge lengths. Ties in the frontier break on
// node id and adjacency lists are pre-sorted, so the result is the same for
// every call on the same graph.
func ShortestPath(g *Graph, from, to model.NodeID) (*Route, error) {
	if _, ok := g.Node(from); !ok {
		return nil, fmt.Errorf("graph: route origin %s: unknown node", from)
	}
	if _, ok := g.Node(to); !ok {
		return nil, fmt.Errorf("graph: route destination %s: unknown node", to)
	}
	if from == to {
		return &Route{Nodes: []model.NodeID{from}}, nil
	}

	dist := map[model.NodeID]float64{from: 0}
	prev := map[model.NodeID]model.NodeID{}
	done := map[model.NodeID]bool{}

	q := &pq{{node: from}}
	for q.Len() > 0 {
		it := heap.Pop(q).(pqItem)
		if done[it.node] {
			continue
		}
		done[it.node] = true
		if it.node == to {
			break
		}
		for _, e := range g.Out(it.node) {
			if done[e.To] {
				continue
			}
			nd := it.dist + e.Length
			if d, seen := dist[e.To]; !seen || nd < d {
				dist[e.To] = nd
				prev[e.To] = it.node
				heap.Push(q, pqItem{node: e.To, dist: nd})
			}
		}
	}

	if !done[to] {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, from, to)
	}
	var nodes []model.NodeID
	for at := to; ; at = prev[at] {
		nodes = append(nodes, at)
		if at == from {
			break
		}
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return &Route{Nodes: nodes, Length: dist[to]}, nil
}

// Router answers shortest-path queries with a ristretto cache in front of
// Dijkstra. The topology is immutable for a world's lifetime, so entries are
// never invalidated.
type Router struct {
	g     *Graph
	cache *ristretto.Cache[string, *Route]
}

func NewRouter(g *Graph) (*Router, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Route]{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("graph: route cache: %w", err)
	}
	return &Router{g: g, cache: cache}, nil
}

func (r *Router) Graph() *Graph { return r.g }

func (r *Router) Route(from, to model.NodeID) (*Route, error) {
	key := string(from) + "->" + string(to)
	if rt, ok := r.cache.Get(key); ok {
		return rt, nil
	}
	rt, err := ShortestPath(r.g, from, to)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, rt, int64(len(rt.Nodes)))
	return rt, nil
}

// Reachable reports whether to can be reached from from at all.
func (r *Router) Reachable(from, to model.NodeID) bool {
	_, err := r.Route(from, to)
	return err == nil
}

// Wait blocks until buffered cache admissions settle. Tests use it before
// asserting on hit behavior.
func (r *Router) Wait() { r.cache.Wait() }

func (r *Router) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}
