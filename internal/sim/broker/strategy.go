package broker

import (
	"fmt"
	"sort"
	"strconv"

	"freightcraft.ai/internal/sim/agent"
	"freightcraft.ai/internal/sim/model"
)

// Candidate is one truck as seen through its published tags.
type Candidate struct {
	ID       model.AgentID
	Node     model.NodeID
	Idle     bool
	Capacity int
}

// Candidates builds the truck roster from the view, in registration order.
// Trucks that have not published a node tag yet are skipped.
func Candidates(view agent.WorldView) []Candidate {
	var out []Candidate
	for _, id := range view.AgentsOfKind(model.KindTruck) {
		tags, ok := view.AgentTags(id)
		if !ok {
			continue
		}
		node := tags[model.TagNode]
		if node == "" {
			continue
		}
		capacity, _ := strconv.Atoi(tags[model.TagCapacity])
		out = append(out, Candidate{
			ID:       id,
			Node:     model.NodeID(node),
			Idle:     tags[model.TagStatus] == model.TruckIdle,
			Capacity: capacity,
		})
	}
	return out
}

// Strategy ranks candidate trucks for a package. The returned order is the
// proposal order: index 0 gets the first proposal, the rest are fallbacks.
// Implementations must be deterministic for a fixed world state.
type Strategy interface {
	Name() string
	Rank(view agent.WorldView, pkg *model.Package, candidates []Candidate) []model.AgentID
}

// FromName resolves a strategy by its config name.
func FromName(name string) (Strategy, error) {
	switch name {
	case "", "nearest":
		return NewNearestAvailable(), nil
	case "round_robin":
		return NewRoundRobin(), nil
	}
	return nil, fmt.Errorf("unknown broker strategy %q", name)
}

// NearestAvailable ranks idle trucks with enough capacity by route distance to
// the package origin, closest first, ties broken by id.
type NearestAvailable struct{}

func NewNearestAvailable() *NearestAvailable { return &NearestAvailable{} }

func (*NearestAvailable) Name() string { return "nearest" }

func (*NearestAvailable) Rank(view agent.WorldView, pkg *model.Package, candidates []Candidate) []model.AgentID {
	type scored struct {
		id   model.AgentID
		dist float64
	}
	var fits []scored
	for _, c := range candidates {
		if !c.Idle || c.Capacity < pkg.Size {
			continue
		}
		rt, err := view.Router().Route(c.Node, pkg.OriginNode)
		if err != nil {
			continue
		}
		fits = append(fits, scored{id: c.ID, dist: rt.Length})
	}
	sort.Slice(fits, func(i, j int) bool {
		if fits[i].dist != fits[j].dist {
			return fits[i].dist < fits[j].dist
		}
		return fits[i].id < fits[j].id
	})
	out := make([]model.AgentID, 0, len(fits))
	for _, s := range fits {
		out = append(out, s.id)
	}
	return out
}

// RoundRobin spreads proposals across eligible trucks with a rotating cursor.
// The cursor advances once per ranking, so consecutive packages start at
// different trucks even when all of them are idle at the depot.
type RoundRobin struct {
	next uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (*RoundRobin) Name() string { return "round_robin" }

// cursorCarrier marks strategies whose rotation state must survive a
// snapshot restore.
type cursorCarrier interface {
	cursor() uint64
	setCursor(v uint64)
}

func (r *RoundRobin) cursor() uint64     { return r.next }
func (r *RoundRobin) setCursor(v uint64) { r.next = v }

func (r *RoundRobin) Rank(view agent.WorldView, pkg *model.Package, candidates []Candidate) []model.AgentID {
	var fits []model.AgentID
	for _, c := range candidates {
		if !c.Idle || c.Capacity < pkg.Size {
			continue
		}
		if !view.Router().Reachable(c.Node, pkg.OriginNode) {
			continue
		}
		fits = append(fits, c.ID)
	}
	if len(fits) == 0 {
		return nil
	}
	start := int(r.next % uint64(len(fits)))
	r.next++
	out := make([]model.AgentID, 0, len(fits))
	out = append(out, fits[start:]...)
	out = append(out, fits[:start]...)
	return out
}
