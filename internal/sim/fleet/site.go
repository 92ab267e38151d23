package fleet

import (
	"fmt"
	"sort"

	"freightcraft.ai/internal/sim/agent"
	"freightcraft.ai/internal/sim/model"
)

// SpawnEntry schedules one package out of a site.
type SpawnEntry struct {
	Tick          uint64
	Destination   model.AgentID
	Size          int
	Value         float64
	PickupAfter   uint64
	DeliveryAfter uint64
}

// Site occupies a building node and spawns packages on a fixed schedule. The
// schedule is sorted once at construction; Decide walks a cursor over it, so a
// site's output is deterministic for a given start tick.
type Site struct {
	*agentState

	node     model.NodeID
	building string

	schedule []SpawnEntry
	cursor   int
	spawned  int
}

func NewSite(id model.AgentID, node model.NodeID, building string, schedule []SpawnEntry) (*Site, error) {
	if id == "" {
		return nil, fmt.Errorf("site needs an id")
	}
	if node == "" {
		return nil, fmt.Errorf("site %s needs a node", id)
	}
	if building == "" {
		building = "warehouse"
	}
	sorted := make([]SpawnEntry, len(schedule))
	copy(sorted, schedule)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })

	s := &Site{
		agentState: agent.NewState(id, model.KindSite),
		node:       node,
		building:   building,
		schedule:   sorted,
	}
	s.publishTags()
	return s, nil
}

func (s *Site) Decide(tick uint64, view agent.WorldView) error {
	// Sites receive no protocol messages today; drain so nothing piles up.
	_ = s.TakeInbox()

	for s.cursor < len(s.schedule) && s.schedule[s.cursor].Tick <= tick {
		e := s.schedule[s.cursor]
		s.cursor++
		_, err := view.SpawnPackage(model.PackageSpec{
			OriginSite:      s.ID(),
			DestinationSite: e.Destination,
			Size:            e.Size,
			Value:           e.Value,
			PickupAfter:     e.PickupAfter,
			DeliveryAfter:   e.DeliveryAfter,
		})
		if err != nil {
			return fmt.Errorf("site %s spawn at tick %d: %w", s.ID(), tick, err)
		}
		s.spawned++
	}

	s.publishTags()
	return nil
}

func (s *Site) publishTags() {
	s.SetTag(model.TagNode, string(s.node))
	s.SetTag(model.TagBuilding, s.building)
	s.SetTag("spawned", fmt.Sprintf("%d", s.spawned))
}

// Node is the graph node the site occupies.
func (s *Site) Node() model.NodeID { return s.node }

// Pending is the number of scheduled spawns not yet executed.
func (s *Site) Pending() int { return len(s.schedule) - s.cursor }
