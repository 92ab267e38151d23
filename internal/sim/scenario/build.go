package scenario

import (
	"fmt"
	"log"

	"freightcraft.ai/internal/sim/broker"
	"freightcraft.ai/internal/sim/fleet"
	"freightcraft.ai/internal/sim/model"
	"freightcraft.ai/internal/sim/world"
)

// Build registers the scenario's cast on a freshly constructed world:
// the broker first, then trucks and sites in file order. Registration order
// is decide order, so the same file always produces the same world.
func Build(w *world.World, sc Scenario, logger *log.Logger) error {
	strategy, err := broker.FromName(sc.Broker.Strategy)
	if err != nil {
		return fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	if err := w.Register(broker.New(strategy, sc.Broker.StartingBalance, logger)); err != nil {
		return err
	}

	for _, spec := range sc.Trucks {
		t, err := fleet.NewTruck(model.AgentID(spec.ID), model.NodeID(spec.Node), spec.Capacity, spec.Speed)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		if err := w.Register(t); err != nil {
			return err
		}
	}

	for _, spec := range sc.Sites {
		schedule := make([]fleet.SpawnEntry, len(spec.Schedule))
		for i, e := range spec.Schedule {
			schedule[i] = fleet.SpawnEntry{
				Tick:          e.Tick,
				Destination:   model.AgentID(e.Destination),
				Size:          e.Size,
				Value:         e.Value,
				PickupAfter:   e.PickupAfter,
				DeliveryAfter: e.DeliveryAfter,
			}
		}
		s, err := fleet.NewSite(model.AgentID(spec.ID), model.NodeID(spec.Node), spec.Building, schedule)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		if err := w.Register(s); err != nil {
			return err
		}
	}
	return nil
}
