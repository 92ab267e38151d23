// Package scenario describes a simulated world's cast: which map it runs on,
// the broker's funds and strategy, the trucks, and the sites with their spawn
// schedules. A scenario file plus a map file is everything needed to
// reproduce a run.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"freightcraft.ai/internal/sim/model"
)

type Scenario struct {
	Name string `yaml:"name"`
	// Map is the map file path, resolved relative to the scenario file.
	Map string `yaml:"map"`
	// Running boots the world with the simulation already ticking.
	Running bool `yaml:"running"`

	Broker BrokerSpec  `yaml:"broker"`
	Trucks []TruckSpec `yaml:"trucks"`
	Sites  []SiteSpec  `yaml:"sites"`

	// baseDir is the directory the scenario was loaded from.
	baseDir string
}

type BrokerSpec struct {
	Strategy        string  `yaml:"strategy"`
	StartingBalance float64 `yaml:"starting_balance"`
}

type TruckSpec struct {
	ID       string  `yaml:"id"`
	Node     string  `yaml:"node"`
	Capacity int     `yaml:"capacity"`
	Speed    float64 `yaml:"speed"`
}

type SiteSpec struct {
	ID       string      `yaml:"id"`
	Node     string      `yaml:"node"`
	Building string      `yaml:"building"`
	Schedule []SpawnSpec `yaml:"schedule"`
}

type SpawnSpec struct {
	Tick          uint64  `yaml:"tick"`
	Destination   string  `yaml:"destination"`
	Size          int     `yaml:"size"`
	Value         float64 `yaml:"value"`
	PickupAfter   uint64  `yaml:"pickup_after"`
	DeliveryAfter uint64  `yaml:"delivery_after"`
}

// Load reads and validates a scenario file.
func Load(path string) (Scenario, error) {
	var sc Scenario
	raw, err := os.ReadFile(path)
	if err != nil {
		return sc, err
	}
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return sc, fmt.Errorf("scenario %s: %w", path, err)
	}
	sc.baseDir = filepath.Dir(path)
	if err := sc.Validate(); err != nil {
		return sc, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// MapPath resolves the scenario's map reference against the scenario file's
// directory. Absolute references pass through.
func (sc Scenario) MapPath() string {
	if sc.Map == "" || filepath.IsAbs(sc.Map) || sc.baseDir == "" {
		return sc.Map
	}
	return filepath.Join(sc.baseDir, sc.Map)
}

// Validate reports the first structural problem: missing map, duplicate or
// empty ids, schedules shipping to unknown sites, non-positive truck specs.
func (sc Scenario) Validate() error {
	if sc.Map == "" {
		return fmt.Errorf("no map file")
	}
	seen := map[string]string{}
	note := func(id, role string) error {
		if id == "" {
			return fmt.Errorf("%s with empty id", role)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("id %s used by both %s and %s", id, prev, role)
		}
		seen[id] = role
		return nil
	}

	siteIDs := map[string]bool{}
	for _, s := range sc.Sites {
		if err := note(s.ID, "site"); err != nil {
			return err
		}
		if s.Node == "" {
			return fmt.Errorf("site %s has no node", s.ID)
		}
		siteIDs[s.ID] = true
	}
	for _, tr := range sc.Trucks {
		if err := note(tr.ID, "truck"); err != nil {
			return err
		}
		if tr.Node == "" {
			return fmt.Errorf("truck %s has no start node", tr.ID)
		}
		if tr.Capacity <= 0 {
			return fmt.Errorf("truck %s capacity %d", tr.ID, tr.Capacity)
		}
		if tr.Speed <= 0 {
			return fmt.Errorf("truck %s speed %g", tr.ID, tr.Speed)
		}
	}
	for _, s := range sc.Sites {
		for i, e := range s.Schedule {
			if !siteIDs[e.Destination] {
				return fmt.Errorf("site %s schedule[%d] ships to unknown site %q", s.ID, i, e.Destination)
			}
			if e.Destination == s.ID {
				return fmt.Errorf("site %s schedule[%d] ships to itself", s.ID, i)
			}
			spec := model.PackageSpec{
				OriginSite:      model.AgentID(s.ID),
				DestinationSite: model.AgentID(e.Destination),
				Size:            e.Size,
				Value:           e.Value,
				PickupAfter:     e.PickupAfter,
				DeliveryAfter:   e.DeliveryAfter,
			}
			if err := spec.Validate(); err != nil {
				return fmt.Errorf("site %s schedule[%d]: %w", s.ID, i, err)
			}
		}
	}
	return nil
}
