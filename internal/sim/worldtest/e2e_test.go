package worldtest

import (
	"testing"

	"freightcraft.ai/internal/control"
	"freightcraft.ai/internal/protocol"
	"freightcraft.ai/internal/sim/graph"
	"freightcraft.ai/internal/sim/model"
	"freightcraft.ai/internal/sim/scenario"
	"freightcraft.ai/internal/sim/world"
)

// lineGraph is n1 - n2(site-a) - n3 - n4(site-b), every edge length 2, both
// directions. A truck at speed 2 crosses one edge per tick.
func lineGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	nodes := []graph.Node{
		{ID: "n1"},
		{ID: "n2", X: 2, Building: &graph.Building{Kind: "warehouse", ParkingCapacity: 1}},
		{ID: "n3", X: 4},
		{ID: "n4", X: 6, Building: &graph.Building{Kind: "market", ParkingCapacity: 1}},
	}
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	for _, pair := range [][2]model.NodeID{{"n1", "n2"}, {"n2", "n3"}, {"n3", "n4"}} {
		for _, e := range []graph.Edge{
			{From: pair[0], To: pair[1], Length: 2, Mode: graph.ModeRoad},
			{From: pair[1], To: pair[0], Length: 2, Mode: graph.ModeRoad},
		} {
			if err := g.AddEdge(e); err != nil {
				t.Fatalf("AddEdge: %v", err)
			}
		}
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return g
}

func lineScenario() scenario.Scenario {
	return scenario.Scenario{
		Name: "line",
		Map:  "line.graphml",
		Broker: scenario.BrokerSpec{
			Strategy:        "nearest",
			StartingBalance: 1000,
		},
		Trucks: []scenario.TruckSpec{
			{ID: "truck-001", Node: "n1", Capacity: 2, Speed: 2},
		},
		Sites: []scenario.SiteSpec{
			{ID: "site-a", Node: "n2", Building: "warehouse"},
			{ID: "site-b", Node: "n4", Building: "market"},
		},
	}
}

func TestDeliveryLifecycleOverControlPlane(t *testing.T) {
	h := NewHarness(t, world.WorldConfig{ID: "e2e-1", StartRunning: true}, lineGraph(t), lineScenario())

	pid := h.Spawn("site-a", "site-b", 1, 100, 80, 200)

	h.StepUntil(60, "package delivered", func() bool {
		return h.PackageStatus(pid) == model.StatusDelivered
	})
	h.StepUntil(10, "truck idle again", func() bool {
		return h.Tag("truck-001", model.TagStatus) == model.TruckIdle
	})

	// On-time delivery credits the full value on top of the starting balance.
	if got := h.Tag(string(model.BrokerID), model.TagBalance); got != "1100.00" {
		t.Fatalf("broker balance = %s, want 1100.00", got)
	}
	if got := h.Tag(string(model.BrokerID), "assigned"); got != "0" {
		t.Fatalf("broker still holds %s assignments", got)
	}
	if got := h.Tag("truck-001", model.TagNode); got != "n4" {
		t.Fatalf("truck ended at %s, want n4", got)
	}
}

func TestUnservablePackageExpiresWithoutFine(t *testing.T) {
	h := NewHarness(t, world.WorldConfig{ID: "e2e-2", StartRunning: true}, lineGraph(t), lineScenario())

	// The pickup window closes before any truck can reach site-a, so the only
	// candidate rejects and the broker expires the package on its next look.
	pid := h.Spawn("site-a", "site-b", 1, 100, 1, 50)

	h.StepUntil(20, "package expired", func() bool {
		return h.PackageStatus(pid) == model.StatusExpired
	})

	// Never assigned, so no fine: the ledger is untouched.
	if got := h.Tag(string(model.BrokerID), model.TagBalance); got != "1000.00" {
		t.Fatalf("broker balance = %s, want 1000.00", got)
	}
}

func TestLifecycleGatingOverControlPlane(t *testing.T) {
	h := NewHarness(t, world.WorldConfig{ID: "e2e-3"}, lineGraph(t), lineScenario())

	// Stopped world: spawning is a lifecycle error, not a fault.
	sigs := h.Do(control.ActionPackageSpawn, map[string]any{
		"origin_site_id":      "site-a",
		"destination_site_id": "site-b",
		"size":                1,
		"value":               50.0,
		"pickup_after":        uint64(10),
		"delivery_after":      uint64(20),
	})
	wantError(t, sigs, protocol.ErrLifecycle)

	tickBefore := h.W.Tick()
	h.Step(3)
	if h.W.Tick() != tickBefore {
		t.Fatalf("tick advanced while stopped")
	}

	h.Start()
	sigs = h.Do(control.ActionSimStart, nil)
	wantError(t, sigs, protocol.ErrLifecycle)

	h.Step(3)
	if h.W.Tick() == tickBefore {
		t.Fatalf("tick frozen after sim.start")
	}

	if got := h.MustDo(control.ActionSimStop, nil); got[0].Kind != control.SignalSimStopped {
		t.Fatalf("sim.stop replied %s", got[0].Kind)
	}
}

func TestDescribeAndListOverControlPlane(t *testing.T) {
	h := NewHarness(t, world.WorldConfig{ID: "e2e-4", StartRunning: true}, lineGraph(t), lineScenario())

	sigs := h.MustDo(control.ActionAgentList, map[string]any{"filter": "site"})
	if got := sigs[0].Payload["count"]; got != 2 {
		t.Fatalf("site count = %v, want 2", got)
	}

	// Full-state sync carries every agent: broker, truck, both sites.
	sigs = h.MustDo(control.ActionWorldSync, nil)
	if got := sigs[0].Payload["count"]; got != 4 {
		t.Fatalf("sync count = %v, want 4", got)
	}

	sigs = h.MustDo(control.ActionAgentDescribe, map[string]any{"agent_id": "truck-001"})
	if got := sigs[0].Payload["kind"]; got != model.KindTruck {
		t.Fatalf("described kind = %v", got)
	}

	wantError(t, h.Do(control.ActionAgentDescribe, map[string]any{"agent_id": "truck-999"}), protocol.ErrNotFound)
	wantError(t, h.Do(control.ActionAgentList, map[string]any{"filter": 7}), protocol.ErrValidation)
	wantError(t, h.Do("agent.reboot", nil), protocol.ErrUnknownKind)
}

func wantError(t *testing.T, sigs []control.Signal, code string) {
	t.Helper()
	if len(sigs) != 1 || sigs[0].Kind != control.SignalError {
		t.Fatalf("signals = %+v, want one error", sigs)
	}
	if got := sigs[0].Payload["code"]; got != code {
		t.Fatalf("error code = %v, want %s", got, code)
	}
}
