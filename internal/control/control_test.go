package control

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"freightcraft.ai/internal/protocol"
	"freightcraft.ai/internal/sim/agent"
	"freightcraft.ai/internal/sim/model"
)

type fakeWorld struct {
	tick     uint64
	agents   map[model.AgentID]agent.Snapshot
	spawnErr error
	spawned  []model.PackageSpec
}

func (w *fakeWorld) CurrentTick() uint64 { return w.tick }

func (w *fakeWorld) DescribeAgent(id model.AgentID) (agent.Snapshot, bool) {
	s, ok := w.agents[id]
	return s, ok
}

func (w *fakeWorld) AgentIDs(kind string) []model.AgentID {
	var ids []model.AgentID
	for id, s := range w.agents {
		if kind == "" || s.Kind == kind {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *fakeWorld) SpawnPackage(spec model.PackageSpec) (*model.Package, error) {
	if w.spawnErr != nil {
		return nil, w.spawnErr
	}
	w.spawned = append(w.spawned, spec)
	return &model.Package{
		ID:               "pkg-000001",
		OriginSite:       spec.OriginSite,
		DestinationSite:  spec.DestinationSite,
		Size:             spec.Size,
		Value:            spec.Value,
		PickupDeadline:   w.tick + spec.PickupAfter,
		DeliveryDeadline: w.tick + spec.DeliveryAfter,
		Status:           model.StatusWaitingPickup,
	}, nil
}

func testContext(w *fakeWorld) HandlerContext {
	return HandlerContext{
		World:   w,
		Sim:     &SimState{},
		Actions: NewActionQueue(16),
		Signals: NewSignalQueue(16),
	}
}

func errCode(t *testing.T, sig Signal) string {
	t.Helper()
	if sig.Kind != SignalError {
		t.Fatalf("expected error signal, got %q", sig.Kind)
	}
	code, _ := sig.Payload["code"].(string)
	if !protocol.IsKnownCode(code) {
		t.Fatalf("unknown error code %q", code)
	}
	return code
}

func TestActionQueueBoundedPush(t *testing.T) {
	q := NewActionQueue(2)
	if !q.Push(Action{Kind: "a"}) || !q.Push(Action{Kind: "b"}) {
		t.Fatalf("pushes under capacity refused")
	}
	if q.Push(Action{Kind: "c"}) {
		t.Fatalf("push over capacity accepted")
	}
	if q.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", q.Dropped())
	}
	got := q.Drain(0)
	if len(got) != 2 || got[0].Kind != "a" || got[1].Kind != "b" {
		t.Fatalf("drain = %+v", got)
	}
	if len(q.Drain(0)) != 0 {
		t.Fatalf("second drain not empty")
	}
}

func TestActionQueueDrainBound(t *testing.T) {
	q := NewActionQueue(8)
	for i := 0; i < 5; i++ {
		q.Push(Action{Kind: fmt.Sprintf("a%d", i)})
	}
	if got := q.Drain(3); len(got) != 3 {
		t.Fatalf("bounded drain = %d items, want 3", len(got))
	}
	if got := q.Drain(3); len(got) != 2 {
		t.Fatalf("remainder drain = %d items, want 2", len(got))
	}
}

func TestSignalQueueDropsOldest(t *testing.T) {
	q := NewSignalQueue(2)
	q.Push(Signal{Kind: "s1"})
	q.Push(Signal{Kind: "s2"})
	q.Push(Signal{Kind: "s3"})
	if q.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", q.Dropped())
	}
	first, ok := q.TryNext()
	if !ok || first.Kind != "s2" {
		t.Fatalf("head = %+v, want s2", first)
	}
	second, ok := q.TryNext()
	if !ok || second.Kind != "s3" {
		t.Fatalf("next = %+v, want s3", second)
	}
}

func TestSignalQueueNextCancellable(t *testing.T) {
	q := NewSignalQueue(2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Next(ctx)
		done <- ok
	}()
	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("Next reported a signal after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Next did not return after cancel")
	}
}

func TestDispatchUnknownKind(t *testing.T) {
	w := &fakeWorld{tick: 7}
	hc := testContext(w)
	sigs := NewRegistry().Dispatch(hc, Action{Kind: "agent.obliterate", CorrelationID: "c-1"})
	if len(sigs) != 1 {
		t.Fatalf("signals = %+v", sigs)
	}
	if code := errCode(t, sigs[0]); code != protocol.ErrUnknownKind {
		t.Fatalf("code = %s", code)
	}
	if sigs[0].CorrelationID != "c-1" || sigs[0].Tick != 7 {
		t.Fatalf("correlation/tick not carried: %+v", sigs[0])
	}
}

func TestAgentDescribe(t *testing.T) {
	w := &fakeWorld{tick: 3, agents: map[model.AgentID]agent.Snapshot{
		"truck-001": {ID: "truck-001", Kind: model.KindTruck, Tags: map[string]string{"node": "a"}},
	}}
	hc := testContext(w)
	r := NewRegistry()

	sigs := r.Dispatch(hc, Action{
		Kind:          ActionAgentDescribe,
		CorrelationID: "c-2",
		SessionID:     "s-1",
		Payload:       map[string]any{"agent_id": "truck-001"},
	})
	if len(sigs) != 1 || sigs[0].Kind != SignalAgentDescribed {
		t.Fatalf("signals = %+v", sigs)
	}
	if sigs[0].SessionID != "s-1" {
		t.Fatalf("describe reply not routed to the issuing session")
	}
	if got := sigs[0].Payload["agent_id"]; got != "truck-001" {
		t.Fatalf("agent_id = %v", got)
	}
	tags, _ := sigs[0].Payload["tags"].(map[string]any)
	if tags["node"] != "a" {
		t.Fatalf("tags = %v", tags)
	}

	sigs = r.Dispatch(hc, Action{Kind: ActionAgentDescribe, Payload: map[string]any{"agent_id": "truck-099"}})
	if code := errCode(t, sigs[0]); code != protocol.ErrNotFound {
		t.Fatalf("missing agent code = %s", code)
	}

	sigs = r.Dispatch(hc, Action{Kind: ActionAgentDescribe, Payload: map[string]any{}})
	if code := errCode(t, sigs[0]); code != protocol.ErrValidation {
		t.Fatalf("missing id code = %s", code)
	}
}

func TestAgentList(t *testing.T) {
	w := &fakeWorld{tick: 3, agents: map[model.AgentID]agent.Snapshot{
		"truck-002": {ID: "truck-002", Kind: model.KindTruck},
		"truck-001": {ID: "truck-001", Kind: model.KindTruck},
		"site-001":  {ID: "site-001", Kind: model.KindSite},
	}}
	hc := testContext(w)
	r := NewRegistry()

	sigs := r.Dispatch(hc, Action{Kind: ActionAgentList})
	if sigs[0].Kind != SignalAgentListed {
		t.Fatalf("signals = %+v", sigs)
	}
	if count := sigs[0].Payload["count"]; count != 3 {
		t.Fatalf("count = %v", count)
	}

	sigs = r.Dispatch(hc, Action{Kind: ActionAgentList, Payload: map[string]any{"filter": model.KindTruck}})
	ids, _ := sigs[0].Payload["ids"].([]any)
	if len(ids) != 2 || ids[0] != "truck-001" || ids[1] != "truck-002" {
		t.Fatalf("filtered ids = %v", ids)
	}

	sigs = r.Dispatch(hc, Action{Kind: ActionAgentList, Payload: map[string]any{"filter": 7}})
	if code := errCode(t, sigs[0]); code != protocol.ErrValidation {
		t.Fatalf("non-string filter code = %s", code)
	}
}

func TestLifecycleGating(t *testing.T) {
	w := &fakeWorld{tick: 1}
	hc := testContext(w)
	r := NewRegistry()

	sigs := r.Dispatch(hc, Action{Kind: ActionSimStart, CorrelationID: "c-5"})
	if sigs[0].Kind != SignalSimStarted {
		t.Fatalf("start signals = %+v", sigs)
	}
	if sigs[0].SessionID != "" {
		t.Fatalf("lifecycle notice should broadcast, got session %q", sigs[0].SessionID)
	}
	if !hc.Sim.Running() {
		t.Fatalf("sim not running after start")
	}

	sigs = r.Dispatch(hc, Action{Kind: ActionSimStart})
	if code := errCode(t, sigs[0]); code != protocol.ErrLifecycle {
		t.Fatalf("double start code = %s", code)
	}

	sigs = r.Dispatch(hc, Action{Kind: ActionSimStop})
	if sigs[0].Kind != SignalSimStopped {
		t.Fatalf("stop signals = %+v", sigs)
	}
	sigs = r.Dispatch(hc, Action{Kind: ActionSimStop})
	if code := errCode(t, sigs[0]); code != protocol.ErrLifecycle {
		t.Fatalf("double stop code = %s", code)
	}
}

func TestPackageSpawn(t *testing.T) {
	w := &fakeWorld{tick: 100}
	hc := testContext(w)
	r := NewRegistry()
	payload := map[string]any{
		"origin_site_id":      "site-001",
		"destination_site_id": "site-002",
		"size":                2,
		"value":               120.5,
		"pickup_after":        50,
		"delivery_after":      200,
	}

	// Stopped sim refuses domain actions.
	sigs := r.Dispatch(hc, Action{Kind: ActionPackageSpawn, Payload: payload})
	if code := errCode(t, sigs[0]); code != protocol.ErrLifecycle {
		t.Fatalf("stopped spawn code = %s", code)
	}

	hc.Sim.Start()
	sigs = r.Dispatch(hc, Action{Kind: ActionPackageSpawn, CorrelationID: "c-9", Payload: payload})
	if sigs[0].Kind != SignalPackageSpawned {
		t.Fatalf("spawn signals = %+v", sigs)
	}
	if got := sigs[0].Payload["pickup_deadline"]; got != uint64(150) {
		t.Fatalf("pickup_deadline = %v, want 150", got)
	}
	if len(w.spawned) != 1 || w.spawned[0].OriginSite != "site-001" {
		t.Fatalf("world spawn calls = %+v", w.spawned)
	}

	// World-side validation failures surface as signals too.
	w.spawnErr = errors.New("origin and destination must differ")
	sigs = r.Dispatch(hc, Action{Kind: ActionPackageSpawn, Payload: payload})
	if code := errCode(t, sigs[0]); code != protocol.ErrValidation {
		t.Fatalf("spawn error code = %s", code)
	}

	// Malformed payload never reaches the world.
	w.spawnErr = nil
	before := len(w.spawned)
	sigs = r.Dispatch(hc, Action{Kind: ActionPackageSpawn, Payload: map[string]any{"size": "big"}})
	if code := errCode(t, sigs[0]); code != protocol.ErrValidation {
		t.Fatalf("malformed payload code = %s", code)
	}
	if len(w.spawned) != before {
		t.Fatalf("malformed payload reached the world")
	}
}
