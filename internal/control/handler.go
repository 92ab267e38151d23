package control

import (
	"fmt"
	"sync/atomic"

	"freightcraft.ai/internal/protocol"
	"freightcraft.ai/internal/sim/agent"
	"freightcraft.ai/internal/sim/model"
)

// WorldAPI is the slice of the world that handlers may touch. Handlers run
// on the tick goroutine, so calls through this interface stay inside the
// single-writer discipline without extra locking.
type WorldAPI interface {
	CurrentTick() uint64
	DescribeAgent(id model.AgentID) (agent.Snapshot, bool)
	AgentIDs(kind string) []model.AgentID
	SpawnPackage(spec model.PackageSpec) (*model.Package, error)
}

// SimState is the running/stopped lifecycle gate. Readable from any
// goroutine; flipped only by the lifecycle handlers.
type SimState struct {
	running atomic.Bool
}

func (s *SimState) Running() bool { return s.running.Load() }

// Start flips stopped to running, reporting whether anything changed.
func (s *SimState) Start() bool { return s.running.CompareAndSwap(false, true) }

// Stop flips running to stopped, reporting whether anything changed.
func (s *SimState) Stop() bool { return s.running.CompareAndSwap(true, false) }

// HandlerContext bundles everything a handler may use. No ambient state.
type HandlerContext struct {
	World   WorldAPI
	Sim     *SimState
	Actions *ActionQueue
	Signals *SignalQueue
}

// Handler turns one action into zero or more signals.
type Handler func(hc HandlerContext, act Action) []Signal

// Registry maps action kinds to handlers. Use NewRegistry: the zero value
// has no built-ins.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	r := &Registry{handlers: map[string]Handler{}}
	r.Register(ActionAgentDescribe, handleAgentDescribe)
	r.Register(ActionAgentList, handleAgentList)
	r.Register(ActionSimStart, handleSimStart)
	r.Register(ActionSimStop, handleSimStop)
	r.Register(ActionPackageSpawn, handlePackageSpawn)
	r.Register(ActionWorldSync, handleWorldSync)
	return r
}

func (r *Registry) Register(kind string, h Handler) { r.handlers[kind] = h }

// Dispatch runs the handler for act. Unknown kinds come back as an error
// signal, the same as any other handler failure.
func (r *Registry) Dispatch(hc HandlerContext, act Action) []Signal {
	h, ok := r.handlers[act.Kind]
	if !ok {
		return []Signal{ErrorSignal(act, hc.World.CurrentTick(), protocol.ErrUnknownKind,
			fmt.Sprintf("unknown action kind %q", act.Kind))}
	}
	return h(hc, act)
}

func handleAgentDescribe(hc HandlerContext, act Action) []Signal {
	tick := hc.World.CurrentTick()
	id, ok := model.PayloadString(act.Payload, "agent_id")
	if !ok || id == "" {
		return []Signal{ErrorSignal(act, tick, protocol.ErrValidation,
			"agent.describe needs a string agent_id")}
	}
	snap, ok := hc.World.DescribeAgent(model.AgentID(id))
	if !ok {
		return []Signal{ErrorSignal(act, tick, protocol.ErrNotFound,
			fmt.Sprintf("agent %s not found", id))}
	}
	return []Signal{{
		Kind:          SignalAgentDescribed,
		CorrelationID: act.CorrelationID,
		SessionID:     act.SessionID,
		Tick:          tick,
		Payload:       SnapshotPayload(snap),
	}}
}

// SnapshotPayload flattens an agent snapshot into a wire payload. The world
// reuses it when publishing per-tick agent diffs.
func SnapshotPayload(s agent.Snapshot) map[string]any {
	tags := make(map[string]any, len(s.Tags))
	for k, v := range s.Tags {
		tags[k] = v
	}
	return map[string]any{
		"agent_id":   string(s.ID),
		"kind":       s.Kind,
		"tags":       tags,
		"inbox_len":  s.InboxLen,
		"outbox_len": s.OutboxLen,
	}
}

// handleWorldSync serves the initial full-state sync a fresh subscriber needs
// before it can apply per-tick diffs: every agent's complete snapshot, the
// current tick, and the lifecycle state. The transport enqueues one for each
// subscribing session right after its handshake.
func handleWorldSync(hc HandlerContext, act Action) []Signal {
	tick := hc.World.CurrentTick()
	ids := hc.World.AgentIDs("")
	agents := make([]any, 0, len(ids))
	for _, id := range ids {
		if snap, ok := hc.World.DescribeAgent(id); ok {
			agents = append(agents, SnapshotPayload(snap))
		}
	}
	return []Signal{{
		Kind:          SignalWorldSynced,
		CorrelationID: act.CorrelationID,
		SessionID:     act.SessionID,
		Tick:          tick,
		Payload: map[string]any{
			"agents":      agents,
			"count":       len(agents),
			"sim_running": hc.Sim.Running(),
		},
	}}
}

func handleAgentList(hc HandlerContext, act Action) []Signal {
	tick := hc.World.CurrentTick()
	filter := ""
	if raw, present := act.Payload["filter"]; present {
		s, ok := raw.(string)
		if !ok {
			return []Signal{ErrorSignal(act, tick, protocol.ErrValidation,
				fmt.Sprintf("agent.list filter must be a string, got %T", raw))}
		}
		filter = s
	}
	ids := hc.World.AgentIDs(filter)
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	payload := map[string]any{"ids": out, "count": len(out)}
	if filter != "" {
		payload["filter"] = filter
	}
	return []Signal{{
		Kind:          SignalAgentListed,
		CorrelationID: act.CorrelationID,
		SessionID:     act.SessionID,
		Tick:          tick,
		Payload:       payload,
	}}
}

// Lifecycle notices broadcast (empty SessionID): every subscriber cares when
// the simulation starts or stops. The correlation id still lets the issuing
// client match its own request.
func handleSimStart(hc HandlerContext, act Action) []Signal {
	tick := hc.World.CurrentTick()
	if !hc.Sim.Start() {
		return []Signal{ErrorSignal(act, tick, protocol.ErrLifecycle,
			"simulation already running")}
	}
	return []Signal{{Kind: SignalSimStarted, CorrelationID: act.CorrelationID, Tick: tick}}
}

func handleSimStop(hc HandlerContext, act Action) []Signal {
	tick := hc.World.CurrentTick()
	if !hc.Sim.Stop() {
		return []Signal{ErrorSignal(act, tick, protocol.ErrLifecycle,
			"simulation not running")}
	}
	return []Signal{{Kind: SignalSimStopped, CorrelationID: act.CorrelationID, Tick: tick}}
}

func handlePackageSpawn(hc HandlerContext, act Action) []Signal {
	tick := hc.World.CurrentTick()
	if !hc.Sim.Running() {
		return []Signal{ErrorSignal(act, tick, protocol.ErrLifecycle,
			"package.spawn requires a running simulation")}
	}
	origin, ok := model.PayloadString(act.Payload, "origin_site_id")
	if !ok {
		return []Signal{ErrorSignal(act, tick, protocol.ErrValidation,
			"package.spawn needs a string origin_site_id")}
	}
	dest, ok := model.PayloadString(act.Payload, "destination_site_id")
	if !ok {
		return []Signal{ErrorSignal(act, tick, protocol.ErrValidation,
			"package.spawn needs a string destination_site_id")}
	}
	size, ok := model.PayloadUint(act.Payload, "size")
	if !ok {
		return []Signal{ErrorSignal(act, tick, protocol.ErrValidation,
			"package.spawn needs a positive integer size")}
	}
	value, ok := model.PayloadFloat(act.Payload, "value")
	if !ok {
		return []Signal{ErrorSignal(act, tick, protocol.ErrValidation,
			"package.spawn needs a numeric value")}
	}
	pickupAfter, ok := model.PayloadUint(act.Payload, "pickup_after")
	if !ok {
		return []Signal{ErrorSignal(act, tick, protocol.ErrValidation,
			"package.spawn needs an integer pickup_after")}
	}
	deliveryAfter, ok := model.PayloadUint(act.Payload, "delivery_after")
	if !ok {
		return []Signal{ErrorSignal(act, tick, protocol.ErrValidation,
			"package.spawn needs an integer delivery_after")}
	}

	p, err := hc.World.SpawnPackage(model.PackageSpec{
		OriginSite:      model.AgentID(origin),
		DestinationSite: model.AgentID(dest),
		Size:            int(size),
		Value:           value,
		PickupAfter:     pickupAfter,
		DeliveryAfter:   deliveryAfter,
	})
	if err != nil {
		return []Signal{ErrorSignal(act, tick, protocol.ErrValidation, err.Error())}
	}
	return []Signal{{
		Kind:          SignalPackageSpawned,
		CorrelationID: act.CorrelationID,
		Tick:          tick,
		Payload: map[string]any{
			"package_id":          string(p.ID),
			"origin_site_id":      string(p.OriginSite),
			"destination_site_id": string(p.DestinationSite),
			"size":                p.Size,
			"value":               p.Value,
			"pickup_deadline":     p.PickupDeadline,
			"delivery_deadline":   p.DeliveryDeadline,
		},
	}}
}
