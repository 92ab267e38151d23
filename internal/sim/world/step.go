package world

import (
	"fmt"

	"freightcraft.ai/internal/control"
	"freightcraft.ai/internal/sim/agent"
	"freightcraft.ai/internal/sim/model"
)

// step advances the simulation by one tick: perceive, decide, route, publish
// diffs, offer a snapshot, then increment the tick counter. Caller has
// already dispatched control actions for this pass.
func (w *World) step(nowTick uint64) {
	// Perceive runs for every observer before any decide, so all agents see
	// the same pre-tick world. An agent that faults here also loses its
	// decide for the tick.
	faulted := map[model.AgentID]bool{}
	for _, id := range w.order {
		if p, ok := w.agents[id].(agent.Perceiver); ok {
			if err := w.safePerceive(nowTick, id, p); err != nil {
				w.faultAgent(nowTick, id, "perceive", err)
				faulted[id] = true
			}
		}
	}

	for _, id := range w.order {
		if faulted[id] {
			continue
		}
		if err := w.safeDecide(nowTick, w.agents[id]); err != nil {
			w.faultAgent(nowTick, id, "decide", err)
		}
	}

	w.routeMessages()
	w.publishDiffs(nowTick)

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 &&
		nowTick != 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportImage():
		default:
			w.logger.Printf("world %s: snapshot writer busy, skipping tick %d", w.cfg.ID, nowTick)
		}
	}

	w.tick.Add(1)
}

// safePerceive converts a perceive panic into an error so one agent cannot
// take the loop down.
func (w *World) safePerceive(nowTick uint64, id model.AgentID, p agent.Perceiver) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	p.Perceive(nowTick, w)
	return nil
}

// safeDecide runs one agent's decide with the same panic fence.
func (w *World) safeDecide(nowTick uint64, a agent.Agent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Decide(nowTick, w)
}

// faultAgent contains a misbehaving agent: its pending outbox is discarded so
// a half-finished exchange never leaks, the fault is logged and counted, and
// observers get an agent.faulted signal. The agent stays registered and runs
// again next tick.
func (w *World) faultAgent(nowTick uint64, id model.AgentID, phase string, err error) {
	w.agents[id].State().DropOutbox()
	w.faults.Add(1)
	w.logger.Printf("world %s: agent %s faulted in %s at tick %d: %v", w.cfg.ID, id, phase, nowTick, err)
	w.signals.Push(control.Signal{
		Kind: control.SignalAgentFaulted,
		Tick: nowTick,
		Payload: map[string]any{
			"agent_id": string(id),
			"phase":    phase,
			"reason":   err.Error(),
		},
	})
}

// routeMessages moves every outbox into the recipient inboxes. Routing runs
// after all decides, so a message sent at tick N is first readable at N+1;
// per-sender order is preserved and cross-sender order follows registration
// order.
func (w *World) routeMessages() {
	for _, id := range w.order {
		for _, m := range w.agents[id].State().TakeOutbox() {
			rcpt, ok := w.agents[m.Recipient]
			if !ok {
				w.logger.Printf("world %s: dropping %s from %s to unknown agent %s", w.cfg.ID, m.Type, m.Sender, m.Recipient)
				continue
			}
			rcpt.State().Deliver(m)
		}
	}
}

// publishDiffs emits one tick.completed signal per tick carrying the
// serialized diff of every agent whose observable state changed.
func (w *World) publishDiffs(nowTick uint64) {
	var changed []any
	for _, id := range w.order {
		if diff := w.agents[id].State().SerializeDiff(); diff != nil {
			changed = append(changed, control.SnapshotPayload(*diff))
		}
	}
	w.signals.Push(control.Signal{
		Kind: control.SignalTickCompleted,
		Tick: nowTick,
		Payload: map[string]any{
			"tick":    nowTick,
			"agents":  len(w.order),
			"changed": changed,
		},
	})
}
