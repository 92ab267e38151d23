// Package control is the boundary between the tick goroutine and everything
// outside it. Actions flow in through a bounded queue drained once per tick;
// signals flow out through a drop-oldest queue consumed by the transport hub.
// Nothing crosses the boundary as a panic or an error return: handler
// failures become error signals carrying the action's correlation id.
package control

import "freightcraft.ai/internal/protocol"

// Action kinds.
const (
	ActionAgentDescribe = "agent.describe"
	ActionAgentList     = "agent.list"
	ActionSimStart      = "sim.start"
	ActionSimStop       = "sim.stop"
	ActionPackageSpawn  = "package.spawn"
	ActionWorldSync     = "world.sync"
)

// Signal kinds.
const (
	SignalAgentDescribed = "agent.described"
	SignalAgentListed    = "agent.listed"
	SignalWorldSynced    = "world.synced"
	SignalSimStarted     = "sim.started"
	SignalSimStopped     = "sim.stopped"
	SignalPackageSpawned = "package.spawned"
	SignalTickCompleted  = "tick.completed"
	SignalAgentFaulted   = "agent.faulted"
	SignalError          = "error"
)

// Action is one external command. Immutable once enqueued.
type Action struct {
	Kind          string
	CorrelationID string
	SessionID     string
	Payload       map[string]any
}

// Signal is one world-originated event. SessionID routes a reply back to the
// session that issued the matching action; empty means broadcast.
type Signal struct {
	Kind          string
	CorrelationID string
	SessionID     string
	Tick          uint64
	Payload       map[string]any
}

// ErrorSignal wraps a handler failure as data for the queue boundary.
func ErrorSignal(act Action, tick uint64, code, message string) Signal {
	return Signal{
		Kind:          SignalError,
		CorrelationID: act.CorrelationID,
		SessionID:     act.SessionID,
		Tick:          tick,
		Payload: map[string]any{
			"error":   protocol.GenericError,
			"code":    code,
			"message": message,
		},
	}
}
