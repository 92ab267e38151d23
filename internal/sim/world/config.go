package world

import "time"

// WorldConfig carries the knobs the runner wires in at boot. Zero values
// are filled in by applyDefaults so tests can construct worlds with a
// partial literal.
type WorldConfig struct {
	// ID names this world in digests, snapshots, and logs.
	ID string
	// MapName records which map the graph was loaded from. A snapshot taken
	// on one map refuses to restore onto another.
	MapName string

	// TickRateHz is the target number of simulation passes per second.
	TickRateHz int

	// ActionQueueCap bounds the inbound control queue. Writers get an
	// immediate rejection when it is full.
	ActionQueueCap int
	// ActionsPerTick caps how many queued actions a single pass will
	// dispatch, so a burst of commands cannot stall the tick.
	ActionsPerTick int
	// SignalQueueCap bounds the outbound signal queue. The oldest signal is
	// dropped when it overflows.
	SignalQueueCap int

	// SnapshotEveryTicks is the persistence cadence. Zero disables
	// periodic snapshots.
	SnapshotEveryTicks int

	// StartRunning boots the world with the simulation already ticking
	// instead of waiting for a sim.start command.
	StartRunning bool
}

const (
	defaultTickRateHz         = 10
	defaultActionQueueCap     = 256
	defaultActionsPerTick     = 64
	defaultSignalQueueCap     = 1024
	defaultSnapshotEveryTicks = 600
)

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "freight-1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = defaultTickRateHz
	}
	if c.ActionQueueCap <= 0 {
		c.ActionQueueCap = defaultActionQueueCap
	}
	if c.ActionsPerTick <= 0 {
		c.ActionsPerTick = defaultActionsPerTick
	}
	if c.SignalQueueCap <= 0 {
		c.SignalQueueCap = defaultSignalQueueCap
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
}

// TickInterval converts the configured rate into the loop's ticker period.
func (c WorldConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRateHz)
}
