// Package tuning loads the operational knobs of a server process from
// tuning.yaml. Scenario content (map, fleet, schedules) lives in
// internal/sim/scenario; tuning covers everything an operator may turn
// without changing the simulated world.
package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"freightcraft.ai/internal/protocol"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Queues    Queues    `yaml:"queues"`
	Transport Transport `yaml:"transport"`

	ShutdownTimeoutMs int `yaml:"shutdown_timeout_ms"`
}

// Queues bounds the control-plane channels around the tick loop.
type Queues struct {
	ActionCap      int `yaml:"action_cap"`
	ActionsPerTick int `yaml:"actions_per_tick"`
	SignalCap      int `yaml:"signal_cap"`
}

// Transport bounds per-session websocket behavior.
type Transport struct {
	SessionOutCap      int `yaml:"session_out_cap"`
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
	WriteTimeoutMs     int `yaml:"write_timeout_ms"`
}

// Defaults is the configuration the server runs with when tuning.yaml is
// absent.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    protocol.Version,
		TickRateHz:         10,
		SnapshotEveryTicks: 600,
		Queues: Queues{
			ActionCap:      256,
			ActionsPerTick: 64,
			SignalCap:      1024,
		},
		Transport: Transport{
			SessionOutCap:      64,
			HandshakeTimeoutMs: 5000,
			WriteTimeoutMs:     10000,
		},
		ShutdownTimeoutMs: 5000,
	}
}

// Load reads path over the defaults: keys missing from the file keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.ProtocolVersion != protocol.Version {
		return fmt.Errorf("protocol_version %q, this build speaks %q", t.ProtocolVersion, protocol.Version)
	}
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz %d out of range (1..1000)", t.TickRateHz)
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks %d negative", t.SnapshotEveryTicks)
	}
	if t.Queues.ActionCap <= 0 || t.Queues.SignalCap <= 0 || t.Queues.ActionsPerTick <= 0 {
		return fmt.Errorf("queue capacities must be positive: %+v", t.Queues)
	}
	if t.Transport.SessionOutCap <= 0 {
		return fmt.Errorf("session_out_cap %d must be positive", t.Transport.SessionOutCap)
	}
	if t.ShutdownTimeoutMs <= 0 {
		return fmt.Errorf("shutdown_timeout_ms %d must be positive", t.ShutdownTimeoutMs)
	}
	return nil
}

func (t Tuning) ShutdownTimeout() time.Duration {
	return time.Duration(t.ShutdownTimeoutMs) * time.Millisecond
}

func (t Tuning) HandshakeTimeout() time.Duration {
	return time.Duration(t.Transport.HandshakeTimeoutMs) * time.Millisecond
}

func (t Tuning) WriteTimeout() time.Duration {
	return time.Duration(t.Transport.WriteTimeoutMs) * time.Millisecond
}
