// Package worldtest drives a fully assembled world through its exported
// surface only: actions in through the queue, signals and snapshots out,
// StepOnce for time. Tests here cover end-to-end properties that single
// package tests cannot see.
package worldtest

import (
	"fmt"
	"testing"

	"freightcraft.ai/internal/control"
	"freightcraft.ai/internal/sim/graph"
	"freightcraft.ai/internal/sim/model"
	"freightcraft.ai/internal/sim/scenario"
	"freightcraft.ai/internal/sim/world"
)

// Harness wraps one world for black-box scenario tests.
type Harness struct {
	T *testing.T
	W *world.World

	sigs       []control.Signal
	lastDigest string
	nextRef    int
}

// NewHarness builds a world on g and registers the scenario's cast.
func NewHarness(t *testing.T, cfg world.WorldConfig, g *graph.Graph, sc scenario.Scenario) *Harness {
	t.Helper()
	w, err := world.New(cfg, g, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	t.Cleanup(w.Close)
	if err := sc.Validate(); err != nil {
		t.Fatalf("scenario: %v", err)
	}
	if err := scenario.Build(w, sc, nil); err != nil {
		t.Fatalf("scenario.Build: %v", err)
	}
	return &Harness{T: t, W: w}
}

// NewHarnessWithWorld wraps an already-constructed world, for restore tests
// that must import an image before anything else happens.
func NewHarnessWithWorld(t *testing.T, w *world.World) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	return &Harness{T: t, W: w}
}

// Step advances n passes, collecting every emitted signal.
func (h *Harness) Step(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		_, digest := h.W.StepOnce()
		h.lastDigest = digest
		h.drain()
	}
}

// StepUntil advances up to max passes until cond holds.
func (h *Harness) StepUntil(max int, what string, cond func() bool) {
	h.T.Helper()
	for i := 0; i < max; i++ {
		if cond() {
			return
		}
		h.Step(1)
	}
	if cond() {
		return
	}
	h.T.Fatalf("%s: not reached within %d passes", what, max)
}

// Do enqueues one action, runs one pass, and returns the signals carrying
// the action's correlation id.
func (h *Harness) Do(kind string, payload map[string]any) []control.Signal {
	h.T.Helper()
	ref := fmt.Sprintf("ref-%04d", h.nextRef)
	h.nextRef++
	ok := h.W.Actions().Push(control.Action{Kind: kind, CorrelationID: ref, Payload: payload})
	if !ok {
		h.T.Fatalf("action queue rejected %s", kind)
	}
	h.Step(1)
	var out []control.Signal
	for _, s := range h.sigs {
		if s.CorrelationID == ref {
			out = append(out, s)
		}
	}
	return out
}

// MustDo is Do, failing the test on an error signal or a missing reply.
func (h *Harness) MustDo(kind string, payload map[string]any) []control.Signal {
	h.T.Helper()
	sigs := h.Do(kind, payload)
	if len(sigs) == 0 {
		h.T.Fatalf("%s produced no reply", kind)
	}
	for _, s := range sigs {
		if s.Kind == control.SignalError {
			h.T.Fatalf("%s failed: %v", kind, s.Payload)
		}
	}
	return sigs
}

// Start flips the simulation to running through the control plane.
func (h *Harness) Start() {
	h.T.Helper()
	h.MustDo(control.ActionSimStart, nil)
}

// Spawn issues a package.spawn and returns the minted package id.
func (h *Harness) Spawn(origin, destination string, size int, value float64, pickupAfter, deliveryAfter uint64) model.PackageID {
	h.T.Helper()
	sigs := h.MustDo(control.ActionPackageSpawn, map[string]any{
		"origin_site_id":      origin,
		"destination_site_id": destination,
		"size":                size,
		"value":               value,
		"pickup_after":        pickupAfter,
		"delivery_after":      deliveryAfter,
	})
	id, ok := sigs[0].Payload["package_id"].(string)
	if !ok || id == "" {
		h.T.Fatalf("package.spawned payload = %v", sigs[0].Payload)
	}
	return model.PackageID(id)
}

// SignalsOf filters the collected signals by kind.
func (h *Harness) SignalsOf(kind string) []control.Signal {
	var out []control.Signal
	for _, s := range h.sigs {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// ClearSignals drops everything collected so far.
func (h *Harness) ClearSignals() { h.sigs = nil }

// Digest is the post-pass state digest of the most recent Step.
func (h *Harness) Digest() string { return h.lastDigest }

// Tag reads one published tag without consuming a pass.
func (h *Harness) Tag(id, key string) string {
	h.T.Helper()
	snap, ok := h.W.DescribeAgent(model.AgentID(id))
	if !ok {
		h.T.Fatalf("agent %s not found", id)
	}
	return snap.Tags[key]
}

// PackageStatus reads a package's status from the registry between passes.
func (h *Harness) PackageStatus(id model.PackageID) model.PackageStatus {
	h.T.Helper()
	p, ok := h.W.Package(id)
	if !ok {
		h.T.Fatalf("package %s not found", id)
	}
	return p.Status
}

func (h *Harness) drain() {
	for {
		s, ok := h.W.Signals().TryNext()
		if !ok {
			return
		}
		h.sigs = append(h.sigs, s)
	}
}
