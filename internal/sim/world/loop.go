package world

import (
	"context"
	"time"

	"freightcraft.ai/internal/control"
)

// Run drives the world at the configured tick rate until the context is
// canceled or Stop is called. It must be the only goroutine entering pass.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.TickInterval())
	defer ticker.Stop()

	w.logger.Printf("world %s running at %d Hz", w.cfg.ID, w.cfg.TickRateHz)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.pass()
		}
	}
}

// Stop makes Run return after its current pass. Safe to call repeatedly and
// from any goroutine.
func (w *World) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// StepOnce executes one full pass synchronously and returns the tick number
// the pass ran as plus the post-pass state digest. Tests and deterministic
// replays drive the world through it instead of Run.
func (w *World) StepOnce() (tick uint64, digest string) {
	tick = w.tick.Load()
	w.pass()
	return tick, w.StateDigest(w.tick.Load())
}

// pass is one loop iteration: drain and dispatch queued control actions,
// then advance the simulation if it is running. Actions are handled on every
// pass so sim.start works while the simulation is stopped; the tick counter
// and all deadlines freeze until it runs again.
func (w *World) pass() {
	w.touchBeat()
	start := time.Now()

	if acts := w.actions.Drain(w.cfg.ActionsPerTick); len(acts) > 0 {
		hc := control.HandlerContext{World: w, Sim: w.sim, Actions: w.actions, Signals: w.signals}
		for _, act := range acts {
			for _, sig := range w.registry.Dispatch(hc, act) {
				w.signals.Push(sig)
			}
		}
	}

	if w.sim.Running() {
		w.step(w.tick.Load())
	}
	w.storeMetrics(time.Since(start))
}
