package world

import "time"

// WorldMetrics is a point-in-time copy of the loop's operational counters.
// The loop stores a fresh value after every pass; readers on other
// goroutines load it without touching live state.
type WorldMetrics struct {
	Tick             uint64
	Running          bool
	Agents           int
	PackagesTotal    int
	PackagesByStatus map[string]int
	BrokerBalance    float64
	ActionQueueLen   int
	ActionsDropped   uint64
	SignalQueueLen   int
	SignalsDropped   uint64
	Faults           uint64
	PassDuration     time.Duration
}

// Metrics returns the snapshot stored by the most recent pass.
func (w *World) Metrics() WorldMetrics {
	if m, ok := w.metrics.Load().(WorldMetrics); ok {
		return m
	}
	return WorldMetrics{}
}

func (w *World) storeMetrics(passDur time.Duration) {
	byStatus := make(map[string]int, 5)
	for _, p := range w.packages {
		byStatus[string(p.Status)]++
	}
	m := WorldMetrics{
		Tick:             w.tick.Load(),
		Running:          w.sim.Running(),
		Agents:           len(w.agents),
		PackagesTotal:    len(w.packages),
		PackagesByStatus: byStatus,
		ActionQueueLen:   w.actions.Len(),
		ActionsDropped:   w.actions.Dropped(),
		SignalQueueLen:   w.signals.Len(),
		SignalsDropped:   w.signals.Dropped(),
		Faults:           w.faults.Load(),
		PassDuration:     passDur,
	}
	if w.broker != nil {
		m.BrokerBalance = w.broker.Balance()
	}
	w.metrics.Store(m)
}
