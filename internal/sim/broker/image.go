package broker

import (
	"fmt"
	"log"
	"sort"

	"freightcraft.ai/internal/persistence/snapshot"
	"freightcraft.ai/internal/sim/model"
)

// ExportImage captures the broker's full negotiation and ledger state.
func (b *Broker) ExportImage() snapshot.BrokerV1 {
	v := snapshot.BrokerV1{
		ID:       string(b.ID()),
		Balance:  b.balance,
		Strategy: b.strategy.Name(),
	}
	if c, ok := b.strategy.(cursorCarrier); ok {
		v.StrategyCursor = c.cursor()
	}
	for _, pid := range b.queue {
		v.Queue = append(v.Queue, string(pid))
	}
	for pid := range b.known {
		v.Known = append(v.Known, string(pid))
	}
	sort.Strings(v.Known)
	for pid, truck := range b.assigned {
		v.Assigned = append(v.Assigned, snapshot.AssignedPairV1{Package: string(pid), Truck: string(truck)})
	}
	sort.Slice(v.Assigned, func(i, j int) bool { return v.Assigned[i].Package < v.Assigned[j].Package })
	for pid, mask := range b.processed {
		v.Processed = append(v.Processed, snapshot.ProcessedV1{Package: string(pid), Mask: mask})
	}
	sort.Slice(v.Processed, func(i, j int) bool { return v.Processed[i].Package < v.Processed[j].Package })
	if b.active != nil {
		act := &snapshot.NegotiationV1{
			Package:    string(b.active.PackageID),
			Candidate:  string(b.active.Candidate),
			ProposedAt: b.active.ProposedAt,
			Status:     string(b.active.Status),
		}
		for _, id := range b.active.remaining {
			act.Remaining = append(act.Remaining, string(id))
		}
		v.Active = act
	}
	return v
}

// RestoreBroker rebuilds a broker from a snapshot, including the in-flight
// negotiation if one was open.
func RestoreBroker(v snapshot.BrokerV1, logger *log.Logger) (*Broker, error) {
	strategy, err := FromName(v.Strategy)
	if err != nil {
		return nil, fmt.Errorf("restore broker: %w", err)
	}
	b := New(strategy, v.Balance, logger)
	if c, ok := strategy.(cursorCarrier); ok {
		c.setCursor(v.StrategyCursor)
	}
	for _, pid := range v.Queue {
		b.queue = append(b.queue, model.PackageID(pid))
	}
	for _, pid := range v.Known {
		b.known[model.PackageID(pid)] = true
	}
	for _, pair := range v.Assigned {
		b.assigned[model.PackageID(pair.Package)] = model.AgentID(pair.Truck)
	}
	for _, proc := range v.Processed {
		b.processed[model.PackageID(proc.Package)] = proc.Mask
	}
	if v.Active != nil {
		n := &Negotiation{
			PackageID:  model.PackageID(v.Active.Package),
			Candidate:  model.AgentID(v.Active.Candidate),
			ProposedAt: v.Active.ProposedAt,
			Status:     NegotiationStatus(v.Active.Status),
		}
		for _, id := range v.Active.Remaining {
			n.remaining = append(n.remaining, model.AgentID(id))
		}
		b.active = n
	}
	b.publishTags()
	return b, nil
}
