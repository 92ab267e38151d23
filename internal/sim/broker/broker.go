// Package broker implements the singleton negotiation agent: a FIFO package
// queue, at most one in-flight proposal at any time, and the company ledger.
// One-tick message latency means a truck can never answer a proposal in the
// tick it was sent, which keeps the single-negotiation rule race-free without
// any locking.
package broker

import (
	"fmt"
	"io"
	"log"

	"freightcraft.ai/internal/sim/agent"
	"freightcraft.ai/internal/sim/model"
)

// NegotiationStatus tracks the lifecycle of the one in-flight proposal.
type NegotiationStatus string

const (
	NegotiationProposed NegotiationStatus = "PROPOSED"
	NegotiationAccepted NegotiationStatus = "ACCEPTED"
	NegotiationRejected NegotiationStatus = "REJECTED"
)

// Negotiation is the single in-flight proposal. The candidate list is frozen
// when the negotiation opens; rejects walk through it without recomputation.
type Negotiation struct {
	PackageID  model.PackageID
	Candidate  model.AgentID
	ProposedAt uint64
	Status     NegotiationStatus

	remaining []model.AgentID
}

// processed-message guard bits, one per confirmation phase.
const (
	processedPickup uint8 = 1 << iota
	processedDelivery
)

// proposalTimeoutTicks bounds how long an unanswered proposal may hold the
// negotiation slot. A healthy truck answers within two ticks; one that
// faulted mid-reply would otherwise block assignment forever.
const proposalTimeoutTicks = 10

// agentState aliases agent.State so embedding it yields a field name that
// does not shadow the promoted State() method required by agent.Agent.
type agentState = agent.State

type Broker struct {
	*agentState

	balance   float64
	queue     []model.PackageID
	known     map[model.PackageID]bool
	active    *Negotiation
	assigned  map[model.PackageID]model.AgentID
	processed map[model.PackageID]uint8

	strategy Strategy
	logger   *log.Logger

	// Overdue assignments observed during Perceive, settled in Decide.
	overdue []model.PackageID
}

func New(strategy Strategy, startingBalance float64, logger *log.Logger) *Broker {
	if strategy == nil {
		strategy = NewNearestAvailable()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	b := &Broker{
		agentState: agent.NewState(model.BrokerID, model.KindBroker),
		balance:    startingBalance,
		known:      map[model.PackageID]bool{},
		assigned:   map[model.PackageID]model.AgentID{},
		processed:  map[model.PackageID]uint8{},
		strategy:   strategy,
		logger:     logger,
	}
	b.publishTags()
	return b
}

// Perceive enqueues newly visible WAITING_PICKUP packages and notes assigned
// packages whose pickup deadline has passed. known is the sole de-duplication
// guard and only ever grows, so a package can be enqueued at most once across
// the simulation's lifetime.
func (b *Broker) Perceive(tick uint64, view agent.WorldView) {
	for _, p := range view.PackagesWhere(model.StatusWaitingPickup) {
		if b.known[p.ID] {
			continue
		}
		b.known[p.ID] = true
		b.queue = append(b.queue, p.ID)
	}

	b.overdue = b.overdue[:0]
	for pid := range b.assigned {
		p, ok := view.Package(pid)
		if !ok {
			continue
		}
		if p.Status == model.StatusAssigned && tick > p.PickupDeadline {
			b.overdue = append(b.overdue, pid)
		}
	}
}

func (b *Broker) Decide(tick uint64, view agent.WorldView) error {
	b.settleOverdue(tick, view)

	for _, m := range b.TakeInbox() {
		switch m.Type {
		case model.MsgAccept:
			b.onAccept(tick, view, m)
		case model.MsgReject:
			b.onReject(tick, view, m)
		case model.MsgPickupConfirmed:
			b.onPickupConfirmed(tick, view, m)
		case model.MsgDeliveryConfirmed:
			b.onDeliveryConfirmed(tick, view, m)
		default:
			b.logger.Printf("tick=%d drop msg type=%s from=%s", tick, m.Type, m.Sender)
		}
	}

	if b.active != nil && b.active.Status == NegotiationProposed && tick-b.active.ProposedAt > proposalTimeoutTicks {
		b.expireProposal(tick, view)
	}

	if b.active == nil {
		b.openNegotiation(tick, view)
	}

	b.publishTags()
	return nil
}

// expireProposal treats a silent candidate like a reject: the next frozen
// candidate gets the proposal, or the package goes back to the queue tail.
func (b *Broker) expireProposal(tick uint64, view agent.WorldView) {
	silent := b.active.Candidate
	if len(b.active.remaining) > 0 {
		next := b.active.remaining[0]
		b.active.remaining = b.active.remaining[1:]
		b.active.Candidate = next
		b.active.ProposedAt = tick
		b.sendProposal(view, b.active.PackageID, next)
		b.logger.Printf("tick=%d no answer from %s for %s, re-proposing to %s", tick, silent, b.active.PackageID, next)
		return
	}
	b.queue = append(b.queue, b.active.PackageID)
	b.logger.Printf("tick=%d no answer from %s for %s, candidates exhausted, re-queued", tick, silent, b.active.PackageID)
	b.active = nil
}

// settleOverdue applies the expiry rule to assignments noted by Perceive:
// half the package value is forfeited, the package expires, and the
// assignment is dropped.
func (b *Broker) settleOverdue(tick uint64, view agent.WorldView) {
	for _, pid := range b.overdue {
		p, ok := view.Package(pid)
		if !ok || p.Status != model.StatusAssigned {
			continue
		}
		if err := p.Transition(model.StatusExpired); err != nil {
			b.logger.Printf("tick=%d expire %s: %v", tick, pid, err)
			continue
		}
		fine := 0.5 * p.Value
		b.balance -= fine
		delete(b.assigned, pid)
		b.logger.Printf("tick=%d package %s expired unpicked, fine %.2f, balance %.2f", tick, pid, fine, b.balance)
	}
	b.overdue = b.overdue[:0]
}

func (b *Broker) onAccept(tick uint64, view agent.WorldView, m model.Msg) {
	pid, _ := model.PayloadString(m.Payload, "package_id")
	if b.active == nil || b.active.PackageID != model.PackageID(pid) || b.active.Candidate != m.Sender {
		b.logger.Printf("tick=%d stale accept from=%s package=%s discarded", tick, m.Sender, pid)
		return
	}

	p, ok := view.Package(b.active.PackageID)
	if !ok {
		b.logger.Printf("tick=%d accept for vanished package %s discarded", tick, pid)
		b.active = nil
		return
	}
	if err := p.Transition(model.StatusAssigned); err != nil {
		// The package left WAITING_PICKUP while the proposal was in flight
		// (typically expiry). The negotiation dies without an assignment.
		b.logger.Printf("tick=%d accept from=%s for %s: %v", tick, m.Sender, pid, err)
		b.active = nil
		return
	}

	b.active.Status = NegotiationAccepted
	b.assigned[p.ID] = m.Sender
	b.Send(model.NewMsg(model.MsgAssignmentConfirmed, b.ID(), m.Sender, map[string]any{
		"package_id":          string(p.ID),
		"origin_site_id":      string(p.OriginSite),
		"destination_site_id": string(p.DestinationSite),
	}))
	b.logger.Printf("tick=%d package %s assigned to %s", tick, p.ID, m.Sender)
	b.active = nil
}

func (b *Broker) onReject(tick uint64, view agent.WorldView, m model.Msg) {
	pid, _ := model.PayloadString(m.Payload, "package_id")
	if b.active == nil || b.active.PackageID != model.PackageID(pid) || b.active.Candidate != m.Sender {
		b.logger.Printf("tick=%d stale reject from=%s package=%s discarded", tick, m.Sender, pid)
		return
	}
	reason, _ := model.PayloadString(m.Payload, "rejection_reason")

	if len(b.active.remaining) > 0 {
		next := b.active.remaining[0]
		b.active.remaining = b.active.remaining[1:]
		b.active.Candidate = next
		b.active.ProposedAt = tick
		b.active.Status = NegotiationProposed
		b.sendProposal(view, b.active.PackageID, next)
		b.logger.Printf("tick=%d %s rejected %s (%s), re-proposing to %s", tick, m.Sender, pid, reason, next)
		return
	}

	// Candidates exhausted: back to the tail of the queue for a later round.
	b.queue = append(b.queue, b.active.PackageID)
	b.logger.Printf("tick=%d %s rejected %s (%s), candidates exhausted, re-queued", tick, m.Sender, pid, reason)
	b.active = nil
}

func (b *Broker) onPickupConfirmed(tick uint64, view agent.WorldView, m model.Msg) {
	pid, ok := model.PayloadString(m.Payload, "package_id")
	if !ok {
		b.logger.Printf("tick=%d pickup_confirmed without package_id from=%s", tick, m.Sender)
		return
	}
	id := model.PackageID(pid)
	if b.processed[id]&processedPickup != 0 {
		b.logger.Printf("tick=%d duplicate pickup_confirmed for %s discarded", tick, id)
		return
	}
	b.processed[id] |= processedPickup
	b.logger.Printf("tick=%d pickup confirmed for %s by %s", tick, id, m.Sender)
}

func (b *Broker) onDeliveryConfirmed(tick uint64, view agent.WorldView, m model.Msg) {
	pid, ok := model.PayloadString(m.Payload, "package_id")
	if !ok {
		b.logger.Printf("tick=%d delivery_confirmed without package_id from=%s", tick, m.Sender)
		return
	}
	id := model.PackageID(pid)
	if b.processed[id]&processedDelivery != 0 {
		b.logger.Printf("tick=%d duplicate delivery_confirmed for %s discarded", tick, id)
		return
	}
	b.processed[id] |= processedDelivery

	p, found := view.Package(id)
	if !found {
		b.logger.Printf("tick=%d delivery_confirmed for unknown package %s", tick, id)
		return
	}

	deliveredAt, _ := model.PayloadUint(m.Payload, "delivery_tick")
	onTime, _ := model.PayloadBool(m.Payload, "on_time")
	credit := p.Value
	if !onTime {
		credit = lateCredit(p.Value, deliveredAt, p.DeliveryDeadline)
	}
	b.balance += credit
	delete(b.assigned, id)
	b.logger.Printf("tick=%d package %s delivered by %s (on_time=%v), credit %.2f, balance %.2f",
		tick, id, m.Sender, onTime, credit, b.balance)
}

// lateCredit discounts the package value by 0.1% per late tick. The factor is
// floored at -1.0, so one botched delivery can at worst cost the package's
// full value.
func lateCredit(value float64, deliveredAt, deadline uint64) float64 {
	if deliveredAt <= deadline {
		return value
	}
	factor := 1.0 - 0.001*float64(deliveredAt-deadline)
	if factor < -1.0 {
		factor = -1.0
	}
	return value * factor
}

// openNegotiation pops queue heads until it finds a live package, then freezes
// a ranked candidate list and proposes to its first entry.
func (b *Broker) openNegotiation(tick uint64, view agent.WorldView) {
	for len(b.queue) > 0 {
		pid := b.queue[0]
		b.queue = b.queue[1:]

		p, ok := view.Package(pid)
		if !ok || p.Status.Terminal() {
			continue
		}
		if p.Status != model.StatusWaitingPickup {
			continue
		}
		if tick > p.PickupDeadline {
			if err := p.Transition(model.StatusExpired); err == nil {
				b.logger.Printf("tick=%d package %s expired before assignment", tick, pid)
			}
			continue
		}

		ranked := b.strategy.Rank(view, p, Candidates(view))
		if len(ranked) == 0 {
			b.queue = append(b.queue, pid)
			b.logger.Printf("tick=%d no candidate for %s, re-queued", tick, pid)
			return
		}

		b.active = &Negotiation{
			PackageID:  pid,
			Candidate:  ranked[0],
			ProposedAt: tick,
			Status:     NegotiationProposed,
			remaining:  ranked[1:],
		}
		b.sendProposal(view, pid, ranked[0])
		b.logger.Printf("tick=%d proposing %s to %s (%d fallback candidates)", tick, pid, ranked[0], len(ranked)-1)
		return
	}
}

func (b *Broker) sendProposal(view agent.WorldView, pid model.PackageID, truck model.AgentID) {
	p, ok := view.Package(pid)
	if !ok {
		return
	}
	b.Send(model.NewMsg(model.MsgProposal, b.ID(), truck, map[string]any{
		"package_id":          string(p.ID),
		"origin_site_id":      string(p.OriginSite),
		"destination_site_id": string(p.DestinationSite),
		"size":                p.Size,
		"pickup_deadline":     p.PickupDeadline,
		"delivery_deadline":   p.DeliveryDeadline,
	}))
}

func (b *Broker) publishTags() {
	b.SetTag(model.TagBalance, fmt.Sprintf("%.2f", b.balance))
	b.SetTag("queue_len", fmt.Sprintf("%d", len(b.queue)))
	b.SetTag("assigned", fmt.Sprintf("%d", len(b.assigned)))
	if b.active != nil {
		b.SetTag("negotiating", string(b.active.PackageID))
	} else {
		b.SetTag("negotiating", "")
	}
}

// Balance is the company ledger in ducats.
func (b *Broker) Balance() float64 { return b.balance }

// Active returns a copy of the in-flight negotiation, if any.
func (b *Broker) Active() (Negotiation, bool) {
	if b.active == nil {
		return Negotiation{}, false
	}
	return *b.active, true
}

// QueueLen is the number of queued package ids, terminal entries included
// until they are lazily skipped.
func (b *Broker) QueueLen() int { return len(b.queue) }

// AssignedTo reports which truck holds the assignment for pid.
func (b *Broker) AssignedTo(pid model.PackageID) (model.AgentID, bool) {
	id, ok := b.assigned[pid]
	return id, ok
}

// Knows reports whether pid ever entered the queue.
func (b *Broker) Knows(pid model.PackageID) bool { return b.known[pid] }
