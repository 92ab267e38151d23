// Package agent defines the contract every simulated actor satisfies and the
// mailbox/tag state shared by all of them. Behaviors (truck, site, broker)
// embed *State and add a Decide method; the world loop is the only goroutine
// that ever calls into either.
package agent

import (
	"sort"

	"freightcraft.ai/internal/sim/model"
)

// Agent is one simulated actor. Decide is required and runs once per tick; it
// consumes the inbox, may mutate the agent's own state and tags, and appends
// outgoing messages to the outbox. Cross-agent effects happen only through
// messages routed by the world at the end of the tick.
type Agent interface {
	ID() model.AgentID
	Kind() string
	State() *State
	Decide(tick uint64, view WorldView) error
}

// Perceiver is the optional pre-decide hook. Perceive must treat the view as
// read-only except for resources the world explicitly hands to the caller.
type Perceiver interface {
	Perceive(tick uint64, view WorldView)
}

// Snapshot is the serialized form of an agent's generic envelope. Behaviors
// surface their interesting internals through tags, so a snapshot diff captures
// movement, cargo, and balance changes without per-kind serializers.
type Snapshot struct {
	ID        model.AgentID
	Kind      string
	Tags      map[string]string
	InboxLen  int
	OutboxLen int
}

// Equal compares by value, tags included.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.ID != o.ID || s.Kind != o.Kind || s.InboxLen != o.InboxLen || s.OutboxLen != o.OutboxLen {
		return false
	}
	if len(s.Tags) != len(o.Tags) {
		return false
	}
	for k, v := range s.Tags {
		if ov, ok := o.Tags[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// TagKeys returns the snapshot's tag keys sorted, for deterministic encoding.
func (s Snapshot) TagKeys() []string {
	keys := make([]string, 0, len(s.Tags))
	for k := range s.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// State is the envelope embedded by every behavior: identity, mailboxes, tags,
// and the last snapshot handed out by SerializeDiff. The id is fixed at
// construction.
type State struct {
	id   model.AgentID
	kind string

	inbox  []model.Msg
	outbox []model.Msg
	tags   map[string]string

	last *Snapshot
}

func NewState(id model.AgentID, kind string) *State {
	return &State{id: id, kind: kind, tags: map[string]string{}}
}

func (s *State) ID() model.AgentID { return s.id }
func (s *State) Kind() string      { return s.kind }
func (s *State) State() *State     { return s }

// Deliver appends a routed message to the inbox. World routing only.
func (s *State) Deliver(m model.Msg) { s.inbox = append(s.inbox, m) }

// TakeInbox hands the behavior its pending messages and clears the inbox.
func (s *State) TakeInbox() []model.Msg {
	msgs := s.inbox
	s.inbox = nil
	return msgs
}

// Send appends a message to the outbox for routing at the end of the tick.
func (s *State) Send(m model.Msg) { s.outbox = append(s.outbox, m) }

// TakeOutbox drains the outbox. World routing only.
func (s *State) TakeOutbox() []model.Msg {
	msgs := s.outbox
	s.outbox = nil
	return msgs
}

// DropOutbox discards pending outgoing messages. The world uses it when a
// decide fault must not leak a half-finished exchange.
func (s *State) DropOutbox() { s.outbox = nil }

// SnapshotMailboxes copies both mailboxes without consuming them. Snapshot
// export only.
func (s *State) SnapshotMailboxes() (inbox, outbox []model.Msg) {
	inbox = append(inbox, s.inbox...)
	outbox = append(outbox, s.outbox...)
	return inbox, outbox
}

// RestoreMailboxes replaces both mailboxes. Snapshot restore only.
func (s *State) RestoreMailboxes(inbox, outbox []model.Msg) {
	s.inbox = append([]model.Msg(nil), inbox...)
	s.outbox = append([]model.Msg(nil), outbox...)
}

func (s *State) InboxLen() int  { return len(s.inbox) }
func (s *State) OutboxLen() int { return len(s.outbox) }

func (s *State) SetTag(key, value string) { s.tags[key] = value }

func (s *State) Tag(key string) (string, bool) {
	v, ok := s.tags[key]
	return v, ok
}

// Tags returns a copy; callers never alias the live map.
func (s *State) Tags() map[string]string {
	out := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		out[k] = v
	}
	return out
}

func (s *State) snapshot() Snapshot {
	return Snapshot{
		ID:        s.id,
		Kind:      s.kind,
		Tags:      s.Tags(),
		InboxLen:  len(s.inbox),
		OutboxLen: len(s.outbox),
	}
}

// SerializeFull returns the complete current snapshot, ignoring the cache.
func (s *State) SerializeFull() Snapshot { return s.snapshot() }

// SerializeDiff returns the current snapshot when it differs from the cached
// last one, nil when nothing tracked has changed. Its only side effect is
// updating the cache.
func (s *State) SerializeDiff() *Snapshot {
	cur := s.snapshot()
	if s.last != nil && s.last.Equal(cur) {
		return nil
	}
	s.last = &cur
	return &cur
}
