package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"freightcraft.ai/internal/control"
	"freightcraft.ai/internal/protocol"
)

// session is one connected client. The hub and the reader goroutine enqueue
// frames; the connection's writer goroutine drains them.
type session struct {
	id        string
	name      string
	subscribe bool
	out       chan []byte
}

// enqueue delivers drop-oldest: when the buffer is full the oldest frame is
// evicted, so a slow client sees a gap in its signal stream instead of
// stalling the hub.
func (s *session) enqueue(b []byte, dropped *atomic.Uint64) {
	for {
		select {
		case s.out <- b:
			return
		default:
		}
		select {
		case <-s.out:
			dropped.Add(1)
		default:
		}
	}
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.log.Printf("session %s disconnected", id)
}

// SessionCount reports connected sessions for health and metrics.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// DroppedFrames reports outbound frames evicted by slow sessions.
func (s *Server) DroppedFrames() uint64 { return s.dropped.Load() }

// HubAlive reports whether the hub goroutine is running. Health probes use
// it to tell a live transport from one that returned.
func (s *Server) HubAlive() bool { return s.hubUp.Load() }

// Run is the hub: the signal queue's only consumer. Directed signals go to
// the session named in them, broadcasts to every subscribed session. Returns
// when ctx ends.
func (s *Server) Run(ctx context.Context) {
	s.hubUp.Store(true)
	defer s.hubUp.Store(false)
	s.log.Printf("signal hub running")
	for {
		sig, ok := s.world.Signals().Next(ctx)
		if !ok {
			return
		}
		s.fanOut(sig)
	}
}

func (s *Server) fanOut(sig control.Signal) {
	frame := protocol.SignalMsg{
		Type:            protocol.TypeSignal,
		ProtocolVersion: protocol.Version,
		Kind:            sig.Kind,
		CorrelationID:   sig.CorrelationID,
		Tick:            sig.Tick,
		Payload:         sig.Payload,
	}
	b, err := json.Marshal(frame)
	if err != nil {
		s.log.Printf("signal %s not serializable: %v", sig.Kind, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sig.SessionID != "" {
		// A reply outlives its session only as a dropped frame.
		if sess, ok := s.sessions[sig.SessionID]; ok {
			sess.enqueue(b, &s.dropped)
		}
		return
	}
	for _, sess := range s.sessions {
		if sess.subscribe {
			sess.enqueue(b, &s.dropped)
		}
	}
}
