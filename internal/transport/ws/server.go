// Package ws serves the control-plane websocket. Each connection completes a
// HELLO/WELCOME handshake, then submits ACTION frames that are validated,
// handed to the action queue, and acknowledged in the same breath. Signals
// travel the other way through a hub goroutine that fans the world's signal
// queue out to connected sessions.
package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"freightcraft.ai/internal/control"
	"freightcraft.ai/internal/protocol"
	"freightcraft.ai/internal/sim/world"
)

type Config struct {
	SessionOutCap    int           // buffered frames per session before drop-oldest kicks in
	HandshakeTimeout time.Duration // how long a fresh connection gets to say HELLO
	WriteTimeout     time.Duration // deadline for each outbound frame
}

func (c *Config) applyDefaults() {
	if c.SessionOutCap <= 0 {
		c.SessionOutCap = 64
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

type Server struct {
	world *world.World
	cfg   Config
	log   *log.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session

	dropped atomic.Uint64
	hubUp   atomic.Bool
}

func NewServer(w *world.World, cfg Config, logger *log.Logger) *Server {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		world: w,
		cfg:   cfg,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: make(map[string]*session),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.addSession(sess)
		defer s.removeSession(sess.id)

		// Subscribers get one full-state sync so the per-tick diffs that
		// follow have a base to apply against.
		if sess.subscribe {
			if !s.world.Actions().Push(control.Action{Kind: control.ActionWorldSync, SessionID: sess.id}) {
				s.log.Printf("session %s: sync request dropped, action queue full", sess.id)
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. The hub and the reader both enqueue frames into
		// sess.out; after the handshake this is the only goroutine that
		// touches the connection's write side.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleFrame(sess, msg)
		}
	}
}

// handleFrame validates one inbound frame and answers with an ACK. The ACK
// only promises queue admission; the action's outcome arrives later as a
// SIGNAL carrying the same correlation id.
func (s *Server) handleFrame(sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	if base.Type != protocol.TypeAction {
		return
	}
	var act protocol.ActionMsg
	if err := json.Unmarshal(msg, &act); err != nil {
		return
	}
	if act.ProtocolVersion != protocol.Version {
		s.reject(sess, act, protocol.ErrProtoBadRequest, "unsupported protocol_version")
		return
	}
	if act.Kind == "" {
		s.reject(sess, act, protocol.ErrProtoBadRequest, "action needs a kind")
		return
	}
	ok := s.world.Actions().Push(control.Action{
		Kind:          act.Kind,
		CorrelationID: act.CorrelationID,
		SessionID:     sess.id,
		Payload:       act.Payload,
	})
	if !ok {
		s.reject(sess, act, protocol.ErrQueueFull, "action queue full, retry next tick")
		return
	}
	s.ack(sess, protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          act.CorrelationID,
		Accepted:        true,
		ServerTick:      s.world.CurrentTick(),
	})
}

func (s *Server) reject(sess *session, act protocol.ActionMsg, code, message string) {
	s.ack(sess, protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          act.CorrelationID,
		Accepted:        false,
		Code:            code,
		Message:         message,
		ServerTick:      s.world.CurrentTick(),
	})
}

func (s *Server) ack(sess *session, ack protocol.AckMsg) {
	b, err := json.Marshal(ack)
	if err != nil {
		return
	}
	sess.enqueue(b, &s.dropped)
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.closePolicy(conn, "expected HELLO")
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		s.closePolicy(conn, "bad protocol_version")
		return nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	sess := &session{
		id:        uuid.NewString(),
		name:      hello.ClientName,
		subscribe: hello.Subscribe,
		out:       make(chan []byte, s.cfg.SessionOutCap),
	}

	g := s.world.Graph()
	cfg := s.world.Config()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Tick:            s.world.CurrentTick(),
		SimRunning:      s.world.Running(),
		WorldParams: protocol.WorldParams{
			TickRateHz: cfg.TickRateHz,
			NodeCount:  g.NodeCount(),
			EdgeCount:  g.EdgeCount(),
			AgentCount: s.world.AgentCount(),
			MapName:    cfg.MapName,
		},
	}
	if err := s.writeJSON(conn, welcome); err != nil {
		return nil
	}

	s.log.Printf("session %s connected (%s)", sess.id, hello.ClientName)
	return sess
}

func (s *Server) closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
