package runner

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"freightcraft.ai/internal/sim/world"
)

// routes builds the HTTP surface: health and metrics probes, the websocket
// endpoint, and loopback-only admin routes.
func (s *Supervisor) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/v1/ws", s.ws.Handler())
	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(loopbackOnly)
		r.Get("/state", s.handleAdminState)
	})
	return r
}

// handleHealthz reports liveness of both executors. One alive and one not is
// a degraded report, served as 503 so probes notice.
func (s *Supervisor) handleHealthz(rw http.ResponseWriter, r *http.Request) {
	window := 10 * s.world.Config().TickInterval()
	if window < time.Second {
		window = time.Second
	}
	worldAlive := s.world.Alive(window)
	hubAlive := s.ws.HubAlive()

	status := "ok"
	code := http.StatusOK
	if !worldAlive || !hubAlive {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(map[string]any{
		"status":      status,
		"world_alive": worldAlive,
		"hub_alive":   hubAlive,
		"tick":        s.world.CurrentTick(),
		"sim_running": s.world.Running(),
		"sessions":    s.ws.SessionCount(),
	})
}

// handleMetrics writes the world metrics snapshot in the minimal Prometheus
// exposition format.
func (s *Supervisor) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	m := s.world.Metrics()
	id := s.world.Config().ID

	fmt.Fprintf(rw, "# HELP freight_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE freight_world_tick gauge\n")
	fmt.Fprintf(rw, "freight_world_tick{world=%q} %d\n", id, m.Tick)

	running := 0
	if m.Running {
		running = 1
	}
	fmt.Fprintf(rw, "# HELP freight_world_sim_running Whether the simulation is advancing.\n")
	fmt.Fprintf(rw, "# TYPE freight_world_sim_running gauge\n")
	fmt.Fprintf(rw, "freight_world_sim_running{world=%q} %d\n", id, running)

	fmt.Fprintf(rw, "# HELP freight_world_agents Registered agents.\n")
	fmt.Fprintf(rw, "# TYPE freight_world_agents gauge\n")
	fmt.Fprintf(rw, "freight_world_agents{world=%q} %d\n", id, m.Agents)

	fmt.Fprintf(rw, "# HELP freight_world_packages Packages by status.\n")
	fmt.Fprintf(rw, "# TYPE freight_world_packages gauge\n")
	statuses := make([]string, 0, len(m.PackagesByStatus))
	for st := range m.PackagesByStatus {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Fprintf(rw, "freight_world_packages{world=%q,status=%q} %d\n", id, st, m.PackagesByStatus[st])
	}

	fmt.Fprintf(rw, "# HELP freight_world_broker_balance Broker balance in ducats.\n")
	fmt.Fprintf(rw, "# TYPE freight_world_broker_balance gauge\n")
	fmt.Fprintf(rw, "freight_world_broker_balance{world=%q} %.3f\n", id, m.BrokerBalance)

	fmt.Fprintf(rw, "# HELP freight_world_queue_depth Control queue backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE freight_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "freight_world_queue_depth{world=%q,queue=%q} %d\n", id, "actions", m.ActionQueueLen)
	fmt.Fprintf(rw, "freight_world_queue_depth{world=%q,queue=%q} %d\n", id, "signals", m.SignalQueueLen)

	fmt.Fprintf(rw, "# HELP freight_world_queue_dropped_total Items dropped at the queue boundary.\n")
	fmt.Fprintf(rw, "# TYPE freight_world_queue_dropped_total counter\n")
	fmt.Fprintf(rw, "freight_world_queue_dropped_total{world=%q,queue=%q} %d\n", id, "actions", m.ActionsDropped)
	fmt.Fprintf(rw, "freight_world_queue_dropped_total{world=%q,queue=%q} %d\n", id, "signals", m.SignalsDropped)

	fmt.Fprintf(rw, "# HELP freight_world_agent_faults_total Agents faulted during perceive or decide.\n")
	fmt.Fprintf(rw, "# TYPE freight_world_agent_faults_total counter\n")
	fmt.Fprintf(rw, "freight_world_agent_faults_total{world=%q} %d\n", id, m.Faults)

	fmt.Fprintf(rw, "# HELP freight_world_pass_ms Last loop pass duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE freight_world_pass_ms gauge\n")
	fmt.Fprintf(rw, "freight_world_pass_ms{world=%q} %.3f\n", id, m.PassDuration.Seconds()*1000)

	fmt.Fprintf(rw, "# HELP freight_ws_sessions Connected websocket sessions.\n")
	fmt.Fprintf(rw, "# TYPE freight_ws_sessions gauge\n")
	fmt.Fprintf(rw, "freight_ws_sessions{world=%q} %d\n", id, s.ws.SessionCount())

	fmt.Fprintf(rw, "# HELP freight_ws_dropped_frames_total Outbound frames evicted by slow sessions.\n")
	fmt.Fprintf(rw, "# TYPE freight_ws_dropped_frames_total counter\n")
	fmt.Fprintf(rw, "freight_ws_dropped_frames_total{world=%q} %d\n", id, s.ws.DroppedFrames())
}

func (s *Supervisor) handleAdminState(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	resp := struct {
		WorldID  string             `json:"world_id"`
		Tick     uint64             `json:"tick"`
		Sessions int                `json:"sessions"`
		Metrics  world.WorldMetrics `json:"metrics"`
	}{
		WorldID:  s.world.Config().ID,
		Tick:     s.world.CurrentTick(),
		Sessions: s.ws.SessionCount(),
		Metrics:  s.world.Metrics(),
	}
	_ = json.NewEncoder(rw).Encode(resp)
}

// loopbackOnly rejects requests that did not originate on this machine.
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
