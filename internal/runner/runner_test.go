package runner

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"freightcraft.ai/internal/persistence/snapshot"
	"freightcraft.ai/internal/protocol"
	"freightcraft.ai/internal/sim/graph"
	"freightcraft.ai/internal/sim/world"
	"freightcraft.ai/internal/transport/ws"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	nodes := []graph.Node{
		{ID: "a", X: 0, Y: 0, Building: &graph.Building{Kind: "depot", ParkingCapacity: 2}},
		{ID: "b", X: 10, Y: 0},
		{ID: "c", X: 20, Y: 0, Building: &graph.Building{Kind: "warehouse", ParkingCapacity: 1}},
	}
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("add node %s: %v", n.ID, err)
		}
	}
	edges := []graph.Edge{
		{From: "a", To: "b", Length: 10},
		{From: "b", To: "a", Length: 10},
		{From: "b", To: "c", Length: 10},
		{From: "c", To: "b", Length: 10},
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("add edge %s->%s: %v", e.From, e.To, err)
		}
	}
	return g
}

func newSupervisor(t *testing.T, wcfg world.WorldConfig, cfg Config) *Supervisor {
	t.Helper()
	w, err := world.New(wcfg, testGraph(t), nil)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	t.Cleanup(w.Close)
	cfg.ListenAddr = "127.0.0.1:0"
	sup := New(w, ws.NewServer(w, ws.Config{}, nil), cfg, nil)
	t.Cleanup(func() { sup.Shutdown("test cleanup") })
	return sup
}

func snapshotTick(path string) uint64 {
	base := strings.TrimSuffix(filepath.Base(path), ".snap.zst")
	tick, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0
	}
	return tick
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s: not observed within %s", what, d)
}

func TestServesHealthAndMetrics(t *testing.T) {
	sup := newSupervisor(t, world.WorldConfig{ID: "run-1", TickRateHz: 100}, Config{})
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	base := "http://" + sup.Addr()

	waitFor(t, 3*time.Second, "healthy probe", func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{
		`freight_world_tick{world="run-1"}`,
		`freight_world_agents{world="run-1"} 0`,
		`freight_ws_sessions{world="run-1"} 0`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestShutdownIdempotentAndBounded(t *testing.T) {
	sup := newSupervisor(t, world.WorldConfig{ID: "run-1", TickRateHz: 100}, Config{ShutdownTimeout: 5 * time.Second})
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	start := time.Now()
	sup.Shutdown("first")
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("first shutdown took %s", elapsed)
	}

	start = time.Now()
	sup.Shutdown("second")
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("repeat shutdown took %s, want immediate", elapsed)
	}

	select {
	case <-sup.Done():
	default:
		t.Fatalf("Done not closed after shutdown")
	}
}

func TestShutdownClosesSessions(t *testing.T) {
	sup := newSupervisor(t, world.WorldConfig{ID: "run-1", TickRateHz: 100}, Config{ShutdownTimeout: 5 * time.Second})
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+sup.Addr()+"/v1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "probe"}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("send hello: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read welcome: %v", err)
	}

	start := time.Now()
	sup.Shutdown("closing")
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("shutdown with live session took %s", elapsed)
	}

	// The client observes the forced close instead of hanging.
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection still open after shutdown")
	}
}

func TestHealthDegradedWithoutHub(t *testing.T) {
	sup := newSupervisor(t, world.WorldConfig{ID: "run-1", TickRateHz: 100}, Config{})

	// Never started: the world beat is fresh but the hub goroutine is not up.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	sup.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"degraded"`) || !strings.Contains(body, `"hub_alive":false`) {
		t.Fatalf("health body = %s", body)
	}
}

func TestAdminRoutesAreLoopbackOnly(t *testing.T) {
	sup := newSupervisor(t, world.WorldConfig{ID: "run-1", TickRateHz: 100}, Config{})
	routes := sup.routes()

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote admin request: status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback admin request: status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"world_id":"run-1"`) {
		t.Fatalf("admin state body = %s", rec.Body.String())
	}
}

func TestSnapshotWriter(t *testing.T) {
	dir := t.TempDir()
	sup := newSupervisor(t,
		world.WorldConfig{ID: "run-2", TickRateHz: 100, SnapshotEveryTicks: 2, StartRunning: true},
		Config{SnapshotDir: dir})
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	var files []string
	waitFor(t, 5*time.Second, "snapshot files", func() bool {
		files, _ = filepath.Glob(filepath.Join(dir, "*.snap.zst"))
		return len(files) >= 2
	})

	// The writer is sequential, so the lowest-tick file is complete.
	sort.Slice(files, func(i, j int) bool {
		return snapshotTick(files[i]) < snapshotTick(files[j])
	})
	snap, err := snapshot.ReadSnapshot(files[0])
	if err != nil {
		t.Fatalf("read snapshot %s: %v", files[0], err)
	}
	if snap.Header.WorldID != "run-2" || snap.Header.Tick == 0 {
		t.Fatalf("snapshot header = %+v", snap.Header)
	}
	if !snap.Running {
		t.Fatalf("snapshot should capture a running simulation")
	}
}
