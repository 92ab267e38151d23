// Command server boots one freight world: scenario + map in, websocket
// control plane and HTTP probes out.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"freightcraft.ai/internal/persistence/snapshot"
	"freightcraft.ai/internal/runner"
	"freightcraft.ai/internal/sim/graph"
	"freightcraft.ai/internal/sim/scenario"
	"freightcraft.ai/internal/sim/tuning"
	"freightcraft.ai/internal/sim/world"
	"freightcraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		worldID      = flag.String("world", "freight-1", "world id")
		scenarioPath = flag.String("scenario", "./configs/scenario.yaml", "scenario file")
		tuningPath   = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir      = flag.String("data", "./data", "runtime data directory")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", false, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	sc, err := scenario.Load(*scenarioPath)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}
	mapPath := sc.MapPath()
	g, err := graph.LoadMap(mapPath)
	if err != nil {
		logger.Fatalf("load map %s: %v", mapPath, err)
	}
	logger.Printf("map %s: %d nodes, %d edges", filepath.Base(mapPath), g.NodeCount(), g.EdgeCount())

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapDir := filepath.Join(worldDir, "snapshots")
	_ = os.MkdirAll(snapDir, 0o755)

	w, err := world.New(world.WorldConfig{
		ID:                 *worldID,
		MapName:            filepath.Base(mapPath),
		TickRateHz:         tune.TickRateHz,
		ActionQueueCap:     tune.Queues.ActionCap,
		ActionsPerTick:     tune.Queues.ActionsPerTick,
		SignalQueueCap:     tune.Queues.SignalCap,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		StartRunning:       sc.Running,
	}, g, logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	// Resume from a snapshot when one is given (or found); otherwise build
	// the scenario's cast into the fresh world.
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(snapDir)
	}
	if snapshotToLoad != "" {
		img, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if img.Header.WorldID != "" && img.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, img.Header.WorldID)
		}
		if err := w.RestoreImage(img); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	} else {
		if err := scenario.Build(w, sc, logger); err != nil {
			logger.Fatalf("build scenario: %v", err)
		}
		logger.Printf("scenario %s: %d trucks, %d sites", sc.Name, len(sc.Trucks), len(sc.Sites))
	}

	wsSrv := ws.NewServer(w, ws.Config{
		SessionOutCap:    tune.Transport.SessionOutCap,
		HandshakeTimeout: tune.HandshakeTimeout(),
		WriteTimeout:     tune.WriteTimeout(),
	}, logger)

	sup := runner.New(w, wsSrv, runner.Config{
		ListenAddr:      *addr,
		SnapshotDir:     snapDir,
		ShutdownTimeout: tune.ShutdownTimeout(),
	}, logger)
	if err := sup.Start(); err != nil {
		logger.Fatalf("start: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	<-ctx.Done()
	sup.Shutdown("signal")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(snapDir string) string {
	ents, err := os.ReadDir(snapDir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(snapDir, name)
		}
	}
	return best
}
