// Package runner supervises one world process: the tick goroutine, the
// websocket hub, the snapshot writer, and the HTTP surface, joined again by
// a bounded graceful shutdown.
package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"freightcraft.ai/internal/persistence/snapshot"
	"freightcraft.ai/internal/sim/world"
	"freightcraft.ai/internal/transport/ws"
)

type Config struct {
	ListenAddr      string
	SnapshotDir     string // empty disables the snapshot writer
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

type Supervisor struct {
	cfg   Config
	world *world.World
	ws    *ws.Server
	log   *log.Logger

	httpSrv *http.Server
	ln      net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	once    sync.Once
	stopped chan struct{}
}

func New(w *world.World, wsSrv *ws.Server, cfg Config, logger *log.Logger) *Supervisor {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:     cfg,
		world:   w,
		ws:      wsSrv,
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	s.httpSrv = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listener and launches the executors. It does not block.
func (s *Supervisor) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.ln = ln

	if s.cfg.SnapshotDir != "" {
		snapCh := make(chan snapshot.SnapshotV1, 2)
		s.world.SetSnapshotSink(snapCh)
		s.wg.Add(1)
		go s.writeSnapshots(snapCh)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.world.Run(s.ctx); err != nil && err != context.Canceled {
			s.log.Printf("world stopped: %v", err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.ws.Run(s.ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Printf("http server: %v", err)
		}
	}()

	s.log.Printf("listening on %s", ln.Addr())
	return nil
}

// Addr is the bound listen address, useful when the config asked for port 0.
func (s *Supervisor) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops intake, lets the world finish its current pass, closes the
// transport, and joins every executor within the shutdown budget. A join
// that outlives the budget is logged and abandoned. Repeat calls are no-ops
// that wait for the first to finish.
func (s *Supervisor) Shutdown(reason string) {
	s.once.Do(func() {
		defer close(s.stopped)
		s.log.Printf("shutdown: %s", reason)

		shCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		_ = s.httpSrv.Shutdown(shCtx) // stop intake; hijacked websocket conns survive this
		s.cancel()                    // world finishes its pass, hub and snapshot writer return
		_ = s.httpSrv.Close()         // kick websocket readers off their connections

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			s.log.Printf("shutdown complete")
		case <-shCtx.Done():
			s.log.Printf("shutdown timed out after %s, abandoning remaining goroutines", s.cfg.ShutdownTimeout)
		}
	})
	<-s.stopped
}

// Done closes once shutdown has finished.
func (s *Supervisor) Done() <-chan struct{} { return s.stopped }

func (s *Supervisor) writeSnapshots(snapCh <-chan snapshot.SnapshotV1) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case img := <-snapCh:
			path := filepath.Join(s.cfg.SnapshotDir, snapshot.Filename(img.Header.Tick))
			if err := snapshot.WriteSnapshot(path, img); err != nil {
				s.log.Printf("snapshot write: %v", err)
				continue
			}
			s.log.Printf("snapshot tick=%d -> %s", img.Header.Tick, filepath.Base(path))
		}
	}
}
