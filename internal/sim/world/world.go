// Package world runs the authoritative freight simulation. A single loop
// goroutine owns every piece of mutable state (agents, packages, parking,
// tick counter) and advances it in fixed passes; the only way in is the
// action queue and the only way out is the signal queue, snapshots, and the
// read-only metrics copy. Behaviors never see a lock because they never
// leave that goroutine.
package world

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"freightcraft.ai/internal/control"
	"freightcraft.ai/internal/persistence/snapshot"
	"freightcraft.ai/internal/sim/agent"
	"freightcraft.ai/internal/sim/graph"
	"freightcraft.ai/internal/sim/model"
)

// balanceReporter is the slice of the broker the world reads for metrics.
type balanceReporter interface {
	Balance() float64
}

// nodeHolder is implemented by site agents so registration can pin them to a
// graph node.
type nodeHolder interface {
	Node() model.NodeID
}

type World struct {
	cfg    WorldConfig
	graph  *graph.Graph
	router *graph.Router

	tick atomic.Uint64

	// agents holds every registered behavior; order fixes the perceive and
	// decide sequence for the life of the world.
	agents map[model.AgentID]agent.Agent
	order  []model.AgentID
	sites  map[model.AgentID]model.NodeID
	broker balanceReporter

	parking map[model.NodeID]*model.Parking

	packages map[model.PackageID]*model.Package
	pkgOrder []model.PackageID
	nextPkg  uint64

	registry *control.Registry
	sim      *control.SimState
	actions  *control.ActionQueue
	signals  *control.SignalQueue

	stop     chan struct{}
	stopOnce sync.Once

	beat    atomic.Int64
	metrics atomic.Value

	// snapshotSink receives periodic world images; sends never block the
	// loop, a busy writer just misses a cadence point.
	snapshotSink chan<- snapshot.SnapshotV1

	faults atomic.Uint64

	logger *log.Logger
}

// New builds a world over a validated graph. Parking lots are derived from
// the graph's buildings; agents join afterwards through Register.
func New(cfg WorldConfig, g *graph.Graph, logger *log.Logger) (*World, error) {
	cfg.applyDefaults()
	if g == nil {
		return nil, fmt.Errorf("world %s: nil graph", cfg.ID)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	router, err := graph.NewRouter(g)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	w := &World{
		cfg:      cfg,
		graph:    g,
		router:   router,
		agents:   map[model.AgentID]agent.Agent{},
		sites:    map[model.AgentID]model.NodeID{},
		parking:  map[model.NodeID]*model.Parking{},
		packages: map[model.PackageID]*model.Package{},
		registry: control.NewRegistry(),
		sim:      &control.SimState{},
		actions:  control.NewActionQueue(cfg.ActionQueueCap),
		signals:  control.NewSignalQueue(cfg.SignalQueueCap),
		stop:     make(chan struct{}),
		logger:   logger,
	}
	for _, n := range g.BuildingNodes() {
		if n.Building.ParkingCapacity > 0 {
			w.parking[n.ID] = model.NewParking(n.ID, n.Building.ParkingCapacity)
		}
	}
	if cfg.StartRunning {
		w.sim.Start()
	}
	w.metrics.Store(WorldMetrics{Running: cfg.StartRunning})
	w.touchBeat()
	return w, nil
}

// Register adds an agent before the loop starts. The broker is a singleton;
// sites must stand on a building node that exists in the graph.
func (w *World) Register(a agent.Agent) error {
	id := a.ID()
	if _, dup := w.agents[id]; dup {
		return fmt.Errorf("world %s: agent %s already registered", w.cfg.ID, id)
	}
	switch a.Kind() {
	case model.KindBroker:
		if w.broker != nil {
			return fmt.Errorf("world %s: second broker %s rejected", w.cfg.ID, id)
		}
		rep, ok := a.(balanceReporter)
		if !ok {
			return fmt.Errorf("world %s: broker %s does not report a balance", w.cfg.ID, id)
		}
		w.broker = rep
	case model.KindSite:
		nh, ok := a.(nodeHolder)
		if !ok {
			return fmt.Errorf("world %s: site %s has no node", w.cfg.ID, id)
		}
		node := nh.Node()
		n, ok := w.graph.Node(node)
		if !ok {
			return fmt.Errorf("world %s: site %s on unknown node %s", w.cfg.ID, id, node)
		}
		if n.Building == nil {
			return fmt.Errorf("world %s: site %s on non-building node %s", w.cfg.ID, id, node)
		}
		w.sites[id] = node
	}
	w.agents[id] = a
	w.order = append(w.order, id)
	return nil
}

// SetSnapshotSink wires the channel periodic images are offered to. Call it
// before Run.
func (w *World) SetSnapshotSink(sink chan<- snapshot.SnapshotV1) { w.snapshotSink = sink }

func (w *World) Config() WorldConfig           { return w.cfg }
func (w *World) Actions() *control.ActionQueue { return w.actions }
func (w *World) Signals() *control.SignalQueue { return w.signals }
func (w *World) Running() bool                 { return w.sim.Running() }

// AgentCount reads the roster size. The roster is fixed once the loop runs,
// so transport goroutines may call this without synchronization.
func (w *World) AgentCount() int { return len(w.agents) }

// Close releases the router's route cache. The world is unusable afterwards.
func (w *World) Close() { w.router.Close() }

// --- agent.WorldView ---

func (w *World) Tick() uint64          { return w.tick.Load() }
func (w *World) Graph() *graph.Graph   { return w.graph }
func (w *World) Router() *graph.Router { return w.router }

func (w *World) Package(id model.PackageID) (*model.Package, bool) {
	p, ok := w.packages[id]
	return p, ok
}

func (w *World) PackagesWhere(status model.PackageStatus) []*model.Package {
	var out []*model.Package
	for _, pid := range w.pkgOrder {
		if p := w.packages[pid]; p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

func (w *World) SpawnPackage(spec model.PackageSpec) (*model.Package, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	originNode, ok := w.sites[spec.OriginSite]
	if !ok {
		return nil, fmt.Errorf("%w: origin site %s", model.ErrUnknownAgent, spec.OriginSite)
	}
	destNode, ok := w.sites[spec.DestinationSite]
	if !ok {
		return nil, fmt.Errorf("%w: destination site %s", model.ErrUnknownAgent, spec.DestinationSite)
	}

	now := w.tick.Load()
	w.nextPkg++
	p := &model.Package{
		ID:               model.MintPackageID(w.nextPkg),
		OriginSite:       spec.OriginSite,
		DestinationSite:  spec.DestinationSite,
		OriginNode:       originNode,
		DestinationNode:  destNode,
		Size:             spec.Size,
		Value:            spec.Value,
		PickupDeadline:   now + spec.PickupAfter,
		DeliveryDeadline: now + spec.DeliveryAfter,
		Status:           model.StatusWaitingPickup,
		SpawnedAt:        now,
	}
	w.packages[p.ID] = p
	w.pkgOrder = append(w.pkgOrder, p.ID)
	return p, nil
}

func (w *World) Parking(node model.NodeID) (*model.Parking, bool) {
	lot, ok := w.parking[node]
	return lot, ok
}

func (w *World) SiteNode(id model.AgentID) (model.NodeID, bool) {
	node, ok := w.sites[id]
	return node, ok
}

func (w *World) AgentsOfKind(kind string) []model.AgentID {
	var out []model.AgentID
	for _, id := range w.order {
		if w.agents[id].Kind() == kind {
			out = append(out, id)
		}
	}
	return out
}

func (w *World) AgentTags(id model.AgentID) (map[string]string, bool) {
	a, ok := w.agents[id]
	if !ok {
		return nil, false
	}
	return a.State().Tags(), true
}

// --- control.WorldAPI ---

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) DescribeAgent(id model.AgentID) (agent.Snapshot, bool) {
	a, ok := w.agents[id]
	if !ok {
		return agent.Snapshot{}, false
	}
	return a.State().SerializeFull(), true
}

// AgentIDs lists ids of one kind (or all, for "") sorted lexically. The wire
// surface sorts so clients see a stable listing regardless of registration
// order.
func (w *World) AgentIDs(kind string) []model.AgentID {
	var out []model.AgentID
	for _, id := range w.order {
		if kind == "" || w.agents[id].Kind() == kind {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (w *World) touchBeat() { w.beat.Store(time.Now().UnixNano()) }

// Alive reports whether the loop has completed a pass inside the window. The
// health endpoint uses it to flag a wedged loop.
func (w *World) Alive(window time.Duration) bool {
	last := w.beat.Load()
	return last != 0 && time.Since(time.Unix(0, last)) <= window
}
