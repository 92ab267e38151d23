package agent

import (
	"freightcraft.ai/internal/sim/graph"
	"freightcraft.ai/internal/sim/model"
)

// WorldView is the surface the world exposes to behaviors during perceive and
// decide. Pointers returned from it reference live world state; they are only
// valid on the world loop goroutine and only for the duration of the call
// chain that received them.
//
// Mutation through the view follows the single-writer discipline: package
// transitions and parking occupancy changes are legal because the caller is,
// by construction, running on the world loop. Everything else is read-only.
type WorldView interface {
	// Tick is the current tick number, before this tick's increment.
	Tick() uint64

	Graph() *graph.Graph
	Router() *graph.Router

	// Package resolves a live delivery job.
	Package(id model.PackageID) (*model.Package, bool)
	// PackagesWhere lists jobs in the given status, in spawn order.
	PackagesWhere(status model.PackageStatus) []*model.Package
	// SpawnPackage validates the spec, mints an id, and registers a new job
	// in WAITING_PICKUP. Sites call it from Decide.
	SpawnPackage(spec model.PackageSpec) (*model.Package, error)

	// Parking resolves the capacity resource on a building node.
	Parking(node model.NodeID) (*model.Parking, bool)
	// SiteNode resolves the graph node a site agent occupies.
	SiteNode(id model.AgentID) (model.NodeID, bool)

	// AgentsOfKind lists agent ids of one kind in registration order.
	AgentsOfKind(kind string) []model.AgentID
	// AgentTags returns a copy of another agent's tags.
	AgentTags(id model.AgentID) (map[string]string, bool)
}
