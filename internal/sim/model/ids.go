// Package model holds the value types shared across the simulation: agent and
// package identity, messages, delivery jobs, and the parking capacity resource.
// Everything here is plain data; mutation rules are enforced by the world loop,
// which is the only goroutine allowed to touch live simulation state.
package model

import "fmt"

// AgentID identifies an agent for the lifetime of the simulation.
type AgentID string

// PackageID identifies a delivery job for the lifetime of the simulation.
type PackageID string

// NodeID identifies a node in the city graph.
type NodeID string

func (id AgentID) String() string   { return string(id) }
func (id PackageID) String() string { return string(id) }
func (id NodeID) String() string    { return string(id) }

// TruckID and SiteID mint the deterministic ids used for fleet agents.
// Sequence numbers are assigned by world setup in registration order.
func TruckID(n int) AgentID { return AgentID(fmt.Sprintf("truck-%03d", n)) }

func SiteID(n int) AgentID { return AgentID(fmt.Sprintf("site-%03d", n)) }

// MintPackageID derives a package id from the world's monotonic spawn counter.
func MintPackageID(n uint64) PackageID { return PackageID(fmt.Sprintf("pkg-%06d", n)) }

// BrokerID is the singleton broker's well-known id.
const BrokerID AgentID = "broker"

// Agent kinds. The registry stores kind per agent; control-plane filters and
// candidate discovery match on these strings.
const (
	KindTruck  = "truck"
	KindSite   = "site"
	KindBroker = "broker"
)
