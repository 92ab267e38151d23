// Package snapshot persists the current world image as a zstd stream holding
// a JSON header line followed by a gob body. Images are whole-state captures,
// not a history journal: boot restores one image and the simulation continues
// from its tick.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	MapName     string `json:"map_name,omitempty"`
	TickRateHz  int    `json:"tick_rate_hz"`
	Running     bool   `json:"running"`
	Digest      string `json:"digest,omitempty"`
	SavedAtUnix int64  `json:"saved_at_unix,omitempty"`

	Packages  []PackageV1 `json:"packages"`
	Parking   []ParkingV1 `json:"parking"`
	Trucks    []TruckV1   `json:"trucks"`
	Sites     []SiteV1    `json:"sites"`
	Broker    *BrokerV1   `json:"broker,omitempty"`
	Mailboxes []MailboxV1 `json:"mailboxes,omitempty"`

	// AgentOrder preserves registration order across a restore; decide order
	// is part of the deterministic state.
	AgentOrder []string `json:"agent_order"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextPackage uint64 `json:"next_package"`
}

type PackageV1 struct {
	ID               string  `json:"id"`
	OriginSite       string  `json:"origin_site"`
	DestinationSite  string  `json:"destination_site"`
	OriginNode       string  `json:"origin_node"`
	DestinationNode  string  `json:"destination_node"`
	Size             int     `json:"size"`
	Value            float64 `json:"value"`
	PickupDeadline   uint64  `json:"pickup_deadline"`
	DeliveryDeadline uint64  `json:"delivery_deadline"`
	Status           string  `json:"status"`
	SpawnedAt        uint64  `json:"spawned_at"`
}

type ParkingV1 struct {
	Node      string   `json:"node"`
	Capacity  int      `json:"capacity"`
	Occupants []string `json:"occupants,omitempty"`
}

type TruckV1 struct {
	ID       string  `json:"id"`
	Node     string  `json:"node"`
	Speed    float64 `json:"speed"`
	Capacity int     `json:"capacity"`
	Phase    string  `json:"phase"`

	RouteNodes  []string `json:"route_nodes,omitempty"`
	RouteLength float64  `json:"route_length,omitempty"`
	RouteIx     int      `json:"route_ix,omitempty"`
	EdgePos     float64  `json:"edge_pos,omitempty"`

	Assignment *AssignmentV1 `json:"assignment,omitempty"`
	Cargo      string        `json:"cargo,omitempty"`
	ParkedAt   string        `json:"parked_at,omitempty"`

	AcceptedPkg string `json:"accepted_pkg,omitempty"`
	AcceptedAt  uint64 `json:"accepted_at,omitempty"`
}

type AssignmentV1 struct {
	Package          string `json:"package"`
	OriginNode       string `json:"origin_node"`
	DestinationNode  string `json:"destination_node"`
	PickupDeadline   uint64 `json:"pickup_deadline"`
	DeliveryDeadline uint64 `json:"delivery_deadline"`
}

type SiteV1 struct {
	ID       string    `json:"id"`
	Node     string    `json:"node"`
	Building string    `json:"building"`
	Cursor   int       `json:"cursor"`
	Spawned  int       `json:"spawned"`
	Schedule []SpawnV1 `json:"schedule,omitempty"`
}

type SpawnV1 struct {
	Tick          uint64  `json:"tick"`
	Destination   string  `json:"destination"`
	Size          int     `json:"size"`
	Value         float64 `json:"value"`
	PickupAfter   uint64  `json:"pickup_after"`
	DeliveryAfter uint64  `json:"delivery_after"`
}

type BrokerV1 struct {
	ID       string  `json:"id"`
	Balance  float64 `json:"balance"`
	Strategy string  `json:"strategy"`
	// StrategyCursor carries rotation state for strategies that keep one.
	StrategyCursor uint64 `json:"strategy_cursor,omitempty"`

	Queue    []string         `json:"queue,omitempty"`
	Known    []string         `json:"known,omitempty"`
	Assigned []AssignedPairV1 `json:"assigned,omitempty"`

	Processed []ProcessedV1  `json:"processed,omitempty"`
	Active    *NegotiationV1 `json:"active,omitempty"`
}

type AssignedPairV1 struct {
	Package string `json:"package"`
	Truck   string `json:"truck"`
}

type ProcessedV1 struct {
	Package string `json:"package"`
	Mask    uint8  `json:"mask"`
}

type NegotiationV1 struct {
	Package    string   `json:"package"`
	Candidate  string   `json:"candidate"`
	ProposedAt uint64   `json:"proposed_at"`
	Status     string   `json:"status"`
	Remaining  []string `json:"remaining,omitempty"`
}

type MailboxV1 struct {
	Agent  string  `json:"agent"`
	Inbox  []MsgV1 `json:"inbox,omitempty"`
	Outbox []MsgV1 `json:"outbox,omitempty"`
}

type MsgV1 struct {
	Type      string         `json:"type"`
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Filename is the canonical snapshot name for a tick.
func Filename(tick uint64) string {
	return fmt.Sprintf("%d.snap.zst", tick)
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line first; the gob body repeats it.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
