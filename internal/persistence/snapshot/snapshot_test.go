package snapshot

import (
	"path/filepath"
	"testing"
)

func sample() SnapshotV1 {
	return SnapshotV1{
		Header:     Header{Version: 1, WorldID: "freight-1", Tick: 600},
		MapName:    "demo",
		TickRateHz: 10,
		Running:    true,
		Digest:     "deadbeef",
		Packages: []PackageV1{{
			ID:               "pkg-000001",
			OriginSite:       "site-001",
			DestinationSite:  "site-002",
			OriginNode:       "n1",
			DestinationNode:  "n3",
			Size:             2,
			Value:            120.5,
			PickupDeadline:   650,
			DeliveryDeadline: 800,
			Status:           "ASSIGNED",
			SpawnedAt:        590,
		}},
		Parking: []ParkingV1{{Node: "n1", Capacity: 2, Occupants: []string{"truck-001"}}},
		Trucks: []TruckV1{{
			ID:          "truck-001",
			Node:        "n2",
			Speed:       10,
			Capacity:    3,
			Phase:       "to_pickup",
			RouteNodes:  []string{"n2", "n1"},
			RouteLength: 100,
			RouteIx:     0,
			EdgePos:     40,
			Assignment: &AssignmentV1{
				Package:          "pkg-000001",
				OriginNode:       "n1",
				DestinationNode:  "n3",
				PickupDeadline:   650,
				DeliveryDeadline: 800,
			},
		}},
		Sites: []SiteV1{{
			ID: "site-001", Node: "n1", Building: "depot", Cursor: 1, Spawned: 1,
			Schedule: []SpawnV1{{Tick: 590, Destination: "site-002", Size: 2, Value: 120.5, PickupAfter: 60, DeliveryAfter: 210}},
		}},
		Broker: &BrokerV1{
			ID:        "broker",
			Balance:   442.25,
			Strategy:  "nearest",
			Known:     []string{"pkg-000001"},
			Assigned:  []AssignedPairV1{{Package: "pkg-000001", Truck: "truck-001"}},
			Processed: []ProcessedV1{{Package: "pkg-000001", Mask: 1}},
		},
		Mailboxes: []MailboxV1{{
			Agent: "truck-001",
			Inbox: []MsgV1{{
				Type:      "assignment_confirmed",
				Sender:    "broker",
				Recipient: "truck-001",
				Payload:   map[string]any{"package_id": "pkg-000001"},
			}},
		}},
		AgentOrder: []string{"broker", "truck-001", "site-001"},
		Counters:   CountersV1{NextPackage: 1},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", Filename(600))
	want := sample()
	if err := WriteSnapshot(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header != want.Header {
		t.Fatalf("header = %+v, want %+v", got.Header, want.Header)
	}
	if len(got.Packages) != 1 || got.Packages[0] != want.Packages[0] {
		t.Fatalf("packages = %+v", got.Packages)
	}
	if len(got.Trucks) != 1 || got.Trucks[0].EdgePos != 40 {
		t.Fatalf("trucks = %+v", got.Trucks)
	}
	if got.Trucks[0].Assignment == nil || got.Trucks[0].Assignment.Package != "pkg-000001" {
		t.Fatalf("assignment = %+v", got.Trucks[0].Assignment)
	}
	if got.Broker == nil || got.Broker.Balance != 442.25 {
		t.Fatalf("broker = %+v", got.Broker)
	}
	if len(got.Mailboxes) != 1 || len(got.Mailboxes[0].Inbox) != 1 {
		t.Fatalf("mailboxes = %+v", got.Mailboxes)
	}
	if pid := got.Mailboxes[0].Inbox[0].Payload["package_id"]; pid != "pkg-000001" {
		t.Fatalf("payload round trip = %v", pid)
	}
	if len(got.AgentOrder) != 3 || got.AgentOrder[0] != "broker" {
		t.Fatalf("agent order = %v", got.AgentOrder)
	}
	if got.Counters.NextPackage != 1 {
		t.Fatalf("counters = %+v", got.Counters)
	}
}

func TestReadSnapshotMissingFile(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "absent.snap.zst")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
