package world

import (
	"fmt"
	"time"

	"freightcraft.ai/internal/persistence/snapshot"
	"freightcraft.ai/internal/sim/agent"
	"freightcraft.ai/internal/sim/broker"
	"freightcraft.ai/internal/sim/fleet"
	"freightcraft.ai/internal/sim/model"
)

// ExportImage captures the complete world state at the current tick. Loop
// goroutine only.
func (w *World) ExportImage() snapshot.SnapshotV1 {
	nowTick := w.tick.Load()
	img := snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: 1, WorldID: w.cfg.ID, Tick: nowTick},
		MapName:     w.cfg.MapName,
		TickRateHz:  w.cfg.TickRateHz,
		Running:     w.sim.Running(),
		SavedAtUnix: time.Now().Unix(),
		Counters:    snapshot.CountersV1{NextPackage: w.nextPkg},
	}

	for _, pid := range w.pkgOrder {
		p := w.packages[pid]
		img.Packages = append(img.Packages, snapshot.PackageV1{
			ID:               string(p.ID),
			OriginSite:       string(p.OriginSite),
			DestinationSite:  string(p.DestinationSite),
			OriginNode:       string(p.OriginNode),
			DestinationNode:  string(p.DestinationNode),
			Size:             p.Size,
			Value:            p.Value,
			PickupDeadline:   p.PickupDeadline,
			DeliveryDeadline: p.DeliveryDeadline,
			Status:           string(p.Status),
			SpawnedAt:        p.SpawnedAt,
		})
	}

	for _, n := range w.graph.BuildingNodes() {
		lot, ok := w.parking[n.ID]
		if !ok {
			continue
		}
		pv := snapshot.ParkingV1{Node: string(lot.Node), Capacity: lot.Capacity}
		for _, occ := range lot.Occupants() {
			pv.Occupants = append(pv.Occupants, string(occ))
		}
		img.Parking = append(img.Parking, pv)
	}

	for _, id := range w.order {
		a := w.agents[id]
		img.AgentOrder = append(img.AgentOrder, string(id))
		switch v := a.(type) {
		case *fleet.Truck:
			img.Trucks = append(img.Trucks, v.ExportImage())
		case *fleet.Site:
			img.Sites = append(img.Sites, v.ExportImage())
		case *broker.Broker:
			bv := v.ExportImage()
			img.Broker = &bv
		}
		inbox, outbox := a.State().SnapshotMailboxes()
		if len(inbox) > 0 || len(outbox) > 0 {
			img.Mailboxes = append(img.Mailboxes, snapshot.MailboxV1{
				Agent:  string(id),
				Inbox:  msgsToImage(inbox),
				Outbox: msgsToImage(outbox),
			})
		}
	}

	img.Digest = w.StateDigest(nowTick)
	return img
}

// RestoreImage rebuilds a freshly constructed, still empty world from a
// snapshot: tick, counters, packages, parking occupancy, and every agent
// with its behavioral state and mailboxes. The graph is not part of the
// image; the caller loads the same map first and the restore refuses images
// taken on a different one.
func (w *World) RestoreImage(img snapshot.SnapshotV1) error {
	if img.Header.Version != 1 {
		return fmt.Errorf("world %s: unsupported snapshot version %d", w.cfg.ID, img.Header.Version)
	}
	if img.MapName != "" && w.cfg.MapName != "" && img.MapName != w.cfg.MapName {
		return fmt.Errorf("world %s: snapshot from map %q, world runs %q", w.cfg.ID, img.MapName, w.cfg.MapName)
	}
	if len(w.order) > 0 {
		return fmt.Errorf("world %s: restore into a world with %d agents registered", w.cfg.ID, len(w.order))
	}

	w.tick.Store(img.Header.Tick)
	w.nextPkg = img.Counters.NextPackage
	if img.Running {
		w.sim.Start()
	} else {
		w.sim.Stop()
	}

	w.packages = make(map[model.PackageID]*model.Package, len(img.Packages))
	w.pkgOrder = w.pkgOrder[:0]
	for _, pv := range img.Packages {
		p := &model.Package{
			ID:               model.PackageID(pv.ID),
			OriginSite:       model.AgentID(pv.OriginSite),
			DestinationSite:  model.AgentID(pv.DestinationSite),
			OriginNode:       model.NodeID(pv.OriginNode),
			DestinationNode:  model.NodeID(pv.DestinationNode),
			Size:             pv.Size,
			Value:            pv.Value,
			PickupDeadline:   pv.PickupDeadline,
			DeliveryDeadline: pv.DeliveryDeadline,
			Status:           model.PackageStatus(pv.Status),
			SpawnedAt:        pv.SpawnedAt,
		}
		w.packages[p.ID] = p
		w.pkgOrder = append(w.pkgOrder, p.ID)
	}

	for _, pv := range img.Parking {
		lot, ok := w.parking[model.NodeID(pv.Node)]
		if !ok {
			return fmt.Errorf("world %s: snapshot parking on node %s, graph has no lot there", w.cfg.ID, pv.Node)
		}
		occ := make([]model.AgentID, len(pv.Occupants))
		for i, o := range pv.Occupants {
			occ[i] = model.AgentID(o)
		}
		lot.SetOccupants(occ)
	}

	rebuilt := make(map[model.AgentID]agent.Agent, len(img.AgentOrder))
	for _, tv := range img.Trucks {
		t, err := fleet.RestoreTruck(tv)
		if err != nil {
			return fmt.Errorf("world %s: %w", w.cfg.ID, err)
		}
		rebuilt[t.ID()] = t
	}
	for _, sv := range img.Sites {
		s, err := fleet.RestoreSite(sv)
		if err != nil {
			return fmt.Errorf("world %s: %w", w.cfg.ID, err)
		}
		rebuilt[s.ID()] = s
	}
	if img.Broker != nil {
		b, err := broker.RestoreBroker(*img.Broker, w.logger)
		if err != nil {
			return fmt.Errorf("world %s: %w", w.cfg.ID, err)
		}
		rebuilt[b.ID()] = b
	}

	if len(rebuilt) != len(img.AgentOrder) {
		return fmt.Errorf("world %s: snapshot has %d agents but orders %d", w.cfg.ID, len(rebuilt), len(img.AgentOrder))
	}
	for _, raw := range img.AgentOrder {
		id := model.AgentID(raw)
		a, ok := rebuilt[id]
		if !ok {
			return fmt.Errorf("world %s: snapshot orders agent %s but carries no state for it", w.cfg.ID, id)
		}
		if err := w.Register(a); err != nil {
			return err
		}
	}

	for _, mb := range img.Mailboxes {
		a, ok := w.agents[model.AgentID(mb.Agent)]
		if !ok {
			return fmt.Errorf("world %s: snapshot mailbox for unknown agent %s", w.cfg.ID, mb.Agent)
		}
		a.State().RestoreMailboxes(msgsFromImage(mb.Inbox), msgsFromImage(mb.Outbox))
	}

	w.storeMetrics(0)
	return nil
}

func msgsToImage(msgs []model.Msg) []snapshot.MsgV1 {
	out := make([]snapshot.MsgV1, len(msgs))
	for i, m := range msgs {
		out[i] = snapshot.MsgV1{
			Type:      m.Type,
			Sender:    string(m.Sender),
			Recipient: string(m.Recipient),
			Payload:   m.Payload,
		}
	}
	return out
}

func msgsFromImage(msgs []snapshot.MsgV1) []model.Msg {
	out := make([]model.Msg, len(msgs))
	for i, m := range msgs {
		out[i] = model.Msg{
			Type:      m.Type,
			Sender:    model.AgentID(m.Sender),
			Recipient: model.AgentID(m.Recipient),
			Payload:   m.Payload,
		}
	}
	return out
}
