package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"freightcraft.ai/internal/sim/model"
	"freightcraft.ai/internal/sim/world/io/digestcodec"
)

// StateDigest hashes the complete observable simulation state at the given
// tick. Two worlds fed the same inputs must produce the same digest every
// tick; a divergence pinpoints the first tick where determinism broke.
func (w *World) StateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte
	w.digestHeader(h, &tmp, nowTick)
	w.digestPackages(h, &tmp)
	w.digestParking(h, &tmp)
	w.digestAgents(h, &tmp)
	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestHeader(h hash.Hash, tmp *[8]byte, nowTick uint64) {
	h.Write([]byte(w.cfg.ID))
	digestWriteU64(h, tmp, nowTick)
	digestWriteU64(h, tmp, w.nextPkg)
	h.Write([]byte{digestcodec.BoolByte(w.sim.Running())})
}

// digestPackages walks jobs in spawn order, which is already deterministic.
func (w *World) digestPackages(h hash.Hash, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(w.pkgOrder)))
	for _, pid := range w.pkgOrder {
		p := w.packages[pid]
		h.Write([]byte(p.ID))
		h.Write([]byte(p.Status))
		h.Write([]byte(p.OriginSite))
		h.Write([]byte(p.DestinationSite))
		h.Write([]byte(p.OriginNode))
		h.Write([]byte(p.DestinationNode))
		digestWriteU64(h, tmp, uint64(p.Size))
		digestWriteI64(h, tmp, digestcodec.MilliUnits(p.Value))
		digestWriteU64(h, tmp, p.PickupDeadline)
		digestWriteU64(h, tmp, p.DeliveryDeadline)
		digestWriteU64(h, tmp, p.SpawnedAt)
	}
}

func (w *World) digestParking(h hash.Hash, tmp *[8]byte) {
	nodes := make([]string, 0, len(w.parking))
	for n := range w.parking {
		nodes = append(nodes, string(n))
	}
	sort.Strings(nodes)
	digestWriteU64(h, tmp, uint64(len(nodes)))
	for _, n := range nodes {
		lot := w.parking[model.NodeID(n)]
		h.Write([]byte(n))
		digestWriteU64(h, tmp, uint64(lot.Capacity))
		for _, occ := range lot.Occupants() {
			h.Write([]byte(occ))
			h.Write([]byte{0})
		}
	}
}

// digestAgents walks agents in registration order. Tags carry each
// behavior's observable internals, so the digest tracks truck movement,
// cargo, and broker balance without reaching into behavior structs.
func (w *World) digestAgents(h hash.Hash, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(w.order)))
	for _, id := range w.order {
		a := w.agents[id]
		st := a.State()
		h.Write([]byte(id))
		h.Write([]byte(a.Kind()))
		digestcodec.WriteSortedStringMap(h, st.Tags())
		digestWriteU64(h, tmp, uint64(st.InboxLen()))
		digestWriteU64(h, tmp, uint64(st.OutboxLen()))
	}
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}
