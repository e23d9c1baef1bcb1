package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(w.cfg.GateEveryTicks))
	digestWriteU64(h, &tmp, uint64(w.cfg.PulseEveryTicks))
	digestWriteI64(h, &tmp, int64(w.cfg.PulseEnergy))
	w.digestSegments(h, &tmp)
	w.digestEntities(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestSegments(h hashWriter, tmp *[8]byte) {
	order := w.segmentOrder()
	digestWriteU64(h, tmp, uint64(len(order)))
	for _, p := range order {
		s := w.segments[p]
		digestWritePos(h, tmp, p)
		h.Write([]byte{byte(s.transport), boolByte(s.broadcastRedstone), boolByte(s.scheduled), boolByte(s.initialized)})
		for i := 0; i < NumChannels; i++ {
			h.Write([]byte{boolByte(s.wires[i]), boolByte(s.broadcast[i])})
			digestWriteI64(h, tmp, int64(s.signal[i]))
		}
		for _, b := range s.blocked {
			h.Write([]byte{boolByte(b)})
		}
		digestWriteU64(h, tmp, s.tracker.LastMark())
		if s.gate == nil {
			h.Write([]byte{0})
		} else {
			h.Write([]byte{1, byte(s.gate.Kind), boolByte(s.gate.Autarchic), boolByte(s.gate.pulsing)})
			digestWriteU64(h, tmp, s.gate.pulse.LastMark())
		}
		for _, sl := range s.slots {
			digestWriteString(h, tmp, triggerName(sl.Trigger))
			digestWriteString(h, tmp, actionName(sl.Action))
			if sl.Param == nil {
				h.Write([]byte{0})
			} else {
				h.Write([]byte{1})
				digestWriteString(h, tmp, sl.Param.Item)
				digestWriteI64(h, tmp, int64(sl.Param.Count))
			}
		}
	}
}

func (w *World) digestEntities(h hashWriter, tmp *[8]byte) {
	positions := make([]Vec3i, 0, len(w.entities))
	for p := range w.entities {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return lessPos(positions[i], positions[j]) })
	digestWriteU64(h, tmp, uint64(len(positions)))
	for _, p := range positions {
		e := w.entities[p]
		digestWritePos(h, tmp, p)
		digestWriteString(h, tmp, entityKind(e))
		switch v := e.(type) {
		case *Switch:
			h.Write([]byte{boolByte(v.On)})
		case *Machine:
			h.Write([]byte{boolByte(v.Running), boolByte(v.Powered)})
			digestWriteI64(h, tmp, int64(v.Energy))
			digestWriteI64(h, tmp, int64(v.Activations))
		case *Bridge:
			digestWriteI64(h, tmp, int64(v.Forwarded))
		}
	}
}

func triggerName(t Trigger) string {
	if t == nil {
		return ""
	}
	return t.Name()
}

func actionName(a *Action) string {
	if a == nil {
		return ""
	}
	return a.Name
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWritePos(h hashWriter, tmp *[8]byte, p Vec3i) {
	digestWriteI64(h, tmp, int64(p.X))
	digestWriteI64(h, tmp, int64(p.Y))
	digestWriteI64(h, tmp, int64(p.Z))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
