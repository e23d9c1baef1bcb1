package world

import (
	"sort"

	"signalgrid.ai/internal/persistence/snapshot"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.TickRateHz,
		GateEveryTicks:     w.cfg.GateEveryTicks,
		PulseEveryTicks:    w.cfg.PulseEveryTicks,
		PulseEnergy:        w.cfg.PulseEnergy,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		Counters:           snapshot.CountersV1{NextClient: w.nextClientNum.Load()},
	}

	for _, p := range w.segmentOrder() {
		snap.Segments = append(snap.Segments, exportSegment(w.segments[p]))
	}

	positions := make([]Vec3i, 0, len(w.entities))
	for p := range w.entities {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return lessPos(positions[i], positions[j]) })
	for _, p := range positions {
		snap.Entities = append(snap.Entities, exportEntity(w.entities[p]))
	}
	return snap
}

func exportSegment(s *Segment) snapshot.SegmentV1 {
	out := snapshot.SegmentV1{
		Pos:               s.pos.ToArray(),
		Transport:         s.transport.String(),
		Wires:             append([]bool(nil), s.wires[:]...),
		Blocked:           append([]bool(nil), s.blocked[:]...),
		Signal:            append([]int(nil), s.signal[:]...),
		Broadcast:         append([]bool(nil), s.broadcast[:]...),
		BroadcastRedstone: s.broadcastRedstone,
		Scheduled:         s.scheduled,
		Initialized:       s.initialized,
		ResolveMark:       s.tracker.LastMark(),
	}
	if s.gate != nil {
		out.Gate = &snapshot.GateV1{
			Kind:      s.gate.Kind.String(),
			Autarchic: s.gate.Autarchic,
			Pulsing:   s.gate.pulsing,
			PulseMark: s.gate.pulse.LastMark(),
		}
	}
	last := -1
	for i, sl := range s.slots {
		if !sl.Empty() {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		sl := s.slots[i]
		v := snapshot.SlotV1{Trigger: triggerName(sl.Trigger), Action: actionName(sl.Action)}
		if sl.Param != nil {
			v.HasParam = true
			v.ParamItem = sl.Param.Item
			v.ParamCount = sl.Param.Count
		}
		out.Slots = append(out.Slots, v)
	}
	return out
}

func exportEntity(e Entity) snapshot.EntityV1 {
	out := snapshot.EntityV1{Kind: entityKind(e), Pos: e.Pos().ToArray()}
	switch v := e.(type) {
	case *Switch:
		out.On = v.On
	case *Machine:
		out.Running = v.Running
		out.Powered = v.Powered
		out.Energy = v.Energy
		out.Activations = v.Activations
		out.LastAction = v.LastAction
	case *Bridge:
		out.Forwarded = v.Forwarded
	}
	return out
}
