package world

import (
	"fmt"

	"signalgrid.ai/internal/persistence/snapshot"
)

// ImportSnapshot replaces the world state with snap. Bindings naming triggers or
// actions missing from the registry load as empty.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", snap.Header.Version)
	}

	segments := make(map[Vec3i]*Segment, len(snap.Segments))
	for _, sv := range snap.Segments {
		s, err := w.importSegment(sv)
		if err != nil {
			return err
		}
		if _, dup := segments[s.pos]; dup {
			return fmt.Errorf("duplicate segment at %v", sv.Pos)
		}
		segments[s.pos] = s
	}
	entities := make(map[Vec3i]Entity, len(snap.Entities))
	for _, ev := range snap.Entities {
		pos := Vec3iFromArray(ev.Pos)
		if _, taken := segments[pos]; taken {
			return fmt.Errorf("entity overlaps segment at %v", ev.Pos)
		}
		if _, dup := entities[pos]; dup {
			return fmt.Errorf("duplicate entity at %v", ev.Pos)
		}
		e := w.newEntity(ev.Kind, pos)
		if e == nil {
			return fmt.Errorf("unknown entity kind %q at %v", ev.Kind, ev.Pos)
		}
		switch v := e.(type) {
		case *Switch:
			v.On = ev.On
		case *Machine:
			v.Running = ev.Running
			v.Powered = ev.Powered
			v.Energy = ev.Energy
			v.Activations = ev.Activations
			v.LastAction = ev.LastAction
		case *Bridge:
			v.Forwarded = ev.Forwarded
		}
		entities[pos] = e
	}

	w.cfg.ID = snap.Header.WorldID
	if snap.TickRate > 0 {
		w.cfg.TickRateHz = snap.TickRate
	}
	if snap.GateEveryTicks > 0 {
		w.cfg.GateEveryTicks = snap.GateEveryTicks
	}
	if snap.PulseEveryTicks > 0 {
		w.cfg.PulseEveryTicks = snap.PulseEveryTicks
	}
	w.cfg.PulseEnergy = snap.PulseEnergy
	w.cfg.SnapshotEveryTicks = snap.SnapshotEveryTicks

	w.segments = segments
	w.entities = entities
	w.orderOK = false
	w.refresh = map[Vec3i]struct{}{}
	w.replicated = map[Vec3i]NetState{}
	w.lastResolved = map[Vec3i]string{}
	for p, s := range segments {
		s.Attach(w)
		s.SetVariant(gateAuditor{w: w})
		w.refresh[p] = struct{}{}
	}
	w.nextClientNum.Store(snap.Counters.NextClient)
	// Snapshot at tick T is taken after stepping T, so resume at T+1.
	w.tick.Store(snap.Header.Tick + 1)
	return nil
}

func (w *World) importSegment(sv snapshot.SegmentV1) (*Segment, error) {
	kind, ok := ParseTransport(sv.Transport)
	if !ok {
		return nil, fmt.Errorf("segment %v: unknown transport %q", sv.Pos, sv.Transport)
	}
	s := NewSegment(Vec3iFromArray(sv.Pos), kind)
	copy(s.wires[:], sv.Wires)
	copy(s.blocked[:], sv.Blocked)
	copy(s.signal[:], sv.Signal)
	copy(s.broadcast[:], sv.Broadcast)
	s.broadcastRedstone = sv.BroadcastRedstone
	s.scheduled = sv.Scheduled
	s.initialized = sv.Initialized
	s.tracker.SetLastMark(sv.ResolveMark)
	for i, v := range s.signal {
		if v < 0 || v > MaxSignal {
			s.signal[i] = 0
		}
	}

	switch {
	case sv.Gate != nil:
		gk, ok := ParseGateKind(sv.Gate.Kind)
		if !ok || gk == GateNone {
			return nil, fmt.Errorf("segment %v: bad gate kind %q", sv.Pos, sv.Gate.Kind)
		}
		g := NewGate(gk, sv.Gate.Autarchic)
		g.pulsing = sv.Gate.Pulsing
		g.pulse.SetLastMark(sv.Gate.PulseMark)
		s.gate = g
	case sv.GateKind != 0:
		// Legacy single-enum form.
		gk := GateKind(sv.GateKind)
		if int(gk) >= len(gateKindNames) {
			return nil, fmt.Errorf("segment %v: bad legacy gate kind %d", sv.Pos, sv.GateKind)
		}
		s.gate = NewGate(gk, false)
	}

	for i, slv := range sv.Slots {
		if i >= SlotCount {
			break
		}
		sl := Slot{
			Trigger: w.registry.TriggerByName(slv.Trigger),
			Action:  w.registry.ActionByName(slv.Action),
		}
		if slv.HasParam {
			sl.Param = &Parameter{Item: slv.ParamItem, Count: slv.ParamCount}
		}
		s.slots[i] = sl
	}
	return s, nil
}
