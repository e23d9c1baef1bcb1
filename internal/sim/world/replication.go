package world

import (
	"fmt"
	"reflect"

	"signalgrid.ai/internal/protocol"
)

// NetState is the replicated view of a segment. Field order is wire order.
type NetState struct {
	Transport  uint8             `net:"transport"`
	Wires      [NumChannels]bool `net:"wire_set"`
	Lit        [NumChannels]bool `net:"signal_lit"`
	Broadcast  [NumChannels]bool `net:"broadcast_signal"`
	Redstone   bool              `net:"broadcast_redstone"`
	GateKind   uint8             `net:"gate_kind"`
	GateActive bool              `net:"gate_active"`
}

type netField struct {
	name  string
	index int
	elem  int // -1 for scalars
}

// netFields is built once; every peer derives the same list from NetState.
var netFields = describeNetState()

func describeNetState() []netField {
	t := reflect.TypeOf(NetState{})
	var out []netField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("net")
		if name == "" {
			continue
		}
		if f.Type.Kind() == reflect.Array {
			for j := 0; j < f.Type.Len(); j++ {
				out = append(out, netField{name: fmt.Sprintf("%s[%d]", name, j), index: i, elem: j})
			}
			continue
		}
		out = append(out, netField{name: name, index: i, elem: -1})
	}
	return out
}

func (f netField) value(st *NetState) int {
	v := reflect.ValueOf(st).Elem().Field(f.index)
	if f.elem >= 0 {
		v = v.Index(f.elem)
	}
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(v.Uint())
	default:
		return int(v.Int())
	}
}

// NetFieldNames lists replicated field names in wire order.
func NetFieldNames() []string {
	out := make([]string, len(netFields))
	for i, f := range netFields {
		out[i] = f.name
	}
	return out
}

func (s *Segment) NetState() NetState {
	st := NetState{
		Transport:  uint8(s.transport),
		Wires:      s.wires,
		Broadcast:  s.broadcast,
		Redstone:   s.broadcastRedstone,
		GateActive: s.IsGateActive(),
	}
	for i, v := range s.signal {
		st.Lit[i] = v > 0
	}
	if s.gate != nil {
		st.GateKind = uint8(s.gate.Kind)
	}
	return st
}

// DiffNetState lists fields of cur that differ from prev. A nil prev yields every field.
func DiffNetState(prev, cur *NetState) []protocol.FieldChange {
	var out []protocol.FieldChange
	for _, f := range netFields {
		v := f.value(cur)
		if prev != nil && f.value(prev) == v {
			continue
		}
		out = append(out, protocol.FieldChange{Field: f.name, Value: v})
	}
	return out
}

// ApplyNetState writes replicated changes into st. Unknown fields are ignored.
func ApplyNetState(st *NetState, changes []protocol.FieldChange) {
	for _, c := range changes {
		for _, f := range netFields {
			if f.name != c.Field {
				continue
			}
			v := reflect.ValueOf(st).Elem().Field(f.index)
			if f.elem >= 0 {
				v = v.Index(f.elem)
			}
			switch v.Kind() {
			case reflect.Bool:
				v.SetBool(c.Value != 0)
			case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				v.SetUint(uint64(c.Value))
			default:
				v.SetInt(int64(c.Value))
			}
			break
		}
	}
}

// ApplyReplicatedState mirrors the authoritative topology and gate outputs onto this
// world; propagation then runs locally. A full message also drops every local segment
// it does not list. signal_lit and gate_active are recomputed here, never copied.
func (w *World) ApplyReplicatedState(msg protocol.StateMsg) {
	if msg.Full {
		listed := make(map[Vec3i]struct{}, len(msg.Segments))
		for _, d := range msg.Segments {
			listed[Vec3iFromArray(d.Pos)] = struct{}{}
		}
		var stale []Vec3i
		for _, pos := range w.segmentOrder() {
			if _, ok := listed[pos]; !ok {
				stale = append(stale, pos)
			}
		}
		for _, pos := range stale {
			w.removeReplicated(pos)
		}
	}
	for _, p := range msg.Removed {
		w.removeReplicated(Vec3iFromArray(p))
	}
	for _, d := range msg.Segments {
		w.applySegmentDelta(d)
	}
}

func (w *World) removeReplicated(pos Vec3i) {
	if w.dropSegment(pos) == nil {
		return
	}
	w.RequestRefresh(pos)
	w.NotifyNeighborChange(pos)
}

func (w *World) applySegmentDelta(d protocol.SegmentDelta) {
	pos := Vec3iFromArray(d.Pos)
	s := w.segments[pos]
	var st NetState
	if s != nil {
		st = s.NetState()
	}
	ApplyNetState(&st, d.Fields)
	if int(st.Transport) >= len(transportNames) || int(st.GateKind) >= len(gateKindNames) {
		return
	}

	if s != nil && s.transport != TransportKind(st.Transport) {
		w.removeReplicated(pos)
		s = nil
	}
	if s == nil {
		if w.EntityAt(pos) != nil {
			return
		}
		s = NewSegment(pos, TransportKind(st.Transport))
		w.addSegment(s)
		s.Initialize()
		w.RequestRefresh(pos)
		w.NotifyNeighborChange(pos)
	}

	for ch, on := range st.Wires {
		s.SetWire(Channel(ch), on)
	}

	cur := GateNone
	if s.gate != nil {
		cur = s.gate.Kind
	}
	if want := GateKind(st.GateKind); want != cur {
		s.ResetGate()
		delete(w.lastResolved, pos)
		if want != GateNone {
			s.AttachGate(NewGate(want, false))
		}
	}

	if s.broadcast != st.Broadcast {
		s.broadcast = st.Broadcast
		s.scheduled = true
	}
	if s.broadcastRedstone != st.Redstone {
		s.broadcastRedstone = st.Redstone
		w.NotifyNeighborChange(s.pos)
	}
}
