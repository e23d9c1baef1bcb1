package world

import (
	"encoding/json"
	"testing"

	"signalgrid.ai/internal/protocol"
)

func TestNetFields_StableOrder(t *testing.T) {
	names := NetFieldNames()
	if names[0] != "transport" || names[1] != "wire_set[0]" || names[4] != "wire_set[3]" {
		t.Fatalf("unexpected field order: %v", names)
	}
	want := 1 + NumChannels*3 + 3
	if len(names) != want {
		t.Fatalf("field count: got %d want %d", len(names), want)
	}
}

func TestDiffNetState(t *testing.T) {
	prev := NetState{Transport: uint8(TransportFluids)}
	prev.Wires[ChannelRed] = true

	all := DiffNetState(nil, &prev)
	if len(all) != len(NetFieldNames()) {
		t.Fatalf("nil prev should yield every field, got %d", len(all))
	}

	cur := prev
	cur.Broadcast[ChannelGreen] = true
	cur.GateActive = true
	changes := DiffNetState(&prev, &cur)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", changes)
	}
	if changes[0].Field != "broadcast_signal[2]" || changes[0].Value != 1 {
		t.Fatalf("unexpected first change: %+v", changes[0])
	}
	if changes[1].Field != "gate_active" || changes[1].Value != 1 {
		t.Fatalf("unexpected second change: %+v", changes[1])
	}

	applied := prev
	ApplyNetState(&applied, changes)
	if applied != cur {
		t.Fatalf("apply mismatch: %+v vs %+v", applied, cur)
	}
}

func readState(t *testing.T, ch chan []byte) protocol.StateMsg {
	t.Helper()
	for {
		select {
		case b := <-ch:
			base, err := protocol.DecodeBase(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if base.Type != protocol.TypeState {
				continue
			}
			var msg protocol.StateMsg
			if err := json.Unmarshal(b, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			return msg
		default:
			t.Fatalf("no STATE message queued")
		}
	}
}

func fieldValue(d protocol.SegmentDelta, name string) (int, bool) {
	for _, f := range d.Fields {
		if f.Field == name {
			return f.Value, true
		}
	}
	return 0, false
}

func TestReplication_FullThenDeltas(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	out := make(chan []byte, 16)
	resp := make(chan JoinResponse, 1)

	w.StepOnce([]JoinRequest{{Name: "obs", Role: protocol.RoleEditor, Out: out, Resp: resp}}, nil, nil)
	jr := <-resp
	if jr.ClientID == "" || jr.Welcome.WorldParams.SlotCount != SlotCount || len(jr.Catalogs) != 2 {
		t.Fatalf("unexpected join response: %+v", jr)
	}
	full := readState(t, out)
	if !full.Full || len(full.Segments) != 0 {
		t.Fatalf("expected empty full state, got %+v", full)
	}

	edit := func(ops ...protocol.EditOp) {
		w.StepOnce(nil, nil, []EditEnvelope{{ClientID: jr.ClientID, Edit: protocol.EditMsg{Type: protocol.TypeEdit, Ops: ops}}})
	}

	edit(placeOp(0, 0, 0, "ITEMS"), wireOp(0, 0, 0, "RED", true))
	msg := readState(t, out)
	if msg.Full || len(msg.Segments) != 1 {
		t.Fatalf("expected one segment delta, got %+v", msg)
	}
	if v, ok := fieldValue(msg.Segments[0], "wire_set[0]"); !ok || v != 1 {
		t.Fatalf("wire_set[0] missing from first delta: %+v", msg.Segments[0])
	}

	edit(wireOp(0, 0, 0, "BLUE", true))
	msg = readState(t, out)
	if len(msg.Segments) != 1 || len(msg.Segments[0].Fields) != 1 || msg.Segments[0].Fields[0].Field != "wire_set[1]" {
		t.Fatalf("expected only wire_set[1], got %+v", msg)
	}

	edit(removeOp(0, 0, 0))
	msg = readState(t, out)
	if len(msg.Removed) != 1 || msg.Removed[0] != [3]int{0, 0, 0} {
		t.Fatalf("expected removal, got %+v", msg)
	}
}

func TestReplication_LateJoinerGetsCurrentView(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	buildRedChain(t, w, 3)
	mustEdit(t, w, toggleOp(0, 1, 0))
	stepN(w, 11)

	out := make(chan []byte, 4)
	w.StepOnce([]JoinRequest{{Name: "late", Out: out}}, nil, nil)
	full := readState(t, out)
	if !full.Full || len(full.Segments) != 3 {
		t.Fatalf("expected 3 segments in full state, got %+v", full)
	}
	for _, d := range full.Segments {
		if v, _ := fieldValue(d, "signal_lit[0]"); v != 1 {
			t.Fatalf("segment %v should be lit in full state", d.Pos)
		}
	}
	if v, _ := fieldValue(full.Segments[0], "broadcast_signal[0]"); v != 1 {
		t.Fatalf("source should broadcast in full state")
	}
}

func TestClientRole_MirrorsOutputsWithoutResolving(t *testing.T) {
	w := newTestWorld(t, WorldConfig{Role: RoleClient})
	buildRedChain(t, w, 3)
	mustEdit(t, w, toggleOp(0, 1, 0))
	stepN(w, 11)
	if w.Segment(Vec3i{}).Broadcasting(ChannelRed) {
		t.Fatalf("client must not resolve gates")
	}

	w.ApplyReplicatedState(protocol.StateMsg{Segments: []protocol.SegmentDelta{{
		Pos:    [3]int{0, 0, 0},
		Fields: []protocol.FieldChange{{Field: "broadcast_signal[0]", Value: 1}},
	}}})
	stepN(w, 1)
	if got := chainSignals(w, 3, ChannelRed); got[0] != 255 || got[1] != 254 || got[2] != 253 {
		t.Fatalf("client propagation: %v", got)
	}

	w.ApplyReplicatedState(protocol.StateMsg{Segments: []protocol.SegmentDelta{{
		Pos:    [3]int{0, 0, 0},
		Fields: []protocol.FieldChange{{Field: "broadcast_signal[0]", Value: 0}},
	}}})
	stepN(w, 4)
	if got := chainSignals(w, 3, ChannelRed); got[0] != 0 || got[1] != 0 || got[2] != 0 {
		t.Fatalf("client withdrawal: %v", got)
	}
}

func TestClientRole_MirrorsTopologyFromFullAndRemoved(t *testing.T) {
	auth := newTestWorld(t, WorldConfig{})
	buildRedChain(t, auth, 3)
	mustEdit(t, auth, toggleOp(0, 1, 0))
	stepN(auth, 11)
	out := make(chan []byte, 4)
	auth.StepOnce([]JoinRequest{{Name: "mirror", Out: out}}, nil, nil)
	full := readState(t, out)

	client := newTestWorld(t, WorldConfig{Role: RoleClient})
	mustEdit(t, client, placeOp(5, 0, 0, "FLUIDS"))
	client.ApplyReplicatedState(full)
	stepN(client, 4)

	if client.Segment(Vec3i{X: 5}) != nil {
		t.Fatalf("segment missing from full state should be dropped")
	}
	src := client.Segment(Vec3i{})
	if src == nil || src.gate == nil || src.gate.Kind != GateSingle || !src.IsWired(ChannelRed) {
		t.Fatalf("source not mirrored: %+v", src)
	}
	if got := chainSignals(client, 3, ChannelRed); got[0] != 255 || got[1] != 254 || got[2] != 253 {
		t.Fatalf("mirrored propagation: %v", got)
	}

	client.ApplyReplicatedState(protocol.StateMsg{Removed: [][3]int{{1, 0, 0}}})
	stepN(client, 4)
	if client.Segment(Vec3i{X: 1}) != nil {
		t.Fatalf("removed segment still present")
	}
	if got := chainSignals(client, 3, ChannelRed); got[0] != 255 || got[2] != 0 {
		t.Fatalf("after removal: %v", got)
	}
}

func TestClientRole_IgnoresOutOfRangeFields(t *testing.T) {
	client := newTestWorld(t, WorldConfig{Role: RoleClient})
	client.ApplyReplicatedState(protocol.StateMsg{Segments: []protocol.SegmentDelta{
		{Pos: [3]int{0, 0, 0}, Fields: []protocol.FieldChange{{Field: "transport", Value: 9}}},
		{Pos: [3]int{1, 0, 0}, Fields: []protocol.FieldChange{{Field: "gate_kind", Value: 42}}},
		{Pos: [3]int{2, 0, 0}, Fields: []protocol.FieldChange{{Field: "transport", Value: int(TransportPower)}}},
	}})
	if client.Segment(Vec3i{}) != nil || client.Segment(Vec3i{X: 1}) != nil {
		t.Fatalf("invalid deltas must not create segments")
	}
	if s := client.Segment(Vec3i{X: 2}); s == nil || s.Transport() != TransportPower {
		t.Fatalf("valid delta should create a POWER segment, got %+v", s)
	}
}
