package world

import (
	"testing"

	"signalgrid.ai/internal/protocol"
)

func scriptedEdits(tick uint64) []EditEnvelope {
	var ops []protocol.EditOp
	switch tick {
	case 0:
		for x := 0; x < 6; x++ {
			ops = append(ops, placeOp(x, 0, 0, "ITEMS"), wireOp(x, 0, 0, "RED", true), wireOp(x, 0, 0, "GREEN", true))
		}
		ops = append(ops,
			gateOp(0, 0, 0, "AND_2", true),
			bindOp(0, 0, 0, 0, "SWITCH_ON", "SIGNAL_RED"),
			bindOp(0, 0, 0, 1, "SWITCH_ON", "ENERGY_PULSER"),
			entityOp(0, 1, 0, EntitySwitch),
			entityOp(0, -1, 0, EntityMachine),
			gateOp(5, 0, 0, "OR_2", false),
			bindOp(5, 0, 0, 0, "SIGNAL_RED_ACTIVE", "SIGNAL_GREEN"),
			bindOp(5, 0, 0, 1, "SIGNAL_RED_ACTIVE", "REDSTONE_OUTPUT"),
			entityOp(6, 0, 0, EntityMachine),
		)
	case 3:
		ops = append(ops, toggleOp(0, 1, 0))
	case 27:
		ops = append(ops, toggleOp(0, 1, 0), blockOp(2, 0, 0, "EAST", true))
	case 33:
		ops = append(ops, removeOp(3, 0, 0))
	}
	if len(ops) == 0 {
		return nil
	}
	return []EditEnvelope{{ClientID: "C1", Edit: protocol.EditMsg{Type: protocol.TypeEdit, Tick: tick, Ops: ops}}}
}

func TestDeterminism_FixedEditsSameDigest(t *testing.T) {
	w1 := newTestWorld(t, WorldConfig{ID: "test"})
	w2 := newTestWorld(t, WorldConfig{ID: "test"})

	seen := map[string]bool{}
	for tick := uint64(0); tick < 60; tick++ {
		_, d1 := w1.StepOnce(nil, nil, scriptedEdits(tick))
		_, d2 := w2.StepOnce(nil, nil, scriptedEdits(tick))
		if d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", tick, d1, d2)
		}
		seen[d1] = true
	}
	if len(seen) < 2 {
		t.Fatalf("digest never changed")
	}
	m := w1.EntityOf(Vec3i{X: 6}).(*Machine)
	if m.Activations != 0 {
		t.Fatalf("redstone output must not dispatch")
	}
}

func TestDeterminism_DigestCoversSignalState(t *testing.T) {
	w1 := newTestWorld(t, WorldConfig{ID: "test"})
	w2 := newTestWorld(t, WorldConfig{ID: "test"})
	buildRedChain(t, w1, 3)
	buildRedChain(t, w2, 3)
	mustEdit(t, w1, toggleOp(0, 1, 0))

	d1 := stepN(w1, 11)
	d2 := stepN(w2, 11)
	if d1 == d2 {
		t.Fatalf("lit and unlit worlds share a digest")
	}
}
