package world

import (
	"testing"

	"signalgrid.ai/internal/protocol"
	"signalgrid.ai/internal/sim/catalogs"
)

func newTestWorld(t *testing.T, cfg WorldConfig) *World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := New(cfg, cats)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

// mustEdit applies ops at the current tick and fails on any rejected op.
func mustEdit(t *testing.T, w *World, ops ...protocol.EditOp) {
	t.Helper()
	for _, r := range tryEdit(w, ops...) {
		if !r.OK {
			t.Fatalf("op %s rejected: %s %s", r.ID, r.Code, r.Message)
		}
	}
}

func tryEdit(w *World, ops ...protocol.EditOp) []protocol.OpResult {
	w.now = w.CurrentTick()
	return w.applyEdit(EditEnvelope{ClientID: "T1", Edit: protocol.EditMsg{Type: protocol.TypeEdit, Ops: ops}}, w.now)
}

func stepN(w *World, n int) string {
	var digest string
	for i := 0; i < n; i++ {
		_, digest = w.StepOnce(nil, nil, nil)
	}
	return digest
}

func placeOp(x, y, z int, transport string) protocol.EditOp {
	return protocol.EditOp{ID: "place", Op: protocol.OpPlaceSegment, Pos: [3]int{x, y, z}, Transport: transport}
}

func wireOp(x, y, z int, ch string, on bool) protocol.EditOp {
	return protocol.EditOp{ID: "wire", Op: protocol.OpSetWire, Pos: [3]int{x, y, z}, Channel: ch, On: on}
}

func gateOp(x, y, z int, kind string, autarchic bool) protocol.EditOp {
	return protocol.EditOp{ID: "gate", Op: protocol.OpAttachGate, Pos: [3]int{x, y, z}, GateKind: kind, Autarchic: autarchic}
}

func bindOp(x, y, z, slot int, trigger, action string) protocol.EditOp {
	return protocol.EditOp{ID: "bind", Op: protocol.OpBindSlot, Pos: [3]int{x, y, z}, Slot: slot, Trigger: trigger, Action: action}
}

func entityOp(x, y, z int, kind string) protocol.EditOp {
	return protocol.EditOp{ID: "entity", Op: protocol.OpPlaceEntity, Pos: [3]int{x, y, z}, Entity: kind}
}

func toggleOp(x, y, z int) protocol.EditOp {
	return protocol.EditOp{ID: "toggle", Op: protocol.OpToggleSwitch, Pos: [3]int{x, y, z}}
}

// buildRedChain places n ITEMS segments along +X wired RED, with a SINGLE gate on the
// first one emitting RED while the switch above it is on.
func buildRedChain(t *testing.T, w *World, n int) {
	t.Helper()
	for x := 0; x < n; x++ {
		mustEdit(t, w, placeOp(x, 0, 0, "ITEMS"), wireOp(x, 0, 0, "RED", true))
	}
	mustEdit(t, w,
		gateOp(0, 0, 0, "SINGLE", false),
		bindOp(0, 0, 0, 0, "SWITCH_ON", "SIGNAL_RED"),
		entityOp(0, 1, 0, EntitySwitch),
	)
}

type recordingDispatcher struct {
	events []DispatchEvent
}

func (d *recordingDispatcher) Dispatch(ev DispatchEvent) { d.events = append(d.events, ev) }

type recordingAudit struct {
	entries []AuditEntry
}

func (a *recordingAudit) WriteAudit(e AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

func (a *recordingAudit) actions() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func removeOp(x, y, z int) protocol.EditOp {
	return protocol.EditOp{ID: "remove", Op: protocol.OpRemoveSegment, Pos: [3]int{x, y, z}}
}

func blockOp(x, y, z int, dir string, on bool) protocol.EditOp {
	return protocol.EditOp{ID: "block", Op: protocol.OpSetSideBlocked, Pos: [3]int{x, y, z}, Dir: dir, On: on}
}

func resetOp(x, y, z int) protocol.EditOp {
	return protocol.EditOp{ID: "reset", Op: protocol.OpResetGate, Pos: [3]int{x, y, z}}
}
