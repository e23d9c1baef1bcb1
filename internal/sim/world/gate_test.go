package world

import (
	"testing"

	"signalgrid.ai/internal/protocol"
)

func TestGateKind_ConditionalAndSlots(t *testing.T) {
	cases := []struct {
		kind  GateKind
		cond  Conditional
		slots int
	}{
		{GateSingle, ConditionalOR, 1},
		{GateAND2, ConditionalAND, 2},
		{GateOR2, ConditionalOR, 2},
		{GateAND3, ConditionalAND, 4},
		{GateOR3, ConditionalOR, 4},
		{GateAND4, ConditionalAND, 8},
		{GateOR4, ConditionalOR, 8},
	}
	for _, tc := range cases {
		if got := tc.kind.Conditional(); got != tc.cond {
			t.Fatalf("%s conditional: got %v want %v", tc.kind, got, tc.cond)
		}
		if got := tc.kind.SlotCount(); got != tc.slots {
			t.Fatalf("%s slots: got %d want %d", tc.kind, got, tc.slots)
		}
		parsed, ok := ParseGateKind(tc.kind.String())
		if !ok || parsed != tc.kind {
			t.Fatalf("parse %s: got %v %v", tc.kind, parsed, ok)
		}
	}
}

// conditionalFixture is a gate whose two slots both drive SIGNAL_RED from two
// independently controlled triggers.
func conditionalFixture(t *testing.T, kind string) (*World, *Segment, *bool, *bool) {
	t.Helper()
	w := newTestWorld(t, WorldConfig{})
	a, b := new(bool), new(bool)
	if _, err := w.Registry().RegisterSegmentTrigger("COND_A", func(*Segment, *Parameter) bool { return *a }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := w.Registry().RegisterSegmentTrigger("COND_B", func(*Segment, *Parameter) bool { return *b }); err != nil {
		t.Fatalf("register: %v", err)
	}
	mustEdit(t, w,
		placeOp(0, 0, 0, "ITEMS"), wireOp(0, 0, 0, "RED", true),
		gateOp(0, 0, 0, kind, false),
		bindOp(0, 0, 0, 0, "COND_A", "SIGNAL_RED"),
		bindOp(0, 0, 0, 1, "COND_B", "SIGNAL_RED"),
	)
	return w, w.Segment(Vec3i{}), a, b
}

func TestResolve_ANDRequiresEverySlot(t *testing.T) {
	_, s, a, b := conditionalFixture(t, "AND_2")

	*a, *b = true, false
	s.resolveActions()
	if s.Broadcasting(ChannelRed) {
		t.Fatalf("AND gate fired with one of two triggers")
	}

	*a, *b = true, true
	s.resolveActions()
	if !s.Broadcasting(ChannelRed) || s.SignalStrength(ChannelRed) != MaxSignal {
		t.Fatalf("AND gate should fire with both triggers")
	}
	if !s.IsGateActive() {
		t.Fatalf("gate should report active")
	}
}

func TestResolve_ORNeedsAnySlot(t *testing.T) {
	_, s, a, b := conditionalFixture(t, "OR_2")

	*a, *b = false, true
	s.resolveActions()
	if !s.Broadcasting(ChannelRed) {
		t.Fatalf("OR gate should fire with one trigger")
	}

	*a, *b = false, false
	s.resolveActions()
	if s.Broadcasting(ChannelRed) || s.IsGateActive() {
		t.Fatalf("OR gate should be idle with no triggers")
	}
}

func TestResolve_EmptyAndHalfBoundSlotsAreSkipped(t *testing.T) {
	w, s, a, _ := conditionalFixture(t, "AND_2")
	*a = true
	mustEdit(t, w, protocol.EditOp{ID: "c", Op: protocol.OpClearSlot, Pos: [3]int{0, 0, 0}, Slot: 1})
	s.resolveActions()
	if !s.Broadcasting(ChannelRed) {
		t.Fatalf("cleared slot must not veto the AND")
	}

	// Trigger without action contributes nothing.
	mustEdit(t, w, bindOp(0, 0, 0, 1, "COND_B", ""))
	s.resolveActions()
	if !s.Broadcasting(ChannelRed) {
		t.Fatalf("half-bound slot must be ignored")
	}
}

func TestResetGate_ClearsEverythingAndIsIdempotent(t *testing.T) {
	w, s, a, b := conditionalFixture(t, "OR_2")
	*a, *b = true, true
	s.resolveActions()
	if !s.IsGateActive() {
		t.Fatalf("precondition: gate active")
	}

	reset := protocol.EditOp{ID: "r", Op: protocol.OpResetGate, Pos: [3]int{0, 0, 0}}
	mustEdit(t, w, reset)
	if s.HasGate() || s.IsGateActive() {
		t.Fatalf("reset left gate state behind")
	}
	for i := 0; i < SlotCount; i++ {
		if !s.Slot(i).Empty() {
			t.Fatalf("slot %d not cleared", i)
		}
	}
	mustEdit(t, w, reset)

	// Signal held only by the old broadcast drains on the next update.
	stepN(w, 1)
	if s.SignalStrength(ChannelRed) != 0 {
		t.Fatalf("signal should drain after reset, got %d", s.SignalStrength(ChannelRed))
	}

	mustEdit(t, w, placeOp(5, 0, 0, "ITEMS"))
	w.Segment(Vec3i{X: 5}).ResetGate()
}

func TestPulser_AutarchicGateFeedsMachine(t *testing.T) {
	w := newTestWorld(t, WorldConfig{PulseEveryTicks: 10, PulseEnergy: 3})
	registerAlways(t, w)
	mustEdit(t, w,
		placeOp(0, 0, 0, "ITEMS"),
		gateOp(0, 0, 0, "SINGLE", true),
		bindOp(0, 0, 0, 0, "ALWAYS", "ENERGY_PULSER"),
		entityOp(1, 0, 0, EntityMachine),
	)
	m := w.EntityOf(Vec3i{X: 1}).(*Machine)

	stepN(w, 11)
	if !w.Segment(Vec3i{}).Gate().Pulsing() {
		t.Fatalf("pulser should be on after resolution")
	}
	if m.Energy != 3 {
		t.Fatalf("energy after first pulse: got %d want 3", m.Energy)
	}
	stepN(w, 10)
	if m.Energy != 6 {
		t.Fatalf("energy after second pulse: got %d want 6", m.Energy)
	}
	if m.Activations != 0 {
		t.Fatalf("pulser must be consumed by the gate, not dispatched")
	}
}

func TestPulser_RequiresAutarchicGate(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	mustEdit(t, w, placeOp(0, 0, 0, "ITEMS"), gateOp(0, 0, 0, "SINGLE", false))

	res := tryEdit(w, bindOp(0, 0, 0, 0, "SWITCH_ON", "ENERGY_PULSER"))
	if res[0].OK || res[0].Code != protocol.ErrInvalidTarget {
		t.Fatalf("expected %s, got %+v", protocol.ErrInvalidTarget, res[0])
	}
}

func TestVariant_SeesResolvedActions(t *testing.T) {
	_, s, a, b := conditionalFixture(t, "OR_2")
	var seen map[ActionID]bool
	s.SetVariant(variantFunc(func(_ *Segment, resolved map[ActionID]bool) { seen = resolved }))

	*a, *b = true, false
	s.resolveActions()
	if len(seen) != 1 {
		t.Fatalf("expected one action id, got %v", seen)
	}
	for _, on := range seen {
		if !on {
			t.Fatalf("expected action resolved true")
		}
	}
}

type variantFunc func(*Segment, map[ActionID]bool)

func (f variantFunc) ActionsActivated(s *Segment, resolved map[ActionID]bool) { f(s, resolved) }

func TestTimeTracker_MarkTimeIfDelay(t *testing.T) {
	var tr TimeTracker
	if tr.MarkTimeIfDelay(5, 10) {
		t.Fatalf("fired before delay")
	}
	if !tr.MarkTimeIfDelay(10, 10) {
		t.Fatalf("should fire at delay")
	}
	if tr.MarkTimeIfDelay(15, 10) {
		t.Fatalf("fired twice within delay")
	}
	if !tr.MarkTimeIfDelay(20, 10) {
		t.Fatalf("should fire again")
	}
	// Clock moved backwards: re-arm without firing.
	if tr.MarkTimeIfDelay(3, 10) {
		t.Fatalf("fired on backwards clock")
	}
	if tr.LastMark() != 3 {
		t.Fatalf("last mark: got %d want 3", tr.LastMark())
	}
	if !tr.MarkTimeIfDelay(13, 10) {
		t.Fatalf("should fire after re-arm")
	}
}
