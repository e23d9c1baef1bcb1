package world

import "testing"

func chainSignals(w *World, n int, ch Channel) []int {
	out := make([]int, n)
	for x := 0; x < n; x++ {
		if s := w.Segment(Vec3i{X: x}); s != nil {
			out[x] = s.SignalStrength(ch)
		}
	}
	return out
}

func registerAlways(t *testing.T, w *World) {
	t.Helper()
	if _, err := w.Registry().RegisterSegmentTrigger("ALWAYS", func(*Segment, *Parameter) bool { return true }); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestReceiveSignal_AdoptsOnlyNonDecreasingNonZero(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	mustEdit(t, w, placeOp(0, 0, 0, "ITEMS"))
	s := w.Segment(Vec3i{})

	if !s.ReceiveSignal(100, ChannelRed) || s.SignalStrength(ChannelRed) != 100 {
		t.Fatalf("expected 100 adopted, got %d", s.SignalStrength(ChannelRed))
	}
	if s.ReceiveSignal(50, ChannelRed) {
		t.Fatalf("lower strength must be rejected")
	}
	if s.ReceiveSignal(0, ChannelRed) {
		t.Fatalf("zero must be rejected")
	}
	if !s.ReceiveSignal(100, ChannelRed) {
		t.Fatalf("equal strength must be adopted")
	}
	if !s.ReceiveSignal(999, ChannelRed) || s.SignalStrength(ChannelRed) != MaxSignal {
		t.Fatalf("expected clamp to %d, got %d", MaxSignal, s.SignalStrength(ChannelRed))
	}
	if s.SignalStrength(ChannelBlue) != 0 {
		t.Fatalf("channels must be independent")
	}

	mustEdit(t, w, removeOp(0, 0, 0))
	if s.ReceiveSignal(MaxSignal, ChannelRed) {
		t.Fatalf("detached segment must refuse signals")
	}
}

func TestSignal_DecaysOnePerHop(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	buildRedChain(t, w, 5)
	mustEdit(t, w, toggleOp(0, 1, 0))

	stepN(w, 11) // first gate resolution happens at tick 10

	got := chainSignals(w, 5, ChannelRed)
	want := []int{255, 254, 253, 252, 251}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("signal chain: got %v want %v", got, want)
		}
	}
	if !w.Segment(Vec3i{}).Broadcasting(ChannelRed) {
		t.Fatalf("source should broadcast")
	}
}

func TestSignal_WithdrawsWhenSourceStops(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	buildRedChain(t, w, 5)
	mustEdit(t, w, toggleOp(0, 1, 0))
	stepN(w, 11)

	mustEdit(t, w, toggleOp(0, 1, 0))
	stepN(w, 10+5)

	for x, v := range chainSignals(w, 5, ChannelRed) {
		if v != 0 {
			t.Fatalf("segment %d still lit (%d) after withdrawal", x, v)
		}
	}
}

func TestSignal_WithdrawsAgainstUpdateOrder(t *testing.T) {
	const n = 5
	w := newTestWorld(t, WorldConfig{})
	for x := 0; x < n; x++ {
		mustEdit(t, w, placeOp(x, 0, 0, "ITEMS"), wireOp(x, 0, 0, "RED", true))
	}
	mustEdit(t, w,
		gateOp(n-1, 0, 0, "SINGLE", false),
		bindOp(n-1, 0, 0, 0, "SWITCH_ON", "SIGNAL_RED"),
		entityOp(n-1, 1, 0, EntitySwitch),
		toggleOp(n-1, 1, 0),
	)
	stepN(w, 11+n)
	if got := chainSignals(w, n, ChannelRed); got[0] != MaxSignal-(n-1) {
		t.Fatalf("far end should be lit: %v", got)
	}

	mustEdit(t, w, toggleOp(n-1, 1, 0))
	stepN(w, 10+n+5)
	for x, v := range chainSignals(w, n, ChannelRed) {
		if v != 0 {
			t.Fatalf("segment %d still lit (%d)", x, v)
		}
	}
}

func TestSignal_RemovingSourceSegmentWithdraws(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	buildRedChain(t, w, 4)
	mustEdit(t, w, toggleOp(0, 1, 0))
	stepN(w, 11)

	mustEdit(t, w, removeOp(0, 0, 0))
	stepN(w, 5)

	for x := 1; x < 4; x++ {
		if v := w.Segment(Vec3i{X: x}).SignalStrength(ChannelRed); v != 0 {
			t.Fatalf("segment %d still lit (%d)", x, v)
		}
	}
}

func TestSignal_ChannelsDoNotCrossWires(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	registerAlways(t, w)
	mustEdit(t, w,
		placeOp(0, 0, 0, "ITEMS"), wireOp(0, 0, 0, "RED", true),
		placeOp(1, 0, 0, "ITEMS"), wireOp(1, 0, 0, "BLUE", true),
		gateOp(0, 0, 0, "SINGLE", false),
		bindOp(0, 0, 0, 0, "ALWAYS", "SIGNAL_RED"),
	)
	stepN(w, 11)

	a, b := w.Segment(Vec3i{}), w.Segment(Vec3i{X: 1})
	if a.SignalStrength(ChannelRed) != MaxSignal {
		t.Fatalf("source not lit: %d", a.SignalStrength(ChannelRed))
	}
	if b.SignalStrength(ChannelRed) != 0 || b.SignalStrength(ChannelBlue) != 0 {
		t.Fatalf("signal crossed to another channel: red=%d blue=%d", b.SignalStrength(ChannelRed), b.SignalStrength(ChannelBlue))
	}
	if a.WireConnectedTo(b, ChannelRed) {
		t.Fatalf("red must not connect to a blue-only neighbour")
	}
}

func TestSignal_BlockedSideStopsPropagation(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	buildRedChain(t, w, 3)
	mustEdit(t, w, blockOp(0, 0, 0, "EAST", true), toggleOp(0, 1, 0))
	stepN(w, 11)

	if got := chainSignals(w, 3, ChannelRed); got[0] != MaxSignal || got[1] != 0 || got[2] != 0 {
		t.Fatalf("blocked side leaked: %v", got)
	}

	mustEdit(t, w, blockOp(0, 0, 0, "EAST", false))
	stepN(w, 3)
	if got := chainSignals(w, 3, ChannelRed); got[1] != MaxSignal-1 || got[2] != MaxSignal-2 {
		t.Fatalf("unblocked side did not propagate: %v", got)
	}
}

func TestConnectivity_StructureBridgesRegardlessOfWiring(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	mustEdit(t, w,
		placeOp(0, 0, 0, "ITEMS"), wireOp(0, 0, 0, "RED", true),
		placeOp(1, 0, 0, "STRUCTURE"),
	)
	a, s := w.Segment(Vec3i{}), w.Segment(Vec3i{X: 1})
	if !s.WireConnectedTo(a, ChannelRed) {
		t.Fatalf("unwired structural segment should report connected to a wired neighbour")
	}
	if !a.WireConnectedTo(s, ChannelRed) {
		t.Fatalf("structural bridge should be symmetric")
	}
}

func TestConnectivity_MismatchedTransportsJoinThroughStructure(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	registerAlways(t, w)
	mustEdit(t, w,
		placeOp(0, 0, 0, "ITEMS"), wireOp(0, 0, 0, "RED", true),
		placeOp(1, 0, 0, "FLUIDS"), wireOp(1, 0, 0, "RED", true),
	)
	if w.Segment(Vec3i{}).WireConnectedTo(w.Segment(Vec3i{X: 1}), ChannelRed) {
		t.Fatalf("items and fluids segments must not join")
	}

	// items -> structure -> fluids
	mustEdit(t, w,
		removeOp(1, 0, 0),
		placeOp(1, 0, 0, "STRUCTURE"), wireOp(1, 0, 0, "RED", true),
		placeOp(2, 0, 0, "FLUIDS"), wireOp(2, 0, 0, "RED", true),
		gateOp(0, 0, 0, "SINGLE", false),
		bindOp(0, 0, 0, 0, "ALWAYS", "SIGNAL_RED"),
	)
	stepN(w, 11)
	if got := chainSignals(w, 3, ChannelRed); got[0] != 255 || got[1] != 254 || got[2] != 253 {
		t.Fatalf("structure bridge did not carry signal: %v", got)
	}
}
