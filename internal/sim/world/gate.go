package world

type GateKind uint8

const (
	GateNone GateKind = iota
	GateSingle
	GateAND2
	GateOR2
	GateAND3
	GateOR3
	GateAND4
	GateOR4
)

var gateKindNames = [...]string{"NONE", "SINGLE", "AND_2", "OR_2", "AND_3", "OR_3", "AND_4", "OR_4"}

func (k GateKind) String() string {
	if int(k) >= len(gateKindNames) {
		return "UNKNOWN"
	}
	return gateKindNames[k]
}

func ParseGateKind(s string) (GateKind, bool) {
	for i, n := range gateKindNames {
		if n == s {
			return GateKind(i), true
		}
	}
	return 0, false
}

type Conditional uint8

const (
	ConditionalOR Conditional = iota
	ConditionalAND
)

func (k GateKind) Conditional() Conditional {
	switch k {
	case GateAND2, GateAND3, GateAND4:
		return ConditionalAND
	default:
		return ConditionalOR
	}
}

// SlotCount is how many of the eight slots the tier can bind.
func (k GateKind) SlotCount() int {
	switch k {
	case GateNone:
		return 0
	case GateSingle:
		return 1
	case GateAND2, GateOR2:
		return 2
	case GateAND3, GateOR3:
		return 4
	default:
		return SlotCount
	}
}

// Gate is the rule unit attached to a segment. An autarchic gate can drive an
// energy pulser into adjacent machines.
type Gate struct {
	Kind      GateKind
	Autarchic bool

	pulsing bool
	pulse   TimeTracker
}

func NewGate(kind GateKind, autarchic bool) *Gate {
	return &Gate{Kind: kind, Autarchic: autarchic}
}

func (g *Gate) Conditional() Conditional { return g.Kind.Conditional() }

func (g *Gate) Pulsing() bool { return g.pulsing }

// StartResolution switches the pulser off; it stays off unless re-activated this round.
func (g *Gate) StartResolution() {
	g.pulsing = false
}

// ResolveAction lets the gate consume actions it implements itself.
func (g *Gate) ResolveAction(a *Action) bool {
	if g.Autarchic && a.Kind == ActionPulser {
		g.pulsing = true
		return true
	}
	return false
}

// Update delivers pulser energy on its own cadence.
func (g *Gate) Update(s *Segment) {
	if !g.pulsing || s.container == nil {
		return
	}
	cfg := s.container.GateSettings()
	if !g.pulse.MarkTimeIfDelay(s.container.Time(), cfg.PulseEvery) {
		return
	}
	for _, d := range Dirs {
		if p, ok := s.neighbor(d).(Pulsable); ok {
			p.ReceivePulse(cfg.PulseEnergy)
		}
	}
}
