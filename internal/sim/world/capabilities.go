package world

// Entity is anything occupying a grid position: segments and the devices around them.
type Entity interface {
	Pos() Vec3i
}

// Receptor is an entity that reacts to dispatched gate actions.
type Receptor interface {
	Entity
	ActionActivated(a *Action)
}

// StateReporter answers generic trigger probes.
type StateReporter interface {
	Entity
	ReportsState(state string, p *Parameter) bool
}

// NeighborListener is told when an adjacent position changed its outputs.
type NeighborListener interface {
	Entity
	NeighborChanged(from Vec3i)
}

// Pulsable receives energy from an autarchic gate's pulser.
type Pulsable interface {
	Entity
	ReceivePulse(energy int)
}

type TriggerID uint16

type ActionID uint16

// Parameter is the optional item filter bound next to a trigger.
type Parameter struct {
	Item  string
	Count int
}

type Trigger interface {
	ID() TriggerID
	Name() string
}

// SegmentTrigger is evaluated against the segment that owns the gate.
type SegmentTrigger interface {
	Trigger
	ActiveOn(s *Segment, p *Parameter) bool
}

// EntityTrigger is evaluated against each adjacent non-segment entity; any match activates it.
type EntityTrigger interface {
	Trigger
	ActiveFor(e Entity, p *Parameter) bool
}

type ActionKind uint8

const (
	ActionDispatch ActionKind = iota
	ActionRedstoneOutput
	ActionSignalOutput
	ActionPulser
)

var actionKindNames = [...]string{"DISPATCH", "REDSTONE_OUTPUT", "SIGNAL_OUTPUT", "PULSER"}

func (k ActionKind) String() string {
	if int(k) >= len(actionKindNames) {
		return "UNKNOWN"
	}
	return actionKindNames[k]
}

func parseActionKind(s string) (ActionKind, bool) {
	for i, n := range actionKindNames {
		if n == s {
			return ActionKind(i), true
		}
	}
	return 0, false
}

type Action struct {
	ID      ActionID
	Name    string
	Kind    ActionKind
	Channel Channel
}

// Effects is what an activated action does to its own segment.
type Effects struct {
	Redstone bool
	Signal   [NumChannels]bool
	// Dispatch means the action is handed to adjacent receptors.
	Dispatch bool
}

func (a *Action) Apply() Effects {
	var fx Effects
	switch a.Kind {
	case ActionRedstoneOutput:
		fx.Redstone = true
	case ActionSignalOutput:
		fx.Signal[a.Channel] = true
	default:
		fx.Dispatch = true
	}
	return fx
}

type signalTrigger struct {
	id      TriggerID
	name    string
	channel Channel
	active  bool
}

func (t *signalTrigger) ID() TriggerID { return t.id }
func (t *signalTrigger) Name() string  { return t.name }

func (t *signalTrigger) ActiveOn(s *Segment, _ *Parameter) bool {
	return (s.SignalStrength(t.channel) > 0) == t.active
}

type stateTrigger struct {
	id    TriggerID
	name  string
	state string
}

func (t *stateTrigger) ID() TriggerID { return t.id }
func (t *stateTrigger) Name() string  { return t.name }

func (t *stateTrigger) ActiveFor(e Entity, p *Parameter) bool {
	r, ok := e.(StateReporter)
	return ok && r.ReportsState(t.state, p)
}

type segmentTriggerFunc struct {
	id   TriggerID
	name string
	f    func(*Segment, *Parameter) bool
}

func (t *segmentTriggerFunc) ID() TriggerID                          { return t.id }
func (t *segmentTriggerFunc) Name() string                           { return t.name }
func (t *segmentTriggerFunc) ActiveOn(s *Segment, p *Parameter) bool { return t.f(s, p) }

type entityTriggerFunc struct {
	id   TriggerID
	name string
	f    func(Entity, *Parameter) bool
}

func (t *entityTriggerFunc) ID() TriggerID                         { return t.id }
func (t *entityTriggerFunc) Name() string                          { return t.name }
func (t *entityTriggerFunc) ActiveFor(e Entity, p *Parameter) bool { return t.f(e, p) }
