package world

// Slot is one trigger/parameter/action binding. Nil fields are empty bindings.
type Slot struct {
	Trigger Trigger
	Param   *Parameter
	Action  *Action
}

func (sl Slot) Empty() bool { return sl.Trigger == nil && sl.Action == nil && sl.Param == nil }

// Variant specializes a segment's behaviour after each gate resolution.
type Variant interface {
	ActionsActivated(s *Segment, resolved map[ActionID]bool)
}

// Segment is one conduit block: it carries a transport kind, up to four wire channels
// and optionally a gate.
type Segment struct {
	pos       Vec3i
	transport TransportKind
	container Container

	signal            [NumChannels]int
	wires             [NumChannels]bool
	broadcast         [NumChannels]bool
	broadcastRedstone bool
	blocked           [6]bool

	gate  *Gate
	slots [SlotCount]Slot

	scheduled   bool
	initialized bool
	removed     bool

	tracker TimeTracker
	variant Variant
}

func NewSegment(pos Vec3i, kind TransportKind) *Segment {
	return &Segment{pos: pos, transport: kind}
}

func (s *Segment) Pos() Vec3i               { return s.pos }
func (s *Segment) Transport() TransportKind { return s.transport }

// Attach binds the segment to its host. It does not initialize it.
func (s *Segment) Attach(c Container) {
	s.container = c
	s.removed = false
}

// Detach marks the segment removed; it will refuse signals from then on.
func (s *Segment) Detach() {
	s.removed = true
	s.container = nil
}

// Initialize runs the first signal evaluation once the segment is in place.
func (s *Segment) Initialize() {
	if s.initialized {
		return
	}
	s.initialized = true
	s.updateSignalState()
}

// FullyDefined is true for a live, attached and initialized segment. Safe on nil.
func (s *Segment) FullyDefined() bool {
	return s != nil && s.initialized && !s.removed && s.container != nil
}

func (s *Segment) SetVariant(v Variant) { s.variant = v }

func (s *Segment) SignalStrength(ch Channel) int { return s.signal[ch] }
func (s *Segment) IsWired(ch Channel) bool       { return s.wires[ch] }
func (s *Segment) Broadcasting(ch Channel) bool  { return s.broadcast[ch] }
func (s *Segment) BroadcastingRedstone() bool    { return s.broadcastRedstone }
func (s *Segment) SideBlocked(d Dir) bool        { return s.blocked[d] }
func (s *Segment) Scheduled() bool               { return s.scheduled }
func (s *Segment) Gate() *Gate                   { return s.gate }
func (s *Segment) HasGate() bool                 { return s.gate != nil }

func (s *Segment) IsWiredAny() bool {
	for _, w := range s.wires {
		if w {
			return true
		}
	}
	return false
}

// IsGateActive is true while any output of the gate is on.
func (s *Segment) IsGateActive() bool {
	if s.broadcastRedstone {
		return true
	}
	for _, b := range s.broadcast {
		if b {
			return true
		}
	}
	return false
}

func (s *Segment) Slot(i int) Slot {
	if i < 0 || i >= SlotCount {
		return Slot{}
	}
	return s.slots[i]
}

func (s *Segment) SetSlot(i int, sl Slot) bool {
	if i < 0 || i >= SlotCount {
		return false
	}
	s.slots[i] = sl
	return true
}

func (s *Segment) SetTrigger(i int, t Trigger) bool {
	if i < 0 || i >= SlotCount {
		return false
	}
	s.slots[i].Trigger = t
	return true
}

func (s *Segment) SetTriggerParameter(i int, p *Parameter) bool {
	if i < 0 || i >= SlotCount {
		return false
	}
	s.slots[i].Param = p
	return true
}

func (s *Segment) SetAction(i int, a *Action) bool {
	if i < 0 || i >= SlotCount {
		return false
	}
	s.slots[i].Action = a
	return true
}

// ScheduleRefresh asks the segment to re-evaluate its signals on its next update.
func (s *Segment) ScheduleRefresh() { s.scheduled = true }

// SetWire installs or removes a wire. Removing it drops the channel's strength and
// makes the neighbours re-check where their signal comes from.
func (s *Segment) SetWire(ch Channel, on bool) {
	if s.wires[ch] == on {
		return
	}
	s.wires[ch] = on
	s.requestRefresh()
	if on {
		if s.FullyDefined() {
			s.updateSignalStateForChannel(ch)
		}
		return
	}
	s.signal[ch] = 0
	s.scheduleNeighbors()
}

func (s *Segment) SetSideBlocked(d Dir, on bool) {
	if s.blocked[d] == on {
		return
	}
	s.blocked[d] = on
	s.requestRefresh()
	if s.FullyDefined() {
		s.updateSignalState()
	}
	s.scheduleNeighbors()
}

// AttachGate installs g. A segment holds at most one gate.
func (s *Segment) AttachGate(g *Gate) bool {
	if s.gate != nil || g == nil {
		return false
	}
	s.gate = g
	s.requestRefresh()
	return true
}

// ResetGate drops the gate and every binding and output. Safe without a gate.
func (s *Segment) ResetGate() {
	hadSignal := false
	for _, b := range s.broadcast {
		hadSignal = hadSignal || b
	}
	hadRedstone := s.broadcastRedstone

	s.gate = nil
	s.slots = [SlotCount]Slot{}
	s.broadcast = [NumChannels]bool{}
	s.broadcastRedstone = false
	s.requestRefresh()

	if hadSignal {
		s.scheduled = true
	}
	if hadRedstone && s.container != nil {
		s.container.NotifyNeighborChange(s.pos)
	}
}

// Offers reports whether a can be bound on this segment's gate.
func (s *Segment) Offers(a *Action) bool {
	if a == nil {
		return false
	}
	switch a.Kind {
	case ActionSignalOutput:
		return s.wires[a.Channel]
	case ActionPulser:
		return s.gate != nil && s.gate.Autarchic
	default:
		return true
	}
}

// OnNeighborChange re-evaluates signals after something adjacent changed.
func (s *Segment) OnNeighborChange() {
	if !s.FullyDefined() {
		return
	}
	s.updateSignalState()
}

// PoweringTo is true when the segment emits redstone toward d and the block there
// is not a segment joined to this one.
func (s *Segment) PoweringTo(d Dir) bool {
	if !s.broadcastRedstone {
		return false
	}
	if n := s.neighborSegment(d); n != nil && s.container != nil && s.container.PhysicallyConnected(s, n) {
		return false
	}
	return true
}

func (s *Segment) neighbor(d Dir) Entity {
	if s.container == nil {
		return nil
	}
	return s.container.EntityAt(s.pos.Add(d.Offset()))
}

func (s *Segment) neighborSegment(d Dir) *Segment {
	n, _ := s.neighbor(d).(*Segment)
	return n
}

func (s *Segment) requestRefresh() {
	if s.container != nil {
		s.container.RequestRefresh(s.pos)
	}
}

func (s *Segment) scheduleNeighbors() {
	for _, d := range Dirs {
		if n := s.neighborSegment(d); n.FullyDefined() {
			n.scheduled = true
		}
	}
}
