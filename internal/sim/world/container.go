package world

// Container is the host a segment lives in. World implements it; segments only
// reach their surroundings through it.
type Container interface {
	// EntityAt returns nil when nothing occupies pos.
	EntityAt(pos Vec3i) Entity
	PhysicallyConnected(a, b *Segment) bool
	// RequestRefresh marks pos for replication at the end of the tick.
	RequestRefresh(pos Vec3i)
	NotifyNeighborChange(pos Vec3i)
	Time() uint64
	// Authoritative is false on client-side replicas; they never resolve gates.
	Authoritative() bool
	GateSettings() GateSettings
}

type GateSettings struct {
	ResolveEvery uint64
	PulseEvery   uint64
	PulseEnergy  int
}

func (w *World) EntityAt(pos Vec3i) Entity {
	if s := w.segments[pos]; s != nil {
		return s
	}
	if e := w.entities[pos]; e != nil {
		return e
	}
	return nil
}

// PhysicallyConnected reports whether a and b are adjacent live segments whose facing
// sides are open and whose transport kinds can join.
func (w *World) PhysicallyConnected(a, b *Segment) bool {
	if !a.FullyDefined() || !b.FullyDefined() {
		return false
	}
	if w.segments[a.pos] != a || w.segments[b.pos] != b {
		return false
	}
	d, ok := dirBetween(a.pos, b.pos)
	if !ok {
		return false
	}
	if a.blocked[d] || b.blocked[d.Reverse()] {
		return false
	}
	return transportsJoin(a.transport, b.transport)
}

func transportsJoin(a, b TransportKind) bool {
	return a == b || a == TransportStructure || b == TransportStructure
}

func (w *World) RequestRefresh(pos Vec3i) {
	w.refresh[pos] = struct{}{}
}

// NotifyNeighborChange re-evaluates every segment and listener adjacent to pos.
func (w *World) NotifyNeighborChange(pos Vec3i) {
	for _, d := range Dirs {
		p := pos.Add(d.Offset())
		if s := w.segments[p]; s != nil {
			s.OnNeighborChange()
			continue
		}
		if l, ok := w.entities[p].(NeighborListener); ok {
			l.NeighborChanged(pos)
		}
	}
}

func (w *World) Time() uint64 { return w.now }

func (w *World) Authoritative() bool { return w.cfg.Role != RoleClient }

func (w *World) GateSettings() GateSettings {
	return GateSettings{
		ResolveEvery: uint64(w.cfg.GateEveryTicks),
		PulseEvery:   uint64(w.cfg.PulseEveryTicks),
		PulseEnergy:  w.cfg.PulseEnergy,
	}
}

// PoweredAt reports whether any adjacent segment emits redstone into pos.
func (w *World) PoweredAt(pos Vec3i) bool {
	for _, d := range Dirs {
		s := w.segments[pos.Add(d.Offset())]
		if s != nil && s.PoweringTo(d.Reverse()) {
			return true
		}
	}
	return false
}
