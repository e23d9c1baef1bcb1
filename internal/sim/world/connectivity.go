package world

// WireConnectedTo reports whether signal on ch can flow between s and e.
// A structural segment on either side bridges regardless of wiring.
func (s *Segment) WireConnectedTo(e Entity, ch Channel) bool {
	other, ok := e.(*Segment)
	if !ok || !other.FullyDefined() {
		return false
	}
	if s.transport == TransportStructure || other.transport == TransportStructure {
		return true
	}
	if !s.wires[ch] || !other.wires[ch] {
		return false
	}
	return s.container != nil && s.container.PhysicallyConnected(s, other)
}
