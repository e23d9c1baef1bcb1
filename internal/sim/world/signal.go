package world

// ReceiveSignal offers strength on ch. It is adopted only when it does not lower the
// current value and is non-zero. A lit segment schedules itself so the new value fans out.
func (s *Segment) ReceiveSignal(strength int, ch Channel) bool {
	if s.container == nil || s.removed {
		return false
	}
	old := s.signal[ch]
	if strength < old || strength == 0 {
		return false
	}
	if strength > MaxSignal {
		strength = MaxSignal
	}
	s.signal[ch] = strength
	s.scheduled = true
	if old == 0 {
		s.requestRefresh()
	}
	return true
}

func (s *Segment) updateSignalState() {
	for _, ch := range Channels {
		s.updateSignalStateForChannel(ch)
	}
}

func (s *Segment) updateSignalStateForChannel(ch Channel) {
	if !s.wires[ch] {
		return
	}
	if s.broadcast[ch] {
		s.ReceiveSignal(MaxSignal, ch)
	} else {
		s.readNearbySignal(ch)
	}

	strength := s.signal[ch]
	if strength <= 1 {
		return
	}
	for _, d := range Dirs {
		n := s.neighborSegment(d)
		if !n.FullyDefined() || !n.wires[ch] || !s.WireConnectedTo(n, ch) {
			continue
		}
		n.ReceiveSignal(strength-1, ch)
	}
}

// readNearbySignal pulls the strongest neighbour value minus one. If nothing sustains
// the current value the channel drops to zero and every neighbour re-checks.
func (s *Segment) readNearbySignal(ch Channel) {
	found := false
	for _, d := range Dirs {
		n := s.neighborSegment(d)
		if !n.FullyDefined() || !s.WireConnectedTo(n, ch) {
			continue
		}
		if s.ReceiveSignal(n.SignalStrength(ch)-1, ch) {
			found = true
		}
	}
	if found || s.signal[ch] == 0 {
		return
	}
	s.signal[ch] = 0
	s.requestRefresh()
	s.scheduleNeighbors()
}
