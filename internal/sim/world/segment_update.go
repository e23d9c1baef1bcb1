package world

// Update is the per-tick entry point. A pending signal refresh runs first; the flag is
// cleared after it so self-scheduling during the refresh does not loop. Gate resolution
// only happens on the authoritative side.
func (s *Segment) Update() {
	if s.container == nil || s.removed {
		return
	}
	if s.scheduled {
		s.updateSignalState()
		s.scheduled = false
	}
	if !s.container.Authoritative() {
		return
	}
	if s.tracker.MarkTimeIfDelay(s.container.Time(), s.container.GateSettings().ResolveEvery) {
		s.resolveActions()
	}
	if s.gate != nil {
		s.gate.Update(s)
	}
}
