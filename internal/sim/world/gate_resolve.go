package world

// resolveActions evaluates every bound slot, folds results per action with the gate's
// conditional and applies the winners. Outputs that changed are pushed out at once.
func (s *Segment) resolveActions() {
	if s.gate == nil {
		return
	}
	oldRedstone := s.broadcastRedstone
	oldBroadcast := s.broadcast
	s.broadcastRedstone = false
	s.broadcast = [NumChannels]bool{}
	s.gate.StartResolution()

	resolved := make(map[ActionID]bool, SlotCount)
	order := make([]*Action, 0, SlotCount)
	and := s.gate.Conditional() == ConditionalAND
	for i := range s.slots {
		sl := s.slots[i]
		if sl.Trigger == nil || sl.Action == nil {
			continue
		}
		id := sl.Action.ID
		prev, seen := resolved[id]
		switch {
		case !seen:
			resolved[id] = s.isNearbyTriggerActive(sl.Trigger, sl.Param)
			order = append(order, sl.Action)
		case and:
			resolved[id] = prev && s.isNearbyTriggerActive(sl.Trigger, sl.Param)
		default:
			resolved[id] = prev || s.isNearbyTriggerActive(sl.Trigger, sl.Param)
		}
	}

	for _, a := range order {
		if !resolved[a.ID] {
			continue
		}
		if s.gate.ResolveAction(a) {
			continue
		}
		fx := a.Apply()
		if fx.Redstone {
			s.broadcastRedstone = true
		}
		for ch, on := range fx.Signal {
			if on {
				s.broadcast[ch] = true
			}
		}
		if fx.Dispatch {
			s.dispatch(a)
		}
	}

	if s.variant != nil {
		s.variant.ActionsActivated(s, resolved)
	}

	if oldRedstone != s.broadcastRedstone {
		s.requestRefresh()
		if s.container != nil {
			s.container.NotifyNeighborChange(s.pos)
		}
	}
	if oldBroadcast != s.broadcast {
		s.requestRefresh()
		s.updateSignalState()
	}
}

func (s *Segment) isNearbyTriggerActive(t Trigger, p *Parameter) bool {
	switch tr := t.(type) {
	case SegmentTrigger:
		return tr.ActiveOn(s, p)
	case EntityTrigger:
		for _, d := range Dirs {
			e := s.neighbor(d)
			if e == nil {
				continue
			}
			if _, isSegment := e.(*Segment); isSegment {
				continue
			}
			if tr.ActiveFor(e, p) {
				return true
			}
		}
	}
	return false
}

func (s *Segment) dispatch(a *Action) {
	for _, d := range Dirs {
		if r, ok := s.neighbor(d).(Receptor); ok {
			r.ActionActivated(a)
		}
	}
}
