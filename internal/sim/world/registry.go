package world

import (
	"fmt"

	"signalgrid.ai/internal/sim/catalogs"
)

// Registry maps trigger and action names to the capability values gate slots hold.
// Catalog entries keep their palette index as id; custom registrations are appended after.
type Registry struct {
	triggers      []Trigger
	triggerByName map[string]Trigger
	actions       []*Action
	actionByName  map[string]*Action
}

func NewRegistry(cats *catalogs.Catalogs) (*Registry, error) {
	r := &Registry{
		triggerByName: map[string]Trigger{},
		actionByName:  map[string]*Action{},
	}
	if cats == nil {
		return r, nil
	}
	for i, name := range cats.Triggers.Palette {
		if i == 0 {
			continue
		}
		def := cats.Triggers.Defs[name]
		id := TriggerID(i)
		var t Trigger
		switch def.Kind {
		case catalogs.TriggerSignal:
			ch, ok := ParseChannel(def.Channel)
			if !ok {
				return nil, fmt.Errorf("trigger %s: bad channel %q", name, def.Channel)
			}
			t = &signalTrigger{id: id, name: name, channel: ch, active: def.Active}
		case catalogs.TriggerEntityState:
			t = &stateTrigger{id: id, name: name, state: def.State}
		default:
			return nil, fmt.Errorf("trigger %s: unknown kind %q", name, def.Kind)
		}
		r.addTrigger(t)
	}
	for i, name := range cats.Actions.Palette {
		if i == 0 {
			continue
		}
		def := cats.Actions.Defs[name]
		kind, ok := parseActionKind(def.Kind)
		if !ok {
			return nil, fmt.Errorf("action %s: unknown kind %q", name, def.Kind)
		}
		a := &Action{ID: ActionID(i), Name: name, Kind: kind}
		if kind == ActionSignalOutput {
			ch, ok := ParseChannel(def.Channel)
			if !ok {
				return nil, fmt.Errorf("action %s: bad channel %q", name, def.Channel)
			}
			a.Channel = ch
		}
		r.addAction(a)
	}
	return r, nil
}

func (r *Registry) addTrigger(t Trigger) {
	for len(r.triggers) <= int(t.ID()) {
		r.triggers = append(r.triggers, nil)
	}
	r.triggers[t.ID()] = t
	r.triggerByName[t.Name()] = t
}

func (r *Registry) addAction(a *Action) {
	for len(r.actions) <= int(a.ID) {
		r.actions = append(r.actions, nil)
	}
	r.actions[a.ID] = a
	r.actionByName[a.Name] = a
}

func (r *Registry) nextTriggerID() TriggerID {
	if len(r.triggers) == 0 {
		return 1
	}
	return TriggerID(len(r.triggers))
}

func (r *Registry) nextActionID() ActionID {
	if len(r.actions) == 0 {
		return 1
	}
	return ActionID(len(r.actions))
}

// RegisterSegmentTrigger adds a trigger evaluated against the gate's own segment.
func (r *Registry) RegisterSegmentTrigger(name string, f func(*Segment, *Parameter) bool) (Trigger, error) {
	if _, dup := r.triggerByName[name]; dup || name == "" || name == catalogs.NoneID {
		return nil, fmt.Errorf("trigger name %q unavailable", name)
	}
	t := &segmentTriggerFunc{id: r.nextTriggerID(), name: name, f: f}
	r.addTrigger(t)
	return t, nil
}

// RegisterEntityTrigger adds a trigger probed against adjacent non-segment entities.
func (r *Registry) RegisterEntityTrigger(name string, f func(Entity, *Parameter) bool) (Trigger, error) {
	if _, dup := r.triggerByName[name]; dup || name == "" || name == catalogs.NoneID {
		return nil, fmt.Errorf("trigger name %q unavailable", name)
	}
	t := &entityTriggerFunc{id: r.nextTriggerID(), name: name, f: f}
	r.addTrigger(t)
	return t, nil
}

func (r *Registry) RegisterAction(name string, kind ActionKind, ch Channel) (*Action, error) {
	if _, dup := r.actionByName[name]; dup || name == "" || name == catalogs.NoneID {
		return nil, fmt.Errorf("action name %q unavailable", name)
	}
	a := &Action{ID: r.nextActionID(), Name: name, Kind: kind, Channel: ch}
	r.addAction(a)
	return a, nil
}

// Trigger returns nil for unknown ids.
func (r *Registry) Trigger(id TriggerID) Trigger {
	if r == nil || int(id) >= len(r.triggers) {
		return nil
	}
	return r.triggers[id]
}

func (r *Registry) Action(id ActionID) *Action {
	if r == nil || int(id) >= len(r.actions) {
		return nil
	}
	return r.actions[id]
}

func (r *Registry) TriggerByName(name string) Trigger {
	if r == nil {
		return nil
	}
	return r.triggerByName[name]
}

func (r *Registry) ActionByName(name string) *Action {
	if r == nil {
		return nil
	}
	return r.actionByName[name]
}

// Actions lists registered actions in id order.
func (r *Registry) Actions() []*Action {
	out := make([]*Action, 0, len(r.actions))
	for _, a := range r.actions {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}
