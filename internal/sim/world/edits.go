package world

import (
	"fmt"

	"signalgrid.ai/internal/protocol"
)

type editHandler func(w *World, op protocol.EditOp, pos Vec3i) (details map[string]any, code string, msg string)

var editHandlers = map[string]editHandler{
	protocol.OpPlaceSegment:   handlePlaceSegment,
	protocol.OpRemoveSegment:  handleRemoveSegment,
	protocol.OpSetWire:        handleSetWire,
	protocol.OpSetSideBlocked: handleSetSideBlocked,
	protocol.OpAttachGate:     handleAttachGate,
	protocol.OpResetGate:      handleResetGate,
	protocol.OpBindSlot:       handleBindSlot,
	protocol.OpClearSlot:      handleClearSlot,
	protocol.OpPlaceEntity:    handlePlaceEntity,
	protocol.OpRemoveEntity:   handleRemoveEntity,
	protocol.OpToggleSwitch:   handleToggleSwitch,
}

// applyEdit applies each op in order. A rejected op does not stop the rest.
func (w *World) applyEdit(env EditEnvelope, nowTick uint64) []protocol.OpResult {
	results := make([]protocol.OpResult, 0, len(env.Edit.Ops))
	for _, op := range env.Edit.Ops {
		h := editHandlers[op.Op]
		if h == nil {
			results = append(results, protocol.OpResult{ID: op.ID, Code: protocol.ErrBadRequest, Message: fmt.Sprintf("unknown op %q", op.Op)})
			continue
		}
		pos := Vec3iFromArray(op.Pos)
		details, code, msg := h(w, op, pos)
		if code != "" {
			results = append(results, protocol.OpResult{ID: op.ID, Code: code, Message: msg})
			continue
		}
		results = append(results, protocol.OpResult{ID: op.ID, OK: true})
		w.auditEvent(nowTick, env.ClientID, op.Op, pos, "", details)
	}
	return results
}

func (w *World) segmentFor(pos Vec3i) (*Segment, string, string) {
	s := w.segments[pos]
	if s == nil {
		return nil, protocol.ErrNotFound, "no segment at position"
	}
	return s, "", ""
}

func handlePlaceSegment(w *World, op protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	if w.EntityAt(pos) != nil {
		return nil, protocol.ErrOccupied, "position occupied"
	}
	kind := TransportItems
	if op.Transport != "" {
		k, ok := ParseTransport(op.Transport)
		if !ok {
			return nil, protocol.ErrBadRequest, fmt.Sprintf("unknown transport %q", op.Transport)
		}
		kind = k
	}
	s := NewSegment(pos, kind)
	w.addSegment(s)
	s.Initialize()
	w.RequestRefresh(pos)
	w.NotifyNeighborChange(pos)
	return map[string]any{"transport": kind.String()}, "", ""
}

func handleRemoveSegment(w *World, _ protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	if w.dropSegment(pos) == nil {
		return nil, protocol.ErrNotFound, "no segment at position"
	}
	w.RequestRefresh(pos)
	w.NotifyNeighborChange(pos)
	return nil, "", ""
}

func handleSetWire(w *World, op protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	s, code, msg := w.segmentFor(pos)
	if s == nil {
		return nil, code, msg
	}
	ch, ok := ParseChannel(op.Channel)
	if !ok {
		return nil, protocol.ErrBadRequest, fmt.Sprintf("unknown channel %q", op.Channel)
	}
	s.SetWire(ch, op.On)
	return map[string]any{"channel": ch.String(), "on": op.On}, "", ""
}

func handleSetSideBlocked(w *World, op protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	s, code, msg := w.segmentFor(pos)
	if s == nil {
		return nil, code, msg
	}
	d, ok := ParseDir(op.Dir)
	if !ok {
		return nil, protocol.ErrBadRequest, fmt.Sprintf("unknown dir %q", op.Dir)
	}
	s.SetSideBlocked(d, op.On)
	// The segment across that side sees a different connection now.
	if n := w.segments[pos.Add(d.Offset())]; n != nil {
		n.OnNeighborChange()
	}
	return map[string]any{"dir": d.String(), "on": op.On}, "", ""
}

func handleAttachGate(w *World, op protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	s, code, msg := w.segmentFor(pos)
	if s == nil {
		return nil, code, msg
	}
	kind := GateSingle
	if op.GateKind != "" {
		k, ok := ParseGateKind(op.GateKind)
		if !ok || k == GateNone {
			return nil, protocol.ErrBadRequest, fmt.Sprintf("bad gate kind %q", op.GateKind)
		}
		kind = k
	}
	if !s.AttachGate(NewGate(kind, op.Autarchic)) {
		return nil, protocol.ErrConflict, "segment already has a gate"
	}
	return map[string]any{"gate_kind": kind.String(), "autarchic": op.Autarchic}, "", ""
}

func handleResetGate(w *World, _ protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	s, code, msg := w.segmentFor(pos)
	if s == nil {
		return nil, code, msg
	}
	s.ResetGate()
	delete(w.lastResolved, pos)
	return nil, "", ""
}

func handleBindSlot(w *World, op protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	s, code, msg := w.segmentFor(pos)
	if s == nil {
		return nil, code, msg
	}
	if s.gate == nil {
		return nil, protocol.ErrInvalidTarget, "segment has no gate"
	}
	if op.Slot < 0 || op.Slot >= s.gate.Kind.SlotCount() {
		return nil, protocol.ErrBadRequest, fmt.Sprintf("slot %d out of range for %s", op.Slot, s.gate.Kind)
	}
	var sl Slot
	if op.Trigger != "" {
		if sl.Trigger = w.registry.TriggerByName(op.Trigger); sl.Trigger == nil {
			return nil, protocol.ErrBadRequest, fmt.Sprintf("unknown trigger %q", op.Trigger)
		}
	}
	if op.Action != "" {
		if sl.Action = w.registry.ActionByName(op.Action); sl.Action == nil {
			return nil, protocol.ErrBadRequest, fmt.Sprintf("unknown action %q", op.Action)
		}
		if !s.Offers(sl.Action) {
			return nil, protocol.ErrInvalidTarget, fmt.Sprintf("action %s not available here", op.Action)
		}
	}
	if op.Param != nil {
		sl.Param = &Parameter{Item: op.Param.Item, Count: op.Param.Count}
	}
	s.SetSlot(op.Slot, sl)
	return map[string]any{"slot": op.Slot, "trigger": op.Trigger, "action": op.Action}, "", ""
}

func handleClearSlot(w *World, op protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	s, code, msg := w.segmentFor(pos)
	if s == nil {
		return nil, code, msg
	}
	if !s.SetSlot(op.Slot, Slot{}) {
		return nil, protocol.ErrBadRequest, fmt.Sprintf("slot %d out of range", op.Slot)
	}
	return map[string]any{"slot": op.Slot}, "", ""
}

func handlePlaceEntity(w *World, op protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	if w.EntityAt(pos) != nil {
		return nil, protocol.ErrOccupied, "position occupied"
	}
	e := w.newEntity(op.Entity, pos)
	if e == nil {
		return nil, protocol.ErrBadRequest, fmt.Sprintf("unknown entity %q", op.Entity)
	}
	w.entities[pos] = e
	if l, ok := e.(NeighborListener); ok {
		l.NeighborChanged(pos)
	}
	w.NotifyNeighborChange(pos)
	return map[string]any{"entity": op.Entity}, "", ""
}

func (w *World) newEntity(kind string, pos Vec3i) Entity {
	switch kind {
	case EntitySwitch:
		return &Switch{pos: pos}
	case EntityMachine:
		return &Machine{pos: pos, world: w}
	case EntityBridge:
		return &Bridge{pos: pos, world: w}
	}
	return nil
}

func handleRemoveEntity(w *World, _ protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	e := w.entities[pos]
	if e == nil {
		return nil, protocol.ErrNotFound, "no entity at position"
	}
	delete(w.entities, pos)
	w.NotifyNeighborChange(pos)
	return map[string]any{"entity": entityKind(e)}, "", ""
}

func handleToggleSwitch(w *World, _ protocol.EditOp, pos Vec3i) (map[string]any, string, string) {
	sw, ok := w.entities[pos].(*Switch)
	if !ok {
		return nil, protocol.ErrInvalidTarget, "no switch at position"
	}
	sw.On = !sw.On
	w.NotifyNeighborChange(pos)
	return map[string]any{"on": sw.On}, "", ""
}
