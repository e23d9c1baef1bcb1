package worldtest

import "signalgrid.ai/internal/protocol"

func place(x, y, z int, transport string) protocol.EditOp {
	return protocol.EditOp{ID: "place", Op: protocol.OpPlaceSegment, Pos: [3]int{x, y, z}, Transport: transport}
}

func wire(x, y, z int, ch string) protocol.EditOp {
	return protocol.EditOp{ID: "wire", Op: protocol.OpSetWire, Pos: [3]int{x, y, z}, Channel: ch, On: true}
}

func gate(x, y, z int, kind string) protocol.EditOp {
	return protocol.EditOp{ID: "gate", Op: protocol.OpAttachGate, Pos: [3]int{x, y, z}, GateKind: kind}
}

func bind(x, y, z, slot int, trigger, action string) protocol.EditOp {
	return protocol.EditOp{ID: "bind", Op: protocol.OpBindSlot, Pos: [3]int{x, y, z}, Slot: slot, Trigger: trigger, Action: action}
}

func entity(x, y, z int, kind string) protocol.EditOp {
	return protocol.EditOp{ID: "entity", Op: protocol.OpPlaceEntity, Pos: [3]int{x, y, z}, Entity: kind}
}

func toggle(x, y, z int) protocol.EditOp {
	return protocol.EditOp{ID: "toggle", Op: protocol.OpToggleSwitch, Pos: [3]int{x, y, z}}
}

func remove(x, y, z int) protocol.EditOp {
	return protocol.EditOp{ID: "remove", Op: protocol.OpRemoveSegment, Pos: [3]int{x, y, z}}
}

// redChain is n ITEMS segments along +X wired RED; the first carries a SINGLE gate
// emitting RED while the switch above it is on.
func redChain(n int) []protocol.EditOp {
	var ops []protocol.EditOp
	for x := 0; x < n; x++ {
		ops = append(ops, place(x, 0, 0, "ITEMS"), wire(x, 0, 0, "RED"))
	}
	return append(ops,
		gate(0, 0, 0, "SINGLE"),
		bind(0, 0, 0, 0, "SWITCH_ON", "SIGNAL_RED"),
		entity(0, 1, 0, "SWITCH"),
	)
}
