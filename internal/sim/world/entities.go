package world

// Entity kinds accepted by PLACE_ENTITY.
const (
	EntitySwitch  = "SWITCH"
	EntityMachine = "MACHINE"
	EntityBridge  = "BRIDGE"
)

// Machine actions recognised by name.
const (
	actionMachineOn  = "MACHINE_ON"
	actionMachineOff = "MACHINE_OFF"
)

// Switch is a lever: it reports ON or OFF to generic triggers.
type Switch struct {
	pos Vec3i
	On  bool
}

func (s *Switch) Pos() Vec3i { return s.pos }

func (s *Switch) ReportsState(state string, _ *Parameter) bool {
	switch state {
	case "ON":
		return s.On
	case "OFF":
		return !s.On
	}
	return false
}

// Machine reacts to dispatched actions and pulser energy, and senses redstone from
// adjacent segments.
type Machine struct {
	pos   Vec3i
	world *World

	Running     bool
	Powered     bool
	Energy      int
	Activations int
	LastAction  string
}

func (m *Machine) Pos() Vec3i { return m.pos }

func (m *Machine) ActionActivated(a *Action) {
	m.Activations++
	m.LastAction = a.Name
	switch a.Name {
	case actionMachineOn:
		m.Running = true
	case actionMachineOff:
		m.Running = false
	}
}

func (m *Machine) ReceivePulse(energy int) { m.Energy += energy }

func (m *Machine) NeighborChanged(Vec3i) {
	if m.world != nil {
		m.Powered = m.world.PoweredAt(m.pos)
	}
}

func (m *Machine) ReportsState(state string, p *Parameter) bool {
	switch state {
	case "POWERED":
		return m.Powered
	case "RUNNING":
		return m.Running
	case "IDLE":
		return !m.Running
	case "CHARGED":
		need := 1
		if p != nil && p.Count > 0 {
			need = p.Count
		}
		return m.Energy >= need
	}
	return false
}

// DispatchEvent is one action handed to a bridge.
type DispatchEvent struct {
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Pos     [3]int `json:"pos"`
	Action  string `json:"action"`
}

// Dispatcher forwards bridge events out of the world (MQTT in production).
type Dispatcher interface {
	Dispatch(ev DispatchEvent)
}

// Bridge forwards every action dispatched to it.
type Bridge struct {
	pos   Vec3i
	world *World

	Forwarded int
}

func (b *Bridge) Pos() Vec3i { return b.pos }

func (b *Bridge) ActionActivated(a *Action) {
	b.Forwarded++
	if b.world == nil || b.world.dispatcher == nil {
		return
	}
	b.world.dispatcher.Dispatch(DispatchEvent{
		WorldID: b.world.cfg.ID,
		Tick:    b.world.now,
		Pos:     b.pos.ToArray(),
		Action:  a.Name,
	})
}

func entityKind(e Entity) string {
	switch e.(type) {
	case *Switch:
		return EntitySwitch
	case *Machine:
		return EntityMachine
	case *Bridge:
		return EntityBridge
	}
	return ""
}
