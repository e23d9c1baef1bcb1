package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Role            string            `json:"role"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	Role            string         `json:"role"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	WorldID        string   `json:"world_id"`
	TickRateHz     int      `json:"tick_rate_hz"`
	GateEveryTicks int      `json:"gate_every_ticks"`
	Channels       []string `json:"channels"`
	SlotCount      int      `json:"slot_count"`
	MaxSignal      int      `json:"max_signal"`
}

type CatalogDigests struct {
	TriggerPalette DigestRef `json:"trigger_palette"`
	ActionPalette  DigestRef `json:"action_palette"`
	TuningDigest   string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CATALOG (server -> client)
type CatalogMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name"`
	Digest          string `json:"digest"`
	Part            int    `json:"part"`
	TotalParts      int    `json:"total_parts"`
	Data            any    `json:"data"`
}

// Edit op names.
const (
	OpPlaceSegment   = "PLACE_SEGMENT"
	OpRemoveSegment  = "REMOVE_SEGMENT"
	OpSetWire        = "SET_WIRE"
	OpSetSideBlocked = "SET_SIDE_BLOCKED"
	OpAttachGate     = "ATTACH_GATE"
	OpResetGate      = "RESET_GATE"
	OpBindSlot       = "BIND_SLOT"
	OpClearSlot      = "CLEAR_SLOT"
	OpPlaceEntity    = "PLACE_ENTITY"
	OpRemoveEntity   = "REMOVE_ENTITY"
	OpToggleSwitch   = "TOGGLE_SWITCH"
)

// EDIT (client -> server)
type EditMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Tick            uint64   `json:"tick"`
	ClientID        string   `json:"client_id,omitempty"`
	Ops             []EditOp `json:"ops"`
}

type EditOp struct {
	ID  string `json:"id"`
	Op  string `json:"op"`
	Pos [3]int `json:"pos"`

	Transport string `json:"transport,omitempty"` // PLACE_SEGMENT
	Channel   string `json:"channel,omitempty"`   // SET_WIRE
	On        bool   `json:"on,omitempty"`        // SET_WIRE, SET_SIDE_BLOCKED
	Dir       string `json:"dir,omitempty"`       // SET_SIDE_BLOCKED

	GateKind  string `json:"gate_kind,omitempty"` // ATTACH_GATE
	Autarchic bool   `json:"autarchic,omitempty"` // ATTACH_GATE

	Slot    int        `json:"slot,omitempty"`    // BIND_SLOT, CLEAR_SLOT
	Trigger string     `json:"trigger,omitempty"` // BIND_SLOT
	Action  string     `json:"action,omitempty"`  // BIND_SLOT
	Param   *ParamSpec `json:"param,omitempty"`   // BIND_SLOT

	Entity string `json:"entity,omitempty"` // PLACE_ENTITY
}

type ParamSpec struct {
	Item  string `json:"item"`
	Count int    `json:"count,omitempty"`
}

// EDIT_RESULT (server -> client)
type EditResultMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Results         []OpResult `json:"results"`
}

type OpResult struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// STATE (server -> client): replicated field changes for segments whose
// visibility refresh was requested during the tick.
type StateMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	Full            bool           `json:"full,omitempty"`
	Segments        []SegmentDelta `json:"segments,omitempty"`
	Removed         [][3]int       `json:"removed,omitempty"`
}

type SegmentDelta struct {
	Pos    [3]int        `json:"pos"`
	Fields []FieldChange `json:"fields"`
}

type FieldChange struct {
	Field string `json:"field"`
	Value int    `json:"value"`
}
