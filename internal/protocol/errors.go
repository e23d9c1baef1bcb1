package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoRole       = "E_PROTO_ROLE"

	// World routing/state.
	ErrWorldBusy = "E_WORLD_BUSY"

	// Edit layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNotFound      = "E_NOT_FOUND"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrConflict      = "E_CONFLICT"
	ErrOccupied      = "E_OCCUPIED"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoRole:       {},
	ErrWorldBusy:       {},
	ErrBadRequest:      {},
	ErrNotFound:        {},
	ErrInvalidTarget:   {},
	ErrConflict:        {},
	ErrOccupied:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
