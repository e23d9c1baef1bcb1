package world

type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func Vec3iFromArray(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func Manhattan(a, b Vec3i) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	return dx + dy + dz
}

// lessPos orders positions by X, then Y, then Z. All per-tick iteration uses this order.
func lessPos(a, b Vec3i) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

// Dir is one of the six axis-aligned orientations. Opposite directions differ only in the low bit.
type Dir uint8

const (
	DirDown Dir = iota
	DirUp
	DirNorth
	DirSouth
	DirWest
	DirEast
)

var Dirs = [6]Dir{DirDown, DirUp, DirNorth, DirSouth, DirWest, DirEast}

var dirNames = [6]string{"DOWN", "UP", "NORTH", "SOUTH", "WEST", "EAST"}

var dirOffsets = [6]Vec3i{
	{X: 0, Y: -1, Z: 0},
	{X: 0, Y: 1, Z: 0},
	{X: 0, Y: 0, Z: -1},
	{X: 0, Y: 0, Z: 1},
	{X: -1, Y: 0, Z: 0},
	{X: 1, Y: 0, Z: 0},
}

func (d Dir) String() string {
	if int(d) >= len(dirNames) {
		return "UNKNOWN"
	}
	return dirNames[d]
}

func (d Dir) Offset() Vec3i { return dirOffsets[d] }

func (d Dir) Reverse() Dir { return d ^ 1 }

func ParseDir(s string) (Dir, bool) {
	for i, n := range dirNames {
		if n == s {
			return Dir(i), true
		}
	}
	return 0, false
}

// dirBetween returns the direction from a to b when they are face-adjacent.
func dirBetween(a, b Vec3i) (Dir, bool) {
	if Manhattan(a, b) != 1 {
		return 0, false
	}
	delta := Vec3i{X: b.X - a.X, Y: b.Y - a.Y, Z: b.Z - a.Z}
	for _, d := range Dirs {
		if d.Offset() == delta {
			return d, true
		}
	}
	return 0, false
}

// Channel is one of the wire colors a segment can carry.
type Channel uint8

const (
	ChannelRed Channel = iota
	ChannelBlue
	ChannelGreen
	ChannelYellow
)

const NumChannels = 4

var Channels = [NumChannels]Channel{ChannelRed, ChannelBlue, ChannelGreen, ChannelYellow}

var channelNames = [NumChannels]string{"RED", "BLUE", "GREEN", "YELLOW"}

func (c Channel) String() string {
	if int(c) >= NumChannels {
		return "UNKNOWN"
	}
	return channelNames[c]
}

func ParseChannel(s string) (Channel, bool) {
	for i, n := range channelNames {
		if n == s {
			return Channel(i), true
		}
	}
	return 0, false
}

func ChannelNames() []string {
	out := make([]string, NumChannels)
	copy(out, channelNames[:])
	return out
}

// TransportKind is what a segment carries besides its wires.
type TransportKind uint8

const (
	TransportItems TransportKind = iota
	TransportFluids
	TransportPower
	// TransportStructure segments carry nothing and bridge wires to any neighbor.
	TransportStructure
)

var transportNames = [...]string{"ITEMS", "FLUIDS", "POWER", "STRUCTURE"}

func (k TransportKind) String() string {
	if int(k) >= len(transportNames) {
		return "UNKNOWN"
	}
	return transportNames[k]
}

func ParseTransport(s string) (TransportKind, bool) {
	for i, n := range transportNames {
		if n == s {
			return TransportKind(i), true
		}
	}
	return 0, false
}

const (
	// MaxSignal is the strength a broadcasting segment holds. Each hop loses one.
	MaxSignal = 255
	SlotCount = 8
)
