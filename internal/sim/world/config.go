package world

import "fmt"

type Role string

const (
	// RoleServer resolves gates and is the source of truth.
	RoleServer Role = "server"
	// RoleClient only mirrors signal propagation.
	RoleClient Role = "client"
)

type WorldConfig struct {
	ID         string
	TickRateHz int

	// Gate cadence. These are included in snapshots for deterministic replay/resume.
	GateEveryTicks  int
	PulseEveryTicks int
	PulseEnergy     int

	SnapshotEveryTicks int

	Role Role
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "grid_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.GateEveryTicks <= 0 {
		c.GateEveryTicks = 10
	}
	if c.PulseEveryTicks <= 0 {
		c.PulseEveryTicks = 10
	}
	if c.PulseEnergy < 0 {
		c.PulseEnergy = 0
	}
	if c.Role == "" {
		c.Role = RoleServer
	}
}

func (c WorldConfig) validate() error {
	switch c.Role {
	case RoleServer, RoleClient:
	default:
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}
