package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz            int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	GateResolveEveryTicks int `yaml:"gate_resolve_every_ticks" json:"gate_resolve_every_ticks"`
	PulseEveryTicks       int `yaml:"pulse_every_ticks" json:"pulse_every_ticks"`
	PulseEnergy           int `yaml:"pulse_energy" json:"pulse_energy"`
	SnapshotEveryTicks    int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	// ArchiveEveryTicks keeps a copy of every snapshot whose tick is a multiple of it; 0 disables.
	ArchiveEveryTicks int `yaml:"archive_every_ticks" json:"archive_every_ticks"`

	ObserverMaxQueue int `yaml:"observer_max_queue" json:"observer_max_queue"`

	MQTT MQTT `yaml:"mqtt" json:"mqtt"`
}

type MQTT struct {
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`
	QoS         int    `yaml:"qos" json:"qos"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:       "1.0",
		TickRateHz:            20,
		GateResolveEveryTicks: 10,
		PulseEveryTicks:       10,
		PulseEnergy:           1,
		SnapshotEveryTicks:    6000,
		ArchiveEveryTicks:     72000,
		ObserverMaxQueue:      32,
		MQTT: MQTT{
			TopicPrefix: "signalgrid",
		},
	}
}

// Load reads path over Defaults(); keys missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.GateResolveEveryTicks <= 0 {
		return fmt.Errorf("gate_resolve_every_ticks must be > 0")
	}
	if t.PulseEveryTicks <= 0 {
		return fmt.Errorf("pulse_every_ticks must be > 0")
	}
	if t.PulseEnergy < 0 {
		return fmt.Errorf("pulse_energy must be >= 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.ArchiveEveryTicks < 0 {
		return fmt.Errorf("archive_every_ticks must be >= 0")
	}
	if t.ArchiveEveryTicks > 0 && (t.SnapshotEveryTicks == 0 || t.ArchiveEveryTicks%t.SnapshotEveryTicks != 0) {
		return fmt.Errorf("archive_every_ticks must be a multiple of snapshot_every_ticks")
	}
	if t.MQTT.QoS < 0 || t.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}
