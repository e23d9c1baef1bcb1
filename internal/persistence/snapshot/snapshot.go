package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Operational parameters (captured for deterministic replay/resume).
	TickRate           int `json:"tick_rate_hz"`
	GateEveryTicks     int `json:"gate_every_ticks"`
	PulseEveryTicks    int `json:"pulse_every_ticks"`
	PulseEnergy        int `json:"pulse_energy"`
	SnapshotEveryTicks int `json:"snapshot_every_ticks,omitempty"`

	Segments []SegmentV1 `json:"segments"`
	Entities []EntityV1  `json:"entities"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextClient uint64 `json:"next_client"`
}

type SegmentV1 struct {
	Pos       [3]int `json:"pos"`
	Transport string `json:"transport"`
	Wires     []bool `json:"wires"`
	Blocked   []bool `json:"blocked"`

	Gate *GateV1 `json:"gate,omitempty"`
	// GateKind is the pre-gate single-enum form; read only when Gate is nil.
	GateKind int      `json:"gate_kind,omitempty"`
	Slots    []SlotV1 `json:"slots,omitempty"`

	// Runtime signal state.
	Signal            []int  `json:"signal"`
	Broadcast         []bool `json:"broadcast"`
	BroadcastRedstone bool   `json:"broadcast_redstone,omitempty"`
	Scheduled         bool   `json:"scheduled,omitempty"`
	Initialized       bool   `json:"initialized"`
	ResolveMark       uint64 `json:"resolve_mark"`
}

type GateV1 struct {
	Kind      string `json:"kind"`
	Autarchic bool   `json:"autarchic,omitempty"`
	Pulsing   bool   `json:"pulsing,omitempty"`
	PulseMark uint64 `json:"pulse_mark,omitempty"`
}

// SlotV1 stores bindings by catalog name so palette reordering cannot rebind them.
type SlotV1 struct {
	Trigger    string `json:"trigger,omitempty"`
	Action     string `json:"action,omitempty"`
	HasParam   bool   `json:"has_param,omitempty"`
	ParamItem  string `json:"param_item,omitempty"`
	ParamCount int    `json:"param_count,omitempty"`
}

type EntityV1 struct {
	Kind string `json:"kind"`
	Pos  [3]int `json:"pos"`

	On          bool   `json:"on,omitempty"`
	Running     bool   `json:"running,omitempty"`
	Powered     bool   `json:"powered,omitempty"`
	Energy      int    `json:"energy,omitempty"`
	Activations int    `json:"activations,omitempty"`
	LastAction  string `json:"last_action,omitempty"`
	Forwarded   int    `json:"forwarded,omitempty"`
}

// Path returns the canonical snapshot file for tick under worldDir.
func Path(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	br, closeFn, err := open(path)
	if err != nil {
		return snap, err
	}
	defer closeFn()

	// The header line is duplicated inside the gob payload.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line, for listings.
func ReadHeader(path string) (Header, error) {
	var h Header
	br, closeFn, err := open(path)
	if err != nil {
		return h, err
	}
	defer closeFn()
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func open(path string) (*bufio.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return bufio.NewReaderSize(dec, 256*1024), func() {
		dec.Close()
		_ = f.Close()
	}, nil
}
