package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"signalgrid.ai/internal/persistence/snapshot"
)

type CheckpointMeta struct {
	WorldID        string `json:"world_id"`
	Tick           uint64 `json:"tick"`
	Snapshot       string `json:"snapshot"`
	CreatedAt      string `json:"created_at"`
	Segments       int    `json:"segments"`
	Entities       int    `json:"entities"`
	TickRateHz     int    `json:"tick_rate_hz"`
	GateEveryTicks int    `json:"gate_every_ticks"`
}

// Dir is the archive directory for the checkpoint taken at tick.
func Dir(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, "archives", fmt.Sprintf("tick_%010d", tick))
}

// ArchiveCheckpoint copies a snapshot into `worldDir/archives/tick_<N>/` when its tick is a
// multiple of everyTicks. Rolling snapshots may be pruned; archived ones are kept.
// It returns (archivedPath, archived=true) when a copy was made.
func ArchiveCheckpoint(worldDir, snapshotPath string, snap snapshot.SnapshotV1, everyTicks int) (archivedPath string, archived bool, err error) {
	if everyTicks <= 0 {
		return "", false, nil
	}
	tick := snap.Header.Tick
	if tick == 0 || tick%uint64(everyTicks) != 0 {
		return "", false, nil
	}

	archiveDir := Dir(worldDir, tick)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := CheckpointMeta{
		WorldID:        snap.Header.WorldID,
		Tick:           tick,
		Snapshot:       filepath.Base(dst),
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
		Segments:       len(snap.Segments),
		Entities:       len(snap.Entities),
		TickRateHz:     snap.TickRate,
		GateEveryTicks: snap.GateEveryTicks,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

// ReadMeta loads the meta.json of an archived checkpoint directory.
func ReadMeta(archiveDir string) (CheckpointMeta, error) {
	var m CheckpointMeta
	b, err := os.ReadFile(filepath.Join(archiveDir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
