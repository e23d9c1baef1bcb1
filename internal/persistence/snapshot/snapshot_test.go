package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sample() SnapshotV1 {
	return SnapshotV1{
		Header:         Header{Version: Version, WorldID: "grid_1", Tick: 120},
		TickRate:       20,
		GateEveryTicks: 10,
		Segments: []SegmentV1{{
			Pos:       [3]int{1, 2, 3},
			Transport: "ITEMS",
			Wires:     []bool{true, false, false, false},
			Blocked:   make([]bool, 6),
			Gate:      &GateV1{Kind: "AND_2", Autarchic: true, PulseMark: 110},
			Slots:     []SlotV1{{Trigger: "SWITCH_ON", Action: "SIGNAL_RED", HasParam: true, ParamItem: "COAL", ParamCount: 2}},
			Signal:    []int{255, 0, 0, 0},
			Broadcast: []bool{true, false, false, false},
		}},
		Entities: []EntityV1{{Kind: "SWITCH", Pos: [3]int{2, 2, 3}, On: true}},
		Counters: CountersV1{NextClient: 4},
	}
}

func TestWriteRead_PreservesSegmentsAndHeader(t *testing.T) {
	path := Path(t.TempDir(), 120)
	require.NoError(t, WriteSnapshot(path, sample()))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	require.Equal(t, uint64(120), h.Tick)
	require.Equal(t, "grid_1", h.WorldID)

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, got.Segments, 1)
	seg := got.Segments[0]
	require.Equal(t, [3]int{1, 2, 3}, seg.Pos)
	require.NotNil(t, seg.Gate)
	require.Equal(t, "AND_2", seg.Gate.Kind)
	require.Equal(t, "SIGNAL_RED", seg.Slots[0].Action)
	require.Equal(t, 255, seg.Signal[0])
	require.Equal(t, uint64(4), got.Counters.NextClient)
}

func TestReadSnapshot_RejectsUnknownVersion(t *testing.T) {
	snap := sample()
	snap.Header.Version = 9
	path := filepath.Join(t.TempDir(), "v9.snap.zst")
	require.NoError(t, WriteSnapshot(path, snap))

	_, err := ReadSnapshot(path)
	require.Error(t, err)
}

func TestReadSnapshot_MissingFile(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst"))
	require.True(t, os.IsNotExist(err))
}
