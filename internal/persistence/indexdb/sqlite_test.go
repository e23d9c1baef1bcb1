package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"signalgrid.ai/internal/persistence/snapshot"
	"signalgrid.ai/internal/protocol"
	"signalgrid.ai/internal/sim/catalogs"
	"signalgrid.ai/internal/sim/tuning"
	"signalgrid.ai/internal/sim/world"
)

func openTestIndex(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return idx, path
}

func count(t *testing.T, db *sql.DB, q string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("%s: %v", q, err)
	}
	return n
}

func TestSQLiteIndex_TicksEditsAudits(t *testing.T) {
	idx, path := openTestIndex(t)

	_ = idx.WriteTick(world.TickLogEntry{
		Tick:   3,
		Joins:  []world.RecordedJoin{{ClientID: "C1", Name: "alice"}},
		Edits:  []world.RecordedEdit{{ClientID: "C1", Edit: protocol.EditMsg{Type: protocol.TypeEdit, Ops: []protocol.EditOp{{Op: protocol.OpPlaceSegment}}}}},
		Digest: "d3",
	})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 4, Leaves: []string{"C1"}, Digest: "d4"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 3, Actor: "C1", Action: "PLACE_SEGMENT", Pos: [3]int{1, 2, 3}})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 3, Actor: "C1", Action: "SET_WIRE", Pos: [3]int{1, 2, 3}})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	if n := count(t, db, `SELECT COUNT(*) FROM ticks`); n != 2 {
		t.Fatalf("ticks=%d", n)
	}
	if n := count(t, db, `SELECT ops FROM edits WHERE tick=3 AND client_id='C1'`); n != 1 {
		t.Fatalf("edit ops=%d", n)
	}
	if n := count(t, db, `SELECT COUNT(*) FROM leaves WHERE tick=4`); n != 1 {
		t.Fatalf("leaves=%d", n)
	}
	if n := count(t, db, `SELECT MAX(seq) FROM audits WHERE tick=3`); n != 1 {
		t.Fatalf("audit seq=%d", n)
	}
}

func TestSQLiteIndex_SnapshotSummary(t *testing.T) {
	idx, path := openTestIndex(t)
	idx.RecordSnapshot("/tmp/9.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, Tick: 9},
		Segments: []snapshot.SegmentV1{
			{Pos: [3]int{0, 0, 0}, Transport: "ITEMS", Wires: []bool{true, false, true, false}, Broadcast: []bool{true, false, false, false},
				Gate: &snapshot.GateV1{Kind: "OR_2"}, Slots: []snapshot.SlotV1{{Trigger: "SWITCH_ON", Action: "SIGNAL_RED"}, {}}},
			{Pos: [3]int{1, 0, 0}, Transport: "FLUIDS"},
		},
		Entities: []snapshot.EntityV1{{Kind: "SWITCH"}},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	if n := count(t, db, `SELECT gates FROM snapshots WHERE tick=9`); n != 1 {
		t.Fatalf("gates=%d", n)
	}
	var wires, gate string
	var slots int
	if err := db.QueryRow(`SELECT wires,gate_kind,slots FROM snapshot_segments WHERE tick=9 AND x=0`).Scan(&wires, &gate, &slots); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if wires != "RED,GREEN" || gate != "OR_2" || slots != 1 {
		t.Fatalf("unexpected row: %s %s %d", wires, gate, slots)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	idx, _ := openTestIndex(t)
	defer idx.Close()

	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n := count(t, idx.DB(), `SELECT COUNT(*) FROM catalogs`); n != 5 {
		t.Fatalf("catalog rows=%d", n)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drops: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: %+v", st)
	}
}
