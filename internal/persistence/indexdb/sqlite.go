package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"signalgrid.ai/internal/persistence/snapshot"
	"signalgrid.ai/internal/sim/catalogs"
	"signalgrid.ai/internal/sim/tuning"
	"signalgrid.ai/internal/sim/world"
)

// SQLiteIndex is a queryable read model of the tick and audit logs. Writes are queued
// and applied by a single goroutine; the JSONL logs stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	Segments []segmentRow
	Entities int
	Gates    int
}

type segmentRow struct {
	X, Y, Z   int
	Transport string
	GateKind  string
	Wires     string
	Broadcast string
	Redstone  bool
	Slots     int
}

// Stats reports queue pressure. Drops happen only when the writer falls behind.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			edits INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			client_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (tick, client_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			client_id TEXT NOT NULL,
			PRIMARY KEY (tick, client_id)
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			client_id TEXT NOT NULL,
			ops INTEGER NOT NULL,
			edit_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_client_tick ON edits(client_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos_tick ON audits(x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			segments INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			gates INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshot_segments (
			tick INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			transport TEXT NOT NULL,
			gate_kind TEXT NOT NULL,
			wires TEXT NOT NULL,
			broadcast TEXT NOT NULL,
			redstone INTEGER NOT NULL,
			slots INTEGER NOT NULL,
			PRIMARY KEY (tick, x, y, z)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) DB() *sql.DB { return s.db }

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

// RecordSnapshot indexes a written snapshot file and its per-segment summary.
func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:     snap.Header.Tick,
		Path:     path,
		Entities: len(snap.Entities),
		Segments: make([]segmentRow, 0, len(snap.Segments)),
	}
	for _, seg := range snap.Segments {
		row := segmentRow{
			X: seg.Pos[0], Y: seg.Pos[1], Z: seg.Pos[2],
			Transport: seg.Transport,
			GateKind:  "NONE",
			Wires:     channelList(seg.Wires),
			Broadcast: channelList(seg.Broadcast),
			Redstone:  seg.BroadcastRedstone,
		}
		if seg.Gate != nil {
			row.GateKind = seg.Gate.Kind
			r.Gates++
		}
		for _, sl := range seg.Slots {
			if sl.Trigger != "" && sl.Action != "" {
				row.Slots++
			}
		}
		r.Segments = append(r.Segments, row)
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func channelList(flags []bool) string {
	var names []string
	for i, on := range flags {
		if on && i < world.NumChannels {
			names = append(names, world.Channel(i).String())
		}
	}
	return strings.Join(names, ",")
}

// UpsertCatalogs stores the raw catalog files and the applied tuning, keyed by digest.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "triggers.json")); err == nil {
			rows = append(rows, kv{name: "triggers_defs", digest: cats.Triggers.DefsDigest, json: b})
		}
		if b, err := os.ReadFile(filepath.Join(configDir, "actions.json")); err == nil {
			rows = append(rows, kv{name: "actions_defs", digest: cats.Actions.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Triggers.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "triggers_palette", digest: cats.Triggers.PaletteDigest, json: b})
	}
	if b, _ := json.Marshal(cats.Actions.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "actions_palette", digest: cats.Actions.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		var err error
		switch r.kind {
		case reqTick:
			err = insertTick(tx, r.tick, &opCount)
		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			err = insertAudit(tx, a, auditSeq)
			auditSeq++
			opCount++
		case reqSnapshot:
			err = insertSnapshot(tx, r.snapshot, &opCount)
		}
		if err != nil {
			rollback()
			continue
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

func insertTick(tx *sql.Tx, e world.TickLogEntry, ops *int) error {
	raw, _ := json.Marshal(e)
	if _, err := tx.Exec(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,edits,raw_json) VALUES(?,?,?,?,?,?)`,
		int64(e.Tick), e.Digest, len(e.Joins), len(e.Leaves), len(e.Edits), string(raw)); err != nil {
		return err
	}
	*ops++
	for _, j := range e.Joins {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO joins(tick,client_id,name) VALUES(?,?,?)`, int64(e.Tick), j.ClientID, j.Name); err != nil {
			return err
		}
		*ops++
	}
	for _, id := range e.Leaves {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO leaves(tick,client_id) VALUES(?,?)`, int64(e.Tick), id); err != nil {
			return err
		}
		*ops++
	}
	for i, ed := range e.Edits {
		b, _ := json.Marshal(ed.Edit)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO edits(tick,seq,client_id,ops,edit_json) VALUES(?,?,?,?,?)`,
			int64(e.Tick), i, ed.ClientID, len(ed.Edit.Ops), string(b)); err != nil {
			return err
		}
		*ops++
	}
	return nil
}

func insertAudit(tx *sql.Tx, a world.AuditEntry, seq int) error {
	raw, _ := json.Marshal(a)
	_, err := tx.Exec(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,x,y,z,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`,
		int64(a.Tick), seq, a.Actor, a.Action, a.Pos[0], a.Pos[1], a.Pos[2], a.Reason, string(raw))
	return err
}

func insertSnapshot(tx *sql.Tx, sn snapshotRow, ops *int) error {
	if _, err := tx.Exec(`INSERT OR REPLACE INTO snapshots(tick,path,segments,entities,gates) VALUES(?,?,?,?,?)`,
		int64(sn.Tick), sn.Path, len(sn.Segments), sn.Entities, sn.Gates); err != nil {
		return err
	}
	*ops++
	if _, err := tx.Exec(`DELETE FROM snapshot_segments WHERE tick=?`, int64(sn.Tick)); err != nil {
		return err
	}
	for _, sg := range sn.Segments {
		redstone := 0
		if sg.Redstone {
			redstone = 1
		}
		if _, err := tx.Exec(`INSERT INTO snapshot_segments(tick,x,y,z,transport,gate_kind,wires,broadcast,redstone,slots) VALUES(?,?,?,?,?,?,?,?,?,?)`,
			int64(sn.Tick), sg.X, sg.Y, sg.Z, sg.Transport, sg.GateKind, sg.Wires, sg.Broadcast, redstone, sg.Slots); err != nil {
			return err
		}
		*ops++
	}
	return nil
}
