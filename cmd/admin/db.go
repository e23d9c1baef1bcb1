package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "snapshot tick for `segments` (optional; defaults to latest)")
	limit := fs.Int("limit", 20, "result limit")
	client := fs.String("client", "", "client_id filter (edits, audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, *tick, *limit, *client); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

// runQuery prints one JSON object per row for the named query.
func runQuery(db *sql.DB, q string, tick uint64, limit int, client string) error {
	switch q {
	case "snapshots":
		return eachRow(db, `SELECT tick,path,segments,entities,gates FROM snapshots ORDER BY tick DESC LIMIT ?`,
			[]any{limit}, func(rows *sql.Rows) error {
				var r struct {
					Tick     int64  `json:"tick"`
					Path     string `json:"path"`
					Segments int    `json:"segments"`
					Entities int    `json:"entities"`
					Gates    int    `json:"gates"`
				}
				if err := rows.Scan(&r.Tick, &r.Path, &r.Segments, &r.Entities, &r.Gates); err != nil {
					return err
				}
				printJSON(r)
				return nil
			})

	case "segments":
		if tick == 0 {
			lt, err := latestSnapshotTick(db)
			if err != nil {
				return err
			}
			if lt == 0 {
				return fmt.Errorf("no snapshots found")
			}
			tick = lt
		}
		return eachRow(db, `SELECT x,y,z,transport,gate_kind,wires,broadcast,redstone,slots FROM snapshot_segments WHERE tick=? ORDER BY x,y,z`,
			[]any{int64(tick)}, func(rows *sql.Rows) error {
				var r struct {
					Tick      uint64 `json:"tick"`
					Pos       [3]int `json:"pos"`
					Transport string `json:"transport"`
					GateKind  string `json:"gate_kind"`
					Wires     string `json:"wires"`
					Broadcast string `json:"broadcast"`
					Redstone  bool   `json:"redstone"`
					Slots     int    `json:"slots"`
				}
				if err := rows.Scan(&r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Transport, &r.GateKind, &r.Wires, &r.Broadcast, &r.Redstone, &r.Slots); err != nil {
					return err
				}
				r.Tick = tick
				printJSON(r)
				return nil
			})

	case "ticks":
		return eachRow(db, `SELECT tick,digest,joins,leaves,edits FROM ticks ORDER BY tick DESC LIMIT ?`,
			[]any{limit}, func(rows *sql.Rows) error {
				var r struct {
					Tick   int64  `json:"tick"`
					Digest string `json:"digest"`
					Joins  int    `json:"joins"`
					Leaves int    `json:"leaves"`
					Edits  int    `json:"edits"`
				}
				if err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Edits); err != nil {
					return err
				}
				printJSON(r)
				return nil
			})

	case "edits":
		return eachRow(db, `SELECT tick,seq,client_id,edit_json FROM edits WHERE (?='' OR client_id=?) ORDER BY tick DESC, seq DESC LIMIT ?`,
			[]any{client, client, limit}, func(rows *sql.Rows) error {
				var r struct {
					Tick     int64           `json:"tick"`
					Seq      int             `json:"seq"`
					ClientID string          `json:"client_id"`
					Edit     json.RawMessage `json:"edit"`
				}
				var raw string
				if err := rows.Scan(&r.Tick, &r.Seq, &r.ClientID, &raw); err != nil {
					return err
				}
				r.Edit = json.RawMessage(raw)
				printJSON(r)
				return nil
			})

	case "audits":
		return eachRow(db, `SELECT tick,seq,actor,action,x,y,z,COALESCE(reason,'') FROM audits WHERE (?='' OR actor=?) ORDER BY tick DESC, seq DESC LIMIT ?`,
			[]any{client, client, limit}, func(rows *sql.Rows) error {
				var r struct {
					Tick   int64  `json:"tick"`
					Seq    int    `json:"seq"`
					Actor  string `json:"actor"`
					Action string `json:"action"`
					Pos    [3]int `json:"pos"`
					Reason string `json:"reason,omitempty"`
				}
				if err := rows.Scan(&r.Tick, &r.Seq, &r.Actor, &r.Action, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Reason); err != nil {
					return err
				}
				printJSON(r)
				return nil
			})

	case "catalogs":
		return eachRow(db, `SELECT name,digest,updated_at FROM catalogs ORDER BY name`, nil, func(rows *sql.Rows) error {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return err
			}
			printJSON(r)
			return nil
		})

	default:
		return fmt.Errorf("unknown query (want snapshots|segments|ticks|edits|audits|catalogs)")
	}
}

func eachRow(db *sql.DB, query string, args []any, fn func(*sql.Rows) error) error {
	rows, err := db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func latestSnapshotTick(db *sql.DB) (uint64, error) {
	if db == nil {
		return 0, fmt.Errorf("nil db")
	}
	var t int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(tick),0) FROM snapshots`).Scan(&t); err != nil {
		return 0, err
	}
	if t < 0 {
		return 0, nil
	}
	return uint64(t), nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
