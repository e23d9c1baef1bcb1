package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"signalgrid.ai/internal/persistence/archive"
	"signalgrid.ai/internal/persistence/indexdb"
	persistlog "signalgrid.ai/internal/persistence/log"
	"signalgrid.ai/internal/persistence/snapshot"
	"signalgrid.ai/internal/sim/catalogs"
	"signalgrid.ai/internal/sim/tuning"
	"signalgrid.ai/internal/sim/world"
	"signalgrid.ai/internal/transport/mqttbridge"
	"signalgrid.ai/internal/transport/upstream"
	"signalgrid.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "grid_1", "world id")
		role       = flag.String("role", string(world.RoleServer), "simulation role: server|client")
		configDir  = flag.String("configs", "./configs", "config directory")
		schemasDir = flag.String("schemas", "./schemas", "json schema directory (empty disables inbound EDIT validation)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (ticks, edits, audits, snapshots, catalogs)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		mqttBroker = flag.String("mqtt_broker", "", "MQTT broker url for BRIDGE entities, e.g. tcp://localhost:1883 (empty disables)")
		mqttClient = flag.String("mqtt_client_id", "", "MQTT client id (default: signalgrid-<world>)")

		upstreamURL = flag.String("upstream", "", "authoritative server ws url to mirror, e.g. ws://host:8080/v1/ws (required for -role=client)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Tuning is required for a fresh world; a resume carries its own parameters.
	tune, err := tuning.Load(tp)
	if err != nil {
		if snapshotToLoad == "" || !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	cfg := world.WorldConfig{
		ID:                 *worldID,
		TickRateHz:         tune.TickRateHz,
		GateEveryTicks:     tune.GateResolveEveryTicks,
		PulseEveryTicks:    tune.PulseEveryTicks,
		PulseEnergy:        tune.PulseEnergy,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		Role:               world.Role(*role),
	}
	if hasUpstream := strings.TrimSpace(*upstreamURL) != ""; hasUpstream != (cfg.Role == world.RoleClient) {
		logger.Fatalf("-upstream and -role=client go together (role=%s upstream=%q)", cfg.Role, *upstreamURL)
	}
	w, err := world.New(cfg, cats)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	if idx != nil {
		w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
		w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})
	} else {
		w.SetTickLogger(tickLog)
		w.SetAuditLogger(auditLog)
	}

	var pub *mqttbridge.Publisher
	if broker := strings.TrimSpace(*mqttBroker); broker != "" {
		clientID := strings.TrimSpace(*mqttClient)
		if clientID == "" {
			clientID = "signalgrid-" + *worldID
		}
		mqttLogger := log.New(os.Stdout, "[mqtt] ", log.LstdFlags|log.Lmicroseconds)
		client, err := mqttbridge.Connect(broker, clientID, 10*time.Second, mqttLogger)
		if err != nil {
			logger.Fatalf("mqtt: %v", err)
		}
		pub = mqttbridge.NewPublisher(client, mqttbridge.Config{
			TopicPrefix: tune.MQTT.TopicPrefix,
			QoS:         tune.MQTT.QoS,
		}, mqttLogger)
		defer pub.Close()
		w.SetDispatcher(pub)
		logger.Printf("bridge publishing to %s under %s/%s", broker, tune.MQTT.TopicPrefix, *worldID)
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go runSnapshotWriter(ctx, worldDir, snapCh, idx, tune.ArchiveEveryTicks, logger)

	// The deferred closers above run only after the world loop has returned.
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()
	defer func() {
		cancel()
		<-runDone
	}()

	if u := strings.TrimSpace(*upstreamURL); u != "" {
		f := upstream.NewFollower(upstream.Config{URL: u, Name: *worldID, MaxQueue: tune.ObserverMaxQueue},
			log.New(os.Stdout, "[upstream] ", log.LstdFlags|log.Lmicroseconds))
		go func() {
			if err := f.Run(ctx, w.Replicate()); err != nil && err != context.Canceled {
				logger.Printf("upstream stopped: %v", err)
			}
		}()
	}

	wsSrv := ws.NewServer(w, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	wsSrv.SetMaxQueue(tune.ObserverMaxQueue)
	if dir := strings.TrimSpace(*schemasDir); dir != "" {
		schema, err := ws.LoadEditSchema(filepath.Join(dir, "edit.schema.json"))
		if err != nil {
			logger.Printf("edit schema disabled: %v", err)
		} else {
			wsSrv.SetEditSchema(schema)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		writePromMetrics(rw, w, idx, pub)
	})
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/v1/bootstrap", wsSrv.BootstrapHandler())

	if envBool("SG_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/metrics", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
				Index   *indexdb.Stats     `json:"index,omitempty"`
				MQTT    *mqttbridge.Stats  `json:"mqtt,omitempty"`
			}{
				WorldID: *worldID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			if idx != nil {
				st := idx.Stats()
				resp.Index = &st
			}
			if pub != nil {
				st := pub.Stats()
				resp.MQTT = &st
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (SG_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("SG_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s role=%s", *addr, *worldID, cfg.Role)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func runSnapshotWriter(ctx context.Context, worldDir string, ch <-chan snapshot.SnapshotV1, idx *indexdb.SQLiteIndex, archiveEvery int, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := snapshot.Path(worldDir, snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
			if dst, ok, err := archive.ArchiveCheckpoint(worldDir, path, snap, archiveEvery); err != nil {
				logger.Printf("archive: %v", err)
			} else if ok {
				logger.Printf("archived checkpoint tick=%d -> %s", snap.Header.Tick, dst)
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
