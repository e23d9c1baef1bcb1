package main

import (
	"fmt"
	"net/http"

	"signalgrid.ai/internal/persistence/indexdb"
	"signalgrid.ai/internal/sim/world"
	"signalgrid.ai/internal/transport/mqttbridge"
)

// writePromMetrics renders the minimal Prometheus text exposition format.
func writePromMetrics(rw http.ResponseWriter, w *world.World, idx *indexdb.SQLiteIndex, pub *mqttbridge.Publisher) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	id := w.ID()
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	gauge := func(name, help string) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
	}

	gauge("signalgrid_world_tick", "Current world tick.")
	fmt.Fprintf(rw, "signalgrid_world_tick{world=%q} %d\n", id, tick)

	gauge("signalgrid_world_segments", "Placed segments.")
	fmt.Fprintf(rw, "signalgrid_world_segments{world=%q} %d\n", id, m.Segments)

	gauge("signalgrid_world_gates", "Segments carrying a gate.")
	fmt.Fprintf(rw, "signalgrid_world_gates{world=%q} %d\n", id, m.Gates)

	gauge("signalgrid_world_entities", "Non-segment neighbors.")
	fmt.Fprintf(rw, "signalgrid_world_entities{world=%q} %d\n", id, m.Entities)

	gauge("signalgrid_world_clients", "Connected sessions.")
	fmt.Fprintf(rw, "signalgrid_world_clients{world=%q} %d\n", id, m.Clients)

	gauge("signalgrid_world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(rw, "signalgrid_world_queue_depth{world=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "signalgrid_world_queue_depth{world=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "signalgrid_world_queue_depth{world=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)

	gauge("signalgrid_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(rw, "signalgrid_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

	gauge("signalgrid_world_refreshed", "Segments replicated in the last tick.")
	fmt.Fprintf(rw, "signalgrid_world_refreshed{world=%q} %d\n", id, m.Refreshed)

	fmt.Fprintf(rw, "# HELP signalgrid_gate_resolutions_total Gate resolutions since start.\n")
	fmt.Fprintf(rw, "# TYPE signalgrid_gate_resolutions_total counter\n")
	fmt.Fprintf(rw, "signalgrid_gate_resolutions_total{world=%q} %d\n", id, m.GateResolutions)

	if idx != nil {
		st := idx.Stats()
		gauge("signalgrid_index_queue_depth", "Index writer backlog.")
		fmt.Fprintf(rw, "signalgrid_index_queue_depth{world=%q} %d\n", id, st.QueueDepth)
		fmt.Fprintf(rw, "# HELP signalgrid_index_dropped_total Index writes dropped under backpressure.\n")
		fmt.Fprintf(rw, "# TYPE signalgrid_index_dropped_total counter\n")
		fmt.Fprintf(rw, "signalgrid_index_dropped_total{world=%q,kind=%q} %d\n", id, "tick", st.DropTickTotal)
		fmt.Fprintf(rw, "signalgrid_index_dropped_total{world=%q,kind=%q} %d\n", id, "audit", st.DropAuditTotal)
		fmt.Fprintf(rw, "signalgrid_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshot", st.DropSnapshotTotal)
	}
	if pub != nil {
		st := pub.Stats()
		fmt.Fprintf(rw, "# HELP signalgrid_mqtt_events_total Bridge events by outcome.\n")
		fmt.Fprintf(rw, "# TYPE signalgrid_mqtt_events_total counter\n")
		fmt.Fprintf(rw, "signalgrid_mqtt_events_total{world=%q,outcome=%q} %d\n", id, "published", st.Published)
		fmt.Fprintf(rw, "signalgrid_mqtt_events_total{world=%q,outcome=%q} %d\n", id, "dropped", st.Dropped)
		fmt.Fprintf(rw, "signalgrid_mqtt_events_total{world=%q,outcome=%q} %d\n", id, "failed", st.Failed)
	}
}
