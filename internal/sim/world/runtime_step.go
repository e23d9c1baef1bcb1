package world

import (
	"encoding/json"
	"sort"
	"time"

	"signalgrid.ai/internal/protocol"
)

func (w *World) step(joins []JoinRequest, leaves []string, edits []EditEnvelope) string {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	w.now = nowTick

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := w.clients[id]; ok {
			delete(w.clients, id)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := w.joinClient(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, RecordedJoin{ClientID: resp.ClientID, Name: req.Name})
	}

	// Apply edits in server receive order (the inbox order).
	recorded := make([]RecordedEdit, 0, len(edits))
	for _, env := range edits {
		env.Edit.ClientID = env.ClientID // trust session identity
		recorded = append(recorded, RecordedEdit{ClientID: env.ClientID, Edit: env.Edit})
		results := w.applyEdit(env, nowTick)
		w.sendEditResult(env.ClientID, nowTick, results)
	}

	w.systemSegments()
	refreshed := w.systemReplication(nowTick)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:   nowTick,
			Joins:  recordedJoins,
			Leaves: recordedLeaves,
			Edits:  recorded,
			Digest: digest,
		})
	}

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && nowTick != 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
		}
	}

	nextTick := w.tick.Add(1)
	w.metrics.Store(WorldMetrics{
		Tick:            nextTick,
		Segments:        len(w.segments),
		Entities:        len(w.entities),
		Gates:           w.countGates(),
		Clients:         len(w.clients),
		QueueDepths:     QueueDepths{Inbox: len(w.inbox), Join: len(w.join), Leave: len(w.leave)},
		StepMS:          float64(time.Since(stepStart).Microseconds()) / 1000.0,
		GateResolutions: w.gateResolutions,
		Refreshed:       refreshed,
	})
	return digest
}

// systemSegments updates every segment once, in ascending position order.
func (w *World) systemSegments() {
	order := w.segmentOrder()
	for _, p := range order {
		if s := w.segments[p]; s != nil {
			s.Update()
		}
	}
}

// systemReplication diffs refresh-requested segments against the last replicated view
// and sends the changes. Newly joined or lagging clients get the full view instead.
func (w *World) systemReplication(nowTick uint64) int {
	positions := make([]Vec3i, 0, len(w.refresh))
	for p := range w.refresh {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return lessPos(positions[i], positions[j]) })
	for p := range w.refresh {
		delete(w.refresh, p)
	}

	delta := protocol.StateMsg{Type: protocol.TypeState, ProtocolVersion: protocol.Version, Tick: nowTick}
	for _, p := range positions {
		s := w.segments[p]
		if s == nil {
			if _, ok := w.replicated[p]; ok {
				delete(w.replicated, p)
				delta.Removed = append(delta.Removed, p.ToArray())
			}
			continue
		}
		cur := s.NetState()
		var prevPtr *NetState
		if prev, ok := w.replicated[p]; ok {
			prevPtr = &prev
		}
		changes := DiffNetState(prevPtr, &cur)
		w.replicated[p] = cur
		if len(changes) > 0 {
			delta.Segments = append(delta.Segments, protocol.SegmentDelta{Pos: p.ToArray(), Fields: changes})
		}
	}

	if len(w.clients) == 0 {
		return len(positions)
	}
	var deltaBytes, fullBytes []byte
	if len(delta.Segments) > 0 || len(delta.Removed) > 0 {
		deltaBytes, _ = json.Marshal(delta)
	}
	ids := make([]string, 0, len(w.clients))
	for id := range w.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := w.clients[id]
		if c.Out == nil {
			continue
		}
		if c.needFull {
			if fullBytes == nil {
				fullBytes, _ = json.Marshal(w.fullStateMsg(nowTick))
			}
			if trySend(c.Out, fullBytes) {
				c.needFull = false
			}
			continue
		}
		if deltaBytes != nil && !trySend(c.Out, deltaBytes) {
			// Missed a delta: resync with a full view once the queue drains.
			c.needFull = true
		}
	}
	return len(positions)
}

func (w *World) fullStateMsg(nowTick uint64) protocol.StateMsg {
	msg := protocol.StateMsg{Type: protocol.TypeState, ProtocolVersion: protocol.Version, Tick: nowTick, Full: true}
	positions := make([]Vec3i, 0, len(w.replicated))
	for p := range w.replicated {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return lessPos(positions[i], positions[j]) })
	for _, p := range positions {
		st := w.replicated[p]
		msg.Segments = append(msg.Segments, protocol.SegmentDelta{Pos: p.ToArray(), Fields: DiffNetState(nil, &st)})
	}
	return msg
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}

func (w *World) countGates() int {
	n := 0
	for _, s := range w.segments {
		if s.gate != nil {
			n++
		}
	}
	return n
}
