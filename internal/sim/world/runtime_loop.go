package world

import (
	"context"
	"time"

	"signalgrid.ai/internal/protocol"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingEdits []EditEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingStates []protocol.StateMsg

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingEdits = append(pendingEdits, env)
		case st := <-w.replicate:
			pendingStates = append(pendingStates, st)
		case <-ticker.C:
			for _, st := range pendingStates {
				w.ApplyReplicatedState(st)
			}
			pendingStates = pendingStates[:0]
			w.step(pendingJoins, pendingLeaves, pendingEdits)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingEdits = pendingEdits[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, edits []EditEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.step(joins, leaves, edits)
	return tick, digest
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}
