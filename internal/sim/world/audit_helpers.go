package world

import (
	"sort"
	"strings"
)

func (w *World) auditEvent(tick uint64, actor string, action string, pos Vec3i, reason string, details map[string]any) {
	if w.auditLogger == nil {
		return
	}
	_ = w.auditLogger.WriteAudit(AuditEntry{
		Tick:    tick,
		Actor:   actor,
		Action:  action,
		Pos:     pos.ToArray(),
		Reason:  reason,
		Details: details,
	})
}

// gateAuditor is the variant installed on every world segment. It counts resolutions
// and audits a gate whenever its set of active actions changes.
type gateAuditor struct {
	w *World
}

func (g gateAuditor) ActionsActivated(s *Segment, resolved map[ActionID]bool) {
	w := g.w
	w.gateResolutions++

	active := make([]string, 0, len(resolved))
	for id, on := range resolved {
		if !on {
			continue
		}
		if a := w.registry.Action(id); a != nil {
			active = append(active, a.Name)
		}
	}
	sort.Strings(active)
	key := strings.Join(active, ",")
	if prev, ok := w.lastResolved[s.pos]; ok && prev == key {
		return
	}
	w.lastResolved[s.pos] = key
	w.auditEvent(w.now, "GATE", "GATE_ACTIONS", s.pos, "", map[string]any{"active": active})
}
