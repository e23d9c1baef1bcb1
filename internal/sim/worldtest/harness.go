package worldtest

import (
	"encoding/json"
	"testing"

	"signalgrid.ai/internal/persistence/snapshot"
	"signalgrid.ai/internal/protocol"
	"signalgrid.ai/internal/sim/catalogs"
	world "signalgrid.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join() issues JoinRequest via StepOnce()
// - Edit()/EditAs() issues EDIT via StepOnce()
// - Per-session Out channels carry EDIT_RESULT and STATE JSON
// - each session keeps the replicated view its STATE messages describe
//
// It avoids world internals so tests can live outside the world package.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	W    *world.World

	DefaultClientID string

	sessions map[string]*session
}

func LoadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

// NewHarness builds a world and joins one EDITOR session as the default client.
func NewHarness(t *testing.T, cfg world.WorldConfig, cats *catalogs.Catalogs, clientName string) *Harness {
	t.Helper()

	w, err := world.New(cfg, cats)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w, cats, clientName)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
// Snapshot round-trip tests import before joining.
func NewHarnessWithWorld(t *testing.T, w *world.World, cats *catalogs.Catalogs, clientName string) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}

	h := &Harness{
		T:        t,
		Cats:     cats,
		W:        w,
		sessions: map[string]*session{},
	}
	h.DefaultClientID = h.Join(clientName, protocol.RoleEditor)
	return h
}

type session struct {
	ClientID string
	Role     string
	Out      chan []byte

	lastResults []protocol.OpResult
	fullStates  int
	view        map[[3]int]world.NetState
}

func (h *Harness) Join(name, role string) string {
	h.T.Helper()

	out := make(chan []byte, 64)
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepOnce([]world.JoinRequest{{
		Name: name,
		Role: role,
		Out:  out,
		Resp: resp,
	}}, nil, nil)
	jr := <-resp
	if jr.ClientID == "" {
		h.T.Fatalf("join returned empty client id")
	}
	s := &session{ClientID: jr.ClientID, Role: jr.Welcome.Role, Out: out, view: map[[3]int]world.NetState{}}
	h.sessions[s.ClientID] = s
	h.drainAll()
	return s.ClientID
}

func (h *Harness) Leave(clientID string) {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, []string{clientID}, nil)
	delete(h.sessions, clientID)
}

// Edit submits ops for the default client and returns their results.
func (h *Harness) Edit(ops ...protocol.EditOp) []protocol.OpResult {
	return h.EditAs(h.DefaultClientID, ops...)
}

func (h *Harness) EditAs(clientID string, ops ...protocol.EditOp) []protocol.OpResult {
	h.T.Helper()
	s := h.sessionFor(clientID)
	s.lastResults = nil
	_, _ = h.W.StepOnce(nil, nil, []world.EditEnvelope{{
		ClientID: clientID,
		Edit: protocol.EditMsg{
			Type:            protocol.TypeEdit,
			ProtocolVersion: protocol.Version,
			Tick:            h.W.CurrentTick(),
			Ops:             ops,
		},
	}})
	h.drainAll()
	return s.lastResults
}

// MustEdit fails the test if any op is rejected.
func (h *Harness) MustEdit(ops ...protocol.EditOp) {
	h.T.Helper()
	for _, r := range h.Edit(ops...) {
		if !r.OK {
			h.T.Fatalf("op %s rejected: %s %s", r.ID, r.Code, r.Message)
		}
	}
}

// StepN advances n ticks and returns the last digest.
func (h *Harness) StepN(n int) string {
	h.T.Helper()
	var digest string
	for i := 0; i < n; i++ {
		_, digest = h.W.StepOnce(nil, nil, nil)
	}
	h.drainAll()
	return digest
}

// View returns the segment state a session has been told about.
func (h *Harness) View(clientID string) map[[3]int]world.NetState {
	return h.sessionFor(clientID).view
}

func (h *Harness) FullStates(clientID string) int {
	return h.sessionFor(clientID).fullStates
}

func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	// Export at currentTick-1 so an import resumes at currentTick.
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

func (h *Harness) sessionFor(clientID string) *session {
	h.T.Helper()
	s := h.sessions[clientID]
	if s == nil {
		h.T.Fatalf("unknown client id: %q", clientID)
	}
	return s
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		for {
			select {
			case b := <-s.Out:
				h.handle(s, b)
				continue
			default:
			}
			break
		}
	}
}

func (h *Harness) handle(s *session, b []byte) {
	h.T.Helper()
	base, err := protocol.DecodeBase(b)
	if err != nil {
		h.T.Fatalf("decode: %v", err)
	}
	switch base.Type {
	case protocol.TypeEditResult:
		var msg protocol.EditResultMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			h.T.Fatalf("unmarshal EDIT_RESULT: %v", err)
		}
		s.lastResults = msg.Results
	case protocol.TypeState:
		var msg protocol.StateMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			h.T.Fatalf("unmarshal STATE: %v", err)
		}
		if msg.Full {
			s.fullStates++
			s.view = map[[3]int]world.NetState{}
		}
		for _, d := range msg.Segments {
			st := s.view[d.Pos]
			world.ApplyNetState(&st, d.Fields)
			s.view[d.Pos] = st
		}
		for _, p := range msg.Removed {
			delete(s.view, p)
		}
	}
}
