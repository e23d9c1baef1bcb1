package world

import (
	"fmt"
	"sort"
	"sync/atomic"

	"signalgrid.ai/internal/persistence/snapshot"
	"signalgrid.ai/internal/protocol"
	"signalgrid.ai/internal/sim/catalogs"
)

type JoinRequest struct {
	Name string
	Role string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	ClientID string
	Welcome  protocol.WelcomeMsg
	Catalogs []protocol.CatalogMsg
}

type EditEnvelope struct {
	ClientID string
	Edit     protocol.EditMsg
}

type RecordedJoin struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
}

type RecordedEdit struct {
	ClientID string           `json:"client_id"`
	Edit     protocol.EditMsg `json:"edit"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick   uint64         `json:"tick"`
	Joins  []RecordedJoin `json:"joins,omitempty"`
	Leaves []string       `json:"leaves,omitempty"`
	Edits  []RecordedEdit `json:"edits,omitempty"`
	Digest string         `json:"digest"`
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "PLACE_SEGMENT"
	Pos     [3]int         `json:"pos"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// World is a single-threaded authoritative simulation of segments and the entities
// around them. All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	registry *Registry

	tick atomic.Uint64
	// now is the tick currently being stepped; segments read it through Container.Time.
	now uint64

	segments map[Vec3i]*Segment
	entities map[Vec3i]Entity
	order    []Vec3i
	orderOK  bool

	clients map[string]*clientState

	refresh    map[Vec3i]struct{}
	replicated map[Vec3i]NetState

	// lastResolved is the active action set per gate, used to audit only changes.
	lastResolved map[Vec3i]string

	inbox chan EditEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}
	// replicate carries STATE from an upstream authority; applied before each step.
	replicate chan protocol.StateMsg

	nextClientNum atomic.Uint64

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1
	dispatcher   Dispatcher

	metrics atomic.Value

	gateResolutions uint64
}

type clientState struct {
	Out  chan []byte
	Role string
	// needFull is set on join; the client gets a full STATE after this tick's diff.
	needFull bool
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	reg, err := NewRegistry(cats)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	w := &World{
		cfg:          cfg,
		catalogs:     cats,
		registry:     reg,
		segments:     map[Vec3i]*Segment{},
		entities:     map[Vec3i]Entity{},
		clients:      map[string]*clientState{},
		refresh:      map[Vec3i]struct{}{},
		replicated:   map[Vec3i]NetState{},
		lastResolved: map[Vec3i]string{},
		inbox:        make(chan EditEnvelope, 1024),
		join:         make(chan JoinRequest, 64),
		leave:        make(chan string, 64),
		stop:         make(chan struct{}),
		replicate:    make(chan protocol.StateMsg, 64),
	}
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }
func (w *World) SetDispatcher(d Dispatcher)   { w.dispatcher = d }

func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- EditEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest   { return w.join }
func (w *World) Leave() chan<- string       { return w.leave }

// Replicate accepts STATE messages from the authoritative world. Only Run drains it.
func (w *World) Replicate() chan<- protocol.StateMsg { return w.replicate }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Registry() *Registry { return w.registry }

func (w *World) Config() WorldConfig { return w.cfg }

// Segment returns the segment at pos or nil. Loop goroutine only.
func (w *World) Segment(pos Vec3i) *Segment { return w.segments[pos] }

// EntityOf returns the non-segment entity at pos or nil. Loop goroutine only.
func (w *World) EntityOf(pos Vec3i) Entity { return w.entities[pos] }

func (w *World) addSegment(s *Segment) {
	w.segments[s.pos] = s
	w.orderOK = false
	s.Attach(w)
	s.SetVariant(gateAuditor{w: w})
}

func (w *World) dropSegment(pos Vec3i) *Segment {
	s := w.segments[pos]
	if s == nil {
		return nil
	}
	delete(w.segments, pos)
	delete(w.lastResolved, pos)
	w.orderOK = false
	s.Detach()
	return s
}

// segmentOrder is the deterministic update order: ascending position.
func (w *World) segmentOrder() []Vec3i {
	if w.orderOK {
		return w.order
	}
	w.order = w.order[:0]
	for p := range w.segments {
		w.order = append(w.order, p)
	}
	sort.Slice(w.order, func(i, j int) bool { return lessPos(w.order[i], w.order[j]) })
	w.orderOK = true
	return w.order
}

func (w *World) newClientID() string {
	n := w.nextClientNum.Add(1)
	return fmt.Sprintf("C%d", n)
}
