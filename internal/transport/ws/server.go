package ws

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"signalgrid.ai/internal/protocol"
	"signalgrid.ai/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader

	// editSchema, when set, rejects EDIT messages that do not validate.
	editSchema *jsonschema.Schema
	maxQueue   int

	// A session that sends nothing, pongs included, for idleTimeout is dropped.
	pingInterval time.Duration
	idleTimeout  time.Duration
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world:        w,
		log:          logger,
		maxQueue:     64,
		pingInterval: 20 * time.Second,
		idleTimeout:  60 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// SetEditSchema enables inbound EDIT validation against a compiled JSON schema.
func (s *Server) SetEditSchema(schema *jsonschema.Schema) { s.editSchema = schema }

// SetMaxQueue caps the per-session outbound queue a client may ask for.
func (s *Server) SetMaxQueue(n int) {
	if n > 0 {
		s.maxQueue = n
	}
}

// SetKeepalive sets how often the server pings each session and how long it waits
// for any inbound frame before dropping it. ping must be shorter than idle.
func (s *Server) SetKeepalive(ping, idle time.Duration) {
	if ping > 0 && idle > ping {
		s.pingInterval = ping
		s.idleTimeout = idle
	}
}

// LoadEditSchema compiles schemas/edit.schema.json from dir.
func LoadEditSchema(path string) (*jsonschema.Schema, error) {
	return jsonschema.Compile(path)
}

type session struct {
	id   string
	role string
	out  chan []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.logf("session %s joined as %s from %s", sess.id, sess.role, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. It is the only writer once the handshake is done, pings included.
		go func() {
			ping := time.NewTicker(s.pingInterval)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				case b, ok := <-sess.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop. Pongs extend the deadline so read-only observers stay connected.
		idle := s.idleTimeout
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(idle))
		})
		for {
			_ = conn.SetReadDeadline(time.Now().Add(idle))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.handleMessage(sess, msg)
		}

		s.world.Leave() <- sess.id
		s.logf("session %s left", sess.id)
	}
}

func (s *Server) handleMessage(sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeEdit {
		return
	}
	var edit protocol.EditMsg
	if err := json.Unmarshal(msg, &edit); err != nil {
		s.reject(sess, edit, protocol.ErrProtoBadRequest, "malformed EDIT")
		return
	}
	if edit.ProtocolVersion != protocol.Version {
		s.reject(sess, edit, protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}
	if s.editSchema != nil {
		var doc any
		if err := json.Unmarshal(msg, &doc); err != nil || s.editSchema.Validate(doc) != nil {
			s.reject(sess, edit, protocol.ErrProtoBadRequest, "EDIT does not match schema")
			return
		}
	}
	if sess.role != protocol.RoleEditor {
		s.reject(sess, edit, protocol.ErrProtoRole, "observers cannot edit")
		return
	}
	select {
	case s.world.Inbox() <- world.EditEnvelope{ClientID: sess.id, Edit: edit}:
	default:
		s.reject(sess, edit, protocol.ErrWorldBusy, "edit queue full")
	}
}

// reject answers every op of an EDIT with the same error. Results are queued like any
// other outbound message and dropped if the session is backed up.
func (s *Server) reject(sess *session, edit protocol.EditMsg, code, message string) {
	results := make([]protocol.OpResult, 0, len(edit.Ops))
	for _, op := range edit.Ops {
		results = append(results, protocol.OpResult{ID: op.ID, OK: false, Code: code, Message: message})
	}
	if len(results) == 0 {
		results = append(results, protocol.OpResult{OK: false, Code: code, Message: message})
	}
	b, err := json.Marshal(protocol.EditResultMsg{
		Type:            protocol.TypeEditResult,
		ProtocolVersion: protocol.Version,
		Tick:            s.world.CurrentTick(),
		Results:         results,
	})
	if err != nil {
		return
	}
	select {
	case sess.out <- b:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "malformed HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}
	switch hello.Role {
	case "":
		hello.Role = protocol.RoleObserver
	case protocol.RoleEditor, protocol.RoleObserver:
	default:
		closeWith(conn, "unknown role")
		return nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > s.maxQueue {
		maxQ = s.maxQueue
	}
	out := make(chan []byte, maxQ)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		Name: hello.ClientName,
		Role: hello.Role,
		Out:  out,
		Resp: respCh,
	}
	resp := <-respCh

	// Welcome and catalogs go out before the writer goroutine starts, so they always
	// precede the first STATE.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- resp.ClientID
		return nil
	}
	for _, c := range resp.Catalogs {
		if err := writeJSON(conn, c); err != nil {
			s.world.Leave() <- resp.ClientID
			return nil
		}
	}
	return &session{id: resp.ClientID, role: hello.Role, out: out}
}

// BootstrapHandler serves world parameters over plain HTTP, loopback only.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		cfg := s.world.Config()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			ProtocolVersion string               `json:"protocol_version"`
			Tick            uint64               `json:"tick"`
			Role            string               `json:"role"`
			WorldParams     protocol.WorldParams `json:"world_params"`
		}{
			ProtocolVersion: protocol.Version,
			Tick:            s.world.CurrentTick(),
			Role:            string(cfg.Role),
			WorldParams: protocol.WorldParams{
				WorldID:        cfg.ID,
				TickRateHz:     cfg.TickRateHz,
				GateEveryTicks: cfg.GateEveryTicks,
				Channels:       world.ChannelNames(),
				SlotCount:      world.SlotCount,
				MaxSignal:      world.MaxSignal,
			},
		})
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
