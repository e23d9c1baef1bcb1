// Package upstream follows an authoritative world over WebSocket so a client-role
// world can mirror it.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"signalgrid.ai/internal/protocol"
)

type Config struct {
	// URL is the authoritative server's /v1/ws endpoint.
	URL  string
	Name string
	// MaxQueue is asked for in HELLO; the server may cap it.
	MaxQueue int
	// IdleTimeout drops the connection when neither data nor pings arrive.
	IdleTimeout time.Duration
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "mirror"
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = 64
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = 5 * time.Second
	}
}

// Follower joins upstream as an OBSERVER and forwards every STATE it receives.
// Each reconnect starts with the full STATE the server sends on join.
type Follower struct {
	cfg Config
	log *log.Logger
}

func NewFollower(cfg Config, logger *log.Logger) *Follower {
	cfg.applyDefaults()
	return &Follower{cfg: cfg, log: logger}
}

// Run forwards STATE messages into sink until ctx is done, reconnecting with
// exponential backoff. Sends to sink block; dropping a delta would desync the mirror.
func (f *Follower) Run(ctx context.Context, sink chan<- protocol.StateMsg) error {
	backoff := f.cfg.MinBackoff
	for {
		welcomed, err := f.follow(ctx, sink)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if welcomed {
			backoff = f.cfg.MinBackoff
		}
		f.logf("upstream %s: %v (retry in %s)", f.cfg.URL, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < f.cfg.MaxBackoff {
			backoff *= 2
			if backoff > f.cfg.MaxBackoff {
				backoff = f.cfg.MaxBackoff
			}
		}
	}
}

func (f *Follower) follow(ctx context.Context, sink chan<- protocol.StateMsg) (welcomed bool, err error) {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.DialContext(ctx, f.cfg.URL, http.Header{})
	if err != nil {
		return false, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	// Wake a blocked ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      f.cfg.Name,
		Role:            protocol.RoleObserver,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: f.cfg.MaxQueue},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		return false, err
	}

	idle := f.cfg.IdleTimeout
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		_, b, err := conn.ReadMessage()
		if err != nil {
			return welcomed, err
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			if !welcomed {
				f.logf("following %s", f.cfg.URL)
			}
			welcomed = true
		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(b, &st); err != nil {
				return welcomed, fmt.Errorf("decode state: %w", err)
			}
			select {
			case sink <- st:
			case <-ctx.Done():
				return welcomed, ctx.Err()
			}
		}
	}
}

func (f *Follower) logf(format string, args ...any) {
	if f.log != nil {
		f.log.Printf(format, args...)
	}
}
