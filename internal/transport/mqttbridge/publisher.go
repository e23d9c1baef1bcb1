// Package mqttbridge publishes actions dispatched to BRIDGE entities onto an MQTT broker.
package mqttbridge

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"signalgrid.ai/internal/sim/world"
)

// Client is the part of mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type Config struct {
	TopicPrefix string
	QoS         int
	QueueSize   int
	// PublishTimeout bounds how long one publish may wait for the broker.
	PublishTimeout time.Duration
	// Quiesce is passed to Disconnect on Close, in milliseconds.
	Quiesce uint
}

func (c *Config) applyDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "signalgrid"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.Quiesce == 0 {
		c.Quiesce = 250
	}
}

// Publisher implements world.Dispatcher. Dispatch never blocks the simulation: events
// are queued and published by a single goroutine, and dropped when the queue is full.
type Publisher struct {
	client Client
	cfg    Config
	log    *log.Logger

	queue chan world.DispatchEvent
	wg    sync.WaitGroup
	once  sync.Once

	// mu orders Dispatch sends against close(queue).
	mu     sync.RWMutex
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Queued    int    `json:"queued"`
}

func NewPublisher(client Client, cfg Config, logger *log.Logger) *Publisher {
	cfg.applyDefaults()
	p := &Publisher{
		client: client,
		cfg:    cfg,
		log:    logger,
		queue:  make(chan world.DispatchEvent, cfg.QueueSize),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
	return p
}

// Topic is <prefix>/<world>/<x>_<y>_<z>/action.
func Topic(prefix, worldID string, pos [3]int) string {
	return fmt.Sprintf("%s/%s/%d_%d_%d/action", prefix, worldID, pos[0], pos[1], pos[2])
}

func (p *Publisher) Dispatch(ev world.DispatchEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
		Queued:    len(p.queue),
	}
}

// Close publishes what is already queued, then disconnects.
func (p *Publisher) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		p.wg.Wait()
		p.client.Disconnect(p.cfg.Quiesce)
	})
}

func (p *Publisher) loop() {
	for ev := range p.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.failed.Add(1)
			continue
		}
		topic := Topic(p.cfg.TopicPrefix, ev.WorldID, ev.Pos)
		tok := p.client.Publish(topic, byte(p.cfg.QoS), false, payload)
		if !tok.WaitTimeout(p.cfg.PublishTimeout) {
			p.failed.Add(1)
			p.logf("publish %s: timeout", topic)
			continue
		}
		if err := tok.Error(); err != nil {
			p.failed.Add(1)
			p.logf("publish %s: %v", topic, err)
			continue
		}
		p.published.Add(1)
	}
}

func (p *Publisher) logf(format string, args ...any) {
	if p.log != nil {
		p.log.Printf(format, args...)
	}
}

// Connect dials broker (e.g. tcp://localhost:1883) and waits for the session.
func Connect(broker, clientID string, timeout time.Duration, logger *log.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		if logger != nil {
			logger.Printf("mqtt connection lost: %v", err)
		}
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return c, nil
}
