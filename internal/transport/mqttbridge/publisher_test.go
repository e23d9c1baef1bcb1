package mqttbridge

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"signalgrid.ai/internal/sim/world"
)

type fakeToken struct {
	mqtt.Token
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	msgs         []published
	fail         bool
	disconnected bool
	block        chan struct{}
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return fakeToken{err: errors.New("broker down")}
	}
	c.msgs = append(c.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func TestTopic(t *testing.T) {
	require.Equal(t, "sg/grid_1/1_-2_3/action", Topic("sg", "grid_1", [3]int{1, -2, 3}))
}

func TestPublisher_PublishesQueuedEventsOnClose(t *testing.T) {
	c := &fakeClient{}
	p := NewPublisher(c, Config{TopicPrefix: "sg", QoS: 1}, nil)

	var d world.Dispatcher = p
	d.Dispatch(world.DispatchEvent{WorldID: "w", Tick: 10, Pos: [3]int{0, 0, 1}, Action: "MACHINE_ON"})
	d.Dispatch(world.DispatchEvent{WorldID: "w", Tick: 20, Pos: [3]int{0, 0, 1}, Action: "MACHINE_OFF"})
	p.Close()

	require.True(t, c.disconnected)
	require.Len(t, c.msgs, 2)
	require.Equal(t, "sg/w/0_0_1/action", c.msgs[0].topic)
	require.Equal(t, byte(1), c.msgs[0].qos)

	var ev world.DispatchEvent
	require.NoError(t, json.Unmarshal(c.msgs[1].payload, &ev))
	require.Equal(t, "MACHINE_OFF", ev.Action)
	require.Equal(t, uint64(20), ev.Tick)
	require.Equal(t, uint64(2), p.Stats().Published)
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	c := &fakeClient{block: make(chan struct{})}
	p := NewPublisher(c, Config{QueueSize: 1}, nil)

	// The first event is taken by the publishing goroutine and blocks there; the
	// second fills the queue, so at least one of the rest must drop.
	for i := 0; i < 4; i++ {
		p.Dispatch(world.DispatchEvent{WorldID: "w", Tick: uint64(i)})
	}
	require.GreaterOrEqual(t, p.Stats().Dropped, uint64(2))

	close(c.block)
	p.Close()
	st := p.Stats()
	require.Equal(t, uint64(4), st.Published+st.Dropped)
}

func TestPublisher_CountsFailures(t *testing.T) {
	c := &fakeClient{fail: true}
	p := NewPublisher(c, Config{}, nil)
	p.Dispatch(world.DispatchEvent{WorldID: "w"})
	p.Close()

	require.Equal(t, uint64(1), p.Stats().Failed)
	require.Zero(t, p.Stats().Published)

	p.Dispatch(world.DispatchEvent{WorldID: "w"})
	require.Equal(t, uint64(1), p.Stats().Dropped)
}

func TestPublisher_DispatchRacingClose(t *testing.T) {
	for round := 0; round < 50; round++ {
		c := &fakeClient{}
		p := NewPublisher(c, Config{QueueSize: 4}, nil)

		const senders, perSender = 8, 25
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < senders; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < perSender; j++ {
					p.Dispatch(world.DispatchEvent{WorldID: "w", Tick: uint64(j)})
				}
			}()
		}
		close(start)
		p.Close()
		wg.Wait()

		st := p.Stats()
		require.Equal(t, uint64(senders*perSender), st.Published+st.Dropped+st.Failed)
		require.True(t, c.disconnected)
	}
}
