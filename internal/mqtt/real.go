package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/range-sensor/internal/logic"
)

// BufferSize is how many messages are held while the broker is unreachable.
const BufferSize = 256

// Options configures the real publisher.
type Options struct {
	Broker   string
	ClientID string
	// OnConnectionChange is called from paho's goroutines on connect and loss.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topic  string
	notify func(bool)

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	everUp    bool
	closed    bool
}

// NewRealPublisher creates a publisher for the given broker. The first
// connection is attempted in the background; messages published before it
// succeeds are buffered.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is required")
	}
	if o.ClientID == "" {
		o.ClientID = "range-sensor"
	}

	p := &RealPublisher{
		topic:  Topic,
		notify: o.OnConnectionChange,
		buf:    newRingBuffer(BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	// With ConnectRetry the token only completes once connected, so it is
	// not waited on here.
	p.client.Connect()

	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everUp
	p.everUp = true
	p.mu.Unlock()

	// Publishers keep buffering until the backlog is flushed, so nothing
	// overtakes an older buffered message.
	replayed, dropped := 0, 0
	for {
		p.mu.Lock()
		pending, d := p.buf.drain()
		dropped += d
		if len(pending) == 0 || p.closed {
			p.connected = !p.closed
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		for _, m := range pending {
			c.Publish(m.topic, m.qos, m.retained, m.payload)
		}
		replayed += len(pending)
	}

	if reconnect {
		log.Printf("mqtt: reconnected, replayed %d buffered messages", replayed)
	} else {
		log.Printf("mqtt: connected")
	}
	if dropped > 0 {
		log.Printf("mqtt: %d messages were dropped while disconnected", dropped)
	}
	if p.notify != nil {
		p.notify(true)
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(TopicSystem, 1, false, payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	log.Printf("mqtt: connection lost: %v", err)
	if p.notify != nil {
		p.notify(false)
	}
}

// publish sends msg, or buffers it while disconnected.
func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.connected {
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// Publish sends a reading to the MQTT broker.
func (p *RealPublisher) Publish(r logic.Reading) error {
	payload, err := FormatPayload(r)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) so lifecycle events survive a flaky link
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if n := p.buf.len(); n > 0 {
		log.Printf("mqtt: closing with %d unsent messages", n)
	}
	p.mu.Unlock()

	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
