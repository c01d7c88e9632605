package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/garage-door/internal/logic"
)

// DefaultBufferSize is how many messages are held while the broker is unreachable.
const DefaultBufferSize = 100

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string         // default "garage-door"
	OnCommand  CommandHandler // nil = do not subscribe to TopicCommand
	BufferSize int            // default DefaultBufferSize
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are held and replayed in order on reconnect.
type RealPublisher struct {
	client    paho.Client
	onCommand CommandHandler

	mu       sync.Mutex
	pending  *outbox
	flushing bool
}

func newPublisher(opts Options) *RealPublisher {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &RealPublisher{
		onCommand: opts.OnCommand,
		pending:   newOutbox(opts.BufferSize),
	}
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "garage-door"
	}
	p := newPublisher(opts)

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// Connect keeps retrying in the background; publishes are held until then.
		log.Printf("mqtt: broker %s not reachable yet, retrying", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect runs on the first connection and on every reconnect.
func (p *RealPublisher) onConnect(c paho.Client) {
	log.Printf("mqtt: connected")
	if p.onCommand != nil {
		token := c.Subscribe(TopicCommand, 1, p.handleMessage)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("mqtt: subscribe %s: %v", TopicCommand, token.Error())
		}
	}
	p.flush(c)
}

func (p *RealPublisher) handleMessage(_ paho.Client, m paho.Message) {
	name, ok := ParseCommand(m.Payload())
	if !ok {
		log.Printf("mqtt: ignoring malformed command %q", m.Payload())
		return
	}
	// Commands can pulse the relay for seconds; keep the paho router free.
	p.onCommand(name)
}

// flush replays held messages. New publishes queue behind them until the
// outbox is empty, so order is preserved across the reconnect.
func (p *RealPublisher) flush(c paho.Client) {
	p.mu.Lock()
	p.flushing = true
	for {
		msgs := p.pending.drain()
		if len(msgs) == 0 {
			p.flushing = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		log.Printf("mqtt: replaying %d buffered messages", len(msgs))
		for i, msg := range msgs {
			if err := send(c, msg); err != nil {
				log.Printf("mqtt: replay stopped: %v", err)
				p.mu.Lock()
				newer := p.pending.drain()
				for _, m := range append(msgs[i:], newer...) {
					p.pending.push(m)
				}
				p.flushing = false
				p.mu.Unlock()
				return
			}
		}
		p.mu.Lock()
	}
}

func send(c paho.Client, msg pendingMsg) error {
	token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// publish sends msg now, or holds it for the next reconnect.
func (p *RealPublisher) publish(msg pendingMsg) error {
	p.mu.Lock()
	if p.flushing || !p.client.IsConnectionOpen() {
		p.pending.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := send(p.client, msg); err != nil {
		log.Printf("mqtt: %v, holding for reconnect", err)
		p.mu.Lock()
		p.pending.push(msg)
		p.mu.Unlock()
	}
	return nil
}

// Publish sends a door event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: a missed door transition is worth a duplicate.
	return p.publish(pendingMsg{topic: TopicEvents, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(pendingMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a reconnect.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
