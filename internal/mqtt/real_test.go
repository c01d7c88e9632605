package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/garage-door/internal/logic"
)

type fakeToken struct{ err error }

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                 { return t.err }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (fakeMessage) Duplicate() bool     { return false }
func (fakeMessage) Qos() byte           { return 1 }
func (fakeMessage) Retained() bool      { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (fakeMessage) MessageID() uint16   { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (fakeMessage) Ack()                {}

// fakeClient is a paho.Client that records publishes in memory.
type fakeClient struct {
	mu        sync.Mutex
	open      bool
	failNext  error
	published []pendingMsg
	subs      map[string]paho.MessageHandler
}

var _ paho.Client = (*fakeClient)(nil)

func newFakeClient(open bool) *fakeClient {
	return &fakeClient{open: open, subs: map[string]paho.MessageHandler{}}
}

func (c *fakeClient) IsConnected() bool      { return c.IsConnectionOpen() }
func (c *fakeClient) IsConnectionOpen() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.open }
func (c *fakeClient) Connect() paho.Token    { return fakeToken{} }
func (c *fakeClient) Disconnect(uint)        { c.setOpen(false) }

func (c *fakeClient) setOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return fakeToken{err: err}
	}
	c.published = append(c.published, pendingMsg{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()
	return fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return fakeToken{}
}
func (c *fakeClient) Unsubscribe(...string) paho.Token                 { return fakeToken{} }
func (c *fakeClient) AddRoute(string, paho.MessageHandler)             {}
func (c *fakeClient) OptionsReader() paho.ClientOptionsReader          { return paho.ClientOptionsReader{} }

func (c *fakeClient) sent() []pendingMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pendingMsg(nil), c.published...)
}

func testPublisher(client *fakeClient, onCommand CommandHandler) *RealPublisher {
	p := newPublisher(Options{BufferSize: 8, OnCommand: onCommand})
	p.client = client
	return p
}

func TestRealPublisherSendsWhenConnected(t *testing.T) {
	client := newFakeClient(true)
	p := testPublisher(client, nil)

	if err := p.Publish(logic.Event{Timestamp: time.Now(), Status: logic.StatusClosed, IsNew: true}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	sent := client.sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if sent[0].topic != TopicEvents || sent[0].qos != 1 || sent[0].retained {
		t.Errorf("event message: %+v", sent[0])
	}
	if sent[1].topic != TopicSystem || !sent[1].retained {
		t.Errorf("system message: %+v", sent[1])
	}
	if !p.IsConnected() {
		t.Error("IsConnected should follow the client")
	}
}

func TestRealPublisherBuffersWhileOffline(t *testing.T) {
	client := newFakeClient(false)
	p := testPublisher(client, nil)

	p.Publish(logic.Event{Status: logic.StatusOpening})
	p.Publish(logic.Event{Status: logic.StatusOpen})
	p.PublishSystem(SystemEvent{Event: "HEARTBEAT"})

	if len(client.sent()) != 0 {
		t.Fatal("nothing should be sent while offline")
	}
	if p.Buffered() != 3 {
		t.Fatalf("Buffered: got %d, want 3", p.Buffered())
	}

	client.setOpen(true)
	p.onConnect(client)

	sent := client.sent()
	if len(sent) != 3 {
		t.Fatalf("replayed: got %d, want 3", len(sent))
	}
	if sent[0].topic != TopicEvents || sent[2].topic != TopicSystem {
		t.Errorf("replay out of order: %v, %v", sent[0].topic, sent[2].topic)
	}
	if p.Buffered() != 0 {
		t.Errorf("buffer should be empty after replay, got %d", p.Buffered())
	}
}

func TestRealPublisherHoldsFailedSend(t *testing.T) {
	client := newFakeClient(true)
	client.failNext = errors.New("broker hiccup")
	p := testPublisher(client, nil)

	if err := p.Publish(logic.Event{Status: logic.StatusClosing}); err != nil {
		t.Fatalf("held message should not be an error: %v", err)
	}
	if p.Buffered() != 1 {
		t.Fatalf("Buffered: got %d, want 1", p.Buffered())
	}

	p.onConnect(client)
	if len(client.sent()) != 1 || p.Buffered() != 0 {
		t.Errorf("held message not replayed: sent=%d buffered=%d", len(client.sent()), p.Buffered())
	}
}

func TestRealPublisherReplayFailureKeepsRest(t *testing.T) {
	client := newFakeClient(false)
	p := testPublisher(client, nil)
	p.Publish(logic.Event{Status: logic.StatusOpening})
	p.Publish(logic.Event{Status: logic.StatusOpen})

	client.setOpen(true)
	client.failNext = errors.New("dropped again")
	p.onConnect(client)

	if p.Buffered() != 2 {
		t.Errorf("both messages should still be held, got %d", p.Buffered())
	}
	if p.flushing {
		t.Error("flushing flag left set")
	}
}

func TestRealPublisherRoutesCommands(t *testing.T) {
	got := make(chan string, 1)
	client := newFakeClient(true)
	p := testPublisher(client, func(name string) { got <- name })

	p.onConnect(client)

	client.mu.Lock()
	handler := client.subs[TopicCommand]
	client.mu.Unlock()
	if handler == nil {
		t.Fatal("command topic not subscribed")
	}

	handler(client, fakeMessage{topic: TopicCommand, payload: []byte(`{"command":"Close"}`)})
	select {
	case name := <-got:
		if name != "close" {
			t.Errorf("command: got %q, want close", name)
		}
	case <-time.After(time.Second):
		t.Fatal("command not delivered")
	}

	handler(client, fakeMessage{topic: TopicCommand, payload: []byte("  ")})
	select {
	case name := <-got:
		t.Errorf("malformed command delivered: %q", name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRealPublisherCommandsKeepArrivalOrder(t *testing.T) {
	var got []string
	client := newFakeClient(true)
	p := testPublisher(client, func(name string) { got = append(got, name) })
	p.onConnect(client)

	client.mu.Lock()
	handler := client.subs[TopicCommand]
	client.mu.Unlock()

	for _, cmd := range []string{"close", "open", "refresh", "close"} {
		handler(client, fakeMessage{topic: TopicCommand, payload: []byte(cmd)})
	}

	want := []string{"close", "open", "refresh", "close"}
	if len(got) != len(want) {
		t.Fatalf("commands: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRealPublisherNoSubscriptionWithoutHandler(t *testing.T) {
	client := newFakeClient(true)
	p := testPublisher(client, nil)
	p.onConnect(client)

	if len(client.subs) != 0 {
		t.Errorf("unexpected subscriptions: %v", client.subs)
	}
}
