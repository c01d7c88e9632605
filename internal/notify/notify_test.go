package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/metrics"
)

type collector struct {
	mu     sync.Mutex
	events []logic.Event
}

func (c *collector) Publish(e logic.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *collector) Notify(e logic.Event) { c.Publish(e) }

func (c *collector) statuses() []logic.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []logic.Status
	for _, e := range c.events {
		out = append(out, e.Status)
	}
	return out
}

func TestQueueDeliversInOrder(t *testing.T) {
	sink := &collector{}
	q := NewQueue("test", sink, 8, nil)

	want := []logic.Status{logic.StatusClosed, logic.StatusOpening, logic.StatusOpen}
	for _, s := range want {
		q.Notify(logic.Event{Status: s, IsNew: true})
	}
	q.Close()

	got := sink.statuses()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var delivered []logic.Status
	sink := SinkFunc(func(e logic.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		delivered = append(delivered, e.Status)
		return nil
	})

	m := metrics.New(prometheus.NewRegistry())
	q := NewQueue("hub", sink, 1, m)

	q.Notify(logic.Event{Status: logic.StatusOpening})
	<-started // worker is now blocked holding the first event

	q.Notify(logic.Event{Status: logic.StatusOpen})   // fills the buffer
	q.Notify(logic.Event{Status: logic.StatusClosing}) // dropped

	close(release)
	q.Close()

	if len(delivered) != 2 || delivered[1] != logic.StatusOpen {
		t.Errorf("delivered: got %v", delivered)
	}
	if got := testutil.ToFloat64(m.NotifyDropped.WithLabelValues("hub")); got != 1 {
		t.Errorf("dropped: got %v, want 1", got)
	}
}

func TestQueueNotifyDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	q := NewQueue("slow", SinkFunc(func(logic.Event) error { <-block; return nil }), 1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			q.Notify(logic.Event{Status: logic.StatusOpen})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow sink")
	}
}

func TestQueueSinkErrorCountsAsDropped(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	q := NewQueue("mqtt", SinkFunc(func(logic.Event) error { return errors.New("offline") }), 4, m)

	q.Notify(logic.Event{Status: logic.StatusClosed})
	q.Notify(logic.Event{Status: logic.StatusOpen})
	q.Close()

	if got := testutil.ToFloat64(m.NotifyDropped.WithLabelValues("mqtt")); got != 2 {
		t.Errorf("dropped: got %v, want 2", got)
	}
}

func TestQueueNotifyAfterClose(t *testing.T) {
	sink := &collector{}
	q := NewQueue("test", sink, 1, nil)
	q.Close()
	q.Close()

	q.Notify(logic.Event{Status: logic.StatusOpen})
	if len(sink.statuses()) != 0 {
		t.Error("closed queue must not deliver")
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &collector{}, &collector{}
	Multi{a, b}.Notify(logic.Event{Status: logic.StatusClosed})

	if len(a.statuses()) != 1 || len(b.statuses()) != 1 {
		t.Errorf("each notifier should see the event: a=%v b=%v", a.statuses(), b.statuses())
	}
}
