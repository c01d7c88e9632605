package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sweeney/garage-door/internal/door"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/hub"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/metrics"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/notify"
	"github.com/sweeney/garage-door/internal/settings"
	"github.com/sweeney/garage-door/internal/status"
	"github.com/sweeney/garage-door/internal/web"
)

// hubRecorder is a fake hub that keeps every payload it receives.
type hubRecorder struct {
	mu       sync.Mutex
	payloads []hub.Payload
}

func (h *hubRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p hub.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.payloads = append(h.payloads, p)
	h.mu.Unlock()
}

func (h *hubRecorder) all() []hub.Payload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hub.Payload(nil), h.payloads...)
}

// pipeline wires every component the daemon runs, with fakes at the edges.
type pipeline struct {
	sensors *gpio.FakeSensors
	relay   *gpio.FakeRelay
	leds    *gpio.FakeLEDs
	clock   *door.FakeClock
	store   *settings.Store
	tracker *status.Tracker
	pub     *mqtt.FakePublisher
	hub     *hubRecorder
	ctrl    *door.Controller
	web     *httptest.Server

	hubQueue  *notify.Queue
	mqttQueue *notify.Queue
}

func newPipeline(t *testing.T, initial logic.Snapshot) *pipeline {
	t.Helper()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	p := &pipeline{
		sensors: gpio.NewFakeSensors(initial),
		relay:   gpio.NewFakeRelay(),
		leds:    gpio.NewFakeLEDs(),
		clock:   door.NewFakeClock(start),
		pub:     mqtt.NewFakePublisher(),
		hub:     &hubRecorder{},
	}

	hubSrv := httptest.NewServer(p.hub)
	t.Cleanup(hubSrv.Close)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s := settings.Default()
	s.HubAddress = strings.TrimPrefix(hubSrv.URL, "http://")
	p.store = settings.NewMemory(s)
	p.tracker = status.NewTracker(start, status.Config{Broker: "tcp://localhost:1883"}, p.store)

	p.hubQueue = notify.NewQueue("hub", hub.New(p.store, hubSrv.Client()), notify.DefaultQueueSize, m)
	p.mqttQueue = notify.NewQueue("mqtt", p.pub, notify.DefaultQueueSize, m)

	p.ctrl = door.New(door.Config{
		Sensors:  p.sensors,
		Relay:    p.relay,
		LEDs:     p.leds,
		Settings: p.store,
		Notifier: notify.Multi{p.tracker, p.hubQueue, p.mqttQueue},
		Metrics:  m,
		Clock:    p.clock,
	})

	edges := door.NewEdgeQueue(0)
	p.sensors.OnEdge(edges.Post)

	ctx, cancel := context.WithCancel(context.Background())
	go p.ctrl.Run(ctx, edges)
	t.Cleanup(func() {
		cancel()
		edges.Close()
	})

	p.web = httptest.NewServer(web.New("", p.tracker, p.ctrl, reg).Handler())
	t.Cleanup(p.web.Close)

	if _, err := p.ctrl.Probe(); err != nil {
		t.Fatalf("probe: %v", err)
	}
	return p
}

// drain flushes both notification queues. The pipeline sends nothing after.
func (p *pipeline) drain() {
	p.hubQueue.Close()
	p.mqttQueue.Close()
}

func (p *pipeline) post(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Post(p.web.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// waitStatus polls until the controller reports want.
func (p *pipeline) waitStatus(t *testing.T, want logic.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.ctrl.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, status is %s", want, p.ctrl.Status())
}

func hubStatuses(ps []hub.Payload) []string {
	var out []string
	for _, p := range ps {
		out = append(out, p.Status)
	}
	return out
}

func eventStatuses(es []logic.Event) []string {
	var out []string
	for _, e := range es {
		out = append(out, string(e.Status))
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestIntegrationOpenCycle drives a closed door open through the web surface
// and checks every sink saw the same sequence.
func TestIntegrationOpenCycle(t *testing.T) {
	p := newPipeline(t, logic.Snapshot{Closed: true})
	p.waitStatus(t, logic.StatusClosed)

	resp := p.post(t, "/open")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /open: status %d", resp.StatusCode)
	}
	var plan struct {
		From   string `json:"from"`
		Pulses int    `json:"pulses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if plan.From != "closed" || plan.Pulses != 1 {
		t.Errorf("plan: got %+v", plan)
	}
	if pulses := p.relay.Pulses(); len(pulses) != 1 || pulses[0] != settings.DefaultPulseDuration {
		t.Errorf("relay pulses: got %v", pulses)
	}

	// The door leaves the closed sensor, travels, then reaches the open sensor.
	p.sensors.Set(logic.SensorClosed, false)
	p.waitStatus(t, logic.StatusOpening)
	p.sensors.Set(logic.SensorOpen, true)
	p.waitStatus(t, logic.StatusOpen)

	p.drain()

	want := []string{"closed", "opening", "open"}
	if got := hubStatuses(p.hub.all()); !equal(got, want) {
		t.Errorf("hub statuses: got %v, want %v", got, want)
	}
	for _, hp := range p.hub.all() {
		if !hp.IsNew {
			t.Errorf("hub payload %+v: expected isNew=true", hp)
		}
	}
	if got := eventStatuses(p.pub.Events()); !equal(got, want) {
		t.Errorf("mqtt statuses: got %v, want %v", got, want)
	}

	if led, ok := p.leds.Last(); !ok || led != logic.PatternFor(logic.StatusOpen) {
		t.Errorf("indicator: got %+v, want open pattern", led)
	}

	snap := p.tracker.Snapshot()
	if snap.Door != logic.StatusOpen || !snap.Ready {
		t.Errorf("tracker: door=%s ready=%v", snap.Door, snap.Ready)
	}
	if snap.Counts.Closed != 1 || snap.Counts.Opening != 1 || snap.Counts.Open != 1 {
		t.Errorf("tracker counts: got %+v", snap.Counts)
	}
}

// TestIntegrationWatchdog checks that a door that leaves the open sensor and
// never reaches the closed one is reported open again after the transit time.
func TestIntegrationWatchdog(t *testing.T) {
	p := newPipeline(t, logic.Snapshot{Open: true})
	p.waitStatus(t, logic.StatusOpen)

	p.post(t, "/close")
	p.sensors.Set(logic.SensorOpen, false)
	p.waitStatus(t, logic.StatusClosing)

	if !p.ctrl.State().WatchdogArmed {
		t.Fatal("watchdog should be armed while closing")
	}
	p.clock.Advance(settings.DefaultTransitionTime)
	p.waitStatus(t, logic.StatusOpen)

	p.drain()

	events := p.pub.Events()
	if got, want := eventStatuses(events), []string{"open", "closing", "open"}; !equal(got, want) {
		t.Fatalf("mqtt statuses: got %v, want %v", got, want)
	}
	if events[2].Cause != logic.CauseWatchdog {
		t.Errorf("last cause: got %s, want watchdog", events[2].Cause)
	}
}

// TestIntegrationRefreshAndStatus exercises the read side of the web surface.
func TestIntegrationRefreshAndStatus(t *testing.T) {
	p := newPipeline(t, logic.Snapshot{Closed: true})
	p.waitStatus(t, logic.StatusClosed)

	if resp := p.post(t, "/refresh"); resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /refresh: status %d", resp.StatusCode)
	}

	resp, err := http.Get(p.web.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if sj.Status.Door != "closed" || !sj.Status.Sensors.Closed {
		t.Errorf("status: got door=%s sensors=%+v", sj.Status.Door, sj.Status.Sensors)
	}
	if sj.Status.Settings.HubAddress == nil {
		t.Error("status should report the hub address")
	}

	mresp, err := http.Get(p.web.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer mresp.Body.Close()
	body, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(body), `garage_door_status_changes_total{status="closed"} 1`) {
		t.Errorf("metrics missing closed transition:\n%s", body)
	}

	p.drain()

	got := p.hub.all()
	if len(got) != 2 {
		t.Fatalf("hub payloads: got %+v", got)
	}
	if got[1].Status != "closed" || got[1].IsNew {
		t.Errorf("refresh payload: got %+v, want closed with isNew=false", got[1])
	}
	// A refresh is not a transition.
	if c := p.tracker.Snapshot().Counts.Closed; c != 1 {
		t.Errorf("closed count: got %d, want 1", c)
	}
}

// TestIntegrationConfigure checks settings changes made over HTTP reach the
// controller: a shorter transit time arms a shorter watchdog.
func TestIntegrationConfigure(t *testing.T) {
	p := newPipeline(t, logic.Snapshot{Closed: true})
	p.waitStatus(t, logic.StatusClosed)

	resp, err := http.Post(p.web.URL+"/configure", "application/json",
		strings.NewReader(`{"transitionTime": 5, "actuateDuration": 250}`))
	if err != nil {
		t.Fatalf("POST /configure: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /configure: status %d", resp.StatusCode)
	}

	p.post(t, "/open")
	if pulses := p.relay.Pulses(); len(pulses) != 1 || pulses[0] != 250*time.Millisecond {
		t.Errorf("relay pulses: got %v", pulses)
	}

	p.sensors.Set(logic.SensorClosed, false)
	p.waitStatus(t, logic.StatusOpening)

	if d := p.ctrl.State().WatchdogDeadline.Sub(p.clock.Now()); d != 5*time.Second {
		t.Errorf("watchdog deadline in %v, want 5s", d)
	}
	p.clock.Advance(5 * time.Second)
	p.waitStatus(t, logic.StatusOpen)
	p.drain()
}
