// Command garage-door watches the garage door's position sensors, drives its
// opener relay and reports status to the home hub and MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
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

// statusRefresh is how often the tracker's MQTT connectivity is sampled.
const statusRefresh = 5 * time.Second

type options struct {
	sensors      gpio.SensorConfig
	leds         gpio.LEDConfig
	pinRelay     int
	settingsPath string
	broker       string
	heartbeat    time.Duration
	httpAddr     string
	printState   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.sensors.Chip, "chip", gpio.DefaultChip, "GPIO chip name")
	flag.IntVar(&opts.sensors.PinClosed, "pin-closed", gpio.DefaultPinClosed, "BCM pin of the fully-closed sensor")
	flag.IntVar(&opts.sensors.PinOpen, "pin-open", gpio.DefaultPinOpen, "BCM pin of the fully-open sensor")
	flag.BoolVar(&opts.sensors.ActiveLow, "active-low", true, "Sensors pull the line low when asserted")
	flag.DurationVar(&opts.sensors.Debounce, "debounce", 50*time.Millisecond, "Kernel debounce period for sensor edges (0 to disable)")
	flag.IntVar(&opts.pinRelay, "pin-relay", gpio.DefaultPinRelay, "BCM pin of the opener relay")
	flag.IntVar(&opts.leds.Red, "pin-led-red", gpio.DefaultPinRed, "BCM pin of the red LED (-1 to disable)")
	flag.IntVar(&opts.leds.Yellow, "pin-led-yellow", gpio.DefaultPinYellow, "BCM pin of the yellow LED (-1 to disable)")
	flag.IntVar(&opts.leds.Green, "pin-led-green", gpio.DefaultPinGreen, "BCM pin of the green LED (-1 to disable)")
	flag.StringVar(&opts.settingsPath, "settings", "/var/lib/garage-door/settings.yaml", "Settings file")
	flag.StringVar(&opts.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	flag.DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&opts.httpAddr, "http", ":80", "HTTP address (empty to disable)")
	flag.BoolVar(&opts.printState, "print-state", false, "Print current door status and exit")

	flag.Parse()
	opts.leds.Chip = opts.sensors.Chip

	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(opts options) error {
	if opts.printState {
		return printState(opts.sensors)
	}

	store := openSettings(opts.settingsPath)
	m := metrics.New(prometheus.DefaultRegisterer)

	tracker := status.NewTracker(time.Now(), status.Config{
		DebounceMs:  opts.sensors.Debounce.Milliseconds(),
		HeartbeatMs: opts.heartbeat.Milliseconds(),
		Broker:      opts.broker,
		HTTPPort:    opts.httpAddr,
		ActiveLow:   opts.sensors.ActiveLow,
	}, store)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Initialize GPIO. Edges are queued from the watcher goroutine and
	// applied in order once the controller is running.
	edges := door.NewEdgeQueue(0)
	defer edges.Close()

	sensors, err := gpio.NewRealSensors(opts.sensors, edges.Post)
	if err != nil {
		return fmt.Errorf("init sensors: %w", err)
	}
	defer sensors.Close()

	relay, err := gpio.NewRealRelay(opts.sensors.Chip, opts.pinRelay)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer relay.Close()

	var leds gpio.LEDs = gpio.NoopLEDs{}
	if opts.leds.Enabled() {
		indicator, err := gpio.NewRealLEDs(opts.leds)
		if err != nil {
			log.Printf("indicator disabled: %v", err)
		} else {
			leds = indicator
			defer indicator.Close()
		}
	}

	// Outbound sinks. Each gets its own queue so a slow hub never delays MQTT.
	hubQueue := notify.NewQueue("hub", hub.New(store, nil), 0, m)
	defer hubQueue.Close()
	notifiers := notify.Multi{tracker, hubQueue}

	commands := make(chan string, 8)
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if opts.broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:    opts.broker,
			OnCommand: func(name string) { enqueueCommand(commands, name) },
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		publisher, mqttStatus = pub, pub

		mqttQueue := notify.NewQueue("mqtt", pub, 0, m)
		defer mqttQueue.Close()
		notifiers = append(notifiers, mqttQueue)
	}

	ctrl := door.New(door.Config{
		Sensors:  sensors,
		Relay:    relay,
		LEDs:     leds,
		Settings: store,
		Notifier: notifiers,
		Metrics:  m,
	})

	initial, err := ctrl.Probe()
	if err != nil {
		log.Printf("startup probe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx, edges)
	go runCommands(ctx, commands, ctrl)

	// Publish startup event with full status snapshot
	if publisher != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker, ctrl, prometheus.DefaultGatherer)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http server listening on %s", opts.httpAddr)
	}

	cur := store.Current()
	log.Printf("started: status=%s transition=%v pulse=%v hub=%q broker=%s heartbeat=%v",
		initial, cur.TransitionTime, cur.PulseDuration, cur.HubAddress, opts.broker, opts.heartbeat)

	tick := time.NewTicker(statusRefresh)
	defer tick.Stop()

	var heartbeat <-chan time.Time
	if opts.heartbeat > 0 {
		hb := time.NewTicker(opts.heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loop{
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		now:        time.Now,
		tick:       tick.C,
		heartbeat:  heartbeat,
		sig:        sigCh,
	})
}

// openSettings never fails: without a writable settings file the daemon runs
// on defaults and keeps accepted changes in memory.
func openSettings(path string) *settings.Store {
	store, err := settings.Open(path)
	if err != nil {
		log.Printf("settings: %v", err)
	}
	return store
}

// printState reads the sensors once and prints the status they imply.
func printState(cfg gpio.SensorConfig) error {
	sensors, err := gpio.NewRealSensors(cfg, nil)
	if err != nil {
		return fmt.Errorf("init sensors: %w", err)
	}
	defer sensors.Close()

	snap, err := sensors.Read()
	if err != nil {
		return fmt.Errorf("read sensors: %w", err)
	}
	fmt.Println(describeState(snap))
	return nil
}

func describeState(snap logic.Snapshot) string {
	d := logic.Decide(logic.StatusUnknown, snap, logic.SensorNone)
	return fmt.Sprintf("door: %s (closed=%v open=%v)", d.Status, snap.Closed, snap.Open)
}

func enqueueCommand(commands chan<- string, name string) {
	select {
	case commands <- name:
	default:
		log.Printf("mqtt: command queue full, dropping %q", name)
	}
}

// Commander runs a named remote command.
type Commander interface {
	Command(name string) (string, error)
}

// runCommands executes queued commands one at a time, in arrival order.
func runCommands(ctx context.Context, commands <-chan string, c Commander) {
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-commands:
			runCommand(c, name)
		}
	}
}

func runCommand(c Commander, name string) {
	msg, err := c.Command(name)
	if err != nil {
		log.Printf("command %q: %v", name, err)
		return
	}
	log.Printf("command %q: %s", name, msg)
}

// loop holds everything runLoop reads from. Channels and the clock are
// injected so tests can drive it.
type loop struct {
	publisher  mqtt.Publisher        // nil = MQTT disabled
	mqttStatus mqtt.ConnectionStatus // nil = MQTT disabled
	tracker    *status.Tracker
	now        func() time.Time
	tick       <-chan time.Time
	heartbeat  <-chan time.Time // nil = no heartbeat
	sig        <-chan os.Signal
}

func runLoop(l loop) error {
	for {
		select {
		case s := <-l.sig:
			log.Printf("received %v, shutting down", s)
			reason := signalName(s)
			l.refreshConnectivity()
			if l.publisher == nil {
				return nil
			}
			event := mqtt.SystemEvent{
				Timestamp:  l.now(),
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", reason),
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-l.tick:
			l.refreshConnectivity()

		case <-l.heartbeat:
			l.refreshConnectivity()
			if net := readNetworkInfo(); net != nil {
				l.tracker.SetNetwork(net)
			}
			snap := l.tracker.Snapshot()
			log.Printf("heartbeat: door=%s uptime=%v mqtt=%v", snap.Door, snap.Uptime().Truncate(time.Second), snap.MQTTConnected)
			if l.publisher == nil {
				continue
			}
			hb := mqtt.SystemEvent{
				Timestamp:  l.now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := l.publisher.PublishSystem(hb); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func (l loop) refreshConnectivity() {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
