package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/garage-door/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Garage Door</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
button { font-family: monospace; font-size: 1.1em; padding: 0.5em 1.5em; margin-right: 0.5em; }
.closed { color: green; font-weight: bold; }
.open, .stopped { color: red; font-weight: bold; }
.opening, .closing { color: #c90; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Garage Door</h1>

<h2>Door</h2>
<table>
<tr><th>Status</th><td id="door" class="{{.Door}}">{{.Door}}</td></tr>
<tr><th>Closed sensor</th><td id="sensor-closed">{{yesno .Sensors.Closed}}</td></tr>
<tr><th>Open sensor</th><td id="sensor-open">{{yesno .Sensors.Open}}</td></tr>
<tr><th>Ready</th><td>{{yesno .Ready}}</td></tr>
{{if .Ready}}<tr><th>Since</th><td>{{duration .Since}} ({{.LastCause}})</td></tr>{{end}}
</table>
<p>
<button onclick="send('/open')">Open</button>
<button onclick="send('/close')">Close</button>
<button onclick="send('/refresh')">Refresh hub</button>
</p>
<p id="result"></p>

<h2>Settings</h2>
<table>
<tr><th>Transition time</th><td>{{.Settings.TransitionTime}}</td></tr>
<tr><th>Actuate duration</th><td>{{.Settings.PulseDuration}}</td></tr>
<tr><th>Hub</th><td>{{if .Settings.HubAddress}}{{.Settings.HubAddress}}{{else}}none{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Status Changes</h2>
<table>
<tr><th>Closed</th><td>{{.Counts.Closed}}</td></tr>
<tr><th>Opening</th><td>{{.Counts.Opening}}</td></tr>
<tr><th>Open</th><td>{{.Counts.Open}}</td></tr>
<tr><th>Closing</th><td>{{.Counts.Closing}}</td></tr>
<tr><th>Unknown</th><td>{{.Counts.Unknown}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> <a href="/metrics">metrics</a></p>
<script>
function send(path) {
  fetch(path, { method: "POST" })
    .then(function(r) { return r.json(); })
    .then(function(j) { document.getElementById("result").textContent = j.message || ""; })
    .catch(function(e) { document.getElementById("result").textContent = String(e); });
}
setInterval(function() {
  fetch("/index.json").then(function(r) { return r.json(); }).then(function(j) {
    var el = document.getElementById("door");
    el.textContent = j.status.door;
    el.className = j.status.door;
    document.getElementById("sensor-closed").textContent = j.status.sensors.closed ? "yes" : "no";
    document.getElementById("sensor-open").textContent = j.status.sensors.open ? "yes" : "no";
  }).catch(function() {});
}, 5000);
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// The template needs durations as fields, not methods with arguments.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Since  time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Since:    snap.Since(),
	}
	return indexTmpl.Execute(w, data)
}
