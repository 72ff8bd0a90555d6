package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/range-sensor/internal/logic"
	"github.com/sweeney/range-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
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
	"distance": logic.FormatDistance,
	// bar width as a percentage of the panel bar
	"barPct": func(cm float64) int {
		return logic.BarLength(cm) * 100 / logic.MaxBarWidth
	},
	"ago": func(now, then time.Time) string {
		return now.Sub(then).Truncate(time.Millisecond).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Range Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.miss { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.bar { background: #eee; height: 8px; width: 100%; }
.bar div { background: #333; height: 8px; }
</style>
</head>
<body>
<h1>Range Sensor</h1>

<h2>Reading</h2>
<table>
{{if .HaveReading}}{{if .Last.OK}}<tr><th>Distance</th><td id="distance" class="ok">{{distance .Last.Sample.CM}}</td></tr>
<tr><th>Echo</th><td>{{.Last.Sample.Duration}}</td></tr>
<tr><th>Bar</th><td><div class="bar"><div style="width: {{barPct .Last.Sample.CM}}%"></div></div></td></tr>
{{else}}<tr><th>Distance</th><td id="distance" class="miss">No reading</td></tr>
{{if .LastGood.OK}}<tr><th>Last echo</th><td>{{distance .LastGood.Sample.CM}} ({{ago .Now .LastGood.Timestamp}} ago)</td></tr>{{end}}
{{end}}{{else}}<tr><th>Distance</th><td id="distance" class="miss">waiting for first cycle</td></tr>
{{end}}<tr><th>Trigger</th><td>{{.Stats.TriggerState}}{{if .Stats.Armed}} (armed){{end}}</td></tr>
</table>

<h2>Counters</h2>
<table>
<tr><th>Pulses</th><td>{{.Stats.Pulses}}</td></tr>
<tr><th>Samples</th><td>{{.Stats.Samples}}</td></tr>
<tr><th>Rendered</th><td>{{.Stats.Rendered}}</td></tr>
<tr><th>Timeouts</th><td>{{.Stats.Timeouts}}</td></tr>
<tr><th>Late echoes</th><td>{{.Stats.Stale}}</td></tr>
<tr><th>Dropped</th><td>{{.Stats.Dropped}}</td></tr>
<tr><th>Spurious edges</th><td>{{.Stats.Spurious}}</td></tr>
<tr><th>Pulse errors</th><td>{{.Stats.PulseErrors}}</td></tr>
<tr><th>Display errors</th><td>{{.Stats.DisplayErrors}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.Chip}} trigger {{.Config.PinTrigger}}, echo {{.Config.PinEcho}}</td></tr>
<tr><th>Display</th><td>{{.Config.Display}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
