package api

import (
	"net/http"

	"github.com/nocturnal-data/terrarium.report/internal/httputil"
)

// showDashboard serves the single-page dashboard. The mux routes every
// unmatched path here, so anything but the root is a 404.
func (s *Server) showDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Nocturnal Eye</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; background: #121212; color: #e0e0e0; margin: 0; padding: 1.5rem; }
  h1 { font-size: 1.4rem; margin: 0 0 1rem; }
  h1 .live { color: #6ece58; font-size: 0.8rem; margin-left: 0.75rem; }
  .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(260px, 1fr)); gap: 1rem; }
  .card { background: #1e1e1e; border-radius: 8px; padding: 1rem; }
  .card h2 { font-size: 0.85rem; text-transform: uppercase; letter-spacing: 0.05em; color: #9e9e9e; margin: 0 0 0.5rem; }
  .stat { font-size: 1.8rem; font-weight: 600; }
  table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
  td, th { padding: 0.25rem 0.5rem; text-align: left; border-bottom: 1px solid #2c2c2c; }
  .snaps img { width: 100%; border-radius: 4px; margin-bottom: 0.5rem; }
  a { color: #35b779; }
  #feed { max-height: 14rem; overflow-y: auto; font-family: monospace; font-size: 0.8rem; }
</style>
</head>
<body>
<h1>Nocturnal Eye <span class="live" id="live-state">connecting&hellip;</span></h1>
<div class="grid">
  <div class="card"><h2>Events Today</h2><div class="stat" id="events-today">&ndash;</div></div>
  <div class="card"><h2>Snapshots</h2><div class="stat" id="snapshot-count">&ndash;</div></div>
  <div class="card"><h2>Database</h2><div class="stat" id="db-size">&ndash;</div></div>
  <div class="card">
    <h2>Zones</h2>
    <table id="zones"><thead><tr><th>Name</th><th>Center</th><th>Radius</th></tr></thead><tbody></tbody></table>
  </div>
  <div class="card">
    <h2>Charts</h2>
    <p><a href="/charts/hourly">Hourly activity</a></p>
    <p><a href="/charts/zones">Zone scatter</a></p>
    <p><a href="/api/heatmap">Today's heatmap</a></p>
  </div>
  <div class="card snaps"><h2>Recent Snapshots</h2><div id="snapshots"></div></div>
  <div class="card"><h2>Live Feed</h2><div id="feed"></div></div>
</div>
<script>
async function refresh() {
  const res = await fetch('/api/dashboard/summary');
  if (!res.ok) return;
  const data = await res.json();
  document.getElementById('events-today').textContent = data.daily_summary.total_events;
  document.getElementById('snapshot-count').textContent = data.snapshot_count;
  document.getElementById('db-size').textContent = data.database_stats.database_size_mb.toFixed(1) + ' MB';
  const tbody = document.querySelector('#zones tbody');
  tbody.innerHTML = '';
  for (const z of data.zones) {
    const row = tbody.insertRow();
    row.insertCell().textContent = z.name;
    row.insertCell().textContent = '(' + z.x + ', ' + z.y + ')';
    row.insertCell().textContent = z.radius;
  }
  const snaps = document.getElementById('snapshots');
  snaps.innerHTML = '';
  for (const s of (data.recent_snapshots || []).slice(0, 3)) {
    const img = document.createElement('img');
    img.src = '/static/snapshots/' + s.filename;
    img.alt = s.filename;
    snaps.appendChild(img);
  }
}
function connect() {
  const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
  const ws = new WebSocket(proto + '//' + location.host + '/ws/live');
  const state = document.getElementById('live-state');
  ws.onopen = () => { state.textContent = 'live'; };
  ws.onclose = () => { state.textContent = 'offline'; setTimeout(connect, 5000); };
  ws.onmessage = (ev) => {
    const msg = JSON.parse(ev.data);
    const feed = document.getElementById('feed');
    for (const d of msg.detections) {
      const line = document.createElement('div');
      line.textContent = new Date(msg.timestamp).toLocaleTimeString() +
        ' track #' + d.track_id + ' at (' + d.centroid_x + ', ' + d.centroid_y + ')' +
        (d.zone ? ' in ' + d.zone : '');
      feed.prepend(line);
    }
    while (feed.childNodes.length > 50) feed.removeChild(feed.lastChild);
    refresh();
  };
}
refresh();
setInterval(refresh, 60000);
connect();
</script>
</body>
</html>
`
