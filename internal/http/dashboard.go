package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterDashboard serves the built-in status page. It is a single
// self-contained document that renders the slot map from /api/v1/map and
// follows live updates over /ws.
func (h *Handler) RegisterDashboard(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dashboardPage))
	})
}

const dashboardPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Garage Monitor</title>
<style>
body { font-family: sans-serif; background: #1c1e22; color: #e8e8e8; margin: 2rem; }
h1 { font-size: 1.3rem; }
#summary { margin-bottom: 1rem; }
#map { display: grid; gap: 8px; max-width: 420px; }
.slot { border-radius: 6px; padding: 1.2rem 0; text-align: center; font-weight: bold; }
.free { background: #2e7d32; }
.occupied { background: #c62828; }
#events { margin-top: 1.5rem; max-width: 420px; }
#events li { font-size: 0.85rem; margin-bottom: 2px; list-style: none; }
</style>
</head>
<body>
<h1>Garage Monitor</h1>
<div id="summary">loading&hellip;</div>
<div id="map"></div>
<ul id="events"></ul>
<script>
async function refresh() {
  const summary = (await (await fetch('/api/v1/summary')).json()).data;
  document.getElementById('summary').textContent =
    summary.occupied + '/' + summary.total + ' occupied (' +
    summary.occupancy_rate + '%), provisional ' + summary.provisional;
  const layout = await (await fetch('/api/v1/map')).json();
  const map = document.getElementById('map');
  map.style.gridTemplateColumns = 'repeat(' + Math.max(layout.cols, 1) + ', 1fr)';
  map.innerHTML = '';
  for (const slot of layout.slots) {
    const div = document.createElement('div');
    div.className = 'slot ' + (slot.occupied ? 'occupied' : 'free');
    div.style.gridColumn = slot.x + 1;
    div.style.gridRow = slot.y + 1;
    div.textContent = slot.slot_id;
    map.appendChild(div);
  }
}
function listen() {
  const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  const sock = new WebSocket(proto + location.host + '/ws');
  sock.onmessage = (e) => {
    const msg = JSON.parse(e.data);
    if (msg.type === 'slot_update') refresh();
    if (msg.type === 'car_event') {
      const li = document.createElement('li');
      li.textContent = msg.payload.event + ' ' + msg.payload.plate +
        ' @ ' + msg.payload.timestamp;
      const list = document.getElementById('events');
      list.prepend(li);
      while (list.children.length > 20) list.removeChild(list.lastChild);
      refresh();
    }
  };
  sock.onclose = () => setTimeout(listen, 3000);
}
refresh();
listen();
setInterval(refresh, 15000);
</script>
</body>
</html>
`
