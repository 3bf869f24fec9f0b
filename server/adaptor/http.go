package adaptor

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ponyo877/relaychat/server/domain"
	"github.com/ponyo877/relaychat/server/usecase"
	"go.uber.org/zap"
)

type Adaptor struct {
	registry *usecase.Registry
	cfg      domain.Config
	upgrader websocket.Upgrader
	logger   *zap.Logger
	// ctx is handed to every connection's Serve loop.
	ctx context.Context
}

func NewAdaptor(ctx context.Context, registry *usecase.Registry, cfg domain.Config, logger *zap.Logger) *Adaptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := newOriginPolicy(cfg.AllowedOrigins)
	return &Adaptor{
		registry: registry,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
		logger: logger,
		ctx:    ctx,
	}
}

// Handler routes the socket endpoint, the JSON probes and the test page.
func (a *Adaptor) Handler() http.Handler {
	r := mux.NewRouter()
	r.Path("/ws").HeadersRegexp(
		"Connection", "(?i)upgrade",
		"Upgrade", "(?i)websocket",
	).HandlerFunc(a.serveWS)
	r.Path("/ws").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Expected a websocket upgrade", http.StatusBadRequest)
	})
	r.Path("/health").Methods(http.MethodGet).HandlerFunc(a.health)
	r.Path("/stats").Methods(http.MethodGet).HandlerFunc(a.stats)
	r.Path("/").Methods(http.MethodGet).HandlerFunc(a.page)
	r.Path(`/{room:\w+}`).Methods(http.MethodGet).HandlerFunc(a.page)
	return r
}

func (a *Adaptor) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	t := NewWebSocketTransport(conn, a.cfg.SendQueueSize, a.logger)
	a.registry.Accept(t).Serve(a.ctx)
}

func (a *Adaptor) health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	select {
	case <-a.registry.Ready():
	default:
		status = "starting"
	}
	writeJSON(w, map[string]string{"status": status})
}

func (a *Adaptor) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.registry.Stats())
}

func (a *Adaptor) page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, pageArgs{Room: mux.Vars(r)["room"]}); err != nil {
		a.logger.Warn("failed to render page", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type pageArgs struct {
	Room string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>relaychat{{if .Room}} - {{.Room}}{{end}}</title>
<style>
body { font-family: monospace; margin: 20px; }
#log { border: 1px solid #ccc; height: 360px; overflow-y: scroll; padding: 8px; white-space: pre-wrap; }
#input { width: 480px; }
</style>
</head>
<body>
<div id="log"></div>
<input id="input" type="text" placeholder="/join lobby, /setname alice, or just type">
<script>
const room = {{.Room}};
const log = document.getElementById("log");
const input = document.getElementById("input");
const scheme = location.protocol === "https:" ? "wss://" : "ws://";
const ws = new WebSocket(scheme + location.host + "/ws");

function show(line) {
  log.textContent += line + "\n";
  log.scrollTop = log.scrollHeight;
}

ws.onopen = () => {
  const token = localStorage.getItem("token");
  if (token) {
    ws.send("MIGRATE " + token);
  }
  if (room) {
    ws.send("JOIN " + room);
  }
};
ws.onmessage = (ev) => {
  if (ev.data.startsWith("TOKEN")) {
    const token = ev.data.slice(6);
    token ? localStorage.setItem("token", token) : localStorage.removeItem("token");
    return;
  }
  show(ev.data);
};
ws.onclose = () => show("* disconnected");

input.addEventListener("keydown", (ev) => {
  if (ev.key !== "Enter" || !input.value) {
    return;
  }
  const text = input.value;
  input.value = "";
  if (text.startsWith("/")) {
    ws.send(text.slice(1));
  } else {
    ws.send("SEND \"" + text.replaceAll("\"", "'") + "\"");
  }
});
</script>
</body>
</html>
`))
