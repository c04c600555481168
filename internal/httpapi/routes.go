package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"realtime-chart-engine/internal/apperr"
	"realtime-chart-engine/internal/broadcast"
	"realtime-chart-engine/internal/history"
	"realtime-chart-engine/internal/insightsentry"
	"realtime-chart-engine/internal/logger"
	"realtime-chart-engine/internal/store"

	"github.com/gorilla/websocket"
)

const switchTimeout = 10 * time.Second

// Stream is the live ingestion side the routes report on and control.
type Stream interface {
	State() insightsentry.State
	Symbol() string
	SwitchSymbol(ctx context.Context, symbol string) error
}

// Upstream passes quote and symbol lookups through to the data provider.
type Upstream interface {
	Quote(ctx context.Context, symbol string) (json.RawMessage, error)
	SymbolInfo(ctx context.Context, symbol string) (json.RawMessage, error)
}

type HistoryService interface {
	History(ctx context.Context, symbol, timeframe string, count int) (*history.Result, error)
	Stats(symbol, timeframe string) (*history.Stats, error)
}

type Routes struct {
	port     int
	history  HistoryService
	stream   Stream
	upstream Upstream
	cache    *store.BarCache
	hub      *broadcast.Hub
	logger   logger.Interface
	upgrader websocket.Upgrader
	clients  atomic.Int64
}

type Dependencies struct {
	Port     int
	History  HistoryService
	Stream   Stream
	Upstream Upstream
	Cache    *store.BarCache
	Hub      *broadcast.Hub
	Logger   logger.Interface
}

func NewRoutes(deps Dependencies) *Routes {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Routes{
		port:     deps.Port,
		history:  deps.History,
		stream:   deps.Stream,
		upstream: deps.Upstream,
		cache:    deps.Cache,
		hub:      deps.Hub,
		logger:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (rt *Routes) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /", rt.index)
	mux.HandleFunc("GET /api/health", rt.health)
	mux.HandleFunc("GET /api/chart/history", rt.chartHistory)
	mux.HandleFunc("GET /api/stats/timeframe", rt.timeframeStats)
	mux.HandleFunc("POST /api/symbol", rt.switchSymbol)
	mux.HandleFunc("GET /api/quote", rt.quote)
	mux.HandleFunc("GET /api/symbol/info", rt.symbolInfo)
	mux.HandleFunc("GET /ws/chart", rt.ws)
}

func (rt *Routes) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>realtime-chart-engine</title>
  </head>
  <body style="font-family: ui-sans-serif, system-ui, -apple-system; padding: 16px;">
    <h2 id="symbol">Bar updates</h2>
    <div id="status">Connecting…</div>
    <pre id="out" style="background:#111;color:#eee;padding:12px;border-radius:8px;overflow:auto;max-height:70vh;"></pre>
    <script>
      const title = document.getElementById('symbol');
      const status = document.getElementById('status');
      const out = document.getElementById('out');
      const scheme = location.protocol === 'https:' ? 'wss' : 'ws';
      const ws = new WebSocket(scheme + '://' + location.host + '/ws/chart');
      ws.onclose = () => status.textContent = 'Disconnected';
      ws.onerror = () => status.textContent = 'Error';
      ws.onmessage = (ev) => {
        const msg = JSON.parse(ev.data);
        if (msg.type === 'connection_status') {
          title.textContent = msg.symbol;
          status.textContent = msg.message;
          return;
        }
        out.textContent = msg.timeframe + ' ' + JSON.stringify(msg.bars) + "\n" + out.textContent;
      };
    </script>
  </body>
</html>`))
}

func (rt *Routes) health(w http.ResponseWriter, _ *http.Request) {
	state := rt.stream.State()
	writeJSON(w, http.StatusOK, struct {
		Status             string      `json:"status"`
		Port               int         `json:"port"`
		WebsocketConnected bool        `json:"websocket_connected"`
		ConnectionState    string      `json:"connection_state"`
		Symbol             string      `json:"symbol"`
		CacheStats         store.Stats `json:"cache_stats"`
		ConnectedClients   int64       `json:"connected_clients"`
	}{
		Status:             "ok",
		Port:               rt.port,
		WebsocketConnected: state == insightsentry.Connected,
		ConnectionState:    state.String(),
		Symbol:             rt.stream.Symbol(),
		CacheStats:         rt.cache.Stats(),
		ConnectedClients:   rt.clients.Load(),
	})
}

func (rt *Routes) chartHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		symbol = rt.stream.Symbol()
	}
	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = "1m"
	}

	count := history.DefaultBars
	if raw := q.Get("bars"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			rt.writeError(w, apperr.Validation("bars must be an integer, got %q", raw))
			return
		}
		count = n
	}

	res, err := rt.history.History(r.Context(), symbol, timeframe, count)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Routes) timeframeStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		symbol = rt.stream.Symbol()
	}
	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = "1m"
	}

	st, err := rt.history.Stats(symbol, timeframe)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (rt *Routes) switchSymbol(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rt.writeError(w, apperr.Validation("invalid request body: %v", err))
		return
	}
	if body.Symbol == "" {
		rt.writeError(w, apperr.Validation("symbol required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), switchTimeout)
	defer cancel()

	if err := rt.stream.SwitchSymbol(ctx, body.Symbol); err != nil {
		if errors.Is(err, insightsentry.ErrNotConnected) {
			writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: apperr.KindOf(err)})
			return
		}
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "symbol": rt.stream.Symbol()})
}

func (rt *Routes) quote(w http.ResponseWriter, r *http.Request) {
	rt.passthrough(w, r, rt.upstream.Quote)
}

func (rt *Routes) symbolInfo(w http.ResponseWriter, r *http.Request) {
	rt.passthrough(w, r, rt.upstream.SymbolInfo)
}

func (rt *Routes) passthrough(w http.ResponseWriter, r *http.Request, call func(context.Context, string) (json.RawMessage, error)) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = rt.stream.Symbol()
	}

	raw, err := call(r.Context(), symbol)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (rt *Routes) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Warn("websocket upgrade failed", logger.NewField("error", err.Error()))
		return
	}

	c := newClient(conn)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writeLoop()
	}()

	if status, err := json.Marshal(rt.connectionStatus()); err == nil {
		_ = c.enqueue(websocket.TextMessage, status)
	}
	rt.clients.Add(1)
	id := rt.hub.Register(c)

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if kind == websocket.BinaryMessage {
			_ = c.enqueue(websocket.BinaryMessage, msg)
		}
	}

	rt.hub.Unregister(id)
	rt.clients.Add(-1)
	_ = c.Close()
	<-writeDone
}

type connectionStatus struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

func (rt *Routes) connectionStatus() connectionStatus {
	symbol := rt.stream.Symbol()
	if rt.stream.State() == insightsentry.Connected {
		return connectionStatus{
			Type:    "connection_status",
			Status:  "connected",
			Symbol:  symbol,
			Message: fmt.Sprintf("Connected to %s real-time feed", symbol),
		}
	}
	return connectionStatus{
		Type:    "connection_status",
		Status:  "connecting",
		Symbol:  symbol,
		Message: "Connecting to upstream feed",
	}
}

type errorBody struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

func (rt *Routes) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindUpstream, apperr.KindParse:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		rt.logger.Error(err, logger.NewField("status", status))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
