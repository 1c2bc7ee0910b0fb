package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gateway-fm/swapcore/internal/txstatus"
	"github.com/gateway-fm/swapcore/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow requests without Origin header (same-origin or direct)
		}

		// Parse the origin URL
		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}

		// Allow same origin (same host)
		if originURL.Host == r.Host {
			return true
		}

		// Allow localhost connections (common for development)
		if originURL.Hostname() == "localhost" || originURL.Hostname() == "127.0.0.1" {
			return true
		}

		return false
	},
}

// EventSource publishes transaction resolution events.
type EventSource interface {
	Subscribe(buffer int) (<-chan txstatus.Event, func())
}

// WebSocketServer streams transaction status events to connected clients.
// A client connecting with ?owner=0x... only receives that wallet's events.
type WebSocketServer struct {
	events EventSource
	logger *slog.Logger

	// Connected clients and their owner filter ("" = all)
	clients   map[*websocket.Conn]string
	clientsMu sync.RWMutex

	unsubscribe func()

	// Done channel for shutdown
	done     chan struct{}
	stopOnce sync.Once
}

// NewWebSocketServer creates a new WebSocket server.
func NewWebSocketServer(events EventSource, logger *slog.Logger) *WebSocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketServer{
		events:  events,
		logger:  logger,
		clients: make(map[*websocket.Conn]string),
		done:    make(chan struct{}),
	}
}

// Handler returns the WebSocket HTTP handler.
func (ws *WebSocketServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := strings.ToLower(r.URL.Query().Get("owner"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			ws.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		// Register client
		ws.clientsMu.Lock()
		ws.clients[conn] = owner
		total := len(ws.clients)
		ws.clientsMu.Unlock()

		ws.logger.Debug("WebSocket client connected",
			slog.Int("total_clients", total),
			slog.String("owner", owner),
		)

		// Handle client disconnect
		defer func() {
			ws.clientsMu.Lock()
			delete(ws.clients, conn)
			total := len(ws.clients)
			ws.clientsMu.Unlock()
			conn.Close()

			ws.logger.Debug("WebSocket client disconnected",
				slog.Int("total_clients", total),
			)
		}()

		// Read messages (mainly for ping/pong)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					ws.logger.Debug("WebSocket read error", slog.String("error", err.Error()))
				}
				break
			}
		}
	}
}

// Start subscribes to the event source and begins broadcasting.
func (ws *WebSocketServer) Start() {
	if ws.events == nil {
		return
	}
	events, unsubscribe := ws.events.Subscribe(64)
	ws.unsubscribe = unsubscribe
	go ws.broadcastLoop(events)
}

// Stop stops the WebSocket server.
func (ws *WebSocketServer) Stop() {
	ws.stopOnce.Do(func() {
		close(ws.done)
		if ws.unsubscribe != nil {
			ws.unsubscribe()
		}

		// Close all client connections
		ws.clientsMu.Lock()
		for conn := range ws.clients {
			conn.Close()
		}
		ws.clients = make(map[*websocket.Conn]string)
		ws.clientsMu.Unlock()
	})
}

// broadcastLoop forwards tracker events until the source closes or Stop is called.
func (ws *WebSocketServer) broadcastLoop(events <-chan txstatus.Event) {
	for {
		select {
		case <-ws.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			ws.broadcastEvent(ev)
		}
	}
}

// statusEvent converts a tracker event to its wire form.
func statusEvent(ev txstatus.Event) types.StatusEvent {
	return types.StatusEvent{
		Type:        types.EventTxStatus,
		Hash:        ev.Hash.Hex(),
		Owner:       ev.Owner,
		Status:      ev.Status.String(),
		BlockNumber: ev.BlockNumber,
		GasUsed:     ev.GasUsed,
		ElapsedMs:   ev.Elapsed.Milliseconds(),
	}
}

// broadcastEvent sends an event to every client whose filter matches.
func (ws *WebSocketServer) broadcastEvent(ev txstatus.Event) {
	data, err := json.Marshal(statusEvent(ev))
	if err != nil {
		ws.logger.Error("Failed to marshal event", slog.String("error", err.Error()))
		return
	}

	ws.clientsMu.RLock()
	defer ws.clientsMu.RUnlock()

	for conn, owner := range ws.clients {
		if owner != "" && owner != ev.Owner {
			continue
		}
		err := conn.WriteMessage(websocket.TextMessage, data)
		if err != nil {
			ws.logger.Debug("Failed to write to WebSocket",
				slog.String("error", err.Error()),
			)
			// Will be cleaned up by the read loop
		}
	}
}

// ClientCount returns the number of connected clients.
func (ws *WebSocketServer) ClientCount() int {
	ws.clientsMu.RLock()
	defer ws.clientsMu.RUnlock()
	return len(ws.clients)
}
