// Package statusfeed pushes connectivity and sync events to websocket
// clients, so a UI can show the offline banner and sync progress.
package statusfeed

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/network"
	syncpkg "github.com/kimhsiao/campusync/internal/sync"
	"github.com/kimhsiao/campusync/internal/uuid"
)

// Event types carried in Envelope.Type.
const (
	EventNetworkOnline  = "network.online"
	EventNetworkOffline = "network.offline"
	EventNetworkQuality = "network.quality"
	EventSyncStarted    = string(syncpkg.EventSyncStarted)
	EventSyncCompleted  = string(syncpkg.EventSyncCompleted)
)

// Envelope wraps all websocket messages.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

type message struct {
	typ     string
	payload []byte
}

// Hub maintains active client connections and broadcasts messages.
type Hub struct {
	monitor  *network.Monitor
	logger   *logging.Logger
	upgrader websocket.Upgrader

	clients    map[string]*Client
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex

	stateMu   sync.Mutex
	lastState network.State
	detach    func()
}

// NewHub creates a hub publishing the monitor's transitions and starts
// its dispatch loop.
func NewHub(monitor *network.Monitor, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Get()
	}
	h := &Hub{
		monitor: monitor,
		logger:  logger.With(logging.Fields{"component": "statusfeed"}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     localOrigin,
		},
		clients:    make(map[string]*Client),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		lastState:  monitor.State(),
	}
	h.detach = monitor.Subscribe(h.handleNetworkState)
	go h.run()
	return h
}

// localOrigin allows non-browser clients and pages served from localhost.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return u.Host == r.Host
}

// run manages client connections and broadcasts.
func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client connected", logging.Fields{"client_id": client.id, "total": total})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client disconnected", logging.Fields{"client_id": client.id, "total": total})

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				if !client.wants(msg.typ) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// Send buffer full, drop the client
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close detaches from the monitor and disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.detach()
		close(h.done)
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to all subscribed clients. It never blocks:
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(messageType string, data map[string]interface{}) {
	payload, err := encode(messageType, data)
	if err != nil {
		h.logger.Error("Failed to marshal message", err, logging.Fields{"type": messageType})
		return
	}

	select {
	case <-h.done:
	case h.broadcast <- message{typ: messageType, payload: payload}:
	default:
		h.logger.Warn("Broadcast queue full, message dropped", logging.Fields{"type": messageType})
	}
}

func encode(messageType string, data map[string]interface{}) ([]byte, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	return json.Marshal(Envelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// handleNetworkState turns monitor updates into network events. Changes
// that only touch the banner are not broadcast.
func (h *Hub) handleNetworkState(state network.State) {
	h.stateMu.Lock()
	prev := h.lastState
	h.lastState = state
	h.stateMu.Unlock()

	switch {
	case state.Online != prev.Online:
		h.Broadcast(networkEvent(state), stateData(state))
	case state.EffectiveType != prev.EffectiveType:
		h.Broadcast(EventNetworkQuality, stateData(state))
	}
}

// HandleSyncEvent publishes reconciler lifecycle events. It matches
// syncpkg.EventHandler.
func (h *Hub) HandleSyncEvent(ev syncpkg.Event) {
	data := map[string]interface{}{}
	if ev.Result != nil {
		data = resultData(*ev.Result)
	}
	h.Broadcast(string(ev.Type), data)
}

func networkEvent(state network.State) string {
	if state.Online {
		return EventNetworkOnline
	}
	return EventNetworkOffline
}

func stateData(state network.State) map[string]interface{} {
	return map[string]interface{}{
		"isOnline":          state.Online,
		"effectiveType":     state.EffectiveType,
		"showOfflineBanner": state.ShowOfflineBanner,
	}
}

func resultData(r syncpkg.Result) map[string]interface{} {
	return map[string]interface{}{
		"processed":    r.Processed,
		"succeeded":    r.Succeeded,
		"failed":       r.Failed,
		"markedFailed": r.MarkedFailed,
		"duration":     r.Duration.Milliseconds(),
	}
}

// ServeHTTP upgrades the request and registers the connection. The new
// client first receives the current network state.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade", logging.Fields{"error": err.Error()})
		return
	}

	client := &Client{
		id:            uuid.New(),
		conn:          conn,
		send:          make(chan []byte, 256),
		hub:           h,
		subscriptions: make(map[string]bool),
	}

	state := h.monitor.State()
	if snapshot, err := encode(networkEvent(state), stateData(state)); err == nil {
		client.send <- snapshot
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
