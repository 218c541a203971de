package main

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"multiverse/sim/internal/config"
	"multiverse/sim/internal/input"
	"multiverse/sim/internal/logging"
	"multiverse/sim/internal/session"
)

// Client tracks one connected WebSocket viewer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Bridge fans simulation tick diffs out to WebSocket viewers and routes their
// command frames into the session.
type Bridge struct {
	log           *logging.Logger
	sim           *session.Session
	gate          *input.Gate
	upgrader      websocket.Upgrader
	authenticator viewerAuthenticator
	pingInterval  time.Duration
	maxPayload    int64
	maxClients    int

	mu         sync.Mutex
	clients    map[*Client]bool
	broadcasts int
	started    time.Time
	startupErr error
}

// BridgeOption customises bridge construction.
type BridgeOption func(*Bridge)

// WithViewerAuthenticator wires a custom authenticator into the bridge.
func WithViewerAuthenticator(authenticator viewerAuthenticator) BridgeOption {
	return func(b *Bridge) {
		if b == nil || authenticator == nil {
			return
		}
		b.authenticator = authenticator
	}
}

// NewBridge constructs the viewer fan-out for the provided session.
func NewBridge(cfg *config.Config, sim *session.Session, gate *input.Gate, logger *logging.Logger, opts ...BridgeOption) *Bridge {
	if logger == nil {
		logger = logging.L()
	}
	bridge := &Bridge{
		log:           logger,
		sim:           sim,
		gate:          gate,
		authenticator: allowAllAuthenticator{},
		pingInterval:  config.DefaultPingInterval,
		maxPayload:    config.DefaultMaxPayloadBytes,
		maxClients:    config.DefaultMaxClients,
		clients:       make(map[*Client]bool),
		started:       time.Now(),
	}
	if cfg != nil {
		bridge.pingInterval = cfg.PingInterval
		bridge.maxPayload = cfg.MaxPayloadBytes
		bridge.maxClients = cfg.MaxClients
		bridge.upgrader = websocket.Upgrader{CheckOrigin: originChecker(cfg.AllowedOrigins)}
	} else {
		bridge.upgrader = websocket.Upgrader{CheckOrigin: originChecker(nil)}
	}
	for _, opt := range opts {
		opt(bridge)
	}
	return bridge
}

// originChecker allows every origin when the list is empty, otherwise only
// exact matches against the configured values.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	permitted := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		permitted[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return permitted[origin]
	}
}

// ClientCount reports the number of connected viewers.
func (b *Bridge) ClientCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Stats returns cumulative broadcast and viewer counts for metrics.
func (b *Bridge) Stats() (broadcasts, clients int) {
	if b == nil {
		return 0, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broadcasts, len(b.clients)
}

// Uptime reports how long the bridge has been serving viewers.
func (b *Bridge) Uptime() time.Duration {
	if b == nil {
		return 0
	}
	return time.Since(b.started)
}

// StartupError surfaces a fatal initialisation failure to readiness probes.
func (b *Bridge) StartupError() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startupErr
}

// SetStartupError records an initialisation failure for readiness reporting.
func (b *Bridge) SetStartupError(err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.startupErr = err
	b.mu.Unlock()
}

// Broadcast queues the payload for every connected viewer, dropping viewers
// whose send buffers are full.
func (b *Bridge) Broadcast(msg []byte) {
	if b == nil || len(msg) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts++
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			//1.- A stalled viewer loses its slot instead of stalling the tick.
			close(c.send)
			delete(b.clients, c)
		}
	}
}

// ServeWS upgrades the connection and starts the per-viewer pump goroutines.
func (b *Bridge) ServeWS(w http.ResponseWriter, r *http.Request) {
	logger := logging.LoggerFromContext(r.Context())

	viewerID, err := b.authenticator.Authenticate(r)
	if err != nil {
		logger.Warn("websocket auth rejected", logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if b.maxClients > 0 && b.ClientCount() >= b.maxClients {
		logger.Warn("viewer limit reached", logging.Field{Key: "max_clients", Value: b.maxClients})
		http.Error(w, "too many viewers", http.StatusServiceUnavailable)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	if b.maxPayload > 0 {
		conn.SetReadLimit(b.maxPayload)
	}

	if viewerID == "" {
		viewerID = r.RemoteAddr
	}
	client := &Client{conn: conn, send: make(chan []byte, 256), id: viewerID}
	b.mu.Lock()
	b.clients[client] = true
	b.mu.Unlock()
	logger.Info("viewer connected", logging.String("client_id", client.id))

	//1.- Greet the viewer with a full snapshot so it can render immediately.
	if snapshot, err := encodeTickDiff(b.sim.Snapshot()); err == nil {
		client.send <- snapshot
	}

	go b.readPump(client, logger)
	go b.writePump(client)
}

// readPump consumes command frames until the connection drops.
func (b *Bridge) readPump(client *Client, logger *logging.Logger) {
	defer func() {
		b.mu.Lock()
		delete(b.clients, client)
		b.mu.Unlock()
		if b.gate != nil {
			b.gate.Forget(client.id)
		}
		client.conn.Close()
		logger.Info("viewer disconnected", logging.String("client_id", client.id))
	}()
	for {
		_, msg, err := client.conn.ReadMessage()
		if err != nil {
			logger.Debug("websocket read ended", logging.Error(err))
			return
		}
		payload, err := decodeCommandPayload(msg)
		if err != nil {
			logger.Debug("discarding malformed command", logging.Error(err))
			continue
		}
		if err := validateCommandPayload(payload); err != nil {
			logger.Debug("discarding invalid command", logging.Error(err))
			continue
		}
		if payload.ClientID == "" {
			payload.ClientID = client.id
		}
		if err := b.processCommand(client.id, payload, logger); err != nil {
			//2.- Tell the sender why its frame was rejected without breaking the stream.
			b.sendError(client, payload.SequenceID, err)
		}
	}
}

// writePump flushes queued payloads and keeps the connection alive with pings.
func (b *Bridge) writePump(client *Client) {
	ticker := time.NewTicker(b.pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = client.conn.WriteMessage(websocket.TextMessage, msg)
		case <-ticker.C:
			_ = client.conn.WriteMessage(websocket.PingMessage, []byte{})
		}
	}
}

// sendError reports a rejected command back to the originating viewer only.
func (b *Bridge) sendError(client *Client, sequenceID uint64, cause error) {
	if b == nil || client == nil || cause == nil {
		return
	}
	msg := []byte(fmt.Sprintf(`{"type":"error","sequence_id":%d,"error":%q}`, sequenceID, cause.Error()))
	select {
	case client.send <- msg:
	default:
	}
}
