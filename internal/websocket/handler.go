package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"counselrelay/internal/config"
	"counselrelay/pkg/interfaces"
	"counselrelay/pkg/types"
)

// Dispatcher receives connection lifecycle and inbound events
type Dispatcher interface {
	Attach(conn interfaces.Connection) error
	Detach(conn interfaces.Connection)
	Dispatch(conn interfaces.Connection, envelope types.Envelope) error
}

// Handler upgrades HTTP requests and pumps frames into the dispatcher
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic
type Handler struct {
	dispatcher Dispatcher
	config     *config.WebSocketConfig
	upgrader   websocket.Upgrader
}

// NewHandler creates a handler accepting upgrades from allowedOrigins ("*" allows any)
func NewHandler(dispatcher Dispatcher, cfg *config.WebSocketConfig, allowedOrigins []string) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		config:     cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:      originChecker(allowedOrigins),
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin header
		return origin == "" || set[origin]
	}
}

// ServeHTTP upgrades the request and hands the connection to the dispatcher
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	ws.SetReadLimit(h.config.MaxMessageSize)

	conn := NewConnection(ws, h.config.BufferSize, h.config.WriteTimeout)
	if err := h.dispatcher.Attach(conn); err != nil {
		log.Printf("Rejecting connection %s: %v", conn.ID(), err)
		_ = conn.Close()
		return
	}

	go h.handleConnection(conn)
}

// handleConnection runs the read pump and heartbeat until the client goes away
// TECHNICAL DISCOVERY: read deadline is extended on every pong, pings go out
// every PingInterval, so a silent peer is dropped after ReadTimeout
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.dispatcher.Detach(conn)
		_ = conn.Close()
	}()

	readTimeout := h.config.ReadTimeout
	if err := conn.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.writePing(); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var envelope types.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Event == "" {
			h.reject(conn, "", "frame must be a JSON object with an event name")
			continue
		}

		if err := h.dispatcher.Dispatch(conn, envelope); err != nil {
			log.Printf("Dispatch of %s from %s failed: %v", envelope.Event, conn.ID(), err)
			h.reject(conn, envelope.Event, "server busy, event dropped")
		}
	}
}

func (h *Handler) reject(conn *Connection, event, message string) {
	notice := types.OutboundEvent{
		Event: types.EventError,
		Data:  types.ErrorNotice{Event: event, Message: message},
	}
	if err := conn.WriteJSON(notice); err != nil {
		log.Printf("Failed to send error to %s: %v", conn.ID(), err)
	}
}
