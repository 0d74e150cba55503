package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"counselrelay/internal/router"
	"counselrelay/internal/websocket"
	"counselrelay/pkg/interfaces"
	"counselrelay/pkg/types"
)

type jobKind int

const (
	jobAttach jobKind = iota
	jobEvent
	jobDetach
)

// job is one unit of hub work. Attach, events and detach of a connection
// share one FIFO queue so they are handled in the order they happened.
type job struct {
	kind     jobKind
	conn     interfaces.Connection
	envelope types.Envelope
}

// Hub dispatches connection lifecycle and inbound events on a single goroutine
// ARCHITECTURAL DISCOVERY: Central coordination point for all event flow
// maintains clean separation between WebSocket handling and routing
type Hub struct {
	// TECHNICAL DISCOVERY: 1000 buffer absorbs bursts without blocking read pumps
	queue           chan job
	shutdownChannel chan struct{}
	done            chan struct{}

	registry *websocket.Registry
	router   *router.Router

	maintenanceInterval time.Duration

	running bool
	mu      sync.RWMutex
}

// NewHub creates a new hub
func NewHub(registry *websocket.Registry, router *router.Router) *Hub {
	return &Hub{
		queue:               make(chan job, 1000),
		shutdownChannel:     make(chan struct{}),
		done:                make(chan struct{}),
		registry:            registry,
		router:              router,
		maintenanceInterval: time.Minute,
	}
}

// Start begins hub processing
// FUNCTIONAL DISCOVERY: Single hub goroutine serializes presence changes and routing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting event hub...")
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down and waits for the dispatch goroutine to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	log.Println("Stopping event hub...")
	<-h.done

	return nil
}

// IsRunning reports whether the hub accepts work
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Attach queues a freshly upgraded connection
func (h *Hub) Attach(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	return h.enqueue(job{kind: jobAttach, conn: conn})
}

// Dispatch queues an inbound event. A saturated hub rejects the event rather
// than stalling the connection's read pump.
func (h *Hub) Dispatch(conn interfaces.Connection, envelope types.Envelope) error {
	if conn == nil {
		return ErrNilConnection
	}
	return h.enqueue(job{kind: jobEvent, conn: conn, envelope: envelope})
}

// Detach queues the removal of a closed connection. Unlike events it is never
// dropped; it waits for queue space unless the hub shuts down.
func (h *Hub) Detach(conn interfaces.Connection) {
	if conn == nil || !h.IsRunning() {
		return
	}
	select {
	case h.queue <- job{kind: jobDetach, conn: conn}:
	case <-h.shutdownChannel:
	case <-h.done:
	}
}

func (h *Hub) enqueue(j job) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	// TECHNICAL DISCOVERY: Non-blocking send prevents hub lockup
	select {
	case h.queue <- j:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// run is the main hub processing loop
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	ticker := time.NewTicker(h.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case j := <-h.queue:
			h.handle(ctx, j)

		case <-ticker.C:
			h.router.Maintain()

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, j job) {
	switch j.kind {
	case jobAttach:
		if err := h.registry.Add(j.conn); err != nil {
			log.Printf("Failed to attach connection: %v", err)
		}
	case jobDetach:
		h.handleDetach(j.conn)
	case jobEvent:
		if err := h.handleEvent(ctx, j.conn, j.envelope); err != nil {
			log.Printf("Event %s from %s rejected: %v", j.envelope.Event, j.conn.ID(), err)
			h.sendErrorToSender(j.conn, j.envelope.Event, err)
		}
	}
}

// handleEvent routes one inbound event to its handler
func (h *Hub) handleEvent(ctx context.Context, conn interfaces.Connection, envelope types.Envelope) error {
	switch envelope.Event {
	case types.EventUserConnected:
		var registration types.Registration
		if err := decode(envelope.Data, &registration); err != nil {
			return err
		}
		if err := registration.Validate(); err != nil {
			return err
		}
		return h.handleRegistration(conn, &registration)

	case types.EventSendMessage:
		var message types.ChatMessage
		if err := decode(envelope.Data, &message); err != nil {
			return err
		}
		return h.router.RouteMessage(ctx, conn, &message)

	case types.EventReportStudent:
		var report types.Report
		if err := decode(envelope.Data, &report); err != nil {
			return err
		}
		return h.router.RelayReport(&report)

	case types.EventNewEvent:
		// Announcements are not validated; missing data announces null fields
		var event types.GenericEvent
		if len(envelope.Data) > 0 {
			if err := decode(envelope.Data, &event); err != nil {
				return err
			}
		}
		h.router.Announce(event)
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Event)
	}
}

// handleRegistration binds the identity to the connection and publishes the
// new snapshot of every role whose membership changed
func (h *Hub) handleRegistration(conn interfaces.Connection, registration *types.Registration) error {
	changed, err := h.registry.Connect(registration.Identity, registration.Role, conn)
	if err != nil {
		return err
	}

	log.Printf("Connection registered: identity=%s role=%s conn=%s", registration.Identity, registration.Role, conn.ID())
	for _, role := range changed {
		h.broadcastStatus(role)
	}
	return nil
}

// handleDetach forgets the connection; only a registered one changes presence
func (h *Hub) handleDetach(conn interfaces.Connection) {
	presence, ok := h.registry.Disconnect(conn)
	if !ok {
		return
	}

	log.Printf("Connection deregistered: identity=%s role=%s", presence.Identity, presence.Role)
	h.broadcastStatus(presence.Role)
}

func (h *Hub) broadcastStatus(role string) {
	event := types.EventStudentStatusChange
	if role == types.RoleCounselor {
		event = types.EventCounselorStatusChange
	}
	h.registry.Broadcast(event, h.registry.Snapshot(role))
}

// sendErrorToSender tells the sender its event was rejected
func (h *Hub) sendErrorToSender(conn interfaces.Connection, event string, cause error) {
	notice := types.ErrorNotice{Event: event, Message: cause.Error()}
	if err := h.registry.SendTo(conn, types.EventError, notice); err != nil {
		log.Printf("Failed to send error to %s: %v", conn.ID(), err)
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("event data is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid event data: %w", err)
	}
	return nil
}
