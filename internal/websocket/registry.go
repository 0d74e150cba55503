package websocket

import (
	"encoding/json"
	"log"
	"sort"
	"sync"

	"counselrelay/pkg/interfaces"
	"counselrelay/pkg/types"
)

type presenceEntry struct {
	conn interfaces.Connection
	role string
	seq  uint64
}

// Registry tracks every live connection and the identity registered on it
// ARCHITECTURAL DISCOVERY: Pure connection management without routing logic
// maintains clean separation between presence tracking and message handling
type Registry struct {
	mu          sync.RWMutex                     // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy broadcast fan-out
	connections map[string]interfaces.Connection // handle -> live connection, registered or not
	presence    map[string]*presenceEntry        // identity -> current entry
	handles     map[string]string                // handle -> identity, for O(1) disconnect
	nextSeq     uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		presence:    make(map[string]*presenceEntry),
		handles:     make(map[string]string),
	}
}

// Add records a freshly upgraded connection so broadcasts reach it before it registers
func (r *Registry) Add(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
	return nil
}

// Connect binds identity to conn, replacing any previous entry for identity.
// The replaced connection is left open; it simply loses its presence.
// Returns the roles whose snapshot changed, the registering role first.
func (r *Registry) Connect(identity, role string, conn interfaces.Connection) ([]string, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	handle := conn.ID()
	r.connections[handle] = conn
	changed := []string{role}

	// A handle re-registering under a new identity gives up the old one
	if prevIdentity, ok := r.handles[handle]; ok && prevIdentity != identity {
		if prev := r.presence[prevIdentity]; prev != nil && prev.conn.ID() == handle {
			delete(r.presence, prevIdentity)
			changed = appendRole(changed, prev.role)
		}
	}

	seq := r.nextSeq
	if existing, ok := r.presence[identity]; ok {
		// FUNCTIONAL DISCOVERY: last write wins but the identity keeps its place in snapshots
		seq = existing.seq
		changed = appendRole(changed, existing.role)
		if existing.conn.ID() != handle {
			delete(r.handles, existing.conn.ID())
		}
	} else {
		r.nextSeq++
	}

	r.presence[identity] = &presenceEntry{conn: conn, role: role, seq: seq}
	r.handles[handle] = identity

	return changed, nil
}

// Disconnect forgets conn entirely. It reports the presence the connection
// held, if any; a connection displaced by a reconnect holds none.
func (r *Registry) Disconnect(conn interfaces.Connection) (types.Presence, bool) {
	if conn == nil {
		return types.Presence{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	handle := conn.ID()
	delete(r.connections, handle)

	identity, ok := r.handles[handle]
	if !ok {
		return types.Presence{}, false
	}
	delete(r.handles, handle)

	entry, ok := r.presence[identity]
	if !ok || entry.conn.ID() != handle {
		return types.Presence{}, false
	}
	delete(r.presence, identity)

	return types.Presence{Identity: identity, Role: entry.role}, true
}

// Snapshot lists identities online under role in first-connect order
func (r *Registry) Snapshot(role string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*presenceEntry, 0, len(r.presence))
	identities := make(map[*presenceEntry]string, len(r.presence))
	for identity, entry := range r.presence {
		if entry.role == role {
			entries = append(entries, entry)
			identities[entry] = identity
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	snapshot := make([]string, len(entries))
	for i, entry := range entries {
		snapshot[i] = identities[entry]
	}
	return snapshot
}

// Lookup returns the connection currently registered for identity
func (r *Registry) Lookup(identity string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.presence[identity]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

// PresenceOf reports who is registered on conn
func (r *Registry) PresenceOf(conn interfaces.Connection) (types.Presence, bool) {
	if conn == nil {
		return types.Presence{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.handles[conn.ID()]
	if !ok {
		return types.Presence{}, false
	}
	entry, ok := r.presence[identity]
	if !ok || entry.conn.ID() != conn.ID() {
		return types.Presence{}, false
	}
	return types.Presence{Identity: identity, Role: entry.role}, true
}

// Connections returns every live connection
func (r *Registry) Connections() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

// Broadcast sends an event to every live connection. Delivery is best-effort;
// failures are logged and do not affect other recipients.
func (r *Registry) Broadcast(event string, payload interface{}) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		log.Printf("Failed to encode %s broadcast: %v", event, err)
		return
	}

	for _, conn := range r.Connections() {
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("Broadcast %s to %s failed: %v", event, conn.ID(), err)
		}
	}
}

// SendTo sends an event to a single connection
func (r *Registry) SendTo(conn interfaces.Connection, event string, payload interface{}) error {
	if conn == nil {
		return ErrNilConnection
	}
	return conn.WriteJSON(types.OutboundEvent{Event: event, Data: payload})
}

// SendToIdentity sends an event to the connection registered for identity
func (r *Registry) SendToIdentity(identity, event string, payload interface{}) error {
	conn, ok := r.Lookup(identity)
	if !ok {
		return ErrUnknownIdentity
	}
	return r.SendTo(conn, event, payload)
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[string]int{
		"total_connections": len(r.connections),
		"registered":        len(r.presence),
		"counselors":        0,
		"students":          0,
	}
	for _, entry := range r.presence {
		switch entry.role {
		case types.RoleCounselor:
			stats["counselors"]++
		case types.RoleStudent:
			stats["students"]++
		}
	}
	return stats
}

// encodeFrame marshals a frame once so fan-out does not re-encode the payload per recipient
func encodeFrame(event string, payload interface{}) (json.RawMessage, error) {
	return json.Marshal(types.OutboundEvent{Event: event, Data: payload})
}

func appendRole(roles []string, role string) []string {
	for _, r := range roles {
		if r == role {
			return roles
		}
	}
	return append(roles, role)
}
