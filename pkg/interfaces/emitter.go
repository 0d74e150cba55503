package interfaces

// Emitter delivers outbound events
type Emitter interface {
	// Broadcast sends an event to every live connection, registered or not
	Broadcast(event string, payload interface{})

	// SendTo sends an event to a single connection
	SendTo(conn Connection, event string, payload interface{}) error
}
