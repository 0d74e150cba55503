package interfaces

// Connection represents a live client connection handle
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// keeps presence and routing independent of the WebSocket transport
type Connection interface {
	// ID returns an identifier unique per live connection
	ID() string

	// WriteJSON sends a JSON message to the client (thread-safe)
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error
}
