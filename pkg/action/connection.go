package action

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// ConnectionTypeInternal marks invocations made by the runtime itself, the
// only connection type allowed to call private actions.
const ConnectionTypeInternal = "internal"

// Connection is the transport-side view of a caller. The pipeline borrows it
// for the duration of an invocation and only moves its counters.
type Connection struct {
	ID       string
	Type     string
	RemoteIP string
	Params   map[string]any

	pendingActions atomic.Int64
	totalActions   atomic.Int64
	messageCount   atomic.Int64
}

// NewConnection builds a connection with a fresh identifier.
func NewConnection(connType, remoteIP string) *Connection {
	return &Connection{
		ID:       uuid.NewString(),
		Type:     connType,
		RemoteIP: remoteIP,
		Params:   map[string]any{},
	}
}

// NewInternalConnection builds a connection used by the runtime itself.
func NewInternalConnection() *Connection {
	return NewConnection(ConnectionTypeInternal, "0.0.0.0")
}

// BeginAction counts a new invocation and returns the pending count
// including it.
func (c *Connection) BeginAction() int64 {
	c.totalActions.Add(1)
	return c.pendingActions.Add(1)
}

// EndAction releases one pending invocation.
func (c *Connection) EndAction() {
	c.pendingActions.Add(-1)
}

// ReceiveMessage counts an inbound message. Transports call it.
func (c *Connection) ReceiveMessage() int64 {
	return c.messageCount.Add(1)
}

// PendingActions returns the number of invocations in flight.
func (c *Connection) PendingActions() int64 { return c.pendingActions.Load() }

// TotalActions returns the number of invocations started.
func (c *Connection) TotalActions() int64 { return c.totalActions.Load() }

// MessageCount returns the number of messages received.
func (c *Connection) MessageCount() int64 { return c.messageCount.Load() }
