// Package signaling holds the in-memory presence, room and call state for
// real-time signaling. Every type in this package is owned by a single event
// loop goroutine and must only be touched from it; the WebSocket hub is that
// loop in production.
package signaling

import "sort"

// Outbox delivers outbound events to one live connection. Emit must not block.
type Outbox interface {
	Emit(event string, payload any)
}

// Principal is the authenticated identity attached at connect time
type Principal struct {
	UserID   string
	UserName string
}

// Conn is the loop-side state of one live connection
type Conn struct {
	ID             string
	UserName       string
	ExternalUserID string
	Principal      *Principal
	out            Outbox
}

// NewConn creates connection state bound to out. principal may be nil.
func NewConn(id string, out Outbox, principal *Principal) *Conn {
	return &Conn{ID: id, out: out, Principal: principal}
}

// Emit sends an event to this connection only
func (c *Conn) Emit(event string, payload any) {
	if c == nil || c.out == nil {
		return
	}
	c.out.Emit(event, payload)
}

// Registered reports whether the connection has sent register
func (c *Conn) Registered() bool {
	return c.UserName != ""
}

// Connections tracks every live connection on the loop
type Connections struct {
	byID map[string]*Conn
}

// NewConnections creates an empty connection set
func NewConnections() *Connections {
	return &Connections{byID: make(map[string]*Conn)}
}

func (cs *Connections) Add(conn *Conn) {
	cs.byID[conn.ID] = conn
}

// Remove deletes the connection, returning false if it was already gone
func (cs *Connections) Remove(connID string) bool {
	if _, ok := cs.byID[connID]; !ok {
		return false
	}
	delete(cs.byID, connID)
	return true
}

func (cs *Connections) Len() int {
	return len(cs.byID)
}

// Broadcast emits the event to every live connection in id order
func (cs *Connections) Broadcast(event string, payload any) {
	ids := make([]string, 0, len(cs.byID))
	for id := range cs.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cs.byID[id].Emit(event, payload)
	}
}
