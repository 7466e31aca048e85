package ws

import (
	"strings"
	"sync"
)

// Registry is the live side of presence: connection id → owning user and
// subscribed rooms, with reverse indexes for fan-out. It is fed directly by
// the connection lifecycle (register on upgrade, drop on close), never
// inferred from transport internals. All operations are in-memory only.
type Registry struct {
	mu          sync.RWMutex
	conns       map[string]*Conn            // conn id → conn
	byUser      map[uint]map[string]*Conn   // user id → conn id → conn
	byRoom      map[string]map[string]*Conn // room → conn id → conn
	roomsByConn map[string]map[string]bool  // conn id → room set
}

func NewRegistry() *Registry {
	return &Registry{
		conns:       make(map[string]*Conn),
		byUser:      make(map[uint]map[string]*Conn),
		byRoom:      make(map[string]map[string]*Conn),
		roomsByConn: make(map[string]map[string]bool),
	}
}

func roomKey(room string) string { return strings.ToLower(room) }

func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
	if r.byUser[c.UserID] == nil {
		r.byUser[c.UserID] = make(map[string]*Conn)
	}
	r.byUser[c.UserID][c.ID] = c
	r.roomsByConn[c.ID] = make(map[string]bool)
}

// Drop removes a connection from every room and from its user's set. The
// conn itself is closed so pending sends are discarded. Irreversible.
func (r *Registry) Drop(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	for room := range r.roomsByConn[connID] {
		delete(r.byRoom[room], connID)
		if len(r.byRoom[room]) == 0 {
			delete(r.byRoom, room)
		}
	}
	delete(r.roomsByConn, connID)
	if m := r.byUser[c.UserID]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byUser, c.UserID)
		}
	}
	r.mu.Unlock()
	c.Close()
}

// Subscribe adds a connection to a room's delivery set. Idempotent; no-op
// for unknown connections.
func (r *Registry) Subscribe(connID, room string) {
	key := roomKey(room)
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return
	}
	if r.byRoom[key] == nil {
		r.byRoom[key] = make(map[string]*Conn)
	}
	r.byRoom[key][connID] = c
	r.roomsByConn[connID][key] = true
}

func (r *Registry) Unsubscribe(connID, room string) {
	key := roomKey(room)
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.byRoom[key]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byRoom, key)
		}
	}
	if rooms := r.roomsByConn[connID]; rooms != nil {
		delete(rooms, key)
	}
}

// SubscribeUser adds every live connection of a user to a room.
func (r *Registry) SubscribeUser(userID uint, room string) {
	for _, id := range r.ConnectionsForUser(userID) {
		r.Subscribe(id, room)
	}
}

// UnsubscribeUser removes every live connection of a user from a room.
func (r *Registry) UnsubscribeUser(userID uint, room string) {
	for _, id := range r.ConnectionsForUser(userID) {
		r.Unsubscribe(id, room)
	}
}

func (r *Registry) ConnectionsForRoom(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byRoom[roomKey(room)]
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) ConnectionsForUser(userID uint) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

// AllConnections snapshots every live connection id.
func (r *Registry) AllConnections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// UserForConnection resolves the owning user of a live connection. Used by
// the reconciler to backfill store rows for connections it doesn't know.
func (r *Registry) UserForConnection(connID string) (uint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return 0, false
	}
	return c.UserID, true
}

// Send queues data on one connection; unknown ids are ignored.
func (r *Registry) Send(connID string, data []byte) {
	r.mu.RLock()
	c := r.conns[connID]
	r.mu.RUnlock()
	if c != nil {
		c.Push(data)
	}
}

func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
