package broadcast

import (
	"encoding/json"
	"log"

	"jabbr/internal/ws"
)

// Emitter fans named events out to subscriber sets. Callers resolve WHO gets
// an event (a room, a user's devices, explicit connection ids, everyone);
// delivery itself is fire-and-forget per connection — a slow or dead target
// never blocks the others and never fails the triggering operation.
type Emitter interface {
	ToRoom(room, event string, args ...interface{})
	// ToRoomExcept skips one connection, used so a sender's own tab gets
	// replaceMessage instead of a duplicate addMessage.
	ToRoomExcept(room, exceptConnID, event string, args ...interface{})
	// ToUser reaches every device/tab the user has open.
	ToUser(userID uint, event string, args ...interface{})
	ToConnection(connID, event string, args ...interface{})
	ToConnections(connIDs []string, event string, args ...interface{})
	ToAll(event string, args ...interface{})
	// ToAllExcept delivers to everyone but the listed connections; used to
	// send the redacted variant of private-room visibility changes.
	ToAllExcept(exceptConnIDs []string, event string, args ...interface{})
}

// HubEmitter resolves targets through the connection registry and writes to
// each connection's buffered channel.
type HubEmitter struct {
	registry *ws.Registry
}

func NewHubEmitter(registry *ws.Registry) *HubEmitter {
	return &HubEmitter{registry: registry}
}

func (e *HubEmitter) marshal(event string, args []interface{}) []byte {
	if args == nil {
		args = []interface{}{}
	}
	data, err := json.Marshal(Envelope{Event: event, Args: args})
	if err != nil {
		log.Printf("broadcast: marshal %s: %v", event, err)
		return nil
	}
	return data
}

func (e *HubEmitter) send(ids []string, data []byte, except map[string]bool) {
	if data == nil {
		return
	}
	for _, id := range ids {
		if except != nil && except[id] {
			continue
		}
		e.registry.Send(id, data)
	}
}

func (e *HubEmitter) ToRoom(room, event string, args ...interface{}) {
	e.send(e.registry.ConnectionsForRoom(room), e.marshal(event, args), nil)
}

func (e *HubEmitter) ToRoomExcept(room, exceptConnID, event string, args ...interface{}) {
	e.send(e.registry.ConnectionsForRoom(room), e.marshal(event, args),
		map[string]bool{exceptConnID: true})
}

func (e *HubEmitter) ToUser(userID uint, event string, args ...interface{}) {
	e.send(e.registry.ConnectionsForUser(userID), e.marshal(event, args), nil)
}

func (e *HubEmitter) ToConnection(connID, event string, args ...interface{}) {
	e.send([]string{connID}, e.marshal(event, args), nil)
}

func (e *HubEmitter) ToConnections(connIDs []string, event string, args ...interface{}) {
	e.send(connIDs, e.marshal(event, args), nil)
}

func (e *HubEmitter) ToAll(event string, args ...interface{}) {
	e.send(e.registry.AllConnections(), e.marshal(event, args), nil)
}

func (e *HubEmitter) ToAllExcept(exceptConnIDs []string, event string, args ...interface{}) {
	except := make(map[string]bool, len(exceptConnIDs))
	for _, id := range exceptConnIDs {
		except[id] = true
	}
	e.send(e.registry.AllConnections(), e.marshal(event, args), except)
}
