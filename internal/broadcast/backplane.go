package broadcast

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"
)

const backplaneSubject = "jabbr.broadcast"

type targetKind string

const (
	targetRoom        targetKind = "room"
	targetRoomExcept  targetKind = "roomExcept"
	targetUser        targetKind = "user"
	targetConnection  targetKind = "conn"
	targetConnections targetKind = "conns"
	targetAll         targetKind = "all"
	targetAllExcept   targetKind = "allExcept"
)

type backplaneFrame struct {
	Node   string        `json:"node"`
	Kind   targetKind    `json:"kind"`
	Room   string        `json:"room,omitempty"`
	UserID uint          `json:"user_id,omitempty"`
	Conns  []string      `json:"conns,omitempty"`
	Event  string        `json:"event"`
	Args   []interface{} `json:"args"`
}

// natsConn is the slice of *nats.Conn the backplane uses; narrowed so tests
// can substitute an in-process fake.
type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Backplane relays every emit to peer nodes over NATS so a deployment can run
// more than one chat node. Connection ids are uuids, globally unique, so a
// frame replayed on a node that doesn't hold the target simply delivers to
// nobody. Local delivery happens first and never waits on the publish.
type Backplane struct {
	local  Emitter
	nc     natsConn
	nodeID string
}

func NewBackplane(nc natsConn, nodeID string, local Emitter) (*Backplane, error) {
	b := &Backplane{local: local, nc: nc, nodeID: nodeID}
	if _, err := nc.Subscribe(backplaneSubject, b.onRemote); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backplane) publish(f backplaneFrame) {
	f.Node = b.nodeID
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("backplane: marshal %s: %v", f.Event, err)
		return
	}
	if err := b.nc.Publish(backplaneSubject, data); err != nil {
		log.Printf("backplane: publish %s: %v", f.Event, err)
	}
}

func (b *Backplane) onRemote(msg *nats.Msg) {
	var f backplaneFrame
	if err := json.Unmarshal(msg.Data, &f); err != nil {
		log.Printf("backplane: bad frame: %v", err)
		return
	}
	if f.Node == b.nodeID {
		return
	}
	b.apply(f)
}

func (b *Backplane) apply(f backplaneFrame) {
	switch f.Kind {
	case targetRoom:
		b.local.ToRoom(f.Room, f.Event, f.Args...)
	case targetRoomExcept:
		except := ""
		if len(f.Conns) > 0 {
			except = f.Conns[0]
		}
		b.local.ToRoomExcept(f.Room, except, f.Event, f.Args...)
	case targetUser:
		b.local.ToUser(f.UserID, f.Event, f.Args...)
	case targetConnection:
		if len(f.Conns) > 0 {
			b.local.ToConnection(f.Conns[0], f.Event, f.Args...)
		}
	case targetConnections:
		b.local.ToConnections(f.Conns, f.Event, f.Args...)
	case targetAll:
		b.local.ToAll(f.Event, f.Args...)
	case targetAllExcept:
		b.local.ToAllExcept(f.Conns, f.Event, f.Args...)
	}
}

func (b *Backplane) ToRoom(room, event string, args ...interface{}) {
	b.local.ToRoom(room, event, args...)
	b.publish(backplaneFrame{Kind: targetRoom, Room: room, Event: event, Args: args})
}

func (b *Backplane) ToRoomExcept(room, exceptConnID, event string, args ...interface{}) {
	b.local.ToRoomExcept(room, exceptConnID, event, args...)
	b.publish(backplaneFrame{Kind: targetRoomExcept, Room: room, Conns: []string{exceptConnID}, Event: event, Args: args})
}

func (b *Backplane) ToUser(userID uint, event string, args ...interface{}) {
	b.local.ToUser(userID, event, args...)
	b.publish(backplaneFrame{Kind: targetUser, UserID: userID, Event: event, Args: args})
}

func (b *Backplane) ToConnection(connID, event string, args ...interface{}) {
	b.local.ToConnection(connID, event, args...)
	b.publish(backplaneFrame{Kind: targetConnection, Conns: []string{connID}, Event: event, Args: args})
}

func (b *Backplane) ToConnections(connIDs []string, event string, args ...interface{}) {
	b.local.ToConnections(connIDs, event, args...)
	b.publish(backplaneFrame{Kind: targetConnections, Conns: connIDs, Event: event, Args: args})
}

func (b *Backplane) ToAll(event string, args ...interface{}) {
	b.local.ToAll(event, args...)
	b.publish(backplaneFrame{Kind: targetAll, Event: event, Args: args})
}

func (b *Backplane) ToAllExcept(exceptConnIDs []string, event string, args ...interface{}) {
	b.local.ToAllExcept(exceptConnIDs, event, args...)
	b.publish(backplaneFrame{Kind: targetAllExcept, Conns: exceptConnIDs, Event: event, Args: args})
}
