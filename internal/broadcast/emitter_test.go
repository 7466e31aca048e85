package broadcast_test

import (
	"encoding/json"
	"testing"

	"jabbr/internal/broadcast"
	"jabbr/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, c *ws.Conn) []broadcast.Envelope {
	t.Helper()
	var out []broadcast.Envelope
	for {
		select {
		case data := <-c.Send:
			var env broadcast.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func setupEmitter(t *testing.T) (*ws.Registry, *broadcast.HubEmitter, *ws.Conn, *ws.Conn, *ws.Conn) {
	t.Helper()
	r := ws.NewRegistry()
	a := ws.NewConn("a", 1)
	b := ws.NewConn("b", 1)
	c := ws.NewConn("c", 2)
	for _, conn := range []*ws.Conn{a, b, c} {
		r.Register(conn)
	}
	r.Subscribe("a", "lobby")
	r.Subscribe("b", "lobby")
	return r, broadcast.NewHubEmitter(r), a, b, c
}

func TestHubEmitter_ToRoom(t *testing.T) {
	_, e, a, b, c := setupEmitter(t)

	e.ToRoom("lobby", broadcast.EventAddMessage, "hello", "lobby")

	for _, conn := range []*ws.Conn{a, b} {
		events := drain(t, conn)
		require.Len(t, events, 1)
		assert.Equal(t, broadcast.EventAddMessage, events[0].Event)
		assert.Equal(t, []interface{}{"hello", "lobby"}, events[0].Args)
	}
	assert.Empty(t, drain(t, c))
}

func TestHubEmitter_ToRoomExcept(t *testing.T) {
	_, e, a, b, _ := setupEmitter(t)

	e.ToRoomExcept("lobby", "a", broadcast.EventAddMessage, "hi", "lobby")

	assert.Empty(t, drain(t, a))
	assert.Len(t, drain(t, b), 1)
}

func TestHubEmitter_ToUserReachesEveryTab(t *testing.T) {
	_, e, a, b, c := setupEmitter(t)

	e.ToUser(1, broadcast.EventUpdateUnreadNotices, float64(3))

	assert.Len(t, drain(t, a), 1)
	assert.Len(t, drain(t, b), 1)
	assert.Empty(t, drain(t, c))
}

func TestHubEmitter_ToAllExcept(t *testing.T) {
	_, e, a, b, c := setupEmitter(t)

	e.ToAllExcept([]string{"a", "b"}, broadcast.EventLockRoom, "secret", false)

	assert.Empty(t, drain(t, a))
	assert.Empty(t, drain(t, b))
	events := drain(t, c)
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.EventLockRoom, events[0].Event)
}

func TestHubEmitter_NoArgsMarshalsEmptyList(t *testing.T) {
	_, e, a, _, _ := setupEmitter(t)

	e.ToConnection("a", "ping")

	events := drain(t, a)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].Args)
	assert.Empty(t, events[0].Args)
}

func TestHubEmitter_FullBufferDoesNotBlockOthers(t *testing.T) {
	_, e, a, b, _ := setupEmitter(t)

	// saturate a's buffer; b must still receive the next event
	for i := 0; i < 300; i++ {
		e.ToConnection("a", "noise")
	}
	drain(t, b)

	e.ToRoom("lobby", broadcast.EventLeave, "user", "lobby")
	events := drain(t, b)
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.EventLeave, events[0].Event)
	_ = a
}
