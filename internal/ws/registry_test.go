package ws_test

import (
	"fmt"
	"sync"
	"testing"

	"jabbr/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SubscribeAndQuery(t *testing.T) {
	r := ws.NewRegistry()
	c1 := ws.NewConn("c1", 1)
	c2 := ws.NewConn("c2", 1)
	c3 := ws.NewConn("c3", 2)
	r.Register(c1)
	r.Register(c2)
	r.Register(c3)

	r.Subscribe("c1", "lobby")
	r.Subscribe("c2", "lobby")
	r.Subscribe("c3", "dev")

	assert.ElementsMatch(t, []string{"c1", "c2"}, r.ConnectionsForRoom("lobby"))
	assert.ElementsMatch(t, []string{"c3"}, r.ConnectionsForRoom("dev"))
	assert.ElementsMatch(t, []string{"c1", "c2"}, r.ConnectionsForUser(1))
	assert.ElementsMatch(t, []string{"c3"}, r.ConnectionsForUser(2))
	assert.Equal(t, 3, r.ConnCount())
}

func TestRegistry_RoomNamesAreCaseInsensitive(t *testing.T) {
	r := ws.NewRegistry()
	c := ws.NewConn("c1", 1)
	r.Register(c)

	r.Subscribe("c1", "Lobby")
	assert.ElementsMatch(t, []string{"c1"}, r.ConnectionsForRoom("lobby"))
	assert.ElementsMatch(t, []string{"c1"}, r.ConnectionsForRoom("LOBBY"))
}

func TestRegistry_SubscribeIsIdempotent(t *testing.T) {
	r := ws.NewRegistry()
	c := ws.NewConn("c1", 1)
	r.Register(c)

	r.Subscribe("c1", "lobby")
	r.Subscribe("c1", "lobby")
	assert.Len(t, r.ConnectionsForRoom("lobby"), 1)

	r.Unsubscribe("c1", "lobby")
	r.Unsubscribe("c1", "lobby")
	assert.Empty(t, r.ConnectionsForRoom("lobby"))
}

func TestRegistry_UnknownConnIsNoOp(t *testing.T) {
	r := ws.NewRegistry()
	r.Subscribe("ghost", "lobby")
	assert.Empty(t, r.ConnectionsForRoom("lobby"))
	r.Unsubscribe("ghost", "lobby")
	r.Drop("ghost")
}

func TestRegistry_DropRemovesEverywhere(t *testing.T) {
	r := ws.NewRegistry()
	c1 := ws.NewConn("c1", 1)
	c2 := ws.NewConn("c2", 1)
	r.Register(c1)
	r.Register(c2)
	r.Subscribe("c1", "lobby")
	r.Subscribe("c1", "dev")
	r.Subscribe("c2", "lobby")

	r.Drop("c1")

	assert.ElementsMatch(t, []string{"c2"}, r.ConnectionsForRoom("lobby"))
	assert.Empty(t, r.ConnectionsForRoom("dev"))
	assert.ElementsMatch(t, []string{"c2"}, r.ConnectionsForUser(1))
	_, ok := r.UserForConnection("c1")
	assert.False(t, ok)

	// dropped conn's channel is closed so the write pump exits
	_, open := <-c1.Send
	assert.False(t, open)
}

func TestRegistry_SubscribeUser(t *testing.T) {
	r := ws.NewRegistry()
	r.Register(ws.NewConn("c1", 1))
	r.Register(ws.NewConn("c2", 1))

	r.SubscribeUser(1, "lobby")
	assert.ElementsMatch(t, []string{"c1", "c2"}, r.ConnectionsForRoom("lobby"))

	r.UnsubscribeUser(1, "lobby")
	assert.Empty(t, r.ConnectionsForRoom("lobby"))
}

func TestRegistry_SendNeverBlocks(t *testing.T) {
	r := ws.NewRegistry()
	c := ws.NewConn("c1", 1)
	r.Register(c)

	// nobody drains the channel; pushes beyond the buffer must drop, not hang
	for i := 0; i < 1000; i++ {
		r.Send("c1", []byte("x"))
	}
	r.Send("missing", []byte("x"))
}

func TestRegistry_ConcurrentOps(t *testing.T) {
	r := ws.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			c := ws.NewConn(id, uint(i%5))
			r.Register(c)
			r.Subscribe(id, "lobby")
			r.ConnectionsForRoom("lobby")
			r.Send(id, []byte("hello"))
			if i%2 == 0 {
				r.Drop(id)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, r.ConnectionsForRoom("lobby"), 25)
	assert.Equal(t, 25, r.ConnCount())
}
