package chat_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"jabbr/internal/chat"
	"jabbr/internal/database"
	"jabbr/internal/models"
	"jabbr/internal/repository"
	"jabbr/internal/ws"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recorded is one emitter call: the target kind plus the event payload.
type recorded struct {
	Kind   string // room, roomExcept, user, conn, conns, all, allExcept
	Room   string
	UserID uint
	ConnID string
	Conns  []string
	Event  string
	Args   []interface{}
}

// fakeEmitter records every emit in call order.
type fakeEmitter struct {
	mu     sync.Mutex
	events []recorded
}

func (f *fakeEmitter) record(r recorded) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, r)
}

func (f *fakeEmitter) ToRoom(room, event string, args ...interface{}) {
	f.record(recorded{Kind: "room", Room: room, Event: event, Args: args})
}
func (f *fakeEmitter) ToRoomExcept(room, except, event string, args ...interface{}) {
	f.record(recorded{Kind: "roomExcept", Room: room, ConnID: except, Event: event, Args: args})
}
func (f *fakeEmitter) ToUser(userID uint, event string, args ...interface{}) {
	f.record(recorded{Kind: "user", UserID: userID, Event: event, Args: args})
}
func (f *fakeEmitter) ToConnection(connID, event string, args ...interface{}) {
	f.record(recorded{Kind: "conn", ConnID: connID, Event: event, Args: args})
}
func (f *fakeEmitter) ToConnections(connIDs []string, event string, args ...interface{}) {
	f.record(recorded{Kind: "conns", Conns: connIDs, Event: event, Args: args})
}
func (f *fakeEmitter) ToAll(event string, args ...interface{}) {
	f.record(recorded{Kind: "all", Event: event, Args: args})
}
func (f *fakeEmitter) ToAllExcept(except []string, event string, args ...interface{}) {
	f.record(recorded{Kind: "allExcept", Conns: except, Event: event, Args: args})
}

func (f *fakeEmitter) all() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recorded, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeEmitter) named(event string) []recorded {
	var out []recorded
	for _, e := range f.all() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeEmitter) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

type env struct {
	t        *testing.T
	db       *gorm.DB
	repo     *repository.ChatRepository
	registry *ws.Registry
	emitter  *fakeEmitter
	coord    *chat.Coordinator
}

func newEnv(t *testing.T, disconnectThreshold time.Duration) *env {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	repo := repository.NewChatRepository(db)
	registry := ws.NewRegistry()
	emitter := &fakeEmitter{}
	coord := chat.NewCoordinator(repo, registry, emitter, 2000, disconnectThreshold)
	return &env{t: t, db: db, repo: repo, registry: registry, emitter: emitter, coord: coord}
}

func (e *env) createUser(name, status string) *models.User {
	e.t.Helper()
	u := &models.User{
		Name:         name,
		Email:        name + "@example.com",
		Status:       status,
		LastActivity: time.Now(),
	}
	require.NoError(e.t, e.repo.CreateUser(u))
	return u
}

func (e *env) createRoom(name string, private bool) *models.Room {
	e.t.Helper()
	room := &models.Room{Name: name, Private: private}
	require.NoError(e.t, e.repo.CreateRoom(room))
	return room
}

func (e *env) addMember(u *models.User, room *models.Room) {
	e.t.Helper()
	require.NoError(e.t, e.repo.AddMembership(u, room))
}

// connect registers a live ws connection and runs Connect.
func (e *env) connect(u *models.User, connID string) {
	e.t.Helper()
	e.registry.Register(ws.NewConn(connID, u.ID))
	require.NoError(e.t, e.coord.Connect(u.ID, connID, "test-agent"))
}

func (e *env) userStatus(userID uint) string {
	e.t.Helper()
	var u models.User
	require.NoError(e.t, e.db.First(&u, userID).Error)
	return u.Status
}

func (e *env) clientCount(userID uint) int64 {
	e.t.Helper()
	n, err := e.repo.ClientCount(userID)
	require.NoError(e.t, err)
	return n
}
