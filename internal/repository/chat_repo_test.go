package repository_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"jabbr/internal/database"
	"jabbr/internal/domain"
	"jabbr/internal/models"
	"jabbr/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRepo(t *testing.T) (*repository.ChatRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return repository.NewChatRepository(db), db
}

func seedUser(t *testing.T, repo *repository.ChatRepository, name string) *models.User {
	t.Helper()
	u := &models.User{
		Name:         name,
		Email:        name + "@example.com",
		Status:       domain.StatusOffline,
		LastActivity: time.Now(),
	}
	require.NoError(t, repo.CreateUser(u))
	return u
}

func TestLookupsAreCaseInsensitive(t *testing.T) {
	repo, _ := newRepo(t)
	seedUser(t, repo, "Alice")
	require.NoError(t, repo.CreateRoom(&models.Room{Name: "Lobby"}))

	u, err := repo.GetUserByName("aLiCe")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)

	room, err := repo.GetRoomByName("lobby")
	require.NoError(t, err)
	assert.Equal(t, "Lobby", room.Name)
}

func TestInTxRollsBackOnError(t *testing.T) {
	repo, _ := newRepo(t)
	boom := errors.New("boom")

	err := repo.InTx(func(tx *repository.ChatRepository) error {
		if err := tx.CreateUser(&models.User{Name: "ghost", Email: "ghost@example.com"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.GetUserByName("ghost")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListRoomsVisibility(t *testing.T) {
	repo, _ := newRepo(t)
	alice := seedUser(t, repo, "alice")
	bob := seedUser(t, repo, "bob")

	public := &models.Room{Name: "lobby"}
	secret := &models.Room{Name: "secret", Private: true}
	require.NoError(t, repo.CreateRoom(public))
	require.NoError(t, repo.CreateRoom(secret))
	require.NoError(t, repo.AddAllowedUser(alice, secret))

	names := func(u *models.User) []string {
		fresh, err := repo.GetUserByID(u.ID)
		require.NoError(t, err)
		rooms, err := repo.ListRooms(fresh)
		require.NoError(t, err)
		var out []string
		for _, r := range rooms {
			out = append(out, r.Name)
		}
		return out
	}

	assert.Equal(t, []string{"lobby", "secret"}, names(alice))
	assert.Equal(t, []string{"lobby"}, names(bob))
}

func TestAllowedClientIDs(t *testing.T) {
	repo, _ := newRepo(t)
	alice := seedUser(t, repo, "alice")
	bob := seedUser(t, repo, "bob")
	carol := seedUser(t, repo, "carol")

	secret := &models.Room{Name: "secret", Private: true}
	require.NoError(t, repo.CreateRoom(secret))
	require.NoError(t, repo.AddAllowedUser(alice, secret))
	require.NoError(t, repo.AddAllowedUser(bob, secret))

	now := time.Now()
	for i, u := range []*models.User{alice, alice, bob, carol} {
		require.NoError(t, repo.AddClient(&models.Client{
			ID: fmt.Sprintf("c%d", i), UserID: u.ID, LastActivity: now,
		}))
	}

	ids, err := repo.AllowedClientIDs(secret.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c0", "c1", "c2"}, ids)
}

func TestTouchUserActivityClearsAfk(t *testing.T) {
	repo, db := newRepo(t)
	alice := seedUser(t, repo, "alice")
	require.NoError(t, db.Model(alice).Updates(map[string]interface{}{
		"is_afk": true, "afk_note": "brb",
	}).Error)

	now := time.Now()
	require.NoError(t, repo.TouchUserActivity(alice.ID, now))

	var fresh models.User
	require.NoError(t, db.First(&fresh, alice.ID).Error)
	assert.False(t, fresh.IsAfk)
	assert.WithinDuration(t, now, fresh.LastActivity, time.Second)
}

func TestUnreadNotificationCount(t *testing.T) {
	repo, _ := newRepo(t)
	alice := seedUser(t, repo, "alice")
	bob := seedUser(t, repo, "bob")
	room := &models.Room{Name: "lobby"}
	require.NoError(t, repo.CreateRoom(room))

	msg := &models.Message{ID: uuid.NewString(), RoomID: room.ID, UserID: bob.ID, Content: "@alice", When: time.Now()}
	require.NoError(t, repo.AddMessage(msg))

	require.NoError(t, repo.AddNotification(&models.Notification{UserID: alice.ID, MessageID: msg.ID, RoomID: room.ID, Read: false}))
	require.NoError(t, repo.AddNotification(&models.Notification{UserID: alice.ID, MessageID: msg.ID, RoomID: room.ID, Read: true}))
	require.NoError(t, repo.AddNotification(&models.Notification{UserID: bob.ID, MessageID: msg.ID, RoomID: room.ID, Read: false}))

	n, err := repo.UnreadNotificationCount(alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMembershipRoundTrip(t *testing.T) {
	repo, _ := newRepo(t)
	alice := seedUser(t, repo, "alice")
	room := &models.Room{Name: "lobby"}
	require.NoError(t, repo.CreateRoom(room))

	in, err := repo.IsUserInRoom(alice.ID, room.ID)
	require.NoError(t, err)
	assert.False(t, in)

	require.NoError(t, repo.AddMembership(alice, room))
	in, err = repo.IsUserInRoom(alice.ID, room.ID)
	require.NoError(t, err)
	assert.True(t, in)

	members, err := repo.RoomMembers(room.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, alice.ID, members[0].ID)

	require.NoError(t, repo.RemoveMembership(alice, room))
	in, err = repo.IsUserInRoom(alice.ID, room.ID)
	require.NoError(t, err)
	assert.False(t, in)
}
