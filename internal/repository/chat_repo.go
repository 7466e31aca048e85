package repository

import (
	"strings"
	"time"

	"jabbr/internal/domain"
	"jabbr/internal/models"

	"gorm.io/gorm"
)

// ChatRepository is the durable side of presence: users, rooms, membership
// and per-connection client rows. Mutating calls made inside InTx commit as
// one unit; the registry in internal/ws holds the live side.
type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// InTx runs fn against a transactional copy of the repository. All mutations
// inside fn commit together or not at all; broadcasts must happen after InTx
// returns so clients never observe events for state they cannot read back.
func (r *ChatRepository) InTx(fn func(tx *ChatRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&ChatRepository{db: tx})
	})
}

// ----- users -----

func (r *ChatRepository) CreateUser(u *models.User) error {
	return r.db.Create(u).Error
}

func (r *ChatRepository) GetUserByID(id uint) (*models.User, error) {
	var u models.User
	err := r.db.Preload("Rooms").Preload("OwnedRooms").Preload("AllowedRooms").
		First(&u, id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByName resolves a name case-insensitively.
func (r *ChatRepository) GetUserByName(name string) (*models.User, error) {
	var u models.User
	err := r.db.Preload("Rooms").Preload("AllowedRooms").
		Where("LOWER(name) = ?", strings.ToLower(name)).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *ChatRepository) GetUserByEmail(email string) (*models.User, error) {
	var u models.User
	err := r.db.Where("email = ?", email).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *ChatRepository) SetUserStatus(userID uint, status string) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("status", status).Error
}

// TouchUserActivity bumps last activity and clears the AFK flag.
func (r *ChatRepository) TouchUserActivity(userID uint, now time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_activity": now,
			"is_afk":        false,
		}).Error
}

// ----- clients -----

func (r *ChatRepository) AddClient(c *models.Client) error {
	return r.db.Save(c).Error
}

func (r *ChatRepository) GetClientByID(id string) (*models.Client, error) {
	var c models.Client
	err := r.db.Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChatRepository) RemoveClient(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.Client{}).Error
}

func (r *ChatRepository) ClientCount(userID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Client{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (r *ChatRepository) TouchClientActivity(ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.Client{}).Where("id IN ?", ids).
		Update("last_activity", now).Error
}

// ExistingClientIDs filters ids down to those with a store row. The
// reconciler uses the complement to heal registry/store drift.
func (r *ChatRepository) ExistingClientIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []string
	err := r.db.Model(&models.Client{}).Where("id IN ?", ids).
		Pluck("id", &found).Error
	return found, err
}

// ClientsOlderThan returns zombie candidates: client rows the store believes
// are live but whose activity predates the cutoff.
func (r *ChatRepository) ClientsOlderThan(cutoff time.Time) ([]models.Client, error) {
	var clients []models.Client
	err := r.db.Where("last_activity < ?", cutoff).Find(&clients).Error
	return clients, err
}

// ----- rooms & membership -----

func (r *ChatRepository) CreateRoom(room *models.Room) error {
	return r.db.Create(room).Error
}

func (r *ChatRepository) GetRoomByName(name string) (*models.Room, error) {
	var room models.Room
	err := r.db.Preload("Owners").Preload("AllowedUsers").
		Where("LOWER(name) = ?", strings.ToLower(name)).First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *ChatRepository) SaveRoom(room *models.Room) error {
	return r.db.Save(room).Error
}

// ListRooms returns every room a user may see: all public rooms plus the
// private rooms on the user's allowed list.
func (r *ChatRepository) ListRooms(user *models.User) ([]models.Room, error) {
	allowed := make([]uint, 0, len(user.AllowedRooms))
	for _, room := range user.AllowedRooms {
		allowed = append(allowed, room.ID)
	}
	var rooms []models.Room
	q := r.db.Where("private = ?", false)
	if len(allowed) > 0 {
		q = q.Or("id IN ?", allowed)
	}
	err := q.Order("name").Find(&rooms).Error
	return rooms, err
}

// RoomMembers returns every user currently in the room.
func (r *ChatRepository) RoomMembers(roomID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.Joins("JOIN room_users ON room_users.user_id = users.id").
		Where("room_users.room_id = ?", roomID).
		Find(&users).Error
	return users, err
}

func (r *ChatRepository) AddMembership(user *models.User, room *models.Room) error {
	return r.db.Model(room).Association("Users").Append(user)
}

func (r *ChatRepository) RemoveMembership(user *models.User, room *models.Room) error {
	return r.db.Model(room).Association("Users").Delete(user)
}

func (r *ChatRepository) IsUserInRoom(userID, roomID uint) (bool, error) {
	var n int64
	err := r.db.Table("room_users").
		Where("user_id = ? AND room_id = ?", userID, roomID).Count(&n).Error
	return n > 0, err
}

// GetOnlineUsers returns the room's members that are not offline.
func (r *ChatRepository) GetOnlineUsers(roomID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.Joins("JOIN room_users ON room_users.user_id = users.id").
		Where("room_users.room_id = ? AND users.status <> ?", roomID, domain.StatusOffline).
		Find(&users).Error
	return users, err
}

func (r *ChatRepository) OnlineUserCount(roomID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.User{}).
		Joins("JOIN room_users ON room_users.user_id = users.id").
		Where("room_users.room_id = ? AND users.status <> ?", roomID, domain.StatusOffline).
		Count(&n).Error
	return n, err
}

// AllowedClientIDs returns the connection ids of every user permitted to see
// a private room. Events about a private room are narrowed to this list.
func (r *ChatRepository) AllowedClientIDs(roomID uint) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.Client{}).
		Joins("JOIN room_allowed_users ON room_allowed_users.user_id = chat_clients.user_id").
		Where("room_allowed_users.room_id = ?", roomID).
		Pluck("chat_clients.id", &ids).Error
	return ids, err
}

func (r *ChatRepository) AddAllowedUser(user *models.User, room *models.Room) error {
	return r.db.Model(room).Association("AllowedUsers").Append(user)
}

func (r *ChatRepository) AddOwner(user *models.User, room *models.Room) error {
	return r.db.Model(room).Association("Owners").Append(user)
}

// ----- reconciler queries -----

// OnlineUsersWithNoClients finds users the store still shows as present but
// that have no connection rows left.
func (r *ChatRepository) OnlineUsersWithNoClients() ([]models.User, error) {
	var users []models.User
	err := r.db.Preload("Rooms").
		Where("status <> ?", domain.StatusOffline).
		Where("NOT EXISTS (SELECT 1 FROM chat_clients WHERE chat_clients.user_id = users.id)").
		Find(&users).Error
	return users, err
}

// OnlineUsersIdleLongerThan finds users to demote to inactive.
func (r *ChatRepository) OnlineUsersIdleLongerThan(cutoff time.Time) ([]models.User, error) {
	var users []models.User
	err := r.db.Preload("Rooms").
		Where("status = ? AND last_activity < ?", domain.StatusOnline, cutoff).
		Find(&users).Error
	return users, err
}

// ----- messages & notifications -----

func (r *ChatRepository) AddMessage(m *models.Message) error {
	return r.db.Create(m).Error
}

func (r *ChatRepository) AddNotification(n *models.Notification) error {
	return r.db.Create(n).Error
}

func (r *ChatRepository) UnreadNotificationCount(userID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Notification{}).
		Where("user_id = ? AND `read` = ?", userID, false).Count(&n).Error
	return n, err
}
