package chat

import (
	"errors"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"jabbr/internal/broadcast"
	"jabbr/internal/domain"
	"jabbr/internal/models"
	"jabbr/internal/repository"
	"jabbr/internal/ws"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Coordinator sequences presence mutations and broadcasts for one logical
// operation at a time. Store commits happen before any broadcast so a client
// can never observe an event for state it cannot read back.
type Coordinator struct {
	repo     *repository.ChatRepository
	registry *ws.Registry
	emitter  broadcast.Emitter

	maxMessageLength    int
	disconnectThreshold time.Duration

	// One mutex per user around every "count clients, decide status"
	// sequence. Scoped to a single user, never global.
	locks sync.Map

	graceMu sync.Mutex
	grace   map[string]*time.Timer // conn id → pending status recomputation
}

func NewCoordinator(repo *repository.ChatRepository, registry *ws.Registry, emitter broadcast.Emitter, maxMessageLength int, disconnectThreshold time.Duration) *Coordinator {
	return &Coordinator{
		repo:                repo,
		registry:            registry,
		emitter:             emitter,
		maxMessageLength:    maxMessageLength,
		disconnectThreshold: disconnectThreshold,
		grace:               make(map[string]*time.Timer),
	}
}

func (c *Coordinator) lockUser(userID uint) func() {
	v, _ := c.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Connect registers a new client for a user. Presence only changes on the
// user's first connection; extra tabs attach silently.
func (c *Coordinator) Connect(userID uint, connID, userAgent string) error {
	unlock := c.lockUser(userID)
	defer unlock()

	user, err := c.repo.GetUserByID(userID)
	if err != nil {
		return err
	}

	prior, err := c.repo.ClientCount(userID)
	if err != nil {
		return err
	}

	firstClient := prior == 0
	now := time.Now()
	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		if err := tx.AddClient(&models.Client{
			ID:                 connID,
			UserID:             userID,
			UserAgent:          userAgent,
			LastActivity:       now,
			LastClientActivity: user.LastActivity,
		}); err != nil {
			return err
		}
		if firstClient && user.IsOffline() {
			user.Status = domain.StatusInactive
			return tx.SetUserStatus(userID, domain.StatusInactive)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.attach(user, connID, firstClient)
	return nil
}

// Reconnect re-registers a client that dropped and came back. If the grace
// window already fired (stored status Offline) this is a fresh Connect and
// the user's rooms are told again; otherwise it is silent.
func (c *Coordinator) Reconnect(userID uint, connID, userAgent string) error {
	c.cancelGrace(connID)

	unlock := c.lockUser(userID)
	defer unlock()

	user, err := c.repo.GetUserByID(userID)
	if err != nil {
		return err
	}

	wasOffline := user.IsOffline()
	now := time.Now()
	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		if err := tx.AddClient(&models.Client{
			ID:                 connID,
			UserID:             userID,
			UserAgent:          userAgent,
			LastActivity:       now,
			LastClientActivity: user.LastActivity,
		}); err != nil {
			return err
		}
		if wasOffline {
			user.Status = domain.StatusInactive
			return tx.SetUserStatus(userID, domain.StatusInactive)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.attach(user, connID, wasOffline)
	return nil
}

// attach subscribes the connection to the user's rooms, announces the user
// when presence changed, and replays the room list to the new connection.
func (c *Coordinator) attach(user *models.User, connID string, announce bool) {
	uv := userView(user)
	roomNames := make([]string, 0, len(user.Rooms))
	for _, room := range user.Rooms {
		c.registry.Subscribe(connID, room.Name)
		roomNames = append(roomNames, room.Name)
		if announce {
			c.emitter.ToRoom(room.Name, broadcast.EventAddUser, uv, room.Name, user.OwnsRoom(room.ID))
		}
	}
	c.emitter.ToConnection(connID, broadcast.EventLogOn, roomNames)
}

// Join adds the user to a room and subscribes every one of their live
// connections so each open tab starts receiving the room's events.
func (c *Coordinator) Join(userID uint, roomName string) error {
	user, err := c.repo.GetUserByID(userID)
	if err != nil {
		return err
	}
	room, err := c.findRoom(roomName)
	if err != nil {
		return err
	}
	if !user.AllowedInto(room) {
		return ErrAccessDenied
	}

	inRoom, err := c.repo.IsUserInRoom(userID, room.ID)
	if err != nil {
		return err
	}
	if inRoom {
		// Re-joining is a no-op beyond making sure subscriptions exist.
		c.registry.SubscribeUser(userID, room.Name)
		return nil
	}

	now := time.Now()
	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		if err := tx.AddMembership(user, room); err != nil {
			return err
		}
		return tx.TouchUserActivity(userID, now)
	})
	if err != nil {
		return err
	}

	c.registry.SubscribeUser(userID, room.Name)

	c.emitter.ToUser(userID, broadcast.EventJoinRoom, c.roomSummary(room))
	c.emitter.ToRoom(room.Name, broadcast.EventAddUser, userView(user), room.Name, user.OwnsRoom(room.ID))
	c.roomChanged(room)
	return nil
}

// Leave removes the user from a room and unsubscribes all their connections.
func (c *Coordinator) Leave(userID uint, roomName string) error {
	user, err := c.repo.GetUserByID(userID)
	if err != nil {
		return err
	}
	room, err := c.findRoom(roomName)
	if err != nil {
		return err
	}
	inRoom, err := c.repo.IsUserInRoom(userID, room.ID)
	if err != nil {
		return err
	}
	if !inRoom {
		return ErrNotInRoom
	}

	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		return tx.RemoveMembership(user, room)
	})
	if err != nil {
		return err
	}

	c.emitter.ToRoom(room.Name, broadcast.EventLeave, userView(user), room.Name)
	c.registry.UnsubscribeUser(userID, room.Name)
	c.roomChanged(room)
	return nil
}

// Send validates, persists and fans out one message. When the client supplied
// a provisional id the room sees addMessage first and only the sending
// connection gets replaceMessage, so other members never see a message the
// sender's own UI hasn't reconciled.
func (c *Coordinator) Send(userID uint, connID, roomName, content, clientMsgID string) error {
	if c.maxMessageLength > 0 && utf8.RuneCountInString(content) > c.maxMessageLength {
		return ErrMessageTooLong
	}

	user, err := c.repo.GetUserByID(userID)
	if err != nil {
		return err
	}
	room, err := c.findRoom(roomName)
	if err != nil {
		return err
	}
	if !user.AllowedInto(room) {
		return ErrAccessDenied
	}
	inRoom, err := c.repo.IsUserInRoom(userID, room.ID)
	if err != nil {
		return err
	}
	if !inRoom {
		return ErrNotInRoom
	}
	if room.Closed {
		return ErrRoomClosed
	}

	now := time.Now()
	wasIdle := user.Status != domain.StatusOnline
	msg := &models.Message{
		ID:      uuid.NewString(),
		RoomID:  room.ID,
		UserID:  userID,
		Content: content,
		When:    now,
	}
	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		if err := tx.AddMessage(msg); err != nil {
			return err
		}
		if err := tx.TouchUserActivity(userID, now); err != nil {
			return err
		}
		if err := tx.SetUserStatus(userID, domain.StatusOnline); err != nil {
			return err
		}
		return tx.TouchClientActivity([]string{connID}, now)
	})
	if err != nil {
		return err
	}
	user.Status = domain.StatusOnline
	user.LastActivity = now

	if wasIdle {
		c.emitter.ToRoom(room.Name, broadcast.EventUpdateActivity, userView(user), room.Name)
	}

	mv := messageView(msg, user)
	if clientMsgID == "" {
		c.emitter.ToRoom(room.Name, broadcast.EventAddMessage, mv, room.Name)
	} else {
		c.emitter.ToRoomExcept(room.Name, connID, broadcast.EventAddMessage, mv, room.Name)
		c.emitter.ToConnection(connID, broadcast.EventReplaceMessage, clientMsgID, mv, room.Name)
	}

	c.addMentions(msg, user, room)
	return nil
}

// addMentions creates a notification per mentioned user. A mention counts iff
// the user exists, isn't the author, can see the room, and wasn't already
// mentioned in this message. It is born read when the user is demonstrably
// watching: not offline, not AFK, active in the last 10 minutes, and a member
// of the room.
func (c *Coordinator) addMentions(msg *models.Message, author *models.User, room *models.Room) {
	now := time.Now()
	var mentioned []*models.User
	var notifications []*models.Notification

	for _, name := range extractMentions(msg.Content) {
		target, err := c.repo.GetUserByName(name)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("chat: resolve mention %q: %v", name, err)
			}
			continue
		}
		if target.ID == author.ID {
			continue
		}
		if room.Private && !target.AllowedInto(room) {
			continue
		}

		inRoom, err := c.repo.IsUserInRoom(target.ID, room.ID)
		if err != nil {
			log.Printf("chat: mention membership check %q: %v", name, err)
			continue
		}
		markRead := !target.IsOffline() &&
			!target.IsAfk &&
			now.Sub(target.LastActivity) < 10*time.Minute &&
			inRoom

		notifications = append(notifications, &models.Notification{
			UserID:    target.ID,
			MessageID: msg.ID,
			RoomID:    room.ID,
			Read:      markRead,
		})
		mentioned = append(mentioned, target)
	}

	if len(notifications) == 0 {
		return
	}

	err := c.repo.InTx(func(tx *repository.ChatRepository) error {
		for _, n := range notifications {
			if err := tx.AddNotification(n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("chat: save mentions for message %s: %v", msg.ID, err)
		return
	}

	for _, target := range mentioned {
		unread, err := c.repo.UnreadNotificationCount(target.ID)
		if err != nil {
			log.Printf("chat: unread count for %s: %v", target.Name, err)
			continue
		}
		c.emitter.ToUser(target.ID, broadcast.EventUpdateUnreadNotices, unread)
	}
}

// Typing touches activity and tells the room the user is typing.
func (c *Coordinator) Typing(userID uint, roomName string) error {
	user, err := c.repo.GetUserByID(userID)
	if err != nil {
		return err
	}
	room, err := c.findRoom(roomName)
	if err != nil {
		return err
	}
	inRoom, err := c.repo.IsUserInRoom(userID, room.ID)
	if err != nil {
		return err
	}
	if !inRoom {
		return ErrNotInRoom
	}

	now := time.Now()
	wasIdle := user.Status != domain.StatusOnline
	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		if err := tx.TouchUserActivity(userID, now); err != nil {
			return err
		}
		return tx.SetUserStatus(userID, domain.StatusOnline)
	})
	if err != nil {
		return err
	}
	user.Status = domain.StatusOnline
	user.LastActivity = now

	if wasIdle {
		for _, r := range user.Rooms {
			c.emitter.ToRoom(r.Name, broadcast.EventUpdateActivity, userView(user), r.Name)
		}
	}
	c.emitter.ToRoom(room.Name, broadcast.EventSetTyping, userView(user), room.Name)
	return nil
}

// Disconnect drops the connection and removes its client row. With the
// threshold the status recomputation waits out a grace window so a page
// refresh doesn't flicker the user offline; a Reconnect for the same
// connection id cancels the pending recomputation outright.
func (c *Coordinator) Disconnect(connID string, useThreshold bool) {
	c.registry.Drop(connID)

	client, err := c.repo.GetClientByID(connID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("chat: disconnect %s: %v", connID, err)
		}
		return
	}
	userID := client.UserID

	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		return tx.RemoveClient(connID)
	})
	if err != nil {
		log.Printf("chat: remove client %s: %v", connID, err)
		return
	}

	if useThreshold && c.disconnectThreshold > 0 {
		c.graceMu.Lock()
		c.grace[connID] = time.AfterFunc(c.disconnectThreshold, func() {
			c.graceMu.Lock()
			delete(c.grace, connID)
			c.graceMu.Unlock()
			c.recomputeStatus(userID)
		})
		c.graceMu.Unlock()
		return
	}

	c.recomputeStatus(userID)
}

func (c *Coordinator) cancelGrace(connID string) {
	c.graceMu.Lock()
	defer c.graceMu.Unlock()
	if t, ok := c.grace[connID]; ok {
		t.Stop()
		delete(c.grace, connID)
	}
}

// recomputeStatus collapses a user to offline once their last client is gone
// and tells every room they were in. Guarded by the per-user lock so two
// racing disconnects emit exactly one leave per room.
func (c *Coordinator) recomputeStatus(userID uint) {
	unlock := c.lockUser(userID)
	defer unlock()

	user, err := c.repo.GetUserByID(userID)
	if err != nil {
		log.Printf("chat: recompute status for user %d: %v", userID, err)
		return
	}
	if user.IsOffline() {
		return
	}

	count, err := c.repo.ClientCount(userID)
	if err != nil {
		log.Printf("chat: client count for user %d: %v", userID, err)
		return
	}
	if count > 0 {
		return
	}

	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		return tx.SetUserStatus(userID, domain.StatusOffline)
	})
	if err != nil {
		log.Printf("chat: mark user %d offline: %v", userID, err)
		return
	}
	user.Status = domain.StatusOffline

	for _, room := range user.Rooms {
		c.emitter.ToRoom(room.Name, broadcast.EventLeave, userView(user), room.Name)
	}
}

// CreateRoom creates a room with the caller as creator and owner. Private
// rooms start with the creator on the allowed list.
func (c *Coordinator) CreateRoom(userID uint, name string, private bool) (*models.Room, error) {
	user, err := c.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if _, err := c.repo.GetRoomByName(name); err == nil {
		return nil, ErrRoomExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	room := &models.Room{
		Name:      name,
		Private:   private,
		CreatorID: &user.ID,
	}
	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		if err := tx.CreateRoom(room); err != nil {
			return err
		}
		if err := tx.AddOwner(user, room); err != nil {
			return err
		}
		if private {
			return tx.AddAllowedUser(user, room)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.roomChanged(room)
	return room, nil
}

// Kick throws a user out of a room. Owners only; the target's connections
// are unsubscribed after the room-wide kick event so they see it too.
func (c *Coordinator) Kick(callerID uint, targetName, roomName, reason string) error {
	caller, err := c.repo.GetUserByID(callerID)
	if err != nil {
		return err
	}
	room, err := c.findRoom(roomName)
	if err != nil {
		return err
	}
	if !caller.OwnsRoom(room.ID) {
		return ErrAccessDenied
	}
	target, err := c.repo.GetUserByName(targetName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotInRoom
		}
		return err
	}
	inRoom, err := c.repo.IsUserInRoom(target.ID, room.ID)
	if err != nil {
		return err
	}
	if !inRoom {
		return ErrNotInRoom
	}

	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		return tx.RemoveMembership(target, room)
	})
	if err != nil {
		return err
	}

	c.emitter.ToRoom(room.Name, broadcast.EventKick, userView(target), room.Name, userView(caller), reason)
	c.registry.UnsubscribeUser(target.ID, room.Name)
	c.roomChanged(room)
	return nil
}

// LockRoom makes a room private. Everyone allowed to see it gets the real
// event; everyone else gets the redacted variant so the room disappears from
// their lobby instead of silently never existing.
func (c *Coordinator) LockRoom(callerID uint, roomName string) error {
	caller, err := c.repo.GetUserByID(callerID)
	if err != nil {
		return err
	}
	room, err := c.findRoom(roomName)
	if err != nil {
		return err
	}
	if !caller.OwnsRoom(room.ID) {
		return ErrAccessDenied
	}

	room.Private = true
	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		if err := tx.SaveRoom(room); err != nil {
			return err
		}
		if err := tx.AddAllowedUser(caller, room); err != nil {
			return err
		}
		// Everyone already in the room keeps access.
		members, err := tx.RoomMembers(room.ID)
		if err != nil {
			return err
		}
		for i := range members {
			if members[i].ID == caller.ID {
				continue
			}
			if err := tx.AddAllowedUser(&members[i], room); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	allowed, err := c.repo.AllowedClientIDs(room.ID)
	if err != nil {
		log.Printf("chat: allowed clients for %s: %v", room.Name, err)
		allowed = nil
	}
	cv := userView(caller)
	c.emitter.ToConnections(allowed, broadcast.EventLockRoom, cv, room.Name, true)
	c.emitter.ToAllExcept(allowed, broadcast.EventLockRoom, cv, room.Name, false)
	c.roomChanged(room)
	return nil
}

// Allow grants a user access to a private room. Owners only; the target
// hears about the room so their lobby can show it before they join.
func (c *Coordinator) Allow(callerID uint, targetName, roomName string) error {
	caller, err := c.repo.GetUserByID(callerID)
	if err != nil {
		return err
	}
	room, err := c.findRoom(roomName)
	if err != nil {
		return err
	}
	if !caller.OwnsRoom(room.ID) {
		return ErrAccessDenied
	}
	if !room.Private {
		return ErrRoomNotPrivate
	}
	target, err := c.repo.GetUserByName(targetName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if target.AllowedInto(room) {
		return nil
	}

	err = c.repo.InTx(func(tx *repository.ChatRepository) error {
		return tx.AddAllowedUser(target, room)
	})
	if err != nil {
		return err
	}

	c.emitter.ToUser(target.ID, broadcast.EventAllowUser, userView(caller), c.roomSummary(room))
	c.roomChanged(room)
	return nil
}

func (c *Coordinator) findRoom(name string) (*models.Room, error) {
	room, err := c.repo.GetRoomByName(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (c *Coordinator) roomSummary(room *models.Room) broadcast.RoomSummary {
	count, err := c.repo.OnlineUserCount(room.ID)
	if err != nil {
		log.Printf("chat: online count for %s: %v", room.Name, err)
	}
	return broadcast.RoomSummary{
		Name:    room.Name,
		Private: room.Private,
		Closed:  room.Closed,
		Topic:   room.Topic,
		Count:   count,
	}
}

// roomChanged pushes the room's lobby summary to everyone who may see it.
// Private room summaries never go to All.
func (c *Coordinator) roomChanged(room *models.Room) {
	summary := c.roomSummary(room)
	if !room.Private {
		c.emitter.ToAll(broadcast.EventUpdateRoom, summary)
		return
	}
	allowed, err := c.repo.AllowedClientIDs(room.ID)
	if err != nil {
		log.Printf("chat: allowed clients for %s: %v", room.Name, err)
		return
	}
	c.emitter.ToConnections(allowed, broadcast.EventUpdateRoom, summary)
}
