package broadcast

import "time"

// Event names pushed to clients. These are the wire contract the browser
// client binds handlers to; renaming one breaks deployed clients.
const (
	EventAddUser             = "addUser"
	EventLeave               = "leave"
	EventMarkInactive        = "markInactive"
	EventAddMessage          = "addMessage"
	EventReplaceMessage      = "replaceMessage"
	EventUpdateActivity      = "updateActivity"
	EventUpdateRoom          = "updateRoom"
	EventUpdateUnreadNotices = "updateUnreadNotifications"
	EventSetTyping           = "setTyping"
	EventJoinRoom            = "joinRoom"
	EventKick                = "kick"
	EventAllowUser           = "allowUser"
	EventLockRoom            = "lockRoom"
	EventLogOn               = "logOn"
)

// Envelope is the frame written to the socket: an event name plus its
// positional arguments.
type Envelope struct {
	Event string        `json:"event"`
	Args  []interface{} `json:"args"`
}

// UserView is the user shape sent with presence events.
type UserView struct {
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	IsAfk        bool      `json:"is_afk"`
	AfkNote      string    `json:"afk_note,omitempty"`
	Note         string    `json:"note,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

// RoomSummary is the lobby shape sent with updateRoom.
type RoomSummary struct {
	Name    string `json:"name"`
	Private bool   `json:"private"`
	Closed  bool   `json:"closed"`
	Topic   string `json:"topic"`
	Count   int64  `json:"count"`
}

// MessageView is the message shape sent with addMessage/replaceMessage.
type MessageView struct {
	ID      string    `json:"id"`
	Content string    `json:"content"`
	User    UserView  `json:"user"`
	When    time.Time `json:"when"`
}
