package models

import "time"

// Notification is a mention: user X was named in a message. Read may be set
// at creation time when the mentioned user is demonstrably watching the room.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	MessageID string    `gorm:"size:36;not null" json:"message_id"`
	RoomID    uint      `gorm:"not null;index" json:"room_id"`
	Read      bool      `gorm:"default:false;index" json:"read"`
	CreatedAt time.Time `json:"created_at"`

	User    User    `gorm:"foreignKey:UserID" json:"-"`
	Message Message `gorm:"foreignKey:MessageID" json:"-"`
	Room    Room    `gorm:"foreignKey:RoomID" json:"-"`
}
