package models

import "time"

type Message struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"` // server-generated uuid
	RoomID    uint      `gorm:"not null;index" json:"room_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	When      time.Time `gorm:"not null;index" json:"when"`
	CreatedAt time.Time `json:"-"`

	Room Room `gorm:"foreignKey:RoomID" json:"-"`
	User User `gorm:"foreignKey:UserID" json:"-"`
}
