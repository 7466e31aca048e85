package models

import "time"

type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Private   bool      `gorm:"default:false;index" json:"private"`
	Closed    bool      `gorm:"default:false" json:"closed"`
	Topic     string    `gorm:"size:200" json:"topic"`
	Welcome   string    `gorm:"size:500" json:"welcome"`
	CreatorID *uint     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`

	// Relations
	Creator      *User   `gorm:"foreignKey:CreatorID" json:"-"`
	Users        []*User `gorm:"many2many:room_users" json:"-"`
	Owners       []*User `gorm:"many2many:room_owners" json:"-"`
	AllowedUsers []*User `gorm:"many2many:room_allowed_users" json:"-"`
}
