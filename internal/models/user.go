package models

import (
	"time"

	"jabbr/internal/domain"
)

type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Email        string     `gorm:"uniqueIndex;size:255;not null" json:"-"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	Status       string     `gorm:"size:20;not null;index;default:'OFFLINE'" json:"status"`
	LastActivity time.Time  `gorm:"index" json:"last_activity"`
	IsAfk        bool       `gorm:"default:false" json:"is_afk"`
	AfkNote      string     `gorm:"size:200" json:"afk_note,omitempty"`
	Note         string     `gorm:"size:200" json:"note,omitempty"`
	IsAdmin      bool       `gorm:"default:false" json:"-"`
	IsBanned     bool       `gorm:"default:false" json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"-"`

	// Relations
	Rooms        []*Room  `gorm:"many2many:room_users" json:"-"`
	OwnedRooms   []*Room  `gorm:"many2many:room_owners" json:"-"`
	AllowedRooms []*Room  `gorm:"many2many:room_allowed_users" json:"-"`
	Clients      []Client `gorm:"foreignKey:UserID" json:"-"`
}

func (u *User) IsOffline() bool { return u.Status == domain.StatusOffline }

// OwnsRoom reports whether the room appears in the user's loaded owner set.
func (u *User) OwnsRoom(roomID uint) bool {
	for _, r := range u.OwnedRooms {
		if r.ID == roomID {
			return true
		}
	}
	return false
}

// AllowedInto reports whether the user may see a room. Public rooms are
// visible to everyone; private rooms only to the allowed set.
func (u *User) AllowedInto(room *Room) bool {
	if !room.Private {
		return true
	}
	for _, r := range u.AllowedRooms {
		if r.ID == room.ID {
			return true
		}
	}
	return false
}
