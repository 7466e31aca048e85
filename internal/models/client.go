package models

import "time"

// Client is one physical connection. A user has one row per open tab or
// device; the row is removed when the connection is confirmed dead.
type Client struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"` // transport connection id
	UserID    uint   `gorm:"not null;index" json:"user_id"`
	UserAgent string `gorm:"size:512" json:"-"`
	// LastActivity is server-observed; the reconciler touches it for every
	// connection the registry still reports live.
	LastActivity time.Time `gorm:"not null;index" json:"last_activity"`
	// LastClientActivity is the client-reported activity carried over from
	// the user at registration time.
	LastClientActivity time.Time `json:"-"`
	CreatedAt          time.Time `json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Client) TableName() string {
	return "chat_clients"
}
