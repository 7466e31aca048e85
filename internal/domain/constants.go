package domain

// User status is a pure function of connected clients and recent activity;
// it is only written inside a presence transition.
const (
	StatusOnline   = "ONLINE"
	StatusInactive = "INACTIVE"
	StatusOffline  = "OFFLINE"
)

const (
	MaxRoomNameLength = 64
)
