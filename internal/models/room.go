package models

import (
	"time"

	"github.com/samber/lo"
)

// Room is the metadata document of a chat room.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	Invitees  []string  `db:"-" json:"invitees"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoomStatus tells whether a room document is visible to the viewer.
type RoomStatus string

const (
	RoomPresent RoomStatus = "present"
	RoomAbsent  RoomStatus = "absent"
	RoomDenied  RoomStatus = "denied"
)

// RoomSnapshot is the full state of a room document at one notification.
// Err is set when the live query broke after it was established.
type RoomSnapshot struct {
	Status RoomStatus
	Room   Room
	Err    error
}

// Available reports whether the snapshot carries a readable room.
func (s RoomSnapshot) Available() bool {
	return s.Err == nil && s.Status == RoomPresent
}

// HasMember reports whether userID owns or was invited to the room.
func (r Room) HasMember(userID string) bool {
	if userID == "" {
		return false
	}
	return r.OwnerID == userID || lo.Contains(r.Invitees, userID)
}
