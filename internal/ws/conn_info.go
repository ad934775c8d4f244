package ws

import "time"

type ConnInfo struct {
	ConnID      string
	UserID      string
	RoomID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// visitKey identifies a client session in a room. A device without an id
// shares the key of every other id-less device of the same user.
type visitKey struct {
	userID   string
	deviceID string
	roomID   string
}

func (i ConnInfo) key() visitKey {
	return visitKey{userID: i.UserID, deviceID: i.DeviceID, roomID: i.RoomID}
}
