package roomsync

import "errors"

var (
	// ErrRoomUnavailable means the room is absent or the viewer may not read it.
	// It is terminal until the room is opened again.
	ErrRoomUnavailable = errors.New("room unavailable")
	// ErrSubscriptionFailed means a live query could not be established or broke.
	ErrSubscriptionFailed = errors.New("subscription failed")
	// ErrValidationFailed means the draft has neither text nor attachments.
	ErrValidationFailed = errors.New("message and attachments are empty")
	// ErrSendFailed means the store rejected a message after the draft was cleared.
	ErrSendFailed = errors.New("message failed to send")
	// ErrEmptyRoomID is returned by Open for a blank room id.
	ErrEmptyRoomID = errors.New("room id is empty")
	// ErrEngineClosed is returned by calls made after Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrAlreadyOpen is returned by a second Open. An engine serves one visit.
	ErrAlreadyOpen = errors.New("engine already opened")
	// ErrPermissionDenied is returned by a RoomSource when the viewer may not subscribe.
	ErrPermissionDenied = errors.New("permission denied")
)
