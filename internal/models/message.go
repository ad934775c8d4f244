package models

import "time"

// Message represents a persisted chat message. Records are append-only.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id" validate:"required"`
	SenderID    string    `json:"sender_id" validate:"required"`
	SenderName  string    `json:"sender_name"`
	Text        string    `json:"text"`
	Attachments []string  `json:"attachments" validate:"dive,required"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at" validate:"required"`
}

// MessageSnapshot is the complete ordered message collection of a room.
type MessageSnapshot struct {
	Messages []Message
	Err      error
}

// Draft is the unsent composition of the current editing session.
type Draft struct {
	Text        string   `json:"text"`
	Attachments []string `json:"attachments"`
}

// DraftPatch carries the fields to merge into a Draft. Nil fields are left alone.
type DraftPatch struct {
	Text        *string  `json:"text,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}
