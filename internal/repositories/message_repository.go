package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chatroom-service/internal/models"
)

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListRoomMessages(ctx context.Context, roomID string) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

type messageRow struct {
	ID          string         `db:"id"`
	RoomID      string         `db:"room_id"`
	SenderID    string         `db:"sender_id"`
	SenderName  string         `db:"sender_name"`
	Text        string         `db:"text"`
	Attachments pq.StringArray `db:"attachments"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r messageRow) toModel() models.Message {
	attachments := []string(r.Attachments)
	if attachments == nil {
		attachments = []string{}
	}
	return models.Message{
		ID:          r.ID,
		RoomID:      r.RoomID,
		SenderID:    r.SenderID,
		SenderName:  r.SenderName,
		Text:        r.Text,
		Attachments: attachments,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

const messageColumns = `id, room_id, sender_id, sender_name, text, attachments, status, created_at`

// CreateMessage appends a message. The id is assigned here; created_at falls
// back to the database clock when the record carries none.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var createdAt *time.Time
	if !msg.CreatedAt.IsZero() {
		createdAt = &msg.CreatedAt
	}
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	var row messageRow
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, sender_name, text, attachments, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
		 RETURNING `+messageColumns,
		uuid.NewString(), msg.RoomID, msg.SenderID, msg.SenderName, msg.Text, pq.Array(attachments), msg.Status, createdAt,
	).StructScan(&row)
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// ListRoomMessages returns the room's messages by creation time; the insert
// sequence orders messages created at the same instant.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages WHERE room_id=$1 ORDER BY created_at ASC, seq ASC`, roomID); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs, nil
}
