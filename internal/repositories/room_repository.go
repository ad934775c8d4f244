package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"chatroom-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts room metadata persistence.
type RoomRepository interface {
	CreateRoom(ctx context.Context, ownerID string, title string, invitees []string) (models.Room, error)
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	AddInvitee(ctx context.Context, roomID string, userID string) error
	DeleteRoom(ctx context.Context, roomID string, ownerID string) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom creates a room and its invitee list atomically.
func (r *RoomRepo) CreateRoom(ctx context.Context, ownerID string, title string, invitees []string) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room models.Room
	if err = tx.QueryRowxContext(ctx, `INSERT INTO rooms (id, title, owner_id) VALUES ($1, $2, $3) RETURNING id, title, owner_id, created_at`, uuid.NewString(), title, ownerID).
		Scan(&room.ID, &room.Title, &room.OwnerID, &room.CreatedAt); err != nil {
		return models.Room{}, err
	}

	ids := lo.Uniq(lo.Without(invitees, ownerID, ""))
	sort.Strings(ids)
	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO room_invitees (room_id, user_id) VALUES ($1, $2)`, room.ID, id); err != nil {
			return models.Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	room.Invitees = ids
	return room, nil
}

// GetRoom fetches a room with its invitees.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, title, owner_id, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, err
	}

	invitees := []string{}
	if err := r.db.SelectContext(ctx, &invitees, `SELECT user_id FROM room_invitees WHERE room_id=$1 ORDER BY user_id`, roomID); err != nil {
		return models.Room{}, err
	}
	room.Invitees = invitees
	return room, nil
}

// AddInvitee adds userID to the invitee set. Inviting twice is not an error.
func (r *RoomRepo) AddInvitee(ctx context.Context, roomID string, userID string) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO room_invitees (room_id, user_id) SELECT id, $2 FROM rooms WHERE id=$1 ON CONFLICT DO NOTHING`, roomID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		exists := false
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id=$1)`, roomID); err != nil {
			return err
		}
		if !exists {
			return ErrRoomNotFound
		}
	}
	return nil
}

// DeleteRoom removes a room owned by ownerID, cascading to invitees and messages.
func (r *RoomRepo) DeleteRoom(ctx context.Context, roomID string, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id=$1 AND owner_id=$2`, roomID, ownerID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}
