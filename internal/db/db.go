package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Notification channels raised by the triggers below. The payload is the room id.
const (
	RoomChangesChannel    = "room_changes"
	MessageChangesChannel = "message_changes"
)

// Connect initializes the database connection and runs migrations.
func Connect(ctx context.Context, dsn string, log *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        owner_id TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS room_invitees (
        room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
        user_id TEXT NOT NULL,
        PRIMARY KEY(room_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        seq BIGSERIAL,
        room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
        sender_id TEXT NOT NULL,
        sender_name TEXT NOT NULL DEFAULT '',
        text TEXT NOT NULL DEFAULT '',
        attachments TEXT[] NOT NULL DEFAULT '{}',
        status TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS messages_room_order_idx ON messages (room_id, created_at, seq);`,
	`CREATE OR REPLACE FUNCTION notify_room_change() RETURNS trigger AS $$
    BEGIN
        IF TG_OP = 'DELETE' THEN
            PERFORM pg_notify('` + RoomChangesChannel + `', OLD.id);
            RETURN OLD;
        END IF;
        PERFORM pg_notify('` + RoomChangesChannel + `', NEW.id);
        RETURN NEW;
    END;
    $$ LANGUAGE plpgsql;`,
	`CREATE OR REPLACE FUNCTION notify_invitee_change() RETURNS trigger AS $$
    BEGIN
        IF TG_OP = 'DELETE' THEN
            PERFORM pg_notify('` + RoomChangesChannel + `', OLD.room_id);
            RETURN OLD;
        END IF;
        PERFORM pg_notify('` + RoomChangesChannel + `', NEW.room_id);
        RETURN NEW;
    END;
    $$ LANGUAGE plpgsql;`,
	`CREATE OR REPLACE FUNCTION notify_message_change() RETURNS trigger AS $$
    BEGIN
        PERFORM pg_notify('` + MessageChangesChannel + `', NEW.room_id);
        RETURN NEW;
    END;
    $$ LANGUAGE plpgsql;`,
	`DROP TRIGGER IF EXISTS rooms_notify ON rooms;`,
	`CREATE TRIGGER rooms_notify AFTER INSERT OR UPDATE OR DELETE ON rooms
        FOR EACH ROW EXECUTE FUNCTION notify_room_change();`,
	`DROP TRIGGER IF EXISTS room_invitees_notify ON room_invitees;`,
	`CREATE TRIGGER room_invitees_notify AFTER INSERT OR DELETE ON room_invitees
        FOR EACH ROW EXECUTE FUNCTION notify_invitee_change();`,
	`DROP TRIGGER IF EXISTS messages_notify ON messages;`,
	`CREATE TRIGGER messages_notify AFTER INSERT ON messages
        FOR EACH ROW EXECUTE FUNCTION notify_message_change();`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
